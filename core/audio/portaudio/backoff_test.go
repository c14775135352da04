package portaudio

import (
	"testing"
	"time"
)

func TestReadBackoffGrowsUpToCap(t *testing.T) {
	var b readBackoff
	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		160 * time.Millisecond,
		320 * time.Millisecond,
		640 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, want := range expected {
		if got := b.next(); got != want {
			t.Fatalf("failure %d: expected delay %v, got %v", i+1, want, got)
		}
	}
}

func TestReadBackoffLogsFirstAndCappedFailures(t *testing.T) {
	var b readBackoff
	b.next()
	if !b.shouldLog() {
		t.Fatalf("expected the first failure to be logged")
	}
	b.next()
	if b.shouldLog() {
		t.Fatalf("expected the second failure to stay quiet")
	}
	for range 10 {
		b.next()
	}
	if !b.shouldLog() {
		t.Fatalf("expected failures at the cap to be logged")
	}
}

func TestReadBackoffResetStartsOver(t *testing.T) {
	var b readBackoff
	for range 5 {
		b.next()
	}
	b.reset()
	if got := b.next(); got != minReadBackoff {
		t.Fatalf("expected delay to restart at %v, got %v", minReadBackoff, got)
	}
	if !b.shouldLog() {
		t.Fatalf("expected the first failure after reset to be logged")
	}
}
