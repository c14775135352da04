package portaudio

import "time"

const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

// readBackoff spaces out retries of a failing blocking read.
type readBackoff struct {
	failures int
	delay    time.Duration
}

// next records a failure and returns how long to wait before retrying.
func (b *readBackoff) next() time.Duration {
	b.failures++
	if b.delay == 0 {
		b.delay = minReadBackoff
	} else {
		b.delay = min(2*b.delay, maxReadBackoff)
	}
	return b.delay
}

func (b *readBackoff) reset() {
	b.failures = 0
	b.delay = 0
}

// shouldLog reports whether the current failure is worth a log line: the
// first one, then every failure that hits the cap.
func (b *readBackoff) shouldLog() bool {
	return b.failures == 1 || b.delay == maxReadBackoff
}
