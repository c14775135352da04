package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
)

var _ Output = (*Mixer)(nil)

var ErrMixerClosed = errors.New("mixer closed")

// Mixer is a device-independent Output. A device pulls mono samples with
// Render; the clock advances by exactly the number of frames rendered.
type Mixer struct {
	sampleRate int

	mu       sync.Mutex
	rendered int64
	voices   []*mixerVoice
	closed   bool
}

func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framesToDuration(m.rendered)
}

// Schedule places buffer at the frame for at. A start the render position
// has already passed is moved up to it, so the buffer is never cut at the
// head.
func (m *Mixer) Schedule(buffer audio.Buffer, at time.Duration, onEnded func()) (Voice, time.Duration, error) {
	if buffer.SampleRate != m.sampleRate {
		return nil, 0, fmt.Errorf("buffer sample rate %d does not match output rate %d", buffer.SampleRate, m.sampleRate)
	}

	voice := &mixerVoice{
		mixer:   m,
		samples: buffer.Mono(),
		onEnded: onEnded,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, 0, ErrMixerClosed
	}
	voice.start = max(m.durationToFrames(at), m.rendered)
	started := m.framesToDuration(voice.start)
	if len(voice.samples) == 0 {
		m.mu.Unlock()
		voice.end()
		return voice, started, nil
	}
	m.voices = append(m.voices, voice)
	m.mu.Unlock()

	return voice, started, nil
}

// Render fills out with the sum of every voice sounding in the next
// len(out) frames and advances the clock.
func (m *Mixer) Render(out []float32) {
	clear(out)

	m.mu.Lock()
	from := m.rendered
	to := from + int64(len(out))

	var ended []*mixerVoice
	remaining := m.voices[:0]
	for _, voice := range m.voices {
		voice.mixInto(out, from, to)
		if voice.start+int64(len(voice.samples)) <= to {
			ended = append(ended, voice)
			continue
		}
		remaining = append(remaining, voice)
	}
	clear(m.voices[len(remaining):])
	m.voices = remaining
	m.rendered = to
	m.mu.Unlock()

	for _, voice := range ended {
		voice.end()
	}
}

// Active is the number of voices that have not ended yet.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close stops every voice and rejects further scheduling.
func (m *Mixer) Close() error {
	m.mu.Lock()
	m.closed = true
	voices := m.voices
	m.voices = nil
	m.mu.Unlock()

	for _, voice := range voices {
		voice.end()
	}
	return nil
}

func (m *Mixer) remove(target *mixerVoice) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, voice := range m.voices {
		if voice == target {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Mixer) framesToDuration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(m.sampleRate)
}

func (m *Mixer) durationToFrames(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(m.sampleRate)))
}

type mixerVoice struct {
	mixer   *Mixer
	start   int64
	samples []float32
	onEnded func()
	endOnce sync.Once
}

func (v *mixerVoice) mixInto(out []float32, from, to int64) {
	begin := max(v.start, from)
	end := min(v.start+int64(len(v.samples)), to)
	for frame := begin; frame < end; frame++ {
		out[frame-from] += v.samples[frame-v.start]
	}
}

func (v *mixerVoice) Stop() {
	v.mixer.remove(v)
	v.end()
}

func (v *mixerVoice) end() {
	v.endOnce.Do(func() {
		if v.onEnded != nil {
			go v.onEnded()
		}
	})
}
