// Package playback schedules decoded audio on a shared output clock so that
// consecutive buffers play back-to-back, and tracks what is still sounding.
package playback

import (
	"fmt"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
)

// Output is an audio clock that can start a buffer at an exact time.
type Output interface {
	// Now is the current position of the output clock. It never decreases.
	Now() time.Duration
	// Schedule starts buffer at the given clock position, or at the current
	// position when at has already passed, and returns the start it used.
	// onEnded is called exactly once, when the buffer finishes or is
	// stopped, possibly from another goroutine.
	Schedule(buffer audio.Buffer, at time.Duration, onEnded func()) (Voice, time.Duration, error)
	Close() error
}

// Voice is a buffer that has been handed to an Output.
type Voice interface {
	Stop()
}

// Handle is a live scheduled buffer. It is owned by the Scheduler from
// Enqueue until it ends or is stopped.
type Handle struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration

	voice Voice
}

type Option func(*Scheduler)

// WithDispatcher routes completion hooks coming from the output through fn,
// typically onto the owner's event loop. By default hooks run inline.
func WithDispatcher(fn func(func())) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.dispatch = fn
		}
	}
}

// WithIdleCallback registers fn to run when the in-flight set becomes empty
// after having been non-empty through natural completion.
func WithIdleCallback(fn func()) Option {
	return func(s *Scheduler) { s.onIdle = fn }
}

// Scheduler places buffers on the output clock. It is not safe for
// concurrent use; completion hooks are serialized through the dispatcher.
type Scheduler struct {
	output        Output
	nextStartTime time.Duration
	inFlight      map[*Handle]struct{}
	lastID        uint64

	dispatch func(func())
	onIdle   func()
}

func NewScheduler(output Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		output:   output,
		inFlight: make(map[*Handle]struct{}),
		dispatch: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue schedules buffer at max(nextStartTime, now) and advances the
// cursor by the buffer's duration, so buffers enqueued in sequence play with
// no gap or overlap regardless of when Enqueue is called.
func (s *Scheduler) Enqueue(buffer audio.Buffer) (*Handle, error) {
	now := s.output.Now()
	startTime := max(s.nextStartTime, now)
	duration := buffer.Duration()
	if len(s.inFlight) > 0 && now > s.nextStartTime {
		logger.Debug("playback underrun", "gap", now-s.nextStartTime)
	}

	s.lastID++
	handle := &Handle{ID: s.lastID, Start: startTime, Duration: duration}
	// Registered before scheduling so an immediate onEnded still finds it.
	s.inFlight[handle] = struct{}{}

	voice, started, err := s.output.Schedule(buffer, startTime, func() {
		s.dispatch(func() { s.finish(handle) })
	})
	if err != nil {
		delete(s.inFlight, handle)
		return nil, fmt.Errorf("failed to schedule buffer: %w", err)
	}
	handle.voice = voice
	handle.Start = started
	s.nextStartTime = started + duration

	return handle, nil
}

// StopAll halts every in-flight buffer and clears the set. It does not
// report idle.
func (s *Scheduler) StopAll() {
	handles := make([]*Handle, 0, len(s.inFlight))
	for handle := range s.inFlight {
		handles = append(handles, handle)
	}
	clear(s.inFlight)
	if len(handles) > 0 {
		logger.Debug("stopping scheduled audio", "buffers", len(handles))
	}

	for _, handle := range handles {
		if handle.voice != nil {
			handle.voice.Stop()
		}
	}
}

// InFlight is the number of buffers scheduled but not yet finished.
func (s *Scheduler) InFlight() int { return len(s.inFlight) }

func (s *Scheduler) NextStartTime() time.Duration { return s.nextStartTime }

func (s *Scheduler) finish(handle *Handle) {
	if _, ok := s.inFlight[handle]; !ok {
		return
	}

	delete(s.inFlight, handle)
	if len(s.inFlight) == 0 && s.onIdle != nil {
		s.onIdle()
	}
}
