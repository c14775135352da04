package session

import (
	"context"

	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/tools"
	"github.com/koscakluka/ema-live/core/transcript"
	"github.com/koscakluka/ema-live/core/transport"
)

type Option func(*Session)

// CaptureFactory acquires the microphone for one connection. Failures are
// reported as capture.ErrMicrophonePermission.
type CaptureFactory func(ctx context.Context) (capture.Device, error)

// OutputFactory opens the output clock for one connection.
type OutputFactory func(ctx context.Context) (playback.Output, error)

func WithConfig(config transport.Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithTools registers the dispatcher whose declarations are sent on open
// and which answers tool call requests.
func WithTools(dispatcher *tools.Dispatcher) Option {
	return func(s *Session) {
		s.tools = dispatcher
	}
}

func WithCaptureDevice(factory CaptureFactory) Option {
	return func(s *Session) {
		s.openCapture = factory
	}
}

func WithOutput(factory OutputFactory) Option {
	return func(s *Session) {
		s.openOutput = factory
	}
}

func WithFrameSize(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.frameSize = size
		}
	}
}

func WithStateChangedCallback(callback func(State)) Option {
	return func(s *Session) {
		s.callbacks.onStateChanged = callback
	}
}

// WithTranscriptCallback is called with the entries committed at each turn
// boundary.
func WithTranscriptCallback(callback func([]transcript.Entry)) Option {
	return func(s *Session) {
		s.callbacks.onTranscript = callback
	}
}

// WithPartialInputCallback is called with the user's text accumulated so
// far in the current turn.
func WithPartialInputCallback(callback func(string)) Option {
	return func(s *Session) {
		s.callbacks.onPartialInput = callback
	}
}

func WithPartialOutputCallback(callback func(string)) Option {
	return func(s *Session) {
		s.callbacks.onPartialOutput = callback
	}
}

// WithErrorCallback is called for every failure that tears the session
// down. A normal remote close is not reported.
func WithErrorCallback(callback func(error)) Option {
	return func(s *Session) {
		s.callbacks.onError = callback
	}
}
