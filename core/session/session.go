// Package session runs one duplex voice conversation at a time: it opens the
// transport, streams the microphone to it, and routes what comes back to
// the transcript, the tool dispatcher and the playback scheduler.
//
// All session state is owned by a single event loop. Device callbacks, the
// transport receive worker and playback completions only post messages to
// it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/tools"
	"github.com/koscakluka/ema-live/core/transcript"
	"github.com/koscakluka/ema-live/core/transport"
)

var (
	ErrNoCaptureDevice = errors.New("no capture device configured")
	ErrNoOutput        = errors.New("no audio output configured")
)

type callbacks struct {
	onStateChanged  func(State)
	onTranscript    func([]transcript.Entry)
	onPartialInput  func(string)
	onPartialOutput func(string)
	onError         func(error)
}

// Session is safe for concurrent use. Callbacks run on the session's event
// loop, one at a time; they must not block and must not call Close.
type Session struct {
	connector   transport.Connector
	config      transport.Config
	tools       *tools.Dispatcher
	openCapture CaptureFactory
	openOutput  OutputFactory
	frameSize   int
	callbacks   callbacks

	mailbox   *mailbox[message]
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the event loop.
	state      State
	conn       *connection
	generation uint64
	assembler  transcript.Assembler

	currentState atomic.Value
	transcript   transcript.Log
}

func New(connector transport.Connector, opts ...Option) *Session {
	s := &Session{
		connector: connector,
		config:    transport.DefaultConfig(),
		frameSize: capture.DefaultFrameSize,
		mailbox:   newMailbox[message](),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.currentState.Store(StateDisconnected)

	go s.run()
	return s
}

// Start opens a conversation. It returns immediately; progress is reported
// through the state callback. Starting while a conversation is active or
// being opened does nothing. The conversation is stopped when ctx is done.
func (s *Session) Start(ctx context.Context) {
	s.post(startRequest{ctx: ctx})
}

// Stop tears the active conversation down. Stopping a disconnected session
// does nothing.
func (s *Session) Stop() {
	s.post(stopRequest{})
}

// Toggle stops an active conversation or starts a new one.
func (s *Session) Toggle(ctx context.Context) {
	s.post(toggleRequest{ctx: ctx})
}

func (s *Session) State() State {
	return s.currentState.Load().(State)
}

// Transcript returns a snapshot of the committed transcript.
func (s *Session) Transcript() []transcript.Entry {
	return s.transcript.Entries()
}

// Close stops any active conversation and ends the event loop.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.post(closeRequest{})
	})
	<-s.done
	return nil
}

func (s *Session) post(msg message) bool {
	return s.mailbox.push(msg)
}

// sync waits until every message posted before it has been handled.
func (s *Session) sync() {
	done := make(chan struct{})
	if !s.post(barrier{done: done}) {
		return
	}
	select {
	case <-done:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer func() {
		for _, msg := range s.mailbox.drain() {
			if result, ok := msg.(connectResult); ok {
				result.release()
			}
		}
	}()

	for {
		msg, ok := s.mailbox.pop()
		if !ok {
			return
		}
		if _, ok := msg.(closeRequest); ok {
			s.teardown()
			return
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg message) {
	switch msg := msg.(type) {
	case startRequest:
		s.start(msg.ctx)
	case stopRequest:
		if msg.generation != 0 && (s.conn == nil || s.conn.generation != msg.generation) {
			return
		}
		s.teardown()
	case toggleRequest:
		if s.state.IsActive() {
			s.teardown()
		} else {
			s.start(msg.ctx)
		}
	case connectResult:
		s.opened(msg)
	case inboundEvent:
		if c := s.current(msg.generation); c != nil {
			s.route(c, msg.event)
		}
	case capturedPacket:
		if c := s.current(msg.generation); c != nil {
			c.outbox.push(outbound{packet: msg.packet})
			framesSentCounter.Add(c.ctx, 1)
		}
	case playbackHook:
		if s.current(msg.generation) != nil {
			msg.fn()
		}
	case workerFailed:
		if c := s.current(msg.generation); c != nil {
			s.fail(c, msg.err)
		}
	case closedByRemote:
		if c := s.current(msg.generation); c != nil {
			logger.Info("transport closed by remote", "connection_id", c.id)
			s.teardown()
		}
	case barrier:
		close(msg.done)
	default:
		logger.Warn("unknown session message", "type", fmt.Sprintf("%T", msg))
	}
}

// current returns the live connection when generation still refers to it.
func (s *Session) current(generation uint64) *connection {
	if s.conn == nil || s.conn.generation != generation {
		return nil
	}
	return s.conn
}

func (s *Session) start(ctx context.Context) {
	if s.state.IsActive() {
		logger.Debug("start ignored, session already active", "state", s.state)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.generation++
	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		id:         uuid.NewString(),
		generation: s.generation,
		ctx:        connCtx,
		cancel:     cancel,
	}
	generation := c.generation
	c.hookDone = withContextCancelHook(ctx, func() {
		s.post(stopRequest{generation: generation})
	})
	s.conn = c
	s.transcript.Clear()
	s.setState(StateConnecting)

	go func() {
		var result connectResult
		if err := panicSafeNamedWorker("connect", func(ctx context.Context) error {
			result = s.connect(ctx)
			return nil
		})(connCtx); err != nil {
			result = connectResult{err: err}
		}
		result.generation = generation
		if !s.post(result) {
			result.release()
		}
	}()
}

// connect acquires the output clock, the transport and the microphone, in
// that order, releasing what it already holds when a later step fails.
func (s *Session) connect(ctx context.Context) (result connectResult) {
	ctx, span := tracer.Start(ctx, "connect session")
	defer span.End()
	defer func() {
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}
	}()

	if s.openOutput == nil {
		return connectResult{err: ErrNoOutput}
	}
	output, err := s.openOutput(ctx)
	if err != nil {
		return connectResult{err: fmt.Errorf("failed to open audio output: %w", err)}
	}

	config := s.config
	if len(config.Tools) == 0 && s.tools != nil {
		config.Tools = s.tools.Declarations()
	}
	span.SetAttributes(attribute.String("model", config.Model), attribute.Int("tools", len(config.Tools)))

	stream, err := s.connector.Open(ctx, config)
	if err != nil {
		_ = output.Close()
		var openErr *transport.OpenError
		if !errors.As(err, &openErr) {
			err = transport.NewOpenError(err)
		}
		return connectResult{err: err}
	}

	if s.openCapture == nil {
		_ = stream.Close()
		_ = output.Close()
		return connectResult{err: fmt.Errorf("%w: %w", capture.ErrMicrophonePermission, ErrNoCaptureDevice)}
	}
	microphone, err := s.openCapture(ctx)
	if err != nil {
		_ = stream.Close()
		_ = output.Close()
		if !errors.Is(err, capture.ErrMicrophonePermission) {
			err = fmt.Errorf("%w: %w", capture.ErrMicrophonePermission, err)
		}
		return connectResult{err: err}
	}

	return connectResult{stream: stream, microphone: microphone, output: output}
}

// opened wires a successful connect attempt: the receive worker and the
// send path first, then the microphone.
func (s *Session) opened(result connectResult) {
	c := s.current(result.generation)
	if c == nil {
		result.release()
		return
	}
	if result.err != nil {
		s.fail(c, result.err)
		return
	}

	c.stream = result.stream
	c.microphone = result.microphone
	c.output = result.output
	c.scheduler = playback.NewScheduler(c.output,
		playback.WithDispatcher(func(fn func()) {
			s.post(playbackHook{generation: c.generation, fn: fn})
		}),
		playback.WithIdleCallback(func() {
			if s.state == StateSpeaking {
				s.setState(StateListening)
			}
		}),
	)
	s.assembler.Reset()
	s.setState(StateConnected)
	logger.Info("session connected", "connection_id", c.id)

	c.outbox = newMailbox[outbound]()
	go func() {
		if err := panicSafeNamedWorker("send", c.send)(c.ctx); err != nil {
			s.post(workerFailed{generation: c.generation, err: err})
		}
	}()
	go func() {
		if err := panicSafeNamedWorker("receive", func(ctx context.Context) error {
			return c.receive(ctx, s.post)
		})(c.ctx); err != nil {
			s.post(workerFailed{generation: c.generation, err: err})
		}
	}()

	c.pipeline = capture.NewPipeline(c.microphone, capture.WithFrameSize(s.frameSize))
	generation := c.generation
	if err := c.pipeline.Start(c.ctx, func(packet audio.Packet) {
		s.post(capturedPacket{generation: generation, packet: packet})
	}); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", capture.ErrMicrophonePermission, err))
		return
	}

	s.setState(StateListening)
}

// fail reports err and tears the connection down.
func (s *Session) fail(c *connection, err error) {
	var openErr *transport.OpenError
	if !errors.As(err, &openErr) && !errors.Is(err, capture.ErrMicrophonePermission) {
		var runtimeErr *transport.RuntimeError
		if !errors.As(err, &runtimeErr) {
			err = transport.NewRuntimeError(err)
		}
	}
	logger.Error("session failed", "connection_id", c.id, "error", err)

	s.teardown()
	if s.callbacks.onError != nil {
		s.callbacks.onError(err)
	}
}

// teardown releases the active connection, if any, and returns to
// Disconnected. It is safe to call at any time.
func (s *Session) teardown() {
	c := s.conn
	if c == nil {
		s.setState(StateDisconnected)
		return
	}
	s.conn = nil

	if err := c.release(); err != nil {
		logger.Warn("errors while releasing connection", "connection_id", c.id, "error", err)
	}
	logger.Info("session disconnected", "connection_id", c.id)
	s.setState(StateDisconnected)
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.currentState.Store(state)
	if s.callbacks.onStateChanged != nil {
		s.callbacks.onStateChanged(state)
	}
}

type message any

type startRequest struct{ ctx context.Context }

// stopRequest with a zero generation stops whichever connection is active.
type stopRequest struct{ generation uint64 }

type toggleRequest struct{ ctx context.Context }

type closeRequest struct{}

type inboundEvent struct {
	generation uint64
	event      events.Event
}

type capturedPacket struct {
	generation uint64
	packet     audio.Packet
}

type playbackHook struct {
	generation uint64
	fn         func()
}

type workerFailed struct {
	generation uint64
	err        error
}

type closedByRemote struct{ generation uint64 }

type barrier struct{ done chan struct{} }
