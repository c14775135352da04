package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/transcript"
	"github.com/koscakluka/ema-live/core/transport"
)

type testConnector struct {
	mu      sync.Mutex
	conns   []*testConn
	configs []transport.Config
	err     error
	// gate, when set, holds Open until it is closed.
	gate chan struct{}
}

func (c *testConnector) Open(ctx context.Context, config transport.Config) (transport.Conn, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, config)
	if c.err != nil {
		return nil, c.err
	}
	conn := newTestConn()
	c.conns = append(c.conns, conn)
	return conn, nil
}

func (c *testConnector) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.configs)
}

func (c *testConnector) conn(t *testing.T, i int) *testConn {
	t.Helper()
	waitFor(t, "transport opened", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.conns) > i
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[i]
}

type testConn struct {
	incoming     chan events.Event
	failures     chan error
	remoteClosed chan struct{}
	closed       chan struct{}

	mu            sync.Mutex
	audio         []audio.Packet
	toolResponses []transport.ToolResponse
	closeCalls    int
}

func newTestConn() *testConn {
	return &testConn{
		incoming:     make(chan events.Event, 64),
		failures:     make(chan error, 1),
		remoteClosed: make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

func (c *testConn) SendAudio(packet audio.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, packet)
	return nil
}

func (c *testConn) SendToolResponse(response transport.ToolResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolResponses = append(c.toolResponses, response)
	return nil
}

func (c *testConn) Receive(ctx context.Context) (events.Event, error) {
	select {
	case event := <-c.incoming:
		return event, nil
	case err := <-c.failures:
		return nil, err
	case <-c.remoteClosed:
		return events.NewTransportClosed(), nil
	case <-c.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *testConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closeCalls == 1 {
		close(c.closed)
	}
	return nil
}

func (c *testConn) deliver(evs ...events.Event) {
	for _, event := range evs {
		c.incoming <- event
	}
}

func (c *testConn) sentAudio() []audio.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.Packet(nil), c.audio...)
}

func (c *testConn) sentToolResponses() []transport.ToolResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.ToolResponse(nil), c.toolResponses...)
}

func (c *testConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

type testCaptureDevice struct {
	mu         sync.Mutex
	onSamples  func([]float32)
	startErr   error
	startCalls int
	stopCalls  int
	closeCalls int
}

func (d *testCaptureDevice) EncodingInfo() audio.EncodingInfo {
	return audio.GetInputEncodingInfo()
}

func (d *testCaptureDevice) Start(ctx context.Context, onSamples func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	if d.startErr != nil {
		return d.startErr
	}
	d.onSamples = onSamples
	return nil
}

func (d *testCaptureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	d.onSamples = nil
	return nil
}

func (d *testCaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *testCaptureDevice) emit(samples []float32) {
	d.mu.Lock()
	onSamples := d.onSamples
	d.mu.Unlock()
	if onSamples != nil {
		onSamples(samples)
	}
}

func (d *testCaptureDevice) closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

type testOutput struct {
	mu         sync.Mutex
	now        time.Duration
	voices     []*testVoice
	closeCalls int
}

type testVoice struct {
	output  *testOutput
	at      time.Duration
	buffer  audio.Buffer
	onEnded func()
	ended   bool
	stopped bool
}

func (o *testOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *testOutput) Schedule(buffer audio.Buffer, at time.Duration, onEnded func()) (playback.Voice, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	at = max(at, o.now)
	voice := &testVoice{output: o, at: at, buffer: buffer, onEnded: onEnded}
	o.voices = append(o.voices, voice)
	return voice, at, nil
}

func (o *testOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeCalls++
	return nil
}

// finishAll lets every scheduled voice play to its end.
func (o *testOutput) finishAll() {
	o.mu.Lock()
	var ended []func()
	for _, voice := range o.voices {
		if !voice.ended {
			voice.ended = true
			ended = append(ended, voice.onEnded)
		}
	}
	o.mu.Unlock()

	for _, onEnded := range ended {
		onEnded()
	}
}

func (o *testOutput) scheduled() []*testVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*testVoice(nil), o.voices...)
}

func (o *testOutput) closes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeCalls
}

func (v *testVoice) Stop() {
	v.output.mu.Lock()
	if v.ended {
		v.output.mu.Unlock()
		return
	}
	v.ended = true
	v.stopped = true
	v.output.mu.Unlock()
	v.onEnded()
}

type testRecorder struct {
	mu         sync.Mutex
	states     []State
	entries    []transcript.Entry
	errs       []error
	partialIn  []string
	partialOut []string
}

func (r *testRecorder) options() []Option {
	return []Option{
		WithStateChangedCallback(func(state State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, state)
		}),
		WithTranscriptCallback(func(entries []transcript.Entry) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.entries = append(r.entries, entries...)
		}),
		WithErrorCallback(func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		}),
		WithPartialInputCallback(func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.partialIn = append(r.partialIn, text)
		}),
		WithPartialOutputCallback(func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.partialOut = append(r.partialOut, text)
		}),
	}
}

func (r *testRecorder) stateHistory() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *testRecorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *testRecorder) committed() []transcript.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcript.Entry(nil), r.entries...)
}

type testHarness struct {
	session   *Session
	connector *testConnector
	device    *testCaptureDevice
	output    *testOutput
	recorder  *testRecorder
}

func newTestHarness(t *testing.T, connector *testConnector, opts ...Option) *testHarness {
	t.Helper()

	h := &testHarness{
		connector: connector,
		device:    &testCaptureDevice{},
		output:    &testOutput{},
		recorder:  &testRecorder{},
	}
	allOpts := append(h.recorder.options(),
		WithCaptureDevice(func(context.Context) (capture.Device, error) { return h.device, nil }),
		WithOutput(func(context.Context) (playback.Output, error) { return h.output, nil }),
	)
	h.session = New(connector, append(allOpts, opts...)...)
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

// startListening starts the session and waits until it listens.
func (h *testHarness) startListening(t *testing.T) *testConn {
	t.Helper()
	h.session.Start(context.Background())
	waitForState(t, h.session, StateListening)
	return h.connector.conn(t, h.connector.openCount()-1)
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForState(t *testing.T, s *Session, state State) {
	t.Helper()
	waitFor(t, "state "+state.String(), func() bool { return s.State() == state })
}
