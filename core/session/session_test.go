package session

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/koscakluka/ema-live/core/audio/pcm"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/tools"
	"github.com/koscakluka/ema-live/core/transcript"
	"github.com/koscakluka/ema-live/core/transport"
)

func TestStartConnectsAndListens(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	h.startListening(t)

	want := []State{StateConnecting, StateConnected, StateListening}
	if got := h.recorder.stateHistory(); !slices.Equal(got, want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	if got := len(h.recorder.failures()); got != 0 {
		t.Fatalf("expected no errors, got %d", got)
	}
}

func TestStartIsNoOpWhileConnecting(t *testing.T) {
	gate := make(chan struct{})
	h := newTestHarness(t, &testConnector{gate: gate})

	h.session.Start(context.Background())
	waitForState(t, h.session, StateConnecting)
	h.session.Start(context.Background())
	h.session.sync()
	if got := h.session.State(); got != StateConnecting {
		t.Fatalf("expected second start to leave state connecting, got %s", got)
	}

	close(gate)
	waitForState(t, h.session, StateListening)
	if got := h.connector.openCount(); got != 1 {
		t.Fatalf("expected one transport open, got %d", got)
	}
}

func TestStartIsNoOpWhileConnected(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	h.session.Start(context.Background())
	h.session.sync()

	if got := h.session.State(); got != StateListening {
		t.Fatalf("expected state to stay listening, got %s", got)
	}
	if got := h.connector.openCount(); got != 1 {
		t.Fatalf("expected one transport open, got %d", got)
	}
	if got := conn.closes(); got != 0 {
		t.Fatalf("expected transport to stay open, got %d closes", got)
	}
}

func TestStopWhileDisconnectedIsNoOp(t *testing.T) {
	h := newTestHarness(t, &testConnector{})

	h.session.Stop()
	h.session.sync()

	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if got := h.recorder.stateHistory(); len(got) != 0 {
		t.Fatalf("expected no state changes, got %v", got)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)
	conn.deliver(events.NewAssistantAudioChunk(pcm.EncodeFrame(make([]float32, 240)), "audio/pcm;rate=24000"))
	waitForState(t, h.session, StateSpeaking)

	h.session.Stop()
	h.session.sync()
	h.session.Stop()
	h.session.sync()

	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if got := conn.closes(); got != 1 {
		t.Fatalf("expected transport closed once, got %d", got)
	}
	if got := h.device.closes(); got != 1 {
		t.Fatalf("expected microphone closed once, got %d", got)
	}
	if got := h.output.closes(); got != 1 {
		t.Fatalf("expected output closed once, got %d", got)
	}
	for i, voice := range h.output.scheduled() {
		if !voice.stopped {
			t.Fatalf("expected voice %d to be stopped", i)
		}
	}
	if got := len(h.recorder.failures()); got != 0 {
		t.Fatalf("expected teardown without errors, got %d", got)
	}
	if got := h.recorder.stateHistory(); got[len(got)-1] != StateDisconnected || slices.Index(got, StateDisconnected) != len(got)-1 {
		t.Fatalf("expected a single transition to disconnected, got %v", got)
	}
}

func TestToggleStartsAndStops(t *testing.T) {
	h := newTestHarness(t, &testConnector{})

	h.session.Toggle(context.Background())
	waitForState(t, h.session, StateListening)
	conn := h.connector.conn(t, 0)

	h.session.Toggle(context.Background())
	h.session.sync()
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected toggle to disconnect, got %s", got)
	}
	if got := conn.closes(); got != 1 {
		t.Fatalf("expected transport closed, got %d closes", got)
	}
}

func TestStopWhileConnectingReleasesLateTransport(t *testing.T) {
	gate := make(chan struct{})
	h := newTestHarness(t, &testConnector{gate: gate})

	h.session.Start(context.Background())
	waitForState(t, h.session, StateConnecting)
	h.session.Stop()
	h.session.sync()
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected stop to be honored while connecting, got %s", got)
	}

	close(gate)
	waitFor(t, "late transport release", func() bool {
		h.connector.mu.Lock()
		defer h.connector.mu.Unlock()
		return len(h.connector.conns) == 1 && h.connector.conns[0].closes() == 1
	})
	h.session.sync()
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected late open to be discarded, got %s", got)
	}
}

func TestContextCancellationStopsSession(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	ctx, cancel := context.WithCancel(context.Background())

	h.session.Start(ctx)
	waitForState(t, h.session, StateListening)
	cancel()
	waitForState(t, h.session, StateDisconnected)

	if got := len(h.recorder.failures()); got != 0 {
		t.Fatalf("expected cancellation without errors, got %v", h.recorder.failures())
	}
}

func TestCapturedFramesAreSent(t *testing.T) {
	h := newTestHarness(t, &testConnector{}, WithFrameSize(4))
	conn := h.startListening(t)

	h.device.emit([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9})
	waitFor(t, "two frames sent", func() bool { return len(conn.sentAudio()) == 2 })

	for i, packet := range conn.sentAudio() {
		if len(packet.Data) != 8 {
			t.Fatalf("packet %d: expected 8 bytes, got %d", i, len(packet.Data))
		}
		if packet.MIMEType != "audio/pcm;rate=16000" {
			t.Fatalf("packet %d: unexpected mime type %q", i, packet.MIMEType)
		}
	}
}

func TestTranscriptOrdering(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	conn.deliver(
		events.NewAssistantTranscriptSegment("Hi"),
		events.NewUserTranscriptSegment("Hello"),
		events.NewAssistantTranscriptSegment("!"),
		events.NewUserTranscriptSegment(" there"),
		events.NewTurnComplete(),
	)
	waitFor(t, "committed turn", func() bool { return len(h.session.Transcript()) == 2 })

	entries := h.session.Transcript()
	if entries[0].Speaker != transcript.SpeakerUser || entries[0].Text != "Hello there" {
		t.Fatalf("expected user entry first, got %+v", entries[0])
	}
	if entries[1].Speaker != transcript.SpeakerAI || entries[1].Text != "Hi!" {
		t.Fatalf("expected assistant entry second, got %+v", entries[1])
	}
	if entries[0].SequenceID >= entries[1].SequenceID {
		t.Fatalf("expected increasing sequence ids, got %d and %d", entries[0].SequenceID, entries[1].SequenceID)
	}
	if got := h.recorder.committed(); len(got) != 2 {
		t.Fatalf("expected transcript callback with two entries, got %v", got)
	}

	h.recorder.mu.Lock()
	partialIn := append([]string(nil), h.recorder.partialIn...)
	h.recorder.mu.Unlock()
	if want := []string{"Hello", "Hello there"}; !slices.Equal(partialIn, want) {
		t.Fatalf("expected partial input %v, got %v", want, partialIn)
	}
}

func TestTurnWithoutOutputCommitsOnlyUser(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	conn.deliver(events.NewUserTranscriptSegment("  just me "), events.NewTurnComplete())
	waitFor(t, "committed turn", func() bool { return len(h.session.Transcript()) == 1 })

	if entry := h.session.Transcript()[0]; entry.Speaker != transcript.SpeakerUser || entry.Text != "just me" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestTranscriptClearedOnNewConversation(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)
	conn.deliver(events.NewUserTranscriptSegment("first"), events.NewTurnComplete())
	waitFor(t, "committed turn", func() bool { return len(h.session.Transcript()) == 1 })

	h.session.Stop()
	h.session.sync()
	h.startListening(t)

	if got := len(h.session.Transcript()); got != 0 {
		t.Fatalf("expected empty transcript after restart, got %d entries", got)
	}
}

func TestAudioChunkSpeaksUntilPlaybackFinishes(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	chunk := pcm.EncodeFrame(make([]float32, 2400))
	conn.deliver(
		events.NewAssistantAudioChunk(chunk, "audio/pcm;rate=24000"),
		events.NewAssistantAudioChunk(chunk, "audio/pcm;rate=24000"),
	)
	waitFor(t, "two scheduled voices", func() bool { return len(h.output.scheduled()) == 2 })
	h.session.sync()
	if got := h.session.State(); got != StateSpeaking {
		t.Fatalf("expected speaking, got %s", got)
	}

	voices := h.output.scheduled()
	if voices[1].at != voices[0].at+voices[0].buffer.Duration() {
		t.Fatalf("expected back-to-back scheduling, got %v then %v", voices[0].at, voices[1].at)
	}

	h.output.finishAll()
	waitForState(t, h.session, StateListening)
}

func TestMalformedAudioChunkIsDropped(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	conn.deliver(
		events.NewAssistantAudioChunk([]byte{1, 2, 3}, "audio/pcm;rate=24000"),
		events.NewUserTranscriptSegment("still here"),
		events.NewTurnComplete(),
	)
	waitFor(t, "committed turn", func() bool { return len(h.session.Transcript()) == 1 })

	if got := len(h.output.scheduled()); got != 0 {
		t.Fatalf("expected malformed chunk not to be scheduled, got %d voices", got)
	}
	if got := h.session.State(); got != StateListening {
		t.Fatalf("expected session to keep listening, got %s", got)
	}
	if got := len(h.recorder.failures()); got != 0 {
		t.Fatalf("expected no user-visible error, got %v", h.recorder.failures())
	}
}

func TestToolCallProducesOneResponse(t *testing.T) {
	navigated := make(chan struct{}, 1)
	dispatcher := tools.NewDispatcher(tools.NewRawTool("navigateToMapView", "Show the map", nil,
		func(context.Context, map[string]any) (string, error) {
			navigated <- struct{}{}
			return "Successfully navigated to map view.", nil
		}))
	connector := &testConnector{}
	h := newTestHarness(t, connector, WithTools(dispatcher))
	conn := h.startListening(t)

	if got := connector.configs[0].Tools; len(got) != 1 || got[0].Name != "navigateToMapView" {
		t.Fatalf("expected tool declaration in transport config, got %+v", got)
	}

	conn.deliver(
		events.NewToolCallRequested("call-0", "unknownTool", nil),
		events.NewToolCallRequested("call-1", "navigateToMapView", map[string]any{}),
	)
	waitFor(t, "tool response", func() bool { return len(conn.sentToolResponses()) > 0 })
	h.session.sync()

	responses := conn.sentToolResponses()
	if len(responses) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(responses))
	}
	if responses[0].ID != "call-1" || responses[0].Name != "navigateToMapView" {
		t.Fatalf("expected response to echo the call, got %+v", responses[0])
	}
	if responses[0].Response["result"] != "Successfully navigated to map view." {
		t.Fatalf("unexpected tool result %+v", responses[0].Response)
	}
	select {
	case <-navigated:
	default:
		t.Fatalf("expected tool handler to run")
	}
	if got := h.session.State(); got != StateListening {
		t.Fatalf("expected tool call to leave state unchanged, got %s", got)
	}
}

func TestUnknownToolCallSendsNothing(t *testing.T) {
	h := newTestHarness(t, &testConnector{}, WithTools(tools.NewDispatcher()))
	conn := h.startListening(t)

	conn.deliver(
		events.NewToolCallRequested("call-1", "unknownTool", nil),
		events.NewUserTranscriptSegment("done"),
		events.NewTurnComplete(),
	)
	waitFor(t, "committed turn", func() bool { return len(h.session.Transcript()) == 1 })
	h.session.sync()

	if got := len(conn.sentToolResponses()); got != 0 {
		t.Fatalf("expected no tool responses, got %d", got)
	}
}

func TestOpenErrorIsReported(t *testing.T) {
	h := newTestHarness(t, &testConnector{err: errors.New("API key not valid. Please pass a valid API key.")})

	h.session.Start(context.Background())
	waitFor(t, "error callback", func() bool { return len(h.recorder.failures()) == 1 })
	h.session.sync()

	err := h.recorder.failures()[0]
	var openErr *transport.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	if !NeedsCredentials(err) {
		t.Fatalf("expected credential problem to be detected")
	}
	if got := UserNotice(err); got != credentialNotice {
		t.Fatalf("unexpected notice %q", got)
	}
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if got := h.output.closes(); got != 1 {
		t.Fatalf("expected output released, got %d closes", got)
	}
}

func TestMicrophoneErrorReleasesTransport(t *testing.T) {
	connector := &testConnector{}
	h := newTestHarness(t, connector, WithCaptureDevice(func(context.Context) (capture.Device, error) {
		return nil, errors.New("NotAllowedError")
	}))

	h.session.Start(context.Background())
	waitFor(t, "error callback", func() bool { return len(h.recorder.failures()) == 1 })
	h.session.sync()

	err := h.recorder.failures()[0]
	if !errors.Is(err, capture.ErrMicrophonePermission) {
		t.Fatalf("expected microphone error, got %v", err)
	}
	if got := UserNotice(err); got != startNotice {
		t.Fatalf("unexpected notice %q", got)
	}
	if got := connector.conn(t, 0).closes(); got != 1 {
		t.Fatalf("expected transport released, got %d closes", got)
	}
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
}

func TestTransportFailureTearsDown(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	conn.failures <- transport.NewRuntimeError(errors.New("connection reset"))
	waitForState(t, h.session, StateDisconnected)
	waitFor(t, "error callback", func() bool { return len(h.recorder.failures()) == 1 })

	var runtimeErr *transport.RuntimeError
	if err := h.recorder.failures()[0]; !errors.As(err, &runtimeErr) {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if got := conn.closes(); got != 1 {
		t.Fatalf("expected transport closed, got %d", got)
	}
	if got := h.device.closes(); got != 1 {
		t.Fatalf("expected microphone closed, got %d", got)
	}
}

func TestTransportFailedEventTearsDown(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	conn.deliver(events.NewTransportFailed(errors.New("Network error")))
	waitForState(t, h.session, StateDisconnected)
	waitFor(t, "error callback", func() bool { return len(h.recorder.failures()) == 1 })

	if err := h.recorder.failures()[0]; !NeedsCredentials(err) {
		t.Fatalf("expected network failure to suggest new credentials, got %v", err)
	}
}

func TestRemoteCloseTearsDownSilently(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	close(conn.remoteClosed)
	waitForState(t, h.session, StateDisconnected)
	h.session.sync()

	if got := len(h.recorder.failures()); got != 0 {
		t.Fatalf("expected no error on normal close, got %v", h.recorder.failures())
	}
	if got := conn.closes(); got != 1 {
		t.Fatalf("expected transport released, got %d closes", got)
	}
}

func TestCloseReleasesAndRejectsStart(t *testing.T) {
	h := newTestHarness(t, &testConnector{})
	conn := h.startListening(t)

	if err := h.session.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := h.session.Close(); err != nil {
		t.Fatalf("unexpected second close error: %v", err)
	}
	if got := h.session.State(); got != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", got)
	}
	if got := conn.closes(); got != 1 {
		t.Fatalf("expected transport closed, got %d", got)
	}

	h.session.Start(context.Background())
	h.session.sync()
	if got := h.connector.openCount(); got != 1 {
		t.Fatalf("expected no start after close, got %d opens", got)
	}
}

func TestMissingOutputFailsStart(t *testing.T) {
	connector := &testConnector{}
	recorder := &testRecorder{}
	s := New(connector, recorder.options()...)
	defer s.Close()

	s.Start(context.Background())
	waitFor(t, "error callback", func() bool { return len(recorder.failures()) == 1 })
	if err := recorder.failures()[0]; !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected missing output error, got %v", err)
	}
	if got := connector.openCount(); got != 0 {
		t.Fatalf("expected no transport open, got %d", got)
	}
}

func TestSchedulerRejectsForeignRate(t *testing.T) {
	connector := &testConnector{}
	mixer := playback.NewMixer(24000)
	recorder := &testRecorder{}
	s := New(connector, append(recorder.options(),
		WithCaptureDevice(func(context.Context) (capture.Device, error) { return &testCaptureDevice{}, nil }),
		WithOutput(func(context.Context) (playback.Output, error) { return mixer, nil }),
	)...)
	defer s.Close()

	s.Start(context.Background())
	waitForState(t, s, StateListening)
	conn := connector.conn(t, 0)

	conn.deliver(events.NewAssistantAudioChunk(pcm.EncodeFrame(make([]float32, 160)), "audio/pcm;rate=16000"))
	conn.deliver(events.NewAssistantAudioChunk(pcm.EncodeFrame(make([]float32, 240)), "audio/pcm;rate=24000"))
	waitFor(t, "one active voice", func() bool { return mixer.Active() == 1 })
	waitForState(t, s, StateSpeaking)
}

func TestCloseReleasesConnectResultQueuedBehindIt(t *testing.T) {
	connector := &testConnector{gate: make(chan struct{})}
	defer close(connector.gate)

	entered := make(chan struct{})
	resume := make(chan struct{})
	held := false
	h := newTestHarness(t, connector, WithStateChangedCallback(func(state State) {
		if state == StateConnecting && !held {
			held = true
			close(entered)
			<-resume
		}
	}))
	h.session.Start(context.Background())
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = h.session.Close()
		close(closed)
	}()
	waitFor(t, "close request queued", func() bool { return h.session.mailbox.len() == 1 })

	late := newTestConn()
	lateDevice := &testCaptureDevice{}
	lateOutput := &testOutput{}
	h.session.post(connectResult{generation: 1, stream: late, microphone: lateDevice, output: lateOutput})
	close(resume)

	waitFor(t, "session closed", func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	})
	if got := late.closes(); got != 1 {
		t.Fatalf("expected queued transport closed once, got %d", got)
	}
	if got := lateDevice.closes(); got != 1 {
		t.Fatalf("expected queued microphone closed once, got %d", got)
	}
	if got := lateOutput.closes(); got != 1 {
		t.Fatalf("expected queued output closed once, got %d", got)
	}
}
