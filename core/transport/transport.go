// Package transport defines the bidirectional stream to the remote
// conversational engine.
package transport

import (
	"context"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/tools"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Zephyr"
)

type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config is what a session asks of the remote engine when it opens.
type Config struct {
	Model              string
	ResponseModalities []Modality
	// InputTranscription and OutputTranscription request streamed text of
	// the user's and the engine's speech.
	InputTranscription  bool
	OutputTranscription bool
	Voice               string
	Tools               []tools.Declaration
	SystemInstruction   string
}

// DefaultConfig requests spoken replies with both transcriptions on.
func DefaultConfig() Config {
	return Config{
		Model:               DefaultModel,
		ResponseModalities:  []Modality{ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
		Voice:               DefaultVoice,
	}
}

// ToolResponse answers a tool call request.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Connector opens streams. Open failures are reported as *OpenError.
type Connector interface {
	Open(ctx context.Context, config Config) (Conn, error)
}

// Conn is one open stream.
//
// Receive returns events in delivery order. The end of the stream is
// delivered as a final event: TransportClosed when the remote side ends it
// normally, TransportFailed carrying a *RuntimeError otherwise. After that,
// or once Close was called, Receive returns ErrClosed. Sends and Receive may
// be called from different goroutines.
type Conn interface {
	SendAudio(packet audio.Packet) error
	SendToolResponse(response ToolResponse) error
	Receive(ctx context.Context) (events.Event, error)
	Close() error
}
