package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/transport"
)

type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type conn struct {
	session liveSession

	// pending holds events already translated from the last server message.
	// pending and ended are only touched by the receiving goroutine.
	pending []events.Event
	ended   bool

	mu     sync.Mutex
	closed bool
}

func newConn(session liveSession) *conn {
	return &conn{session: session}
}

func (c *conn) SendAudio(packet audio.Packet) error {
	if c.isClosed() {
		return transport.ErrClosed
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: packet.Data, MIMEType: packet.MIMEType},
	})
}

func (c *conn) SendToolResponse(response transport.ToolResponse) error {
	if c.isClosed() {
		return transport.ErrClosed
	}
	return c.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       response.ID,
			Name:     response.Name,
			Response: response.Response,
		}},
	})
}

func (c *conn) Receive(ctx context.Context) (events.Event, error) {
	for len(c.pending) == 0 {
		if c.ended {
			return nil, transport.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		message, err := c.session.Receive()
		if err != nil {
			if c.isClosed() {
				return nil, transport.ErrClosed
			}
			c.ended = true
			if isNormalClosure(err) {
				return events.NewTransportClosed(), nil
			}
			return events.NewTransportFailed(transport.NewRuntimeError(fmt.Errorf("failed to receive live message: %w", err))), nil
		}
		c.pending = translate(message)
	}

	event := c.pending[0]
	c.pending = c.pending[1:]
	return event, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.session.Close()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}

// translate splits one server message into events. Tool calls come first,
// then transcription, then the turn boundary and finally reply audio.
func translate(message *genai.LiveServerMessage) []events.Event {
	if message == nil {
		return nil
	}

	var translated []events.Event
	if message.ToolCall != nil {
		for _, call := range message.ToolCall.FunctionCalls {
			if call == nil {
				continue
			}
			translated = append(translated, events.NewToolCallRequested(call.ID, call.Name, call.Args))
		}
	}

	content := message.ServerContent
	if content == nil {
		return translated
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		translated = append(translated, events.NewAssistantTranscriptSegment(content.OutputTranscription.Text))
	}
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		translated = append(translated, events.NewUserTranscriptSegment(content.InputTranscription.Text))
	}
	if content.TurnComplete {
		translated = append(translated, events.NewTurnComplete())
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			translated = append(translated, events.NewAssistantAudioChunk(part.InlineData.Data, part.InlineData.MIMEType))
		}
	}
	return translated
}
