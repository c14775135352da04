package bidi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/audio/pcm"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/transport"
)

const closeWriteTimeout = time.Second

type conn struct {
	ws *websocket.Conn

	// pending and ended are only touched by the receiving goroutine.
	pending []events.Event
	ended   bool

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

func (c *conn) SendAudio(packet audio.Packet) error {
	return c.send(clientMessage{RealtimeInput: &realtimeInput{Audio: &blob{
		MIMEType: packet.MIMEType,
		Data:     pcm.ToTransportText(packet.Data),
	}}})
}

func (c *conn) SendToolResponse(response transport.ToolResponse) error {
	return c.send(clientMessage{ToolResponse: &toolResponse{FunctionResponses: []functionResponse{{
		ID:       response.ID,
		Name:     response.Name,
		Response: response.Response,
	}}}})
}

func (c *conn) send(message clientMessage) error {
	if c.isClosed() {
		return transport.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(message); err != nil {
		if c.isClosed() {
			return transport.ErrClosed
		}
		return fmt.Errorf("failed to write websocket message: %w", err)
	}
	return nil
}

func (c *conn) Receive(ctx context.Context) (events.Event, error) {
	for len(c.pending) == 0 {
		if c.ended {
			return nil, transport.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil, transport.ErrClosed
			}
			c.ended = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return events.NewTransportClosed(), nil
			}
			return events.NewTransportFailed(transport.NewRuntimeError(fmt.Errorf("failed to read websocket message: %w", err))), nil
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		var message serverMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Warn("dropping unparseable server message", "error", err)
			continue
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

	// The close frame is best effort, the socket is closed regardless.
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout))
	return c.ws.Close()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// translate splits one server message into events: tool calls, output then
// input transcription, the turn boundary and finally reply audio.
func translate(message serverMessage) []events.Event {
	var translated []events.Event
	if message.ToolCall != nil {
		for _, call := range message.ToolCall.FunctionCalls {
			translated = append(translated, events.NewToolCallRequested(call.ID, call.Name, call.Args))
		}
	}
	if message.GoAway != nil {
		logger.Info("server announced disconnect")
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
		for _, p := range content.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := pcm.FromTransportText(p.InlineData.Data)
			if err != nil {
				logger.Warn("dropping undecodable audio part", "error", err)
				continue
			}
			translated = append(translated, events.NewAssistantAudioChunk(data, p.InlineData.MIMEType))
		}
	}
	return translated
}
