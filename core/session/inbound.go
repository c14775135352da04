package session

import (
	"errors"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/audio/pcm"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/tools"
	"github.com/koscakluka/ema-live/core/transport"
)

// route handles one event from the transport, in delivery order.
func (s *Session) route(c *connection, event events.Event) {
	switch event := event.(type) {
	case events.UserTranscriptSegment:
		s.assembler.AppendInput(event.Segment)
		if s.callbacks.onPartialInput != nil {
			s.callbacks.onPartialInput(s.assembler.PendingInput())
		}

	case events.AssistantTranscriptSegment:
		s.assembler.AppendOutput(event.Segment)
		if s.callbacks.onPartialOutput != nil {
			s.callbacks.onPartialOutput(s.assembler.PendingOutput())
		}

	case events.TurnComplete:
		entries := s.assembler.CompleteTurn()
		if len(entries) > 0 {
			s.transcript.Append(entries...)
			if s.callbacks.onTranscript != nil {
				s.callbacks.onTranscript(entries)
			}
		}
		s.setState(StateListening)

	case events.AssistantAudioChunk:
		s.playChunk(c, event)

	case events.ToolCallRequested:
		s.callTool(c, event)

	case events.TransportFailed:
		err := event.Err
		if err == nil {
			err = errors.New("transport failed")
		}
		s.fail(c, err)

	case events.TransportClosed:
		logger.Info("transport closed by remote", "connection_id", c.id)
		s.teardown()

	default:
		logger.Debug("ignoring transport event", "connection_id", c.id, "event", event)
	}
}

// playChunk decodes reply audio and queues it behind what is already
// playing. Chunks that cannot be decoded or scheduled are dropped.
func (s *Session) playChunk(c *connection, chunk events.AssistantAudioChunk) {
	encoding := audio.GetOutputEncodingInfo().WithMIMEType(chunk.MIMEType)
	buffer, err := pcm.DecodeBuffer(chunk.Audio, encoding)
	if err != nil {
		malformedChunksCounter.Add(c.ctx, 1)
		logger.Warn("dropping malformed audio chunk", "connection_id", c.id, "bytes", len(chunk.Audio), "error", err)
		return
	}
	if buffer.Frames() == 0 {
		return
	}

	if _, err := c.scheduler.Enqueue(buffer); err != nil {
		logger.Warn("dropping unschedulable audio chunk", "connection_id", c.id, "error", err)
		return
	}
	chunksScheduledCounter.Add(c.ctx, 1)
	s.setState(StateSpeaking)
}

// callTool runs a requested tool and queues its single response. Requests
// for unknown tools get no response.
func (s *Session) callTool(c *connection, request events.ToolCallRequested) {
	toolCallsCounter.Add(c.ctx, 1)

	response, ok := s.tools.Dispatch(c.ctx, tools.Call{
		ID:        request.ID,
		Name:      request.Name,
		Arguments: request.Arguments,
	})
	if !ok {
		logger.Warn("dropping call to unknown tool", "connection_id", c.id, "tool", request.Name, "call_id", request.ID)
		return
	}

	c.outbox.push(outbound{toolResponse: &transport.ToolResponse{
		ID:       response.ID,
		Name:     response.Name,
		Response: response.Result,
	}})
}
