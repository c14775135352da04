package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/transport"
)

// connection is everything that lives for one conversation. It is owned by
// the event loop; only the sender and receive workers read stream and
// outbox concurrently.
type connection struct {
	id         string
	generation uint64

	ctx      context.Context
	cancel   context.CancelFunc
	hookDone chan struct{}

	stream     transport.Conn
	microphone capture.Device
	pipeline   *capture.Pipeline
	output     playback.Output
	scheduler  *playback.Scheduler
	outbox     *mailbox[outbound]

	released bool
}

type outbound struct {
	packet       audio.Packet
	toolResponse *transport.ToolResponse
}

// release frees every resource the connection acquired. All steps run even
// when an earlier one fails; calling it again is a no-op.
func (c *connection) release() error {
	if c.released {
		return nil
	}
	c.released = true

	c.cancel()
	if c.hookDone != nil {
		close(c.hookDone)
	}

	var errs error
	if c.pipeline != nil {
		errs = errors.Join(errs, c.pipeline.Stop())
	}
	if c.microphone != nil {
		if err := c.microphone.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close microphone: %w", err))
		}
	}
	if c.outbox != nil {
		c.outbox.close()
	}
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}
	if c.scheduler != nil {
		c.scheduler.StopAll()
	}
	if c.output != nil {
		if err := c.output.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close audio output: %w", err))
		}
	}
	return errs
}

// send drains the outbox until the connection is released. Sends are fire
// and forget: failures are logged and the next packet is tried.
func (c *connection) send(ctx context.Context) error {
	for {
		item, ok := c.outbox.pop()
		if !ok {
			return nil
		}

		var err error
		if item.toolResponse != nil {
			err = c.stream.SendToolResponse(*item.toolResponse)
		} else {
			err = c.stream.SendAudio(item.packet)
		}
		if err != nil && !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
			logger.Warn("failed to send to transport", "connection_id", c.id, "error", err)
		}
	}
}

// receive forwards transport events to post until the stream ends, either
// with a closing event or with an error.
func (c *connection) receive(ctx context.Context, post func(message) bool) error {
	for {
		event, err := c.stream.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				post(closedByRemote{generation: c.generation})
				return nil
			}
			return err
		}
		if !post(inboundEvent{generation: c.generation, event: event}) {
			return nil
		}
		switch event.(type) {
		case events.TransportClosed, events.TransportFailed:
			return nil
		}
	}
}

// connectResult carries what a connect attempt acquired back to the loop.
type connectResult struct {
	generation uint64
	stream     transport.Conn
	microphone capture.Device
	output     playback.Output
	err        error
}

// release frees resources of a result the loop no longer wants.
func (r connectResult) release() {
	if r.microphone != nil {
		_ = r.microphone.Close()
	}
	if r.stream != nil {
		_ = r.stream.Close()
	}
	if r.output != nil {
		_ = r.output.Close()
	}
}
