// Package miniaudio provides microphone and speaker devices backed by
// miniaudio through malgo.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/playback"
)

// Client owns the miniaudio context shared by the devices it creates.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Client{audioContext: audioCtx}, nil
}

// OpenCapture acquires the default microphone at the input encoding. It has
// the shape of a session capture factory.
func (c *Client) OpenCapture(_ context.Context) (capture.Device, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("audio context closed")
	}
	return newCapture(c.audioContext, audio.GetInputEncodingInfo())
}

// OpenPlayback starts the default speaker at the output encoding. It has the
// shape of a session output factory.
func (c *Client) OpenPlayback(_ context.Context) (playback.Output, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("audio context closed")
	}
	return newPlayback(c.audioContext, audio.GetOutputEncodingInfo())
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.audioContext.Uninit()
	c.audioContext.Free()
	return err
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
