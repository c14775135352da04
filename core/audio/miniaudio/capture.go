package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/audio/pcm"
	"github.com/koscakluka/ema-live/core/capture"
)

var _ capture.Device = (*Capture)(nil)

// Capture is a PCM16 microphone. Samples are handed over as floats in the
// order the device produces them.
type Capture struct {
	device   *malgo.Device
	encoding audio.EncodingInfo

	onSamples func(samples []float32)

	mu sync.Mutex
}

func newCapture(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) (*Capture, error) {
	c := &Capture{encoding: encoding}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * encoding.Channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(encoding.Channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 100 * 3) // 30ms
	config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.deliver(pInput[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return c, nil
}

func (c *Capture) EncodingInfo() audio.EncodingInfo { return c.encoding }

func (c *Capture) Start(_ context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.onSamples = onSamples
	if err := c.device.Start(); err != nil {
		c.onSamples = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Stop detaches onSamples before stopping the device, which may still be
// running a callback.
func (c *Capture) Stop() error {
	c.mu.Lock()
	c.onSamples = nil
	device := c.device
	c.mu.Unlock()

	if device == nil || !device.IsStarted() {
		return nil
	}
	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *Capture) Close() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.onSamples = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	return nil
}

func (c *Capture) deliver(data []byte) {
	c.mu.Lock()
	onSamples := c.onSamples
	c.mu.Unlock()
	if onSamples == nil {
		return
	}

	channels, err := pcm.DecodeToSamples(data, c.encoding.Channels)
	if err != nil {
		logger.Warn("dropping captured audio", "error", err)
		return
	}
	onSamples(audio.Buffer{Channels: channels, SampleRate: c.encoding.SampleRate}.Mono())
}
