// Package capture turns a live microphone stream into fixed-size, encoded
// packets ready for the network.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/audio/pcm"
)

// DefaultFrameSize is the number of samples per outbound packet.
const DefaultFrameSize = 4096

// ErrMicrophonePermission reports that the capture device could not be
// acquired. It is fatal to the current start attempt.
var ErrMicrophonePermission = errors.New("microphone permission denied")

// Device is a microphone. Devices may deliver chunks of any size; the
// pipeline re-blocks them into fixed frames.
type Device interface {
	EncodingInfo() audio.EncodingInfo
	Start(ctx context.Context, onSamples func(samples []float32)) error
	Stop() error
	Close() error
}

type Option func(*Pipeline)

// WithFrameSize overrides DefaultFrameSize. Non-positive sizes are ignored.
func WithFrameSize(size int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.frameSize = size
		}
	}
}

// Pipeline pulls samples from a Device, frames them, encodes each frame as
// PCM16 and hands the resulting packet to a sink.
type Pipeline struct {
	device    Device
	frameSize int
	mimeType  string

	mu      sync.Mutex
	framer  *framer
	sink    func(audio.Packet)
	running bool
}

func NewPipeline(device Device, opts ...Option) *Pipeline {
	p := &Pipeline{device: device, frameSize: DefaultFrameSize}
	for _, opt := range opts {
		opt(p)
	}
	p.mimeType = audio.GetInputEncodingInfo().MIMEType()
	if device != nil {
		if encoding := device.EncodingInfo(); !encoding.IsZero() {
			p.mimeType = encoding.MIMEType()
		}
	}
	return p
}

// Start begins delivering packets to sink. Starting a running pipeline is a
// no-op.
func (p *Pipeline) Start(ctx context.Context, sink func(audio.Packet)) (err error) {
	ctx, span := tracer.Start(ctx, "start capture")
	defer span.End()
	span.SetAttributes(attribute.Int("frame_size", p.frameSize), attribute.String("mime_type", p.mimeType))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if p.device == nil {
		return fmt.Errorf("capture device not configured")
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.framer = newFramer(p.frameSize)
	p.sink = sink
	p.running = true
	p.mu.Unlock()

	if err := p.device.Start(ctx, p.onSamples); err != nil {
		p.mu.Lock()
		p.running = false
		p.sink = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	logger.Debug("capture started", "frame_size", p.frameSize, "mime_type", p.mimeType)
	return nil
}

// Stop halts delivery. Once Stop returns the sink is never called again and
// any partially filled frame is discarded. Stopping twice is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.sink = nil
	if buffered := len(p.framer.pending); buffered > 0 {
		logger.Debug("discarding partial capture frame", "samples", buffered)
	}
	p.framer = nil
	p.mu.Unlock()

	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) onSamples(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.framer.push(samples, func(frame audio.Frame) {
		p.sink(audio.Packet{Data: pcm.EncodeFrame(frame), MIMEType: p.mimeType})
	})
}
