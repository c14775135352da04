// Package portaudio provides microphone and speaker devices backed by
// PortAudio blocking streams.
package portaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/playback"
)

// DefaultBufferSize is the number of frames moved per blocking read or
// write.
const DefaultBufferSize = 480

type Client struct {
	bufferSize int
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) OpenCapture(_ context.Context) (capture.Device, error) {
	encoding := audio.GetInputEncodingInfo()
	in := make([]float32, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(encoding.SampleRate), c.bufferSize, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}
	return &Capture{stream: stream, encoding: encoding, in: in}, nil
}

func (c *Client) OpenPlayback(_ context.Context) (playback.Output, error) {
	encoding := audio.GetOutputEncodingInfo()
	out := make([]float32, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(encoding.SampleRate), c.bufferSize, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}

	p := &Playback{
		Mixer:  playback.NewMixer(encoding.SampleRate),
		stream: stream,
		out:    out,
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}
	go p.pump()
	return p, nil
}

func (c *Client) Close() error {
	return portaudio.Terminate()
}

var _ capture.Device = (*Capture)(nil)

type Capture struct {
	stream   *portaudio.Stream
	encoding audio.EncodingInfo
	in       []float32

	mu      sync.Mutex
	quit    chan struct{}
	done    chan struct{}
	started bool
}

func (c *Capture) EncodingInfo() audio.EncodingInfo { return c.encoding }

func (c *Capture) Start(ctx context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio input stream: %w", err)
	}
	c.started = true
	c.quit = make(chan struct{})
	c.done = make(chan struct{})

	go func(quit, done chan struct{}) {
		defer close(done)
		var backoff readBackoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			default:
			}

			if err := c.stream.Read(); err != nil {
				delay := backoff.next()
				if backoff.shouldLog() {
					logger.Warn("failed to read from PortAudio stream", "error", err, "failures", backoff.failures, "retry_in", delay)
				}
				select {
				case <-ctx.Done():
					return
				case <-quit:
					return
				case <-time.After(delay):
				}
				continue
			}
			backoff.reset()
			samples := make([]float32, len(c.in))
			copy(samples, c.in)
			onSamples(samples)
		}
	}(c.quit, c.done)
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	close(c.quit)
	<-c.done
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop PortAudio input stream: %w", err)
	}
	return nil
}

func (c *Capture) Close() error {
	if err := c.Stop(); err != nil {
		logger.Warn("failed to stop capture before close", "error", err)
	}
	return c.stream.Close()
}

var _ playback.Output = (*Playback)(nil)

// Playback writes its mixer to a blocking output stream; the stream's pace
// drives the mixer clock.
type Playback struct {
	*playback.Mixer

	stream *portaudio.Stream
	out    []float32

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (p *Playback) pump() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		default:
		}

		p.Mixer.Render(p.out)
		if err := p.stream.Write(); err != nil {
			logger.Debug("PortAudio output underflow", "error", err)
		}
	}
}

func (p *Playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.quit)
		<-p.done
		if stopErr := p.stream.Stop(); stopErr != nil {
			logger.Warn("failed to stop PortAudio output stream", "error", stopErr)
		}
		err = p.stream.Close()
		if mixerErr := p.Mixer.Close(); mixerErr != nil && err == nil {
			err = mixerErr
		}
	})
	return err
}
