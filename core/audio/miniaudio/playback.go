package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/playback"
)

var _ playback.Output = (*Playback)(nil)

// Playback is a speaker whose clock is the frames it has pulled from its
// mixer.
type Playback struct {
	*playback.Mixer

	device  *malgo.Device
	scratch []float32

	mu sync.Mutex
}

func newPlayback(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) (*Playback, error) {
	p := &Playback{Mixer: playback.NewMixer(encoding.SampleRate)}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // 20ms
	config.Periods = 4

	var err error
	if p.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: p.render,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := p.device.Start(); err != nil {
		p.device.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return p, nil
}

func (p *Playback) render(pOutput, _ []byte, frameCount uint32) {
	n := int(frameCount)
	if len(pOutput) < n*4 {
		n = len(pOutput) / 4
	}
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}
	samples := p.scratch[:n]

	p.Mixer.Render(samples)
	putFloat32s(pOutput, samples)
}

// Close stops the device and ends every voice still sounding.
func (p *Playback) Close() error {
	p.mu.Lock()
	if p.device != nil {
		if err := p.device.Stop(); err != nil {
			logger.Warn("failed to stop playback device", "error", err)
		}
		p.device.Uninit()
		p.device = nil
	}
	p.mu.Unlock()

	return p.Mixer.Close()
}

// putFloat32s writes samples as little-endian float32, the layout of
// malgo.FormatF32.
func putFloat32s(out []byte, samples []float32) {
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(sample))
	}
}
