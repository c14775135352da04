package audio

import "time"

// Frame is a block of mono float samples in [-1, 1] as delivered by a
// capture device. A frame is consumed exactly once.
type Frame []float32

// Buffer is decoded audio ready for playback, one sample slice per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of samples per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b Buffer) Duration() time.Duration {
	return EncodingInfo{SampleRate: b.SampleRate, Channels: len(b.Channels)}.Duration(b.Frames())
}

// Mono folds all channels into one by averaging. The returned slice aliases
// the buffer when it already has a single channel.
func (b Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}

	mono := make([]float32, b.Frames())
	scale := 1 / float32(len(b.Channels))
	for _, channel := range b.Channels {
		for i := range mono {
			if i < len(channel) {
				mono[i] += channel[i] * scale
			}
		}
	}
	return mono
}

// Packet is one transport-ready unit of outbound audio. It is sent
// fire-and-forget.
type Packet struct {
	Data     []byte
	MIMEType string
}
