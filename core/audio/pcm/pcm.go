// Package pcm converts between float samples and 16-bit little-endian PCM,
// and between raw PCM bytes and the text encoding used on the wire.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/koscakluka/ema-live/core/audio"
)

const scale = 32768

var ErrMalformedAudio = errors.New("malformed audio")

// EncodeFrame packs samples as 16-bit little-endian PCM.
//
// Samples are scaled by 32768 and truncated toward zero. There is no
// clamping: values outside [-1, 1] wrap at the bit level, so 1.0 encodes as
// -32768. Callers keep samples in range.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(sample)))
	}
	return out
}

func toInt16(sample float32) int16 {
	v := float64(sample) * scale
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	// Reduce modulo 2^16 first so the conversion stays defined for any input.
	v = math.Mod(math.Trunc(v), 1<<16)
	return int16(int32(v))
}

// DecodeToSamples de-interleaves 16-bit little-endian PCM into one slice per
// channel, each sample divided by 32768.
func DecodeToSamples(data []byte, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrMalformedAudio, channels)
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedAudio, len(data), frameBytes)
	}

	frameCount := len(data) / frameBytes
	out := make([][]float32, channels)
	for channel := range out {
		out[channel] = make([]float32, frameCount)
	}
	for i := range frameCount {
		for channel := range channels {
			offset := i*frameBytes + channel*2
			sample := int16(binary.LittleEndian.Uint16(data[offset:]))
			out[channel][i] = float32(sample) / scale
		}
	}
	return out, nil
}

// DecodeBuffer decodes PCM bytes into a playable buffer of the given
// encoding.
func DecodeBuffer(data []byte, encoding audio.EncodingInfo) (audio.Buffer, error) {
	channels, err := DecodeToSamples(data, encoding.Channels)
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.Buffer{Channels: channels, SampleRate: encoding.SampleRate}, nil
}

// ToTransportText encodes raw bytes as standard padded base64.
func ToTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromTransportText reverses ToTransportText.
func FromTransportText(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAudio, err)
	}
	return data, nil
}
