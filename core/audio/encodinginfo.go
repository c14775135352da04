package audio

import (
	"fmt"
	"mime"
	"strconv"
	"time"
)

const (
	// InputSampleRate is the rate the capture side streams to the engine.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of the audio the engine returns.
	OutputSampleRate = 24000
	DefaultChannels  = 1
)

// GetInputEncodingInfo describes the microphone stream sent upstream.
func GetInputEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: InputSampleRate, Channels: DefaultChannels, Format: EncodingLinear16}
}

// GetOutputEncodingInfo describes the audio received from the engine.
func GetOutputEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: OutputSampleRate, Channels: DefaultChannels, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Channels == 0 || e.Format.Name() == ""
}

// MIMEType is the media type used to label packets of this encoding on the
// wire, e.g. "audio/pcm;rate=16000".
func (e EncodingInfo) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", e.SampleRate)
}

// WithMIMEType returns e with the sample rate announced by a little-endian
// PCM media type such as "audio/pcm;rate=24000". Other types, including the
// big-endian audio/L16, and types without a usable rate leave e unchanged.
func (e EncodingInfo) WithMIMEType(mimeType string) EncodingInfo {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil || mediaType != "audio/pcm" {
		return e
	}
	if rate, err := strconv.Atoi(params["rate"]); err == nil && rate > 0 {
		e.SampleRate = rate
	}
	return e
}

// Duration returns how long frameCount frames (samples per channel) play for.
func (e EncodingInfo) Duration(frameCount int) time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frameCount) * time.Second / time.Duration(e.SampleRate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

// EncodingLinear16 is signed 16-bit little-endian PCM, the only format
// exchanged with the engine.
const EncodingLinear16 encodingFormat = "linear16"
