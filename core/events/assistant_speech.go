package events

// KindAssistantAudioChunk identifies a chunk of reply audio.
const KindAssistantAudioChunk Kind = "assistant_speech.chunk"

// AssistantAudioChunk carries raw PCM16 little-endian reply audio, already
// decoded from the transport text encoding.
type AssistantAudioChunk struct {
	Base
	Audio    []byte
	MIMEType string
}

func NewAssistantAudioChunk(audio []byte, mimeType string) AssistantAudioChunk {
	return AssistantAudioChunk{Base: newBase(KindAssistantAudioChunk), Audio: audio, MIMEType: mimeType}
}
