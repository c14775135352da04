package events

const (
	KindUserTranscriptSegment      Kind = "user_input.transcript_segment"
	KindAssistantTranscriptSegment Kind = "assistant_response.transcript_segment"
)

type UserTranscriptSegment struct {
	Base
	Segment string
}

func NewUserTranscriptSegment(segment string) UserTranscriptSegment {
	return UserTranscriptSegment{Base: newBase(KindUserTranscriptSegment), Segment: segment}
}

type AssistantTranscriptSegment struct {
	Base
	Segment string
}

func NewAssistantTranscriptSegment(segment string) AssistantTranscriptSegment {
	return AssistantTranscriptSegment{Base: newBase(KindAssistantTranscriptSegment), Segment: segment}
}
