// Package events defines the typed inbound event contract delivered by a
// transport to the session.
//
// Events are consumed once, in the order the transport delivered them.
//
//   - UserTranscriptSegment (user_input.transcript_segment): append-only
//     fragment of the transcription of the user's speech.
//   - AssistantTranscriptSegment (assistant_response.transcript_segment):
//     append-only fragment of the transcription of the engine's speech.
//   - TurnComplete (turn_state.completed): the engine closed the current
//     turn.
//   - ToolCallRequested (tool_call.requested): the engine asks the host to
//     run a declared tool.
//   - AssistantAudioChunk (assistant_speech.chunk): PCM16 audio of the
//     engine's reply.
//   - TransportFailed (transport.failed): the stream failed mid-session.
//   - TransportClosed (transport.closed): the remote side ended the stream.
package events
