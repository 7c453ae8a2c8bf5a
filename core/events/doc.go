// Package events defines the typed event contract between a realtime
// transport, the session controller and its receivers.
//
// Event kinds fall into three groups:
//
//   - server events, decoded from the wire by [Decode]; their Kind is the
//     server's "type" value verbatim
//   - transport events, emitted by a transport about itself
//     (transport.connection_change)
//   - normalized notifications, emitted by the session controller
//     (connection_change, raw_event)
//
// Semantics used across the package:
//
//   - Delta: an incremental text fragment to append to an in-progress item.
//   - Completed/Done: the final value of an item, superseding prior deltas.
//
// Server events
//
//   - UserTranscriptionDelta (conversation.item.input_audio_transcription.delta):
//     partial user speech transcription.
//   - UserTranscriptionCompleted
//     (conversation.item.input_audio_transcription.completed): finalized user
//     speech transcription.
//   - AssistantTextDelta (response.text.delta, response.audio_transcript.delta):
//     partial assistant text.
//   - AssistantMessageCompleted (conversation.item.message.completed,
//     response.output_item.done): finalized conversation message.
//   - AssistantAudioDelta (response.audio.delta): assistant speech audio.
//   - SpeechStarted, SpeechStopped (input_audio_buffer.*): server VAD.
//   - SessionCreated, SessionUpdated (session.*): session lifecycle.
//   - ServerError (error): error reported by the endpoint.
//   - Unrecognized: anything else, with the raw payload preserved.
//
// Client events are built with the New* constructors in client.go and sent
// through the transport as [ClientEvent] values.
package events
