package events

const (
	// KindUserTranscriptionDelta identifies a partial user speech transcription.
	KindUserTranscriptionDelta Kind = "conversation.item.input_audio_transcription.delta"
	// KindUserTranscriptionCompleted identifies a finalized user speech
	// transcription.
	KindUserTranscriptionCompleted Kind = "conversation.item.input_audio_transcription.completed"
	// KindSpeechStarted identifies server-side detection of user speech.
	KindSpeechStarted Kind = "input_audio_buffer.speech_started"
	// KindSpeechStopped identifies server-side detection of the end of user speech.
	KindSpeechStopped Kind = "input_audio_buffer.speech_stopped"

	// kindUserTranscriptionDeltaShort is the shorter name some endpoints use
	// for partial user transcriptions.
	kindUserTranscriptionDeltaShort Kind = "conversation.input_audio_transcription.delta"
)

// UserTranscriptionDelta carries an incremental fragment of the user's speech
// transcription.
type UserTranscriptionDelta struct {
	Base
	ItemID string
	Delta  string
}

// NewUserTranscriptionDelta creates a partial user transcription event.
func NewUserTranscriptionDelta(itemID, delta string) UserTranscriptionDelta {
	return UserTranscriptionDelta{Base: NewBase(KindUserTranscriptionDelta), ItemID: itemID, Delta: delta}
}

// UserTranscriptionCompleted carries the full transcription of a user item.
type UserTranscriptionCompleted struct {
	Base
	ItemID     string
	Transcript string
}

// NewUserTranscriptionCompleted creates a finalized user transcription event.
func NewUserTranscriptionCompleted(itemID, transcript string) UserTranscriptionCompleted {
	return UserTranscriptionCompleted{Base: NewBase(KindUserTranscriptionCompleted), ItemID: itemID, Transcript: transcript}
}

// SpeechStarted marks that the server detected the user started speaking.
type SpeechStarted struct {
	Base
	ItemID string
}

// SpeechStopped marks that the server detected the user stopped speaking.
type SpeechStopped struct {
	Base
	ItemID string
}
