package events

import "encoding/base64"

// ClientEventType names an event sent from the client to the realtime endpoint.
type ClientEventType string

const (
	ClientInputAudioBufferAppend ClientEventType = "input_audio_buffer.append"
	ClientInputAudioBufferClear  ClientEventType = "input_audio_buffer.clear"
	ClientInputAudioBufferCommit ClientEventType = "input_audio_buffer.commit"
	ClientResponseCreate         ClientEventType = "response.create"
	ClientResponseCancel         ClientEventType = "response.cancel"
	ClientConversationItemCreate ClientEventType = "conversation.item.create"
	ClientSessionUpdate          ClientEventType = "session.update"
)

// ClientEvent is the wire shape of every client event. Only the fields that
// belong to Type are set.
type ClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ClientEventType `json:"type"`

	Audio   string            `json:"audio,omitempty"`
	Item    *ConversationItem `json:"item,omitempty"`
	Session *SessionConfig    `json:"session,omitempty"`
}

// ConversationItem is a client-created conversation item.
type ConversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []InputContentPart `json:"content"`
}

// InputContentPart is a single piece of client-created content.
type InputContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SessionConfig is the payload of a session.update event.
type SessionConfig struct {
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Modalities              []string             `json:"modalities,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	// TurnDetection is always sent; nil disables server-side turn detection,
	// which is what push-to-talk needs.
	TurnDetection *TurnDetection `json:"turn_detection"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

func NewInputAudioBufferAppend(pcm []byte) ClientEvent {
	return ClientEvent{Type: ClientInputAudioBufferAppend, Audio: base64.StdEncoding.EncodeToString(pcm)}
}

func NewInputAudioBufferClear() ClientEvent {
	return ClientEvent{Type: ClientInputAudioBufferClear}
}

func NewInputAudioBufferCommit() ClientEvent {
	return ClientEvent{Type: ClientInputAudioBufferCommit}
}

func NewResponseCreate() ClientEvent {
	return ClientEvent{Type: ClientResponseCreate}
}

func NewResponseCancel() ClientEvent {
	return ClientEvent{Type: ClientResponseCancel}
}

// NewUserTextMessage creates a user message carrying text input.
func NewUserTextMessage(text string) ClientEvent {
	return ClientEvent{
		Type: ClientConversationItemCreate,
		Item: &ConversationItem{
			Type:    "message",
			Role:    RoleUser,
			Content: []InputContentPart{{Type: "input_text", Text: text}},
		},
	}
}

func NewSessionUpdate(session SessionConfig) ClientEvent {
	return ClientEvent{Type: ClientSessionUpdate, Session: &session}
}
