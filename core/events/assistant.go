package events

import "strings"

const (
	// KindAssistantTextDelta identifies a partial assistant text response.
	KindAssistantTextDelta Kind = "response.text.delta"
	// KindAssistantAudioTranscriptDelta identifies a partial transcript of the
	// assistant's spoken response.
	KindAssistantAudioTranscriptDelta Kind = "response.audio_transcript.delta"
	// KindAssistantMessageCompleted identifies a finalized conversation message.
	KindAssistantMessageCompleted Kind = "conversation.item.message.completed"
	// KindOutputItemDone identifies a finalized response output item.
	KindOutputItemDone Kind = "response.output_item.done"
	// KindAssistantAudioDelta identifies a chunk of assistant speech audio.
	KindAssistantAudioDelta Kind = "response.audio.delta"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AssistantTextDelta carries an incremental fragment of assistant text.
type AssistantTextDelta struct {
	Base
	ItemID     string
	ResponseID string
	Delta      string
}

// NewAssistantTextDelta creates a partial assistant text event.
func NewAssistantTextDelta(itemID, delta string) AssistantTextDelta {
	return AssistantTextDelta{Base: NewBase(KindAssistantTextDelta), ItemID: itemID, Delta: delta}
}

// ContentPart is a single piece of message content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// MessageItem is a conversation item as reported by the server.
type MessageItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// Text joins the text of all content parts and trims the result. Parts that
// only carry an audio transcript contribute that transcript instead.
func (m MessageItem) Text() string {
	var builder strings.Builder
	for _, part := range m.Content {
		if part.Text != "" {
			builder.WriteString(part.Text)
		} else {
			builder.WriteString(part.Transcript)
		}
	}
	return strings.TrimSpace(builder.String())
}

// AssistantMessageCompleted carries a finalized conversation message. Despite
// the name the item role is whatever the server reported; consumers filter
// on Item.Role.
type AssistantMessageCompleted struct {
	Base
	Item MessageItem
}

// NewAssistantMessageCompleted creates a finalized message event.
func NewAssistantMessageCompleted(item MessageItem) AssistantMessageCompleted {
	return AssistantMessageCompleted{Base: NewBase(KindAssistantMessageCompleted), Item: item}
}

// AssistantAudioDelta carries decoded assistant speech audio.
type AssistantAudioDelta struct {
	Base
	ItemID string
	Audio  []byte
}

// NewAssistantAudioDelta creates an assistant audio chunk event.
func NewAssistantAudioDelta(itemID string, audio []byte) AssistantAudioDelta {
	return AssistantAudioDelta{Base: NewBase(KindAssistantAudioDelta), ItemID: itemID, Audio: audio}
}
