// Package transcript reconciles incremental and final text events into an
// ordered list of conversation entries.
package transcript

import "github.com/koscakluka/ema-voicechat/core/events"

type Role string

const (
	RoleUser      Role = events.RoleUser
	RoleAssistant Role = events.RoleAssistant
)

// Entry is a single line of the transcript. ID is stable across updates.
type Entry struct {
	ID   string
	Role Role
	Text string
}

// Update is one reconciliation step for the entry identified by ID.
type Update struct {
	ID      string
	Role    Role
	Text    string
	IsDelta bool
}

// Apply returns the transcript that results from applying update to entries.
//
// An unknown ID is appended at the end regardless of IsDelta. For a known ID
// a delta is appended to the existing text and a final value replaces it. The
// role of an existing entry is never changed. entries is not modified.
func Apply(entries []Entry, update Update) []Entry {
	next := make([]Entry, len(entries), len(entries)+1)
	copy(next, entries)

	for i := range next {
		if next[i].ID != update.ID {
			continue
		}

		if update.IsDelta {
			next[i].Text += update.Text
		} else {
			next[i].Text = update.Text
		}
		return next
	}

	return append(next, Entry{ID: update.ID, Role: update.Role, Text: update.Text})
}

// UpdateFromEvent maps a server event onto a transcript update. The second
// return value is false for events that do not affect the transcript.
func UpdateFromEvent(event events.Event) (Update, bool) {
	switch e := event.(type) {
	case events.UserTranscriptionDelta:
		return Update{ID: e.ItemID, Role: RoleUser, Text: e.Delta, IsDelta: true}, true

	case events.UserTranscriptionCompleted:
		return Update{ID: e.ItemID, Role: RoleUser, Text: e.Transcript}, true

	case events.AssistantTextDelta:
		return Update{ID: e.ItemID, Role: RoleAssistant, Text: e.Delta, IsDelta: true}, true

	case events.AssistantMessageCompleted:
		if e.Item.Role != events.RoleAssistant {
			return Update{}, false
		}
		text := e.Item.Text()
		if text == "" {
			return Update{}, false
		}
		return Update{ID: e.Item.ID, Role: RoleAssistant, Text: text}, true
	}

	return Update{}, false
}
