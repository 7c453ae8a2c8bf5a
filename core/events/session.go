package events

import (
	"encoding/json"
	"fmt"
)

const (
	// KindSessionCreated identifies the server acknowledging a new session.
	KindSessionCreated Kind = "session.created"
	// KindSessionUpdated identifies the server acknowledging session settings.
	KindSessionUpdated Kind = "session.updated"
	// KindServerError identifies an error reported by the server.
	KindServerError Kind = "error"
)

// SessionCreated marks the completed handshake for a realtime session.
type SessionCreated struct {
	Base
	SessionID string
	Model     string
}

// SessionUpdated marks that the server accepted a session.update.
type SessionUpdated struct {
	Base
	SessionID string
}

// ServerError is an error reported by the realtime endpoint.
type ServerError struct {
	Base
	Type    string
	Code    string
	Message string
}

// NewServerError creates a server error event.
func NewServerError(errType, code, message string) ServerError {
	return ServerError{Base: NewBase(KindServerError), Type: errType, Code: code, Message: message}
}

func (e ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Unrecognized preserves an event whose type has no typed representation.
type Unrecognized struct {
	Base
	Payload json.RawMessage
}

// NewUnrecognized creates a passthrough event for an unknown wire type.
func NewUnrecognized(kind Kind, payload []byte) Unrecognized {
	return Unrecognized{Base: NewBase(kind), Payload: json.RawMessage(payload)}
}
