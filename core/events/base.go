package events

import "time"

// Kind names an event. Events decoded from the wire use the server's "type"
// value verbatim so passthrough consumers see the original name.
type Kind string

// Wildcard is the subscription name that receives every transport event.
const Wildcard = "*"

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind       Kind
	receivedAt time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, receivedAt: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.receivedAt
}
