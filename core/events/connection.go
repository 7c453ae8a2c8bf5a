package events

// ConnectionState is the lifecycle state of the active realtime session.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

const (
	// KindTransportConnectionChanged identifies a connection status reported by
	// the transport itself, e.g. when the socket drops.
	KindTransportConnectionChanged Kind = "transport.connection_change"
	// KindConnectionChanged identifies a normalized connection state change.
	KindConnectionChanged Kind = "connection_change"
	// KindRawEvent identifies a passthrough of any transport event.
	KindRawEvent Kind = "raw_event"
)

// TransportConnectionChanged is emitted by a transport when its underlying
// connection changes state.
type TransportConnectionChanged struct {
	Base
	State ConnectionState
	// Err is the read or close error that caused a disconnection, if any.
	Err error
}

// NewTransportConnectionChanged creates a transport connection status event.
func NewTransportConnectionChanged(state ConnectionState, err error) TransportConnectionChanged {
	return TransportConnectionChanged{Base: NewBase(KindTransportConnectionChanged), State: state, Err: err}
}

// ConnectionChanged carries a normalized connection state.
type ConnectionChanged struct {
	Base
	State ConnectionState
}

// NewConnectionChanged creates a normalized connection state event.
func NewConnectionChanged(state ConnectionState) ConnectionChanged {
	return ConnectionChanged{Base: NewBase(KindConnectionChanged), State: state}
}

// RawEvent wraps a transport event unchanged for diagnostics.
type RawEvent struct {
	Base
	Event Event
}

// NewRawEvent wraps event for passthrough.
func NewRawEvent(event Event) RawEvent {
	return RawEvent{Base: NewBase(KindRawEvent), Event: event}
}
