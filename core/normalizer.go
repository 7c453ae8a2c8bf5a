package voicechat

import "github.com/koscakluka/ema-voicechat/core/events"

// eventNormalizer turns the transport's multiplexed event stream into
// raw_event and connection_change notifications.
type eventNormalizer struct {
	emitEvent eventEmitter
	// emitConnection receives connection_change notifications. It must not
	// drop events of a session that onDisconnected has just released.
	emitConnection eventEmitter
	// onDisconnected is called when the stream reports a disconnection. It
	// returns false when the disconnection was already reported elsewhere.
	onDisconnected func(err error) bool
}

func newEventNormalizer(emitEvent, emitConnection eventEmitter, onDisconnected func(err error) bool) *eventNormalizer {
	if emitEvent == nil {
		emitEvent = noopEventEmitter
	}
	if emitConnection == nil {
		emitConnection = emitEvent
	}
	if onDisconnected == nil {
		onDisconnected = func(error) bool { return true }
	}
	return &eventNormalizer{
		emitEvent:      emitEvent,
		emitConnection: emitConnection,
		onDisconnected: onDisconnected,
	}
}

// register subscribes once, with a wildcard, to transport.
func (n *eventNormalizer) register(transport Transport) {
	transport.On(events.Wildcard, n.handle)
}

func (n *eventNormalizer) handle(event events.Event) {
	n.emitEvent(events.NewRawEvent(event))

	// Other transitions are driven by the controller itself.
	if changed, ok := event.(events.TransportConnectionChanged); ok && changed.State == events.StateDisconnected {
		if n.onDisconnected(changed.Err) {
			n.emitConnection(events.NewConnectionChanged(events.StateDisconnected))
		}
	}
}
