package voicechat

import "github.com/koscakluka/ema-voicechat/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(callbacks controllerCallbacks) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.ConnectionChanged:
			if callbacks.onConnectionChange != nil {
				callbacks.onConnectionChange(typedEvent.State)
			}
		case events.RawEvent:
			if callbacks.onRawEvent != nil {
				callbacks.onRawEvent(typedEvent.Event)
			}
		}
	}
}
