package openai

import (
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voicechat/core/events"
)

// readMessages decodes server events until the socket fails. The first
// session.created or error resolves handshake; later read failures are
// reported to handlers as a disconnection unless the transport is closing.
func (t *Transport) readMessages(conn *websocket.Conn, handshake chan<- error) {
	defer close(t.readDone)

	handshakeDone := false
	resolveHandshake := func(err error) {
		if !handshakeDone {
			handshakeDone = true
			handshake <- err
		}
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !handshakeDone {
				resolveHandshake(err)
				return
			}
			if t.closing.Load() {
				return
			}

			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("Failed to read realtime websocket message", "error", err)
			}
			t.connMu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.connMu.Unlock()
			_ = conn.Close()
			t.emit(events.NewTransportConnectionChanged(events.StateDisconnected, err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		event, err := events.Decode(msg)
		if err != nil {
			kind := events.WireType(msg)
			logger.Warn("Failed to decode realtime event", "type", kind, "error", err)
			event = events.NewUnrecognized(kind, msg)
		}

		switch e := event.(type) {
		case events.SessionCreated:
			resolveHandshake(nil)
		case events.ServerError:
			resolveHandshake(e)
		case events.AssistantAudioDelta:
			if t.output != nil {
				if err := t.output.SendAudio(e.Audio); err != nil {
					logger.Debug("Failed to play assistant audio", "error", err)
				}
			}
		}

		t.emit(event)
	}
}
