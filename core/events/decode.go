package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Decode parses a single server event. Types without a typed representation
// are returned as [Unrecognized] so nothing is lost; an error is only returned
// when the payload is not a JSON object or a known type is malformed.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	kind := Kind(envelope.Type)
	switch kind {
	case KindUserTranscriptionDelta, kindUserTranscriptionDeltaShort:
		var payload struct {
			ItemID string `json:"item_id"`
			Delta  string `json:"delta"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		return UserTranscriptionDelta{Base: NewBase(kind), ItemID: payload.ItemID, Delta: payload.Delta}, nil

	case KindUserTranscriptionCompleted:
		var payload struct {
			ItemID     string `json:"item_id"`
			Transcript string `json:"transcript"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		return UserTranscriptionCompleted{Base: NewBase(kind), ItemID: payload.ItemID, Transcript: payload.Transcript}, nil

	case KindAssistantTextDelta, KindAssistantAudioTranscriptDelta:
		var payload struct {
			ItemID     string `json:"item_id"`
			ResponseID string `json:"response_id"`
			Delta      string `json:"delta"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		return AssistantTextDelta{
			Base:       NewBase(kind),
			ItemID:     payload.ItemID,
			ResponseID: payload.ResponseID,
			Delta:      payload.Delta,
		}, nil

	case KindAssistantMessageCompleted, KindOutputItemDone:
		var payload struct {
			Item MessageItem `json:"item"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		return AssistantMessageCompleted{Base: NewBase(kind), Item: payload.Item}, nil

	case KindAssistantAudioDelta:
		var payload struct {
			ItemID string `json:"item_id"`
			Delta  string `json:"delta"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		audio, err := base64.StdEncoding.DecodeString(payload.Delta)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s audio: %w", kind, err)
		}
		return AssistantAudioDelta{Base: NewBase(kind), ItemID: payload.ItemID, Audio: audio}, nil

	case KindSpeechStarted, KindSpeechStopped:
		var payload struct {
			ItemID string `json:"item_id"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		if kind == KindSpeechStarted {
			return SpeechStarted{Base: NewBase(kind), ItemID: payload.ItemID}, nil
		}
		return SpeechStopped{Base: NewBase(kind), ItemID: payload.ItemID}, nil

	case KindSessionCreated, KindSessionUpdated:
		var payload struct {
			Session struct {
				ID    string `json:"id"`
				Model string `json:"model"`
			} `json:"session"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		if kind == KindSessionCreated {
			return SessionCreated{Base: NewBase(kind), SessionID: payload.Session.ID, Model: payload.Session.Model}, nil
		}
		return SessionUpdated{Base: NewBase(kind), SessionID: payload.Session.ID}, nil

	case KindServerError:
		var payload struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := unmarshalPayload(kind, data, &payload); err != nil {
			return nil, err
		}
		return NewServerError(payload.Error.Type, payload.Error.Code, payload.Error.Message), nil
	}

	return NewUnrecognized(kind, data), nil
}

// WireType returns the type of a raw server event, or an empty kind when data
// is not a JSON object.
func WireType(data []byte) Kind {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return Kind(envelope.Type)
}

func unmarshalPayload(kind Kind, data []byte, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
	}
	return nil
}
