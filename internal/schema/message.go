package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Outbound message types written to the feed.
const (
	MessageTypeRequestUpdate = "request_update"
	MessageTypePing          = "ping"
)

// Inbound message type discriminators accepted from the feed.
const (
	MessageTypeInitialState    = "initial_state"
	MessageTypeEvolutionUpdate = "evolution_update"
	MessageTypePong            = "pong"
)

// Message is a decoded feed frame. The concrete types below are the only
// implementations, so a type switch over Message covers every inbound kind.
type Message interface {
	messageKind() string
}

// InitialState carries the first full telemetry payload after a connect.
type InitialState struct {
	Data map[string]any
}

// EvolutionUpdate carries an incremental telemetry payload.
type EvolutionUpdate struct {
	Data map[string]any
}

// Pong is the server reply to a heartbeat ping. No timeout is enforced on it.
type Pong struct{}

// Unknown preserves frames whose type discriminator is not recognised.
// Dispatch ignores them without touching connection state.
type Unknown struct {
	Type string
}

func (InitialState) messageKind() string    { return MessageTypeInitialState }
func (EvolutionUpdate) messageKind() string { return MessageTypeEvolutionUpdate }
func (Pong) messageKind() string            { return MessageTypePong }
func (u Unknown) messageKind() string       { return u.Type }

type messageEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeMessage parses a raw feed frame into its tagged message form.
// A frame that is not valid JSON or lacks a type discriminator is an error;
// a frame with an unrecognised type decodes into Unknown.
func DecodeMessage(frame []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode feed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("feed frame missing type discriminator")
	}
	switch env.Type {
	case MessageTypeInitialState:
		data, err := decodePayload(env.Data)
		if err != nil {
			return nil, err
		}
		return InitialState{Data: data}, nil
	case MessageTypeEvolutionUpdate:
		data, err := decodePayload(env.Data)
		if err != nil {
			return nil, err
		}
		return EvolutionUpdate{Data: data}, nil
	case MessageTypePong:
		return Pong{}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}
	return payload, nil
}

// EncodeControl renders a client control message for the feed.
func EncodeControl(messageType string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: messageType})
}
