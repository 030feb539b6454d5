package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one line of the wire protocol: a GID-tagged, typed envelope
// with an arbitrary JSON payload. It is the unit of exchange between the
// engine and a bot's child process, and the unit persisted by the message
// dispatcher (internal/dispatch) for every inbound message; outbound
// messages are not persisted.
type Message struct {
	GID        uuid.UUID      `json:"gid"`
	BotID      uuid.UUID      `json:"bot_id"`
	Type       MessageType    `json:"type"`
	Datetime   time.Time      `json:"datetime"`
	ResponseTo *uuid.UUID     `json:"response_to,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// wireEnvelope is the literal JSON shape on the wire. Datetime is carried as
// an RFC 3339 string with timezone; Encode writes UTC times with a "Z"
// suffix, and Decode also accepts numeric offsets such as "+00:00".
type wireEnvelope struct {
	GID        string         `json:"gid,omitempty"`
	BotID      string         `json:"bot_id,omitempty"`
	Type       string         `json:"type"`
	Datetime   string         `json:"datetime,omitempty"`
	ResponseTo *string        `json:"response_to,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// New builds a Message ready to send: a fresh GID, the current time, and the
// given type/payload. ResponseTo is left nil — set it explicitly for replies.
func New(botID uuid.UUID, t MessageType, payload map[string]any) Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return Message{
		GID:      uuid.Must(uuid.NewV7()),
		BotID:    botID,
		Type:     t,
		Datetime: time.Now().UTC(),
		Payload:  payload,
	}
}

// Decode parses a single wire line into a Message. A missing gid is
// generated, a missing datetime defaults to the current time, and an
// unrecognized or missing type is rejected — callers must log and skip the
// line rather than let a malformed line reach the dispatcher.
func Decode(botID uuid.UUID, line []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}

	if !MessageType(env.Type).Valid() {
		return Message{}, fmt.Errorf("wire: decode: unknown message type %q", env.Type)
	}

	gid := uuid.Must(uuid.NewV7())
	if env.GID != "" {
		parsed, err := uuid.Parse(env.GID)
		if err != nil {
			return Message{}, fmt.Errorf("wire: decode: invalid gid: %w", err)
		}
		gid = parsed
	}

	dt := time.Now().UTC()
	if env.Datetime != "" {
		parsed, err := time.Parse(time.RFC3339Nano, env.Datetime)
		if err != nil {
			return Message{}, fmt.Errorf("wire: decode: invalid datetime: %w", err)
		}
		dt = parsed
	}

	var responseTo *uuid.UUID
	if env.ResponseTo != nil && *env.ResponseTo != "" {
		parsed, err := uuid.Parse(*env.ResponseTo)
		if err != nil {
			return Message{}, fmt.Errorf("wire: decode: invalid response_to: %w", err)
		}
		responseTo = &parsed
	}

	payload := env.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	return Message{
		GID:        gid,
		BotID:      botID,
		Type:       MessageType(env.Type),
		Datetime:   dt,
		ResponseTo: responseTo,
		Payload:    payload,
	}, nil
}

// Encode serializes m as canonical JSON followed by a single newline.
// Payloads must not contain unescaped newlines; encoding/json already
// escapes them, so this holds for any Go value reachable through Payload.
func (m Message) Encode() ([]byte, error) {
	env := wireEnvelope{
		GID:      m.GID.String(),
		BotID:    m.BotID.String(),
		Type:     string(m.Type),
		Datetime: m.Datetime.Format(time.RFC3339Nano),
		Payload:  m.Payload,
	}
	if m.ResponseTo != nil {
		s := m.ResponseTo.String()
		env.ResponseTo = &s
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return append(data, '\n'), nil
}
