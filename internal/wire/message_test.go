package wire

import (
	"testing"

	"github.com/google/uuid"
)

func TestRoundTrip(t *testing.T) {
	botID := uuid.Must(uuid.NewV7())
	msg := New(botID, Command, map[string]any{"command": "move"})

	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(botID, encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.GID != msg.GID {
		t.Errorf("gid: got %s, want %s", decoded.GID, msg.GID)
	}
	if decoded.Type != msg.Type {
		t.Errorf("type: got %s, want %s", decoded.Type, msg.Type)
	}
	if decoded.Payload["command"] != "move" {
		t.Errorf("payload: got %v", decoded.Payload)
	}
	if !decoded.Datetime.Equal(msg.Datetime) {
		t.Errorf("datetime: got %v, want %v", decoded.Datetime, msg.Datetime)
	}
}

func TestDecodeGeneratesMissingGID(t *testing.T) {
	botID := uuid.Must(uuid.NewV7())
	line := []byte(`{"type":"heartbeat_request","payload":{}}` + "\n")

	decoded, err := Decode(botID, line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.GID == uuid.Nil {
		t.Error("expected a generated gid, got nil uuid")
	}
	if decoded.Datetime.IsZero() {
		t.Error("expected a defaulted datetime")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	botID := uuid.Must(uuid.NewV7())
	line := []byte(`{"type":"teleport","payload":{}}` + "\n")

	if _, err := Decode(botID, line); err == nil {
		t.Error("expected an error for unknown message type")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	botID := uuid.Must(uuid.NewV7())
	if _, err := Decode(botID, []byte("not json\n")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestResponseToRoundTrip(t *testing.T) {
	botID := uuid.Must(uuid.NewV7())
	original := New(botID, Command, map[string]any{"command": "move"})
	reply := New(botID, CommandResult, map[string]any{"status": "success"})
	reply.ResponseTo = &original.GID

	encoded, err := reply.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(botID, encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ResponseTo == nil || *decoded.ResponseTo != original.GID {
		t.Errorf("response_to: got %v, want %s", decoded.ResponseTo, original.GID)
	}
}
