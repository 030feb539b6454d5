package agent

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/wire"
)

func TestDispatchLineSkipsMalformedInput(t *testing.T) {
	botID := uuid.New()
	logger := zap.NewNop()

	var received []wire.Message
	onMessage := func(a BotAgent, msg wire.Message) {
		received = append(received, msg)
	}

	dispatchLine(nil, botID, []byte("not json"), logger, onMessage)
	if len(received) != 0 {
		t.Fatalf("expected malformed line to be dropped, got %d messages", len(received))
	}

	line, err := wire.New(botID, wire.HeartbeatResponse, nil).Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Encode appends a trailing newline; Decode expects the raw line.
	line = line[:len(line)-1]

	dispatchLine(nil, botID, line, logger, onMessage)
	if len(received) != 1 {
		t.Fatalf("expected one message to be dispatched, got %d", len(received))
	}
	if received[0].Type != wire.HeartbeatResponse {
		t.Fatalf("unexpected message type: %s", received[0].Type)
	}
}
