// Package dispatch implements MessageDispatcher, the single entry point for
// every message an agent emits on stdout/stderr. It persists the message,
// then routes it by type: heartbeat responses refresh the bot's liveness
// column, bot logs are forwarded to the structured logger, memory uploads
// are persisted, and commands are handed to the command router. Mirrors
// MessageDispatcher in the original Python engine's __main__ module.
package dispatch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/commands"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/repositories"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// Dispatcher is the agent.OnMessage implementation wired into the registry.
type Dispatcher struct {
	Bots     repositories.BotRepository
	Memories repositories.BotMemoryRepository
	Messages repositories.MessageRepository
	Router   *commands.Router
	Logger   *zap.Logger
}

// New creates a Dispatcher; router may be nil if command handling isn't wired.
func New(bots repositories.BotRepository, memories repositories.BotMemoryRepository, messages repositories.MessageRepository, router *commands.Router, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Bots:     bots,
		Memories: memories,
		Messages: messages,
		Router:   router,
		Logger:   logger.Named("message_dispatcher"),
	}
}

// OnMessage handles one message received from ag, persisting it first and
// then dispatching by type. Matches agent.OnMessage.
func (d *Dispatcher) OnMessage(ag agent.BotAgent, msg wire.Message) {
	ctx := context.Background()

	record := &db.Message{
		BotID:      msg.BotID,
		Type:       string(msg.Type),
		Datetime:   msg.Datetime,
		ResponseTo: msg.ResponseTo,
	}
	if payload, err := encodePayload(msg.Payload); err != nil {
		d.Logger.Error("failed to encode message payload", zap.Error(err))
	} else {
		record.Payload = payload
	}
	if err := d.Messages.Create(ctx, record); err != nil {
		d.Logger.Error("failed to persist message", zap.Error(err))
	}

	switch msg.Type {
	case wire.HeartbeatResponse:
		d.logHeartbeat(ctx, ag, msg)
	case wire.BotLog:
		d.logBotLog(ag, msg)
	case wire.MemoryUpload:
		d.saveMemory(ctx, ag, msg)
	case wire.Command:
		d.Logger.Debug("received command", zap.String("bot_gid", ag.Bot().GID.String()))
		if d.Router == nil || !d.Router.Match(ctx, ag, msg) {
			d.Logger.Warn("no command handler matched", zap.String("bot_gid", ag.Bot().GID.String()))
		}
	default:
		d.Logger.Warn("received unknown message type",
			zap.String("bot_gid", ag.Bot().GID.String()),
			zap.String("message_type", string(msg.Type)),
		)
	}
}

func (d *Dispatcher) logHeartbeat(ctx context.Context, ag agent.BotAgent, msg wire.Message) {
	if err := d.Bots.UpdateHeartbeat(ctx, ag.Bot().GID, msg.Datetime); err != nil {
		d.Logger.Warn("failed to update heartbeat", zap.Error(err))
	}
}

// logLevelFor maps the bot_log payload's "level" field to a zap level,
// defaulting to Debug when absent or unrecognized (supplemented feature,
// see SPEC_FULL.md §6 "bot_log level mapping").
func logLevelFor(payload map[string]any) string {
	level, _ := payload["level"].(string)
	switch level {
	case "debug", "info", "warning", "error", "critical":
		return level
	default:
		return "debug"
	}
}

func (d *Dispatcher) logBotLog(ag agent.BotAgent, msg wire.Message) {
	text, _ := msg.Payload["text"].(string)
	fields := []zap.Field{
		zap.String("bot_gid", ag.Bot().GID.String()),
		zap.String("text", text),
	}

	switch logLevelFor(msg.Payload) {
	case "info":
		d.Logger.Info("bot log", fields...)
	case "warning":
		d.Logger.Warn("bot log", fields...)
	case "error", "critical":
		d.Logger.Error("bot log", fields...)
	default:
		d.Logger.Debug("bot log", fields...)
	}
}

func (d *Dispatcher) saveMemory(ctx context.Context, ag agent.BotAgent, msg wire.Message) {
	data, ok := msg.Payload["data"].(string)
	if !ok {
		d.Logger.Warn("memory_upload missing string data field", zap.String("bot_gid", ag.Bot().GID.String()))
		return
	}
	if err := d.Memories.Upsert(ctx, ag.Bot().GID, data, msg.Datetime); err != nil {
		d.Logger.Error("failed to save memory upload", zap.Error(err))
	}
}

// encodePayload renders a message payload to its stored JSON text form.
func encodePayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
