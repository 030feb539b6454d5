// Package lifecycle runs the engine's three supervisory loops — restart,
// heartbeat, state sync — each driven by scheduler.Run at its own
// configured interval. Grounded on lifecycle.py in the original Python
// engine: restart reconciles the registry against the full bot table,
// heartbeat pings every running agent and evicts unresponsive ones, and
// state_update pushes a full world snapshot to every agent.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/config"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/registry"
	"github.com/JakubTesarek/codeborn/internal/repositories"
	"github.com/JakubTesarek/codeborn/internal/scheduler"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// Loops bundles the repositories and registry the three loops share.
type Loops struct {
	Bots     repositories.BotRepository
	Armies   repositories.ArmyRepository
	Memories repositories.BotMemoryRepository
	Registry *registry.Registry
	Logger   *zap.Logger
}

// SendStateUpdate pushes a state_sync message carrying the agent's full
// army/unit/location tree to a single agent. Exported so the restart loop
// can push an initial snapshot as soon as an agent (re)starts, matching
// send_state_update being called eagerly from restart_agent in the
// reference engine.
func (l *Loops) SendStateUpdate(ctx context.Context, ag agent.BotAgent) error {
	dumps, err := l.Armies.ListByBotWithUnitsAndLocations(ctx, ag.Bot().GID)
	if err != nil {
		return err
	}

	armies := make([]map[string]any, len(dumps))
	for i, d := range dumps {
		units := make([]map[string]any, len(d.Units))
		for j, u := range d.Units {
			units[j] = map[string]any{
				"gid":   u.GID.String(),
				"type":  string(u.Type),
				"count": u.Count,
			}
		}
		armies[i] = map[string]any{
			"gid": d.Army.GID.String(),
			"location": map[string]any{
				"gid":     d.Location.GID.String(),
				"x":       d.Location.X,
				"y":       d.Location.Y,
				"terrain": string(d.Location.Terrain),
			},
			"units": units,
		}
	}

	payload := map[string]any{
		"me": map[string]any{
			"gid":    ag.Bot().GID.String(),
			"armies": armies,
		},
	}

	msg := wire.New(ag.Bot().GID, wire.StateSync, payload)
	return ag.SendMessage(msg)
}

// SendMemoryDownload pushes the bot's persisted memory blob to ag as a
// memory_download message. A bot with no saved memory yet (ErrNotFound)
// gets an empty object rather than an error.
func (l *Loops) SendMemoryDownload(ctx context.Context, ag agent.BotAgent) error {
	data := "{}"
	mem, err := l.Memories.GetByBotID(ctx, ag.Bot().GID)
	switch {
	case err == nil:
		data = mem.Data
	case errors.Is(err, repositories.ErrNotFound):
		// no memory saved yet; send the empty default.
	default:
		return err
	}

	msg := wire.New(ag.Bot().GID, wire.MemoryDownload, map[string]any{"data": data})
	return ag.SendMessage(msg)
}

// RunHeartbeat pings every registered agent at config.HeartbeatConfig's
// interval, evicting agents whose process has died or whose heartbeat is
// older than the configured timeout.
func RunHeartbeat(ctx context.Context, cfg config.Config, l *Loops) {
	logger := l.Logger.Named("heartbeat")
	logger.Info("started")
	defer logger.Info("stopped")

	timeout := cfg.HeartbeatTimeout()

	scheduler.Run(ctx, cfg.HeartbeatInterval(), func(ctx context.Context) {
		for _, ag := range l.Registry.List() {
			bot := ag.Bot()
			now := time.Now().UTC()

			if !ag.IsAlive() {
				logger.Warn("agent not running", zap.String("bot_gid", bot.GID.String()))
				if err := l.Registry.Remove(ctx, bot.GID); err != nil {
					logger.Warn("failed to remove dead agent", zap.Error(err))
				}
				continue
			}

			// The agent's own db.Bot snapshot is frozen at spawn time; every
			// heartbeat_response updates last_heartbeat in the store, not on
			// that snapshot, so the current value has to be re-fetched here.
			current, err := l.Bots.GetByID(ctx, bot.GID)
			if err != nil {
				logger.Warn("failed to refresh bot before heartbeat check",
					zap.String("bot_gid", bot.GID.String()), zap.Error(err))
				continue
			}
			bot = *current

			age := bot.HeartbeatAge(now)
			if age != nil && *age > timeout {
				logger.Warn("agent heartbeat timeout",
					zap.String("bot_gid", bot.GID.String()),
					zap.Duration("heartbeat_age", *age),
				)
				if err := l.Registry.Remove(ctx, bot.GID); err != nil {
					logger.Warn("failed to remove unresponsive agent", zap.Error(err))
				}
				continue
			}

			if err := ag.SendMessage(wire.New(bot.GID, wire.HeartbeatRequest, nil)); err != nil {
				logger.Warn("failed to send heartbeat request", zap.Error(err))
			}
		}
	})
}

// RunStateUpdate pushes a state_sync snapshot to every registered agent at
// config.StateUpdateConfig's interval.
func RunStateUpdate(ctx context.Context, cfg config.Config, l *Loops) {
	logger := l.Logger.Named("state_update")
	logger.Info("started")
	defer logger.Info("stopped")

	scheduler.Run(ctx, cfg.StateUpdateInterval(), func(ctx context.Context) {
		for _, ag := range l.Registry.List() {
			if err := l.SendStateUpdate(ctx, ag); err != nil {
				logger.Warn("failed to send state update",
					zap.String("bot_gid", ag.Bot().GID.String()), zap.Error(err))
			}
		}
	})
}

// RunRestart reconciles the registry against the full bot table at
// config.RestartConfig's interval: disabled bots are stopped, bots flagged
// restart_requested or missing from the registry are (re)started.
func RunRestart(ctx context.Context, cfg config.Config, l *Loops) {
	logger := l.Logger.Named("restart")
	logger.Info("started")
	defer logger.Info("stopped")

	scheduler.Run(ctx, cfg.RestartInterval(), func(ctx context.Context) {
		bots, err := l.Bots.ListAll(ctx)
		if err != nil {
			logger.Error("failed to list bots", zap.Error(err))
			return
		}

		for _, bot := range bots {
			running := l.Registry.Get(bot.GID)

			switch {
			case !bot.Enabled:
				if running != nil {
					logger.Info("stopping disabled agent", zap.String("bot_gid", bot.GID.String()))
					if err := l.Registry.Remove(ctx, bot.GID); err != nil {
						logger.Warn("failed to stop disabled agent", zap.Error(err))
					}
				} else {
					logger.Info("skipping disabled agent", zap.String("bot_gid", bot.GID.String()))
				}
			case bot.RestartRequested:
				logger.Info("restart requested", zap.String("bot_gid", bot.GID.String()))
				l.restartAgent(ctx, bot)
			case running == nil:
				logger.Info("starting missing agent", zap.String("bot_gid", bot.GID.String()))
				l.restartAgent(ctx, bot)
			}
		}
	})
}

// restartAgent restarts the agent for bot, sends it an initial state_sync
// snapshot and memory_download, and clears the bot's restart bookkeeping
// fields. Both messages go out before any heartbeat_request can reach the
// agent (spec.md §4.4, §8 scenario 4).
func (l *Loops) restartAgent(ctx context.Context, bot db.Bot) {
	ag, err := l.Registry.Restart(ctx, bot)
	if err != nil {
		l.Logger.Error("failed to restart agent", zap.String("bot_gid", bot.GID.String()), zap.Error(err))
		return
	}

	if err := l.SendStateUpdate(ctx, ag); err != nil {
		l.Logger.Warn("failed to send initial state update", zap.String("bot_gid", bot.GID.String()), zap.Error(err))
	}

	if err := l.SendMemoryDownload(ctx, ag); err != nil {
		l.Logger.Warn("failed to send initial memory download", zap.String("bot_gid", bot.GID.String()), zap.Error(err))
	}

	now := time.Now().UTC()
	if err := l.Bots.UpdateRestartFields(ctx, bot.GID, false, now, nil); err != nil {
		l.Logger.Warn("failed to clear restart fields", zap.String("bot_gid", bot.GID.String()), zap.Error(err))
	}
}
