// Package registry is the in-memory set of agents currently running.
// It mirrors AgentRegistry in the original Python engine: a mutex-guarded
// map of bot GID to running agent, with add/remove/restart operations that
// start or stop the underlying process as a side effect.
//
// Unlike arkeep's agentmanager (which tracks agents that connect to the
// server over gRPC), this registry owns the agent's lifecycle directly —
// adding an agent starts its process, removing one stops it.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/db"
)

// Factory builds a new, unstarted BotAgent for the given bot row. Supplied
// by the caller so the registry stays agnostic to RuntimeRaw vs
// RuntimeSandboxed.
type Factory func(bot db.Bot) agent.BotAgent

// Registry is the set of currently running agents, keyed by bot GID.
// The zero value is not usable — create instances with New.
type Registry struct {
	mu        sync.Mutex
	agents    map[uuid.UUID]agent.BotAgent
	factory   Factory
	onMessage agent.OnMessage
	logger    *zap.Logger
}

// New creates a Registry that builds agents with factory and forwards every
// message they emit to onMessage.
func New(factory Factory, onMessage agent.OnMessage, logger *zap.Logger) *Registry {
	return &Registry{
		agents:    make(map[uuid.UUID]agent.BotAgent),
		factory:   factory,
		onMessage: onMessage,
		logger:    logger.Named("agent_registry"),
	}
}

// Add builds and starts an agent for bot, registering it under bot.GID.
// Returns an error if an agent for this bot is already registered.
func (r *Registry) Add(ctx context.Context, bot db.Bot) (agent.BotAgent, error) {
	r.logger.Info("adding agent", zap.String("bot_gid", bot.GID.String()))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[bot.GID]; exists {
		return nil, fmt.Errorf("agent with gid %q already registered", bot.GID)
	}

	a := r.factory(bot)
	if err := a.Start(ctx, r.onMessage); err != nil {
		return nil, fmt.Errorf("registry: start agent %s: %w", bot.GID, err)
	}
	r.agents[bot.GID] = a
	return a, nil
}

// Remove stops and unregisters the agent for botGID. Returns an error if no
// such agent is registered.
func (r *Registry) Remove(ctx context.Context, botGID uuid.UUID) error {
	r.logger.Info("removing agent", zap.String("bot_gid", botGID.String()))

	r.mu.Lock()
	a, exists := r.agents[botGID]
	if exists {
		delete(r.agents, botGID)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("agent with gid %q not found", botGID)
	}
	return a.Stop(ctx)
}

// RemoveAll stops and unregisters every agent concurrently. Called on
// supervisor shutdown.
func (r *Registry) RemoveAll(ctx context.Context) {
	agents := r.List()

	var wg sync.WaitGroup
	for _, a := range agents {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Remove(ctx, a.Bot().GID); err != nil {
				r.logger.Warn("failed to remove agent during shutdown",
					zap.String("bot_gid", a.Bot().GID.String()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// List returns a snapshot of all currently registered agents.
func (r *Registry) List() []agent.BotAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]agent.BotAgent, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, a)
	}
	return result
}

// Get returns the agent registered for botGID, or nil if none is running.
func (r *Registry) Get(botGID uuid.UUID) agent.BotAgent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[botGID]
}

// Restart stops any existing agent for bot.GID and starts a fresh one,
// returning the new agent. Used by the restart loop when a bot is flagged
// restart_requested or is missing from the registry entirely.
func (r *Registry) Restart(ctx context.Context, bot db.Bot) (agent.BotAgent, error) {
	if existing := r.Get(bot.GID); existing != nil {
		if err := r.Remove(ctx, bot.GID); err != nil {
			return nil, fmt.Errorf("registry: restart: remove existing agent: %w", err)
		}
	}
	return r.Add(ctx, bot)
}
