// Package agent runs untrusted bot code as a subprocess and exchanges
// newline-delimited JSON messages with it over stdin/stdout. Two runtime
// classes implement the same BotAgent interface: a raw local process and a
// Docker-sandboxed container with no network access and capped resources.
//
// Both runtimes embed processAgent, which owns the bot record, the alive
// flag and the serialized stdin writer, and both decode lines through
// dispatchLine. Each runtime implements its own spawn, stdout/stderr reader
// goroutines and stop sequence (graceful terminate, then kill after a grace
// period).
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// OnMessage is called for every message decoded from the agent's stdout or
// stderr. It is invoked synchronously from the reader goroutine, so
// handlers that need to do real work should hand off to another goroutine.
type OnMessage func(agent BotAgent, msg wire.Message)

// BotAgent is a running bot process, regardless of runtime class.
type BotAgent interface {
	// Bot returns the database row this agent was started for.
	Bot() db.Bot

	// IsAlive reports whether the underlying process is still running.
	IsAlive() bool

	// Start spawns the child process and begins listening for messages.
	// onMessage is invoked for every message the child emits until Stop
	// is called.
	Start(ctx context.Context, onMessage OnMessage) error

	// Stop terminates the child process. Safe to call more than once.
	Stop(ctx context.Context) error

	// SendMessage writes a message to the agent's stdin.
	SendMessage(msg wire.Message) error
}

// stopGrace is how long Stop waits for the child to exit after a graceful
// terminate signal before escalating to a kill.
const stopGrace = 3 * time.Second

// processAgent holds the state shared by every BotAgent implementation:
// the bot record, the logger, the mutex-guarded alive flag and message
// handler, and the mutex-guarded stdin writer.
type processAgent struct {
	bot    db.Bot
	logger *zap.Logger

	mu        sync.Mutex
	alive     bool
	onMessage OnMessage

	stdinMu sync.Mutex
	stdin   stdinWriter
}

// stdinWriter abstracts over *os.File (raw process) and the hijacked Docker
// attach connection. Only Write is required; closing the underlying stream
// is left to each runtime.
type stdinWriter interface {
	Write(p []byte) (int, error)
}

func newProcessAgent(bot db.Bot, logger *zap.Logger) processAgent {
	return processAgent{
		bot:    bot,
		logger: logger.With(zap.String("bot_gid", bot.GID.String()), zap.String("bot_name", bot.Name)),
	}
}

func (p *processAgent) Bot() db.Bot {
	return p.bot
}

func (p *processAgent) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *processAgent) setAlive(alive bool) {
	p.mu.Lock()
	p.alive = alive
	p.mu.Unlock()
}

// SendMessage encodes and writes msg to the child's stdin. Safe for
// concurrent use; writes are serialized so lines are never interleaved.
func (p *processAgent) SendMessage(msg wire.Message) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()

	if p.stdin == nil {
		p.logger.Warn("stdin unavailable, cannot send message")
		return nil
	}

	line, err := msg.Encode()
	if err != nil {
		return err
	}
	if _, err := p.stdin.Write(line); err != nil {
		p.logger.Warn("failed to send message", zap.Error(err))
	} else {
		p.logger.Debug("sent message", zap.String("type", string(msg.Type)))
	}
	return nil
}

// dispatchLine decodes a single stdout/stderr line and forwards it to the
// registered handler. Malformed lines are logged and dropped — a bot
// writing garbage must never bring down the supervisor's read loop.
func dispatchLine(self BotAgent, botID uuid.UUID, line []byte, logger *zap.Logger, onMessage OnMessage) {
	msg, err := wire.Decode(botID, line)
	if err != nil {
		logger.Error("stdout parsing error", zap.Error(err), zap.ByteString("raw", line))
		return
	}
	onMessage(self, msg)
}
