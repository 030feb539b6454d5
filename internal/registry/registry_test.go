package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// fakeAgent is an in-memory stand-in for a real subprocess, used so
// registry behaviour can be tested without spawning anything.
type fakeAgent struct {
	bot     db.Bot
	alive   bool
	stopped int
}

func (f *fakeAgent) Bot() db.Bot    { return f.bot }
func (f *fakeAgent) IsAlive() bool { return f.alive }

func (f *fakeAgent) Start(ctx context.Context, onMessage agent.OnMessage) error {
	f.alive = true
	return nil
}

func (f *fakeAgent) Stop(ctx context.Context) error {
	f.stopped++
	f.alive = false
	return nil
}

func (f *fakeAgent) SendMessage(msg wire.Message) error { return nil }

func newTestRegistry() (*Registry, map[uuid.UUID]*fakeAgent) {
	fakes := make(map[uuid.UUID]*fakeAgent)
	factory := func(bot db.Bot) agent.BotAgent {
		f := &fakeAgent{bot: bot}
		fakes[bot.GID] = f
		return f
	}
	return New(factory, func(agent.BotAgent, wire.Message) {}, zap.NewNop()), fakes
}

func testBot() db.Bot {
	var bot db.Bot
	bot.GID = uuid.New()
	bot.Name = "test-bot"
	return bot
}

func TestAddStartsAgentAndRejectsDuplicate(t *testing.T) {
	r, fakes := newTestRegistry()
	bot := testBot()

	if _, err := r.Add(context.Background(), bot); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !fakes[bot.GID].alive {
		t.Fatalf("expected agent to be started")
	}

	if _, err := r.Add(context.Background(), bot); err == nil {
		t.Fatalf("expected duplicate add to fail")
	}
}

func TestRemoveStopsAgent(t *testing.T) {
	r, fakes := newTestRegistry()
	bot := testBot()

	if _, err := r.Add(context.Background(), bot); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Remove(context.Background(), bot.GID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fakes[bot.GID].stopped != 1 {
		t.Fatalf("expected agent to be stopped once, got %d", fakes[bot.GID].stopped)
	}
	if r.Get(bot.GID) != nil {
		t.Fatalf("expected agent to be unregistered")
	}
}

func TestRemoveUnknownFails(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.Remove(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected remove of unknown bot to fail")
	}
}

func TestRestartReplacesRunningAgent(t *testing.T) {
	r, fakes := newTestRegistry()
	bot := testBot()

	if _, err := r.Add(context.Background(), bot); err != nil {
		t.Fatalf("add: %v", err)
	}
	first := fakes[bot.GID]

	if _, err := r.Restart(context.Background(), bot); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.stopped != 1 {
		t.Fatalf("expected previous agent to be stopped")
	}
	if !fakes[bot.GID].alive {
		t.Fatalf("expected new agent to be running")
	}
}

func TestRemoveAllStopsEveryAgent(t *testing.T) {
	r, fakes := newTestRegistry()
	botA := testBot()
	botB := testBot()

	if _, err := r.Add(context.Background(), botA); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := r.Add(context.Background(), botB); err != nil {
		t.Fatalf("add b: %v", err)
	}

	r.RemoveAll(context.Background())

	if fakes[botA.GID].stopped != 1 || fakes[botB.GID].stopped != 1 {
		t.Fatalf("expected both agents to be stopped")
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected registry to be empty after RemoveAll")
	}
}
