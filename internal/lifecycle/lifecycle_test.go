package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/config"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/registry"
	"github.com/JakubTesarek/codeborn/internal/repositories"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

type fakeAgent struct {
	bot   db.Bot
	alive bool
	sent  []wire.Message
}

func (f *fakeAgent) Bot() db.Bot   { return f.bot }
func (f *fakeAgent) IsAlive() bool { return f.alive }
func (f *fakeAgent) Start(ctx context.Context, onMessage agent.OnMessage) error {
	f.alive = true
	return nil
}
func (f *fakeAgent) Stop(ctx context.Context) error { f.alive = false; return nil }
func (f *fakeAgent) SendMessage(msg wire.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

// fakeBots is a BotRepository backed by an in-memory map, keyed by GID, so
// tests can observe the store-refresh behaviour RunHeartbeat depends on
// rather than the frozen snapshot an agent was constructed with.
type fakeBots struct {
	repositories.BotRepository

	mu             sync.Mutex
	byID           map[uuid.UUID]db.Bot
	restartUpdates map[uuid.UUID]bool
}

func newFakeBots(bots ...db.Bot) *fakeBots {
	f := &fakeBots{byID: make(map[uuid.UUID]db.Bot)}
	for _, b := range bots {
		f.byID[b.GID] = b
	}
	return f
}

func (f *fakeBots) ListAll(ctx context.Context) ([]db.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]db.Bot, 0, len(f.byID))
	for _, b := range f.byID {
		all = append(all, b)
	}
	return all, nil
}

func (f *fakeBots) GetByID(ctx context.Context, id uuid.UUID) (*db.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &b, nil
}

func (f *fakeBots) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.byID[id]
	b.LastHeartbeat = &at
	f.byID[id] = b
	return nil
}

func (f *fakeBots) UpdateRestartFields(ctx context.Context, id uuid.UUID, restartRequested bool, startAt time.Time, lastHeartbeat *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartUpdates == nil {
		f.restartUpdates = make(map[uuid.UUID]bool)
	}
	f.restartUpdates[id] = restartRequested

	b := f.byID[id]
	b.RestartRequested = restartRequested
	b.LastHeartbeat = lastHeartbeat
	f.byID[id] = b
	return nil
}

type fakeArmies struct {
	repositories.ArmyRepository
}

func (f *fakeArmies) ListByBotWithUnitsAndLocations(ctx context.Context, botID uuid.UUID) ([]repositories.ArmyDump, error) {
	return nil, nil
}

type fakeMemories struct {
	repositories.BotMemoryRepository
}

func (f *fakeMemories) GetByBotID(ctx context.Context, botID uuid.UUID) (*db.BotMemory, error) {
	return nil, repositories.ErrNotFound
}

func newTestBot() db.Bot {
	var bot db.Bot
	bot.GID = uuid.New()
	bot.Enabled = true
	return bot
}

func TestRunRestartStartsMissingAgent(t *testing.T) {
	bot := newTestBot()
	fakes := make(map[uuid.UUID]*fakeAgent)
	reg := registry.New(func(b db.Bot) agent.BotAgent {
		a := &fakeAgent{bot: b}
		fakes[b.GID] = a
		return a
	}, func(agent.BotAgent, wire.Message) {}, zap.NewNop())

	bots := newFakeBots(bot)
	loops := &Loops{Bots: bots, Armies: &fakeArmies{}, Memories: &fakeMemories{}, Registry: reg, Logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Default()
	cfg.Lifecycle.Restart.Interval = 0.01

	done := make(chan struct{})
	go func() {
		RunRestart(ctx, cfg, loops)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if reg.Get(bot.GID) != nil {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("agent was never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if !fakes[bot.GID].alive {
		t.Fatalf("expected started agent to be alive")
	}

	ag := fakes[bot.GID]
	var gotStateSync, gotMemoryDownload bool
	for _, msg := range ag.sent {
		switch msg.Type {
		case wire.StateSync:
			gotStateSync = true
		case wire.MemoryDownload:
			gotMemoryDownload = true
		}
	}
	if !gotStateSync {
		t.Errorf("expected an initial state_sync to be sent on restart")
	}
	if !gotMemoryDownload {
		t.Errorf("expected an initial memory_download to be sent on restart")
	}
}

// TestRunHeartbeatEvictsUnresponsiveAgent seeds a stale heartbeat directly
// in the backing store (not on the agent's frozen snapshot), matching how a
// real agent that has simply gone quiet looks: its db.Bot row stops moving
// forward while the in-memory agent object never changes at all.
func TestRunHeartbeatEvictsUnresponsiveAgent(t *testing.T) {
	bot := newTestBot()
	staleHeartbeat := time.Now().UTC().Add(-time.Hour)
	bot.LastHeartbeat = &staleHeartbeat

	fakes := make(map[uuid.UUID]*fakeAgent)
	reg := registry.New(func(b db.Bot) agent.BotAgent {
		a := &fakeAgent{bot: b, alive: true}
		fakes[b.GID] = a
		return a
	}, func(agent.BotAgent, wire.Message) {}, zap.NewNop())

	if _, err := reg.Add(context.Background(), bot); err != nil {
		t.Fatalf("add: %v", err)
	}

	bots := newFakeBots(bot)
	loops := &Loops{Bots: bots, Armies: &fakeArmies{}, Memories: &fakeMemories{}, Registry: reg, Logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Default()
	cfg.Lifecycle.Heartbeat.Interval = 0.01
	cfg.Lifecycle.Heartbeat.Timeout = 1

	done := make(chan struct{})
	go func() {
		RunHeartbeat(ctx, cfg, loops)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if reg.Get(bot.GID) == nil {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("unresponsive agent was never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

// TestRunHeartbeatEvictsOnceStoreHeartbeatGoesStale exercises the realistic
// reply-then-go-silent flow: the agent replies once (heartbeat_response
// updates the store, exactly as Dispatcher.logHeartbeat does), then goes
// quiet. The agent's own db.Bot snapshot never changes — only the store
// does — so this only evicts if RunHeartbeat re-fetches from the store on
// every tick instead of trusting the agent's frozen Bot().
func TestRunHeartbeatEvictsOnceStoreHeartbeatGoesStale(t *testing.T) {
	bot := newTestBot()

	fakes := make(map[uuid.UUID]*fakeAgent)
	reg := registry.New(func(b db.Bot) agent.BotAgent {
		a := &fakeAgent{bot: b, alive: true}
		fakes[b.GID] = a
		return a
	}, func(agent.BotAgent, wire.Message) {}, zap.NewNop())

	if _, err := reg.Add(context.Background(), bot); err != nil {
		t.Fatalf("add: %v", err)
	}

	bots := newFakeBots(bot)
	// The agent replies once, right now — fresh, well within the timeout.
	if err := bots.UpdateHeartbeat(context.Background(), bot.GID, time.Now().UTC()); err != nil {
		t.Fatalf("seed heartbeat: %v", err)
	}

	loops := &Loops{Bots: bots, Armies: &fakeArmies{}, Memories: &fakeMemories{}, Registry: reg, Logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Default()
	cfg.Lifecycle.Heartbeat.Interval = 0.01
	cfg.Lifecycle.Heartbeat.Timeout = 0.05

	done := make(chan struct{})
	go func() {
		RunHeartbeat(ctx, cfg, loops)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if reg.Get(bot.GID) == nil {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("agent that stopped replying was never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
