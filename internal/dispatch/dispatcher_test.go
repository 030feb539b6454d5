package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/commands"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/repositories"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

type fakeBots struct {
	repositories.BotRepository
	heartbeats map[uuid.UUID]time.Time
}

func (f *fakeBots) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	if f.heartbeats == nil {
		f.heartbeats = make(map[uuid.UUID]time.Time)
	}
	f.heartbeats[id] = at
	return nil
}

type fakeMemories struct {
	repositories.BotMemoryRepository
	upserted map[uuid.UUID]string
}

func (f *fakeMemories) Upsert(ctx context.Context, botID uuid.UUID, data string, updatedAt time.Time) error {
	if f.upserted == nil {
		f.upserted = make(map[uuid.UUID]string)
	}
	f.upserted[botID] = data
	return nil
}

type fakeMessages struct {
	repositories.MessageRepository
	created []db.Message
}

func (f *fakeMessages) Create(ctx context.Context, msg *db.Message) error {
	f.created = append(f.created, *msg)
	return nil
}

type fakeAgent struct {
	bot db.Bot
}

func (f *fakeAgent) Bot() db.Bot                                       { return f.bot }
func (f *fakeAgent) IsAlive() bool                                     { return true }
func (f *fakeAgent) Start(ctx context.Context, onMessage agent.OnMessage) error { return nil }
func (f *fakeAgent) Stop(ctx context.Context) error                    { return nil }
func (f *fakeAgent) SendMessage(msg wire.Message) error                { return nil }

func newTestBot() db.Bot {
	var bot db.Bot
	bot.GID = uuid.New()
	return bot
}

func TestOnMessagePersistsEveryMessage(t *testing.T) {
	messages := &fakeMessages{}
	d := New(&fakeBots{}, &fakeMemories{}, messages, nil, zap.NewNop())
	ag := &fakeAgent{bot: newTestBot()}

	d.OnMessage(ag, wire.New(ag.bot.GID, wire.HeartbeatResponse, nil))

	if len(messages.created) != 1 {
		t.Fatalf("expected message to be persisted, got %d", len(messages.created))
	}
}

func TestOnMessageUpdatesHeartbeat(t *testing.T) {
	bots := &fakeBots{}
	d := New(bots, &fakeMemories{}, &fakeMessages{}, nil, zap.NewNop())
	ag := &fakeAgent{bot: newTestBot()}

	msg := wire.New(ag.bot.GID, wire.HeartbeatResponse, nil)
	d.OnMessage(ag, msg)

	if _, ok := bots.heartbeats[ag.bot.GID]; !ok {
		t.Fatalf("expected heartbeat to be recorded")
	}
}

func TestOnMessageSavesMemoryUpload(t *testing.T) {
	memories := &fakeMemories{}
	d := New(&fakeBots{}, memories, &fakeMessages{}, nil, zap.NewNop())
	ag := &fakeAgent{bot: newTestBot()}

	msg := wire.New(ag.bot.GID, wire.MemoryUpload, map[string]any{"data": "{\"k\":1}"})
	d.OnMessage(ag, msg)

	if memories.upserted[ag.bot.GID] != `{"k":1}` {
		t.Fatalf("expected memory to be upserted, got %q", memories.upserted[ag.bot.GID])
	}
}

func TestOnMessageDispatchesCommandToRouter(t *testing.T) {
	var called bool
	router := commands.NewRouter(zap.NewNop())
	router.Route("ping", func(ctx context.Context, ag agent.BotAgent, msg wire.Message) (map[string]any, error) {
		called = true
		return nil, nil
	})

	d := New(&fakeBots{}, &fakeMemories{}, &fakeMessages{}, router, zap.NewNop())
	ag := &fakeAgent{bot: newTestBot()}

	msg := wire.New(ag.bot.GID, wire.Command, map[string]any{"command": "ping"})
	d.OnMessage(ag, msg)

	if !called {
		t.Fatalf("expected router to dispatch command")
	}
}
