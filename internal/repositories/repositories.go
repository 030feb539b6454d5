// Package repositories provides the persistence interfaces the engine's
// lifecycle loops and command handlers use to read and write game state.
// Each interface is backed by a GORM implementation in this package; command
// handlers and lifecycle loops depend only on the interfaces, so they can be
// exercised in tests against a fake or an in-memory sqlite database.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// UserRepository
// -----------------------------------------------------------------------------

type UserRepository interface {
	Create(ctx context.Context, user *db.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	List(ctx context.Context, opts ListOptions) ([]db.User, int64, error)
}

// -----------------------------------------------------------------------------
// BotRepository
// -----------------------------------------------------------------------------

type BotRepository interface {
	Create(ctx context.Context, bot *db.Bot) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Bot, error)
	GetByUserAndName(ctx context.Context, userID uuid.UUID, name string) (*db.Bot, error)

	// Update persists all fields of an existing bot record.
	Update(ctx context.Context, bot *db.Bot) error

	// UpdateHeartbeat persists only last_heartbeat — called on every
	// heartbeat_response, avoiding a full-row write on the hot path.
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdateRestartFields persists restart_requested, start_at and
	// last_heartbeat together, as the restart loop does after respawning
	// an agent (spec.md §4.4).
	UpdateRestartFields(ctx context.Context, id uuid.UUID, restartRequested bool, startAt time.Time, lastHeartbeat *time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.Bot, int64, error)

	// ListAll returns every bot, enabled or not — the restart loop reconciles
	// against the full set every tick (spec.md §4.4).
	ListAll(ctx context.Context) ([]db.Bot, error)
}

// -----------------------------------------------------------------------------
// BotMemoryRepository
// -----------------------------------------------------------------------------

type BotMemoryRepository interface {
	GetByBotID(ctx context.Context, botID uuid.UUID) (*db.BotMemory, error)
	Upsert(ctx context.Context, botID uuid.UUID, data string, updatedAt time.Time) error
}

// -----------------------------------------------------------------------------
// LocationRepository
// -----------------------------------------------------------------------------

type LocationRepository interface {
	Create(ctx context.Context, loc *db.Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Location, error)
	GetByCoords(ctx context.Context, x, y int) (*db.Location, error)
}

// -----------------------------------------------------------------------------
// ArmyRepository
// -----------------------------------------------------------------------------

type ArmyRepository interface {
	Create(ctx context.Context, army *db.Army) error

	// GetWithUnitsAndLocation loads an army owned by botID together with its
	// units and location, scoped so a bot can never touch another bot's
	// armies. Returns ErrNotFound if no such army exists.
	GetWithUnitsAndLocation(ctx context.Context, armyID, botID uuid.UUID) (*db.Army, []db.Unit, *db.Location, error)

	// ListByBotWithUnitsAndLocations loads every army owned by botID, each
	// with its units and location, for state_sync dumps (spec.md §4.4).
	ListByBotWithUnitsAndLocations(ctx context.Context, botID uuid.UUID) ([]ArmyDump, error)

	UpdateLocation(ctx context.Context, armyID, locationID uuid.UUID) error
	Delete(ctx context.Context, armyID uuid.UUID) error
}

// ArmyDump bundles an Army with its loaded units and location for read paths
// that need the full tree (state_sync, command responses).
type ArmyDump struct {
	Army     db.Army
	Units    []db.Unit
	Location db.Location
}

// -----------------------------------------------------------------------------
// UnitRepository
// -----------------------------------------------------------------------------

type UnitRepository interface {
	Create(ctx context.Context, unit *db.Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Unit, error)

	// UpdateStamina persists stamina_snapshot + stamina_updated_at together
	// — spec.md §4.7 requires these two fields always move as a pair.
	UpdateStamina(ctx context.Context, id uuid.UUID, snapshot float64, updatedAt time.Time) error

	UpdateCount(ctx context.Context, id uuid.UUID, count int) error
	Reparent(ctx context.Context, id, newArmyID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// -----------------------------------------------------------------------------
// MessageRepository
// -----------------------------------------------------------------------------

type MessageRepository interface {
	Create(ctx context.Context, msg *db.Message) error
	ListByBot(ctx context.Context, botID uuid.UUID, opts ListOptions) ([]db.Message, int64, error)
}
