package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JakubTesarek/codeborn/internal/gamecfg"
)

// base contains the common fields shared by all models. GID uses UUID v7
// (time-ordered) for efficient B-tree indexing and natural chronological
// ordering without a separate created_at sort. CreatedAt and UpdatedAt are
// managed automatically by GORM.
type base struct {
	GID       uuid.UUID `gorm:"column:gid;type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if GID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.GID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.GID = id
	}
	return nil
}

// -----------------------------------------------------------------------------
// User & Bot
// -----------------------------------------------------------------------------

// User owns a bounded number of Bots (spec.md §3 "User").
type User struct {
	base
	MaxBots int `gorm:"not null;default:1"`
}

// BotState is the derived lifecycle state of a Bot, computed from its stored
// columns and the current time — never stored as a column itself.
type BotState string

const (
	BotDisabled     BotState = "disabled"
	BotStarting     BotState = "starting"
	BotRestarting   BotState = "restarting"
	BotUnresponsive BotState = "unresponsive"
	BotRunning      BotState = "running"
)

// Bot is a user-owned executable unit supervised by the engine.
// Association fields (User, Armies, Messages) are intentionally absent:
// GORM cannot auto-resolve foreign keys against a uuid.UUID primary key, so
// related records are loaded by explicit queries in internal/repositories,
// the same convention arkeep uses for Policy.Destinations / Job.Logs.
type Bot struct {
	base
	UserID           uuid.UUID  `gorm:"column:user_id;type:text;not null;index"`
	Name             string     `gorm:"not null"`
	EntryPoint       string     `gorm:"column:entry_point"`
	Enabled          bool       `gorm:"not null;default:true"`
	RestartRequested bool       `gorm:"not null;default:false"`
	LastHeartbeat    *time.Time `gorm:"column:last_heartbeat"`
	StartAt          *time.Time `gorm:"column:start_at"`
}

// HeartbeatAge returns the time since the last heartbeat, or nil if the bot
// has never reported one (spec.md §4.7).
func (b *Bot) HeartbeatAge(now time.Time) *time.Duration {
	if b.LastHeartbeat == nil {
		return nil
	}
	d := now.Sub(*b.LastHeartbeat)
	return &d
}

// Uptime returns the time since the bot's last (re)start, or nil if it has
// never started.
func (b *Bot) Uptime(now time.Time) *time.Duration {
	if b.StartAt == nil {
		return nil
	}
	d := now.Sub(*b.StartAt)
	return &d
}

// State computes the bot's derived lifecycle state (spec.md §3 "Bot"):
// disabled if not enabled; starting if it has never heartbeated; restarting
// if a restart has been requested; unresponsive if its heartbeat is older
// than heartbeatTimeout; running otherwise.
func (b *Bot) State(now time.Time, heartbeatTimeout time.Duration) BotState {
	if !b.Enabled {
		return BotDisabled
	}
	if b.LastHeartbeat == nil {
		return BotStarting
	}
	if b.RestartRequested {
		return BotRestarting
	}
	if age := b.HeartbeatAge(now); age != nil && *age > heartbeatTimeout {
		return BotUnresponsive
	}
	return BotRunning
}

// BotMemory is a 1:1 opaque JSON blob persisted across a Bot's restarts
// (spec.md §3 "BotMemory").
type BotMemory struct {
	BotID     uuid.UUID `gorm:"column:bot_id;type:text;primaryKey"`
	Data      string    `gorm:"type:text;not null;default:'{}'"` // JSON
	UpdatedAt time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Location
// -----------------------------------------------------------------------------

// Location is a grid cell shared across Armies and never deleted by game
// actions (spec.md §3 "Location", invariant I1).
type Location struct {
	base
	X       int                 `gorm:"not null;uniqueIndex:idx_location_xy"`
	Y       int                 `gorm:"not null;uniqueIndex:idx_location_xy"`
	Terrain gamecfg.TerrainType `gorm:"not null;default:'plains'"`
}

// IsAdjacent reports whether other is one of the 8 Chebyshev-distance-1
// neighbors of l (spec.md §4.6 "move").
func (l Location) IsAdjacent(other Location) bool {
	dx := l.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := l.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= 1 && dy <= 1 && (dx+dy) > 0
}

// SameCell reports whether two locations occupy the same (x,y), independent
// of GID — used by command handlers that compare "current" vs "target".
func (l Location) SameCell(other Location) bool {
	return l.X == other.X && l.Y == other.Y
}

// -----------------------------------------------------------------------------
// Army & Unit
// -----------------------------------------------------------------------------

// Army belongs to exactly one Bot and sits at exactly one Location
// (spec.md §3 "Army").
type Army struct {
	base
	BotID      uuid.UUID `gorm:"column:bot_id;type:text;not null;index"`
	LocationID uuid.UUID `gorm:"column:location_id;type:text;not null;index"`
}

// Unit is a typed group of soldiers belonging to one Army. stamina is never
// stored directly — only StaminaSnapshot and StaminaUpdated are persisted,
// and the live value is a pure function of the two plus wall-clock time
// (spec.md §4.7). Unique on (ArmyID, Type) — invariant I2.
type Unit struct {
	base
	ArmyID          uuid.UUID        `gorm:"column:army_id;type:text;not null;uniqueIndex:idx_unit_army_type"`
	Type            gamecfg.UnitType `gorm:"not null;uniqueIndex:idx_unit_army_type"`
	Count           int              `gorm:"not null"`
	StaminaSnapshot float64          `gorm:"not null;default:1"`
	StaminaUpdated  time.Time        `gorm:"column:stamina_updated_at;not null"`
}

// Stamina computes the derived stamina (spec.md §4.7): the stored snapshot
// plus whatever has recovered since it was taken, clamped to [0,1].
func (u Unit) Stamina(now time.Time, recoveryPerSecond float64) float64 {
	elapsed := now.Sub(u.StaminaUpdated).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return clamp01(u.StaminaSnapshot + elapsed*recoveryPerSecond)
}

// SetStamina assigns a new derived stamina value, re-snapshotting it against
// now. Per spec.md §9's Open Question resolution, callers must always go
// through the setter rather than writing StaminaSnapshot directly, so a
// write is always paired with a fresh timestamp (invariant I4).
func (u *Unit) SetStamina(value float64, now time.Time) {
	u.StaminaSnapshot = clamp01(value)
	u.StaminaUpdated = now
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

// Message logs one line of wire traffic for a Bot (spec.md §3 "Message").
// Only inbound messages are written, by the dispatcher; messages the engine
// sends to a bot are not persisted. Payload is stored as JSON text; ResponseTo
// correlates a command_result back to its originating command (invariant I6).
type Message struct {
	base
	BotID      uuid.UUID  `gorm:"column:bot_id;type:text;not null;index"`
	Type       string     `gorm:"not null"`
	Datetime   time.Time  `gorm:"not null;index"`
	ResponseTo *uuid.UUID `gorm:"column:response_to;type:text"`
	Payload    string     `gorm:"type:text;not null;default:'{}'"`
}
