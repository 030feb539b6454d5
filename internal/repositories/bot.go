package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// gormBotRepository is the GORM implementation of BotRepository.
type gormBotRepository struct {
	db *gorm.DB
}

// NewBotRepository returns a BotRepository backed by the provided *gorm.DB.
func NewBotRepository(database *gorm.DB) BotRepository {
	return &gormBotRepository{db: database}
}

func (r *gormBotRepository) Create(ctx context.Context, bot *db.Bot) error {
	if err := r.db.WithContext(ctx).Create(bot).Error; err != nil {
		return fmt.Errorf("bots: create: %w", err)
	}
	return nil
}

func (r *gormBotRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Bot, error) {
	var bot db.Bot
	err := r.db.WithContext(ctx).First(&bot, "gid = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bots: get by id: %w", err)
	}
	return &bot, nil
}

func (r *gormBotRepository) GetByUserAndName(ctx context.Context, userID uuid.UUID, name string) (*db.Bot, error) {
	var bot db.Bot
	err := r.db.WithContext(ctx).First(&bot, "user_id = ? AND name = ?", userID, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bots: get by user and name: %w", err)
	}
	return &bot, nil
}

func (r *gormBotRepository) Update(ctx context.Context, bot *db.Bot) error {
	result := r.db.WithContext(ctx).Save(bot)
	if result.Error != nil {
		return fmt.Errorf("bots: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateHeartbeat persists only last_heartbeat. Called on every
// heartbeat_response — a frequent write, so it touches one column instead
// of the full row, the same reasoning arkeep applies to Agent.UpdateStatus.
func (r *gormBotRepository) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Bot{}).
		Where("gid = ?", id).
		Update("last_heartbeat", at)
	if result.Error != nil {
		return fmt.Errorf("bots: update heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRestartFields persists restart_requested, start_at and
// last_heartbeat together after the restart loop respawns an agent.
func (r *gormBotRepository) UpdateRestartFields(ctx context.Context, id uuid.UUID, restartRequested bool, startAt time.Time, lastHeartbeat *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Bot{}).
		Where("gid = ?", id).
		Updates(map[string]interface{}{
			"restart_requested": restartRequested,
			"start_at":          startAt,
			"last_heartbeat":    lastHeartbeat,
		})
	if result.Error != nil {
		return fmt.Errorf("bots: update restart fields: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormBotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Bot{}, "gid = ?", id)
	if result.Error != nil {
		return fmt.Errorf("bots: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormBotRepository) List(ctx context.Context, opts ListOptions) ([]db.Bot, int64, error) {
	var bots []db.Bot
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Bot{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("bots: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&bots).Error; err != nil {
		return nil, 0, fmt.Errorf("bots: list: %w", err)
	}

	return bots, total, nil
}

// ListAll returns every bot regardless of enabled state. The restart loop
// reconciles the full set against the registry on every tick (spec.md §4.4).
func (r *gormBotRepository) ListAll(ctx context.Context) ([]db.Bot, error) {
	var bots []db.Bot
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("bots: list all: %w", err)
	}
	return bots, nil
}
