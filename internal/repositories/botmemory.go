package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// gormBotMemoryRepository is the GORM implementation of BotMemoryRepository.
type gormBotMemoryRepository struct {
	db *gorm.DB
}

// NewBotMemoryRepository returns a BotMemoryRepository backed by the
// provided *gorm.DB.
func NewBotMemoryRepository(database *gorm.DB) BotMemoryRepository {
	return &gormBotMemoryRepository{db: database}
}

func (r *gormBotMemoryRepository) GetByBotID(ctx context.Context, botID uuid.UUID) (*db.BotMemory, error) {
	var mem db.BotMemory
	err := r.db.WithContext(ctx).First(&mem, "bot_id = ?", botID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bot_memories: get by bot id: %w", err)
	}
	return &mem, nil
}

// Upsert creates or updates the singleton memory row for botID. Used by the
// memory_upload dispatcher handler.
func (r *gormBotMemoryRepository) Upsert(ctx context.Context, botID uuid.UUID, data string, updatedAt time.Time) error {
	mem := db.BotMemory{BotID: botID, Data: data, UpdatedAt: updatedAt}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bot_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&mem).Error
	if err != nil {
		return fmt.Errorf("bot_memories: upsert: %w", err)
	}
	return nil
}
