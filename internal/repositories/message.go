package repositories

import (
	"fmt"

	"gorm.io/gorm"

	"context"

	"github.com/google/uuid"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// gormMessageRepository is the GORM implementation of MessageRepository.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a MessageRepository backed by the provided
// *gorm.DB.
func NewMessageRepository(database *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: database}
}

// Create persists a wire message. The dispatcher calls this for every
// message it receives, matched or not, so messages double as an audit log.
func (r *gormMessageRepository) Create(ctx context.Context, msg *db.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("messages: create: %w", err)
	}
	return nil
}

func (r *gormMessageRepository) ListByBot(ctx context.Context, botID uuid.UUID, opts ListOptions) ([]db.Message, int64, error) {
	var messages []db.Message
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Message{}).Where("bot_id = ?", botID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("messages: list by bot count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("datetime DESC").
		Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("messages: list by bot: %w", err)
	}

	return messages, total, nil
}
