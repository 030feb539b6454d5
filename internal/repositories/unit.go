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

// gormUnitRepository is the GORM implementation of UnitRepository.
type gormUnitRepository struct {
	db *gorm.DB
}

// NewUnitRepository returns a UnitRepository backed by the provided *gorm.DB.
func NewUnitRepository(database *gorm.DB) UnitRepository {
	return &gormUnitRepository{db: database}
}

func (r *gormUnitRepository) Create(ctx context.Context, unit *db.Unit) error {
	if err := r.db.WithContext(ctx).Create(unit).Error; err != nil {
		return fmt.Errorf("units: create: %w", err)
	}
	return nil
}

func (r *gormUnitRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Unit, error) {
	var unit db.Unit
	err := r.db.WithContext(ctx).First(&unit, "gid = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("units: get by id: %w", err)
	}
	return &unit, nil
}

// UpdateStamina persists stamina_snapshot and stamina_updated_at together —
// the pair must always move in lockstep, matching db.Unit.SetStamina.
func (r *gormUnitRepository) UpdateStamina(ctx context.Context, id uuid.UUID, snapshot float64, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Unit{}).
		Where("gid = ?", id).
		Updates(map[string]interface{}{
			"stamina_snapshot":   snapshot,
			"stamina_updated_at": updatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("units: update stamina: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormUnitRepository) UpdateCount(ctx context.Context, id uuid.UUID, count int) error {
	result := r.db.WithContext(ctx).
		Model(&db.Unit{}).
		Where("gid = ?", id).
		Update("count", count)
	if result.Error != nil {
		return fmt.Errorf("units: update count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reparent moves a unit to a different army, used by merge. Callers
// are responsible for respecting the army_id+type uniqueness index — merge
// folds counts into an existing row instead of reparenting when a unit of
// the same type already exists in the destination army.
func (r *gormUnitRepository) Reparent(ctx context.Context, id, newArmyID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&db.Unit{}).
		Where("gid = ?", id).
		Update("army_id", newArmyID)
	if result.Error != nil {
		return fmt.Errorf("units: reparent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormUnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Unit{}, "gid = ?", id)
	if result.Error != nil {
		return fmt.Errorf("units: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
