package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// gormLocationRepository is the GORM implementation of LocationRepository.
type gormLocationRepository struct {
	db *gorm.DB
}

// NewLocationRepository returns a LocationRepository backed by the
// provided *gorm.DB.
func NewLocationRepository(database *gorm.DB) LocationRepository {
	return &gormLocationRepository{db: database}
}

// Create inserts a new location. Locations are created only by map
// generation (out of scope for this engine) or test fixtures — never by
// game actions, per spec.md §3.
func (r *gormLocationRepository) Create(ctx context.Context, loc *db.Location) error {
	if err := r.db.WithContext(ctx).Create(loc).Error; err != nil {
		return fmt.Errorf("locations: create: %w", err)
	}
	return nil
}

func (r *gormLocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Location, error) {
	var loc db.Location
	err := r.db.WithContext(ctx).First(&loc, "gid = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locations: get by id: %w", err)
	}
	return &loc, nil
}

// GetByCoords looks up the location at (x,y) — invariant I1 guarantees at
// most one row matches.
func (r *gormLocationRepository) GetByCoords(ctx context.Context, x, y int) (*db.Location, error) {
	var loc db.Location
	err := r.db.WithContext(ctx).First(&loc, "x = ? AND y = ?", x, y).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locations: get by coords: %w", err)
	}
	return &loc, nil
}
