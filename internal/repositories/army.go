package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JakubTesarek/codeborn/internal/db"
)

// gormArmyRepository is the GORM implementation of ArmyRepository.
type gormArmyRepository struct {
	db *gorm.DB
}

// NewArmyRepository returns an ArmyRepository backed by the provided *gorm.DB.
func NewArmyRepository(database *gorm.DB) ArmyRepository {
	return &gormArmyRepository{db: database}
}

func (r *gormArmyRepository) Create(ctx context.Context, army *db.Army) error {
	if err := r.db.WithContext(ctx).Create(army).Error; err != nil {
		return fmt.Errorf("armies: create: %w", err)
	}
	return nil
}

// GetWithUnitsAndLocation loads an army scoped to botID along with its units
// and location. Units and locations aren't GORM associations here — the
// teacher's repositories resolve related rows with explicit follow-up
// queries rather than relying on GORM to infer foreign keys from uuid.UUID
// primary keys — so this issues three queries rather than a preload.
func (r *gormArmyRepository) GetWithUnitsAndLocation(ctx context.Context, armyID, botID uuid.UUID) (*db.Army, []db.Unit, *db.Location, error) {
	var army db.Army
	err := r.db.WithContext(ctx).First(&army, "gid = ? AND bot_id = ?", armyID, botID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, ErrNotFound
		}
		return nil, nil, nil, fmt.Errorf("armies: get with units and location: %w", err)
	}

	var units []db.Unit
	if err := r.db.WithContext(ctx).Where("army_id = ?", army.GID).Order("type ASC").Find(&units).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("armies: get with units and location: load units: %w", err)
	}

	var loc db.Location
	if err := r.db.WithContext(ctx).First(&loc, "gid = ?", army.LocationID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("armies: get with units and location: load location: %w", err)
	}

	return &army, units, &loc, nil
}

// ListByBotWithUnitsAndLocations loads every army owned by botID with units
// and location eagerly resolved, batched to avoid N+1 queries: armies first,
// then all units and all locations for the set in two follow-up queries.
func (r *gormArmyRepository) ListByBotWithUnitsAndLocations(ctx context.Context, botID uuid.UUID) ([]ArmyDump, error) {
	var armies []db.Army
	if err := r.db.WithContext(ctx).Where("bot_id = ?", botID).Order("created_at ASC").Find(&armies).Error; err != nil {
		return nil, fmt.Errorf("armies: list by bot: %w", err)
	}
	if len(armies) == 0 {
		return []ArmyDump{}, nil
	}

	armyIDs := make([]uuid.UUID, len(armies))
	locationIDs := make([]uuid.UUID, len(armies))
	for i, a := range armies {
		armyIDs[i] = a.GID
		locationIDs[i] = a.LocationID
	}

	var units []db.Unit
	if err := r.db.WithContext(ctx).Where("army_id IN ?", armyIDs).Order("type ASC").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("armies: list by bot: load units: %w", err)
	}
	unitsByArmy := make(map[uuid.UUID][]db.Unit, len(armies))
	for _, u := range units {
		unitsByArmy[u.ArmyID] = append(unitsByArmy[u.ArmyID], u)
	}

	var locations []db.Location
	if err := r.db.WithContext(ctx).Where("gid IN ?", locationIDs).Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("armies: list by bot: load locations: %w", err)
	}
	locationByID := make(map[uuid.UUID]db.Location, len(locations))
	for _, l := range locations {
		locationByID[l.GID] = l
	}

	dumps := make([]ArmyDump, len(armies))
	for i, a := range armies {
		dumps[i] = ArmyDump{
			Army:     a,
			Units:    unitsByArmy[a.GID],
			Location: locationByID[a.LocationID],
		}
	}
	return dumps, nil
}

func (r *gormArmyRepository) UpdateLocation(ctx context.Context, armyID, locationID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&db.Army{}).
		Where("gid = ?", armyID).
		Update("location_id", locationID)
	if result.Error != nil {
		return fmt.Errorf("armies: update location: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormArmyRepository) Delete(ctx context.Context, armyID uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Army{}, "gid = ?", armyID)
	if result.Error != nil {
		return fmt.Errorf("armies: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
