// Package gamecfg holds the tables of per-type tuning values (unit stamina
// recovery rates, terrain movement costs) that the game state model
// (internal/db) consults to compute derived attributes. These tables are
// injected at startup from the TOML config (internal/config) rather than
// looked up by the enum types themselves, per the "no ambient globals" rule:
// a UnitType or TerrainType value carries no behavior of its own, only a
// tag, and callers pass the relevant table explicitly.
package gamecfg

import "fmt"

// UnitType enumerates the kinds of military units an Army can contain.
type UnitType string

const (
	LightInfantry UnitType = "light_infantry"
	HeavyInfantry UnitType = "heavy_infantry"
	Spearmen      UnitType = "spearmen"
	LightCavalry  UnitType = "light_cavalry"
	HeavyCavalry  UnitType = "heavy_cavalry"
	Archer        UnitType = "archer"
	Crossbowman   UnitType = "crossbowman"
)

// AllUnitTypes lists every recognized unit type.
var AllUnitTypes = []UnitType{
	LightInfantry, HeavyInfantry, Spearmen, LightCavalry, HeavyCavalry, Archer, Crossbowman,
}

// TerrainType enumerates the kinds of terrain a Location can have.
// Swamp is not present in the distilled spec but is carried over from the
// original implementation's migration history (see SPEC_FULL.md §6).
type TerrainType string

const (
	Plains TerrainType = "plains"
	Forest TerrainType = "forest"
	Swamp  TerrainType = "swamp"
)

// AllTerrainTypes lists every recognized terrain type.
var AllTerrainTypes = []TerrainType{Plains, Forest, Swamp}

// UnitTable maps a unit type to its per-second stamina recovery rate.
type UnitTable map[UnitType]float64

// TerrainTable maps a terrain type to its per-step movement cost.
type TerrainTable map[TerrainType]float64

// DefaultUnitTable returns reasonable stamina recovery defaults, used when
// no config file overrides them.
func DefaultUnitTable() UnitTable {
	return UnitTable{
		LightInfantry: 0.02,
		HeavyInfantry: 0.015,
		Spearmen:      0.02,
		LightCavalry:  0.03,
		HeavyCavalry:  0.02,
		Archer:        0.02,
		Crossbowman:   0.015,
	}
}

// DefaultTerrainTable returns reasonable movement cost defaults.
func DefaultTerrainTable() TerrainTable {
	return TerrainTable{
		Plains: 0.1,
		Forest: 0.2,
		Swamp:  0.35,
	}
}

// StaminaRecovery looks up the recovery rate for t, returning an error if the
// table has no entry (a misconfigured deployment, not a bot error).
func (t UnitTable) StaminaRecovery(unit UnitType) (float64, error) {
	v, ok := t[unit]
	if !ok {
		return 0, fmt.Errorf("gamecfg: no stamina_recovery configured for unit type %q", unit)
	}
	return v, nil
}

// MovementCost looks up the movement cost for t, returning an error if the
// table has no entry.
func (t TerrainTable) MovementCost(terrain TerrainType) (float64, error) {
	v, ok := t[terrain]
	if !ok {
		return 0, fmt.Errorf("gamecfg: no movement_cost configured for terrain type %q", terrain)
	}
	return v, nil
}
