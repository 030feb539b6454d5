package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/gamecfg"
	"github.com/JakubTesarek/codeborn/internal/repositories"
	"github.com/JakubTesarek/codeborn/internal/wire"
)

// ArmyHandlers implements the move/split/merge command handlers, the Go
// equivalent of codeborn_engine.commands.army. Validation order and error
// strings follow the original implementation exactly so bot clients written
// against it keep working unmodified.
type ArmyHandlers struct {
	Armies    repositories.ArmyRepository
	Units     repositories.UnitRepository
	Locations repositories.LocationRepository
	UnitTable gamecfg.UnitTable
	Terrains  gamecfg.TerrainTable
	Logger    *zap.Logger

	// Now is injected so tests can control the clock; defaults to time.Now
	// when left nil (see ArmyHandlers.now).
	Now func() time.Time
}

func (h *ArmyHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// Register attaches move, split and merge to router.
func (h *ArmyHandlers) Register(router *Router) {
	router.Route("move", h.move)
	router.Route("split", h.split)
	router.Route("merge", h.merge)
}

// -----------------------------------------------------------------------------
// dump helpers
// -----------------------------------------------------------------------------

func dumpLocation(loc db.Location) map[string]any {
	return map[string]any{
		"gid":     loc.GID.String(),
		"x":       loc.X,
		"y":       loc.Y,
		"terrain": string(loc.Terrain),
	}
}

func (h *ArmyHandlers) dumpUnit(u db.Unit) map[string]any {
	recovery, _ := h.UnitTable.StaminaRecovery(u.Type)
	return map[string]any{
		"gid":     u.GID.String(),
		"type":    string(u.Type),
		"count":   u.Count,
		"stamina": u.Stamina(h.now(), recovery),
	}
}

func (h *ArmyHandlers) dumpArmy(a db.Army, units []db.Unit, loc db.Location) map[string]any {
	dumped := make([]map[string]any, len(units))
	for i, u := range units {
		dumped[i] = h.dumpUnit(u)
	}
	return map[string]any{
		"gid":      a.GID.String(),
		"location": dumpLocation(loc),
		"units":    dumped,
	}
}

// -----------------------------------------------------------------------------
// payload parsing
// -----------------------------------------------------------------------------

func payloadUUID(payload map[string]any, field string) (uuid.UUID, error) {
	s, ok := payload[field].(string)
	if !ok {
		return uuid.UUID{}, errInvalidPayload(field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, errInvalidPayload(field)
	}
	return id, nil
}

func payloadInt(m map[string]any, field string) (int, bool) {
	v, ok := m[field]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// -----------------------------------------------------------------------------
// move
// -----------------------------------------------------------------------------

func (h *ArmyHandlers) move(ctx context.Context, ag agent.BotAgent, msg wire.Message) (map[string]any, error) {
	armyID, err := payloadUUID(msg.Payload, "army_gid")
	if err != nil {
		return ErrorResponse("Army not found"), nil
	}

	army, units, loc, err := h.Armies.GetWithUnitsAndLocation(ctx, armyID, ag.Bot().GID)
	if err != nil {
		return ErrorResponse("Army not found"), nil
	}

	locPayload, ok := msg.Payload["location"].(map[string]any)
	if !ok {
		return ErrorResponse("Location not found"), nil
	}
	x, xok := payloadInt(locPayload, "x")
	y, yok := payloadInt(locPayload, "y")
	if !xok || !yok {
		return ErrorResponse("Location not found"), nil
	}

	newLocation, err := h.Locations.GetByCoords(ctx, x, y)
	if err != nil {
		return ErrorResponse("Location not found"), nil
	}

	if loc.SameCell(*newLocation) {
		return ErrorResponse("Already at destination"), nil
	}
	if !loc.IsAdjacent(*newLocation) {
		return ErrorResponse("Destination not adjacent"), nil
	}

	cost, err := h.Terrains.MovementCost(newLocation.Terrain)
	if err != nil {
		return ErrorResponse("Location not found"), nil
	}

	now := h.now()
	for _, u := range units {
		recovery, _ := h.UnitTable.StaminaRecovery(u.Type)
		if u.Stamina(now, recovery) < cost {
			return ErrorResponse("Not enough stamina"), nil
		}
	}

	for i := range units {
		u := &units[i]
		recovery, _ := h.UnitTable.StaminaRecovery(u.Type)
		u.SetStamina(u.Stamina(now, recovery)-cost, now)
		if err := h.Units.UpdateStamina(ctx, u.GID, u.StaminaSnapshot, u.StaminaUpdated); err != nil {
			return nil, fmt.Errorf("move: update stamina: %w", err)
		}
	}

	if err := h.Armies.UpdateLocation(ctx, army.GID, newLocation.GID); err != nil {
		return nil, fmt.Errorf("move: update location: %w", err)
	}

	return SuccessResponse(map[string]any{
		"army":     h.dumpArmy(*army, units, *newLocation),
		"location": dumpLocation(*newLocation),
	}), nil
}

// -----------------------------------------------------------------------------
// split
// -----------------------------------------------------------------------------

func (h *ArmyHandlers) split(ctx context.Context, ag agent.BotAgent, msg wire.Message) (map[string]any, error) {
	armyID, err := payloadUUID(msg.Payload, "army_gid")
	if err != nil {
		return ErrorResponse("Army not found"), nil
	}

	army, units, loc, err := h.Armies.GetWithUnitsAndLocation(ctx, armyID, ag.Bot().GID)
	if err != nil {
		return ErrorResponse("Army not found"), nil
	}

	requested, ok := msg.Payload["units"].(map[string]any)
	if !ok {
		return ErrorResponse("No units to split"), nil
	}

	anyPositive := false
	for _, v := range requested {
		if f, ok := v.(float64); ok && f > 0 {
			anyPositive = true
			break
		}
	}
	if !anyPositive {
		return ErrorResponse("No units to split"), nil
	}

	unitByID := make(map[uuid.UUID]db.Unit, len(units))
	remaining := make(map[uuid.UUID]int, len(units))
	for _, u := range units {
		unitByID[u.GID] = u
		remaining[u.GID] = u.Count
	}

	keys := make([]string, 0, len(requested))
	for k := range requested {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	newCounts := make(map[uuid.UUID]int, len(requested))
	for _, k := range keys {
		count, ok := requested[k].(float64)
		if !ok || int(count) <= 0 {
			return ErrorResponse(fmt.Sprintf("Invalid count for unit %s", k)), nil
		}
		unitID, err := uuid.Parse(k)
		if err != nil {
			return ErrorResponse(fmt.Sprintf("Unit %s not found in army", k)), nil
		}
		orig, ok := unitByID[unitID]
		if !ok {
			return ErrorResponse(fmt.Sprintf("Unit %s not found in army", k)), nil
		}
		if orig.Count < int(count) {
			return ErrorResponse(fmt.Sprintf("Not enough units of type %s", k)), nil
		}
		remaining[unitID] -= int(count)
		newCounts[unitID] = int(count)
	}

	allEmptied := true
	for _, c := range remaining {
		if c != 0 {
			allEmptied = false
			break
		}
	}
	if allEmptied {
		return ErrorResponse("Cannot split all units from army"), nil
	}

	newArmy := &db.Army{BotID: ag.Bot().GID, LocationID: army.LocationID}
	if err := h.Armies.Create(ctx, newArmy); err != nil {
		return nil, fmt.Errorf("split: create new army: %w", err)
	}

	now := h.now()
	var newUnits []db.Unit
	for unitID, left := range remaining {
		orig := unitByID[unitID]
		if orig.Count != left {
			if left == 0 {
				if err := h.Units.Delete(ctx, orig.GID); err != nil {
					return nil, fmt.Errorf("split: delete emptied unit: %w", err)
				}
			} else if err := h.Units.UpdateCount(ctx, orig.GID, left); err != nil {
				return nil, fmt.Errorf("split: update remaining count: %w", err)
			}
		}

		if newCount := newCounts[unitID]; newCount > 0 {
			recovery, _ := h.UnitTable.StaminaRecovery(orig.Type)
			newUnit := &db.Unit{
				ArmyID: newArmy.GID,
				Type:   orig.Type,
				Count:  newCount,
			}
			newUnit.SetStamina(orig.Stamina(now, recovery), now)
			if err := h.Units.Create(ctx, newUnit); err != nil {
				return nil, fmt.Errorf("split: create new unit: %w", err)
			}
			newUnits = append(newUnits, *newUnit)
		}
	}

	remainingUnits := make([]db.Unit, 0, len(units))
	for _, u := range units {
		if left, ok := remaining[u.GID]; ok && left > 0 {
			u.Count = left
			remainingUnits = append(remainingUnits, u)
		}
	}

	return SuccessResponse(map[string]any{
		"orig": h.dumpArmy(*army, remainingUnits, *loc),
		"new":  h.dumpArmy(*newArmy, newUnits, *loc),
	}), nil
}

// -----------------------------------------------------------------------------
// merge
// -----------------------------------------------------------------------------

func (h *ArmyHandlers) merge(ctx context.Context, ag agent.BotAgent, msg wire.Message) (map[string]any, error) {
	rawIDs, ok := msg.Payload["armies"].([]any)
	if !ok {
		return ErrorResponse("At least two armies required to merge"), nil
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, raw := range rawIDs {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if len(ids) < 2 {
		return ErrorResponse("At least two armies required to merge"), nil
	}

	type loadedArmy struct {
		army  *db.Army
		units []db.Unit
		loc   *db.Location
	}
	loaded := make([]loadedArmy, 0, len(ids))
	for _, id := range ids {
		a, units, loc, err := h.Armies.GetWithUnitsAndLocation(ctx, id, ag.Bot().GID)
		if err != nil {
			return ErrorResponse(fmt.Sprintf("Army %s not found", id)), nil
		}
		loaded = append(loaded, loadedArmy{army: a, units: units, loc: loc})
	}

	target := loaded[0]
	now := h.now()

	for _, other := range loaded[1:] {
		if target.army.LocationID != other.army.LocationID {
			return ErrorResponse("All armies must be in the same location to merge"), nil
		}

		for _, u := range other.units {
			var matchIdx = -1
			for i, tu := range target.units {
				if tu.Type == u.Type {
					matchIdx = i
					break
				}
			}

			if matchIdx == -1 {
				if err := h.Units.Reparent(ctx, u.GID, target.army.GID); err != nil {
					return nil, fmt.Errorf("merge: reparent unit: %w", err)
				}
				u.ArmyID = target.army.GID
				target.units = append(target.units, u)
				continue
			}

			tu := &target.units[matchIdx]
			recoveryT, _ := h.UnitTable.StaminaRecovery(tu.Type)
			recoveryU, _ := h.UnitTable.StaminaRecovery(u.Type)
			targetStamina := tu.Stamina(now, recoveryT)
			otherStamina := u.Stamina(now, recoveryU)

			totalCount := tu.Count + u.Count
			blended := (targetStamina*float64(tu.Count) + otherStamina*float64(u.Count)) / float64(totalCount)

			tu.Count = totalCount
			tu.SetStamina(blended, now)

			if err := h.Units.UpdateCount(ctx, tu.GID, tu.Count); err != nil {
				return nil, fmt.Errorf("merge: update target count: %w", err)
			}
			if err := h.Units.UpdateStamina(ctx, tu.GID, tu.StaminaSnapshot, tu.StaminaUpdated); err != nil {
				return nil, fmt.Errorf("merge: update target stamina: %w", err)
			}
			if err := h.Units.Delete(ctx, u.GID); err != nil {
				return nil, fmt.Errorf("merge: delete merged unit: %w", err)
			}
		}

		if err := h.Armies.Delete(ctx, other.army.GID); err != nil {
			return nil, fmt.Errorf("merge: delete merged army: %w", err)
		}
	}

	return SuccessResponse(map[string]any{
		"army": h.dumpArmy(*target.army, target.units, *target.loc),
	}), nil
}
