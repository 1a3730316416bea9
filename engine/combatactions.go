package engine

import (
	"context"
	"errors"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/engine/combat"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// AttackVehicle は同一拠点にいる他プレイヤー機体への攻撃を解決し確定する。
func (e *Engine) AttackVehicle(ctx context.Context, playerID domain.PlayerID, vehicleID, targetID domain.VehicleID, action domain.CombatAction) error {
	attacker, err := e.ownedVehicleAtRest(ctx, playerID, vehicleID)
	if err != nil {
		return err
	}

	target, err := e.state.VehicleByID(ctx, targetID)
	if errors.Is(err, state.ErrVehicleNotFound) {
		return domain.Reject(domain.ReasonNoTargetVehicle)
	}
	if err != nil {
		return err
	}
	if target.OwnerID == playerID {
		return domain.Rejectf(domain.ReasonInvalidAction, "cannot attack your own vehicle")
	}
	if target.IsTraveling || target.CurrentLocationID != attacker.CurrentLocationID {
		return domain.Rejectf(domain.ReasonNotAtLocation, "vehicles must be at the same location for combat")
	}

	out := combat.Resolve(attacker.Combatant(), target.Combatant(), action, e.rng)

	var winnerID domain.PlayerID
	switch out.Winner {
	case combat.WinnerAttacker:
		winnerID = playerID
	case combat.WinnerDefender:
		winnerID = target.OwnerID
	}

	cmd := domain.CombatCommand{
		Attacker: domain.CombatantDelta{
			PlayerID:        playerID,
			VehicleID:       vehicleID,
			NewDurability:   out.AttackerDurability,
			CargoDelta:      out.CargoSeized.Clone(),
			CreditsDelta:    out.CreditsGained,
			ExperienceDelta: out.Experience,
		},
		Defender: &domain.CombatantDelta{
			PlayerID:      target.OwnerID,
			VehicleID:     targetID,
			NewDurability: out.DefenderDurability,
			CargoDelta:    negated(out.CargoSeized),
		},
		Log: domain.CombatLogEntry{
			PlayerID:         playerID,
			OpponentKind:     domain.OpponentPlayer,
			OpponentID:       target.OwnerID,
			LocationID:       attacker.CurrentLocationID,
			WinnerID:         winnerID,
			DamageDealt:      out.DamageDealt,
			DamageReceived:   out.DamageReceived,
			CargoGained:      out.CargoSeized.Clone(),
			CreditsGained:    out.CreditsGained,
			ExperienceGained: out.Experience,
		},
		Now: e.clock(),
	}

	result, err := e.state.ApplyCombat(ctx, cmd)
	if err != nil {
		if errors.Is(err, state.ErrConflict) {
			return domain.Rejectf(domain.ReasonInvalidAction, err.Error())
		}
		return err
	}

	e.logger.InfoContext(ctx, "combat resolved",
		"attackerID", playerID, "defenderID", target.OwnerID,
		"winnerID", winnerID, "damageDealt", out.DamageDealt, "damageReceived", out.DamageReceived)

	e.sendTo(ctx, playerID, domain.MsgCombatUpdate, map[string]any{
		"role":              "attacker",
		"opponent_id":       target.OwnerID,
		"winner_id":         winnerID,
		"damage_dealt":      out.DamageDealt,
		"damage_received":   out.DamageReceived,
		"durability":        out.AttackerDurability,
		"cargo_gained":      out.CargoSeized,
		"credits_gained":    out.CreditsGained,
		"experience_gained": out.Experience,
		"new_credits":       result.AttackerCredits,
		"level":             result.AttackerLevel,
	})
	e.sendTo(ctx, target.OwnerID, domain.MsgCombatUpdate, map[string]any{
		"role":            "defender",
		"opponent_id":     playerID,
		"winner_id":       winnerID,
		"damage_dealt":    out.DamageReceived,
		"damage_received": out.DamageDealt,
		"durability":      out.DefenderDurability,
		"cargo_lost":      out.CargoSeized,
	})
	return nil
}

// EngagePirates は現在地の危険度から海賊を生成して交戦を解決する。
func (e *Engine) EngagePirates(ctx context.Context, playerID domain.PlayerID, vehicleID domain.VehicleID, action domain.CombatAction) error {
	vehicle, err := e.ownedVehicleAtRest(ctx, playerID, vehicleID)
	if err != nil {
		return err
	}

	loc, err := e.state.LocationByID(ctx, vehicle.CurrentLocationID)
	if errors.Is(err, state.ErrLocationNotFound) {
		return domain.Rejectf(domain.ReasonNotAtLocation, "vehicle has no current location")
	}
	if err != nil {
		return err
	}

	pirate := combat.PirateStats(loc.DangerLevel)
	if mult := e.events.pirateStrengthMultiplier(loc.ID); mult != 1.0 {
		pirate.AttackPower = int(float64(pirate.AttackPower) * mult)
		pirate.Defense = int(float64(pirate.Defense) * mult)
	}

	out := combat.ResolvePirate(vehicle.Combatant(), pirate, action, e.rng)

	var winnerID domain.PlayerID
	if out.Winner == combat.WinnerAttacker {
		winnerID = playerID
	}

	// 差分マニフェストは負数を保持する必要があるため Add は使わない。
	cargoDelta := out.CargoGained.Clone()
	for kind, qty := range out.CargoLost {
		cargoDelta[kind] -= qty
		if cargoDelta[kind] == 0 {
			delete(cargoDelta, kind)
		}
	}

	cmd := domain.CombatCommand{
		Attacker: domain.CombatantDelta{
			PlayerID:        playerID,
			VehicleID:       vehicleID,
			NewDurability:   out.VehicleDurability,
			CargoDelta:      cargoDelta,
			CreditsDelta:    out.CreditsGained - out.CreditsLost,
			ExperienceDelta: out.Experience,
		},
		Log: domain.CombatLogEntry{
			PlayerID:         playerID,
			OpponentKind:     domain.OpponentPirate,
			LocationID:       loc.ID,
			WinnerID:         winnerID,
			DamageDealt:      out.DamageDealt,
			DamageReceived:   out.DamageReceived,
			CargoLost:        out.CargoLost.Clone(),
			CargoGained:      out.CargoGained.Clone(),
			CreditsLost:      out.CreditsLost,
			CreditsGained:    out.CreditsGained,
			ExperienceGained: out.Experience,
		},
		Now: e.clock(),
	}

	result, err := e.state.ApplyCombat(ctx, cmd)
	if err != nil {
		if errors.Is(err, state.ErrConflict) {
			return domain.Rejectf(domain.ReasonInvalidAction, err.Error())
		}
		return err
	}

	e.logger.InfoContext(ctx, "pirate combat resolved",
		"playerID", playerID, "locationID", loc.ID, "dangerLevel", loc.DangerLevel,
		"winnerID", winnerID)

	e.sendTo(ctx, playerID, domain.MsgCombatUpdate, map[string]any{
		"role":              "attacker",
		"opponent":          "pirates",
		"winner_id":         winnerID,
		"damage_dealt":      out.DamageDealt,
		"damage_received":   out.DamageReceived,
		"durability":        out.VehicleDurability,
		"cargo_gained":      out.CargoGained,
		"cargo_lost":        out.CargoLost,
		"credits_gained":    out.CreditsGained,
		"credits_lost":      out.CreditsLost,
		"experience_gained": out.Experience,
		"new_credits":       result.AttackerCredits,
		"level":             result.AttackerLevel,
	})
	return nil
}

// ownedVehicleAtRest は自分の機体が停泊中であることまでを検証して返す。
func (e *Engine) ownedVehicleAtRest(ctx context.Context, playerID domain.PlayerID, vehicleID domain.VehicleID) (domain.Vehicle, error) {
	vehicle, err := e.state.VehicleByID(ctx, vehicleID)
	if errors.Is(err, state.ErrVehicleNotFound) {
		return domain.Vehicle{}, domain.Reject(domain.ReasonNoTargetVehicle)
	}
	if err != nil {
		return domain.Vehicle{}, err
	}
	if vehicle.OwnerID != playerID {
		return domain.Vehicle{}, domain.Reject(domain.ReasonNotOwner)
	}
	if vehicle.IsTraveling {
		return domain.Vehicle{}, domain.Rejectf(domain.ReasonNotAtLocation, "vehicle is traveling")
	}
	return vehicle, nil
}

func negated(m domain.Manifest) domain.Manifest {
	out := make(domain.Manifest, len(m))
	for kind, qty := range m {
		out[kind] = -qty
	}
	return out
}
