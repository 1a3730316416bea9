package engine

import (
	"context"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
)

// resolveTravel は到着済み機体の移動を確定し、到着通知と遭遇判定を行う。
func (e *Engine) resolveTravel(ctx context.Context, now time.Time) *StageError {
	vehicles, err := e.state.ArrivedVehicles(ctx, now)
	if err != nil {
		return classifyStageErr("travel_resolution", err)
	}
	if len(vehicles) == 0 {
		return nil
	}

	ids := make([]domain.VehicleID, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	result, err := e.state.ApplyArrivals(ctx, domain.ArrivalsCommand{VehicleIDs: ids, Now: now})
	if err != nil {
		return classifyStageErr("travel_resolution", err)
	}

	for _, arrival := range result.Arrivals {
		e.registry.UpdateLocation(arrival.PlayerID, arrival.LocationID)

		location, err := e.state.LocationByID(ctx, arrival.LocationID)
		if err != nil {
			e.logger.WarnContext(ctx, "arrival location lookup failed",
				"vehicleID", arrival.VehicleID, "locationID", arrival.LocationID, "error", err)
			continue
		}

		e.sendTo(ctx, arrival.PlayerID, domain.MsgTravelComplete, map[string]any{
			"vehicle_id":    arrival.VehicleID,
			"location_id":   arrival.LocationID,
			"location_name": location.Name,
		})
		e.logger.InfoContext(ctx, "vehicle arrived",
			"vehicleID", arrival.VehicleID, "playerID", arrival.PlayerID, "locationID", arrival.LocationID)

		e.rollEncounter(ctx, arrival, location)
	}
	return nil
}

// rollEncounter は到着地の危険度に応じた海賊遭遇判定を行う。
// 通知のみで、戦闘の解決はクライアントのアクションに委ねる。
func (e *Engine) rollEncounter(ctx context.Context, arrival domain.TravelArrival, location domain.Location) {
	chance := float64(location.DangerLevel) * encounterChancePerDanger
	chance *= e.events.encounterMultiplier(location.ID)
	if e.rng.Float64() >= chance {
		return
	}
	e.sendTo(ctx, arrival.PlayerID, domain.MsgPirateEncounter, map[string]any{
		"vehicle_id":   arrival.VehicleID,
		"location_id":  location.ID,
		"danger_level": location.DangerLevel,
		"message":      "Pirates spotted! Prepare for combat!",
	})
}

// travelPlan は移動開始時の所要時間と燃料コストの見積もり。
type travelPlan struct {
	Duration time.Duration
	Arrival  time.Time
	FuelCost int
}

// planTravel は距離・速度・イベント倍率から移動計画を立てる。
func (e *Engine) planTravel(origin, dest domain.Location, speed int, departure time.Time) travelPlan {
	if speed < 1 {
		speed = 1
	}
	distance := origin.DistanceTo(dest)
	minutes := distance / float64(speed) * 60

	delayMult, fuelMult, _ := e.events.travelEffects(origin.ID, dest.ID)
	minutes *= delayMult
	fuelCost := int(distance * fuelPerDistance * fuelMult)

	travel := time.Duration(minutes * float64(time.Minute))
	return travelPlan{
		Duration: travel,
		Arrival:  departure.Add(travel),
		FuelCost: fuelCost,
	}
}
