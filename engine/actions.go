package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// HandleClientAction はクライアント発のアクションを処理する。ティックループとは
// 独立の同期経路で、ストアの Apply 単位でのみ状態を確定する。
func (e *Engine) HandleClientAction(ctx context.Context, playerID domain.PlayerID, raw []byte) {
	action, err := domain.DecodeClientAction(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "client action rejected at boundary", "playerID", playerID, "error", err)
		e.sendReject(ctx, playerID, domain.Rejectf(domain.ReasonInvalidAction, err.Error()))
		return
	}

	switch act := action.(type) {
	case domain.PingAction:
		e.sendTo(ctx, playerID, domain.MsgPong, map[string]any{
			"timestamp": e.clock().UTC().Format(time.RFC3339),
		})
	case domain.GetGameStateAction:
		if err := e.pushFullGameState(ctx, playerID); err != nil {
			e.failAction(ctx, playerID, "get_game_state", err)
		}
	case domain.GetMarketTrendsAction:
		e.handleMarketTrends(ctx, playerID)
	case domain.UpdateLocationAction:
		e.registry.UpdateLocation(playerID, act.LocationID)
	case domain.UpdateAllianceAction:
		e.registry.UpdateAlliance(playerID, act.AllianceID)
	case domain.StartTravelAction:
		if err := e.StartTravel(ctx, playerID, act.VehicleID, act.DestinationID); err != nil {
			e.failAction(ctx, playerID, "start_travel", err)
		}
	case domain.BuyCargoAction:
		err := e.Trade(ctx, playerID, domain.TradeBuy, act.VehicleID, act.LocationID, act.Cargo, act.Quantity)
		if err != nil {
			e.failAction(ctx, playerID, "buy_cargo", err)
		}
	case domain.SellCargoAction:
		err := e.Trade(ctx, playerID, domain.TradeSell, act.VehicleID, act.LocationID, act.Cargo, act.Quantity)
		if err != nil {
			e.failAction(ctx, playerID, "sell_cargo", err)
		}
	case domain.AttackAction:
		if err := e.AttackVehicle(ctx, playerID, act.VehicleID, act.TargetVehicleID, act.Action); err != nil {
			e.failAction(ctx, playerID, "attack", err)
		}
	case domain.EngagePiratesAction:
		if err := e.EngagePirates(ctx, playerID, act.VehicleID, act.Action); err != nil {
			e.failAction(ctx, playerID, "engage_pirates", err)
		}
	}
}

func (e *Engine) handleMarketTrends(ctx context.Context, playerID domain.PlayerID) {
	trends, err := e.MarketTrends(ctx)
	if err != nil {
		e.failAction(ctx, playerID, "get_market_trends", err)
		return
	}
	arbitrage, err := e.ArbitrageOpportunities(ctx)
	if err != nil {
		e.failAction(ctx, playerID, "get_market_trends", err)
		return
	}
	e.sendTo(ctx, playerID, domain.MsgMarketTrends, map[string]any{
		"trends":    trends,
		"arbitrage": arbitrage,
	})
}

// StartTravel は移動計画を立てて確定し、本人へ開始通知を送る。
func (e *Engine) StartTravel(ctx context.Context, playerID domain.PlayerID, vehicleID domain.VehicleID, destID domain.LocationID) error {
	vehicle, err := e.state.VehicleByID(ctx, vehicleID)
	if errors.Is(err, state.ErrVehicleNotFound) {
		return domain.Reject(domain.ReasonNoTargetVehicle)
	}
	if err != nil {
		return err
	}
	if vehicle.OwnerID != playerID {
		return domain.Reject(domain.ReasonNotOwner)
	}
	if vehicle.IsTraveling {
		return domain.Reject(domain.ReasonAlreadyTraveling)
	}

	dest, err := e.state.LocationByID(ctx, destID)
	if errors.Is(err, state.ErrLocationNotFound) {
		return domain.Reject(domain.ReasonUnknownDestination)
	}
	if err != nil {
		return err
	}
	if !dest.IsActive {
		return domain.Rejectf(domain.ReasonUnknownDestination, "destination is inactive")
	}
	origin, err := e.state.LocationByID(ctx, vehicle.CurrentLocationID)
	if errors.Is(err, state.ErrLocationNotFound) {
		return domain.Rejectf(domain.ReasonNotAtLocation, "vehicle has no current location")
	}
	if err != nil {
		return err
	}

	departure := e.clock()
	plan := e.planTravel(origin, dest, vehicle.Speed, departure)
	if vehicle.CurrentFuel < plan.FuelCost {
		return domain.Rejectf(domain.ReasonInsufficientFuel, "insufficient fuel for journey")
	}

	cmd := domain.TravelStartCommand{
		PlayerID:      playerID,
		VehicleID:     vehicleID,
		DestinationID: destID,
		Departure:     departure,
		Arrival:       plan.Arrival,
		FuelCost:      plan.FuelCost,
	}
	if err := e.state.ApplyTravelStart(ctx, cmd); err != nil {
		if errors.Is(err, state.ErrConflict) {
			return domain.Rejectf(domain.ReasonAlreadyTraveling, err.Error())
		}
		return err
	}

	e.logger.InfoContext(ctx, "travel started",
		"playerID", playerID, "vehicleID", vehicleID, "destinationID", destID,
		"eta", plan.Arrival, "fuelCost", plan.FuelCost)

	e.sendTo(ctx, playerID, domain.MsgTravelStarted, map[string]any{
		"vehicle_id":        vehicleID,
		"destination_id":    destID,
		"destination_name":  dest.Name,
		"estimated_arrival": plan.Arrival.UTC().Format(time.RFC3339),
		"fuel_cost":         plan.FuelCost,
	})
	return nil
}

// Trade は現在地の市場で売買を確定し、結果と市況を通知する。
func (e *Engine) Trade(ctx context.Context, playerID domain.PlayerID, side domain.TradeSide, vehicleID domain.VehicleID, locationID domain.LocationID, cargo domain.CargoKind, quantity int) error {
	if quantity <= 0 {
		return domain.Reject(domain.ReasonInvalidQuantity)
	}
	vehicle, err := e.state.VehicleByID(ctx, vehicleID)
	if errors.Is(err, state.ErrVehicleNotFound) {
		return domain.Reject(domain.ReasonNoTargetVehicle)
	}
	if err != nil {
		return err
	}
	if vehicle.OwnerID != playerID {
		return domain.Reject(domain.ReasonNotOwner)
	}
	if vehicle.IsTraveling || vehicle.CurrentLocationID != locationID {
		return domain.Reject(domain.ReasonNotAtLocation)
	}

	entries, err := e.state.MarketByLocation(ctx, locationID)
	if err != nil {
		return err
	}
	var entry *domain.MarketEntry
	for i := range entries {
		if entries[i].Cargo == cargo {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return domain.Rejectf(domain.ReasonUnknownCargo, "no market data for this cargo at this location")
	}

	unitPrice := entry.BuyPrice
	if side == domain.TradeSell {
		unitPrice = entry.SellPrice
	}

	// 事前検証はここで、最終検証はストアのトランザクション内で行われる。
	player, err := e.state.PlayerByID(ctx, playerID)
	if err != nil {
		return err
	}
	switch side {
	case domain.TradeBuy:
		if entry.Supply < quantity {
			return domain.Rejectf(domain.ReasonInsufficientSupply, "available: "+strconv.Itoa(entry.Supply))
		}
		if player.Credits < unitPrice*quantity {
			return domain.Reject(domain.ReasonInsufficientCredits)
		}
		if vehicle.Cargo.Total()+quantity > vehicle.CargoCapacity {
			return domain.Reject(domain.ReasonInsufficientCapacity)
		}
	case domain.TradeSell:
		if vehicle.Cargo[cargo] < quantity {
			return domain.Rejectf(domain.ReasonInsufficientCargo, "available: "+strconv.Itoa(vehicle.Cargo[cargo]))
		}
		if entry.Demand < quantity {
			return domain.Rejectf(domain.ReasonInsufficientDemand, "current demand: "+strconv.Itoa(entry.Demand))
		}
	}

	result, err := e.state.ApplyTrade(ctx, domain.TradeCommand{
		PlayerID:   playerID,
		VehicleID:  vehicleID,
		LocationID: locationID,
		Side:       side,
		Kind:       cargo,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
	})
	if err != nil {
		if errors.Is(err, state.ErrConflict) {
			return domain.Rejectf(domain.ReasonInvalidAction, err.Error())
		}
		return err
	}

	e.logger.InfoContext(ctx, "trade executed",
		"playerID", playerID, "side", side, "cargo", cargo,
		"quantity", quantity, "total", result.TotalPrice)

	e.sendTo(ctx, playerID, domain.MsgTradeComplete, map[string]any{
		"side":          string(side),
		"cargo_type":    string(cargo),
		"quantity":      quantity,
		"total_price":   result.TotalPrice,
		"new_credits":   result.NewCredits,
		"vehicle_cargo": result.NewManifest,
	})
	return nil
}

