package engine

import (
	"context"
	"errors"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// pushPeriodicState は接続中の全プレイヤーへサーバ状況の軽量更新を配る。
func (e *Engine) pushPeriodicState(ctx context.Context, now time.Time) *StageError {
	if !e.stateGate.Allow() {
		return nil
	}
	if len(e.registry.ConnectedPlayers()) == 0 {
		return nil
	}
	stats := e.registry.Stats()
	e.broadcastAll(ctx, domain.MsgGameStateUpdate, map[string]any{
		"online_players": stats.Connections,
		"active_events":  e.events.count(),
		"server_time":    now.UTC().Format(time.RFC3339),
	})
	return nil
}

// pushFullGameState は要求元プレイヤーにのみフル状態を送る。
func (e *Engine) pushFullGameState(ctx context.Context, playerID domain.PlayerID) error {
	player, err := e.state.PlayerByID(ctx, playerID)
	if err != nil {
		return err
	}
	vehicles, err := e.state.VehiclesByOwner(ctx, playerID)
	if err != nil {
		return err
	}

	var location map[string]any
	if player.CurrentLocationID != 0 {
		loc, err := e.state.LocationByID(ctx, player.CurrentLocationID)
		if err != nil && !errors.Is(err, state.ErrLocationNotFound) {
			return err
		}
		if err == nil {
			location = map[string]any{"id": loc.ID, "name": loc.Name}
		}
	}

	vehiclePayload := make([]map[string]any, 0, len(vehicles))
	for _, v := range vehicles {
		vehiclePayload = append(vehiclePayload, map[string]any{
			"id":           v.ID,
			"name":         v.Name,
			"type":         string(v.Kind),
			"location_id":  v.CurrentLocationID,
			"is_traveling": v.IsTraveling,
			"fuel":         v.CurrentFuel,
			"durability":   v.Durability,
		})
	}

	events := e.events.list()
	eventPayload := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		eventPayload = append(eventPayload, map[string]any{
			"id":                 string(ev.ID),
			"type":               string(ev.Kind),
			"title":              ev.Title,
			"description":        ev.Description,
			"severity":           ev.Severity,
			"affected_locations": ev.AffectedLocationIDs,
		})
	}

	e.sendTo(ctx, playerID, domain.MsgGameStateUpdate, map[string]any{
		"player": map[string]any{
			"id":               player.ID,
			"username":         player.Username,
			"level":            player.Level,
			"credits":          player.Credits,
			"reputation":       player.Reputation,
			"current_location": location,
		},
		"vehicles":      vehiclePayload,
		"active_events": eventPayload,
		"server_time":   e.clock().UTC().Format(time.RFC3339),
	})
	return nil
}
