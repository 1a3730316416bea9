package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// eventIndex は有効イベントの正規インデックス。永続側の確定後にのみ
// 更新され、ストアと食い違った状態を残さない。
type eventIndex struct {
	mu   sync.RWMutex
	byID map[domain.EventID]domain.WorldEvent
}

func newEventIndex() *eventIndex {
	return &eventIndex{byID: make(map[domain.EventID]domain.WorldEvent)}
}

func (idx *eventIndex) replaceAll(events []domain.WorldEvent) {
	next := make(map[domain.EventID]domain.WorldEvent, len(events))
	for _, e := range events {
		next[e.ID] = e
	}
	idx.mu.Lock()
	idx.byID = next
	idx.mu.Unlock()
}

func (idx *eventIndex) insert(e domain.WorldEvent) {
	idx.mu.Lock()
	idx.byID[e.ID] = e
	idx.mu.Unlock()
}

func (idx *eventIndex) remove(id domain.EventID) {
	idx.mu.Lock()
	delete(idx.byID, id)
	idx.mu.Unlock()
}

func (idx *eventIndex) count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

func (idx *eventIndex) list() []domain.WorldEvent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]domain.WorldEvent, 0, len(idx.byID))
	for _, e := range idx.byID {
		out = append(out, e)
	}
	return out
}

func (idx *eventIndex) expiredAsOf(now time.Time) []domain.WorldEvent {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []domain.WorldEvent
	for _, e := range idx.byID {
		if now.After(e.Deadline()) {
			out = append(out, e)
		}
	}
	return out
}

// travelEffects は指定拠点に効いている移動系倍率をまとめて返す。
func (idx *eventIndex) travelEffects(locs ...domain.LocationID) (delay, fuel, cost float64) {
	delay, fuel, cost = 1.0, 1.0, 1.0
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.byID {
		if !affectsAny(e, locs) {
			continue
		}
		if e.Effects.TravelDelayMultiplier > 0 {
			delay *= e.Effects.TravelDelayMultiplier
		}
		if e.Effects.FuelCostMultiplier > 0 {
			fuel *= e.Effects.FuelCostMultiplier
		}
		if e.Effects.TravelCostMultiplier > 0 {
			cost *= e.Effects.TravelCostMultiplier
		}
	}
	return delay, fuel, cost
}

func (idx *eventIndex) encounterMultiplier(loc domain.LocationID) float64 {
	mult := 1.0
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.byID {
		if e.Affects(loc) && e.Effects.EncounterMultiplier > 0 {
			mult *= e.Effects.EncounterMultiplier
		}
	}
	return mult
}

func (idx *eventIndex) pirateStrengthMultiplier(loc domain.LocationID) float64 {
	mult := 1.0
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, e := range idx.byID {
		if e.Affects(loc) && e.Effects.StrengthMultiplier > 0 {
			mult *= e.Effects.StrengthMultiplier
		}
	}
	return mult
}

func affectsAny(e domain.WorldEvent, locs []domain.LocationID) bool {
	for _, loc := range locs {
		if e.Affects(loc) {
			return true
		}
	}
	return false
}

// generateEvents は抽選周期ごとに確率でワールドイベントを発生させる。
func (e *Engine) generateEvents(ctx context.Context, now time.Time) *StageError {
	if !e.eventGate.Allow() {
		return nil
	}
	if e.rng.Float64() >= eventChance {
		return nil
	}
	return e.launchEvent(ctx, now)
}

// launchEvent は抽選に当たった周期のイベント生成本体。
func (e *Engine) launchEvent(ctx context.Context, now time.Time) *StageError {
	locations, err := e.state.ActiveLocations(ctx)
	if err != nil {
		return classifyStageErr("event_generation", err)
	}
	if len(locations) == 0 {
		return nil
	}
	affected := e.sampleLocations(locations, maxEventLocations)

	event := e.buildEvent(now, affected)
	cmd := domain.EventStartCommand{Event: event}
	if event.Kind == domain.EventMarketShift {
		cmd.MarketShift = &domain.MarketShift{Multiplier: event.Effects.PriceMultiplier}
	}
	if err := e.state.ApplyEventStart(ctx, cmd); err != nil {
		return classifyStageErr("event_generation", err)
	}
	// インデックス更新は永続確定の後
	e.events.insert(event)

	e.logger.InfoContext(ctx, "world event started",
		"eventID", event.ID, "kind", event.Kind, "severity", event.Severity,
		"locations", event.AffectedLocationIDs)

	payload := map[string]any{
		"event_id":           string(event.ID),
		"event_type":         string(event.Kind),
		"title":              event.Title,
		"description":        event.Description,
		"severity":           event.Severity,
		"duration_minutes":   int(event.Duration.Minutes()),
		"affected_locations": event.AffectedLocationIDs,
	}
	for _, loc := range event.AffectedLocationIDs {
		e.broadcastLocation(ctx, loc, domain.MsgWorldEvent, payload)
	}
	return nil
}

// expireEvents は期限切れイベントを失効させる。毎ティック走る。
func (e *Engine) expireEvents(ctx context.Context, now time.Time) *StageError {
	for _, event := range e.events.expiredAsOf(now) {
		err := e.state.ApplyEventEnd(ctx, domain.EventEndCommand{EventID: event.ID, Now: now})
		switch {
		case err == nil:
		case errors.Is(err, state.ErrEventNotFound), errors.Is(err, state.ErrConflict):
			// 永続側では既に終わっている。インデックスだけ追従させる。
		default:
			return classifyStageErr("event_expiry", err)
		}
		e.events.remove(event.ID)

		e.logger.InfoContext(ctx, "world event ended", "eventID", event.ID, "kind", event.Kind)

		payload := map[string]any{
			"event_id":           string(event.ID),
			"event_type":         "event_ended",
			"title":              event.Title + " - Ended",
			"description":        fmt.Sprintf("The %s has ended.", event.Title),
			"affected_locations": event.AffectedLocationIDs,
		}
		for _, loc := range event.AffectedLocationIDs {
			e.broadcastLocation(ctx, loc, domain.MsgWorldEvent, payload)
		}
	}
	return nil
}

func (e *Engine) sampleLocations(locations []domain.Location, n int) []domain.LocationID {
	ids := make([]domain.LocationID, len(locations))
	for i, loc := range locations {
		ids[i] = loc.ID
	}
	for i := len(ids) - 1; i > 0; i-- {
		j := e.rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

func (e *Engine) buildEvent(now time.Time, affected []domain.LocationID) domain.WorldEvent {
	event := domain.WorldEvent{
		ID:                  domain.EventID(uuid.NewString()),
		AffectedLocationIDs: affected,
		StartTime:           now,
		IsActive:            true,
	}

	kinds := []domain.EventKind{
		domain.EventMarketShift,
		domain.EventWeather,
		domain.EventPirateFleet,
		domain.EventRouteBlocked,
	}
	event.Kind = kinds[e.rng.Intn(len(kinds))]

	switch event.Kind {
	case domain.EventMarketShift:
		cargo := domain.CargoKinds[e.rng.Intn(len(domain.CargoKinds))]
		direction := "surge"
		multiplier := 1.5
		if e.rng.Intn(2) == 1 {
			direction = "crash"
			multiplier = 0.7
		}
		event.Title = fmt.Sprintf("%s market %s", cargo, direction)
		event.Description = fmt.Sprintf("A sudden %s in %s prices affects multiple markets!", direction, cargo)
		event.Effects = domain.EventEffects{
			Cargo:           cargo,
			Direction:       direction,
			PriceMultiplier: multiplier,
		}
		event.Duration = 60 * time.Minute
		event.Severity = e.randRange(3, 7)
	case domain.EventWeather:
		weather := []string{"storm", "fog", "hurricane", "blizzard"}[e.rng.Intn(4)]
		event.Title = fmt.Sprintf("severe %s", weather)
		event.Description = fmt.Sprintf("A %s is affecting travel and trade in the region!", weather)
		event.Effects = domain.EventEffects{
			WeatherKind:           weather,
			TravelDelayMultiplier: 1.5,
			FuelCostMultiplier:    1.3,
		}
		event.Duration = 45 * time.Minute
		event.Severity = e.randRange(2, 6)
	case domain.EventPirateFleet:
		event.Title = "pirate fleet spotted"
		event.Description = "A large pirate fleet has been spotted in the area! Exercise extreme caution!"
		event.Effects = domain.EventEffects{
			StrengthMultiplier:  1.4,
			EncounterMultiplier: 2.0,
		}
		event.Duration = 90 * time.Minute
		event.Severity = e.randRange(5, 9)
	case domain.EventRouteBlocked:
		event.Title = "trade route disruption"
		event.Description = "Major trade routes have been disrupted, affecting cargo movement!"
		event.Effects = domain.EventEffects{
			TravelCostMultiplier: 1.8,
			RewardMultiplier:     1.3,
		}
		event.Duration = 120 * time.Minute
		event.Severity = e.randRange(4, 7)
	}
	return event
}

func (e *Engine) randRange(lo, hi int) int {
	return lo + e.rng.Intn(hi-lo+1)
}
