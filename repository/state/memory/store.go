package memory

import (
	"fmt"
	"sort"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// Store はインメモリのワールド状態を保持する共通ストレージ。
// 排他制御は持たない。ConcurrentStore がロック戦略を被せて利用する。
type Store struct {
	players   map[domain.PlayerID]*domain.Player
	vehicles  map[domain.VehicleID]*domain.Vehicle
	locations map[domain.LocationID]*domain.Location
	markets   map[marketKey]*domain.MarketEntry
	missions  map[domain.MissionID]*domain.Mission
	events    map[domain.EventID]*domain.WorldEvent
	combatLog []domain.CombatLogEntry
}

type marketKey struct {
	location domain.LocationID
	cargo    domain.CargoKind
}

// NewStore は初期状態をコピーしつつストアを生成する。
func NewStore(snap state.Snapshot) *Store {
	store := &Store{
		players:   make(map[domain.PlayerID]*domain.Player, len(snap.Players)),
		vehicles:  make(map[domain.VehicleID]*domain.Vehicle, len(snap.Vehicles)),
		locations: make(map[domain.LocationID]*domain.Location, len(snap.Locations)),
		markets:   make(map[marketKey]*domain.MarketEntry, len(snap.Markets)),
		missions:  make(map[domain.MissionID]*domain.Mission, len(snap.Missions)),
		events:    make(map[domain.EventID]*domain.WorldEvent, len(snap.Events)),
	}
	for i := range snap.Players {
		p := snap.Players[i]
		store.players[p.ID] = &p
	}
	for i := range snap.Vehicles {
		v := copyVehicle(&snap.Vehicles[i])
		store.vehicles[v.ID] = &v
	}
	for i := range snap.Locations {
		l := snap.Locations[i]
		store.locations[l.ID] = &l
	}
	for i := range snap.Markets {
		m := copyMarket(&snap.Markets[i])
		store.markets[marketKey{m.LocationID, m.Cargo}] = &m
	}
	for i := range snap.Missions {
		ms := copyMission(&snap.Missions[i])
		store.missions[ms.ID] = &ms
	}
	for i := range snap.Events {
		e := copyEvent(&snap.Events[i])
		store.events[e.ID] = &e
	}
	return store
}

func (s *Store) playerByID(id domain.PlayerID) (domain.Player, error) {
	p, err := s.getPlayer(id)
	if err != nil {
		return domain.Player{}, err
	}
	return *p, nil
}

func (s *Store) vehicleByID(id domain.VehicleID) (domain.Vehicle, error) {
	v, err := s.getVehicle(id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return copyVehicle(v), nil
}

func (s *Store) vehiclesByOwner(owner domain.PlayerID) []domain.Vehicle {
	out := make([]domain.Vehicle, 0, 4)
	for _, v := range s.vehicles {
		if v.OwnerID == owner {
			out = append(out, copyVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) locationByID(id domain.LocationID) (domain.Location, error) {
	l, err := s.getLocation(id)
	if err != nil {
		return domain.Location{}, err
	}
	return *l, nil
}

func (s *Store) activeLocations() []domain.Location {
	out := make([]domain.Location, 0, len(s.locations))
	for _, l := range s.locations {
		if l.IsActive {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) arrivedVehicles(now time.Time) []domain.Vehicle {
	out := make([]domain.Vehicle, 0)
	for _, v := range s.vehicles {
		if v.IsTraveling && !v.EstimatedArrival.After(now) {
			out = append(out, copyVehicle(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) marketEntries() []domain.MarketEntry {
	out := make([]domain.MarketEntry, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, copyMarket(m))
	}
	sortMarkets(out)
	return out
}

func (s *Store) marketByLocation(id domain.LocationID) []domain.MarketEntry {
	out := make([]domain.MarketEntry, 0, len(domain.CargoKinds))
	for _, m := range s.markets {
		if m.LocationID == id {
			out = append(out, copyMarket(m))
		}
	}
	sortMarkets(out)
	return out
}

func (s *Store) activeEvents() []domain.WorldEvent {
	out := make([]domain.WorldEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.IsActive {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) expiredMissions(now time.Time) []domain.Mission {
	out := make([]domain.Mission, 0)
	for _, m := range s.missions {
		if m.Open() && !m.Deadline.IsZero() && !m.Deadline.After(now) {
			out = append(out, copyMission(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) applyTravelStart(cmd domain.TravelStartCommand) error {
	vehicle, err := s.getVehicle(cmd.VehicleID)
	if err != nil {
		return err
	}
	if vehicle.OwnerID != cmd.PlayerID {
		return fmt.Errorf("%w: vehicle %d not owned by player %d", state.ErrConflict, cmd.VehicleID, cmd.PlayerID)
	}
	if vehicle.IsTraveling {
		return fmt.Errorf("%w: vehicle %d already traveling", state.ErrConflict, cmd.VehicleID)
	}
	if _, err := s.getLocation(cmd.DestinationID); err != nil {
		return err
	}
	if vehicle.CurrentFuel < cmd.FuelCost {
		return fmt.Errorf("%w: vehicle %d fuel %d < cost %d", state.ErrConflict, cmd.VehicleID, vehicle.CurrentFuel, cmd.FuelCost)
	}
	if err := vehicle.BeginTravel(cmd.DestinationID, cmd.Departure, cmd.Arrival); err != nil {
		return fmt.Errorf("%w: %v", state.ErrConflict, err)
	}
	vehicle.CurrentFuel -= cmd.FuelCost
	return nil
}

func (s *Store) applyArrivals(cmd domain.ArrivalsCommand) (domain.ArrivalsResult, error) {
	result := domain.ArrivalsResult{}
	for _, id := range cmd.VehicleIDs {
		vehicle, ok := s.vehicles[id]
		if !ok {
			continue
		}
		// 照会と確定の間に状態が変わった機体は黙って飛ばす
		if !vehicle.IsTraveling || vehicle.EstimatedArrival.After(cmd.Now) {
			continue
		}
		arrived := vehicle.CompleteTravel()
		if owner, ok := s.players[vehicle.OwnerID]; ok {
			owner.CurrentLocationID = arrived
		}
		result.Arrivals = append(result.Arrivals, domain.TravelArrival{
			PlayerID:   vehicle.OwnerID,
			VehicleID:  vehicle.ID,
			LocationID: arrived,
		})
	}
	return result, nil
}

func (s *Store) applyMarketTick(cmd domain.MarketTickCommand) (domain.MarketTickResult, error) {
	touched := make([]domain.LocationID, 0, len(cmd.Adjustments))
	seen := make(map[domain.LocationID]struct{})
	for _, adj := range cmd.Adjustments {
		entry, err := s.getMarket(adj.LocationID, adj.Kind)
		if err != nil {
			return domain.MarketTickResult{}, err
		}
		entry.Supply = floorZero(entry.Supply + adj.SupplyDelta)
		entry.Demand = floorZero(entry.Demand + adj.DemandDelta)
		if adj.PriceMultiplier != 0 && adj.PriceMultiplier != 1.0 {
			entry.ScalePrices(adj.PriceMultiplier)
		}
		entry.RecordHistory(cmd.Now)
		entry.UpdatedAt = cmd.Now
		if _, ok := seen[adj.LocationID]; !ok {
			seen[adj.LocationID] = struct{}{}
			touched = append(touched, adj.LocationID)
		}
	}

	result := domain.MarketTickResult{Snapshots: make([]domain.MarketSnapshot, 0, len(touched))}
	for _, id := range touched {
		result.Snapshots = append(result.Snapshots, domain.MarketSnapshot{
			LocationID: id,
			Entries:    s.marketByLocation(id),
		})
	}
	return result, nil
}

func (s *Store) applyEventStart(cmd domain.EventStartCommand) error {
	event := cmd.Event
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("%w: event %s already exists", state.ErrConflict, event.ID)
	}
	stored := copyEvent(&event)
	s.events[stored.ID] = &stored

	if cmd.MarketShift == nil {
		return nil
	}
	for _, locID := range event.AffectedLocationIDs {
		for key, entry := range s.markets {
			if key.location != locID {
				continue
			}
			if event.Effects.Cargo != "" && key.cargo != event.Effects.Cargo {
				continue
			}
			entry.ScalePrices(cmd.MarketShift.Multiplier)
			entry.UpdatedAt = event.StartTime
		}
	}
	return nil
}

func (s *Store) applyEventEnd(cmd domain.EventEndCommand) error {
	event, ok := s.events[cmd.EventID]
	if !ok {
		return fmt.Errorf("%w: %s", state.ErrEventNotFound, cmd.EventID)
	}
	if !event.IsActive {
		return fmt.Errorf("%w: event %s already ended", state.ErrConflict, cmd.EventID)
	}
	event.IsActive = false
	if event.EndTime.IsZero() {
		event.EndTime = cmd.Now
	}
	return nil
}

func (s *Store) applyMissionFailure(cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error) {
	mission, ok := s.missions[cmd.MissionID]
	if !ok {
		return domain.MissionFailureResult{}, fmt.Errorf("%w: %d", state.ErrMissionNotFound, cmd.MissionID)
	}
	if !mission.Open() {
		return domain.MissionFailureResult{}, fmt.Errorf("%w: mission %d is not open", state.ErrConflict, cmd.MissionID)
	}
	if mission.PlayerID == 0 {
		return domain.MissionFailureResult{}, fmt.Errorf("%w: mission %d has no assignee", state.ErrConflict, cmd.MissionID)
	}
	player, err := s.getPlayer(mission.PlayerID)
	if err != nil {
		return domain.MissionFailureResult{}, err
	}

	penalty := mission.FailurePenalty()
	player.Credits = floorZero(player.Credits - penalty)
	player.Reputation = floorZero(player.Reputation - domain.MissionReputationPenalty)
	mission.Status = domain.MissionFailed

	return domain.MissionFailureResult{
		PlayerID:       player.ID,
		MissionID:      mission.ID,
		CreditsPenalty: penalty,
		NewCredits:     player.Credits,
		NewReputation:  player.Reputation,
	}, nil
}

func (s *Store) applyTrade(cmd domain.TradeCommand) (domain.TradeResult, error) {
	player, err := s.getPlayer(cmd.PlayerID)
	if err != nil {
		return domain.TradeResult{}, err
	}
	vehicle, err := s.getVehicle(cmd.VehicleID)
	if err != nil {
		return domain.TradeResult{}, err
	}
	entry, err := s.getMarket(cmd.LocationID, cmd.Kind)
	if err != nil {
		return domain.TradeResult{}, err
	}
	if vehicle.OwnerID != cmd.PlayerID {
		return domain.TradeResult{}, fmt.Errorf("%w: vehicle %d not owned by player %d", state.ErrConflict, cmd.VehicleID, cmd.PlayerID)
	}
	if vehicle.IsTraveling || vehicle.CurrentLocationID != cmd.LocationID {
		return domain.TradeResult{}, fmt.Errorf("%w: vehicle %d is not at location %d", state.ErrConflict, cmd.VehicleID, cmd.LocationID)
	}
	if cmd.Quantity <= 0 {
		return domain.TradeResult{}, fmt.Errorf("%w: quantity %d", state.ErrConflict, cmd.Quantity)
	}

	total := cmd.UnitPrice * cmd.Quantity
	switch cmd.Side {
	case domain.TradeBuy:
		if entry.Supply < cmd.Quantity {
			return domain.TradeResult{}, fmt.Errorf("%w: supply %d < quantity %d", state.ErrConflict, entry.Supply, cmd.Quantity)
		}
		if player.Credits < total {
			return domain.TradeResult{}, fmt.Errorf("%w: credits %d < cost %d", state.ErrConflict, player.Credits, total)
		}
		if vehicle.Cargo.Total()+cmd.Quantity > vehicle.CargoCapacity {
			return domain.TradeResult{}, fmt.Errorf("%w: cargo capacity %d exceeded", state.ErrConflict, vehicle.CargoCapacity)
		}
		player.Credits -= total
		entry.Supply -= cmd.Quantity
		entry.Demand += cmd.Quantity / 2
		vehicle.Cargo.Add(cmd.Kind, cmd.Quantity)
	case domain.TradeSell:
		if vehicle.Cargo[cmd.Kind] < cmd.Quantity {
			return domain.TradeResult{}, fmt.Errorf("%w: cargo %d < quantity %d", state.ErrConflict, vehicle.Cargo[cmd.Kind], cmd.Quantity)
		}
		if entry.Demand < cmd.Quantity {
			return domain.TradeResult{}, fmt.Errorf("%w: demand %d < quantity %d", state.ErrConflict, entry.Demand, cmd.Quantity)
		}
		player.Credits += total
		entry.Supply += cmd.Quantity
		entry.Demand -= cmd.Quantity
		vehicle.Cargo.Add(cmd.Kind, -cmd.Quantity)
	default:
		return domain.TradeResult{}, fmt.Errorf("%w: unknown trade side %q", state.ErrConflict, cmd.Side)
	}

	return domain.TradeResult{
		TotalPrice:  total,
		NewCredits:  player.Credits,
		NewSupply:   entry.Supply,
		NewDemand:   entry.Demand,
		NewManifest: vehicle.Cargo.Clone(),
	}, nil
}

func (s *Store) applyCombat(cmd domain.CombatCommand) (domain.CombatResult, error) {
	deltas := []domain.CombatantDelta{cmd.Attacker}
	if cmd.Defender != nil {
		deltas = append(deltas, *cmd.Defender)
	}
	// 先に全参加者を解決してから書き込む。部分適用を残さないため。
	for _, delta := range deltas {
		if _, err := s.getVehicle(delta.VehicleID); err != nil {
			return domain.CombatResult{}, err
		}
		if delta.PlayerID != 0 {
			if _, err := s.getPlayer(delta.PlayerID); err != nil {
				return domain.CombatResult{}, err
			}
		}
	}

	result := domain.CombatResult{}
	for i, delta := range deltas {
		vehicle, _ := s.getVehicle(delta.VehicleID)
		vehicle.Durability = floorZero(delta.NewDurability)
		for kind, qty := range delta.CargoDelta {
			vehicle.Cargo.Add(kind, qty)
		}
		if delta.PlayerID == 0 {
			continue
		}
		player, _ := s.getPlayer(delta.PlayerID)
		player.Credits = floorZero(player.Credits + delta.CreditsDelta)
		player.Experience += delta.ExperienceDelta
		if i == 0 {
			result.AttackerCredits = player.Credits
			result.AttackerExperience = player.Experience
			result.AttackerLevel = player.Level
		}
	}
	s.combatLog = append(s.combatLog, cmd.Log)
	return result, nil
}

func (s *Store) copyCombatLog() []domain.CombatLogEntry {
	out := make([]domain.CombatLogEntry, len(s.combatLog))
	for i := range s.combatLog {
		entry := s.combatLog[i]
		entry.CargoLost = entry.CargoLost.Clone()
		entry.CargoGained = entry.CargoGained.Clone()
		out[i] = entry
	}
	return out
}

func (s *Store) getPlayer(id domain.PlayerID) (*domain.Player, error) {
	p, ok := s.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", state.ErrPlayerNotFound, id)
	}
	return p, nil
}

func (s *Store) getVehicle(id domain.VehicleID) (*domain.Vehicle, error) {
	v, ok := s.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", state.ErrVehicleNotFound, id)
	}
	return v, nil
}

func (s *Store) getLocation(id domain.LocationID) (*domain.Location, error) {
	l, ok := s.locations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", state.ErrLocationNotFound, id)
	}
	return l, nil
}

func (s *Store) getMarket(loc domain.LocationID, cargo domain.CargoKind) (*domain.MarketEntry, error) {
	m, ok := s.markets[marketKey{loc, cargo}]
	if !ok {
		return nil, fmt.Errorf("%w: location=%d cargo=%s", state.ErrMarketNotFound, loc, cargo)
	}
	return m, nil
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func sortMarkets(entries []domain.MarketEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LocationID != entries[j].LocationID {
			return entries[i].LocationID < entries[j].LocationID
		}
		return entries[i].Cargo < entries[j].Cargo
	})
}

func copyVehicle(src *domain.Vehicle) domain.Vehicle {
	cp := *src
	cp.Cargo = src.Cargo.Clone()
	return cp
}

func copyMarket(src *domain.MarketEntry) domain.MarketEntry {
	cp := *src
	cp.History = append([]domain.PricePoint(nil), src.History...)
	return cp
}

func copyMission(src *domain.Mission) domain.Mission {
	cp := *src
	cp.RequiredCargo = src.RequiredCargo.Clone()
	return cp
}

func copyEvent(src *domain.WorldEvent) domain.WorldEvent {
	cp := *src
	cp.AffectedLocationIDs = append([]domain.LocationID(nil), src.AffectedLocationIDs...)
	return cp
}
