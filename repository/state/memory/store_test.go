package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
	"github.com/anyashankar/cargo-clash/repository/state/memory"
)

var base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func fixture() state.Snapshot {
	return state.Snapshot{
		Players: []domain.Player{
			{ID: 1, Username: "alice", Level: 1, Credits: 1000, Reputation: 10, CurrentLocationID: 10},
			{ID: 2, Username: "bob", Level: 1, Credits: 500, CurrentLocationID: 10},
		},
		Vehicles: []domain.Vehicle{
			{ID: 1, OwnerID: 1, Name: "Hauler", Kind: domain.VehicleTruck, Speed: 60,
				CargoCapacity: 100, FuelCapacity: 200, CurrentFuel: 200,
				Durability: 100, MaxDurability: 100, AttackPower: 10, Defense: 10,
				CurrentLocationID: 10, Cargo: domain.Manifest{domain.CargoFood: 20}},
			{ID: 2, OwnerID: 2, Name: "Runner", Kind: domain.VehicleTruck, Speed: 60,
				CargoCapacity: 100, FuelCapacity: 200, CurrentFuel: 50,
				Durability: 100, MaxDurability: 100, AttackPower: 10, Defense: 10,
				CurrentLocationID: 10, Cargo: domain.Manifest{}},
		},
		Locations: []domain.Location{
			{ID: 10, Name: "Haven", X: 0, Y: 0, DangerLevel: 1, IsActive: true},
			{ID: 20, Name: "Ridge", X: 30, Y: 40, DangerLevel: 3, IsActive: true},
		},
		Markets: []domain.MarketEntry{
			{LocationID: 10, Cargo: domain.CargoFood, BuyPrice: 20, SellPrice: 15, Supply: 100, Demand: 50, UpdatedAt: base},
			{LocationID: 20, Cargo: domain.CargoFood, BuyPrice: 25, SellPrice: 22, Supply: 10, Demand: 90, UpdatedAt: base},
		},
		Missions: []domain.Mission{
			{ID: 1, Title: "Grain run", Kind: "transport", OriginID: 10, DestinationID: 20,
				RewardCredits: 1000, Status: domain.MissionAccepted, PlayerID: 1,
				Deadline: base.Add(-time.Minute)},
		},
	}
}

func newStore() *memory.ConcurrentStore {
	return memory.NewConcurrentStore(memory.NewStore(fixture()))
}

func TestApplyTrade_Buy(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	result, err := st.ApplyTrade(ctx, domain.TradeCommand{
		PlayerID: 1, VehicleID: 1, LocationID: 10,
		Side: domain.TradeBuy, Kind: domain.CargoFood, Quantity: 10, UnitPrice: 20,
	})
	if err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	if result.TotalPrice != 200 || result.NewCredits != 800 {
		t.Fatalf("credits: total=%d new=%d, want 200/800", result.TotalPrice, result.NewCredits)
	}
	if result.NewSupply != 90 {
		t.Fatalf("supply = %d, want 90", result.NewSupply)
	}
	// 需要は購入量の半分だけ増える
	if result.NewDemand != 55 {
		t.Fatalf("demand = %d, want 55", result.NewDemand)
	}
	if result.NewManifest[domain.CargoFood] != 30 {
		t.Fatalf("cargo = %d, want 30", result.NewManifest[domain.CargoFood])
	}
}

func TestApplyTrade_BuyInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	_, err := st.ApplyTrade(ctx, domain.TradeCommand{
		PlayerID: 2, VehicleID: 2, LocationID: 10,
		Side: domain.TradeBuy, Kind: domain.CargoFood, Quantity: 100, UnitPrice: 20,
	})
	if !errors.Is(err, state.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// 失敗した取引は何も変えない
	player, err := st.PlayerByID(ctx, 2)
	if err != nil {
		t.Fatalf("PlayerByID: %v", err)
	}
	if player.Credits != 500 {
		t.Fatalf("credits = %d, want unchanged 500", player.Credits)
	}
}

func TestApplyTrade_SellRemovesEmptyLine(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	result, err := st.ApplyTrade(ctx, domain.TradeCommand{
		PlayerID: 1, VehicleID: 1, LocationID: 10,
		Side: domain.TradeSell, Kind: domain.CargoFood, Quantity: 20, UnitPrice: 15,
	})
	if err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	if result.NewCredits != 1300 {
		t.Fatalf("credits = %d, want 1300", result.NewCredits)
	}
	if result.NewSupply != 120 || result.NewDemand != 30 {
		t.Fatalf("supply/demand = %d/%d, want 120/30", result.NewSupply, result.NewDemand)
	}
	if _, ok := result.NewManifest[domain.CargoFood]; ok {
		t.Fatal("emptied cargo line should be removed from the manifest")
	}
}

func TestApplyTravelStart(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	cmd := domain.TravelStartCommand{
		PlayerID: 1, VehicleID: 1, DestinationID: 20,
		Departure: base, Arrival: base.Add(50 * time.Minute), FuelCost: 5,
	}
	if err := st.ApplyTravelStart(ctx, cmd); err != nil {
		t.Fatalf("ApplyTravelStart: %v", err)
	}

	vehicle, err := st.VehicleByID(ctx, 1)
	if err != nil {
		t.Fatalf("VehicleByID: %v", err)
	}
	if !vehicle.IsTraveling || vehicle.DestinationID != 20 {
		t.Fatalf("vehicle state = traveling:%v dest:%d", vehicle.IsTraveling, vehicle.DestinationID)
	}
	if vehicle.CurrentFuel != 195 {
		t.Fatalf("fuel = %d, want 195", vehicle.CurrentFuel)
	}

	// 走行中の再出発は拒否される
	if err := st.ApplyTravelStart(ctx, cmd); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("second start = %v, want ErrConflict", err)
	}
}

func TestApplyArrivals_SkipsChangedVehicles(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	if err := st.ApplyTravelStart(ctx, domain.TravelStartCommand{
		PlayerID: 1, VehicleID: 1, DestinationID: 20,
		Departure: base, Arrival: base.Add(time.Minute), FuelCost: 1,
	}); err != nil {
		t.Fatalf("ApplyTravelStart: %v", err)
	}

	now := base.Add(2 * time.Minute)
	result, err := st.ApplyArrivals(ctx, domain.ArrivalsCommand{
		// 2 は走行中ではないので黙って飛ばされる
		VehicleIDs: []domain.VehicleID{1, 2, 999},
		Now:        now,
	})
	if err != nil {
		t.Fatalf("ApplyArrivals: %v", err)
	}
	if len(result.Arrivals) != 1 {
		t.Fatalf("arrivals = %d, want 1", len(result.Arrivals))
	}
	arr := result.Arrivals[0]
	if arr.VehicleID != 1 || arr.LocationID != 20 || arr.PlayerID != 1 {
		t.Fatalf("arrival = %+v", arr)
	}

	player, _ := st.PlayerByID(ctx, 1)
	if player.CurrentLocationID != 20 {
		t.Fatalf("owner location = %d, want 20", player.CurrentLocationID)
	}
	vehicle, _ := st.VehicleByID(ctx, 1)
	if vehicle.IsTraveling {
		t.Fatal("vehicle still traveling after arrival")
	}
}

func TestApplyMarketTick(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	result, err := st.ApplyMarketTick(ctx, domain.MarketTickCommand{
		Now: base.Add(5 * time.Minute),
		Adjustments: []domain.MarketAdjustment{
			{LocationID: 10, Kind: domain.CargoFood, SupplyDelta: -150, DemandDelta: 5, PriceMultiplier: 1.05},
		},
	})
	if err != nil {
		t.Fatalf("ApplyMarketTick: %v", err)
	}
	if len(result.Snapshots) != 1 || result.Snapshots[0].LocationID != 10 {
		t.Fatalf("snapshots = %+v", result.Snapshots)
	}
	entry := result.Snapshots[0].Entries[0]
	// 供給は 0 で止まる
	if entry.Supply != 0 {
		t.Fatalf("supply = %d, want 0", entry.Supply)
	}
	if entry.Demand != 55 {
		t.Fatalf("demand = %d, want 55", entry.Demand)
	}
	if entry.BuyPrice != 21 {
		t.Fatalf("buy price = %d, want 21", entry.BuyPrice)
	}
	if len(entry.History) != 1 {
		t.Fatalf("history points = %d, want 1", len(entry.History))
	}
}

func TestApplyEventStart_MarketShift(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	event := domain.WorldEvent{
		ID:    "evt-1",
		Kind:  domain.EventMarketShift,
		Title: "Food surge",
		Effects: domain.EventEffects{
			Cargo: domain.CargoFood, Direction: "surge", PriceMultiplier: 1.5,
		},
		AffectedLocationIDs: []domain.LocationID{10},
		Severity:            5,
		StartTime:           base,
		Duration:            time.Hour,
		IsActive:            true,
	}
	if err := st.ApplyEventStart(ctx, domain.EventStartCommand{
		Event: event, MarketShift: &domain.MarketShift{Multiplier: 1.5},
	}); err != nil {
		t.Fatalf("ApplyEventStart: %v", err)
	}

	// 影響拠点の価格だけが動く
	markets, _ := st.MarketByLocation(ctx, 10)
	if markets[0].BuyPrice != 30 || markets[0].SellPrice != 22 {
		t.Fatalf("shifted prices = %d/%d, want 30/22", markets[0].BuyPrice, markets[0].SellPrice)
	}
	other, _ := st.MarketByLocation(ctx, 20)
	if other[0].BuyPrice != 25 {
		t.Fatalf("unaffected price = %d, want 25", other[0].BuyPrice)
	}

	// 同一イベントの二重開始は競合
	if err := st.ApplyEventStart(ctx, domain.EventStartCommand{Event: event}); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("duplicate start = %v, want ErrConflict", err)
	}
}

func TestApplyEventEnd(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	event := domain.WorldEvent{
		ID: "evt-2", Kind: domain.EventWeather, StartTime: base,
		Duration: time.Hour, IsActive: true,
	}
	if err := st.ApplyEventStart(ctx, domain.EventStartCommand{Event: event}); err != nil {
		t.Fatalf("ApplyEventStart: %v", err)
	}
	if err := st.ApplyEventEnd(ctx, domain.EventEndCommand{EventID: "evt-2", Now: base.Add(time.Hour)}); err != nil {
		t.Fatalf("ApplyEventEnd: %v", err)
	}

	active, _ := st.ActiveEvents(ctx)
	if len(active) != 0 {
		t.Fatalf("active events = %d, want 0", len(active))
	}
	if err := st.ApplyEventEnd(ctx, domain.EventEndCommand{EventID: "evt-2", Now: base}); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("double end = %v, want ErrConflict", err)
	}
	if err := st.ApplyEventEnd(ctx, domain.EventEndCommand{EventID: "nope", Now: base}); !errors.Is(err, state.ErrEventNotFound) {
		t.Fatalf("unknown end = %v, want ErrEventNotFound", err)
	}
}

func TestApplyMissionFailure(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	expired, err := st.ExpiredMissions(ctx, base)
	if err != nil {
		t.Fatalf("ExpiredMissions: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired missions = %d, want 1", len(expired))
	}

	result, err := st.ApplyMissionFailure(ctx, domain.MissionFailureCommand{MissionID: 1, Now: base})
	if err != nil {
		t.Fatalf("ApplyMissionFailure: %v", err)
	}
	// 明示ペナルティなし: 報酬 1000 の 25%
	if result.CreditsPenalty != 250 || result.NewCredits != 750 {
		t.Fatalf("penalty/credits = %d/%d, want 250/750", result.CreditsPenalty, result.NewCredits)
	}
	if result.NewReputation != 8 {
		t.Fatalf("reputation = %d, want 8", result.NewReputation)
	}

	// 失敗済みミッションの再処理は競合
	if _, err := st.ApplyMissionFailure(ctx, domain.MissionFailureCommand{MissionID: 1, Now: base}); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("second failure = %v, want ErrConflict", err)
	}
}

func TestExpiredMissions_DeadlineAtQueryInstant(t *testing.T) {
	ctx := context.Background()
	snap := fixture()
	snap.Missions = []domain.Mission{
		{ID: 1, Title: "Grain run", Kind: "transport", OriginID: 10, DestinationID: 20,
			RewardCredits: 1000, Status: domain.MissionAccepted, PlayerID: 1, Deadline: base},
	}
	st := memory.NewConcurrentStore(memory.NewStore(snap))

	expired, err := st.ExpiredMissions(ctx, base.Add(-time.Second))
	if err != nil {
		t.Fatalf("ExpiredMissions: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired before deadline = %d, want 0", len(expired))
	}

	expired, err = st.ExpiredMissions(ctx, base)
	if err != nil {
		t.Fatalf("ExpiredMissions: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired at deadline = %d, want 1", len(expired))
	}
}

func TestApplyCombat_PlayerVersusPlayer(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	result, err := st.ApplyCombat(ctx, domain.CombatCommand{
		Attacker: domain.CombatantDelta{
			PlayerID: 1, VehicleID: 1, NewDurability: 90,
			CargoDelta: domain.Manifest{domain.CargoFuel: 2}, CreditsDelta: 100, ExperienceDelta: 50,
		},
		Defender: &domain.CombatantDelta{
			PlayerID: 2, VehicleID: 2, NewDurability: 0,
			CargoDelta: domain.Manifest{domain.CargoFuel: -2},
		},
		Log: domain.CombatLogEntry{PlayerID: 1, OpponentKind: domain.OpponentPlayer, OpponentID: 2, LocationID: 10},
		Now: base,
	})
	if err != nil {
		t.Fatalf("ApplyCombat: %v", err)
	}
	if result.AttackerCredits != 1100 || result.AttackerExperience != 50 {
		t.Fatalf("attacker credits/exp = %d/%d", result.AttackerCredits, result.AttackerExperience)
	}

	defVehicle, _ := st.VehicleByID(ctx, 2)
	if defVehicle.Durability != 0 {
		t.Fatalf("defender durability = %d, want 0", defVehicle.Durability)
	}
	attVehicle, _ := st.VehicleByID(ctx, 1)
	if attVehicle.Cargo[domain.CargoFuel] != 2 {
		t.Fatalf("attacker fuel cargo = %d, want 2", attVehicle.Cargo[domain.CargoFuel])
	}

	log := st.CombatLog()
	if len(log) != 1 {
		t.Fatalf("combat log entries = %d, want 1", len(log))
	}
	if log[0].OpponentKind != domain.OpponentPlayer || log[0].OpponentID != 2 {
		t.Fatalf("combat log entry = %+v", log[0])
	}
}

func TestApplyCombat_UnknownParticipantMutatesNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore()

	_, err := st.ApplyCombat(ctx, domain.CombatCommand{
		Attacker: domain.CombatantDelta{PlayerID: 1, VehicleID: 1, NewDurability: 50, CreditsDelta: 100},
		Defender: &domain.CombatantDelta{PlayerID: 2, VehicleID: 999, NewDurability: 0},
	})
	if !errors.Is(err, state.ErrVehicleNotFound) {
		t.Fatalf("err = %v, want ErrVehicleNotFound", err)
	}

	vehicle, _ := st.VehicleByID(ctx, 1)
	if vehicle.Durability != 100 {
		t.Fatalf("attacker durability = %d, want untouched 100", vehicle.Durability)
	}
	player, _ := st.PlayerByID(ctx, 1)
	if player.Credits != 1000 {
		t.Fatalf("attacker credits = %d, want untouched 1000", player.Credits)
	}
}

// ランダムな取引列の後でも口座・市場・積載の不変条件が守られること。
func TestApplyTrade_Invariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st := newStore()

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			side := domain.TradeBuy
			if rapid.Bool().Draw(rt, "sell") {
				side = domain.TradeSell
			}
			_, _ = st.ApplyTrade(ctx, domain.TradeCommand{
				PlayerID: 1, VehicleID: 1, LocationID: 10,
				Side: side, Kind: domain.CargoFood,
				Quantity:  rapid.IntRange(1, 60).Draw(rt, "qty"),
				UnitPrice: rapid.IntRange(1, 30).Draw(rt, "price"),
			})

			player, err := st.PlayerByID(ctx, 1)
			if err != nil {
				rt.Fatalf("PlayerByID: %v", err)
			}
			if player.Credits < 0 {
				rt.Fatalf("credits went negative: %d", player.Credits)
			}
			vehicle, _ := st.VehicleByID(ctx, 1)
			if vehicle.Cargo.Total() > vehicle.CargoCapacity {
				rt.Fatalf("cargo %d exceeds capacity %d", vehicle.Cargo.Total(), vehicle.CargoCapacity)
			}
			markets, _ := st.MarketByLocation(ctx, 10)
			for _, m := range markets {
				if m.Supply < 0 || m.Demand < 0 {
					rt.Fatalf("market went negative: supply=%d demand=%d", m.Supply, m.Demand)
				}
			}
		}
	})
}
