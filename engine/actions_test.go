package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

func rejectReason(t *testing.T, err error) domain.RejectReason {
	t.Helper()
	rejected, ok := domain.RejectionOf(err)
	if !ok {
		t.Fatalf("error %v is not a rejection", err)
	}
	return rejected.Reason
}

func decodeEnvelope(t *testing.T, raw []byte) (domain.Envelope, map[string]any) {
	t.Helper()
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	return env, data
}

func TestHandleClientAction_MalformedPayload(t *testing.T) {
	e := newTestEngine(&fakeState{})
	tr := &fakeTransport{}
	e.registry.Connect(context.Background(), 1, tr, 1, 0)

	e.HandleClientAction(context.Background(), 1, []byte(`{"type":`))

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 action_rejected", len(writes))
	}
	env, data := decodeEnvelope(t, writes[0])
	if env.Type != domain.MsgActionRejected {
		t.Fatalf("message type = %q", env.Type)
	}
	if data["reason"] != string(domain.ReasonInvalidAction) {
		t.Fatalf("reason = %v", data["reason"])
	}
}

func TestHandleClientAction_Ping(t *testing.T) {
	e := newTestEngine(&fakeState{})
	tr := &fakeTransport{}
	e.registry.Connect(context.Background(), 1, tr, 1, 0)

	e.HandleClientAction(context.Background(), 1, []byte(`{"type":"ping"}`))

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 pong", len(writes))
	}
	env, data := decodeEnvelope(t, writes[0])
	if env.Type != domain.MsgPong {
		t.Fatalf("message type = %q", env.Type)
	}
	if data["timestamp"] == "" {
		t.Fatal("pong must carry a timestamp")
	}
}

func restingVehicle() domain.Vehicle {
	return domain.Vehicle{
		ID:                1,
		OwnerID:           1,
		Kind:              domain.VehicleTruck,
		Speed:             60,
		CargoCapacity:     100,
		FuelCapacity:      200,
		CurrentFuel:       200,
		Durability:        100,
		MaxDurability:     100,
		AttackPower:       10,
		Defense:           10,
		CurrentLocationID: 1,
		Cargo:             domain.Manifest{domain.CargoFood: 10},
	}
}

func travelState(mutate func(*domain.Vehicle)) *fakeState {
	return &fakeState{
		vehicleByID: func(domain.VehicleID) (domain.Vehicle, error) {
			v := restingVehicle()
			if mutate != nil {
				mutate(&v)
			}
			return v, nil
		},
		locationByID: func(id domain.LocationID) (domain.Location, error) {
			return domain.Location{ID: id, Name: "Somewhere", IsActive: true, X: float64(id), Y: 0}, nil
		},
	}
}

func TestStartTravel_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		state  *fakeState
		dest   domain.LocationID
		player domain.PlayerID
		want   domain.RejectReason
	}{
		{
			name:   "unknown vehicle",
			state:  &fakeState{},
			dest:   2,
			player: 1,
			want:   domain.ReasonNoTargetVehicle,
		},
		{
			name:   "not the owner",
			state:  travelState(nil),
			dest:   2,
			player: 9,
			want:   domain.ReasonNotOwner,
		},
		{
			name:   "already traveling",
			state:  travelState(func(v *domain.Vehicle) { v.IsTraveling = true }),
			dest:   2,
			player: 1,
			want:   domain.ReasonAlreadyTraveling,
		},
		{
			name: "inactive destination",
			state: &fakeState{
				vehicleByID: func(domain.VehicleID) (domain.Vehicle, error) {
					return restingVehicle(), nil
				},
				locationByID: func(id domain.LocationID) (domain.Location, error) {
					return domain.Location{ID: id, IsActive: id != 2}, nil
				},
			},
			dest:   2,
			player: 1,
			want:   domain.ReasonUnknownDestination,
		},
		{
			name:   "insufficient fuel",
			state:  travelState(func(v *domain.Vehicle) { v.CurrentFuel = 0 }),
			dest:   500,
			player: 1,
			want:   domain.ReasonInsufficientFuel,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(tc.state)
			err := e.StartTravel(context.Background(), tc.player, 1, tc.dest)
			if got := rejectReason(t, err); got != tc.want {
				t.Fatalf("reason = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStartTravel_CommitsAndNotifies(t *testing.T) {
	var committed domain.TravelStartCommand
	st := travelState(nil)
	st.applyTravelStart = func(cmd domain.TravelStartCommand) error {
		committed = cmd
		return nil
	}
	e := newTestEngine(st)
	tr := &fakeTransport{}
	e.registry.Connect(context.Background(), 1, tr, 1, 0)

	if err := e.StartTravel(context.Background(), 1, 1, 2); err != nil {
		t.Fatalf("StartTravel: %v", err)
	}

	if committed.VehicleID != 1 || committed.DestinationID != 2 || committed.PlayerID != 1 {
		t.Fatalf("command = %+v", committed)
	}
	if !committed.Arrival.After(committed.Departure) {
		t.Fatalf("arrival %v not after departure %v", committed.Arrival, committed.Departure)
	}

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 travel_started", len(writes))
	}
	env, data := decodeEnvelope(t, writes[0])
	if env.Type != domain.MsgTravelStarted {
		t.Fatalf("message type = %q", env.Type)
	}
	if data["destination_name"] != "Somewhere" {
		t.Fatalf("destination_name = %v", data["destination_name"])
	}
}

func tradeState() *fakeState {
	return &fakeState{
		vehicleByID: func(domain.VehicleID) (domain.Vehicle, error) {
			return restingVehicle(), nil
		},
		playerByID: func(id domain.PlayerID) (domain.Player, error) {
			return domain.Player{ID: id, Credits: 1000}, nil
		},
		marketByLocation: func(domain.LocationID) ([]domain.MarketEntry, error) {
			return []domain.MarketEntry{
				{LocationID: 1, Cargo: domain.CargoFood, BuyPrice: 20, SellPrice: 15, Supply: 50, Demand: 40},
			}, nil
		},
	}
}

func TestTrade_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*fakeState)
		side     domain.TradeSide
		cargo    domain.CargoKind
		quantity int
		want     domain.RejectReason
	}{
		{
			name:     "non positive quantity",
			side:     domain.TradeBuy,
			cargo:    domain.CargoFood,
			quantity: 0,
			want:     domain.ReasonInvalidQuantity,
		},
		{
			name: "vehicle elsewhere",
			mutate: func(st *fakeState) {
				st.vehicleByID = func(domain.VehicleID) (domain.Vehicle, error) {
					v := restingVehicle()
					v.CurrentLocationID = 9
					return v, nil
				}
			},
			side:     domain.TradeBuy,
			cargo:    domain.CargoFood,
			quantity: 1,
			want:     domain.ReasonNotAtLocation,
		},
		{
			name:     "cargo not listed",
			side:     domain.TradeBuy,
			cargo:    domain.CargoWeapons,
			quantity: 1,
			want:     domain.ReasonUnknownCargo,
		},
		{
			name:     "supply too small",
			side:     domain.TradeBuy,
			cargo:    domain.CargoFood,
			quantity: 51,
			want:     domain.ReasonInsufficientSupply,
		},
		{
			name: "credits too small",
			mutate: func(st *fakeState) {
				st.marketByLocation = func(domain.LocationID) ([]domain.MarketEntry, error) {
					return []domain.MarketEntry{
						{LocationID: 1, Cargo: domain.CargoFood, BuyPrice: 20, SellPrice: 15, Supply: 500, Demand: 40},
					}, nil
				}
			},
			side:     domain.TradeBuy,
			cargo:    domain.CargoFood,
			quantity: 60, // 20 * 60 > 1000
			want:     domain.ReasonInsufficientCredits,
		},
		{
			name: "capacity exceeded",
			mutate: func(st *fakeState) {
				st.marketByLocation = func(domain.LocationID) ([]domain.MarketEntry, error) {
					return []domain.MarketEntry{
						{LocationID: 1, Cargo: domain.CargoFood, BuyPrice: 2, SellPrice: 1, Supply: 500, Demand: 40},
					}, nil
				}
			},
			side:     domain.TradeBuy,
			cargo:    domain.CargoFood,
			quantity: 95, // 積載 10 + 95 > 100
			want:     domain.ReasonInsufficientCapacity,
		},
		{
			name:     "selling more than held",
			side:     domain.TradeSell,
			cargo:    domain.CargoFood,
			quantity: 11,
			want:     domain.ReasonInsufficientCargo,
		},
		{
			name: "demand too small",
			mutate: func(st *fakeState) {
				st.marketByLocation = func(domain.LocationID) ([]domain.MarketEntry, error) {
					return []domain.MarketEntry{
						{LocationID: 1, Cargo: domain.CargoFood, BuyPrice: 20, SellPrice: 15, Supply: 50, Demand: 2},
					}, nil
				}
			},
			side:     domain.TradeSell,
			cargo:    domain.CargoFood,
			quantity: 5,
			want:     domain.ReasonInsufficientDemand,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := tradeState()
			if tc.mutate != nil {
				tc.mutate(st)
			}
			e := newTestEngine(st)
			err := e.Trade(context.Background(), 1, tc.side, 1, 1, tc.cargo, tc.quantity)
			if got := rejectReason(t, err); got != tc.want {
				t.Fatalf("reason = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTrade_BuyCommitsAtBuyPrice(t *testing.T) {
	var committed domain.TradeCommand
	st := tradeState()
	st.applyTrade = func(cmd domain.TradeCommand) (domain.TradeResult, error) {
		committed = cmd
		return domain.TradeResult{
			TotalPrice:  cmd.UnitPrice * cmd.Quantity,
			NewCredits:  1000 - cmd.UnitPrice*cmd.Quantity,
			NewManifest: domain.Manifest{domain.CargoFood: 15},
		}, nil
	}
	e := newTestEngine(st)
	tr := &fakeTransport{}
	e.registry.Connect(context.Background(), 1, tr, 1, 0)

	if err := e.Trade(context.Background(), 1, domain.TradeBuy, 1, 1, domain.CargoFood, 5); err != nil {
		t.Fatalf("Trade: %v", err)
	}

	if committed.Side != domain.TradeBuy || committed.UnitPrice != 20 || committed.Quantity != 5 {
		t.Fatalf("command = %+v", committed)
	}

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 trade_complete", len(writes))
	}
	env, data := decodeEnvelope(t, writes[0])
	if env.Type != domain.MsgTradeComplete {
		t.Fatalf("message type = %q", env.Type)
	}
	if data["total_price"] != float64(100) || data["new_credits"] != float64(900) {
		t.Fatalf("payload = %v", data)
	}
}

func TestTrade_SellUsesSellPrice(t *testing.T) {
	var committed domain.TradeCommand
	st := tradeState()
	st.applyTrade = func(cmd domain.TradeCommand) (domain.TradeResult, error) {
		committed = cmd
		return domain.TradeResult{}, nil
	}
	e := newTestEngine(st)

	if err := e.Trade(context.Background(), 1, domain.TradeSell, 1, 1, domain.CargoFood, 5); err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if committed.Side != domain.TradeSell || committed.UnitPrice != 15 {
		t.Fatalf("command = %+v", committed)
	}
}

func TestAttackVehicle_Rejections(t *testing.T) {
	vehicles := map[domain.VehicleID]domain.Vehicle{
		1: restingVehicle(),
		2: func() domain.Vehicle {
			v := restingVehicle()
			v.ID = 2
			v.OwnerID = 2
			return v
		}(),
		3: func() domain.Vehicle {
			v := restingVehicle()
			v.ID = 3
			v.OwnerID = 1
			return v
		}(),
		4: func() domain.Vehicle {
			v := restingVehicle()
			v.ID = 4
			v.OwnerID = 2
			v.CurrentLocationID = 9
			return v
		}(),
	}
	st := &fakeState{
		vehicleByID: func(id domain.VehicleID) (domain.Vehicle, error) {
			v, ok := vehicles[id]
			if !ok {
				return domain.Vehicle{}, fmt.Errorf("%w: %d", state.ErrVehicleNotFound, id)
			}
			return v, nil
		},
	}
	e := newTestEngine(st)

	tests := []struct {
		name   string
		target domain.VehicleID
		want   domain.RejectReason
	}{
		{"missing target", 99, domain.ReasonNoTargetVehicle},
		{"own vehicle", 3, domain.ReasonInvalidAction},
		{"different location", 4, domain.ReasonNotAtLocation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := e.AttackVehicle(context.Background(), 1, 1, tc.target, domain.CombatAttack)
			if got := rejectReason(t, err); got != tc.want {
				t.Fatalf("reason = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAttackVehicle_NotifiesBothSides(t *testing.T) {
	var committed domain.CombatCommand
	st := &fakeState{
		vehicleByID: func(id domain.VehicleID) (domain.Vehicle, error) {
			v := restingVehicle()
			v.ID = id
			if id == 2 {
				v.OwnerID = 2
			}
			return v, nil
		},
		applyCombatCommand: func(cmd domain.CombatCommand) (domain.CombatResult, error) {
			committed = cmd
			return domain.CombatResult{AttackerCredits: 1100, AttackerLevel: 1}, nil
		},
	}
	e := newTestEngine(st)
	attacker := &fakeTransport{}
	defender := &fakeTransport{}
	e.registry.Connect(context.Background(), 1, attacker, 1, 0)
	e.registry.Connect(context.Background(), 2, defender, 1, 0)

	if err := e.AttackVehicle(context.Background(), 1, 1, 2, domain.CombatAttack); err != nil {
		t.Fatalf("AttackVehicle: %v", err)
	}

	if committed.Defender == nil || committed.Defender.PlayerID != 2 {
		t.Fatalf("command = %+v", committed)
	}
	// 奪取された積荷は攻守で符号が逆になる
	for kind, qty := range committed.Attacker.CargoDelta {
		if committed.Defender.CargoDelta[kind] != -qty {
			t.Fatalf("defender delta %v does not mirror attacker delta %v",
				committed.Defender.CargoDelta, committed.Attacker.CargoDelta)
		}
	}

	for name, tr := range map[string]*fakeTransport{"attacker": attacker, "defender": defender} {
		writes := tr.written()
		if len(writes) != 1 {
			t.Fatalf("%s writes = %d, want 1 combat_update", name, len(writes))
		}
		env, data := decodeEnvelope(t, writes[0])
		if env.Type != domain.MsgCombatUpdate {
			t.Fatalf("%s message type = %q", name, env.Type)
		}
		if data["role"] != name {
			t.Fatalf("role = %v, want %s", data["role"], name)
		}
	}
}

func TestEngagePirates_AppliesEventStrengthMultiplier(t *testing.T) {
	var committed domain.CombatCommand
	st := &fakeState{
		vehicleByID: func(domain.VehicleID) (domain.Vehicle, error) {
			v := restingVehicle()
			v.AttackPower = 1000 // 海賊を一撃で倒して計算を単純化する
			return v, nil
		},
		locationByID: func(id domain.LocationID) (domain.Location, error) {
			return domain.Location{ID: id, Name: "Dustwatch", IsActive: true, DangerLevel: 6}, nil
		},
		applyCombatCommand: func(cmd domain.CombatCommand) (domain.CombatResult, error) {
			committed = cmd
			return domain.CombatResult{}, nil
		},
	}
	e := newTestEngine(st)
	e.events.insert(domain.WorldEvent{
		ID:                  "fleet",
		Kind:                domain.EventPirateFleet,
		AffectedLocationIDs: []domain.LocationID{1},
		Effects:             domain.EventEffects{StrengthMultiplier: 1.4, EncounterMultiplier: 2.0},
		StartTime:           e.clock(),
		Duration:            90 * time.Minute,
		IsActive:            true,
	})

	if err := e.EngagePirates(context.Background(), 1, 1, domain.CombatAttack); err != nil {
		t.Fatalf("EngagePirates: %v", err)
	}
	if committed.Log.OpponentKind != domain.OpponentPirate {
		t.Fatalf("opponent kind = %v", committed.Log.OpponentKind)
	}
	if committed.Defender != nil {
		t.Fatal("pirate combat must not carry a defender delta")
	}
}
