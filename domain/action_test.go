package domain_test

import (
	"errors"
	"testing"

	"github.com/anyashankar/cargo-clash/domain"
)

func TestDecodeClientAction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.ClientAction
	}{
		{
			name: "ping",
			raw:  `{"type":"ping"}`,
			want: domain.PingAction{},
		},
		{
			name: "get game state",
			raw:  `{"type":"get_game_state"}`,
			want: domain.GetGameStateAction{},
		},
		{
			name: "update location",
			raw:  `{"type":"update_location","location_id":3}`,
			want: domain.UpdateLocationAction{LocationID: 3},
		},
		{
			name: "leave alliance",
			raw:  `{"type":"update_alliance","alliance_id":0}`,
			want: domain.UpdateAllianceAction{},
		},
		{
			name: "start travel",
			raw:  `{"type":"start_travel","vehicle_id":1,"destination_id":2}`,
			want: domain.StartTravelAction{VehicleID: 1, DestinationID: 2},
		},
		{
			name: "buy cargo",
			raw:  `{"type":"buy_cargo","vehicle_id":1,"location_id":2,"cargo_type":"food","quantity":5}`,
			want: domain.BuyCargoAction{VehicleID: 1, LocationID: 2, Cargo: domain.CargoFood, Quantity: 5},
		},
		{
			name: "sell cargo",
			raw:  `{"type":"sell_cargo","vehicle_id":1,"location_id":2,"cargo_type":"fuel","quantity":3}`,
			want: domain.SellCargoAction{VehicleID: 1, LocationID: 2, Cargo: domain.CargoFuel, Quantity: 3},
		},
		{
			name: "attack with explicit action",
			raw:  `{"type":"attack","vehicle_id":1,"target_vehicle_id":2,"action":"defend"}`,
			want: domain.AttackAction{VehicleID: 1, TargetVehicleID: 2, Action: domain.CombatDefend},
		},
		{
			name: "attack defaults to attack",
			raw:  `{"type":"attack","vehicle_id":1,"target_vehicle_id":2}`,
			want: domain.AttackAction{VehicleID: 1, TargetVehicleID: 2, Action: domain.CombatAttack},
		},
		{
			name: "engage pirates",
			raw:  `{"type":"engage_pirates","vehicle_id":1,"action":"special_ability"}`,
			want: domain.EngagePiratesAction{VehicleID: 1, Action: domain.CombatSpecial},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.DecodeClientAction([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeClientAction: %v", err)
			}
			if got != tc.want {
				t.Fatalf("action = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeClientAction_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"broken json", `{"type":`},
		{"update_location without id", `{"type":"update_location"}`},
		{"start_travel without destination", `{"type":"start_travel","vehicle_id":1}`},
		{"buy without location", `{"type":"buy_cargo","vehicle_id":1,"cargo_type":"food","quantity":5}`},
		{"buy unknown cargo", `{"type":"buy_cargo","vehicle_id":1,"location_id":2,"cargo_type":"plutonium","quantity":5}`},
		{"buy zero quantity", `{"type":"buy_cargo","vehicle_id":1,"location_id":2,"cargo_type":"food","quantity":0}`},
		{"sell negative quantity", `{"type":"sell_cargo","vehicle_id":1,"location_id":2,"cargo_type":"food","quantity":-1}`},
		{"attack without target", `{"type":"attack","vehicle_id":1}`},
		{"attack unknown combat action", `{"type":"attack","vehicle_id":1,"target_vehicle_id":2,"action":"flee"}`},
		{"engage_pirates without vehicle", `{"type":"engage_pirates"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.DecodeClientAction([]byte(tc.raw))
			if !errors.Is(err, domain.ErrMalformedAction) {
				t.Fatalf("error = %v, want ErrMalformedAction", err)
			}
		})
	}
}

func TestDecodeClientAction_UnknownType(t *testing.T) {
	_, err := domain.DecodeClientAction([]byte(`{"type":"warp_drive"}`))
	if !errors.Is(err, domain.ErrUnknownActionType) {
		t.Fatalf("error = %v, want ErrUnknownActionType", err)
	}
}
