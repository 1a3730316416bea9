package config

import (
	"fmt"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// 機体種別ごとの基礎性能。
type vehicleStats struct {
	speed         int
	cargoCapacity int
	fuelCapacity  int
}

var statsByKind = map[domain.VehicleKind]vehicleStats{
	domain.VehicleTruck: {speed: 60, cargoCapacity: 150, fuelCapacity: 200},
	domain.VehicleShip:  {speed: 40, cargoCapacity: 500, fuelCapacity: 300},
	domain.VehiclePlane: {speed: 200, cargoCapacity: 100, fuelCapacity: 400},
	domain.VehicleTrain: {speed: 80, cargoCapacity: 1000, fuelCapacity: 500},
}

const (
	startingCredits    = 10000
	baseDurability     = 100
	baseAttackPower    = 10
	baseDefense        = 10
	defaultMarketStock = 100
)

// Snapshot はワールド記述を初期投入用のストア断面へ変換する。
func (w World) Snapshot(now time.Time) (state.Snapshot, error) {
	snap := state.Snapshot{}

	for _, spec := range w.Locations {
		snap.Locations = append(snap.Locations, domain.Location{
			ID:          domain.LocationID(spec.ID),
			Name:        spec.Name,
			Kind:        spec.Kind,
			X:           spec.X,
			Y:           spec.Y,
			Region:      spec.Region,
			DangerLevel: spec.DangerLevel,
			Population:  spec.Population,
			Prosperity:  spec.Prosperity,
			IsActive:    true,
		})
		for _, row := range spec.Markets {
			kind := domain.CargoKind(row.Cargo)
			if !kind.Valid() {
				return state.Snapshot{}, fmt.Errorf("config: location %d: unknown cargo %q", spec.ID, row.Cargo)
			}
			snap.Markets = append(snap.Markets, domain.MarketEntry{
				LocationID: domain.LocationID(spec.ID),
				Cargo:      kind,
				BuyPrice:   row.BuyPrice,
				SellPrice:  row.SellPrice,
				Supply:     row.Supply,
				Demand:     row.Demand,
				UpdatedAt:  now,
			})
		}
	}

	nextVehicleID := int64(1)
	for _, spec := range w.Players {
		credits := spec.Credits
		if credits == 0 {
			credits = startingCredits
		}
		snap.Players = append(snap.Players, domain.Player{
			ID:                domain.PlayerID(spec.ID),
			Username:          spec.Username,
			Level:             1,
			Credits:           credits,
			CurrentLocationID: domain.LocationID(spec.LocationID),
			LastActive:        now,
		})
		for _, vs := range spec.Vehicles {
			kind := domain.VehicleKind(vs.Kind)
			base, ok := statsByKind[kind]
			if !ok {
				return state.Snapshot{}, fmt.Errorf("config: player %d: unknown vehicle type %q", spec.ID, vs.Kind)
			}
			id := vs.ID
			if id == 0 {
				id = nextVehicleID
			}
			nextVehicleID = id + 1
			snap.Vehicles = append(snap.Vehicles, domain.Vehicle{
				ID:                domain.VehicleID(id),
				OwnerID:           domain.PlayerID(spec.ID),
				Name:              vs.Name,
				Kind:              kind,
				Speed:             base.speed,
				CargoCapacity:     base.cargoCapacity,
				FuelCapacity:      base.fuelCapacity,
				CurrentFuel:       base.fuelCapacity,
				Durability:        baseDurability,
				MaxDurability:     baseDurability,
				AttackPower:       baseAttackPower,
				Defense:           baseDefense,
				CurrentLocationID: domain.LocationID(spec.LocationID),
				Cargo:             domain.Manifest{},
			})
		}
	}
	return snap, nil
}

// defaultWorld は設定ファイルなしで遊べる最小構成のワールドを返す。
func defaultWorld() World {
	market := func(stock int) []MarketRow {
		rows := make([]MarketRow, 0, len(domain.CargoKinds))
		prices := map[domain.CargoKind][2]int{
			domain.CargoFood:        {20, 15},
			domain.CargoFuel:        {35, 28},
			domain.CargoElectronics: {120, 95},
			domain.CargoWeapons:     {200, 160},
			domain.CargoArtifacts:   {500, 400},
			domain.CargoMaterials:   {45, 36},
		}
		for _, kind := range domain.CargoKinds {
			p := prices[kind]
			rows = append(rows, MarketRow{
				Cargo:     string(kind),
				BuyPrice:  p[0],
				SellPrice: p[1],
				Supply:    stock,
				Demand:    stock / 2,
			})
		}
		return rows
	}
	return World{
		Locations: []LocationSpec{
			{ID: 1, Name: "Haven Port", Kind: "port", X: 0, Y: 0, Region: "west", Population: 50000, Prosperity: 70, DangerLevel: 1, Markets: market(defaultMarketStock * 2)},
			{ID: 2, Name: "Ironridge", Kind: "city", X: 120, Y: 40, Region: "west", Population: 200000, Prosperity: 60, DangerLevel: 2, Markets: market(defaultMarketStock)},
			{ID: 3, Name: "Dustwatch Outpost", Kind: "outpost", X: 300, Y: 180, Region: "frontier", Population: 800, Prosperity: 25, DangerLevel: 6, Markets: market(defaultMarketStock / 2)},
			{ID: 4, Name: "Meridian Trade Hub", Kind: "trade_hub", X: 220, Y: -90, Region: "central", Population: 120000, Prosperity: 85, DangerLevel: 3, Markets: market(defaultMarketStock * 3)},
		},
		Players: []PlayerSpec{
			{ID: 1, Username: "trader_one", LocationID: 1, Vehicles: []VehicleSpec{{ID: 1, Name: "Long Haul", Kind: "truck"}}},
			{ID: 2, Username: "trader_two", LocationID: 4, Vehicles: []VehicleSpec{{ID: 2, Name: "Tidecutter", Kind: "ship"}}},
		},
	}
}
