package state

import "github.com/anyashankar/cargo-clash/domain"

// Snapshot はストアへ流し込むワールドの初期状態。
type Snapshot struct {
	Players   []domain.Player
	Vehicles  []domain.Vehicle
	Locations []domain.Location
	Markets   []domain.MarketEntry
	Missions  []domain.Mission
	Events    []domain.WorldEvent
}
