package domain

import (
	"errors"
	"time"
)

// VehicleID は輸送機体の識別子
type VehicleID int64

// VehicleKind は機体の種別
type VehicleKind string

const (
	VehicleTruck VehicleKind = "truck"
	VehicleShip  VehicleKind = "ship"
	VehiclePlane VehicleKind = "plane"
	VehicleTrain VehicleKind = "train"
)

// Vehicle は輸送機体の永続状態を表す構造体です。
//
// 走行状態の不変条件: IsTraveling == true ⇔ DestinationID と EstimatedArrival が
// 設定されている。解除するのは travel resolver のみ。
type Vehicle struct {
	ID      VehicleID
	OwnerID PlayerID
	Name    string
	Kind    VehicleKind

	Speed         int
	CargoCapacity int
	FuelCapacity  int
	CurrentFuel   int
	Durability    int
	MaxDurability int

	AttackPower int
	Defense     int

	CurrentLocationID LocationID
	DestinationID     LocationID // 0 = なし
	IsTraveling       bool
	TravelStartTime   time.Time
	EstimatedArrival  time.Time

	Cargo Manifest
}

var (
	ErrTravelStateInvalid = errors.New("vehicle travel fields are inconsistent")
)

// TravelConsistent は走行フィールドの不変条件が保たれているかを返します。
func (v Vehicle) TravelConsistent() bool {
	if v.IsTraveling {
		return v.DestinationID != 0 && !v.EstimatedArrival.IsZero() &&
			!v.EstimatedArrival.Before(v.TravelStartTime)
	}
	return v.DestinationID == 0 && v.EstimatedArrival.IsZero()
}

// BeginTravel は走行状態を設定します。既に走行中の場合はエラーを返します。
func (v *Vehicle) BeginTravel(dest LocationID, departure time.Time, eta time.Time) error {
	if v.IsTraveling {
		return ErrTravelStateInvalid
	}
	if dest == 0 || eta.Before(departure) {
		return ErrTravelStateInvalid
	}
	v.IsTraveling = true
	v.DestinationID = dest
	v.TravelStartTime = departure
	v.EstimatedArrival = eta
	return nil
}

// CompleteTravel は到着処理として走行フィールドを解除し、現在地を更新します。
func (v *Vehicle) CompleteTravel() LocationID {
	arrived := v.DestinationID
	v.IsTraveling = false
	v.CurrentLocationID = arrived
	v.DestinationID = 0
	v.TravelStartTime = time.Time{}
	v.EstimatedArrival = time.Time{}
	return arrived
}

// Combatant は戦闘解決に渡す機体スナップショットを返します。
func (v Vehicle) Combatant() Combatant {
	return Combatant{
		ID:            int64(v.ID),
		AttackPower:   v.AttackPower,
		Defense:       v.Defense,
		Durability:    v.Durability,
		MaxDurability: v.MaxDurability,
		Cargo:         v.Cargo.Clone(),
	}
}
