package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ClientAction はクライアントから受信するアクションの閉じたバリアント型です。
// 自由形式のJSONを境界でパース・検証してから simulation 側へ渡します。
type ClientAction interface {
	actionKind() string
}

// PingAction は疎通確認。即座に pong を返します。
type PingAction struct{}

// GetGameStateAction は要求元の接続にのみフル状態を送ります。
type GetGameStateAction struct{}

// GetMarketTrendsAction は価格傾向と裁定機会の一覧を要求します。
type GetMarketTrendsAction struct{}

// UpdateLocationAction はレジストリ側の所在地（配信用の非正規化コピー）を更新します。
type UpdateLocationAction struct {
	LocationID LocationID
}

// UpdateAllianceAction はレジストリ側のアライアンスグループを付け替えます。
type UpdateAllianceAction struct {
	AllianceID AllianceID
}

// StartTravelAction は機体の移動開始を要求します。
type StartTravelAction struct {
	VehicleID     VehicleID
	DestinationID LocationID
}

// BuyCargoAction は現在地の市場での購入を要求します。
type BuyCargoAction struct {
	VehicleID  VehicleID
	LocationID LocationID
	Cargo      CargoKind
	Quantity   int
}

// SellCargoAction は現在地の市場での売却を要求します。
type SellCargoAction struct {
	VehicleID  VehicleID
	LocationID LocationID
	Cargo      CargoKind
	Quantity   int
}

// AttackAction は他機体への戦闘行動を要求します。
type AttackAction struct {
	VehicleID       VehicleID
	TargetVehicleID VehicleID
	Action          CombatAction
}

// EngagePiratesAction は海賊との交戦を要求します。
type EngagePiratesAction struct {
	VehicleID VehicleID
	Action    CombatAction
}

func (PingAction) actionKind() string            { return "ping" }
func (GetGameStateAction) actionKind() string    { return "get_game_state" }
func (GetMarketTrendsAction) actionKind() string { return "get_market_trends" }
func (UpdateLocationAction) actionKind() string  { return "update_location" }
func (UpdateAllianceAction) actionKind() string  { return "update_alliance" }
func (StartTravelAction) actionKind() string     { return "start_travel" }
func (BuyCargoAction) actionKind() string        { return "buy_cargo" }
func (SellCargoAction) actionKind() string       { return "sell_cargo" }
func (AttackAction) actionKind() string          { return "attack" }
func (EngagePiratesAction) actionKind() string   { return "engage_pirates" }

var (
	ErrUnknownActionType = errors.New("unknown client action type")
	ErrMalformedAction   = errors.New("malformed client action")
)

type rawAction struct {
	Type            string       `json:"type"`
	LocationID      LocationID   `json:"location_id"`
	AllianceID      AllianceID   `json:"alliance_id"`
	VehicleID       VehicleID    `json:"vehicle_id"`
	DestinationID   LocationID   `json:"destination_id"`
	TargetVehicleID VehicleID    `json:"target_vehicle_id"`
	Cargo           CargoKind    `json:"cargo_type"`
	Quantity        int          `json:"quantity"`
	Action          CombatAction `json:"action"`
}

// DecodeClientAction はクライアントのJSONペイロードを検証付きでパースします。
// 未知のtypeは ErrUnknownActionType を返し、simulation 側には到達させません。
func DecodeClientAction(data []byte) (ClientAction, error) {
	var raw rawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	switch raw.Type {
	case "ping":
		return PingAction{}, nil
	case "get_game_state":
		return GetGameStateAction{}, nil
	case "get_market_trends":
		return GetMarketTrendsAction{}, nil
	case "update_location":
		if raw.LocationID == 0 {
			return nil, fmt.Errorf("%w: update_location requires location_id", ErrMalformedAction)
		}
		return UpdateLocationAction{LocationID: raw.LocationID}, nil
	case "update_alliance":
		return UpdateAllianceAction{AllianceID: raw.AllianceID}, nil
	case "start_travel":
		if raw.VehicleID == 0 || raw.DestinationID == 0 {
			return nil, fmt.Errorf("%w: start_travel requires vehicle_id and destination_id", ErrMalformedAction)
		}
		return StartTravelAction{VehicleID: raw.VehicleID, DestinationID: raw.DestinationID}, nil
	case "buy_cargo", "sell_cargo":
		if raw.VehicleID == 0 || raw.LocationID == 0 {
			return nil, fmt.Errorf("%w: %s requires vehicle_id and location_id", ErrMalformedAction, raw.Type)
		}
		if !raw.Cargo.Valid() {
			return nil, fmt.Errorf("%w: unknown cargo type %q", ErrMalformedAction, raw.Cargo)
		}
		if raw.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrMalformedAction)
		}
		if raw.Type == "buy_cargo" {
			return BuyCargoAction{VehicleID: raw.VehicleID, LocationID: raw.LocationID, Cargo: raw.Cargo, Quantity: raw.Quantity}, nil
		}
		return SellCargoAction{VehicleID: raw.VehicleID, LocationID: raw.LocationID, Cargo: raw.Cargo, Quantity: raw.Quantity}, nil
	case "attack":
		if raw.VehicleID == 0 || raw.TargetVehicleID == 0 {
			return nil, fmt.Errorf("%w: attack requires vehicle_id and target_vehicle_id", ErrMalformedAction)
		}
		action, err := decodeCombatAction(raw.Action)
		if err != nil {
			return nil, err
		}
		return AttackAction{VehicleID: raw.VehicleID, TargetVehicleID: raw.TargetVehicleID, Action: action}, nil
	case "engage_pirates":
		if raw.VehicleID == 0 {
			return nil, fmt.Errorf("%w: engage_pirates requires vehicle_id", ErrMalformedAction)
		}
		action, err := decodeCombatAction(raw.Action)
		if err != nil {
			return nil, err
		}
		return EngagePiratesAction{VehicleID: raw.VehicleID, Action: action}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, raw.Type)
	}
}

func decodeCombatAction(a CombatAction) (CombatAction, error) {
	if a == "" {
		return CombatAttack, nil
	}
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown combat action %q", ErrMalformedAction, a)
	}
	return a, nil
}
