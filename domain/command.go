package domain

import "time"

// TravelStartCommand は移動開始のドメインコマンド。
// 燃料コストと到着時刻はエンジン側で算出済みの値を運ぶ。
type TravelStartCommand struct {
	PlayerID      PlayerID
	VehicleID     VehicleID
	DestinationID LocationID
	Departure     time.Time
	Arrival       time.Time
	FuelCost      int
}

// ArrivalsCommand は到着処理のドメインコマンド。同一ティックの到着を
// まとめて運び、1 トランザクションで確定する。
type ArrivalsCommand struct {
	VehicleIDs []VehicleID
	Now        time.Time
}

// TravelArrival は 1 機体ぶんの到着確定。
type TravelArrival struct {
	PlayerID   PlayerID
	VehicleID  VehicleID
	LocationID LocationID
}

// ArrivalsResult は到着処理の確定結果。適用時点で到着条件を満たさなく
// なっていた機体は含まれない。
type ArrivalsResult struct {
	Arrivals []TravelArrival
}

// MarketAdjustment は 1 品目ぶんの市場変動。
type MarketAdjustment struct {
	LocationID      LocationID
	Kind            CargoKind
	SupplyDelta     int
	DemandDelta     int
	PriceMultiplier float64 // 1.0 なら据え置き
}

// MarketTickCommand は経済シミュレーション 1 周期のドメインコマンド。
type MarketTickCommand struct {
	Now         time.Time
	Adjustments []MarketAdjustment
}

// MarketSnapshot は変動適用後の拠点別市場スナップショット。
type MarketSnapshot struct {
	LocationID LocationID
	Entries    []MarketEntry
}

// MarketTickResult は経済シミュレーションの確定結果。
type MarketTickResult struct {
	Snapshots []MarketSnapshot
}

// MarketShift はイベント由来の即時価格ショック。
type MarketShift struct {
	Multiplier float64
}

// EventStartCommand はイベント発生のドメインコマンド。
// MarketShift が非 nil の場合、対象拠点への価格適用を同一トランザクションで行う。
type EventStartCommand struct {
	Event       WorldEvent
	MarketShift *MarketShift
}

// EventEndCommand はイベント終了のドメインコマンド。
type EventEndCommand struct {
	EventID EventID
	Now     time.Time
}

// MissionFailureCommand は期限切れミッションの失敗確定コマンド。
type MissionFailureCommand struct {
	MissionID MissionID
	Now       time.Time
}

// MissionFailureResult は失敗確定後のプレイヤー状態。
type MissionFailureResult struct {
	PlayerID       PlayerID
	MissionID      MissionID
	CreditsPenalty int
	NewCredits     int
	NewReputation  int
}

// TradeSide は売買の方向。
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// TradeCommand は市場売買のドメインコマンド。単価はエンジン側で確定済み。
type TradeCommand struct {
	PlayerID   PlayerID
	VehicleID  VehicleID
	LocationID LocationID
	Side       TradeSide
	Kind       CargoKind
	Quantity   int
	UnitPrice  int
}

// TradeResult は売買確定後の状態。
type TradeResult struct {
	TotalPrice  int
	NewCredits  int
	NewSupply   int
	NewDemand   int
	NewManifest Manifest
}

// CombatantDelta は戦闘確定で 1 参加者に適用する差分。
// PlayerID が 0 の参加者は NPC 扱いで機体更新のみ行う。
type CombatantDelta struct {
	PlayerID        PlayerID
	VehicleID       VehicleID
	NewDurability   int
	CargoDelta      Manifest
	CreditsDelta    int
	ExperienceDelta int
}

// CombatCommand は戦闘結果確定のドメインコマンド。
type CombatCommand struct {
	Attacker CombatantDelta
	Defender *CombatantDelta // 海賊戦では nil
	Log      CombatLogEntry
	Now      time.Time
}

// CombatResult は戦闘確定後の主要数値。
type CombatResult struct {
	AttackerCredits    int
	AttackerExperience int
	AttackerLevel      int
}
