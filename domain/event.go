package domain

import "time"

// EventID はワールドイベントの識別子 (UUID)
type EventID string

// EventKind はワールドイベントのアーキタイプ。閉じた集合です。
type EventKind string

const (
	EventMarketShift  EventKind = "market_shift"
	EventWeather      EventKind = "weather_change"
	EventPirateFleet  EventKind = "pirate_attack"
	EventRouteBlocked EventKind = "trade_route_blocked"
)

// EventEffects はアーキタイプごとの効果ペイロードです。
// 使われないフィールドはゼロ値のままです（倍率0は「効果なし」として扱う）。
type EventEffects struct {
	Cargo                 CargoKind `json:"cargo_type,omitempty"`
	Direction             string    `json:"shift_direction,omitempty"` // surge | crash
	PriceMultiplier       float64   `json:"price_multiplier,omitempty"`
	WeatherKind           string    `json:"weather_type,omitempty"`
	TravelDelayMultiplier float64   `json:"travel_delay_multiplier,omitempty"`
	FuelCostMultiplier    float64   `json:"fuel_cost_multiplier,omitempty"`
	StrengthMultiplier    float64   `json:"pirate_strength_multiplier,omitempty"`
	EncounterMultiplier   float64   `json:"encounter_chance_multiplier,omitempty"`
	TravelCostMultiplier  float64   `json:"travel_cost_multiplier,omitempty"`
	RewardMultiplier      float64   `json:"mission_reward_multiplier,omitempty"`
}

// WorldEvent は期間限定のワールドイベントを表す構造体です。
// 生成・失効を行うのは event generator のみです。
type WorldEvent struct {
	ID          EventID
	Kind        EventKind
	Title       string
	Description string
	Effects     EventEffects

	AffectedLocationIDs []LocationID
	Severity            int // 1-10

	StartTime time.Time
	EndTime   time.Time // 設定済みなら明示的な終了時刻
	Duration  time.Duration

	IsActive bool
}

// Deadline はイベントの失効時刻を返します。明示的な EndTime が優先されます。
func (e WorldEvent) Deadline() time.Time {
	if !e.EndTime.IsZero() {
		return e.EndTime
	}
	return e.StartTime.Add(e.Duration)
}

// ActiveAt は指定時刻にイベントが有効かどうかを返します。
func (e WorldEvent) ActiveAt(t time.Time) bool {
	return e.IsActive && !t.After(e.Deadline())
}

// Affects は指定拠点がイベントの影響範囲に含まれるかを返します。
func (e WorldEvent) Affects(id LocationID) bool {
	for _, loc := range e.AffectedLocationIDs {
		if loc == id {
			return true
		}
	}
	return false
}
