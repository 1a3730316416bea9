package domain

import (
	"encoding/json"
	"time"
)

// 配信メッセージの type 値。
const (
	MsgConnectionEstablished = "connection_established"
	MsgPong                  = "pong"
	MsgTravelStarted         = "travel_started"
	MsgTravelComplete        = "travel_complete"
	MsgTradeComplete         = "trade_complete"
	MsgMarketTrends          = "market_trends"
	MsgPirateEncounter       = "pirate_encounter"
	MsgMarketUpdate          = "market_update"
	MsgWorldEvent            = "world_event"
	MsgMissionUpdate         = "mission_update"
	MsgGameStateUpdate       = "game_state_update"
	MsgCombatUpdate          = "combat_update"
	MsgActionRejected        = "action_rejected"
	MsgError                 = "error"
)

// Envelope はクライアントへ送る全メッセージの共通外装。
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope は data を JSON 化して外装に包みます。
func NewEnvelope(msgType string, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      msgType,
		Data:      raw,
		Timestamp: now.UTC().Format(time.RFC3339),
	}, nil
}

// Encode は外装全体を JSON バイト列にします。
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
