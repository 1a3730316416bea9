package domain

import "time"

// PlayerID はプレイヤーの識別子
type PlayerID int64

// Player はプレイヤーの永続状態を表す構造体です。
type Player struct {
	ID                PlayerID
	Username          string
	Level             int
	Experience        int
	Credits           int
	Reputation        int
	AllianceID        AllianceID // 0 = 無所属
	CurrentLocationID LocationID
	IsOnline          bool
	LastActive        time.Time
}

// AllianceID はアライアンスの識別子 (0 = なし)
type AllianceID int64
