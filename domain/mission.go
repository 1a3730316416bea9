package domain

import "time"

// MissionID はミッションの識別子
type MissionID int64

// MissionStatus はミッションの進行状態
type MissionStatus string

const (
	MissionAvailable  MissionStatus = "available"
	MissionAccepted   MissionStatus = "accepted"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
	MissionFailed     MissionStatus = "failed"
	MissionExpired    MissionStatus = "expired"
)

// MissionReputationPenalty は期限切れ時に差し引く評判の固定量です。
const MissionReputationPenalty = 2

// Mission は輸送・戦闘などの依頼を表す構造体です。
type Mission struct {
	ID            MissionID
	Title         string
	Kind          string // transport, combat, exploration, ...
	OriginID      LocationID
	DestinationID LocationID

	RequiredCargo    Manifest
	RewardCredits    int
	RewardExperience int
	PenaltyCredits   int // 0 = 未設定（報酬の25%を適用）

	Status     MissionStatus
	PlayerID   PlayerID // 0 = 未受注
	AcceptedAt time.Time
	Deadline   time.Time
}

// Open は期限切れ判定の対象となる進行中ステータスかどうかを返します。
func (m Mission) Open() bool {
	return m.Status == MissionAccepted || m.Status == MissionInProgress
}

// FailurePenalty は失敗時に科すクレジットペナルティを返します。
// 明示値があればそれを、なければ報酬の25%（切り捨て）を使います。
func (m Mission) FailurePenalty() int {
	if m.PenaltyCredits > 0 {
		return m.PenaltyCredits
	}
	return m.RewardCredits / 4
}
