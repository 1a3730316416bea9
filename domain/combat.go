package domain

// CombatAction は戦闘時の行動種別。閉じた集合です。
type CombatAction string

const (
	CombatAttack  CombatAction = "attack"
	CombatSpecial CombatAction = "special_ability"
	CombatDefend  CombatAction = "defend"
)

// Valid は既知の行動種別かどうかを返します。
func (a CombatAction) Valid() bool {
	switch a {
	case CombatAttack, CombatSpecial, CombatDefend:
		return true
	}
	return false
}

// Combatant は1回の戦闘交換に渡す戦闘者スナップショットです。
type Combatant struct {
	ID            int64
	AttackPower   int
	Defense       int
	Durability    int
	MaxDurability int
	Cargo         Manifest
}

// OpponentKind は戦闘相手の種別
type OpponentKind string

const (
	OpponentPlayer OpponentKind = "player"
	OpponentPirate OpponentKind = "pirate"
)

// CombatLogEntry は1回の戦闘交換の永続記録です。
type CombatLogEntry struct {
	PlayerID     PlayerID
	OpponentKind OpponentKind
	OpponentID   PlayerID // 海賊戦では0
	LocationID   LocationID

	WinnerID         PlayerID // 0 = 決着なし、または海賊勝利
	DamageDealt      int
	DamageReceived   int
	CargoLost        Manifest
	CargoGained      Manifest
	CreditsLost      int
	CreditsGained    int
	ExperienceGained int
}
