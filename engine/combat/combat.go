// Package combat は戦闘交換を純粋関数として解決する。
// 乱数は Source として注入し、状態の書き込みは呼び出し側に委ねる。
package combat

import (
	"github.com/anyashankar/cargo-clash/domain"
)

// Source は戦闘解決が消費する乱数源。*rand.Rand が満たす。
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Winner は交換の決着種別。
type Winner int

const (
	WinnerNone Winner = iota
	WinnerAttacker
	WinnerDefender
)

// Outcome は 1 回の戦闘交換の解決結果。
type Outcome struct {
	Winner Winner

	DamageDealt    int
	DamageReceived int

	AttackerDurability int
	DefenderDurability int

	// 勝者が攻撃側の場合のみ設定される略奪内容
	CargoSeized   domain.Manifest
	CreditsGained int
	Experience    int
}

const winCredits = 100

// Resolve は 2 機体間の 1 交換を解決する。
// 双方の耐久が同時に 0 になった場合は勝者なしとする。
func Resolve(attacker, defender domain.Combatant, action domain.CombatAction, rng Source) Outcome {
	damage := attackDamage(attacker.AttackPower, defender.Defense, action, rng)
	defenderDur := floorZero(defender.Durability - damage)

	// 反撃は常に発生する。威力は弱められる。
	counter := maxOne(defender.AttackPower - attacker.Defense)
	counter = int(float64(counter) * uniform(rng, 0.5, 0.8))
	attackerDur := floorZero(attacker.Durability - counter)

	out := Outcome{
		DamageDealt:        damage,
		DamageReceived:     counter,
		AttackerDurability: attackerDur,
		DefenderDurability: defenderDur,
	}

	switch {
	case defenderDur == 0 && attackerDur == 0:
		out.Winner = WinnerNone
	case defenderDur == 0:
		out.Winner = WinnerAttacker
	case attackerDur == 0:
		out.Winner = WinnerDefender
	}

	if out.Winner == WinnerAttacker {
		out.CargoSeized = seize(defender.Cargo, 4)
		out.CreditsGained = winCredits
		out.Experience = 50
	} else {
		out.Experience = 25
	}
	return out
}

// PirateStats は拠点の危険度から海賊の戦闘力を導く。
func PirateStats(dangerLevel int) domain.Combatant {
	if dangerLevel < 1 {
		dangerLevel = 1
	}
	dur := 50 + dangerLevel*10
	return domain.Combatant{
		AttackPower:   10 + dangerLevel*5,
		Defense:       5 + dangerLevel*3,
		Durability:    dur,
		MaxDurability: dur,
	}
}

// PirateOutcome は海賊戦 1 交換の解決結果。
type PirateOutcome struct {
	Winner Winner // WinnerDefender は海賊勝利を表す

	DamageDealt       int
	DamageReceived    int
	VehicleDurability int
	PirateDurability  int

	CargoLost     domain.Manifest
	CargoGained   domain.Manifest
	CreditsGained int
	CreditsLost   int
	Experience    int
}

// ResolvePirate は海賊との 1 交換を解決する。
func ResolvePirate(vehicle domain.Combatant, pirate domain.Combatant, action domain.CombatAction, rng Source) PirateOutcome {
	damage := attackDamage(vehicle.AttackPower, pirate.Defense, action, rng)

	pirateHit := maxOne(pirate.AttackPower - vehicle.Defense)
	pirateHit = int(float64(pirateHit) * uniform(rng, 0.7, 1.0))

	pirateDur := pirate.Durability - damage
	vehicleDur := floorZero(vehicle.Durability - pirateHit)

	out := PirateOutcome{
		DamageDealt:       damage,
		DamageReceived:    pirateHit,
		VehicleDurability: vehicleDur,
		PirateDurability:  floorZero(pirateDur),
	}

	switch {
	case pirateDur <= 0 && vehicleDur == 0:
		out.Winner = WinnerNone
	case pirateDur <= 0:
		out.Winner = WinnerAttacker
	case vehicleDur == 0:
		out.Winner = WinnerDefender
	}

	switch out.Winner {
	case WinnerAttacker:
		out.CreditsGained = randRange(rng, 50, 200)
		if rng.Float64() < 0.3 {
			out.CargoGained = domain.Manifest{domain.CargoArtifacts: 1}
		}
		out.Experience = 75
	case WinnerDefender:
		out.CargoLost = seize(vehicle.Cargo, 3)
		out.CreditsLost = randRange(rng, 100, 500)
		out.Experience = 25
	default:
		out.Experience = 25
	}
	return out
}

func attackDamage(attackPower, defense int, action domain.CombatAction, rng Source) int {
	multiplier := 1.0
	switch action {
	case domain.CombatSpecial:
		multiplier = 1.5
	case domain.CombatDefend:
		multiplier = 0.8
	}
	final := int(float64(attackPower) * multiplier * uniform(rng, 0.8, 1.2))
	return maxOne(final - defense)
}

// seize は各貨物行の 1/divisor（切り捨て）を奪った結果を返す。
func seize(cargo domain.Manifest, divisor int) domain.Manifest {
	taken := make(domain.Manifest)
	for kind, qty := range cargo {
		amount := qty / divisor
		if amount > 0 {
			taken[kind] = amount
		}
	}
	return taken
}

func uniform(rng Source, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func randRange(rng Source, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

func maxOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
