package engine

// 経済・戦闘まわりの調整値。バランス数値であり契約ではない。
const (
	supplyDemandWalk = 10
	oversupplyRatio  = 1.5
	scarcityRatio    = 0.7
	priceDecay       = 0.95
	priceGrowth      = 1.05

	eventChance       = 0.10
	maxEventLocations = 3

	encounterChancePerDanger = 0.05
	fuelPerDistance          = 0.1

	arbitrageLimit       = 20
	arbitrageMaxDistance = 200.0
	arbitrageMinMargin   = 0.2
)
