package engine

import (
	"context"
	"sort"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
)

// simulateMarkets は経済周期ごとに全市場の需給ランダムウォークと
// 需給比由来の価格変動を適用し、拠点ごとに全品目スナップショットを配信する。
func (e *Engine) simulateMarkets(ctx context.Context, now time.Time) *StageError {
	if !e.marketGate.Allow() {
		return nil
	}

	entries, err := e.state.MarketEntries(ctx)
	if err != nil {
		return classifyStageErr("market_simulation", err)
	}
	if len(entries) == 0 {
		return nil
	}

	adjustments := make([]domain.MarketAdjustment, 0, len(entries))
	for _, entry := range entries {
		adj := domain.MarketAdjustment{
			LocationID:      entry.LocationID,
			Kind:            entry.Cargo,
			SupplyDelta:     e.rng.Intn(2*supplyDemandWalk+1) - supplyDemandWalk,
			DemandDelta:     e.rng.Intn(2*supplyDemandWalk+1) - supplyDemandWalk,
			PriceMultiplier: 1.0,
		}

		projected := entry
		projected.Supply = floorZero(entry.Supply + adj.SupplyDelta)
		projected.Demand = floorZero(entry.Demand + adj.DemandDelta)
		ratio := projected.SupplyDemandRatio()
		switch {
		case ratio > oversupplyRatio:
			adj.PriceMultiplier = priceDecay
		case ratio < scarcityRatio:
			adj.PriceMultiplier = priceGrowth
		}
		adjustments = append(adjustments, adj)
	}

	result, err := e.state.ApplyMarketTick(ctx, domain.MarketTickCommand{Now: now, Adjustments: adjustments})
	if err != nil {
		return classifyStageErr("market_simulation", err)
	}

	for _, snapshot := range result.Snapshots {
		e.broadcastLocation(ctx, snapshot.LocationID, domain.MsgMarketUpdate, marketPayload(snapshot))
	}
	e.logger.InfoContext(ctx, "market tick applied",
		"entries", len(adjustments), "locations", len(result.Snapshots))
	return nil
}

// marketPayload は市場スナップショットを配信形式（差分ではなく全量）に変換する。
func marketPayload(snapshot domain.MarketSnapshot) map[string]any {
	prices := make(map[string]any, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		prices[string(entry.Cargo)] = map[string]int{
			"buy_price":  entry.BuyPrice,
			"sell_price": entry.SellPrice,
			"supply":     entry.Supply,
			"demand":     entry.Demand,
		}
	}
	return map[string]any{
		"location_id": snapshot.LocationID,
		"prices":      prices,
	}
}

// CargoTrend は 1 品目の現在価格と傾向。
type CargoTrend struct {
	LocationID domain.LocationID `json:"location_id"`
	Cargo      domain.CargoKind  `json:"cargo_type"`
	BuyPrice   int               `json:"buy_price"`
	SellPrice  int               `json:"sell_price"`
	Trend      domain.Trend      `json:"trend"`
	Ratio      float64           `json:"supply_demand_ratio"`
}

// Arbitrage は買い拠点と売り拠点の利ざやが正となる組み合わせ。
type Arbitrage struct {
	Cargo          domain.CargoKind  `json:"cargo_type"`
	BuyLocationID  domain.LocationID `json:"buy_location_id"`
	SellLocationID domain.LocationID `json:"sell_location_id"`
	BuyPrice       int               `json:"buy_price"`
	SellPrice      int               `json:"sell_price"`
	ProfitPerUnit  int               `json:"profit_per_unit"`
	ProfitMargin   float64           `json:"profit_margin"`
	MaxQuantity    int               `json:"max_quantity"`
	Distance       float64           `json:"distance"`
}

// MarketTrends は全市場の傾向一覧を返す。
func (e *Engine) MarketTrends(ctx context.Context) ([]CargoTrend, error) {
	entries, err := e.state.MarketEntries(ctx)
	if err != nil {
		return nil, err
	}
	trends := make([]CargoTrend, 0, len(entries))
	for _, entry := range entries {
		trends = append(trends, CargoTrend{
			LocationID: entry.LocationID,
			Cargo:      entry.Cargo,
			BuyPrice:   entry.BuyPrice,
			SellPrice:  entry.SellPrice,
			Trend:      entry.Trend(),
			Ratio:      entry.SupplyDemandRatio(),
		})
	}
	return trends, nil
}

// ArbitrageOpportunities は品目ごとの安値買い・高値売りの組み合わせを
// 利益率降順で返す。輸送距離と最低利益率で絞り、上位のみに切り詰める。
func (e *Engine) ArbitrageOpportunities(ctx context.Context) ([]Arbitrage, error) {
	entries, err := e.state.MarketEntries(ctx)
	if err != nil {
		return nil, err
	}

	locations := make(map[domain.LocationID]domain.Location)
	for _, entry := range entries {
		if _, ok := locations[entry.LocationID]; ok {
			continue
		}
		loc, err := e.state.LocationByID(ctx, entry.LocationID)
		if err != nil {
			return nil, err
		}
		locations[entry.LocationID] = loc
	}

	byCargo := make(map[domain.CargoKind][]domain.MarketEntry)
	for _, entry := range entries {
		byCargo[entry.Cargo] = append(byCargo[entry.Cargo], entry)
	}

	var out []Arbitrage
	for cargo, markets := range byCargo {
		for _, buy := range markets {
			for _, sell := range markets {
				if buy.LocationID == sell.LocationID {
					continue
				}
				distance := locations[buy.LocationID].DistanceTo(locations[sell.LocationID])
				if distance > arbitrageMaxDistance {
					continue
				}
				profit := sell.SellPrice - buy.BuyPrice
				if profit <= 0 {
					continue
				}
				margin := float64(profit) / float64(buy.BuyPrice)
				if margin < arbitrageMinMargin {
					continue
				}
				quantity := min(buy.Supply, sell.Demand)
				if quantity <= 0 {
					continue
				}
				out = append(out, Arbitrage{
					Cargo:          cargo,
					BuyLocationID:  buy.LocationID,
					SellLocationID: sell.LocationID,
					BuyPrice:       buy.BuyPrice,
					SellPrice:      sell.SellPrice,
					ProfitPerUnit:  profit,
					ProfitMargin:   margin,
					MaxQuantity:    quantity,
					Distance:       distance,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfitMargin != out[j].ProfitMargin {
			return out[i].ProfitMargin > out[j].ProfitMargin
		}
		if out[i].Cargo != out[j].Cargo {
			return out[i].Cargo < out[j].Cargo
		}
		return out[i].BuyLocationID < out[j].BuyLocationID
	})
	if len(out) > arbitrageLimit {
		out = out[:arbitrageLimit]
	}
	return out, nil
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
