package domain

import "time"

// HistoryRetention は価格履歴の保持期間です。これより古いエントリは
// 更新のたびに刈り取られます（件数ではなく経過時間で落とすローリングウィンドウ）。
const HistoryRetention = 24 * time.Hour

// PricePoint は価格履歴の1点を表します。
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	BuyPrice  int       `json:"buy_price"`
	SellPrice int       `json:"sell_price"`
	Supply    int       `json:"supply"`
	Demand    int       `json:"demand"`
}

// MarketEntry は (拠点, 貨物種別) ごとの市場状態を表す構造体です。
// 価格は常に1以上、供給・需要は0以上に保たれます。
type MarketEntry struct {
	LocationID LocationID
	Cargo      CargoKind
	BuyPrice   int
	SellPrice  int
	Supply     int
	Demand     int
	History    []PricePoint
	UpdatedAt  time.Time
}

// Trend は需給比から導かれる価格傾向
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// SupplyDemandRatio は supply / max(demand, 1) を返します。
func (m MarketEntry) SupplyDemandRatio() float64 {
	demand := m.Demand
	if demand < 1 {
		demand = 1
	}
	return float64(m.Supply) / float64(demand)
}

// Trend は現在の需給比から価格傾向を返します。
func (m MarketEntry) Trend() Trend {
	ratio := m.SupplyDemandRatio()
	switch {
	case ratio > 1.5:
		return TrendFalling
	case ratio < 0.7:
		return TrendRising
	default:
		return TrendStable
	}
}

// RecordHistory は現在の価格・需給を履歴に追記し、保持期間より古い点を刈り取ります。
func (m *MarketEntry) RecordHistory(now time.Time) {
	m.History = append(m.History, PricePoint{
		Timestamp: now,
		BuyPrice:  m.BuyPrice,
		SellPrice: m.SellPrice,
		Supply:    m.Supply,
		Demand:    m.Demand,
	})
	m.PruneHistory(now.Add(-HistoryRetention))
}

// PruneHistory は cutoff 以前の履歴点を取り除きます。
func (m *MarketEntry) PruneHistory(cutoff time.Time) {
	kept := m.History[:0]
	for _, p := range m.History {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}
	m.History = kept
}

// ScalePrices は両価格に倍率を掛けます（下限1）。market_shift イベントで使用します。
func (m *MarketEntry) ScalePrices(multiplier float64) {
	m.BuyPrice = priceFloor(int(float64(m.BuyPrice) * multiplier))
	m.SellPrice = priceFloor(int(float64(m.SellPrice) * multiplier))
}

func priceFloor(p int) int {
	if p < 1 {
		return 1
	}
	return p
}
