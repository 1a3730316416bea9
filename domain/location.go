package domain

import "math"

// LocationID はロケーションの識別子
type LocationID int64

// Location は世界地図上の拠点（都市・港・交易ハブなど）を表す構造体です。
type Location struct {
	ID          LocationID
	Name        string
	Kind        string // city, port, trade_hub, ...
	X           float64
	Y           float64
	Region      string
	DangerLevel int // 1-10: 遭遇確率と海賊戦力のスケール
	Population  int
	Prosperity  int // 0-100
	IsActive    bool
}

// DistanceTo は2拠点間のユークリッド距離を返します。
func (l Location) DistanceTo(other Location) float64 {
	dx := other.X - l.X
	dy := other.Y - l.Y
	return math.Sqrt(dx*dx + dy*dy)
}
