package memory

import (
	"context"
	"sync"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// ConcurrentStore は Store をラップし、排他制御付きで GameState を実装する。
// 照会は共有ロック、Apply 系は排他ロックで 1 コマンド = 1 トランザクションとなる。
type ConcurrentStore struct {
	base *Store
	mu   sync.RWMutex
}

// NewConcurrentStore は新しい ConcurrentStore を生成する。
func NewConcurrentStore(base *Store) *ConcurrentStore {
	return &ConcurrentStore{base: base}
}

func (c *ConcurrentStore) PlayerByID(ctx context.Context, id domain.PlayerID) (domain.Player, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.playerByID(id)
}

func (c *ConcurrentStore) VehicleByID(ctx context.Context, id domain.VehicleID) (domain.Vehicle, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.vehicleByID(id)
}

func (c *ConcurrentStore) VehiclesByOwner(ctx context.Context, owner domain.PlayerID) ([]domain.Vehicle, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.vehiclesByOwner(owner), nil
}

func (c *ConcurrentStore) LocationByID(ctx context.Context, id domain.LocationID) (domain.Location, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.locationByID(id)
}

func (c *ConcurrentStore) ActiveLocations(ctx context.Context) ([]domain.Location, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.activeLocations(), nil
}

func (c *ConcurrentStore) ArrivedVehicles(ctx context.Context, now time.Time) ([]domain.Vehicle, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.arrivedVehicles(now), nil
}

func (c *ConcurrentStore) MarketEntries(ctx context.Context) ([]domain.MarketEntry, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.marketEntries(), nil
}

func (c *ConcurrentStore) MarketByLocation(ctx context.Context, id domain.LocationID) ([]domain.MarketEntry, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.marketByLocation(id), nil
}

func (c *ConcurrentStore) ActiveEvents(ctx context.Context) ([]domain.WorldEvent, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.activeEvents(), nil
}

func (c *ConcurrentStore) ExpiredMissions(ctx context.Context, now time.Time) ([]domain.Mission, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.expiredMissions(now), nil
}

func (c *ConcurrentStore) ApplyTravelStart(ctx context.Context, cmd domain.TravelStartCommand) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyTravelStart(cmd)
}

func (c *ConcurrentStore) ApplyArrivals(ctx context.Context, cmd domain.ArrivalsCommand) (domain.ArrivalsResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyArrivals(cmd)
}

func (c *ConcurrentStore) ApplyMarketTick(ctx context.Context, cmd domain.MarketTickCommand) (domain.MarketTickResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyMarketTick(cmd)
}

func (c *ConcurrentStore) ApplyEventStart(ctx context.Context, cmd domain.EventStartCommand) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyEventStart(cmd)
}

func (c *ConcurrentStore) ApplyEventEnd(ctx context.Context, cmd domain.EventEndCommand) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyEventEnd(cmd)
}

func (c *ConcurrentStore) ApplyMissionFailure(ctx context.Context, cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyMissionFailure(cmd)
}

func (c *ConcurrentStore) ApplyTrade(ctx context.Context, cmd domain.TradeCommand) (domain.TradeResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyTrade(cmd)
}

func (c *ConcurrentStore) ApplyCombat(ctx context.Context, cmd domain.CombatCommand) (domain.CombatResult, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.applyCombat(cmd)
}

// CombatLog は戦闘履歴のコピーを古い順に返す。
func (c *ConcurrentStore) CombatLog() []domain.CombatLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.copyCombatLog()
}

var _ state.GameState = (*ConcurrentStore)(nil)
