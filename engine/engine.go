// Package engine はワールドシミュレーションの心臓部。固定ケイデンスの
// ティックループが移動解決・経済・イベント・ミッション期限を順に進め、
// 結果をレジストリ経由で接続中クライアントへ配信する。
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anyashankar/cargo-clash/registry"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// Config はシミュレーションの各ケイデンス設定。
type Config struct {
	TickInterval   time.Duration // シミュレーションの基本周期
	MarketInterval time.Duration // 経済シミュレーションの周期
	EventInterval  time.Duration // イベント抽選の周期
	StateInterval  time.Duration // 定期状態配信の周期
	Backoff        time.Duration // 非一時エラー後の待機
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.MarketInterval <= 0 {
		c.MarketInterval = 5 * time.Minute
	}
	if c.EventInterval <= 0 {
		c.EventInterval = 10 * time.Minute
	}
	if c.StateInterval <= 0 {
		c.StateInterval = 5 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// Engine はティックスケジューラとクライアントアクションの入口を束ねる。
type Engine struct {
	state    state.GameState
	registry *registry.Registry
	logger   *slog.Logger
	cfg      Config

	clock func() time.Time
	rng   *lockedRand

	marketGate *rate.Limiter
	eventGate  *rate.Limiter
	stateGate  *rate.Limiter

	events *eventIndex
}

// New はエンジンを生成する。
func New(st state.GameState, reg *registry.Registry, logger *slog.Logger, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		state:      st,
		registry:   reg,
		logger:     logger,
		cfg:        cfg,
		clock:      time.Now,
		rng:        newLockedRand(time.Now().UnixNano()),
		marketGate: rate.NewLimiter(rate.Every(cfg.MarketInterval), 1),
		eventGate:  rate.NewLimiter(rate.Every(cfg.EventInterval), 1),
		stateGate:  rate.NewLimiter(rate.Every(cfg.StateInterval), 1),
		events:     newEventIndex(),
	}
}

// WithClock はテスト用に時間ソースを差し替える。
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithSeed はテスト用に乱数シードを固定する。
func (e *Engine) WithSeed(seed int64) *Engine {
	e.rng = newLockedRand(seed)
	return e
}

// Run はティックループを回す。ctx のキャンセルで進行中のティックを
// 終えてから戻る。ステージの失敗でループは止まらない。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.loadEventIndex(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to load active events", "error", err)
	}
	e.logger.InfoContext(ctx, "engine started",
		"tickInterval", e.cfg.TickInterval,
		"marketInterval", e.cfg.MarketInterval,
		"eventInterval", e.cfg.EventInterval)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "engine stopped")
			return nil
		case <-ticker.C:
			if backoff := e.tick(ctx, e.clock()); backoff {
				select {
				case <-ctx.Done():
					e.logger.InfoContext(ctx, "engine stopped")
					return nil
				case <-time.After(e.cfg.Backoff):
				}
			}
		}
	}
}

// tick は 1 周期ぶんのステージを固定順で実行する。
// 非一時エラーがあった場合に true を返す。
func (e *Engine) tick(ctx context.Context, now time.Time) bool {
	stages := []func(context.Context, time.Time) *StageError{
		e.resolveTravel,
		e.simulateMarkets,
		e.generateEvents,
		e.expireEvents,
		e.sweepMissions,
		e.pushPeriodicState,
	}

	backoff := false
	for _, stage := range stages {
		if ctx.Err() != nil {
			return false
		}
		stageErr := stage(ctx, now)
		if stageErr == nil {
			continue
		}
		if stageErr.Transient {
			e.logger.WarnContext(ctx, "stage skipped", "stage", stageErr.Stage, "error", stageErr.Err)
			continue
		}
		e.logger.ErrorContext(ctx, "stage failed", "stage", stageErr.Stage, "error", stageErr.Err)
		backoff = true
	}
	return backoff
}

func (e *Engine) loadEventIndex(ctx context.Context) error {
	events, err := e.state.ActiveEvents(ctx)
	if err != nil {
		return err
	}
	e.events.replaceAll(events)
	return nil
}

// lockedRand はティックループとアクションハンドラの双方から使われる乱数源。
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
