package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/anyashankar/cargo-clash/domain"
)

type mode string

const (
	modeWatch mode = "watch"
	modeLoad  mode = "load"
)

func main() {
	var (
		modeFlag        = flag.String("mode", string(modeWatch), "client mode: watch or load")
		addrFlag        = flag.String("addr", "ws://localhost:8080", "server base address")
		playerFlag      = flag.Int64("player", 1, "player id to connect as")
		actionFlag      = flag.String("action", "ping", "action to send in load mode: ping|get_game_state|get_market_trends")
		totalFlag       = flag.Int("total", 100, "total number of actions to send in load mode")
		concurrencyFlag = flag.Int("concurrency", 10, "number of concurrent connections in load mode")
	)
	flag.Parse()

	if *totalFlag <= 0 {
		log.Fatalf("total must be positive")
	}
	if *concurrencyFlag <= 0 {
		log.Fatalf("concurrency must be positive")
	}
	if *concurrencyFlag > *totalFlag {
		*concurrencyFlag = *totalFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := clientConfig{
		Addr:        *addrFlag,
		PlayerID:    *playerFlag,
		Action:      *actionFlag,
		Total:       *totalFlag,
		Concurrency: *concurrencyFlag,
	}

	start := time.Now()
	var err error
	switch mode(*modeFlag) {
	case modeWatch:
		err = runWatch(ctx, cfg)
	case modeLoad:
		err = runLoad(ctx, cfg)
	default:
		log.Fatalf("unsupported mode: %s", *modeFlag)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("client failed: %v", err)
	}
	log.Printf("done in %s", time.Since(start))
}

type clientConfig struct {
	Addr        string
	PlayerID    int64
	Action      string
	Total       int
	Concurrency int
}

func (c clientConfig) endpoint(playerID int64) string {
	return fmt.Sprintf("%s/ws/%d", c.Addr, playerID)
}

// runWatch は1接続を張り、受信した全メッセージを標準出力へ流す。
func runWatch(ctx context.Context, cfg clientConfig) error {
	conn, _, err := websocket.Dial(ctx, cfg.endpoint(cfg.PlayerID), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	log.Printf("watching as player %d", cfg.PlayerID)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("unreadable message: %v", err)
			continue
		}
		log.Printf("[%s] %s %s", env.Timestamp, env.Type, string(env.Data))
	}
}

// runLoad は並列接続から同一アクションを送り続け、応答数を集計する。
func runLoad(ctx context.Context, cfg clientConfig) error {
	payload, err := json.Marshal(map[string]any{"type": cfg.Action})
	if err != nil {
		return err
	}

	var success, failure int64
	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	perWorker, remainder := divideWork(cfg.Total, cfg.Concurrency)
	for worker := 0; worker < cfg.Concurrency; worker++ {
		count := perWorker
		if worker < remainder {
			count++
		}
		go func(workerID, n int) {
			defer wg.Done()
			conn, _, err := websocket.Dial(ctx, cfg.endpoint(cfg.PlayerID), nil)
			if err != nil {
				log.Printf("[worker %d] dial error: %v", workerID, err)
				atomic.AddInt64(&failure, int64(n))
				return
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			// 最初の1通は接続確立通知
			if _, _, err := conn.Read(ctx); err != nil {
				log.Printf("[worker %d] welcome read error: %v", workerID, err)
				atomic.AddInt64(&failure, int64(n))
				return
			}

			for i := 0; i < n; i++ {
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					log.Printf("[worker %d] write error: %v", workerID, err)
					atomic.AddInt64(&failure, 1)
					return
				}
				if _, _, err := conn.Read(ctx); err != nil {
					log.Printf("[worker %d] read error: %v", workerID, err)
					atomic.AddInt64(&failure, 1)
					return
				}
				atomic.AddInt64(&success, 1)
			}
		}(worker, count)
	}
	wg.Wait()
	log.Printf("load complete (success=%d failure=%d)", success, failure)
	return nil
}

func divideWork(total, workers int) (perWorker, remainder int) {
	return total / workers, total % workers
}
