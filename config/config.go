// Package config はサーバ設定を YAML と環境変数から読み込む。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anyashankar/cargo-clash/engine"
	"github.com/anyashankar/cargo-clash/utils"
)

type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"` // 空ならインメモリストアで起動する

	TickInterval   string `yaml:"tick_interval"`
	MarketInterval string `yaml:"market_interval"`
	EventInterval  string `yaml:"event_interval"`
	StateInterval  string `yaml:"state_interval"`
	Backoff        string `yaml:"backoff"`

	World World `yaml:"world"`
}

// World は起動時に投入する初期ワールドの記述。
type World struct {
	Locations []LocationSpec `yaml:"locations"`
	Players   []PlayerSpec   `yaml:"players,omitempty"`
}

type LocationSpec struct {
	ID          int64       `yaml:"id"`
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"type"`
	X           float64     `yaml:"x"`
	Y           float64     `yaml:"y"`
	Region      string      `yaml:"region"`
	Population  int         `yaml:"population"`
	Prosperity  int         `yaml:"prosperity"`
	DangerLevel int         `yaml:"danger_level"`
	Markets     []MarketRow `yaml:"markets,omitempty"`
}

type PlayerSpec struct {
	ID         int64         `yaml:"id"`
	Username   string        `yaml:"username"`
	Credits    int           `yaml:"credits"`
	LocationID int64         `yaml:"location_id"`
	Vehicles   []VehicleSpec `yaml:"vehicles,omitempty"`
}

type VehicleSpec struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"type"`
}

type MarketRow struct {
	Cargo     string `yaml:"cargo"`
	BuyPrice  int    `yaml:"buy_price"`
	SellPrice int    `yaml:"sell_price"`
	Supply    int    `yaml:"supply"`
	Demand    int    `yaml:"demand"`
}

// Load は path の YAML を読み、環境変数で上書きした設定を返す。
// path が空ならデフォルト設定のみを使う。
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}
	cfg.Addr = utils.GetEnvDefault("CARGO_CLASH_ADDR", cfg.Addr)
	cfg.DBPath = utils.GetEnvDefault("CARGO_CLASH_DB", cfg.DBPath)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Addr:           ":8080",
		DBPath:         "data/cargo-clash.db",
		TickInterval:   "100ms",
		MarketInterval: "5m",
		EventInterval:  "10m",
		StateInterval:  "5s",
		Backoff:        "1s",
		World:          defaultWorld(),
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(c.World.Locations))
	for _, loc := range c.World.Locations {
		if loc.ID <= 0 {
			return fmt.Errorf("config: location %q has invalid id %d", loc.Name, loc.ID)
		}
		if _, dup := seen[loc.ID]; dup {
			return fmt.Errorf("config: duplicate location id %d", loc.ID)
		}
		seen[loc.ID] = struct{}{}
	}
	return nil
}

// EngineConfig は間隔文字列を解釈してエンジン設定に変換する。
func (c Config) EngineConfig() (engine.Config, error) {
	out := engine.Config{}
	for _, f := range []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"tick_interval", c.TickInterval, &out.TickInterval},
		{"market_interval", c.MarketInterval, &out.MarketInterval},
		{"event_interval", c.EventInterval, &out.EventInterval},
		{"state_interval", c.StateInterval, &out.StateInterval},
		{"backoff", c.Backoff, &out.Backoff},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return out, fmt.Errorf("config: %s: %w", f.name, err)
		}
		if d <= 0 {
			return out, fmt.Errorf("config: %s must be positive", f.name)
		}
		*f.field = d
	}
	return out, nil
}
