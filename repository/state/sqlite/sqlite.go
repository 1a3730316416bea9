package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store は SQLite ファイルにワールド状態を永続化する GameState 実装。
// Apply 系は 1 呼び出し = 1 トランザクションで、前提をトランザクション内で
// 再検証してから書き込む。
type Store struct {
	db *sql.DB
}

// Open はデータベースを開き、スキーマを初期化する。
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close は接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

func initPragmas(db *sql.DB) error {
	// WAL はシミュレーションループからの書き込みに向く。
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			level INTEGER NOT NULL,
			experience INTEGER NOT NULL,
			credits INTEGER NOT NULL,
			reputation INTEGER NOT NULL,
			alliance_id INTEGER NOT NULL DEFAULT 0,
			location_id INTEGER NOT NULL DEFAULT 0,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_active TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			speed INTEGER NOT NULL,
			cargo_capacity INTEGER NOT NULL,
			fuel_capacity INTEGER NOT NULL,
			current_fuel INTEGER NOT NULL,
			durability INTEGER NOT NULL,
			max_durability INTEGER NOT NULL,
			attack_power INTEGER NOT NULL,
			defense INTEGER NOT NULL,
			location_id INTEGER NOT NULL DEFAULT 0,
			destination_id INTEGER NOT NULL DEFAULT 0,
			is_traveling INTEGER NOT NULL DEFAULT 0,
			travel_start TEXT NOT NULL DEFAULT '',
			estimated_arrival TEXT NOT NULL DEFAULT '',
			cargo_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_owner ON vehicles(owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_traveling ON vehicles(is_traveling);`,
		`CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			danger_level INTEGER NOT NULL,
			population INTEGER NOT NULL DEFAULT 0,
			prosperity INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS markets (
			location_id INTEGER NOT NULL,
			cargo TEXT NOT NULL,
			buy_price INTEGER NOT NULL,
			sell_price INTEGER NOT NULL,
			supply INTEGER NOT NULL,
			demand INTEGER NOT NULL,
			history_json TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (location_id, cargo)
		);`,
		`CREATE TABLE IF NOT EXISTS missions (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			kind TEXT NOT NULL,
			origin_id INTEGER NOT NULL,
			destination_id INTEGER NOT NULL,
			required_cargo_json TEXT NOT NULL DEFAULT '{}',
			reward_credits INTEGER NOT NULL,
			reward_experience INTEGER NOT NULL,
			penalty_credits INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			player_id INTEGER NOT NULL DEFAULT 0,
			accepted_at TEXT NOT NULL DEFAULT '',
			deadline TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			effects_json TEXT NOT NULL DEFAULT '{}',
			affected_json TEXT NOT NULL DEFAULT '[]',
			severity INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL DEFAULT '',
			duration_ns INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_active ON events(is_active);`,
		`CREATE TABLE IF NOT EXISTS combat_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id INTEGER NOT NULL,
			opponent_kind TEXT NOT NULL,
			opponent_id INTEGER NOT NULL DEFAULT 0,
			location_id INTEGER NOT NULL DEFAULT 0,
			winner_id INTEGER NOT NULL DEFAULT 0,
			damage_dealt INTEGER NOT NULL DEFAULT 0,
			damage_received INTEGER NOT NULL DEFAULT 0,
			cargo_lost_json TEXT NOT NULL DEFAULT '{}',
			cargo_gained_json TEXT NOT NULL DEFAULT '{}',
			credits_lost INTEGER NOT NULL DEFAULT 0,
			credits_gained INTEGER NOT NULL DEFAULT 0,
			experience_gained INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_combat_log_player ON combat_log(player_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
