package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// Empty はワールドデータが未投入かどうかを返す。
func (s *Store) Empty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Seed は初期状態を 1 トランザクションで投入する。既存行は置き換える。
func (s *Store) Seed(ctx context.Context, snap state.Snapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range snap.Players {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO players (id, username, level, experience, credits, reputation, alliance_id, location_id, is_online, last_active)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Username, p.Level, p.Experience, p.Credits, p.Reputation,
				p.AllianceID, p.CurrentLocationID, boolInt(p.IsOnline), fmtTime(p.LastActive)); err != nil {
				return err
			}
		}
		for _, v := range snap.Vehicles {
			cargo, err := json.Marshal(orEmpty(v.Cargo))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO vehicles (`+vehicleColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				v.ID, v.OwnerID, v.Name, string(v.Kind), v.Speed, v.CargoCapacity,
				v.FuelCapacity, v.CurrentFuel, v.Durability, v.MaxDurability,
				v.AttackPower, v.Defense, v.CurrentLocationID, v.DestinationID,
				boolInt(v.IsTraveling), fmtTime(v.TravelStartTime), fmtTime(v.EstimatedArrival),
				string(cargo)); err != nil {
				return err
			}
		}
		for _, l := range snap.Locations {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO locations (id, name, kind, x, y, region, danger_level, population, prosperity, is_active)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, l.Name, l.Kind, l.X, l.Y, l.Region,
				l.DangerLevel, l.Population, l.Prosperity, boolInt(l.IsActive)); err != nil {
				return err
			}
		}
		for _, m := range snap.Markets {
			history, err := json.Marshal(m.History)
			if err != nil {
				return err
			}
			if m.History == nil {
				history = []byte("[]")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO markets (`+marketColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				m.LocationID, string(m.Cargo), m.BuyPrice, m.SellPrice,
				m.Supply, m.Demand, string(history), fmtTime(m.UpdatedAt)); err != nil {
				return err
			}
		}
		for _, ms := range snap.Missions {
			cargo, err := json.Marshal(orEmpty(ms.RequiredCargo))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO missions (id, title, kind, origin_id, destination_id, required_cargo_json,
					reward_credits, reward_experience, penalty_credits, status, player_id, accepted_at, deadline)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ms.ID, ms.Title, ms.Kind, ms.OriginID, ms.DestinationID, string(cargo),
				ms.RewardCredits, ms.RewardExperience, ms.PenaltyCredits,
				string(ms.Status), ms.PlayerID, fmtTime(ms.AcceptedAt), fmtTime(ms.Deadline)); err != nil {
				return err
			}
		}
		for _, e := range snap.Events {
			effects, err := json.Marshal(e.Effects)
			if err != nil {
				return err
			}
			affected, err := json.Marshal(e.AffectedLocationIDs)
			if err != nil {
				return err
			}
			if e.AffectedLocationIDs == nil {
				affected = []byte("[]")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO events (id, kind, title, description, effects_json, affected_json, severity, start_time, end_time, duration_ns, is_active)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(e.ID), string(e.Kind), e.Title, e.Description,
				string(effects), string(affected), e.Severity,
				fmtTime(e.StartTime), fmtTime(e.EndTime), int64(e.Duration), boolInt(e.IsActive)); err != nil {
				return err
			}
		}
		return nil
	})
}

func orEmpty(m domain.Manifest) domain.Manifest {
	if m == nil {
		return domain.Manifest{}
	}
	return m
}
