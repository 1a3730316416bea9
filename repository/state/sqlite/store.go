package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const vehicleColumns = `id, owner_id, name, kind, speed, cargo_capacity, fuel_capacity,
	current_fuel, durability, max_durability, attack_power, defense,
	location_id, destination_id, is_traveling, travel_start, estimated_arrival, cargo_json`

const marketColumns = `location_id, cargo, buy_price, sell_price, supply, demand, history_json, updated_at`

func (s *Store) PlayerByID(ctx context.Context, id domain.PlayerID) (domain.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, username, level, experience, credits, reputation, alliance_id, location_id, is_online, last_active
		 FROM players WHERE id = ?`, id), id)
}

func (s *Store) VehicleByID(ctx context.Context, id domain.VehicleID) (domain.Vehicle, error) {
	return queryVehicle(ctx, s.db, id)
}

func (s *Store) VehiclesByOwner(ctx context.Context, owner domain.PlayerID) ([]domain.Vehicle, error) {
	return queryVehicles(ctx, s.db,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE owner_id = ? ORDER BY id`, owner)
}

func (s *Store) LocationByID(ctx context.Context, id domain.LocationID) (domain.Location, error) {
	return scanLocation(s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, x, y, region, danger_level, population, prosperity, is_active
		 FROM locations WHERE id = ?`, id), id)
}

func (s *Store) ActiveLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, x, y, region, danger_level, population, prosperity, is_active
		 FROM locations WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		var active int
		if err := rows.Scan(&l.ID, &l.Name, &l.Kind, &l.X, &l.Y, &l.Region,
			&l.DangerLevel, &l.Population, &l.Prosperity, &active); err != nil {
			return nil, err
		}
		l.IsActive = active != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ArrivedVehicles(ctx context.Context, now time.Time) ([]domain.Vehicle, error) {
	vehicles, err := queryVehicles(ctx, s.db,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE is_traveling = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	arrived := vehicles[:0]
	for _, v := range vehicles {
		if !v.EstimatedArrival.After(now) {
			arrived = append(arrived, v)
		}
	}
	return arrived, nil
}

func (s *Store) MarketEntries(ctx context.Context) ([]domain.MarketEntry, error) {
	return queryMarkets(ctx, s.db,
		`SELECT `+marketColumns+` FROM markets ORDER BY location_id, cargo`)
}

func (s *Store) MarketByLocation(ctx context.Context, id domain.LocationID) ([]domain.MarketEntry, error) {
	return queryMarkets(ctx, s.db,
		`SELECT `+marketColumns+` FROM markets WHERE location_id = ? ORDER BY cargo`, id)
}

func (s *Store) ActiveEvents(ctx context.Context) ([]domain.WorldEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, title, description, effects_json, affected_json, severity, start_time, end_time, duration_ns, is_active
		 FROM events WHERE is_active = 1 ORDER BY start_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WorldEvent
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ExpiredMissions(ctx context.Context, now time.Time) ([]domain.Mission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, kind, origin_id, destination_id, required_cargo_json,
			reward_credits, reward_experience, penalty_credits, status, player_id, accepted_at, deadline
		 FROM missions WHERE status IN (?, ?) ORDER BY id`,
		string(domain.MissionAccepted), string(domain.MissionInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Mission
	for rows.Next() {
		m, err := scanMissionRow(rows)
		if err != nil {
			return nil, err
		}
		if !m.Deadline.IsZero() && !m.Deadline.After(now) {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func (s *Store) ApplyTravelStart(ctx context.Context, cmd domain.TravelStartCommand) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		vehicle, err := queryVehicle(ctx, tx, cmd.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.OwnerID != cmd.PlayerID {
			return fmt.Errorf("%w: vehicle %d not owned by player %d", state.ErrConflict, cmd.VehicleID, cmd.PlayerID)
		}
		if vehicle.IsTraveling {
			return fmt.Errorf("%w: vehicle %d already traveling", state.ErrConflict, cmd.VehicleID)
		}
		if _, err := scanLocationTx(ctx, tx, cmd.DestinationID); err != nil {
			return err
		}
		if vehicle.CurrentFuel < cmd.FuelCost {
			return fmt.Errorf("%w: vehicle %d fuel %d < cost %d", state.ErrConflict, cmd.VehicleID, vehicle.CurrentFuel, cmd.FuelCost)
		}
		if err := vehicle.BeginTravel(cmd.DestinationID, cmd.Departure, cmd.Arrival); err != nil {
			return fmt.Errorf("%w: %v", state.ErrConflict, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE vehicles
			 SET is_traveling = 1, destination_id = ?, travel_start = ?, estimated_arrival = ?, current_fuel = current_fuel - ?
			 WHERE id = ?`,
			cmd.DestinationID, fmtTime(cmd.Departure), fmtTime(cmd.Arrival), cmd.FuelCost, cmd.VehicleID)
		return err
	})
}

func (s *Store) ApplyArrivals(ctx context.Context, cmd domain.ArrivalsCommand) (domain.ArrivalsResult, error) {
	var result domain.ArrivalsResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range cmd.VehicleIDs {
			vehicle, err := queryVehicle(ctx, tx, id)
			if errors.Is(err, state.ErrVehicleNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			// 照会と確定の間に状態が変わった機体は黙って飛ばす
			if !vehicle.IsTraveling || vehicle.EstimatedArrival.After(cmd.Now) {
				continue
			}
			arrived := vehicle.CompleteTravel()
			if _, err := tx.ExecContext(ctx,
				`UPDATE vehicles
				 SET is_traveling = 0, location_id = ?, destination_id = 0, travel_start = '', estimated_arrival = ''
				 WHERE id = ?`, arrived, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE players SET location_id = ? WHERE id = ?`, arrived, vehicle.OwnerID); err != nil {
				return err
			}
			result.Arrivals = append(result.Arrivals, domain.TravelArrival{
				PlayerID:   vehicle.OwnerID,
				VehicleID:  vehicle.ID,
				LocationID: arrived,
			})
		}
		return nil
	})
	if err != nil {
		return domain.ArrivalsResult{}, err
	}
	return result, nil
}

func (s *Store) ApplyMarketTick(ctx context.Context, cmd domain.MarketTickCommand) (domain.MarketTickResult, error) {
	var result domain.MarketTickResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		touched := make([]domain.LocationID, 0, len(cmd.Adjustments))
		seen := make(map[domain.LocationID]struct{})
		for _, adj := range cmd.Adjustments {
			entry, err := queryMarket(ctx, tx, adj.LocationID, adj.Kind)
			if err != nil {
				return err
			}
			entry.Supply = floorZero(entry.Supply + adj.SupplyDelta)
			entry.Demand = floorZero(entry.Demand + adj.DemandDelta)
			if adj.PriceMultiplier != 0 && adj.PriceMultiplier != 1.0 {
				entry.ScalePrices(adj.PriceMultiplier)
			}
			entry.RecordHistory(cmd.Now)
			entry.UpdatedAt = cmd.Now
			if err := updateMarket(ctx, tx, entry); err != nil {
				return err
			}
			if _, ok := seen[adj.LocationID]; !ok {
				seen[adj.LocationID] = struct{}{}
				touched = append(touched, adj.LocationID)
			}
		}
		for _, id := range touched {
			entries, err := queryMarkets(ctx, tx,
				`SELECT `+marketColumns+` FROM markets WHERE location_id = ? ORDER BY cargo`, id)
			if err != nil {
				return err
			}
			result.Snapshots = append(result.Snapshots, domain.MarketSnapshot{LocationID: id, Entries: entries})
		}
		return nil
	})
	if err != nil {
		return domain.MarketTickResult{}, err
	}
	return result, nil
}

func (s *Store) ApplyEventStart(ctx context.Context, cmd domain.EventStartCommand) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		event := cmd.Event
		effects, err := json.Marshal(event.Effects)
		if err != nil {
			return err
		}
		affected, err := json.Marshal(event.AffectedLocationIDs)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, kind, title, description, effects_json, affected_json, severity, start_time, end_time, duration_ns, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(event.ID), string(event.Kind), event.Title, event.Description,
			string(effects), string(affected), event.Severity,
			fmtTime(event.StartTime), fmtTime(event.EndTime), int64(event.Duration), boolInt(event.IsActive))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: event %s already exists", state.ErrConflict, event.ID)
		}

		if cmd.MarketShift == nil {
			return nil
		}
		for _, locID := range event.AffectedLocationIDs {
			entries, err := queryMarkets(ctx, tx,
				`SELECT `+marketColumns+` FROM markets WHERE location_id = ? ORDER BY cargo`, locID)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if event.Effects.Cargo != "" && entry.Cargo != event.Effects.Cargo {
					continue
				}
				entry.ScalePrices(cmd.MarketShift.Multiplier)
				entry.UpdatedAt = event.StartTime
				if err := updateMarket(ctx, tx, entry); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) ApplyEventEnd(ctx context.Context, cmd domain.EventEndCommand) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var active int
		var endTime string
		err := tx.QueryRowContext(ctx,
			`SELECT is_active, end_time FROM events WHERE id = ?`, string(cmd.EventID)).Scan(&active, &endTime)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", state.ErrEventNotFound, cmd.EventID)
		}
		if err != nil {
			return err
		}
		if active == 0 {
			return fmt.Errorf("%w: event %s already ended", state.ErrConflict, cmd.EventID)
		}
		if endTime == "" {
			endTime = fmtTime(cmd.Now)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE events SET is_active = 0, end_time = ? WHERE id = ?`, endTime, string(cmd.EventID))
		return err
	})
}

func (s *Store) ApplyMissionFailure(ctx context.Context, cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error) {
	var result domain.MissionFailureResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, title, kind, origin_id, destination_id, required_cargo_json,
				reward_credits, reward_experience, penalty_credits, status, player_id, accepted_at, deadline
			 FROM missions WHERE id = ?`, cmd.MissionID)
		mission, err := scanMissionRow(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", state.ErrMissionNotFound, cmd.MissionID)
		}
		if err != nil {
			return err
		}
		if !mission.Open() {
			return fmt.Errorf("%w: mission %d is not open", state.ErrConflict, cmd.MissionID)
		}
		if mission.PlayerID == 0 {
			return fmt.Errorf("%w: mission %d has no assignee", state.ErrConflict, cmd.MissionID)
		}
		player, err := scanPlayerTx(ctx, tx, mission.PlayerID)
		if err != nil {
			return err
		}

		penalty := mission.FailurePenalty()
		newCredits := floorZero(player.Credits - penalty)
		newReputation := floorZero(player.Reputation - domain.MissionReputationPenalty)

		if _, err := tx.ExecContext(ctx,
			`UPDATE players SET credits = ?, reputation = ? WHERE id = ?`,
			newCredits, newReputation, player.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE missions SET status = ? WHERE id = ?`,
			string(domain.MissionFailed), mission.ID); err != nil {
			return err
		}
		result = domain.MissionFailureResult{
			PlayerID:       player.ID,
			MissionID:      mission.ID,
			CreditsPenalty: penalty,
			NewCredits:     newCredits,
			NewReputation:  newReputation,
		}
		return nil
	})
	return result, err
}

func (s *Store) ApplyTrade(ctx context.Context, cmd domain.TradeCommand) (domain.TradeResult, error) {
	var result domain.TradeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		player, err := scanPlayerTx(ctx, tx, cmd.PlayerID)
		if err != nil {
			return err
		}
		vehicle, err := queryVehicle(ctx, tx, cmd.VehicleID)
		if err != nil {
			return err
		}
		entry, err := queryMarket(ctx, tx, cmd.LocationID, cmd.Kind)
		if err != nil {
			return err
		}
		if vehicle.OwnerID != cmd.PlayerID {
			return fmt.Errorf("%w: vehicle %d not owned by player %d", state.ErrConflict, cmd.VehicleID, cmd.PlayerID)
		}
		if vehicle.IsTraveling || vehicle.CurrentLocationID != cmd.LocationID {
			return fmt.Errorf("%w: vehicle %d is not at location %d", state.ErrConflict, cmd.VehicleID, cmd.LocationID)
		}
		if cmd.Quantity <= 0 {
			return fmt.Errorf("%w: quantity %d", state.ErrConflict, cmd.Quantity)
		}

		total := cmd.UnitPrice * cmd.Quantity
		switch cmd.Side {
		case domain.TradeBuy:
			if entry.Supply < cmd.Quantity {
				return fmt.Errorf("%w: supply %d < quantity %d", state.ErrConflict, entry.Supply, cmd.Quantity)
			}
			if player.Credits < total {
				return fmt.Errorf("%w: credits %d < cost %d", state.ErrConflict, player.Credits, total)
			}
			if vehicle.Cargo.Total()+cmd.Quantity > vehicle.CargoCapacity {
				return fmt.Errorf("%w: cargo capacity %d exceeded", state.ErrConflict, vehicle.CargoCapacity)
			}
			player.Credits -= total
			entry.Supply -= cmd.Quantity
			entry.Demand += cmd.Quantity / 2
			vehicle.Cargo.Add(cmd.Kind, cmd.Quantity)
		case domain.TradeSell:
			if vehicle.Cargo[cmd.Kind] < cmd.Quantity {
				return fmt.Errorf("%w: cargo %d < quantity %d", state.ErrConflict, vehicle.Cargo[cmd.Kind], cmd.Quantity)
			}
			if entry.Demand < cmd.Quantity {
				return fmt.Errorf("%w: demand %d < quantity %d", state.ErrConflict, entry.Demand, cmd.Quantity)
			}
			player.Credits += total
			entry.Supply += cmd.Quantity
			entry.Demand -= cmd.Quantity
			vehicle.Cargo.Add(cmd.Kind, -cmd.Quantity)
		default:
			return fmt.Errorf("%w: unknown trade side %q", state.ErrConflict, cmd.Side)
		}

		cargo, err := json.Marshal(vehicle.Cargo)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE players SET credits = ? WHERE id = ?`, player.Credits, player.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE vehicles SET cargo_json = ? WHERE id = ?`, string(cargo), vehicle.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE markets SET supply = ?, demand = ? WHERE location_id = ? AND cargo = ?`,
			entry.Supply, entry.Demand, entry.LocationID, string(entry.Cargo)); err != nil {
			return err
		}
		result = domain.TradeResult{
			TotalPrice:  total,
			NewCredits:  player.Credits,
			NewSupply:   entry.Supply,
			NewDemand:   entry.Demand,
			NewManifest: vehicle.Cargo.Clone(),
		}
		return nil
	})
	return result, err
}

func (s *Store) ApplyCombat(ctx context.Context, cmd domain.CombatCommand) (domain.CombatResult, error) {
	var result domain.CombatResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		deltas := []domain.CombatantDelta{cmd.Attacker}
		if cmd.Defender != nil {
			deltas = append(deltas, *cmd.Defender)
		}
		for i, delta := range deltas {
			vehicle, err := queryVehicle(ctx, tx, delta.VehicleID)
			if err != nil {
				return err
			}
			vehicle.Durability = floorZero(delta.NewDurability)
			for kind, qty := range delta.CargoDelta {
				vehicle.Cargo.Add(kind, qty)
			}
			cargo, err := json.Marshal(vehicle.Cargo)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE vehicles SET durability = ?, cargo_json = ? WHERE id = ?`,
				vehicle.Durability, string(cargo), vehicle.ID); err != nil {
				return err
			}
			if delta.PlayerID == 0 {
				continue
			}
			player, err := scanPlayerTx(ctx, tx, delta.PlayerID)
			if err != nil {
				return err
			}
			player.Credits = floorZero(player.Credits + delta.CreditsDelta)
			player.Experience += delta.ExperienceDelta
			if _, err := tx.ExecContext(ctx,
				`UPDATE players SET credits = ?, experience = ? WHERE id = ?`,
				player.Credits, player.Experience, player.ID); err != nil {
				return err
			}
			if i == 0 {
				result.AttackerCredits = player.Credits
				result.AttackerExperience = player.Experience
				result.AttackerLevel = player.Level
			}
		}
		return insertCombatLog(ctx, tx, cmd.Log, cmd.Now)
	})
	return result, err
}

func insertCombatLog(ctx context.Context, tx *sql.Tx, entry domain.CombatLogEntry, now time.Time) error {
	lost, err := json.Marshal(entry.CargoLost)
	if err != nil {
		return err
	}
	gained, err := json.Marshal(entry.CargoGained)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO combat_log (player_id, opponent_kind, opponent_id, location_id,
			winner_id, damage_dealt, damage_received, cargo_lost_json, cargo_gained_json,
			credits_lost, credits_gained, experience_gained, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PlayerID, string(entry.OpponentKind), entry.OpponentID, entry.LocationID,
		entry.WinnerID, entry.DamageDealt, entry.DamageReceived, string(lost), string(gained),
		entry.CreditsLost, entry.CreditsGained, entry.ExperienceGained, fmtTime(now))
	return err
}

// CombatLog はプレイヤーの戦闘履歴を新しい順に返す。
func (s *Store) CombatLog(ctx context.Context, playerID domain.PlayerID, limit int) ([]domain.CombatLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, opponent_kind, opponent_id, location_id, winner_id,
			damage_dealt, damage_received, cargo_lost_json, cargo_gained_json,
			credits_lost, credits_gained, experience_gained
		FROM combat_log WHERE player_id = ? ORDER BY id DESC LIMIT ?`,
		playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CombatLogEntry
	for rows.Next() {
		var entry domain.CombatLogEntry
		var kind, lost, gained string
		if err := rows.Scan(&entry.PlayerID, &kind, &entry.OpponentID, &entry.LocationID,
			&entry.WinnerID, &entry.DamageDealt, &entry.DamageReceived, &lost, &gained,
			&entry.CreditsLost, &entry.CreditsGained, &entry.ExperienceGained); err != nil {
			return nil, err
		}
		entry.OpponentKind = domain.OpponentKind(kind)
		if err := json.Unmarshal([]byte(lost), &entry.CargoLost); err != nil {
			return nil, fmt.Errorf("sqlite: decode combat log cargo: %w", err)
		}
		if err := json.Unmarshal([]byte(gained), &entry.CargoGained); err != nil {
			return nil, fmt.Errorf("sqlite: decode combat log cargo: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func queryVehicle(ctx context.Context, q querier, id domain.VehicleID) (domain.Vehicle, error) {
	vehicles, err := queryVehicles(ctx, q,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if len(vehicles) == 0 {
		return domain.Vehicle{}, fmt.Errorf("%w: %d", state.ErrVehicleNotFound, id)
	}
	return vehicles[0], nil
}

func queryVehicles(ctx context.Context, q querier, query string, args ...any) ([]domain.Vehicle, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		var traveling int
		var travelStart, eta, cargoJSON string
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.Kind, &v.Speed,
			&v.CargoCapacity, &v.FuelCapacity, &v.CurrentFuel,
			&v.Durability, &v.MaxDurability, &v.AttackPower, &v.Defense,
			&v.CurrentLocationID, &v.DestinationID, &traveling,
			&travelStart, &eta, &cargoJSON); err != nil {
			return nil, err
		}
		v.IsTraveling = traveling != 0
		v.TravelStartTime = parseTime(travelStart)
		v.EstimatedArrival = parseTime(eta)
		v.Cargo = make(domain.Manifest)
		if err := json.Unmarshal([]byte(cargoJSON), &v.Cargo); err != nil {
			return nil, fmt.Errorf("sqlite: decode cargo for vehicle %d: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryMarket(ctx context.Context, q querier, loc domain.LocationID, cargo domain.CargoKind) (domain.MarketEntry, error) {
	entries, err := queryMarkets(ctx, q,
		`SELECT `+marketColumns+` FROM markets WHERE location_id = ? AND cargo = ?`, loc, string(cargo))
	if err != nil {
		return domain.MarketEntry{}, err
	}
	if len(entries) == 0 {
		return domain.MarketEntry{}, fmt.Errorf("%w: location=%d cargo=%s", state.ErrMarketNotFound, loc, cargo)
	}
	return entries[0], nil
}

func queryMarkets(ctx context.Context, q querier, query string, args ...any) ([]domain.MarketEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MarketEntry
	for rows.Next() {
		var m domain.MarketEntry
		var historyJSON, updatedAt string
		if err := rows.Scan(&m.LocationID, &m.Cargo, &m.BuyPrice, &m.SellPrice,
			&m.Supply, &m.Demand, &historyJSON, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(historyJSON), &m.History); err != nil {
			return nil, fmt.Errorf("sqlite: decode history for location %d: %w", m.LocationID, err)
		}
		m.UpdatedAt = parseTime(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func updateMarket(ctx context.Context, tx *sql.Tx, entry domain.MarketEntry) error {
	history, err := json.Marshal(entry.History)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE markets SET buy_price = ?, sell_price = ?, supply = ?, demand = ?, history_json = ?, updated_at = ?
		 WHERE location_id = ? AND cargo = ?`,
		entry.BuyPrice, entry.SellPrice, entry.Supply, entry.Demand,
		string(history), fmtTime(entry.UpdatedAt), entry.LocationID, string(entry.Cargo))
	return err
}

func scanPlayer(row *sql.Row, id domain.PlayerID) (domain.Player, error) {
	var p domain.Player
	var online int
	var lastActive string
	err := row.Scan(&p.ID, &p.Username, &p.Level, &p.Experience, &p.Credits,
		&p.Reputation, &p.AllianceID, &p.CurrentLocationID, &online, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, fmt.Errorf("%w: %d", state.ErrPlayerNotFound, id)
	}
	if err != nil {
		return domain.Player{}, err
	}
	p.IsOnline = online != 0
	p.LastActive = parseTime(lastActive)
	return p, nil
}

func scanPlayerTx(ctx context.Context, tx *sql.Tx, id domain.PlayerID) (domain.Player, error) {
	return scanPlayer(tx.QueryRowContext(ctx,
		`SELECT id, username, level, experience, credits, reputation, alliance_id, location_id, is_online, last_active
		 FROM players WHERE id = ?`, id), id)
}

func scanLocation(row *sql.Row, id domain.LocationID) (domain.Location, error) {
	var l domain.Location
	var active int
	err := row.Scan(&l.ID, &l.Name, &l.Kind, &l.X, &l.Y, &l.Region,
		&l.DangerLevel, &l.Population, &l.Prosperity, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Location{}, fmt.Errorf("%w: %d", state.ErrLocationNotFound, id)
	}
	if err != nil {
		return domain.Location{}, err
	}
	l.IsActive = active != 0
	return l, nil
}

func scanLocationTx(ctx context.Context, tx *sql.Tx, id domain.LocationID) (domain.Location, error) {
	return scanLocation(tx.QueryRowContext(ctx,
		`SELECT id, name, kind, x, y, region, danger_level, population, prosperity, is_active
		 FROM locations WHERE id = ?`, id), id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMissionRow(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var cargoJSON, acceptedAt, deadline string
	if err := row.Scan(&m.ID, &m.Title, &m.Kind, &m.OriginID, &m.DestinationID,
		&cargoJSON, &m.RewardCredits, &m.RewardExperience, &m.PenaltyCredits,
		&m.Status, &m.PlayerID, &acceptedAt, &deadline); err != nil {
		return domain.Mission{}, err
	}
	m.RequiredCargo = make(domain.Manifest)
	if err := json.Unmarshal([]byte(cargoJSON), &m.RequiredCargo); err != nil {
		return domain.Mission{}, fmt.Errorf("sqlite: decode cargo for mission %d: %w", m.ID, err)
	}
	m.AcceptedAt = parseTime(acceptedAt)
	m.Deadline = parseTime(deadline)
	return m, nil
}

func scanEventRow(row rowScanner) (domain.WorldEvent, error) {
	var e domain.WorldEvent
	var effectsJSON, affectedJSON, startTime, endTime string
	var durationNS int64
	var active int
	if err := row.Scan(&e.ID, &e.Kind, &e.Title, &e.Description,
		&effectsJSON, &affectedJSON, &e.Severity, &startTime, &endTime, &durationNS, &active); err != nil {
		return domain.WorldEvent{}, err
	}
	if err := json.Unmarshal([]byte(effectsJSON), &e.Effects); err != nil {
		return domain.WorldEvent{}, fmt.Errorf("sqlite: decode effects for event %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(affectedJSON), &e.AffectedLocationIDs); err != nil {
		return domain.WorldEvent{}, fmt.Errorf("sqlite: decode locations for event %s: %w", e.ID, err)
	}
	e.StartTime = parseTime(startTime)
	e.EndTime = parseTime(endTime)
	e.Duration = time.Duration(durationNS)
	e.IsActive = active != 0
	return e, nil
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ state.GameState = (*Store)(nil)
