package state

import (
	"context"
	"errors"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
)

//go:generate go tool mockgen -destination=./mocks/state_mock.go -package=mocks . GameState

var (
	ErrPlayerNotFound   = errors.New("state: player not found")
	ErrVehicleNotFound  = errors.New("state: vehicle not found")
	ErrLocationNotFound = errors.New("state: location not found")
	ErrMarketNotFound   = errors.New("state: market entry not found")
	ErrMissionNotFound  = errors.New("state: mission not found")
	ErrEventNotFound    = errors.New("state: event not found")
	ErrConflict         = errors.New("state: command conflicts with current state")
)

// GameState はワールド状態の照会と確定を行うストアの契約。
// Apply 系は 1 呼び出しを 1 トランザクションとして扱い、コマンドが運ぶ
// 前提（残燃料・残クレジットなど）をロック内で再検証してから確定する。
// 前提が崩れていた場合は状態を一切変更せず ErrConflict を返す。
type GameState interface {
	PlayerByID(ctx context.Context, id domain.PlayerID) (domain.Player, error)
	VehicleByID(ctx context.Context, id domain.VehicleID) (domain.Vehicle, error)
	VehiclesByOwner(ctx context.Context, owner domain.PlayerID) ([]domain.Vehicle, error)
	LocationByID(ctx context.Context, id domain.LocationID) (domain.Location, error)
	ActiveLocations(ctx context.Context) ([]domain.Location, error)
	ArrivedVehicles(ctx context.Context, now time.Time) ([]domain.Vehicle, error)
	MarketEntries(ctx context.Context) ([]domain.MarketEntry, error)
	MarketByLocation(ctx context.Context, id domain.LocationID) ([]domain.MarketEntry, error)
	ActiveEvents(ctx context.Context) ([]domain.WorldEvent, error)
	ExpiredMissions(ctx context.Context, now time.Time) ([]domain.Mission, error)

	ApplyTravelStart(ctx context.Context, cmd domain.TravelStartCommand) error
	ApplyArrivals(ctx context.Context, cmd domain.ArrivalsCommand) (domain.ArrivalsResult, error)
	ApplyMarketTick(ctx context.Context, cmd domain.MarketTickCommand) (domain.MarketTickResult, error)
	ApplyEventStart(ctx context.Context, cmd domain.EventStartCommand) error
	ApplyEventEnd(ctx context.Context, cmd domain.EventEndCommand) error
	ApplyMissionFailure(ctx context.Context, cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error)
	ApplyTrade(ctx context.Context, cmd domain.TradeCommand) (domain.TradeResult, error)
	ApplyCombat(ctx context.Context, cmd domain.CombatCommand) (domain.CombatResult, error)
}
