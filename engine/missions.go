package engine

import (
	"context"
	"errors"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

// sweepMissions は期限切れミッションを失敗として確定し、ペナルティ適用後の
// 残高を受注者へ通知する。
func (e *Engine) sweepMissions(ctx context.Context, now time.Time) *StageError {
	missions, err := e.state.ExpiredMissions(ctx, now)
	if err != nil {
		return classifyStageErr("mission_sweep", err)
	}

	for _, mission := range missions {
		result, err := e.state.ApplyMissionFailure(ctx, domain.MissionFailureCommand{MissionID: mission.ID, Now: now})
		switch {
		case err == nil:
		case errors.Is(err, state.ErrConflict):
			// 照会と確定の間に完了・失敗した。次の対象へ。
			continue
		default:
			return classifyStageErr("mission_sweep", err)
		}

		e.logger.InfoContext(ctx, "mission failed by deadline",
			"missionID", result.MissionID, "playerID", result.PlayerID, "penalty", result.CreditsPenalty)

		e.sendTo(ctx, result.PlayerID, domain.MsgMissionUpdate, map[string]any{
			"mission_id":     result.MissionID,
			"status":         string(domain.MissionFailed),
			"reason":         "deadline_expired",
			"penalty":        result.CreditsPenalty,
			"new_credits":    result.NewCredits,
			"new_reputation": result.NewReputation,
		})
	}
	return nil
}
