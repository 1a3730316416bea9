package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/repository/state"
)

func TestSweepMissions_FailsExpiredAndNotifies(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	st := &fakeState{
		expiredMissions: func(time.Time) ([]domain.Mission, error) {
			return []domain.Mission{{ID: 1, PlayerID: 3, Status: domain.MissionAccepted}}, nil
		},
		applyMissionFail: func(cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error) {
			return domain.MissionFailureResult{
				MissionID:      cmd.MissionID,
				PlayerID:       3,
				CreditsPenalty: 250,
				NewCredits:     750,
				NewReputation:  8,
			}, nil
		},
	}
	e := newTestEngine(st)
	tr := &fakeTransport{}
	e.registry.Connect(context.Background(), 3, tr, 1, 0)

	if stageErr := e.sweepMissions(context.Background(), now); stageErr != nil {
		t.Fatalf("sweepMissions: %v", stageErr)
	}

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1 mission_update", len(writes))
	}
	var env domain.Envelope
	if err := json.Unmarshal(writes[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != domain.MsgMissionUpdate {
		t.Fatalf("message type = %q, want mission_update", env.Type)
	}
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["status"] != string(domain.MissionFailed) || data["reason"] != "deadline_expired" {
		t.Fatalf("payload = %v", data)
	}
	if data["penalty"] != float64(250) || data["new_credits"] != float64(750) {
		t.Fatalf("penalty payload = %v", data)
	}
}

func TestSweepMissions_ConflictSkipsToNext(t *testing.T) {
	var applied []domain.MissionID
	st := &fakeState{
		expiredMissions: func(time.Time) ([]domain.Mission, error) {
			return []domain.Mission{
				{ID: 1, PlayerID: 3},
				{ID: 2, PlayerID: 4},
			}, nil
		},
		applyMissionFail: func(cmd domain.MissionFailureCommand) (domain.MissionFailureResult, error) {
			applied = append(applied, cmd.MissionID)
			if cmd.MissionID == 1 {
				// 照会後に完了済みへ遷移したケース
				return domain.MissionFailureResult{}, fmt.Errorf("%w: already resolved", state.ErrConflict)
			}
			return domain.MissionFailureResult{MissionID: cmd.MissionID, PlayerID: 4}, nil
		},
	}
	e := newTestEngine(st)

	if stageErr := e.sweepMissions(context.Background(), e.clock()); stageErr != nil {
		t.Fatalf("sweepMissions: %v", stageErr)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Fatalf("applied = %v, want [1 2]", applied)
	}
}

func TestSweepMissions_StoreFailureBecomesStageError(t *testing.T) {
	st := &fakeState{
		expiredMissions: func(time.Time) ([]domain.Mission, error) {
			return nil, fmt.Errorf("disk gone")
		},
	}
	e := newTestEngine(st)

	stageErr := e.sweepMissions(context.Background(), e.clock())
	if stageErr == nil || stageErr.Transient {
		t.Fatalf("stage error = %+v, want non-transient", stageErr)
	}
	if stageErr.Stage != "mission_sweep" {
		t.Fatalf("stage = %q", stageErr.Stage)
	}
}
