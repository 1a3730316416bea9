package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/anyashankar/cargo-clash/repository/state"
)

// StageError は 1 ティック内の 1 ステージの失敗を表す。
// Transient なら当該ステージを飛ばして通常ケイデンスを維持し、
// そうでなければスケジューラがバックオフを入れる。
type StageError struct {
	Stage     string
	Err       error
	Transient bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// classifyStageErr はストア起因の想定内エラーを transient として扱う。
func classifyStageErr(stage string, err error) *StageError {
	if err == nil {
		return nil
	}
	transient := errors.Is(err, state.ErrConflict) ||
		errors.Is(err, state.ErrPlayerNotFound) ||
		errors.Is(err, state.ErrVehicleNotFound) ||
		errors.Is(err, state.ErrLocationNotFound) ||
		errors.Is(err, state.ErrMarketNotFound) ||
		errors.Is(err, state.ErrMissionNotFound) ||
		errors.Is(err, state.ErrEventNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
	return &StageError{Stage: stage, Err: err, Transient: transient}
}
