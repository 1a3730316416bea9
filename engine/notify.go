package engine

import (
	"context"

	"github.com/anyashankar/cargo-clash/domain"
)

// sendTo は 1 プレイヤー宛に外装付きメッセージを送る。未接続・送信失敗は
// 配信側で処理済みなのでここでは握りつぶす。
func (e *Engine) sendTo(ctx context.Context, playerID domain.PlayerID, msgType string, data any) {
	raw, ok := e.encode(ctx, msgType, data)
	if !ok {
		return
	}
	_ = e.registry.SendTo(ctx, playerID, raw)
}

func (e *Engine) broadcastLocation(ctx context.Context, loc domain.LocationID, msgType string, data any) {
	raw, ok := e.encode(ctx, msgType, data)
	if !ok {
		return
	}
	e.registry.BroadcastLocation(ctx, loc, raw)
}

func (e *Engine) broadcastAll(ctx context.Context, msgType string, data any) {
	raw, ok := e.encode(ctx, msgType, data)
	if !ok {
		return
	}
	e.registry.BroadcastAll(ctx, raw)
}

// sendReject は拒絶理由をそのままクライアントへ返す。
func (e *Engine) sendReject(ctx context.Context, playerID domain.PlayerID, rej *domain.RejectedError) {
	e.sendTo(ctx, playerID, domain.MsgActionRejected, map[string]any{
		"reason": string(rej.Reason),
		"detail": rej.Detail,
	})
}

// failAction はアクション失敗を拒絶か内部エラーに振り分ける。
func (e *Engine) failAction(ctx context.Context, playerID domain.PlayerID, action string, err error) {
	if rej, ok := domain.RejectionOf(err); ok {
		e.logger.InfoContext(ctx, "client action rejected",
			"playerID", playerID, "action", action, "reason", rej.Reason)
		e.sendReject(ctx, playerID, rej)
		return
	}
	e.logger.ErrorContext(ctx, "client action failed",
		"playerID", playerID, "action", action, "error", err)
	e.sendTo(ctx, playerID, domain.MsgError, map[string]any{
		"action":  action,
		"message": "internal error",
	})
}

func (e *Engine) encode(ctx context.Context, msgType string, data any) ([]byte, bool) {
	env, err := domain.NewEnvelope(msgType, data, e.clock())
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to encode message", "type", msgType, "error", err)
		return nil, false
	}
	raw, err := env.Encode()
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to encode envelope", "type", msgType, "error", err)
		return nil, false
	}
	return raw, true
}
