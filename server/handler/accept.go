package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/anyashankar/cargo-clash/domain"
	"github.com/anyashankar/cargo-clash/registry"
	"github.com/anyashankar/cargo-clash/repository/state"
	adapterwebsocket "github.com/anyashankar/cargo-clash/server/adapter/websocket"
)

// ActionHandler はクライアント発アクションの処理先。
type ActionHandler interface {
	HandleClientAction(ctx context.Context, playerID domain.PlayerID, raw []byte)
}

// AcceptHandler は /ws/{player_id} への接続を受け付けて読み取りループを回す。
type AcceptHandler struct {
	state    state.GameState
	registry *registry.Registry
	actions  ActionHandler
	logger   *slog.Logger
}

func NewAcceptHandler(st state.GameState, reg *registry.Registry, actions ActionHandler, logger *slog.Logger) *AcceptHandler {
	return &AcceptHandler{state: st, registry: reg, actions: actions, logger: logger}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("player_id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}
	playerID := domain.PlayerID(id)

	player, err := h.state.PlayerByID(ctx, playerID)
	if errors.Is(err, state.ErrPlayerNotFound) {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load player", "playerID", playerID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := h.registry.Connect(ctx, playerID, transport, player.CurrentLocationID, player.AllianceID)

	welcome, err := domain.NewEnvelope(domain.MsgConnectionEstablished, map[string]any{
		"player_id": playerID,
		"message":   "Connected to Cargo Clash real-time updates",
	}, time.Now())
	if err == nil {
		if raw, encErr := welcome.Encode(); encErr == nil {
			_ = connection.Write(ctx, raw)
		}
	}

	h.logger.InfoContext(ctx, "player connected", "playerID", playerID)

	for {
		data, err := connection.Read(ctx)
		if err != nil {
			h.logger.InfoContext(ctx, "player disconnected", "playerID", playerID, "err", err)
			h.registry.Disconnect(ctx, playerID, connection)
			return
		}
		h.actions.HandleClientAction(ctx, playerID, data)
	}
}
