package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/anyashankar/cargo-clash/domain"
)

var ErrNotConnected = errors.New("registry: player is not connected")

// Connection は 1 プレイヤーの物理接続。書き込みは直列化される。
type Connection struct {
	PlayerID  domain.PlayerID
	transport domain.Transport

	writeMu sync.Mutex
}

// Write は接続へデータを送る。並行呼び出しに対して安全。
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.Write(ctx, data)
}

// Read は接続からの次のメッセージを待つ。
func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	return c.transport.Read(ctx)
}

// Close は接続を正常クローズする。
func (c *Connection) Close() {
	_ = c.transport.Close(1000, "")
}

type member struct {
	conn     *Connection
	location domain.LocationID
	alliance domain.AllianceID
}

// Stats は登録状況のスナップショット。
type Stats struct {
	Connections int
	ByLocation  map[domain.LocationID]int
	ByAlliance  map[domain.AllianceID]int
}

// Registry は接続中プレイヤーと配信グループを管理する。
// 同一プレイヤーの再接続は古い接続を閉じて置き換える。
type Registry struct {
	mu        sync.RWMutex
	members   map[domain.PlayerID]*member
	locations map[domain.LocationID]map[domain.PlayerID]struct{}
	alliances map[domain.AllianceID]map[domain.PlayerID]struct{}

	logger *slog.Logger
}

// NewRegistry は空のレジストリを生成する。
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		members:   make(map[domain.PlayerID]*member),
		locations: make(map[domain.LocationID]map[domain.PlayerID]struct{}),
		alliances: make(map[domain.AllianceID]map[domain.PlayerID]struct{}),
		logger:    logger,
	}
}

// Connect はプレイヤーを登録し接続を返す。既存の接続があれば閉じて置き換える。
func (r *Registry) Connect(ctx context.Context, playerID domain.PlayerID, transport domain.Transport, location domain.LocationID, alliance domain.AllianceID) *Connection {
	conn := &Connection{PlayerID: playerID, transport: transport}

	r.mu.Lock()
	old, superseded := r.members[playerID]
	if superseded {
		r.removeGroupsLocked(playerID, old)
	}
	r.members[playerID] = &member{conn: conn, location: location, alliance: alliance}
	r.addLocationLocked(playerID, location)
	r.addAllianceLocked(playerID, alliance)
	total := len(r.members)
	r.mu.Unlock()

	if superseded {
		old.conn.Close()
		r.logger.InfoContext(ctx, "connection superseded", "playerID", playerID)
	}
	r.logger.InfoContext(ctx, "player connected", "playerID", playerID, "locationID", location, "connections", total)
	return conn
}

// Disconnect はプレイヤーを全グループから外し接続を閉じる。
// 渡された接続が現在の登録と異なる場合（置き換え後）は何もしない。
func (r *Registry) Disconnect(ctx context.Context, playerID domain.PlayerID, conn *Connection) {
	r.mu.Lock()
	m, ok := r.members[playerID]
	if !ok || (conn != nil && m.conn != conn) {
		r.mu.Unlock()
		return
	}
	r.removeGroupsLocked(playerID, m)
	delete(r.members, playerID)
	total := len(r.members)
	r.mu.Unlock()

	m.conn.Close()
	r.logger.InfoContext(ctx, "player disconnected", "playerID", playerID, "connections", total)
}

// UpdateLocation はプレイヤーの配信グループを移動先の拠点へ付け替える。
func (r *Registry) UpdateLocation(playerID domain.PlayerID, location domain.LocationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[playerID]
	if !ok || m.location == location {
		return
	}
	r.removeLocationLocked(playerID, m.location)
	m.location = location
	r.addLocationLocked(playerID, location)
}

// UpdateAlliance はプレイヤーのアライアンスグループを付け替える。
func (r *Registry) UpdateAlliance(playerID domain.PlayerID, alliance domain.AllianceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[playerID]
	if !ok || m.alliance == alliance {
		return
	}
	r.removeAllianceLocked(playerID, m.alliance)
	m.alliance = alliance
	r.addAllianceLocked(playerID, alliance)
}

// SendTo は 1 プレイヤーへ送信する。未接続なら ErrNotConnected を返す。
// 送信に失敗した接続は登録から外す。
func (r *Registry) SendTo(ctx context.Context, playerID domain.PlayerID, data []byte) error {
	r.mu.RLock()
	m, ok := r.members[playerID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	if err := m.conn.Write(ctx, data); err != nil {
		r.dropFailed(ctx, playerID, m.conn, err)
		return err
	}
	return nil
}

// BroadcastLocation は拠点グループの全員へ送信する。
func (r *Registry) BroadcastLocation(ctx context.Context, location domain.LocationID, data []byte) {
	r.broadcast(ctx, data, func() []*Connection {
		return r.collectLocked(r.locations[location])
	})
}

// BroadcastAlliance はアライアンスグループの全員へ送信する。
func (r *Registry) BroadcastAlliance(ctx context.Context, alliance domain.AllianceID, data []byte) {
	r.broadcast(ctx, data, func() []*Connection {
		return r.collectLocked(r.alliances[alliance])
	})
}

// BroadcastAll は接続中の全プレイヤーへ送信する。
func (r *Registry) BroadcastAll(ctx context.Context, data []byte) {
	r.broadcast(ctx, data, func() []*Connection {
		conns := make([]*Connection, 0, len(r.members))
		for _, m := range r.members {
			conns = append(conns, m.conn)
		}
		return conns
	})
}

// ConnectedPlayers は接続中プレイヤーの一覧を返す。
func (r *Registry) ConnectedPlayers() []domain.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PlayerID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// PlayersAt は指定地点に接続中のプレイヤー一覧を返す。
func (r *Registry) PlayersAt(locationID domain.LocationID) []domain.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group := r.locations[locationID]
	out := make([]domain.PlayerID, 0, len(group))
	for id := range group {
		out = append(out, id)
	}
	return out
}

// IsConnected はプレイヤーが接続中かどうかを返す。
func (r *Registry) IsConnected(playerID domain.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[playerID]
	return ok
}

// Stats は現在の登録状況を返す。
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{
		Connections: len(r.members),
		ByLocation:  make(map[domain.LocationID]int, len(r.locations)),
		ByAlliance:  make(map[domain.AllianceID]int, len(r.alliances)),
	}
	for id, group := range r.locations {
		stats.ByLocation[id] = len(group)
	}
	for id, group := range r.alliances {
		stats.ByAlliance[id] = len(group)
	}
	return stats
}

func (r *Registry) broadcast(ctx context.Context, data []byte, collect func() []*Connection) {
	r.mu.RLock()
	conns := collect()
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Write(ctx, data); err != nil {
			r.dropFailed(ctx, conn.PlayerID, conn, err)
		}
	}
}

func (r *Registry) collectLocked(group map[domain.PlayerID]struct{}) []*Connection {
	conns := make([]*Connection, 0, len(group))
	for id := range group {
		if m, ok := r.members[id]; ok {
			conns = append(conns, m.conn)
		}
	}
	return conns
}

func (r *Registry) dropFailed(ctx context.Context, playerID domain.PlayerID, conn *Connection, err error) {
	r.logger.WarnContext(ctx, "send failed, dropping connection", "playerID", playerID, "error", err)
	r.Disconnect(ctx, playerID, conn)
}

func (r *Registry) addLocationLocked(playerID domain.PlayerID, location domain.LocationID) {
	if location == 0 {
		return
	}
	group, ok := r.locations[location]
	if !ok {
		group = make(map[domain.PlayerID]struct{})
		r.locations[location] = group
	}
	group[playerID] = struct{}{}
}

func (r *Registry) addAllianceLocked(playerID domain.PlayerID, alliance domain.AllianceID) {
	if alliance == 0 {
		return
	}
	group, ok := r.alliances[alliance]
	if !ok {
		group = make(map[domain.PlayerID]struct{})
		r.alliances[alliance] = group
	}
	group[playerID] = struct{}{}
}

func (r *Registry) removeLocationLocked(playerID domain.PlayerID, location domain.LocationID) {
	if group, ok := r.locations[location]; ok {
		delete(group, playerID)
		if len(group) == 0 {
			delete(r.locations, location)
		}
	}
}

func (r *Registry) removeAllianceLocked(playerID domain.PlayerID, alliance domain.AllianceID) {
	if group, ok := r.alliances[alliance]; ok {
		delete(group, playerID)
		if len(group) == 0 {
			delete(r.alliances, alliance)
		}
	}
}

func (r *Registry) removeGroupsLocked(playerID domain.PlayerID, m *member) {
	r.removeLocationLocked(playerID, m.location)
	r.removeAllianceLocked(playerID, m.alliance)
}
