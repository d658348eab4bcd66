// Package server relays sequenced game actions between peers over
// websockets. Each game has a room holding the authoritative Session; an
// action is applied there first and only then broadcast, with the
// resulting state checksum so peers can detect desyncs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/config"
	"github.com/planarnexus/nexus-server/internal/game"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// SessionFactory creates the session backing a new game room.
type SessionFactory func(gameID string, players []string) (*game.Session, error)

// Hub owns the game rooms and serves the websocket and HTTP endpoints.
type Hub struct {
	cfg        config.ServerConfig
	newSession SessionFactory
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates a hub. Zero values in cfg fall back to sane limits.
func NewHub(cfg config.ServerConfig, factory SessionFactory, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.SequenceWindow <= 0 {
		cfg.SequenceWindow = replay.DefaultMaxAhead
	}
	h := &Hub{
		cfg:        cfg,
		newSession: factory,
		logger:     logger,
		rooms:      make(map[string]*room),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Handler returns the hub's routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{gameID}", h.serveWS)
	mux.HandleFunc("GET /games/{gameID}/state", h.serveState)
	mux.HandleFunc("GET /games/{gameID}/share", h.serveShare)
	return mux
}

// Session returns the session of a running room.
func (h *Hub) Session(gameID string) (*game.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[gameID]
	if !ok {
		return nil, false
	}
	return r.session, true
}

// Shutdown disconnects every client and saves each room's replay.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.closeAll()
		h.saveReplay(ctx, r)
	}
	h.logger.Info("hub stopped", zap.Int("rooms", len(rooms)))
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

var errUnknownGame = errors.New("unknown game; first connection must list players")

// roomFor returns the room for gameID, creating it when players are given.
func (h *Hub) roomFor(gameID string, players []string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[gameID]; ok {
		return r, nil
	}
	if len(players) == 0 {
		return nil, errUnknownGame
	}
	session, err := h.newSession(gameID, players)
	if err != nil {
		return nil, err
	}
	r := newRoom(gameID, session, h.cfg.SequenceWindow, h.logger)
	r.onEmpty = h.roomEmptied
	h.rooms[gameID] = r
	h.logger.Info("room opened", zap.String("game_id", gameID), zap.Strings("players", players))
	return r, nil
}

// roomEmptied closes a finished game's room once its last client leaves.
// Rooms of games still in progress stay open for reconnects.
func (h *Hub) roomEmptied(r *room) {
	if r.session.Status() != state.StatusEnded {
		return
	}
	h.mu.Lock()
	if current, ok := h.rooms[r.gameID]; !ok || current != r || !r.empty() {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, r.gameID)
	h.mu.Unlock()

	h.saveReplay(context.Background(), r)
	h.logger.Info("room closed", zap.String("game_id", r.gameID))
}

func (h *Hub) saveReplay(ctx context.Context, r *room) {
	id, err := r.session.Recorder().Save(ctx, r.gameID)
	if err != nil {
		h.logger.Info("replay not saved", zap.String("game_id", r.gameID), zap.Error(err))
		return
	}
	h.logger.Info("replay saved", zap.String("game_id", r.gameID), zap.String("replay_id", id))
}

func (h *Hub) serveWS(w http.ResponseWriter, req *http.Request) {
	gameID := req.PathValue("gameID")
	playerID := req.URL.Query().Get("player")
	if playerID == "" {
		http.Error(w, "player is required", http.StatusBadRequest)
		return
	}

	r, err := h.roomFor(gameID, splitPlayers(req.URL.Query().Get("players")))
	if errors.Is(err, errUnknownGame) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	decision := r.session.Join(time.Now())
	if !decision.CanJoin {
		http.Error(w, decision.Reason, http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		room:     r,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		playerID: playerID,
		logger:   h.logger.With(zap.String("game_id", gameID), zap.String("player_id", playerID)),
	}
	r.join(c, decision)

	go c.writePump()
	go c.readPump(h.cfg.MaxMessageSize)
}

func (h *Hub) serveState(w http.ResponseWriter, req *http.Request) {
	session, ok := h.Session(req.PathValue("gameID"))
	if !ok {
		http.Error(w, "unknown game", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Hub) serveShare(w http.ResponseWriter, req *http.Request) {
	gameID := req.PathValue("gameID")
	session, ok := h.Session(gameID)
	if !ok {
		http.Error(w, "unknown game", http.StatusNotFound)
		return
	}
	rec, ok := session.Recorder().Replay(gameID)
	if !ok {
		http.Error(w, "game has no replay", http.StatusNotFound)
		return
	}
	link, err := replay.EncodeShareLink(rec, 0)
	if errors.Is(err, replay.ErrShareTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func splitPlayers(value string) []string {
	var out []string
	for _, id := range strings.Split(value, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
