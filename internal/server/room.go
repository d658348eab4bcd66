package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// room is one game: its session, the sequencer ordering inbound actions
// and the connected clients. The room lock serialises apply and broadcast
// so every client sees actions in sequence order.
type room struct {
	gameID  string
	session *game.Session
	seq     *replay.Sequencer
	logger  *zap.Logger
	onEmpty func(*room)

	mu      sync.Mutex
	clients map[*client]bool
}

func newRoom(gameID string, session *game.Session, window int, logger *zap.Logger) *room {
	logger = logger.With(zap.String("game_id", gameID))
	seq := replay.NewSequencer(session.Sequence()+1, logger)
	seq.SetMaxAhead(window)
	return &room{
		gameID:  gameID,
		session: session,
		seq:     seq,
		logger:  logger,
		clients: make(map[*client]bool),
	}
}

// join registers c and sends it the action log so far. Holding the lock
// keeps the backlog and later broadcasts from overlapping.
func (r *room) join(c *client, decision replay.JoinDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = true
	c.safeSend(encode(Message{
		Type:     TypeHello,
		GameID:   r.gameID,
		PlayerID: c.playerID,
		Backlog:  r.session.Buffer().GameActions(),
		Sequence: r.session.Sequence(),
		Checksum: r.session.Checksum(),
		Warning:  decision.Warning,
	}))
	r.logger.Info("client joined",
		zap.String("player_id", c.playerID),
		zap.Int("clients", len(r.clients)),
		zap.Int("backlog", decision.ActionCount),
	)
}

func (r *room) leave(c *client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	close(c.send)
	empty := len(r.clients) == 0
	r.mu.Unlock()

	r.logger.Info("client left", zap.String("player_id", c.playerID))
	if empty && r.onEmpty != nil {
		r.onEmpty(r)
	}
}

func (r *room) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients) == 0
}

func (r *room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		c.conn.Close()
	}
}

func (r *room) handle(c *client, msg Message) {
	switch msg.Type {
	case TypeAction:
		if msg.Action == nil {
			c.sendError("action message without action")
			return
		}
		r.apply(c, *msg.Action)
	case TypeChecksum:
		desync, local := r.session.DetectDesync(msg.Checksum)
		if !desync {
			return
		}
		r.logger.Warn("client state diverged",
			zap.String("player_id", c.playerID),
			zap.String("remote_checksum", msg.Checksum),
			zap.String("local_checksum", local),
		)
		c.safeSend(encode(Message{
			Type:     TypeDesync,
			GameID:   r.gameID,
			Sequence: r.session.Sequence(),
			Checksum: local,
		}))
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// apply sequences an inbound action and applies every action it releases.
// A client may only act for its own seat; the start of the game has no
// player and any client may send it. A rejected action can never be filled
// in, so the sequencer restarts after the last applied action and anything
// queued behind it is dropped.
func (r *room) apply(c *client, action state.GameAction) {
	if action.PlayerID != c.playerID && !(action.Type == state.ActionStartGame && action.PlayerID == "") {
		c.sendError(fmt.Sprintf("player %s cannot act for %q", c.playerID, action.PlayerID))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	if action.Sequence == 0 {
		action.Sequence = r.seq.Next()
	}

	released, err := r.seq.Push(action)
	if err != nil {
		r.logger.Info("action refused",
			zap.String("player_id", c.playerID),
			zap.Int64("sequence", action.Sequence),
			zap.Error(err),
		)
		c.sendError(err.Error())
		return
	}
	for _, ready := range released {
		if err := r.session.ApplyRemoteAction(ready); err != nil {
			dropped := r.seq.Pending()
			r.seq.Reset(r.session.Sequence() + 1)
			r.logger.Info("action rejected",
				zap.String("action_id", ready.ID),
				zap.Int64("sequence", ready.Sequence),
				zap.Int("dropped", dropped),
				zap.Error(err),
			)
			c.sendError(fmt.Sprintf("action %d rejected: %v", ready.Sequence, err))
			return
		}
		applied := ready
		data := encode(Message{
			Type:     TypeAction,
			GameID:   r.gameID,
			Action:   &applied,
			Sequence: applied.Sequence,
			Checksum: r.session.Checksum(),
		})
		for client := range r.clients {
			client.safeSend(data)
		}
	}
}
