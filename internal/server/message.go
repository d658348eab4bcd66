package server

import (
	"encoding/json"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

// Message types exchanged over the websocket.
const (
	TypeHello    = "hello"
	TypeAction   = "action"
	TypeChecksum = "checksum"
	TypeDesync   = "desync"
	TypeError    = "error"
)

// Message is the single envelope used in both directions.
type Message struct {
	Type     string             `json:"type"`
	GameID   string             `json:"gameId,omitempty"`
	PlayerID string             `json:"playerId,omitempty"`
	Action   *state.GameAction  `json:"action,omitempty"`
	Backlog  []state.GameAction `json:"backlog,omitempty"`
	Sequence int64              `json:"sequence,omitempty"`
	Checksum string             `json:"checksum,omitempty"`
	Warning  string             `json:"warning,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func encode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(Message{Type: TypeError, Error: "encode failed"})
	}
	return data
}
