package websocket

import (
	"encoding/json"

	"github.com/playcell/bingo-backend/internal/entity"
)

// Message is one websocket frame: an action name and its payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponsePayload mirrors the REST envelope over the push channel.
type ResponsePayload struct {
	Session *entity.GameSession `json:"session,omitempty"`
	Player  *entity.Player      `json:"player,omitempty"`
	Error   string              `json:"error,omitempty"`
	Cell    int                 `json:"cell,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

type clickPayload struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
	Cell      int    `json:"cell"`
}

type editPayload struct {
	SessionID  string `json:"session_id"`
	Cell       int    `json:"cell"`
	Text       string `json:"text"`
	Difficulty string `json:"difficulty,omitempty"`
}
