package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/remotestore"
	"github.com/playcell/bingo-backend/internal/repository"
)

// handleJoin joins the session and hooks this connection onto the session's
// push topic so every store write fans out to the client.
func (that *Server) handleJoin(ctx context.Context, c *client, message *Message) error {
	var payload joinPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, player, err := that.uGame.JoinSession(ctx, payload.SessionID, payload.PlayerID, payload.Name)
	if err != nil {
		return err
	}

	if c.unsubscribe == nil {
		unsubscribe, subErr := that.store.Subscribe(ctx, repository.SessionKey(session.ID), func(event remotestore.Event) {
			that.forwardEvent(c, event)
		})
		if subErr != nil {
			return fmt.Errorf("failed to subscribe to session events: %w", subErr)
		}
		c.unsubscribe = unsubscribe
	}

	return c.send("session:joined", ResponsePayload{Session: session, Player: player})
}

func (that *Server) handleCellClick(ctx context.Context, c *client, message *Message) error {
	var payload clickPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.uGame.MarkCell(ctx, payload.SessionID, payload.PlayerID, payload.Cell)
	if err != nil {
		return err
	}

	return c.send("cell:clicked", ResponsePayload{Session: session, Cell: payload.Cell})
}

func (that *Server) handleCellEdit(ctx context.Context, c *client, message *Message) error {
	var payload editPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.uGame.EditCell(ctx, payload.SessionID, payload.Cell, payload.Text, payload.Difficulty)
	if err != nil {
		return err
	}

	return c.send("cell:edited", ResponsePayload{Session: session, Cell: payload.Cell})
}

func (that *Server) handleReset(ctx context.Context, c *client, message *Message) error {
	var payload joinPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.uGame.ResetBoard(ctx, payload.SessionID)
	if err != nil {
		return err
	}

	return c.send("board:reset", ResponsePayload{Session: session})
}

func (that *Server) handlePause(ctx context.Context, c *client, message *Message) error {
	var payload joinPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.uGame.PauseSession(ctx, payload.SessionID)
	if err != nil {
		return err
	}

	return c.send("game:paused", ResponsePayload{Session: session})
}

func (that *Server) handleResume(ctx context.Context, c *client, message *Message) error {
	var payload joinPayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	session, err := that.uGame.ResumeSession(ctx, payload.SessionID)
	if err != nil {
		return err
	}

	return c.send("game:resumed", ResponsePayload{Session: session})
}

// forwardEvent relays a store push event to the connected client.
func (that *Server) forwardEvent(c *client, event remotestore.Event) {
	if event.Type == remotestore.EventDelete || len(event.New) == 0 {
		return
	}

	var session entity.GameSession
	if err := json.Unmarshal(event.New, &session); err != nil {
		that.logger.Error("failed to decode pushed session", "error", err)
		return
	}

	if err := c.send("session:update", ResponsePayload{Session: &session}); err != nil {
		that.logger.Error("failed to forward event", "error", err)
	}
}
