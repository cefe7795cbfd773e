package entity

import (
	"fmt"

	"github.com/playcell/bingo-backend/internal/apperror"
)

const (
	StatusInitializing = "initializing"
	StatusActive       = "active"
	StatusPaused       = "paused"
	StatusCompleted    = "completed"
)

const (
	MinBoardSize = 3
	MaxBoardSize = 6

	MaxPlayers = 8
)

// WinConditions selects which victory rules are active. At least one must
// be enabled.
type WinConditions struct {
	Line     bool `json:"line"`
	Majority bool `json:"majority"`
}

func (that WinConditions) Validate() error {
	if !that.Line && !that.Majority {
		return fmt.Errorf("%w: no win condition enabled", apperror.ErrInvalidSettings)
	}
	return nil
}

// Settings are the per-session game options.
type Settings struct {
	BoardSize     int           `json:"board_size"`
	LockoutMode   bool          `json:"lockout_mode"`
	TeamMode      bool          `json:"team_mode"`
	WinConditions WinConditions `json:"win_conditions"`
	TimerSeconds  int           `json:"timer_seconds,omitempty"`
}

func (that Settings) Validate() error {
	if that.BoardSize < MinBoardSize || that.BoardSize > MaxBoardSize {
		return fmt.Errorf("%w: got %d", apperror.ErrInvalidBoardSize, that.BoardSize)
	}
	return that.WinConditions.Validate()
}

// GameSession is the server-mirrored session row. Version increases
// monotonically with every validated mutation.
type GameSession struct {
	ID         string      `json:"id"`
	BoardID    string      `json:"board_id"`
	Status     string      `json:"status"`
	Players    []*Player   `json:"players,omitempty"`
	BoardState []BoardCell `json:"board_state"`
	Settings   Settings    `json:"settings"`
	Version    int64       `json:"version"`
}

func (that *GameSession) IsCompleted() bool {
	return that.Status == StatusCompleted
}

func (that *GameSession) IsActive() bool {
	return that.Status == StatusActive
}

func (that *GameSession) IsPaused() bool {
	return that.Status == StatusPaused
}

// ConfirmActiveState reports whether moves may be applied right now. A
// paused game rejects moves the same way an unstarted one does.
func (that *GameSession) ConfirmActiveState() error {
	switch that.Status {
	case StatusInitializing, StatusPaused:
		return apperror.ErrGameIsNotStarted
	case StatusCompleted:
		return apperror.ErrGameFinished
	case StatusActive:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", apperror.ErrInvalidSettings, that.Status)
	}
}

// PlayerByColor resolves a color token to its owning player.
func (that *GameSession) PlayerByColor(color string) *Player {
	for _, p := range that.Players {
		if p.Color == color {
			return p
		}
	}
	return nil
}
