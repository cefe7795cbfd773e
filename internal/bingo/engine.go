package bingo

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/eventbus"
)

// maxRegenAttempts bounds the collision-avoidance loop in ResetBoard.
const maxRegenAttempts = 5

// Engine is the game state machine. It exclusively owns the in-memory board
// state, winner and players while a session is live; every mutation
// validates the whole new board before committing and falls back to the
// last known-good snapshot on failure.
type Engine struct {
	logger *slog.Logger
	bus    *eventbus.Bus

	settings entity.Settings
	players  []*entity.Player
	pool     []string

	board     []entity.BoardCell
	lastValid []entity.BoardCell
	status    string
	winner    int

	// blockCredit maps a player id to the cell index that granted a
	// pending one-shot block action.
	blockCredit map[string]int

	lastErr error
}

func NewEngine(logger *slog.Logger, bus *eventbus.Bus, settings entity.Settings, players []*entity.Player, pool []string) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate settings: %w", err)
	}

	board, err := GenerateBoard(settings.BoardSize, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to generate board: %w", err)
	}

	return &Engine{
		logger:      logger.With("component", "engine"),
		bus:         bus,
		settings:    settings,
		players:     players,
		pool:        pool,
		board:       board,
		lastValid:   entity.CloneBoard(board),
		status:      entity.StatusInitializing,
		winner:      VerdictNone,
		blockCredit: make(map[string]int),
	}, nil
}

// Board returns a deep copy; callers never get a reference into the
// engine-owned state.
func (that *Engine) Board() []entity.BoardCell {
	return entity.CloneBoard(that.board)
}

func (that *Engine) Winner() int { return that.winner }

func (that *Engine) Status() string { return that.status }

// LastErr exposes the observable error field set by rejected mutations.
func (that *Engine) LastErr() error { return that.lastErr }

func (that *Engine) Start() {
	if that.status == entity.StatusInitializing {
		that.status = entity.StatusActive
	}
}

func (that *Engine) Pause() {
	if that.status == entity.StatusActive {
		that.status = entity.StatusPaused
	}
}

func (that *Engine) Resume() {
	if that.status == entity.StatusPaused {
		that.status = entity.StatusActive
	}
}

// HandleCellChange edits a cell's task text and, optionally, its
// difficulty; a hard cell carries the one-shot block reward. Editing is a
// pre-game affordance; once the session is active the grid is frozen.
func (that *Engine) HandleCellChange(index int, text, difficulty string) error {
	if that.status != entity.StatusInitializing {
		return apperror.ErrGameFinished
	}

	if index < 0 || index >= len(that.board) {
		return fmt.Errorf("%w: index %d", apperror.ErrInvalidCell, index)
	}

	// The clamp counts runes; a byte slice could split a multibyte
	// character and leave invalid UTF-8 on the board.
	if runes := []rune(text); len(runes) > entity.MaxCellText {
		text = string(runes[:entity.MaxCellText])
	}

	switch difficulty {
	case "", entity.DifficultyNormal, entity.DifficultyHard:
	default:
		return fmt.Errorf("%w: difficulty %q", apperror.ErrInvalidCell, difficulty)
	}

	return that.mutate(func(board []entity.BoardCell) error {
		board[index].Text = text
		if difficulty != "" {
			board[index].Difficulty = difficulty
			if difficulty == entity.DifficultyHard {
				board[index].Reward = entity.RewardBlock
			} else {
				board[index].Reward = entity.RewardNone
			}
		}
		board[index].LastUpdated = time.Now().UnixMilli()
		return nil
	})
}

// HandleCellClick is the authoritative move-application entry point. After
// every accepted move the win detector runs; a definite result freezes the
// board.
func (that *Engine) HandleCellClick(index int, player *entity.Player) error {
	if that.winner != VerdictNone {
		return apperror.ErrGameFinished
	}

	if err := that.ConfirmActiveState(); err != nil {
		return err
	}

	if index < 0 || index >= len(that.board) {
		return fmt.Errorf("%w: index %d", apperror.ErrInvalidCell, index)
	}

	cell := &that.board[index]

	if earned, ok := that.blockCredit[player.ID]; ok {
		return that.applyBlock(index, earned, player)
	}

	if cell.Blocked {
		return apperror.ErrCellBlocked
	}

	// Toggle: clicking your own mark removes it. This is a deliberate
	// undo affordance.
	if cell.HasColor(player.Color) {
		return that.mutate(func(board []entity.BoardCell) error {
			board[index].RemoveMark(player.Color)
			board[index].LastUpdated = time.Now().UnixMilli()
			return nil
		})
	}

	if that.settings.LockoutMode && len(cell.Colors) > 0 {
		return apperror.ErrCellLocked
	}

	if !that.settings.LockoutMode && len(cell.Colors) >= entity.MaxMarksPerCell {
		return apperror.ErrCellFull
	}

	err := that.mutate(func(board []entity.BoardCell) error {
		board[index].AddMark(player.Color, player.ID)
		board[index].Version++
		board[index].LastUpdated = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		return err
	}

	if that.board[index].Difficulty != entity.DifficultyNormal && that.board[index].Reward == entity.RewardBlock {
		that.blockCredit[player.ID] = index
	}

	that.checkForWinner(false)

	return nil
}

// applyBlock consumes a pending block credit: the clicked cell is blocked
// instead of marked. Neither the earning cell, an already-blocked cell nor
// a cell completed by the blocker's own side can be the target; a rejected
// target keeps the credit unspent.
func (that *Engine) applyBlock(index, earnedAt int, player *entity.Player) error {
	if index == earnedAt {
		return apperror.ErrBlockOwnCell
	}

	if that.board[index].Blocked {
		return apperror.ErrCellBlocked
	}

	for _, ownerID := range that.board[index].CompletedBy {
		owner := that.playerByID(ownerID)
		if owner != nil && player.SameSide(owner, that.settings.TeamMode) {
			return apperror.ErrBlockOwnCell
		}
	}

	err := that.mutate(func(board []entity.BoardCell) error {
		board[index].Blocked = true
		board[index].BlockedBy = player.Color
		board[index].LastUpdated = time.Now().UnixMilli()
		return nil
	})
	if err != nil {
		return err
	}

	delete(that.blockCredit, player.ID)

	return nil
}

// UpdateBoardState replaces the whole board. Only the realtime reconciler
// calls this, and only with a merged state; raw remote snapshots must never
// land here directly.
func (that *Engine) UpdateBoardState(state []entity.BoardCell) error {
	if !ValidateBoardState(state, that.settings.BoardSize) {
		that.lastErr = apperror.ErrInvalidBoardState
		return apperror.ErrInvalidBoardState
	}

	that.board = entity.CloneBoard(state)
	that.lastValid = entity.CloneBoard(state)
	that.lastErr = nil

	return nil
}

// AdoptState loads a persisted session's board and status into the engine,
// replacing whatever it generated at construction.
func (that *Engine) AdoptState(status string, board []entity.BoardCell) error {
	if !ValidateBoardState(board, that.settings.BoardSize) {
		return apperror.ErrInvalidBoardState
	}

	that.board = entity.CloneBoard(board)
	that.lastValid = entity.CloneBoard(board)
	that.status = status
	that.lastErr = nil

	return nil
}

// SetPlayers swaps the roster, e.g. after a late join.
func (that *Engine) SetPlayers(players []*entity.Player) {
	that.players = players
}

func (that *Engine) playerByID(id string) *entity.Player {
	for _, p := range that.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// HandleTimeExpiry runs a forced win check when the countdown hits zero.
// With no decidable winner the session still completes.
func (that *Engine) HandleTimeExpiry() int {
	that.checkForWinner(true)

	if that.winner == VerdictNone {
		that.status = entity.StatusCompleted
	}

	return that.winner
}

// ResetBoard regenerates the grid, avoiding text collisions with the prior
// board. Best effort: a bounded redraw loop, then a guaranteed-fresh
// synthetic cell for anything still colliding.
func (that *Engine) ResetBoard() error {
	prior := make(map[string]bool, len(that.board))
	for i := range that.board {
		prior[that.board[i].Text] = true
	}

	board, err := GenerateBoard(that.settings.BoardSize, that.pool)
	if err != nil {
		return fmt.Errorf("failed to regenerate board: %w", err)
	}

	// Redraws are salted with the wall clock so consecutive resets do not
	// walk the same sequence.
	redraw := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint: gosec // game content, not crypto
	for i := range board {
		for attempt := 0; attempt < maxRegenAttempts && prior[board[i].Text]; attempt++ {
			board[i].Text = that.pool[redraw.Intn(len(that.pool))]
		}
		if prior[board[i].Text] {
			board[i].Text = syntheticTask(i)
		}
	}

	that.board = board
	that.lastValid = entity.CloneBoard(board)
	that.status = entity.StatusInitializing
	that.winner = VerdictNone
	that.blockCredit = make(map[string]int)
	that.lastErr = nil

	if that.bus != nil {
		that.bus.Publish(eventbus.TopicBoardReset, that.Board())
	}

	return nil
}

// mutate applies fn to a working copy, validates the whole result and only
// then commits. A validation failure or a panic inside fn restores the last
// known-good snapshot and surfaces the error instead of crashing the
// caller.
func (that *Engine) mutate(fn func(board []entity.BoardCell) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			that.logger.Error("mutation panicked, restoring last valid snapshot", "panic", r)
			that.board = entity.CloneBoard(that.lastValid)
			err = fmt.Errorf("%w: %v", apperror.ErrStateCorrupted, r)
			that.lastErr = err
		}
	}()

	next := entity.CloneBoard(that.board)
	if err = fn(next); err != nil {
		that.lastErr = err
		return err
	}

	if !ValidateBoardState(next, that.settings.BoardSize) {
		that.board = entity.CloneBoard(that.lastValid)
		that.lastErr = apperror.ErrInvalidBoardState
		return apperror.ErrInvalidBoardState
	}

	that.board = next
	that.lastValid = entity.CloneBoard(next)
	that.lastErr = nil

	return nil
}

func (that *Engine) checkForWinner(forceCheck bool) {
	verdict := CheckWinningCondition(that.board, that.settings.BoardSize, that.players, that.settings.WinConditions, that.settings.TeamMode, forceCheck)
	if verdict == VerdictNone {
		return
	}

	that.winner = verdict
	that.status = entity.StatusCompleted

	if that.bus != nil {
		that.bus.Publish(eventbus.TopicGameCompleted, verdict)
	}
}

// ConfirmActiveState reports whether moves may be applied right now.
func (that *Engine) ConfirmActiveState() error {
	switch that.status {
	case entity.StatusInitializing:
		return apperror.ErrGameIsNotStarted
	case entity.StatusPaused:
		return apperror.ErrGameIsNotStarted
	case entity.StatusCompleted:
		return apperror.ErrGameFinished
	default:
		return nil
	}
}

func syntheticTask(index int) string {
	return fmt.Sprintf("Wildcard task %d-%s", index, uuid.NewString()[:8])
}
