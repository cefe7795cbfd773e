package apperror

import "errors"

// Validation errors: the mutation is rejected and state is left unchanged.
var (
	ErrInvalidBoardState = errors.New("board state is invalid")
	ErrInvalidCell       = errors.New("invalid cell")
	ErrInvalidBoardSize  = errors.New("board size must be between 3 and 6")
	ErrInvalidSettings   = errors.New("settings are invalid")
	ErrTextTooLong       = errors.New("cell text exceeds 50 characters")
)

// Gameplay errors.
var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrCellBlocked      = errors.New("cell is blocked")
	ErrCellLocked       = errors.New("cell is already claimed")
	ErrCellFull         = errors.New("cell already holds the maximum number of marks")
	ErrBlockOwnCell     = errors.New("cannot block the cell that granted the block")
	ErrEmptyTaskPool    = errors.New("task pool is empty")
)

// Network errors: transient, retried per the reconciler policy.
var (
	ErrNetwork        = errors.New("network failure")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Conflict: remote write rejected, local state rolled back.
var ErrVersionConflict = errors.New("remote version conflict")

// StateCorruption: a structural invariant was violated; the caller falls
// back to the last valid snapshot or regenerates the board.
var ErrStateCorrupted = errors.New("board state corrupted")

// Session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session already has the maximum number of players")
	ErrColorTaken      = errors.New("color is already taken by another player")
)
