package bingo

import (
	"fmt"
	"math/rand"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
)

// DefaultTaskPool seeds boards when the session owner has not supplied
// custom tasks yet.
var DefaultTaskPool = []string{
	"Win a round without speaking",
	"Finish a task with one hand",
	"Make someone laugh",
	"Quote a movie line",
	"Hold your breath for 20 seconds",
	"Name five capitals",
	"Do ten push-ups",
	"Sing a chorus",
	"Spell a word backwards",
	"Tell a two-sentence story",
	"Draw an animal in 15 seconds",
	"Hum a song until someone guesses it",
	"Compliment every player",
	"Speak in rhymes for a minute",
	"Balance something on your head",
	"Count to ten in another language",
	"Invent a handshake",
	"Describe your day in emoji",
	"Whistle a TV theme",
	"Do your best robot voice",
	"Name three islands",
	"Clap a rhythm others must repeat",
	"Stand on one leg for 30 seconds",
	"Recite a tongue twister",
	"Share an unpopular opinion",
	"Guess a teammate's favorite food",
	"Mime an occupation",
	"Talk like a pirate",
	"List four blue things in the room",
	"Make a paper plane",
	"Give a toast",
	"Impersonate another player",
	"Say the alphabet skipping vowels",
	"Find something older than you",
	"Swap seats with someone",
	"Tell a joke without laughing",
}

// GenerateBoard produces size² cells with unique cell ids and text drawn at
// random from the pool. Duplicate texts are allowed at generation time;
// ResetBoard layers a dedup pass on top. An empty pool is the one fatal
// generation error, there is no safe fallback content.
func GenerateBoard(size int, pool []string) ([]entity.BoardCell, error) {
	if size < entity.MinBoardSize || size > entity.MaxBoardSize {
		return nil, fmt.Errorf("%w: got %d", apperror.ErrInvalidBoardSize, size)
	}

	if len(pool) == 0 {
		return nil, apperror.ErrEmptyTaskPool
	}

	cells := make([]entity.BoardCell, size*size)
	for i := range cells {
		cells[i] = entity.BoardCell{
			Text:        pool[rand.Intn(len(pool))], //nolint: gosec // game content, not crypto
			Colors:      []string{},
			CompletedBy: []string{},
			CellID:      uuid.NewString(),
			Difficulty:  entity.DifficultyNormal,
		}
	}

	return cells, nil
}

// ValidateCell is a structural check: required fields present, parallel
// arrays intact. Corruption of the Colors/CompletedBy pairing is an error
// state, not something to silently repair.
func ValidateCell(cell *entity.BoardCell) bool {
	if cell == nil {
		return false
	}

	if cell.CellID == "" {
		return false
	}

	if utf8.RuneCountInString(cell.Text) > entity.MaxCellText {
		return false
	}

	if cell.Colors == nil || cell.CompletedBy == nil {
		return false
	}

	if len(cell.Colors) != len(cell.CompletedBy) {
		return false
	}

	if cell.Blocked && cell.BlockedBy == "" {
		return false
	}

	return true
}

// ValidateBoardState checks that the state is a perfect square of the given
// size and every cell passes ValidateCell. It never mutates the state.
func ValidateBoardState(state []entity.BoardCell, boardSize int) bool {
	if boardSize < entity.MinBoardSize || boardSize > entity.MaxBoardSize {
		return false
	}

	if len(state) != boardSize*boardSize {
		return false
	}

	for i := range state {
		if !ValidateCell(&state[i]) {
			return false
		}
	}

	return true
}
