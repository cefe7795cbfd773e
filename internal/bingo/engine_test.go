package bingo

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/eventbus"
)

func newTestEngine(t *testing.T, settings entity.Settings, players []*entity.Player) *Engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := NewEngine(logger, eventbus.New(), settings, players, DefaultTaskPool)
	require.NoError(t, err)

	return engine
}

func lockoutSettings() entity.Settings {
	return entity.Settings{
		BoardSize:     3,
		LockoutMode:   true,
		WinConditions: entity.WinConditions{Line: true},
	}
}

func TestEngine_LineWinScenario(t *testing.T) {
	t.Run("Marking the top row wins the game", func(t *testing.T) {
		// Given: a 3x3 lockout game with players A (red) and B (blue)
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()

		// When: A marks cells 0, 1 and 2 in sequence
		require.NoError(t, engine.HandleCellClick(0, players[0]))
		require.NoError(t, engine.HandleCellClick(1, players[0]))
		assert.Equal(t, VerdictNone, engine.Winner())
		require.NoError(t, engine.HandleCellClick(2, players[0]))

		// Then: A is the winner and the game is completed
		assert.Equal(t, 0, engine.Winner())
		assert.Equal(t, entity.StatusCompleted, engine.Status())

		// And: further clicks are frozen out
		err := engine.HandleCellClick(3, players[1])
		assert.ErrorIs(t, err, apperror.ErrGameFinished)
	})
}

func TestEngine_LockoutInvariant(t *testing.T) {
	t.Run("A claimed cell rejects every other player", func(t *testing.T) {
		// Given: a lockout game where A holds cell 4
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()
		require.NoError(t, engine.HandleCellClick(4, players[0]))

		// When: B clicks the same cell
		err := engine.HandleCellClick(4, players[1])

		// Then: the click is rejected and the cell still holds one color
		assert.ErrorIs(t, err, apperror.ErrCellLocked)
		assert.Equal(t, []string{"red"}, engine.Board()[4].Colors)
	})

	t.Run("No click sequence ever stacks colors under lockout", func(t *testing.T) {
		// Given: both players clicking every cell in interleaved order
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, entity.Settings{
			BoardSize:     3,
			LockoutMode:   true,
			WinConditions: entity.WinConditions{Majority: true},
		}, players)
		engine.Start()

		for i := 0; i < 9; i++ {
			_ = engine.HandleCellClick(i, players[i%2])
			_ = engine.HandleCellClick(i, players[(i+1)%2])
		}

		// Then: no cell holds more than one color
		for i, cell := range engine.Board() {
			assert.LessOrEqual(t, len(cell.Colors), 1, "cell %d", i)
		}
	})
}

func TestEngine_ToggleInvariant(t *testing.T) {
	t.Run("Clicking the same cell twice restores the prior color set", func(t *testing.T) {
		// Given: a non-lockout game with one mark already placed by B
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, entity.Settings{
			BoardSize:     3,
			WinConditions: entity.WinConditions{Line: true},
		}, players)
		engine.Start()
		require.NoError(t, engine.HandleCellClick(4, players[1]))
		before := engine.Board()[4].Colors

		// When: A clicks the cell and clicks it again
		require.NoError(t, engine.HandleCellClick(4, players[0]))
		require.NoError(t, engine.HandleCellClick(4, players[0]))

		// Then: the cell is back to its pre-first-click color set
		after := engine.Board()[4]
		assert.Equal(t, before, after.Colors)
		assert.Len(t, after.CompletedBy, len(after.Colors))
	})
}

func TestEngine_MarkCap(t *testing.T) {
	t.Run("Non-lockout cells cap at four colors", func(t *testing.T) {
		// Given: five players piling onto one cell
		players := testPlayers("red", "blue", "green", "orange", "purple")
		engine := newTestEngine(t, entity.Settings{
			BoardSize:     3,
			WinConditions: entity.WinConditions{Majority: true},
		}, players)
		engine.Start()

		for i := 0; i < 4; i++ {
			require.NoError(t, engine.HandleCellClick(0, players[i]))
		}

		// When: the fifth player clicks
		err := engine.HandleCellClick(0, players[4])

		// Then: the click is rejected at the cap
		assert.ErrorIs(t, err, apperror.ErrCellFull)
		assert.Len(t, engine.Board()[0].Colors, entity.MaxMarksPerCell)
	})
}

func TestEngine_Blocking(t *testing.T) {
	blockSettings := entity.Settings{
		BoardSize:     3,
		WinConditions: entity.WinConditions{Line: true},
	}

	rewardBoard := func(t *testing.T, engine *Engine) {
		t.Helper()

		board := engine.Board()
		board[0].Difficulty = entity.DifficultyHard
		board[0].Reward = entity.RewardBlock
		require.NoError(t, engine.AdoptState(entity.StatusActive, board))
	}

	t.Run("Completing a reward cell grants a one-shot block", func(t *testing.T) {
		// Given: a hard cell carrying the block reward
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, blockSettings, players)
		rewardBoard(t, engine)

		require.NoError(t, engine.HandleCellClick(0, players[0]))

		// When: the earning player clicks a different cell
		require.NoError(t, engine.HandleCellClick(5, players[0]))

		// Then: the target is blocked instead of marked
		cell := engine.Board()[5]
		assert.True(t, cell.Blocked)
		assert.Equal(t, "red", cell.BlockedBy)
		assert.Empty(t, cell.Colors)

		// And: the block was one-shot, the next click marks normally
		require.NoError(t, engine.HandleCellClick(7, players[0]))
		assert.Equal(t, []string{"red"}, engine.Board()[7].Colors)
	})

	t.Run("The earning cell can never be the block target", func(t *testing.T) {
		// Given: a player holding a fresh block credit
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, blockSettings, players)
		rewardBoard(t, engine)
		require.NoError(t, engine.HandleCellClick(0, players[0]))

		// When: they click the cell that granted the block
		err := engine.HandleCellClick(0, players[0])

		// Then: the block is refused and the credit survives
		assert.ErrorIs(t, err, apperror.ErrBlockOwnCell)
	})

	t.Run("A cell your side completed cannot be blocked", func(t *testing.T) {
		// Given: red owns a cell, then earns a block credit
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, blockSettings, players)
		rewardBoard(t, engine)
		require.NoError(t, engine.HandleCellClick(5, players[0]))
		require.NoError(t, engine.HandleCellClick(0, players[0]))

		// When: red tries to spend the block on the cell they completed
		err := engine.HandleCellClick(5, players[0])

		// Then: the block is refused
		assert.ErrorIs(t, err, apperror.ErrBlockOwnCell)
	})

	t.Run("A blocked cell rejects marks", func(t *testing.T) {
		// Given: a cell blocked by A
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, blockSettings, players)
		rewardBoard(t, engine)
		require.NoError(t, engine.HandleCellClick(0, players[0]))
		require.NoError(t, engine.HandleCellClick(5, players[0]))

		// When: B clicks the blocked cell
		err := engine.HandleCellClick(5, players[1])

		// Then: the click is rejected
		assert.ErrorIs(t, err, apperror.ErrCellBlocked)
	})

	t.Run("An already-blocked cell cannot be blocked again", func(t *testing.T) {
		// Given: two reward cells, red holding a spent block on cell 5
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, blockSettings, players)
		board := engine.Board()
		board[0].Difficulty = entity.DifficultyHard
		board[0].Reward = entity.RewardBlock
		board[1].Difficulty = entity.DifficultyHard
		board[1].Reward = entity.RewardBlock
		require.NoError(t, engine.AdoptState(entity.StatusActive, board))

		require.NoError(t, engine.HandleCellClick(0, players[0]))
		require.NoError(t, engine.HandleCellClick(1, players[1]))
		require.NoError(t, engine.HandleCellClick(5, players[0]))

		// When: blue spends a credit on the cell red already blocked
		err := engine.HandleCellClick(5, players[1])

		// Then: the block is refused, the original blocker stands and
		// blue's credit is still spendable elsewhere
		assert.ErrorIs(t, err, apperror.ErrCellBlocked)
		assert.Equal(t, "red", engine.Board()[5].BlockedBy)

		require.NoError(t, engine.HandleCellClick(7, players[1]))
		assert.Equal(t, "blue", engine.Board()[7].BlockedBy)
	})
}

func TestEngine_CellChange(t *testing.T) {
	t.Run("Edits clamp to the text limit before the game starts", func(t *testing.T) {
		// Given: an initializing game and an oversized task
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)
		long := strings.Repeat("x", 80)

		// When: editing a cell
		require.NoError(t, engine.HandleCellChange(0, long, ""))

		// Then: the text is clamped to 50 characters
		assert.Len(t, engine.Board()[0].Text, entity.MaxCellText)
	})

	t.Run("Clamping never splits a multibyte character", func(t *testing.T) {
		// Given: an oversized task written in multibyte runes
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)
		long := strings.Repeat("ö", entity.MaxCellText+10)

		// When: editing a cell
		require.NoError(t, engine.HandleCellChange(0, long, ""))

		// Then: the text is 50 whole runes of valid UTF-8
		text := engine.Board()[0].Text
		assert.Equal(t, entity.MaxCellText, utf8.RuneCountInString(text))
		assert.True(t, utf8.ValidString(text))
	})

	t.Run("An edit can arm a hard cell with the block reward", func(t *testing.T) {
		// Given: a pre-game edit marking cell 0 as hard
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, lockoutSettings(), players)
		require.NoError(t, engine.HandleCellChange(0, "steal a cell", entity.DifficultyHard))

		armed := engine.Board()[0]
		require.Equal(t, entity.DifficultyHard, armed.Difficulty)
		require.Equal(t, entity.RewardBlock, armed.Reward)

		// When: the game starts and red completes the hard cell
		engine.Start()
		require.NoError(t, engine.HandleCellClick(0, players[0]))
		require.NoError(t, engine.HandleCellClick(5, players[0]))

		// Then: the earned credit blocked the next target
		assert.True(t, engine.Board()[5].Blocked)
		assert.Equal(t, "red", engine.Board()[5].BlockedBy)
	})

	t.Run("Re-editing back to normal clears the reward", func(t *testing.T) {
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)
		require.NoError(t, engine.HandleCellChange(0, "task", entity.DifficultyHard))

		require.NoError(t, engine.HandleCellChange(0, "task", entity.DifficultyNormal))

		cell := engine.Board()[0]
		assert.Equal(t, entity.DifficultyNormal, cell.Difficulty)
		assert.Equal(t, entity.RewardNone, cell.Reward)
	})

	t.Run("An unknown difficulty is rejected", func(t *testing.T) {
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)

		err := engine.HandleCellChange(0, "task", "nightmare")

		assert.ErrorIs(t, err, apperror.ErrInvalidCell)
	})

	t.Run("Editing is frozen once the game is active", func(t *testing.T) {
		// Given: a started game
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()

		// When: editing a cell
		err := engine.HandleCellChange(0, "too late", "")

		// Then: the edit is rejected
		require.Error(t, err)
	})
}

func TestEngine_Rollback(t *testing.T) {
	t.Run("An invalid overwrite is rejected and observable", func(t *testing.T) {
		// Given: a running game
		players := testPlayers("red")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()
		before := engine.Board()

		// When: pushing a corrupted state
		broken := engine.Board()
		broken[3].CompletedBy = append(broken[3].CompletedBy, "ghost")
		err := engine.UpdateBoardState(broken)

		// Then: the state is unchanged and the error is observable
		assert.ErrorIs(t, err, apperror.ErrInvalidBoardState)
		assert.Equal(t, before, engine.Board())
		assert.ErrorIs(t, engine.LastErr(), apperror.ErrInvalidBoardState)
	})
}

func TestEngine_ResetBoard(t *testing.T) {
	t.Run("Reset avoids text collisions with the prior board", func(t *testing.T) {
		// Given: a pool so small every redraw collides
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		pool := []string{"alpha", "beta"}
		engine, err := NewEngine(logger, eventbus.New(), lockoutSettings(), testPlayers("red"), pool)
		require.NoError(t, err)

		prior := make(map[string]bool)
		for _, cell := range engine.Board() {
			prior[cell.Text] = true
		}

		// When: resetting the board
		require.NoError(t, engine.ResetBoard())

		// Then: the fallback produced guaranteed-fresh synthetic tasks
		for _, cell := range engine.Board() {
			assert.False(t, prior[cell.Text], "text %q collided with the prior board", cell.Text)
		}
		assert.True(t, ValidateBoardState(engine.Board(), 3))
	})

	t.Run("Reset clears the winner and pending block credits", func(t *testing.T) {
		// Given: a completed game
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()
		for _, idx := range []int{0, 1, 2} {
			require.NoError(t, engine.HandleCellClick(idx, players[0]))
		}
		require.Equal(t, 0, engine.Winner())

		// When: resetting
		require.NoError(t, engine.ResetBoard())

		// Then: the game is fresh
		assert.Equal(t, VerdictNone, engine.Winner())
		assert.Equal(t, entity.StatusInitializing, engine.Status())
		for _, cell := range engine.Board() {
			assert.Empty(t, cell.Colors)
		}
	})
}

func TestEngine_TimeExpiry(t *testing.T) {
	t.Run("Expiry forces a majority verdict", func(t *testing.T) {
		// Given: an unfinished majority game with A ahead
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, entity.Settings{
			BoardSize:     3,
			WinConditions: entity.WinConditions{Majority: true},
		}, players)
		engine.Start()
		for _, idx := range []int{0, 1, 2} {
			require.NoError(t, engine.HandleCellClick(idx, players[0]))
		}
		require.NoError(t, engine.HandleCellClick(3, players[1]))

		// When: the countdown expires
		verdict := engine.HandleTimeExpiry()

		// Then: A wins and the session is completed
		assert.Equal(t, 0, verdict)
		assert.Equal(t, entity.StatusCompleted, engine.Status())
	})

	t.Run("Expiry with no marks completes without a winner", func(t *testing.T) {
		// Given: a game nobody played
		players := testPlayers("red", "blue")
		engine := newTestEngine(t, lockoutSettings(), players)
		engine.Start()

		// When: the countdown expires
		verdict := engine.HandleTimeExpiry()

		// Then: no winner, but the session still completes
		assert.Equal(t, VerdictNone, verdict)
		assert.Equal(t, entity.StatusCompleted, engine.Status())
	})
}
