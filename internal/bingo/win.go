package bingo

import (
	"github.com/playcell/bingo-backend/internal/entity"
)

// Verdict of a win check. Non-negative values are a player index (solo mode)
// or a team number (team mode).
const (
	VerdictNone = -2
	VerdictTie  = -1
)

// CheckWinningCondition is the pure win detector. It enumerates boardSize
// rows, boardSize columns and both diagonals, then falls through to the
// majority/draw rules when the board is full or forceCheck is set (time
// expiry). Completed lines are evaluated before the all-counts-equal draw
// check, so a visible line win is never shadowed by a numeric tie.
func CheckWinningCondition(board []entity.BoardCell, boardSize int, players []*entity.Player, conds entity.WinConditions, teamMode, forceCheck bool) int {
	if !ValidateBoardState(board, boardSize) {
		return VerdictNone
	}

	sides := enumerateSides(players, teamMode)
	if len(sides) == 0 {
		return VerdictNone
	}

	if conds.Line {
		for _, line := range candidateLines(boardSize) {
			for _, side := range sides {
				if sideOwnsLine(board, line, side) {
					return side.id
				}
			}
		}
	}

	if !boardFull(board) && !forceCheck {
		return VerdictNone
	}

	counts := markCounts(board, sides)

	if conds.Majority || conds.Line {
		if verdict, decided := drawVerdict(counts); decided {
			return verdict
		}
	}

	if conds.Majority {
		return majorityVerdict(sides, counts)
	}

	return VerdictNone
}

// side is one win candidate: a single player in solo mode, a whole team in
// team mode. Any of its colors marking a cell counts.
type side struct {
	id     int
	colors map[string]bool
}

func enumerateSides(players []*entity.Player, teamMode bool) []side {
	if !teamMode {
		sides := make([]side, 0, len(players))
		for i, p := range players {
			sides = append(sides, side{id: i, colors: map[string]bool{p.Color: true}})
		}
		return sides
	}

	byTeam := make(map[int]*side)
	order := make([]int, 0, 2)
	for _, p := range players {
		if p.Team == entity.NoTeam {
			continue
		}
		s, ok := byTeam[p.Team]
		if !ok {
			s = &side{id: p.Team, colors: map[string]bool{}}
			byTeam[p.Team] = s
			order = append(order, p.Team)
		}
		s.colors[p.Color] = true
	}

	sides := make([]side, 0, len(order))
	for _, team := range order {
		sides = append(sides, *byTeam[team])
	}
	return sides
}

// candidateLines returns index sets for every row, column and both
// diagonals of a boardSize×boardSize grid.
func candidateLines(boardSize int) [][]int {
	lines := make([][]int, 0, 2*boardSize+2)

	for row := 0; row < boardSize; row++ {
		line := make([]int, boardSize)
		for col := 0; col < boardSize; col++ {
			line[col] = row*boardSize + col
		}
		lines = append(lines, line)
	}

	for col := 0; col < boardSize; col++ {
		line := make([]int, boardSize)
		for row := 0; row < boardSize; row++ {
			line[row] = row*boardSize + col
		}
		lines = append(lines, line)
	}

	main := make([]int, boardSize)
	anti := make([]int, boardSize)
	for i := 0; i < boardSize; i++ {
		main[i] = i * (boardSize + 1)
		anti[i] = (i + 1) * (boardSize - 1)
	}
	lines = append(lines, main, anti)

	return lines
}

func sideOwnsLine(board []entity.BoardCell, line []int, s side) bool {
	for _, idx := range line {
		if !cellHasSide(&board[idx], s) {
			return false
		}
	}
	return true
}

func cellHasSide(cell *entity.BoardCell, s side) bool {
	for _, color := range cell.Colors {
		if s.colors[color] {
			return true
		}
	}
	return false
}

// boardFull treats blocked cells as settled: they can never be marked, so
// they must not keep the endgame rules from firing.
func boardFull(board []entity.BoardCell) bool {
	for i := range board {
		if len(board[i].Colors) == 0 && !board[i].Blocked {
			return false
		}
	}
	return true
}

func markCounts(board []entity.BoardCell, sides []side) map[int]int {
	counts := make(map[int]int, len(sides))
	for i := range board {
		for _, s := range sides {
			if cellHasSide(&board[i], s) {
				counts[s.id]++
			}
		}
	}
	return counts
}

// drawVerdict detects the dead-heat case: at least two sides hold marks and
// every side with marks holds exactly as many as the rest.
func drawVerdict(counts map[int]int) (int, bool) {
	nonzero := 0
	first := -1
	for _, count := range counts {
		if count == 0 {
			continue
		}
		nonzero++
		if first == -1 {
			first = count
		} else if count != first {
			return VerdictNone, false
		}
	}

	if nonzero >= 2 {
		return VerdictTie, true
	}
	return VerdictNone, false
}

// majorityVerdict awards the side with the strict maximum mark count. Two or
// more sides tied at the maximum is a tie, never an arbitrary pick.
func majorityVerdict(sides []side, counts map[int]int) int {
	best, bestCount, tied := VerdictNone, 0, false
	for _, s := range sides {
		count := counts[s.id]
		switch {
		case count > bestCount:
			best, bestCount, tied = s.id, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}

	if bestCount == 0 {
		return VerdictNone
	}
	if tied {
		return VerdictTie
	}
	return best
}
