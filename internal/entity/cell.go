package entity

const (
	// MaxCellText caps the user-editable task description.
	MaxCellText = 50

	// MaxMarksPerCell caps simultaneous marks when lockout mode is off.
	MaxMarksPerCell = 4
)

const (
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"

	RewardNone  = ""
	RewardBlock = "block"
)

// BoardCell is a single task square on the bingo board. Colors and
// CompletedBy are parallel arrays: entry i of CompletedBy names the player
// who placed entry i of Colors.
type BoardCell struct {
	Text        string   `json:"text"`
	Colors      []string `json:"colors"`
	CompletedBy []string `json:"completed_by"`
	Blocked     bool     `json:"blocked"`
	BlockedBy   string   `json:"blocked_by,omitempty"`
	IsMarked    bool     `json:"is_marked"`
	CellID      string   `json:"cell_id"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Reward      string   `json:"reward,omitempty"`
	Version     int64    `json:"version,omitempty"`
	LastUpdated int64    `json:"last_updated,omitempty"`
}

// HasColor reports whether the given color already marks the cell.
func (that *BoardCell) HasColor(color string) bool {
	for _, c := range that.Colors {
		if c == color {
			return true
		}
	}
	return false
}

// AddMark appends a color and its owning player to the parallel arrays.
func (that *BoardCell) AddMark(color, playerID string) {
	that.Colors = append(that.Colors, color)
	that.CompletedBy = append(that.CompletedBy, playerID)
	that.IsMarked = true
}

// RemoveMark removes the first occurrence of color together with its
// CompletedBy entry, keeping the arrays parallel.
func (that *BoardCell) RemoveMark(color string) {
	for i, c := range that.Colors {
		if c != color {
			continue
		}
		that.Colors = append(that.Colors[:i], that.Colors[i+1:]...)
		that.CompletedBy = append(that.CompletedBy[:i], that.CompletedBy[i+1:]...)
		break
	}
	that.IsMarked = len(that.Colors) > 0
}

// Clone returns a deep copy of the cell. Mark arrays come back non-nil so
// a clone of a JSON-decoded cell still passes structural validation.
func (that *BoardCell) Clone() BoardCell {
	clone := *that
	clone.Colors = make([]string, len(that.Colors))
	copy(clone.Colors, that.Colors)
	clone.CompletedBy = make([]string, len(that.CompletedBy))
	copy(clone.CompletedBy, that.CompletedBy)
	return clone
}

// CloneBoard deep-copies a whole board state.
func CloneBoard(board []BoardCell) []BoardCell {
	clone := make([]BoardCell, len(board))
	for i := range board {
		clone[i] = board[i].Clone()
	}
	return clone
}
