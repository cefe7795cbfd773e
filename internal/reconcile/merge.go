package reconcile

import (
	"github.com/playcell/bingo-backend/internal/entity"
)

// MergeBoards reconciles a remote snapshot into the local board. Per cell
// the color sets are unioned, never replaced, so a mark confirmed on either
// side survives any race. The documented cost: a remote removal cannot be
// represented, only ForceSync replaces outright.
func MergeBoards(local, remote []entity.BoardCell) []entity.BoardCell {
	if len(local) != len(remote) {
		// Shape mismatch means one side is mid-resize; the local copy
		// stays authoritative until a full fetch.
		return entity.CloneBoard(local)
	}

	merged := entity.CloneBoard(local)
	for i := range merged {
		mergeCell(&merged[i], &remote[i])
	}

	return merged
}

func mergeCell(local, remote *entity.BoardCell) {
	for j, color := range remote.Colors {
		if local.HasColor(color) {
			continue
		}

		completedBy := ""
		if j < len(remote.CompletedBy) {
			completedBy = remote.CompletedBy[j]
		}
		local.AddMark(color, completedBy)
	}

	if remote.Blocked && !local.Blocked {
		local.Blocked = true
		local.BlockedBy = remote.BlockedBy
	}

	if remote.Version > local.Version {
		local.Version = remote.Version
	}
	if remote.LastUpdated > local.LastUpdated {
		local.LastUpdated = remote.LastUpdated
	}

	local.IsMarked = len(local.Colors) > 0
}
