package entity

// NoTeam marks a player outside team mode.
const NoTeam = -1

type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	HoverColor string `json:"hover_color,omitempty"`
	Team       int    `json:"team,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// SameSide reports whether two players count for the same win candidate:
// identical players in solo mode, teammates in team mode.
func (that *Player) SameSide(other *Player, teamMode bool) bool {
	if teamMode {
		return that.Team != NoTeam && that.Team == other.Team
	}
	return that.ID == other.ID
}
