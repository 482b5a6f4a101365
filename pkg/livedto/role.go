package livedto

import "strings"

// Role is the capacity a connection holds for its whole lifetime.
type Role string

const (
	FirstPlayer  Role = "FIRST_PLAYER"
	SecondPlayer Role = "SECOND_PLAYER"
	Spectator    Role = "SPECTATOR"
)

// IsPlayer reports whether the role occupies one of the two seats.
func (r Role) IsPlayer() bool { return r == FirstPlayer || r == SecondPlayer }

// Opponent returns the other playing role; spectators have none.
func (r Role) Opponent() Role {
	switch r {
	case FirstPlayer:
		return SecondPlayer
	case SecondPlayer:
		return FirstPlayer
	default:
		return ""
	}
}

// Color returns the chess side bound to the role ("white"/"black"), or "" for spectators.
func (r Role) Color() string {
	switch r {
	case FirstPlayer:
		return "white"
	case SecondPlayer:
		return "black"
	default:
		return ""
	}
}

// ParseRole accepts the wire names and the short color aliases used by older clients.
func ParseRole(s string) Role {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FIRST_PLAYER", "W", "WHITE":
		return FirstPlayer
	case "SECOND_PLAYER", "B", "BLACK":
		return SecondPlayer
	default:
		return Spectator
	}
}
