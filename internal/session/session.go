package session

import "github.com/park285/cheese-liveboard/pkg/livedto"

// Session is the single mutable aggregate: current position plus the two seat slots.
// It is only touched by Coordinator under its lock.
type Session struct {
	position string
	first    string
	second   string
}

func newSession(start string) *Session {
	return &Session{position: start}
}

func (s *Session) slot(r livedto.Role) string {
	switch r {
	case livedto.FirstPlayer:
		return s.first
	case livedto.SecondPlayer:
		return s.second
	default:
		return ""
	}
}

func (s *Session) roleOf(connID string) livedto.Role {
	switch {
	case connID == "":
		return livedto.Spectator
	case s.first == connID:
		return livedto.FirstPlayer
	case s.second == connID:
		return livedto.SecondPlayer
	default:
		return livedto.Spectator
	}
}

// occupy seats connID in the first free slot; spectators are not stored.
func (s *Session) occupy(connID string) livedto.Role {
	if r := s.roleOf(connID); r.IsPlayer() {
		return r
	}
	if s.first == "" {
		s.first = connID
		return livedto.FirstPlayer
	}
	if s.second == "" {
		s.second = connID
		return livedto.SecondPlayer
	}
	return livedto.Spectator
}

// release frees whichever slot connID held and returns the role it had.
func (s *Session) release(connID string) livedto.Role {
	r := s.roleOf(connID)
	switch r {
	case livedto.FirstPlayer:
		s.first = ""
	case livedto.SecondPlayer:
		s.second = ""
	}
	return r
}

func (s *Session) full() bool { return s.first != "" && s.second != "" }
