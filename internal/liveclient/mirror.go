// Package liveclient is the participant side of a live board: a local mirror of the
// authoritative position, the socket that feeds it, and an HTTP state probe.
package liveclient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"go.uber.org/zap"
)

var (
	ErrSpectating  = errors.New("spectators cannot move")
	ErrNotYourTurn = errors.New("not your turn")
	ErrNoPosition  = errors.New("no position received yet")
)

// Rules is the local move check used for speculation and FEN validation.
type Rules interface {
	LegalMove(fen string, mv livedto.MoveRequest) (string, error)
	SideToMove(fen string) (livedto.Role, error)
	Validate(fen string) error
}

// View is a copy of what the mirror currently shows.
type View struct {
	Role        livedto.Role
	FEN         string
	Speculative bool
	LastMove    *livedto.MoveRequest
	Rejected    *livedto.Envelope
}

// Mirror keeps the local board. Local moves are applied speculatively and every
// position-sync from the server replaces whatever the mirror holds.
type Mirror struct {
	mu          sync.Mutex
	rules       Rules
	role        livedto.Role
	fen         string
	confirmed   string
	speculative bool
	lastMove    *livedto.MoveRequest
	rejected    *livedto.Envelope
	onChange    func(View)
}

func NewMirror(r Rules) *Mirror {
	return &Mirror{rules: r, role: livedto.Spectator}
}

// OnChange registers a callback fired after every state change, outside the lock.
func (m *Mirror) OnChange(fn func(View)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Apply folds one server envelope into the mirror.
func (m *Mirror) Apply(env livedto.Envelope) {
	m.mu.Lock()
	changed := true
	switch env.Type {
	case livedto.KindRoleAssigned:
		m.role = env.Role
	case livedto.KindPositionSync, livedto.KindResetBroadcast:
		changed = m.adopt(env.FEN)
	case livedto.KindMoveBroadcast:
		if env.Move != nil {
			mv := *env.Move
			m.lastMove = &mv
		}
	case livedto.KindMoveRejected:
		e := env
		m.rejected = &e
		obslog.L().Info("mirror_move_rejected",
			zap.String("reason", string(env.Reason)),
			zap.String("text", env.Text),
		)
	case livedto.KindError:
		obslog.L().Warn("mirror_server_error", zap.String("text", env.Text))
		changed = false
	default:
		changed = false
	}
	view, cb := m.viewLocked(), m.onChange
	m.mu.Unlock()

	if changed && cb != nil {
		cb(view)
	}
}

// adopt replaces local state with the server position. A malformed position is
// logged and the previous board stays on screen.
func (m *Mirror) adopt(fen string) bool {
	if err := m.rules.Validate(fen); err != nil || fen == "" {
		obslog.L().Warn("mirror_bad_position", zap.String("fen", fen), zap.Error(err))
		return false
	}
	if m.speculative && m.fen != fen {
		obslog.L().Info("mirror_speculation_discarded",
			zap.String("local", m.fen),
			zap.String("server", fen),
		)
	}
	m.fen = fen
	m.confirmed = fen
	m.speculative = false
	return true
}

// Propose checks mv locally, applies it speculatively and returns the frame to send.
// The server remains the authority; the next position-sync settles the board.
func (m *Mirror) Propose(mv livedto.MoveRequest) (livedto.Envelope, error) {
	m.mu.Lock()
	if !m.role.IsPlayer() {
		m.mu.Unlock()
		return livedto.Envelope{}, ErrSpectating
	}
	if m.fen == "" {
		m.mu.Unlock()
		return livedto.Envelope{}, ErrNoPosition
	}
	side, err := m.rules.SideToMove(m.fen)
	if err != nil {
		m.mu.Unlock()
		return livedto.Envelope{}, err
	}
	if side != m.role {
		m.mu.Unlock()
		return livedto.Envelope{}, fmt.Errorf("%w: %s to move", ErrNotYourTurn, side)
	}
	next, err := m.rules.LegalMove(m.fen, mv)
	if err != nil {
		m.mu.Unlock()
		return livedto.Envelope{}, err
	}
	m.fen = next
	m.speculative = true
	m.rejected = nil
	view, cb := m.viewLocked(), m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(view)
	}
	return livedto.MoveSubmitted(mv), nil
}

func (m *Mirror) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Confirmed is the last position the server vouched for.
func (m *Mirror) Confirmed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}

func (m *Mirror) viewLocked() View {
	v := View{Role: m.role, FEN: m.fen, Speculative: m.speculative}
	if m.lastMove != nil {
		mv := *m.lastMove
		v.LastMove = &mv
	}
	if m.rejected != nil {
		e := *m.rejected
		v.Rejected = &e
	}
	return v
}
