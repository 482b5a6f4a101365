package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-liveboard/internal/obslog"
	"github.com/park285/cheese-liveboard/internal/rules"
	"github.com/park285/cheese-liveboard/pkg/livedto"
	"go.uber.org/zap"
)

// Coordinator serializes every connect, disconnect, move and reset against one Session.
type Coordinator struct {
	mu       sync.Mutex
	id       string
	engine   Engine
	notifier Notifier
	sink     ResultSink
	opts     Options
	sess     *Session

	// archive bookkeeping for the current game; never sent to clients
	gameID    string
	moves     []string
	startedAt time.Time
	recorded  bool
}

func NewCoordinator(id string, engine Engine, notifier Notifier, opts Options) (*Coordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("rules engine required")
	}
	if strings.TrimSpace(id) == "" {
		id = DefaultSessionID
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResetPolicy == "" {
		opts.ResetPolicy = ResetAnyone
	}
	start, err := startPosition(engine)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		id:       id,
		engine:   engine,
		notifier: notifier,
		opts:     opts,
		sess:     newSession(start),
		gameID:   uuid.NewString(),
	}, nil
}

// AttachResultSink wires the archive that receives finished games.
func (c *Coordinator) AttachResultSink(s ResultSink) {
	if c != nil {
		c.mu.Lock()
		c.sink = s
		c.mu.Unlock()
	}
}

func (c *Coordinator) ID() string { return c.id }

// Connect assigns a role to a new connection and pushes it the live position.
func (c *Coordinator) Connect(connID string) (livedto.Role, error) {
	connID = strings.TrimSpace(connID)
	if connID == "" {
		return "", ErrInvalidConnection
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	wasFull := c.sess.full()
	role := c.sess.occupy(connID)
	c.notifier.Unicast(connID, livedto.RoleAssigned(role))
	c.notifier.Unicast(connID, livedto.PositionSync(c.sess.position))

	obslog.L().Info("session_connect",
		zap.String("session_id", c.id),
		zap.String("conn_id", connID),
		zap.String("role", string(role)),
	)
	if !wasFull && c.sess.full() {
		obslog.L().Info("session_in_progress",
			zap.String("session_id", c.id),
			zap.String("first_player", c.sess.first),
			zap.String("second_player", c.sess.second),
		)
	}
	return role, nil
}

// Disconnect frees the slot held by connID. Other connections are not told.
func (c *Coordinator) Disconnect(connID string) livedto.Role {
	connID = strings.TrimSpace(connID)
	c.mu.Lock()
	defer c.mu.Unlock()
	role := c.sess.release(connID)
	obslog.L().Info("session_disconnect",
		zap.String("session_id", c.id),
		zap.String("conn_id", connID),
		zap.String("role", string(role)),
	)
	return role
}

// SubmitMove runs the turn gate and rules check for one request.
// Accepted moves are multicast with the new position; rejections go back to the requester only.
func (c *Coordinator) SubmitMove(ctx context.Context, connID string, mv livedto.MoveRequest) (Result, error) {
	connID = strings.TrimSpace(connID)
	c.mu.Lock()
	res, rec, err := c.arbitrate(connID, mv)
	sink := c.sink
	c.mu.Unlock()

	if rec != nil && sink != nil {
		if serr := sink.SaveResult(ctx, *rec); serr != nil {
			obslog.L().Error("game_archive_error", zap.String("game_id", rec.GameID), zap.Error(serr))
		} else {
			obslog.L().Info("game_archived", zap.String("game_id", rec.GameID), zap.String("result", rec.Result), zap.String("method", rec.Method))
		}
	}
	return res, err
}

func (c *Coordinator) arbitrate(connID string, mv livedto.MoveRequest) (Result, *GameRecord, error) {
	cur := c.sess.position

	var side livedto.Role
	err := guard(func() (e error) { side, e = c.engine.SideToMove(cur); return })
	if err != nil {
		return c.reject(connID, mv, livedto.ReasonEngineFault, fault(err)), nil, fault(err)
	}
	if holder := c.sess.slot(side); holder == "" || holder != connID {
		err := fmt.Errorf("%w: %s to move", ErrOutOfTurn, side)
		return c.reject(connID, mv, livedto.ReasonOutOfTurn, err), nil, err
	}

	// only the side to move ever reaches the concluded gate
	if c.opts.GateConcluded {
		var terminal bool
		err := guard(func() (e error) { terminal, e = c.engine.IsTerminal(cur); return })
		if err != nil {
			return c.reject(connID, mv, livedto.ReasonEngineFault, fault(err)), nil, fault(err)
		}
		if terminal {
			return c.reject(connID, mv, livedto.ReasonIllegalMove, ErrGameConcluded), nil, ErrGameConcluded
		}
	}

	var next string
	err = guard(func() (e error) { next, e = c.engine.LegalMove(cur, mv); return })
	if err != nil {
		if errors.Is(err, ErrEngineFault) || errors.Is(err, rules.ErrInvalidFEN) {
			err = fault(err)
			return c.reject(connID, mv, livedto.ReasonEngineFault, err), nil, err
		}
		err = fmt.Errorf("%w: %v", ErrIllegalMove, err)
		return c.reject(connID, mv, livedto.ReasonIllegalMove, err), nil, err
	}

	c.sess.position = next
	if len(c.moves) == 0 {
		c.startedAt = c.opts.Now()
	}
	c.moves = append(c.moves, mv.UCI())

	c.notifier.Multicast(livedto.MoveBroadcast(mv))
	c.notifier.Multicast(livedto.PositionSync(next))

	obslog.L().Info("move_accepted",
		zap.String("session_id", c.id),
		zap.String("conn_id", connID),
		zap.String("side", string(side)),
		zap.String("uci", mv.UCI()),
		zap.String("fen", next),
	)
	return Result{Accepted: true, Position: next}, c.recordIfTerminal(next), nil
}

func (c *Coordinator) reject(connID string, mv livedto.MoveRequest, reason livedto.Reason, cause error) Result {
	cur := c.sess.position
	if reason == livedto.ReasonEngineFault {
		obslog.L().Error("engine_fault",
			zap.String("session_id", c.id),
			zap.String("conn_id", connID),
			zap.String("uci", mv.UCI()),
			zap.String("fen", cur),
			zap.Error(cause),
		)
	} else {
		obslog.L().Info("move_rejected",
			zap.String("session_id", c.id),
			zap.String("conn_id", connID),
			zap.String("reason", string(reason)),
			zap.String("uci", mv.UCI()),
			zap.NamedError("cause", cause),
		)
	}
	c.notifier.Unicast(connID, livedto.MoveRejected(mv, reason, c.rejectText(mv, reason.Outward())))
	c.notifier.Unicast(connID, livedto.PositionSync(cur))
	return Result{Accepted: false, Position: cur, Reason: reason.Outward()}
}

func (c *Coordinator) rejectText(mv livedto.MoveRequest, reason livedto.Reason) string {
	key := "move.rejected.illegal"
	if reason == livedto.ReasonOutOfTurn {
		key = "move.rejected.out_of_turn"
	}
	fallback := fmt.Sprintf("Invalid move: %s", mv)
	if c.opts.Messages == nil {
		return fallback
	}
	txt, err := c.opts.Messages.Render(key, map[string]any{"From": mv.From, "To": mv.To, "Move": mv.String()})
	if err != nil {
		return fallback
	}
	return txt
}

func (c *Coordinator) recordIfTerminal(fen string) *GameRecord {
	if c.recorded {
		return nil
	}
	oc, ok := c.engine.(interface {
		Outcome(fen string) (rules.Outcome, error)
	})
	if !ok {
		return nil
	}
	var out rules.Outcome
	if err := guard(func() (e error) { out, e = oc.Outcome(fen); return }); err != nil || !out.Terminal() {
		return nil
	}
	c.recorded = true
	obslog.L().Info("session_concluded",
		zap.String("session_id", c.id),
		zap.String("game_id", c.gameID),
		zap.String("result", out.Result),
		zap.String("method", out.Method),
	)
	return &GameRecord{
		GameID:       c.gameID,
		SessionID:    c.id,
		FirstPlayer:  c.sess.first,
		SecondPlayer: c.sess.second,
		Result:       out.Result,
		Method:       out.Method,
		FinalFEN:     fen,
		MovesUCI:     append([]string(nil), c.moves...),
		StartedAt:    c.startedAt,
		EndedAt:      c.opts.Now(),
	}
}

// Reset restores the start position without touching seat occupancy.
func (c *Coordinator) Reset(connID string) error {
	connID = strings.TrimSpace(connID)
	c.mu.Lock()
	defer c.mu.Unlock()

	role := c.sess.roleOf(connID)
	if c.opts.ResetPolicy == ResetPlayers && !role.IsPlayer() {
		obslog.L().Warn("session_reset_denied", zap.String("session_id", c.id), zap.String("conn_id", connID))
		return ErrResetNotAllowed
	}
	start, err := startPosition(c.engine)
	if err != nil {
		return err
	}
	c.sess.position = start
	c.gameID = uuid.NewString()
	c.moves = nil
	c.startedAt = time.Time{}
	c.recorded = false

	c.notifier.Multicast(livedto.ResetBroadcast(start))
	c.notifier.Multicast(livedto.PositionSync(start))
	obslog.L().Info("session_reset",
		zap.String("session_id", c.id),
		zap.String("conn_id", connID),
		zap.String("role", string(role)),
		zap.String("game_id", c.gameID),
	)
	return nil
}

// Position returns a copy of the authoritative position.
func (c *Coordinator) Position() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.position
}

// RoleOf reports the role connID currently holds.
func (c *Coordinator) RoleOf(connID string) livedto.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.roleOf(strings.TrimSpace(connID))
}

// Snapshot is a consistent copy of the session for read-only callers.
type Snapshot struct {
	SessionID    string
	Position     string
	FirstPlayer  string
	SecondPlayer string
	State        State
	SideToMove   livedto.Role
	Outcome      rules.Outcome
	MoveCount    int
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		SessionID:    c.id,
		Position:     c.sess.position,
		FirstPlayer:  c.sess.first,
		SecondPlayer: c.sess.second,
		MoveCount:    len(c.moves),
	}
	_ = guard(func() (e error) { snap.SideToMove, e = c.engine.SideToMove(snap.Position); return })

	terminal := false
	if oc, ok := c.engine.(interface {
		Outcome(fen string) (rules.Outcome, error)
	}); ok {
		_ = guard(func() (e error) { snap.Outcome, e = oc.Outcome(snap.Position); return })
		terminal = snap.Outcome.Terminal()
	} else {
		_ = guard(func() (e error) { terminal, e = c.engine.IsTerminal(snap.Position); return })
	}

	switch {
	case terminal:
		snap.State = StateConcluded
	case c.sess.full():
		snap.State = StateInProgress
	default:
		snap.State = StateWaiting
	}
	return snap
}

// DTO converts the snapshot into its wire form.
func (s Snapshot) DTO() livedto.StateSnapshot {
	return livedto.StateSnapshot{
		SessionID:         s.SessionID,
		FEN:               s.Position,
		State:             string(s.State),
		SideToMove:        s.SideToMove,
		FirstPlayerTaken:  s.FirstPlayer != "",
		SecondPlayerTaken: s.SecondPlayer != "",
		Outcome:           s.Outcome.Result,
		MoveCount:         s.MoveCount,
	}
}

// guard turns an engine panic into ErrEngineFault.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrEngineFault, r)
		}
	}()
	return fn()
}

func fault(err error) error {
	if errors.Is(err, ErrEngineFault) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEngineFault, err)
}

func startPosition(engine Engine) (string, error) {
	var start string
	if err := guard(func() error { start = engine.StartPosition(); return nil }); err != nil {
		return "", err
	}
	if strings.TrimSpace(start) == "" {
		return "", fmt.Errorf("%w: empty start position", ErrEngineFault)
	}
	return start, nil
}
