package session

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-liveboard/pkg/livedto"
)

var (
	ErrInvalidConnection = errors.New("invalid connection id")
	ErrOutOfTurn         = errors.New("not this connection's turn")
	ErrIllegalMove       = errors.New("illegal move")
	ErrEngineFault       = errors.New("rules engine fault")
	ErrGameConcluded     = errors.New("game already concluded")
	ErrResetNotAllowed   = errors.New("reset not allowed for this role")
	ErrDuplicateSession  = errors.New("session id already registered")
)

// State is the lifecycle phase of a session, derived from slots and position.
type State string

const (
	StateWaiting    State = "WAITING_FOR_PLAYERS"
	StateInProgress State = "IN_PROGRESS"
	StateConcluded  State = "CONCLUDED"
)

// ResetPolicy decides who may reset the board.
type ResetPolicy string

const (
	ResetAnyone  ResetPolicy = "anyone"
	ResetPlayers ResetPolicy = "players"
)

func ParseResetPolicy(s string) ResetPolicy {
	if ResetPolicy(s) == ResetPlayers {
		return ResetPlayers
	}
	return ResetAnyone
}

// Engine is the rules capability the coordinator depends on.
type Engine interface {
	StartPosition() string
	LegalMove(fen string, mv livedto.MoveRequest) (string, error)
	SideToMove(fen string) (livedto.Role, error)
	IsTerminal(fen string) (bool, error)
}

// Notifier delivers envelopes. Calls are made with the session lock held and must not block.
type Notifier interface {
	Unicast(connID string, env livedto.Envelope)
	Multicast(env livedto.Envelope)
}

// MessageRenderer produces human-readable notice text by catalog key.
type MessageRenderer interface {
	Render(key string, data any) (string, error)
}

// ResultSink receives a record once per game that reaches a terminal position.
type ResultSink interface {
	SaveResult(ctx context.Context, rec GameRecord) error
}

// GameRecord is a finished game as handed to the archive.
type GameRecord struct {
	GameID       string
	SessionID    string
	FirstPlayer  string
	SecondPlayer string
	Result       string
	Method       string
	FinalFEN     string
	MovesUCI     []string
	StartedAt    time.Time
	EndedAt      time.Time
}

// Result is the outcome of one move submission.
type Result struct {
	Accepted bool
	Position string
	Reason   livedto.Reason
}

// Options tunes coordinator policy.
type Options struct {
	GateConcluded bool
	ResetPolicy   ResetPolicy
	Messages      MessageRenderer
	Now           func() time.Time
}

func DefaultOptions() Options {
	return Options{GateConcluded: true, ResetPolicy: ResetAnyone}
}
