// Package rules adapts github.com/corentings/chess/v2 to the narrow rules-engine
// capability the session coordinator consumes: legality, side to move, terminal detection.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/park285/cheese-liveboard/pkg/livedto"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid position")
	ErrBadSquare   = fmt.Errorf("%w: malformed square", ErrIllegalMove)
)

// StartFEN is the canonical starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Outcome describes how a terminal position ended. Result is "white", "black", "draw" or "".
type Outcome struct {
	Result string
	Method string
}

// Terminal reports whether the outcome ends the game.
func (o Outcome) Terminal() bool { return o.Result != "" }

// Chess is a stateless rules engine; every call rebuilds a game from the FEN it is given.
type Chess struct{}

func NewChess() *Chess { return &Chess{} }

func (c *Chess) StartPosition() string { return StartFEN }

// LegalMove applies mv to fen and returns the resulting position.
// A promotion piece on a move that is not a promotion is ignored, matching what
// browser clients send when they always attach promotion "q".
func (c *Chess) LegalMove(fen string, mv livedto.MoveRequest) (string, error) {
	if err := validateMove(mv); err != nil {
		return "", err
	}
	game, err := load(fen)
	if err != nil {
		return "", err
	}
	if err := game.PushNotationMove(mv.UCI(), nchess.UCINotation{}, nil); err != nil {
		if mv.Promotion == "" {
			return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, mv.UCI(), err)
		}
		game, err = load(fen)
		if err != nil {
			return "", err
		}
		plain := mv.WithoutPromotion()
		if perr := game.PushNotationMove(plain.UCI(), nchess.UCINotation{}, nil); perr != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, mv.UCI(), perr)
		}
	}
	return game.FEN(), nil
}

// SideToMove maps the FEN's active color onto the playing role that owns it.
func (c *Chess) SideToMove(fen string) (livedto.Role, error) {
	game, err := load(fen)
	if err != nil {
		return "", err
	}
	return roleFrom(game.Position().Turn()), nil
}

func (c *Chess) IsTerminal(fen string) (bool, error) {
	o, err := c.Outcome(fen)
	if err != nil {
		return false, err
	}
	return o.Terminal(), nil
}

func (c *Chess) Outcome(fen string) (Outcome, error) {
	game, err := load(fen)
	if err != nil {
		return Outcome{}, err
	}
	return outcomeFrom(game), nil
}

// Validate reports whether fen parses as a position.
func (c *Chess) Validate(fen string) error {
	_, err := load(fen)
	return err
}

func load(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

func roleFrom(c nchess.Color) livedto.Role {
	if c == nchess.White {
		return livedto.FirstPlayer
	}
	return livedto.SecondPlayer
}

func outcomeFrom(game *nchess.Game) Outcome {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return Outcome{Result: "white", Method: methodName(game)}
	case nchess.BlackWon:
		return Outcome{Result: "black", Method: methodName(game)}
	case nchess.Draw:
		return Outcome{Result: "draw", Method: methodName(game)}
	default:
		return Outcome{}
	}
}

func methodName(game *nchess.Game) string {
	return strings.ToLower(game.Method().String())
}

func validateMove(mv livedto.MoveRequest) error {
	if !isSquare(mv.From) || !isSquare(mv.To) {
		return fmt.Errorf("%w: %q -> %q", ErrBadSquare, mv.From, mv.To)
	}
	switch strings.ToLower(strings.TrimSpace(mv.Promotion)) {
	case "", "q", "r", "b", "n":
		return nil
	default:
		return fmt.Errorf("%w: promotion %q", ErrIllegalMove, mv.Promotion)
	}
}

func isSquare(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// Diagram renders fen as an 8x8 text board, rank 8 first, "." for empty squares.
func (c *Chess) Diagram(fen string) (string, error) {
	game, err := load(fen)
	if err != nil {
		return "", err
	}
	board := game.Position().Board()
	var b strings.Builder
	for rank := nchess.Rank8; rank >= nchess.Rank1; rank-- {
		b.WriteString(rank.String())
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			b.WriteByte(' ')
			if p := board.Piece(nchess.NewSquare(file, rank)); p != nchess.NoPiece {
				b.WriteString(p.String())
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
		if rank == nchess.Rank1 {
			break
		}
	}
	b.WriteString("  a b c d e f g h\n")
	return b.String(), nil
}

// SAN replays UCI moves from start and returns them in standard algebraic notation.
// Moves recorded with a stray promotion suffix are replayed without it.
func (c *Chess) SAN(start string, moves []string) ([]string, error) {
	game, err := load(start)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(moves))
	for _, u := range moves {
		san, err := pushUCI(game, u)
		if err != nil && len(u) == 5 {
			san, err = pushUCI(game, u[:4])
		}
		if err != nil {
			return out, fmt.Errorf("%w: %s: %v", ErrIllegalMove, u, err)
		}
		out = append(out, san)
	}
	return out, nil
}

func pushUCI(game *nchess.Game, u string) (string, error) {
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, u)
	if err != nil {
		return "", err
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return "", err
	}
	return san, nil
}

var ecoBook = opening.NewBookECO()

// Opening names the ECO opening reached by moves from the start position.
// Games from any other start position, or lines the book does not know, return empty strings.
func (c *Chess) Opening(start string, moves []string) (code, title string) {
	if start != StartFEN || len(moves) == 0 || ecoBook == nil {
		return "", ""
	}
	game, err := load(start)
	if err != nil {
		return "", ""
	}
	for _, u := range moves {
		if _, err := pushUCI(game, u); err != nil {
			if len(u) != 5 {
				break
			}
			if _, err := pushUCI(game, u[:4]); err != nil {
				break
			}
		}
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
