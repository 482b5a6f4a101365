package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/park285/cheese-liveboard/pkg/livedto"
)

func mv(from, to string) livedto.MoveRequest { return livedto.MoveRequest{From: from, To: to} }

func TestStartPositionWhiteToMove(t *testing.T) {
	c := NewChess()
	side, err := c.SideToMove(c.StartPosition())
	if err != nil { t.Fatalf("SideToMove: %v", err) }
	if side != livedto.FirstPlayer { t.Fatalf("expected FIRST_PLAYER to move, got %s", side) }
	if term, _ := c.IsTerminal(c.StartPosition()); term {
		t.Fatalf("start position must not be terminal")
	}
}

func TestLegalMoveFlipsSide(t *testing.T) {
	c := NewChess()
	fen, err := c.LegalMove(c.StartPosition(), mv("e2", "e4"))
	if err != nil { t.Fatalf("LegalMove: %v", err) }
	if !strings.HasPrefix(fen, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Fatalf("unexpected fen after e2e4: %s", fen)
	}
	side, err := c.SideToMove(fen)
	if err != nil || side != livedto.SecondPlayer { t.Fatalf("expected SECOND_PLAYER, got %s (%v)", side, err) }
}

func TestIllegalAndMalformedMoves(t *testing.T) {
	c := NewChess()
	cases := []livedto.MoveRequest{
		mv("e2", "e5"),
		mv("e7", "e5"),
		mv("z9", "e4"),
		mv("", ""),
		{From: "e2", To: "e4", Promotion: "k"},
	}
	for _, m := range cases {
		if _, err := c.LegalMove(c.StartPosition(), m); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%v: expected ErrIllegalMove, got %v", m, err)
		}
	}
}

func TestPromotionIgnoredOnNonPromotionMove(t *testing.T) {
	c := NewChess()
	fen, err := c.LegalMove(c.StartPosition(), livedto.MoveRequest{From: "e2", To: "e4", Promotion: "q"})
	if err != nil { t.Fatalf("expected promotion hint to be ignored: %v", err) }
	if side, _ := c.SideToMove(fen); side != livedto.SecondPlayer {
		t.Fatalf("expected black to move after e2e4")
	}
}

func TestPromotionApplied(t *testing.T) {
	c := NewChess()
	fen, err := c.LegalMove("8/P7/8/8/8/8/8/k6K w - - 0 1", livedto.MoveRequest{From: "a7", To: "a8", Promotion: "q"})
	if err != nil { t.Fatalf("promotion: %v", err) }
	if !strings.HasPrefix(fen, "Q7/") { t.Fatalf("expected queen on a8, got %s", fen) }
}

func TestFoolsMateIsTerminal(t *testing.T) {
	c := NewChess()
	fen := c.StartPosition()
	var err error
	for _, m := range []livedto.MoveRequest{mv("f2", "f3"), mv("e7", "e5"), mv("g2", "g4"), mv("d8", "h4")} {
		fen, err = c.LegalMove(fen, m)
		if err != nil { t.Fatalf("%v: %v", m, err) }
	}
	o, err := c.Outcome(fen)
	if err != nil { t.Fatalf("Outcome: %v", err) }
	if o.Result != "black" || o.Method != "checkmate" {
		t.Fatalf("expected black checkmate, got %+v", o)
	}
	if term, _ := c.IsTerminal(fen); !term { t.Fatalf("expected terminal position") }
}

func TestInvalidFEN(t *testing.T) {
	c := NewChess()
	if err := c.Validate("not a fen"); !errors.Is(err, ErrInvalidFEN) {
		t.Fatalf("expected ErrInvalidFEN, got %v", err)
	}
	if _, err := c.SideToMove("garbage"); err == nil {
		t.Fatalf("expected error for garbage fen")
	}
}

func TestDiagram(t *testing.T) {
	c := NewChess()
	d, err := c.Diagram(c.StartPosition())
	if err != nil { t.Fatalf("Diagram: %v", err) }
	lines := strings.Split(strings.TrimRight(d, "\n"), "\n")
	if len(lines) != 9 { t.Fatalf("expected 9 lines, got %d:\n%s", len(lines), d) }
	if !strings.HasPrefix(lines[4], "4 . . . . . . . .") { t.Fatalf("rank 4 should be empty: %q", lines[4]) }
	if _, err := c.Diagram("not a fen"); !errors.Is(err, ErrInvalidFEN) {
		t.Fatalf("expected ErrInvalidFEN, got %v", err)
	}
}

func TestSANReplay(t *testing.T) {
	c := NewChess()
	san, err := c.SAN(c.StartPosition(), []string{"e2e4", "e7e5q", "g1f3"})
	if err != nil { t.Fatalf("SAN: %v", err) }
	if strings.Join(san, " ") != "e4 e5 Nf3" { t.Fatalf("unexpected SAN: %v", san) }
	if _, err := c.SAN(c.StartPosition(), []string{"e2e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestOpeningNamesKnownLine(t *testing.T) {
	c := NewChess()
	code, title := c.Opening(StartFEN, []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	if code == "" || !strings.Contains(title, "Ruy") {
		t.Fatalf("opening = %q %q", code, title)
	}
	if code, _ := c.Opening(StartFEN, nil); code != "" {
		t.Fatalf("empty game named %q", code)
	}
	if code, _ := c.Opening("8/8/8/8/8/8/8/K6k w - - 0 1", []string{"a1a2"}); code != "" {
		t.Fatalf("non-standard start named %q", code)
	}
}
