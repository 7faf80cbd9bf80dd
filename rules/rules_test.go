package rules

import (
	"testing"

	"github.com/tafl-zero/brandubh/board"
)

func TestLegalMovesCountOnInitialPosition(t *testing.T) {
	pos := board.InitialPosition()
	moves := LegalMoves(pos, board.AttackerSide)
	if got, want := len(moves), 40; got != want {
		t.Fatalf("expected %d legal attacker moves on the initial position, got %d", want, got)
	}
}

func TestLegalMovesEmptyWhenNoPiecesOfSide(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 3, Col: 3}, board.King)
	moves := LegalMoves(pos, board.AttackerSide)
	if len(moves) != 0 {
		t.Fatalf("expected no legal moves for a side with no pieces, got %d", len(moves))
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	pos := board.InitialPosition()
	_, err := Apply(pos, board.Move{From: board.Square{Row: 0, Col: 0}, To: board.Square{Row: 0, Col: 1}})
	if err == nil {
		t.Fatal("expected an error applying a move from an empty square")
	}
}

func TestApplyMovesPieceAndFlipsSideToMove(t *testing.T) {
	pos := board.InitialPosition()
	next, err := Apply(pos, board.Move{From: board.Square{Row: 3, Col: 0}, To: board.Square{Row: 3, Col: 0}})
	_ = next
	if err == nil {
		t.Fatal("a zero-length move should be rejected")
	}

	next, err = Apply(pos, board.Move{From: board.Square{Row: 3, Col: 1}, To: board.Square{Row: 1, Col: 1}})
	if err != nil {
		t.Fatalf("expected legal move to apply cleanly, got %v", err)
	}
	if next.At(board.Square{Row: 3, Col: 1}) != board.Empty {
		t.Fatal("source square should be empty after the move")
	}
	if next.At(board.Square{Row: 1, Col: 1}) != board.Attacker {
		t.Fatal("destination square should hold the moved attacker")
	}
	if next.SideToMove() != board.DefenderSide {
		t.Fatal("side to move should flip to defender after an attacker move")
	}
	if next.PieceCount(board.Attacker) != pos.PieceCount(board.Attacker) {
		t.Fatal("mover's own piece count should never change from a non-capturing move")
	}
}

func TestCaptureSandwichBetweenTwoAttackers(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 1, Col: 3}, board.Attacker)
	pos = pos.Set(board.Square{Row: 2, Col: 3}, board.Defender)
	pos = pos.Set(board.Square{Row: 4, Col: 3}, board.Attacker)
	pos = pos.Set(board.Square{Row: 6, Col: 3}, board.King) // keep the king alive, off the sandwich
	pos = pos.WithSideToMove(board.AttackerSide)

	next, err := Apply(pos, board.Move{From: board.Square{Row: 4, Col: 3}, To: board.Square{Row: 3, Col: 3}})
	if err != nil {
		t.Fatalf("expected legal move, got %v", err)
	}
	if next.At(board.Square{Row: 2, Col: 3}) != board.Empty {
		t.Fatal("defender should be captured by the sandwich")
	}
	if next.PieceCount(board.Defender) != 0 {
		t.Fatal("defender count should drop by exactly one")
	}
}

func TestCaptureAgainstHostileCorner(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 0, Col: 1}, board.Defender)
	pos = pos.Set(board.Square{Row: 5, Col: 2}, board.Attacker)
	pos = pos.Set(board.Square{Row: 6, Col: 6}, board.King)
	pos = pos.WithSideToMove(board.AttackerSide)

	next, err := Apply(pos, board.Move{From: board.Square{Row: 5, Col: 2}, To: board.Square{Row: 0, Col: 2}})
	if err != nil {
		t.Fatalf("expected legal move, got %v", err)
	}
	if next.At(board.Square{Row: 0, Col: 1}) != board.Empty {
		t.Fatal("defender sandwiched against the corner should be captured")
	}
}

func TestKingCapturedByCustodialSandwich(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 1, Col: 3}, board.Attacker)
	pos = pos.Set(board.Square{Row: 2, Col: 3}, board.King)
	pos = pos.Set(board.Square{Row: 4, Col: 3}, board.Attacker)
	pos = pos.WithSideToMove(board.AttackerSide)

	next, err := Apply(pos, board.Move{From: board.Square{Row: 4, Col: 3}, To: board.Square{Row: 3, Col: 3}})
	if err != nil {
		t.Fatalf("expected legal move, got %v", err)
	}
	if next.PieceCount(board.King) != 0 {
		t.Fatal("the king should be captured by the same sandwich rule as any other piece")
	}
	if IsTerminal(next) != AttackerWins {
		t.Fatalf("losing the king should end the game as an attacker win, got %v", IsTerminal(next))
	}
}

func TestKingOnCornerIsDefenderWin(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 0, Col: 0}, board.King)
	pos = pos.Set(board.Square{Row: 6, Col: 6}, board.Attacker)
	if got := IsTerminal(pos); got != DefenderWins {
		t.Fatalf("expected DefenderWins with king on a corner, got %v", got)
	}
}

func TestNoAttackersIsDefenderWin(t *testing.T) {
	var pos board.Position
	pos = pos.Set(board.Square{Row: 3, Col: 3}, board.King)
	pos = pos.Set(board.Square{Row: 3, Col: 4}, board.Defender)
	if got := IsTerminal(pos); got != DefenderWins {
		t.Fatalf("expected DefenderWins when no attackers remain, got %v", got)
	}
}

func TestStalemateLosesForMover(t *testing.T) {
	// Attacker to move, boxed in on all four sides plus a live king so the
	// game isn't already over for another reason.
	var pos board.Position
	pos = pos.Set(board.Square{Row: 0, Col: 0}, board.Attacker)
	pos = pos.Set(board.Square{Row: 0, Col: 1}, board.Defender)
	pos = pos.Set(board.Square{Row: 1, Col: 0}, board.Defender)
	pos = pos.Set(board.Square{Row: 6, Col: 6}, board.King)
	pos = pos.WithSideToMove(board.AttackerSide)

	if got := IsTerminal(pos); got != DefenderWins {
		t.Fatalf("attacker with no legal moves should lose (DefenderWins), got %v", got)
	}
}

func TestResultValueSignConvention(t *testing.T) {
	if ResultValue(AttackerWins, board.AttackerSide) != 1 {
		t.Fatal("attacker win from attacker's perspective should be +1")
	}
	if ResultValue(AttackerWins, board.DefenderSide) != -1 {
		t.Fatal("attacker win from defender's perspective should be -1")
	}
	if ResultValue(DefenderWins, board.DefenderSide) != 1 {
		t.Fatal("defender win from defender's perspective should be +1")
	}
	if ResultValue(DefenderWins, board.AttackerSide) != -1 {
		t.Fatal("defender win from attacker's perspective should be -1")
	}
}

func TestPieceCountsChangeOnlyThroughCaptures(t *testing.T) {
	pos := board.InitialPosition()
	for _, mv := range LegalMoves(pos, board.AttackerSide) {
		next, err := Apply(pos, mv)
		if err != nil {
			t.Fatalf("legal move %v failed to apply: %v", mv, err)
		}
		if next.PieceCount(board.Attacker) < pos.PieceCount(board.Attacker) {
			t.Fatalf("mover's own piece count decreased after move %v", mv)
		}
	}
}
