package search

import (
	"context"
	"errors"
	"testing"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/encode"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/rules"
)

func TestSearchRootVisitCountMatchesSimulations(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})
	pos := board.InitialPosition()

	const sims = 64
	root, err := eng.Search(context.Background(), pos, board.AttackerSide, sims)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if root.VisitCount != sims {
		t.Fatalf("root.VisitCount = %d, want %d", root.VisitCount, sims)
	}

	var childVisits int
	for _, c := range root.Children {
		childVisits += c.VisitCount
	}
	if childVisits != sims-1 {
		t.Fatalf("sum of child visits = %d, want %d (one simulation stops at the root itself)", childVisits, sims-1)
	}
}

func TestSearchExpandsRootWithLegalMoveCount(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})
	pos := board.InitialPosition()

	root, err := eng.Search(context.Background(), pos, board.AttackerSide, 1)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if !root.Expanded {
		t.Fatal("expected root to be expanded after at least one simulation")
	}
	if got, want := len(root.Children), 40; got != want {
		t.Fatalf("root has %d children, want %d legal attacker moves", got, want)
	}

	var priorSum float32
	for _, c := range root.Children {
		priorSum += c.Prior
	}
	if diff := priorSum - 1; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("children priors sum to %v, want ~1", priorSum)
	}
}

func TestTreeReuseAcrossConsecutiveSearches(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})
	pos := board.InitialPosition()

	first, err := eng.Search(context.Background(), pos, board.AttackerSide, 16)
	if err != nil {
		t.Fatalf("first Search returned error: %v", err)
	}
	second, err := eng.Search(context.Background(), pos, board.AttackerSide, 16)
	if err != nil {
		t.Fatalf("second Search returned error: %v", err)
	}
	if first != second {
		t.Fatal("expected the same root instance to be reused for an identical position")
	}
	if second.VisitCount != 32 {
		t.Fatalf("expected accumulated visit count of 32 after two 16-sim searches, got %d", second.VisitCount)
	}
}

func TestSearchDiscardsTreeForDifferentPosition(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})
	pos := board.InitialPosition()

	if _, err := eng.Search(context.Background(), pos, board.AttackerSide, 8); err != nil {
		t.Fatalf("first Search returned error: %v", err)
	}

	moves := rules.LegalMoves(pos, board.AttackerSide)
	next, err := rules.Apply(pos, moves[0])
	if err != nil {
		t.Fatalf("failed to construct a different position: %v", err)
	}
	root, err := eng.Search(context.Background(), next, next.SideToMove(), 8)
	if err != nil {
		t.Fatalf("second Search returned error: %v", err)
	}
	if root.VisitCount != 8 {
		t.Fatalf("expected a fresh root with 8 visits, got %d", root.VisitCount)
	}
}

func TestSearchStopsEarlyOnTerminalRoot(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})

	var pos board.Position
	pos = pos.Set(board.Square{Row: 0, Col: 0}, board.King)
	pos = pos.Set(board.Square{Row: 6, Col: 6}, board.Attacker)

	root, err := eng.Search(context.Background(), pos, board.DefenderSide, 100)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if !root.Terminal {
		t.Fatal("expected root to be flagged terminal for a king-on-corner position")
	}
	if root.TerminalValue != 1 {
		t.Fatalf("defender to move with king already on a corner should have value +1, got %v", root.TerminalValue)
	}
	if root.VisitCount != 1 {
		t.Fatalf("a terminal root should stop after a single simulation, got %d visits", root.VisitCount)
	}
}

func TestSearchPropagatesEvaluatorError(t *testing.T) {
	boom := inference.Func(func(ctx context.Context, tensor [encode.FloatSize]float32) (inference.Result, error) {
		return inference.Result{}, context.DeadlineExceeded
	})
	eng := New(boom, Config{})
	pos := board.InitialPosition()

	_, err := eng.Search(context.Background(), pos, board.AttackerSide, 4)
	if err == nil {
		t.Fatal("expected an error when the evaluator fails")
	}
}

func TestSearchReturnsErrCancelledOnCancelledContext(t *testing.T) {
	eng := New(inference.Uniform{}, Config{BatchSize: 10})
	pos := board.InitialPosition()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Search(ctx, pos, board.AttackerSide, 100)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the wrapped context error to satisfy errors.Is(err, context.Canceled), got %v", err)
	}
}

func TestSearchRejectsInvalidPosition(t *testing.T) {
	eng := New(inference.Uniform{}, Config{})
	var pos board.Position
	for i := 0; i < 9; i++ {
		pos = pos.Set(board.Square{Row: i / board.Size, Col: i % board.Size}, board.Attacker)
	}
	if _, err := eng.Search(context.Background(), pos, board.AttackerSide, 1); err == nil {
		t.Fatal("expected an error for a position with more than 8 attackers")
	}
}
