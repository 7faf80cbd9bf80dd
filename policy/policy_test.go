package policy

import (
	"math/rand"
	"testing"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/search"
)

func rootWithChildren(visits ...int) *search.Node {
	root := search.NewRoot(board.InitialPosition())
	root.Expanded = true
	children := make([]*search.Node, len(visits))
	for i, v := range visits {
		children[i] = &search.Node{
			IncomingMove: board.Move{From: board.Square{Row: i, Col: 0}, To: board.Square{Row: i, Col: 1}},
			PolicyIndex:  i,
			VisitCount:   v,
			Parent:       root,
		}
	}
	root.Children = children
	return root
}

func TestVisitCountsReflectsChildren(t *testing.T) {
	root := rootWithChildren(3, 7, 0)
	counts := VisitCounts(root)
	if counts[0] != 3 || counts[1] != 7 || counts[2] != 0 {
		t.Fatalf("unexpected visit counts: %v", counts)
	}
}

func TestExtractZeroTemperatureIsOneHotOnMax(t *testing.T) {
	root := rootWithChildren(3, 7, 2)
	dist, err := Extract(root, 0)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for i, p := range dist.Probabilities {
		want := float32(0)
		if i == 1 {
			want = 1
		}
		if p != want {
			t.Fatalf("Probabilities[%d] = %v, want %v", i, p, want)
		}
	}
}

func TestExtractZeroTemperatureTieBreaksByEnumerationOrder(t *testing.T) {
	root := rootWithChildren(5, 5, 1)
	dist, err := Extract(root, 0)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if dist.Probabilities[0] != 1 {
		t.Fatalf("expected the first tied child to win, got %v", dist.Probabilities)
	}
}

func TestExtractPositiveTemperatureNormalizesAndSkews(t *testing.T) {
	root := rootWithChildren(1, 3)
	dist, err := Extract(root, 1)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	var sum float32
	for _, p := range dist.Probabilities {
		sum += p
	}
	if diff := sum - 1; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("probabilities sum to %v, want 1", sum)
	}
	if dist.Probabilities[1] <= dist.Probabilities[0] {
		t.Fatalf("expected the more-visited child to carry more probability: %v", dist.Probabilities)
	}
}

func TestExtractPositiveTemperatureRejectsAllZeroVisits(t *testing.T) {
	root := rootWithChildren(0, 0, 0)
	if _, err := Extract(root, 1); err == nil {
		t.Fatal("expected an error extracting a positive-temperature distribution from an all-zero-visit root")
	}
}

func TestExtractRejectsEmptyRoot(t *testing.T) {
	root := search.NewRoot(board.InitialPosition())
	if _, err := Extract(root, 1); err == nil {
		t.Fatal("expected an error extracting a distribution from a childless root")
	}
}

func TestArgmaxMatchesZeroTemperatureExtract(t *testing.T) {
	root := rootWithChildren(2, 9, 4)
	move, err := Argmax(root)
	if err != nil {
		t.Fatalf("Argmax returned error: %v", err)
	}
	if move != root.Children[1].IncomingMove {
		t.Fatalf("Argmax = %v, want the move of the most-visited child", move)
	}
}

func TestSampleAlwaysReturnsAMoveInDistribution(t *testing.T) {
	root := rootWithChildren(1, 1, 1, 1)
	dist, err := Extract(root, 1)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	seen := make(map[board.Move]bool)
	for i := 0; i < 200; i++ {
		move, err := Sample(rng, dist)
		if err != nil {
			t.Fatalf("Sample returned error: %v", err)
		}
		seen[move] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected sampling to eventually cover all %d moves, saw %d", 4, len(seen))
	}
}

func TestSelectMoveAtZeroTemperatureIsDeterministic(t *testing.T) {
	root := rootWithChildren(2, 9, 4)
	rng := rand.New(rand.NewSource(42))
	move, err := SelectMove(rng, root, 0)
	if err != nil {
		t.Fatalf("SelectMove returned error: %v", err)
	}
	want, _ := Argmax(root)
	if move != want {
		t.Fatalf("SelectMove(tau=0) = %v, want %v", move, want)
	}
}
