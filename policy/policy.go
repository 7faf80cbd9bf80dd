// Package policy extracts move distributions from a search tree's root and
// samples moves from them, grounded on this codebase's other tree-search
// engine's visit-count extraction and cumulative-probability sampling.
package policy

import (
	"errors"
	"math"
	"math/rand"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/search"
)

// ErrEmptyRoot is returned when a distribution is requested from a root
// with no children, i.e. an uninitialized or terminal root.
var ErrEmptyRoot = errors.New("policy: root has no children")

// Distribution pairs each of the root's children with a sampling
// probability, in the root's stable enumeration order.
type Distribution struct {
	Moves         []board.Move
	PolicyIndices []int
	Probabilities []float32
}

// VisitCounts returns the raw visit count of every child of root, keyed by
// policy index, alongside the total number of child visits. This is the
// "visit distribution" produced directly by a search, distinct from the
// temperature-shaped Distribution used for move sampling.
func VisitCounts(root *search.Node) map[int]int {
	counts := make(map[int]int, len(root.Children))
	for _, c := range root.Children {
		counts[c.PolicyIndex] = c.VisitCount
	}
	return counts
}

// Extract builds a move-sampling Distribution from root at temperature tau.
//
// At tau == 0 the distribution is one-hot on the child with maximum visit
// count, ties broken by enumeration order. For tau > 0, probabilities are
// proportional to N(c)^(1/tau), normalized to sum to 1. If every child has
// zero visits, this can only happen on an uninitialized root, and Extract
// returns ErrEmptyRoot rather than manufacture a distribution no search
// actually produced. If root has no children at all, Extract also returns
// ErrEmptyRoot.
func Extract(root *search.Node, tau float32) (Distribution, error) {
	if len(root.Children) == 0 {
		return Distribution{}, ErrEmptyRoot
	}

	dist := Distribution{
		Moves:         make([]board.Move, len(root.Children)),
		PolicyIndices: make([]int, len(root.Children)),
		Probabilities: make([]float32, len(root.Children)),
	}
	for i, c := range root.Children {
		dist.Moves[i] = c.IncomingMove
		dist.PolicyIndices[i] = c.PolicyIndex
	}

	if tau == 0 {
		best := 0
		for i, c := range root.Children {
			if c.VisitCount > root.Children[best].VisitCount {
				best = i
			}
		}
		dist.Probabilities[best] = 1
		return dist, nil
	}

	weights := make([]float64, len(root.Children))
	var sum float64
	invTau := 1 / float64(tau)
	for i, c := range root.Children {
		w := math.Pow(float64(c.VisitCount), invTau)
		weights[i] = w
		sum += w
	}
	if sum == 0 {
		return Distribution{}, ErrEmptyRoot
	}
	for i, w := range weights {
		dist.Probabilities[i] = float32(w / sum)
	}
	return dist, nil
}

// Argmax returns the move of the child with maximum visit count, ties
// broken by enumeration order. Equivalent to sampling Extract(root, 0).
func Argmax(root *search.Node) (board.Move, error) {
	if len(root.Children) == 0 {
		return board.Move{}, ErrEmptyRoot
	}
	best := root.Children[0]
	for _, c := range root.Children[1:] {
		if c.VisitCount > best.VisitCount {
			best = c
		}
	}
	return best.IncomingMove, nil
}

// Sample draws a move from dist using rng via cumulative-probability
// sampling: a single draw against the running sum of probabilities in
// enumeration order.
func Sample(rng *rand.Rand, dist Distribution) (board.Move, error) {
	if len(dist.Moves) == 0 {
		return board.Move{}, ErrEmptyRoot
	}
	r := rng.Float32()
	var cumulative float32
	for i, p := range dist.Probabilities {
		cumulative += p
		if r < cumulative {
			return dist.Moves[i], nil
		}
	}
	return dist.Moves[len(dist.Moves)-1], nil
}

// SelectMove extracts a Distribution from root at temperature tau and
// samples a move from it in one step; at tau == 0 this is equivalent to
// Argmax.
func SelectMove(rng *rand.Rand, root *search.Node, tau float32) (board.Move, error) {
	dist, err := Extract(root, tau)
	if err != nil {
		return board.Move{}, err
	}
	return Sample(rng, dist)
}
