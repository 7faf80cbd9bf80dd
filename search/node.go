// Package search implements the AlphaZero-style search tree and simulation
// loop: PUCT selection with First-Play Urgency, lazy child materialization,
// evaluator-driven expansion, and perspective-flipping backup.
package search

import (
	"math"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/codec"
)

// Node is one vertex of the search tree. Children are held in a slice
// rather than a map so that enumeration order — used to break PUCT ties and
// to report policy statistics — is well-defined without an auxiliary sort;
// the order is fixed at expansion time to the legal-move enumeration order.
type Node struct {
	// Position is the node's board position. It is materialized lazily:
	// PositionKnown is false for a freshly expanded child until selection
	// actually descends into it.
	Position      board.Position
	PositionKnown bool

	// IncomingMove is the move that produced this node from its parent.
	// The zero value for the root, which has no incoming move.
	IncomingMove board.Move
	PolicyIndex  int
	Prior        float32

	VisitCount int
	ValueSum   float32

	Expanded bool
	Children []*Node

	// Logits caches the full-width raw policy logits the evaluator produced
	// when this node was expanded, unmasked. Reporting layers (engine.
	// BestMove's PolicyData) read this off the root rather than threading
	// the evaluator's output through the call stack separately.
	Logits [codec.NumPolicyIndices]float32

	Terminal      bool
	TerminalValue float32

	Parent *Node
}

// NewRoot creates an unexpanded root node for pos, with its position
// already known.
func NewRoot(pos board.Position) *Node {
	return &Node{Position: pos, PositionKnown: true}
}

// Q returns the node's mean value from its own side-to-move's perspective.
// An unvisited node's Q is defined as 0.
func (n *Node) Q() float32 {
	if n.VisitCount == 0 {
		return 0
	}
	return n.ValueSum / float32(n.VisitCount)
}

// ChildForMove returns the child reached by move, if one exists. Children
// are searched linearly; a node has at most a few dozen children so this is
// cheap and avoids the ordering hazards of a map.
func (n *Node) ChildForMove(move board.Move) (*Node, bool) {
	for _, c := range n.Children {
		if c.IncomingMove == move {
			return c, true
		}
	}
	return nil, false
}

// selectChild returns the child of n maximizing the PUCT score, breaking
// ties by picking the first child encountered in enumeration order.
func selectChild(n *Node, cpuct, fpuReduction float32) *Node {
	sqrtN := float32(math.Sqrt(float64(n.VisitCount)))
	parentQ := n.Q()

	var best *Node
	var bestScore float32
	for _, c := range n.Children {
		var qHat float32
		if c.VisitCount > 0 {
			qHat = -c.Q()
		} else {
			qHat = -(parentQ - fpuReduction)
		}
		score := qHat + cpuct*c.Prior*sqrtN/(1+float32(c.VisitCount))
		if best == nil || score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// softmaxPriors computes normalized priors over legal move logits, falling
// back to a uniform distribution if every exponentiated logit underflows to
// zero (e.g. all logits were effectively -Inf).
func softmaxPriors(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	exps := make([]float32, len(logits))
	var sum float32
	for i, l := range logits {
		e := float32(math.Exp(float64(l - max)))
		exps[i] = e
		sum += e
	}
	if sum == 0 {
		uniform := 1 / float32(len(logits))
		for i := range exps {
			exps[i] = uniform
		}
		return exps
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// expand populates n's children from a legal-move enumeration and the
// full-width policy logits produced by the evaluator, masking to legal
// indices and normalizing via softmaxPriors. n must not already be
// expanded or terminal.
func expand(n *Node, legal []codec.LegalEntry, logits [codec.NumPolicyIndices]float32) {
	maskedLogits := make([]float32, len(legal))
	for i, e := range legal {
		maskedLogits[i] = logits[e.Index]
	}
	priors := softmaxPriors(maskedLogits)

	n.Children = make([]*Node, len(legal))
	for i, e := range legal {
		n.Children[i] = &Node{
			IncomingMove: e.Move,
			PolicyIndex:  e.Index,
			Prior:        priors[i],
			Parent:       n,
		}
	}
	n.Logits = logits
	n.Expanded = true
}
