// Package engine exposes the public, re-entrant-per-instance API a caller
// drives: best-move selection, raw searches, single-shot evaluator calls,
// and ranked position summaries. It normalizes caller input into board/
// rules form and owns one search.Engine, mirroring how this codebase's
// Battlesnake HTTP server owns one inference pool and MCTS config behind a
// mutex per request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/encode"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/policy"
	"github.com/tafl-zero/brandubh/rules"
	"github.com/tafl-zero/brandubh/search"
)

// ErrNoLegalMoves is returned by BestMove when the side to move has no
// legal moves from the given position (a stalemate-shaped terminal state
// distinct from a King capture or exit).
var ErrNoLegalMoves = errors.New("engine: no legal moves")

// PolicyData carries the raw leaf-policy logits from the most recent root
// evaluation, plus a map from policy index to visit count, as returned
// alongside a chosen move by BestMove.
type PolicyData struct {
	Logits      [codec.NumPolicyIndices]float32
	VisitCounts map[int]int
}

// RankedMove is one entry of EvaluatePosition's top-K ranking.
type RankedMove struct {
	Move        board.Move
	VisitCount  int
	Probability float32
}

// PositionSummary is the result of EvaluatePosition: the root's value
// estimate and its children ranked by visit count, most-visited first.
type PositionSummary struct {
	RootValue float32
	TopMoves  []RankedMove
}

// Engine is the public entry point over one search.Engine and Evaluator.
// Like search.Engine, it is not safe for concurrent use by multiple
// goroutines at once; a caller that wants concurrency runs multiple Engine
// instances, each with its own tree, sharing an Evaluator (e.g. an
// inference.Pool) if desired.
type Engine struct {
	mu   sync.Mutex
	tree *search.Engine
	eval inference.Evaluator
	rng  *rand.Rand
}

// New creates an Engine over eval with the given search configuration and
// random source. A nil rng defaults to one seeded from the runtime's
// default source, which is adequate for interactive play but not for
// reproducible experiments; pass an explicit *rand.Rand for those.
func New(eval inference.Evaluator, cfg search.Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Engine{
		tree: search.New(eval, cfg),
		eval: eval,
		rng:  rng,
	}
}

// Reset discards the engine's cached tree.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree.Reset()
}

// Search runs nSims simulations from pos with side to move, reusing the
// existing tree when possible, and returns the resulting root node.
func (e *Engine) Search(ctx context.Context, pos board.Position, side board.Side, nSims int) (*search.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Search(ctx, pos, side, nSims)
}

// BestMove runs a search of nSims simulations and samples a move from the
// resulting visit distribution at temperature tau (tau == 0 is argmax). It
// returns the move together with PolicyData describing the root's leaf
// evaluation and per-move visit counts.
func (e *Engine) BestMove(ctx context.Context, pos board.Position, side board.Side, nSims int, tau float32) (board.Move, PolicyData, error) {
	root, err := e.Search(ctx, pos, side, nSims)
	if err != nil && root == nil {
		return board.Move{}, PolicyData{}, err
	}

	data := PolicyData{
		Logits:      root.Logits,
		VisitCounts: policy.VisitCounts(root),
	}

	if len(root.Children) == 0 {
		return board.Move{}, data, fmt.Errorf("%w: no legal moves from this position", ErrNoLegalMoves)
	}

	e.mu.Lock()
	move, sampleErr := policy.SelectMove(e.rng, root, tau)
	e.mu.Unlock()
	if sampleErr != nil {
		return board.Move{}, data, sampleErr
	}
	return move, data, err
}

// RawPolicy runs a single evaluator call through the state encoder and move
// codec, with no tree search involved: encode_state -> evaluate.
func (e *Engine) RawPolicy(ctx context.Context, pos board.Position, side board.Side) ([codec.NumPolicyIndices]float32, float32, error) {
	pos = pos.WithSideToMove(side)
	if err := rules.Validate(pos); err != nil {
		return [codec.NumPolicyIndices]float32{}, 0, fmt.Errorf("engine: %w", err)
	}
	tensor := encode.Tensor(pos, pos.SideToMove())

	e.mu.Lock()
	res, err := e.eval.Evaluate(ctx, tensor)
	e.mu.Unlock()
	if err != nil {
		return [codec.NumPolicyIndices]float32{}, 0, fmt.Errorf("%w: %v", inference.ErrEvaluator, err)
	}
	if err := inference.ValidateResult(res); err != nil {
		return [codec.NumPolicyIndices]float32{}, 0, err
	}
	return res.PolicyLogits, res.Value, nil
}

// EvaluatePosition runs a search of nSims simulations and ranks the root's
// children by visit count, most-visited first.
func (e *Engine) EvaluatePosition(ctx context.Context, pos board.Position, side board.Side, nSims int) (PositionSummary, error) {
	root, err := e.Search(ctx, pos, side, nSims)
	if err != nil && root == nil {
		return PositionSummary{}, err
	}

	summary := PositionSummary{RootValue: root.Q()}
	if len(root.Children) == 0 {
		return summary, err
	}

	total := 0
	for _, c := range root.Children {
		total += c.VisitCount
	}
	ranked := make([]RankedMove, len(root.Children))
	for i, c := range root.Children {
		var prob float32
		if total > 0 {
			prob = float32(c.VisitCount) / float32(total)
		}
		ranked[i] = RankedMove{Move: c.IncomingMove, VisitCount: c.VisitCount, Probability: prob}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].VisitCount > ranked[j].VisitCount })
	summary.TopMoves = ranked
	return summary, err
}
