package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/encode"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/rules"
)

// ErrInvalidPosition is returned when a search is asked to start from a
// position that fails rules.Validate.
var ErrInvalidPosition = fmt.Errorf("search: %w", rules.ErrInvalidPosition)

// ErrCancelled is returned when a search stops early because its context
// was cancelled or timed out, with the partial tree preserved for reuse by
// a later call. It wraps the underlying context error, so both
// errors.Is(err, ErrCancelled) and errors.Is(err, context.Canceled) (or
// context.DeadlineExceeded) hold.
var ErrCancelled = errors.New("search: cancelled")

// Config holds the tunable parameters of the simulation loop.
type Config struct {
	// Cpuct scales the exploration term of PUCT.
	Cpuct float32
	// FPUReduction is subtracted from a parent's Q to seed the optimistic
	// value assumed for an unvisited child (First-Play Urgency).
	FPUReduction float32
	// BatchSize is how many simulations run between cooperative yields.
	BatchSize int
}

// DefaultConfig matches the constants this codebase's other search engine
// uses for its exploration coefficient, adapted to Brandubh's shorter
// average game length with a smaller FPU reduction.
var DefaultConfig = Config{Cpuct: 1.5, FPUReduction: 0.1, BatchSize: 10}

// Engine runs MCTS simulations against an Evaluator and owns exactly one
// tree at a time. It is not safe for concurrent use: the concurrency model
// is single-threaded and cooperative, with only one simulation and one
// evaluator call ever in flight.
type Engine struct {
	cfg  Config
	eval inference.Evaluator
	root *Node
}

// New creates an Engine bound to eval with cfg. A zero Config selects
// DefaultConfig.
func New(eval inference.Evaluator, cfg Config) *Engine {
	if cfg.Cpuct == 0 {
		cfg.Cpuct = DefaultConfig.Cpuct
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	return &Engine{cfg: cfg, eval: eval}
}

// Root returns the engine's current root node, or nil if no search has run
// yet.
func (e *Engine) Root() *Node {
	return e.root
}

// Reset discards any cached tree, forcing the next Search to build fresh.
func (e *Engine) Reset() {
	e.root = nil
}

// Search runs up to nSims additional simulations from pos (with side to
// move forced to side), reusing the existing tree if it already rooted at
// the same position and side. It returns the resulting root node.
//
// Cancellation is observed at simulation-batch boundaries: on cancellation
// Search returns the best result computable from statistics gathered so
// far, with the partial tree preserved for a future call, and ErrCancelled
// (wrapping ctx.Err()) as the returned error.
func (e *Engine) Search(ctx context.Context, pos board.Position, side board.Side, nSims int) (*Node, error) {
	pos = pos.WithSideToMove(side)
	if err := rules.Validate(pos); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	if e.root == nil || !e.root.PositionKnown || !e.root.Position.Equal(pos) {
		e.root = NewRoot(pos)
	}

	ran := 0
	for ran < nSims {
		batch := e.cfg.BatchSize
		if remaining := nSims - ran; batch > remaining {
			batch = remaining
		}
		for i := 0; i < batch; i++ {
			if err := e.simulate(ctx); err != nil {
				return e.root, err
			}
			if e.root.Terminal {
				return e.root, nil
			}
		}
		ran += batch

		select {
		case <-ctx.Done():
			return e.root, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		default:
		}
	}
	return e.root, nil
}

// simulate runs one selection/evaluation/backup cycle.
func (e *Engine) simulate(ctx context.Context) error {
	path := []*Node{e.root}
	cur := e.root
	workingPos := e.root.Position

	for cur.Expanded && !cur.Terminal {
		child := selectChild(cur, e.cfg.Cpuct, e.cfg.FPUReduction)
		if !child.PositionKnown {
			next, err := rules.Apply(workingPos, child.IncomingMove)
			if err != nil {
				return fmt.Errorf("search: materializing child position: %w", err)
			}
			child.Position = next
			child.PositionKnown = true
		}
		workingPos = child.Position
		cur = child
		path = append(path, cur)
	}

	v, err := e.evaluateLeaf(ctx, cur, workingPos)
	if err != nil {
		return err
	}

	for i := len(path) - 1; i >= 0; i-- {
		node := path[i]
		node.VisitCount++
		node.ValueSum += v
		v = -v
	}
	return nil
}

// evaluateLeaf computes the backup value for leaf, expanding it if it is
// not already terminal.
func (e *Engine) evaluateLeaf(ctx context.Context, leaf *Node, pos board.Position) (float32, error) {
	if leaf.Terminal {
		return leaf.TerminalValue, nil
	}

	if outcome := rules.IsTerminal(pos); outcome != rules.NotOver {
		leaf.Terminal = true
		leaf.TerminalValue = rules.ResultValue(outcome, pos.SideToMove())
		return leaf.TerminalValue, nil
	}

	legal := codec.AllLegalMoves(pos, pos.SideToMove())
	if len(legal) == 0 {
		leaf.Terminal = true
		leaf.TerminalValue = -1
		return leaf.TerminalValue, nil
	}

	tensor := encode.Tensor(pos, pos.SideToMove())
	res, err := e.eval.Evaluate(ctx, tensor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", inference.ErrEvaluator, err)
	}
	if err := inference.ValidateResult(res); err != nil {
		return 0, err
	}

	expand(leaf, legal, res.PolicyLogits)
	return res.Value, nil
}
