// Package inference defines the evaluator boundary the search engine calls
// into, plus concrete backends: a batching ONNX Runtime evaluator adapted
// from this codebase's snake-playing inference client, a round-robin pool
// of such evaluators, and small deterministic evaluators useful for tests
// and for running the engine without a trained model.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/encode"
)

// ErrEvaluator wraps every failure the engine must treat as fatal: an
// evaluator returning NaN, Inf, or a wrong-shaped result.
var ErrEvaluator = errors.New("inference: evaluator error")

// Result is the pair of outputs an Evaluator produces for one position:
// raw (not softmaxed) policy logits over the full index space, and a value
// in [-1, 1] from the perspective of the side to move in the tensor that
// was evaluated.
type Result struct {
	PolicyLogits [codec.NumPolicyIndices]float32
	Value        float32
}

// Evaluator is the abstract neural-network boundary the search engine
// depends on. Evaluate is synchronous from the caller's point of view but
// may suspend internally (batching, I/O); it must be safe to call from a
// single goroutine at a time per the engine's cooperative scheduling model.
// Implementations may batch or cache across calls; the engine does neither.
type Evaluator interface {
	Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error)
}

// ValidateResult checks that a Result contains only finite values and a
// value within [-1, 1], returning ErrEvaluator if not. Backends should run
// their raw output through this before returning it to the engine.
func ValidateResult(res Result) error {
	if math.IsNaN(float64(res.Value)) || math.IsInf(float64(res.Value), 0) {
		return fmt.Errorf("%w: non-finite value %v", ErrEvaluator, res.Value)
	}
	if res.Value < -1 || res.Value > 1 {
		return fmt.Errorf("%w: value %v out of [-1, 1]", ErrEvaluator, res.Value)
	}
	for i, logit := range res.PolicyLogits {
		if math.IsNaN(float64(logit)) || math.IsInf(float64(logit), 0) {
			return fmt.Errorf("%w: non-finite policy logit at index %d", ErrEvaluator, i)
		}
	}
	return nil
}
