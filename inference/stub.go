package inference

import (
	"context"

	"github.com/tafl-zero/brandubh/encode"
)

// Uniform is an Evaluator that returns a zero value and uniform policy
// logits for every position, useful for exercising the search engine
// without a trained model (smoke tests, benchmarking tree mechanics in
// isolation from network quality).
type Uniform struct{}

// Evaluate implements Evaluator. It never fails.
func (Uniform) Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
	return Result{Value: 0}, nil
}

// Static returns an Evaluator that always answers with the given result,
// regardless of the input tensor. Useful for pinning search behavior in
// tests.
type Static struct {
	Result Result
}

// Evaluate implements Evaluator.
func (s Static) Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
	return s.Result, nil
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error)

// Evaluate implements Evaluator.
func (f Func) Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
	return f(ctx, tensor)
}

var _ Evaluator = Uniform{}
var _ Evaluator = Static{}
var _ Evaluator = Func(nil)
