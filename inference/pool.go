package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tafl-zero/brandubh/encode"
)

// RuntimeStats summarizes an evaluator backend's batching behavior: how
// many batches have run, how big they were on average, and how long they
// took. Search-facing tooling (cmd/searchtui, cmd/server) surfaces these to
// diagnose whether the evaluator is the search bottleneck.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// statsProvider is implemented by evaluator backends that track batching
// statistics; not every Evaluator does.
type statsProvider interface {
	Stats() RuntimeStats
}

// Pool fans Evaluate calls out across multiple evaluator backends
// round-robin, letting several ONNX Runtime sessions share the load of one
// search-heavy process.
type Pool struct {
	backends []Evaluator
	rr       atomic.Uint64
}

// NewPool wraps backends into a single round-robin Evaluator. It takes
// ownership of backends for the purposes of Close, which closes every
// backend that implements io.Closer-like Close() error.
func NewPool(backends ...Evaluator) (*Pool, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("inference: pool requires at least one backend")
	}
	return &Pool{backends: backends}, nil
}

// Evaluate implements Evaluator by dispatching to the next backend in
// round-robin order.
func (p *Pool) Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
	idx := int(p.rr.Add(1)-1) % len(p.backends)
	return p.backends[idx].Evaluate(ctx, tensor)
}

// Close closes every backend that supports it, returning the first error
// encountered.
func (p *Pool) Close() error {
	var firstErr error
	for _, b := range p.backends {
		if closer, ok := b.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stats aggregates RuntimeStats across every backend that reports them.
func (p *Pool) Stats() RuntimeStats {
	var agg RuntimeStats
	for _, b := range p.backends {
		sp, ok := b.(statsProvider)
		if !ok {
			continue
		}
		st := sp.Stats()
		agg.TotalBatches += st.TotalBatches
		agg.TotalItems += st.TotalItems
		agg.TotalRunNanos += st.TotalRunNanos
		agg.QueueLen += st.QueueLen
		if st.LastBatchSize > agg.LastBatchSize {
			agg.LastBatchSize = st.LastBatchSize
		}
	}
	if agg.TotalBatches > 0 {
		agg.AvgBatchSize = float64(agg.TotalItems) / float64(agg.TotalBatches)
		agg.AvgRunMs = (float64(agg.TotalRunNanos) / 1e6) / float64(agg.TotalBatches)
	}
	return agg
}

var _ Evaluator = (*Pool)(nil)
