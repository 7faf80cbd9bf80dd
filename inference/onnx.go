package inference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/encode"
	ort "github.com/yalue/onnxruntime_go"
)

// OnnxConfig tunes the batching behavior of an OnnxEvaluator.
type OnnxConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultOnnxConfig matches the batch size and timeout this engine's search
// loop typically drives: one simulation in flight per engine, but many
// engines sharing a pool.
var DefaultOnnxConfig = OnnxConfig{BatchSize: 64, BatchTimeout: time.Millisecond}

type onnxRequest struct {
	input    [encode.FloatSize]float32
	respChan chan onnxResponse
}

type onnxResponse struct {
	result Result
	err    error
}

// OnnxEvaluator implements Evaluator against a Brandubh policy/value model
// served through ONNX Runtime. It batches concurrent Evaluate calls behind
// a single session using the same channel-and-ticker batching loop this
// codebase uses for its other neural-network backend.
type OnnxEvaluator struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan onnxRequest
	cfg          OnnxConfig

	mu    sync.Mutex
	stats RuntimeStats
}

var ortInitOnce sync.Once
var ortInitErr error

// NewOnnxEvaluator loads the model at modelPath with the default batching
// configuration.
func NewOnnxEvaluator(modelPath string) (*OnnxEvaluator, error) {
	return NewOnnxEvaluatorWithConfig(modelPath, DefaultOnnxConfig)
}

// NewOnnxEvaluatorWithConfig loads the model at modelPath and starts its
// batching loop.
func NewOnnxEvaluatorWithConfig(modelPath string, cfg OnnxConfig) (*OnnxEvaluator, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOnnxConfig.BatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultOnnxConfig.BatchTimeout
	}

	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("inference: init onnxruntime: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("inference: session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("inference: create session: %w", err)
	}

	e := &OnnxEvaluator{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan onnxRequest, cfg.BatchSize*2),
	}
	go e.batchLoop()
	return e, nil
}

// ensureLinuxLibraryPath extends LD_LIBRARY_PATH with a locally vendored
// onnxruntime shared library directory, if one is present next to the
// binary's working directory.
func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	candidate := filepath.Join(cwd, "lib")
	if st, err := os.Stat(candidate); err != nil || !st.IsDir() {
		return
	}
	existing := os.Getenv("LD_LIBRARY_PATH")
	for _, p := range strings.Split(existing, ":") {
		if p == candidate {
			return
		}
	}
	newVal := candidate
	if existing != "" {
		newVal = candidate + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", newVal)
}

// Close releases the underlying ONNX Runtime session.
func (e *OnnxEvaluator) Close() error {
	return e.session.Destroy()
}

// Evaluate implements Evaluator by enqueuing tensor for the next batch and
// waiting for the response, or for ctx to be done.
func (e *OnnxEvaluator) Evaluate(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
	respChan := make(chan onnxResponse, 1)
	select {
	case e.requestsChan <- onnxRequest{input: tensor, respChan: respChan}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case resp := <-respChan:
		return resp.result, resp.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *OnnxEvaluator) batchLoop() {
	requests := make([]onnxRequest, 0, e.cfg.BatchSize)
	batchInput := make([]float32, 0, e.cfg.BatchSize*encode.FloatSize)

	ticker := time.NewTicker(e.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		e.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-e.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input[:]...)
			if len(requests) >= e.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (e *OnnxEvaluator) runBatch(requests []onnxRequest, batchInput []float32) {
	started := time.Now()
	batchSize := int64(len(requests))

	inputTensor, err := ort.NewTensor(ort.NewShape(batchSize, int64(encode.Planes), 7, 7), batchInput)
	if err != nil {
		e.failBatch(requests, fmt.Errorf("%w: %v", ErrEvaluator, err))
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, int64(codec.NumPolicyIndices)))
	if err != nil {
		e.failBatch(requests, fmt.Errorf("%w: %v", ErrEvaluator, err))
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, 1))
	if err != nil {
		e.failBatch(requests, fmt.Errorf("%w: %v", ErrEvaluator, err))
		return
	}
	defer valueTensor.Destroy()

	if err := e.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		e.failBatch(requests, fmt.Errorf("%w: %v", ErrEvaluator, err))
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		var res Result
		copy(res.PolicyLogits[:], policyData[i*codec.NumPolicyIndices:(i+1)*codec.NumPolicyIndices])
		res.Value = valueData[i]
		if err := ValidateResult(res); err != nil {
			req.respChan <- onnxResponse{err: err}
			continue
		}
		req.respChan <- onnxResponse{result: res}
	}

	e.recordBatch(len(requests), time.Since(started))
}

func (e *OnnxEvaluator) failBatch(requests []onnxRequest, err error) {
	for _, req := range requests {
		req.respChan <- onnxResponse{err: err}
	}
}

func (e *OnnxEvaluator) recordBatch(size int, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalBatches++
	e.stats.TotalItems += int64(size)
	e.stats.TotalRunNanos += elapsed.Nanoseconds()
	e.stats.LastBatchSize = size
	e.stats.QueueLen = len(e.requestsChan)
}

// Stats reports cumulative batching statistics for this evaluator.
func (e *OnnxEvaluator) Stats() RuntimeStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stats
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = (float64(st.TotalRunNanos) / 1e6) / float64(st.TotalBatches)
	}
	return st
}

var _ Evaluator = (*OnnxEvaluator)(nil)
