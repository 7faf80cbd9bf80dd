package inference

import (
	"context"
	"math"
	"testing"

	"github.com/tafl-zero/brandubh/encode"
)

func TestUniformEvaluatorReturnsZeroValue(t *testing.T) {
	var tensor [encode.FloatSize]float32
	res, err := Uniform{}.Evaluate(context.Background(), tensor)
	if err != nil {
		t.Fatalf("Uniform.Evaluate returned error: %v", err)
	}
	if res.Value != 0 {
		t.Fatalf("expected zero value, got %v", res.Value)
	}
}

func TestStaticEvaluatorReturnsFixedResult(t *testing.T) {
	want := Result{Value: 0.5}
	want.PolicyLogits[3] = 2
	eval := Static{Result: want}

	got, err := eval.Evaluate(context.Background(), [encode.FloatSize]float32{})
	if err != nil {
		t.Fatalf("Static.Evaluate returned error: %v", err)
	}
	if got.Value != want.Value || got.PolicyLogits[3] != want.PolicyLogits[3] {
		t.Fatalf("Static.Evaluate = %+v, want %+v", got, want)
	}
}

func TestFuncEvaluatorAdaptsPlainFunction(t *testing.T) {
	called := false
	eval := Func(func(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
		called = true
		return Result{Value: -1}, nil
	})
	res, err := eval.Evaluate(context.Background(), [encode.FloatSize]float32{})
	if err != nil {
		t.Fatalf("Func.Evaluate returned error: %v", err)
	}
	if !called {
		t.Fatal("expected underlying function to be called")
	}
	if res.Value != -1 {
		t.Fatalf("expected value -1, got %v", res.Value)
	}
}

func TestValidateResultRejectsNaN(t *testing.T) {
	res := Result{Value: float32(math.NaN())}
	if err := ValidateResult(res); err == nil {
		t.Fatal("expected an error for a NaN value")
	}
}

func TestValidateResultRejectsOutOfRangeValue(t *testing.T) {
	if err := ValidateResult(Result{Value: 1.5}); err == nil {
		t.Fatal("expected an error for a value outside [-1, 1]")
	}
	if err := ValidateResult(Result{Value: -1.5}); err == nil {
		t.Fatal("expected an error for a value outside [-1, 1]")
	}
}

func TestValidateResultAcceptsBoundaryValues(t *testing.T) {
	if err := ValidateResult(Result{Value: 1}); err != nil {
		t.Fatalf("value of exactly 1 should be valid, got %v", err)
	}
	if err := ValidateResult(Result{Value: -1}); err != nil {
		t.Fatalf("value of exactly -1 should be valid, got %v", err)
	}
}

func TestValidateResultRejectsInfiniteLogit(t *testing.T) {
	res := Result{Value: 0}
	res.PolicyLogits[100] = float32(math.Inf(1))
	if err := ValidateResult(res); err == nil {
		t.Fatal("expected an error for an infinite policy logit")
	}
}

func TestPoolRoundRobinsAcrossBackends(t *testing.T) {
	var calls [2]int
	backends := []Evaluator{
		Func(func(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
			calls[0]++
			return Result{}, nil
		}),
		Func(func(ctx context.Context, tensor [encode.FloatSize]float32) (Result, error) {
			calls[1]++
			return Result{}, nil
		}),
	}
	pool, err := NewPool(backends...)
	if err != nil {
		t.Fatalf("NewPool returned error: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := pool.Evaluate(context.Background(), [encode.FloatSize]float32{}); err != nil {
			t.Fatalf("Evaluate returned error: %v", err)
		}
	}
	if calls[0] != 2 || calls[1] != 2 {
		t.Fatalf("expected even round-robin split, got %v", calls)
	}
}

func TestNewPoolRejectsEmptyBackendList(t *testing.T) {
	if _, err := NewPool(); err == nil {
		t.Fatal("expected an error constructing a pool with no backends")
	}
}
