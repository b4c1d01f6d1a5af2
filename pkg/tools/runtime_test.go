package tools

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func functionSpec(id string, handler FunctionHandler) *ToolSpec {
	return &ToolSpec{
		ID:       id,
		Name:     id,
		ToolType: ToolTypeFunction,
		Function: handler,
		Parameters: []*ToolParameter{
			{Name: "x", Kind: KindInteger, Required: true},
		},
		Timeout: time.Second,
	}
}

func TestEngineExecuteFunctionSuccess(t *testing.T) {
	engine := NewEngine()
	spec := functionSpec("tool.double", func(_ context.Context, _ *ToolContext, args map[string]interface{}) (interface{}, error) {
		x := args["x"].(float64)
		return x * 2, nil
	})
	result, err := engine.Execute(context.Background(), spec, map[string]interface{}{"x": float64(21)}, &ToolContext{})
	require.NoError(t, err)
	assert.Equal(t, float64(42), result.Content)
	assert.Equal(t, 1, result.Usage.Attempts)
}

func TestEngineExecuteValidationFailureNeverReachesBackend(t *testing.T) {
	engine := NewEngine()
	called := false
	spec := functionSpec("tool.double", func(_ context.Context, _ *ToolContext, args map[string]interface{}) (interface{}, error) {
		called = true
		return nil, nil
	})
	_, err := engine.Execute(context.Background(), spec, map[string]interface{}{}, &ToolContext{})
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidationError, te.Code)
	assert.False(t, called)
}

func TestEngineExecuteRetriesTransientFailure(t *testing.T) {
	engine := NewEngine()
	var calls int32
	spec := functionSpec("tool.flaky", func(_ context.Context, _ *ToolContext, args map[string]interface{}) (interface{}, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return nil, NewToolError(CodeUnavailable, "backend hiccup").WithRetryable(true)
		}
		return "recovered", nil
	})
	spec.Retry = RetryConfig{Strategy: RetryFixed, MaxAttempts: 5, BaseDelay: time.Millisecond}

	result, err := engine.Execute(context.Background(), spec, map[string]interface{}{"x": float64(1)}, &ToolContext{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 3, result.Usage.Attempts)
	assert.Equal(t, 2, result.Usage.Retries)
}

func TestEngineExecuteIdempotentReplaySkipsSecondCall(t *testing.T) {
	engine := NewEngine()
	var calls int32
	spec := functionSpec("tool.charge", func(_ context.Context, _ *ToolContext, args map[string]interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "charged", nil
	})
	spec.Idempotency = IdempotencyConfig{Enabled: true, Strategy: IdemDefault, TTL: time.Minute}

	args := map[string]interface{}{"x": float64(5)}
	tctx := &ToolContext{UserID: "u1"}

	r1, err := engine.Execute(context.Background(), spec, args, tctx)
	require.NoError(t, err)
	assert.False(t, r1.Usage.IdempotencyReused)

	r2, err := engine.Execute(context.Background(), spec, args, &ToolContext{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, r2.Usage.IdempotencyReused)
	assert.Equal(t, int32(1), calls)
}

func TestEngineExecuteCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	engine := NewEngine()
	spec := functionSpec("tool.broken", func(_ context.Context, _ *ToolContext, args map[string]interface{}) (interface{}, error) {
		return nil, NewToolError(CodeToolError, "always fails")
	})
	spec.CircuitBreaker = CircuitBreakerConfig{Enabled: true, Strategy: BreakerStandard, FailureThreshold: 2, RecoveryTimeout: time.Minute}

	args := map[string]interface{}{"x": float64(1)}
	for i := 0; i < 2; i++ {
		_, err := engine.Execute(context.Background(), spec, args, &ToolContext{})
		require.Error(t, err)
	}

	_, err := engine.Execute(context.Background(), spec, args, &ToolContext{})
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnavailable, te.Code)
}

func TestEngineExecuteTimeoutSurfacesAsTimeoutError(t *testing.T) {
	engine := NewEngine()
	spec := functionSpec("tool.slow", func(ctx context.Context, tctx *ToolContext, args map[string]interface{}) (interface{}, error) {
		time.Sleep(50 * time.Millisecond)
		return "too slow", nil
	})
	spec.Timeout = 5 * time.Millisecond

	_, err := engine.Execute(context.Background(), spec, map[string]interface{}{"x": float64(1)}, &ToolContext{})
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeTimeout, te.Code)
}
