package tools

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardBreakerOpensAfterThreshold(t *testing.T) {
	p := NewStandardBreakerPolicy()
	cfg := CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond}
	failing := func() error { return NewToolError(CodeToolError, "boom") }

	for i := 0; i < 3; i++ {
		_ = p.Execute("t", cfg, failing)
	}
	assert.Equal(t, StateOpen, p.GetState("t"))

	err := p.Execute("t", cfg, failing)
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeUnavailable, te.Code)
}

func TestStandardBreakerHalfOpensAfterRecovery(t *testing.T) {
	p := NewStandardBreakerPolicy()
	cfg := CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond}
	_ = p.Execute("t", cfg, func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, p.GetState("t"))

	time.Sleep(20 * time.Millisecond)
	err := p.Execute("t", cfg, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, p.GetState("t"))
}

func TestStandardBreakerHalfOpenFailureReopens(t *testing.T) {
	p := NewStandardBreakerPolicy()
	cfg := CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond}
	_ = p.Execute("t", cfg, func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	_ = p.Execute("t", cfg, func() error { return errors.New("still broken") })
	assert.Equal(t, StateOpen, p.GetState("t"))
}

func TestNoopBreakerNeverOpens(t *testing.T) {
	p := NoopBreakerPolicy{}
	cfg := CircuitBreakerConfig{FailureThreshold: 1}
	for i := 0; i < 10; i++ {
		_ = p.Execute("t", cfg, func() error { return errors.New("boom") })
	}
	assert.Equal(t, StateClosed, p.GetState("t"))
}

func TestAdaptiveBreakerRaisesThresholdOnLowErrorRate(t *testing.T) {
	p := NewAdaptiveBreakerPolicy()
	cfg := CircuitBreakerConfig{FailureThreshold: 2, MaxThreshold: 10, WindowSize: 20, ErrorRateThreshold: 0.5}
	for i := 0; i < 15; i++ {
		_ = p.Execute("t", cfg, func() error { return nil })
	}
	b := p.stateFor("t", cfg)
	assert.Greater(t, b.threshold, cfg.FailureThreshold)
}
