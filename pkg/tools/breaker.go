package tools

import (
	"sync"
	"time"

	"github.com/arcflow-run/toolrun/internal/timeconfig"
)

// circuitOpenMessage is the ToolError message a breaker uses when it
// rejects a call fast. IsCircuitOpenError matches on it so the Engine
// can report usage.circuit_opened without the breaker exposing more
// surface than the CodeUnavailable error it already returns.
const circuitOpenMessage = "circuit breaker is open"

// IsCircuitOpenError reports whether err is a fast-fail rejection from a
// BreakerPolicy, as opposed to a backend failure the breaker merely
// observed and re-raised.
func IsCircuitOpenError(err error) bool {
	te := AsToolError(err)
	return te != nil && te.Code == CodeUnavailable && te.Message == circuitOpenMessage
}

// CircuitState is the lifecycle state of one tool's circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerPolicy guards backend calls per tool name. A single BreakerPolicy
// instance is shared by every Execute call the Engine makes, so state is
// process-wide across invocations of the same tool.
type BreakerPolicy interface {
	Execute(toolName string, cfg CircuitBreakerConfig, attempt func() error) error
	GetState(toolName string) CircuitState
	Reset(toolName string)
}

// NoopBreakerPolicy never opens; every call reaches the backend.
type NoopBreakerPolicy struct{}

func (NoopBreakerPolicy) Execute(_ string, _ CircuitBreakerConfig, attempt func() error) error {
	return attempt()
}
func (NoopBreakerPolicy) GetState(string) CircuitState { return StateClosed }
func (NoopBreakerPolicy) Reset(string)                 {}

type breakerState struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	threshold   int
	openedAt    time.Time
	// adaptive-only
	outcomes  []bool
	window    int
	maxThresh int
	baseThresh int
	errRate   float64
}

func (b *breakerState) canProceed(recovery time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= recovery {
			b.state = StateHalfOpen
			return nil
		}
		return NewToolError(CodeUnavailable, circuitOpenMessage).
			WithRetryAfter(recovery - time.Since(b.openedAt))
	default:
		return nil
	}
}

func (b *breakerState) recordStandard(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = time.Now()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

func (b *breakerState) recordAdaptive(err error, errorRateThreshold float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	success := err == nil
	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.window {
		b.outcomes = b.outcomes[len(b.outcomes)-b.window:]
	}
	failCount := 0
	for _, ok := range b.outcomes {
		if !ok {
			failCount++
		}
	}
	rate := 0.0
	if len(b.outcomes) > 0 {
		rate = float64(failCount) / float64(len(b.outcomes))
	}
	switch {
	case rate >= errorRateThreshold:
		if b.threshold > b.baseThresh {
			b.threshold--
		}
	case rate < errorRateThreshold/2:
		if b.threshold < b.maxThresh {
			b.threshold++
		}
	}

	if !success {
		if b.state == StateHalfOpen {
			b.state = StateOpen
			b.openedAt = time.Now()
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
		return
	}
	b.failures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
}

// StandardBreakerPolicy opens after FailureThreshold consecutive failures
// and moves to half_open after RecoveryTimeout elapses, closing again on
// the first successful half_open call.
type StandardBreakerPolicy struct {
	mu       sync.Mutex
	breakers map[string]*breakerState
}

func NewStandardBreakerPolicy() *StandardBreakerPolicy {
	return &StandardBreakerPolicy{breakers: make(map[string]*breakerState)}
}

func (p *StandardBreakerPolicy) stateFor(toolName string, cfg CircuitBreakerConfig) *breakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[toolName]
	if !ok {
		threshold := cfg.FailureThreshold
		if threshold <= 0 {
			threshold = 5
		}
		b = &breakerState{threshold: threshold}
		p.breakers[toolName] = b
	}
	return b
}

func (p *StandardBreakerPolicy) Execute(toolName string, cfg CircuitBreakerConfig, attempt func() error) error {
	b := p.stateFor(toolName, cfg)
	recovery := cfg.RecoveryTimeout
	if recovery <= 0 {
		recovery = timeconfig.BreakerRecoveryTimeout()
	}
	if err := b.canProceed(recovery); err != nil {
		return err.(*ToolError).WithToolID(toolName)
	}
	err := attempt()
	b.recordStandard(err)
	return err
}

func (p *StandardBreakerPolicy) GetState(toolName string) CircuitState {
	p.mu.Lock()
	b, ok := p.breakers[toolName]
	p.mu.Unlock()
	if !ok {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (p *StandardBreakerPolicy) Reset(toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.breakers, toolName)
}

// AdaptiveBreakerPolicy tracks a sliding window of recent outcomes and
// raises or lowers its own failure threshold (bounded between the
// configured FailureThreshold and MaxThreshold) depending on the observed
// error rate relative to ErrorRateThreshold.
type AdaptiveBreakerPolicy struct {
	mu       sync.Mutex
	breakers map[string]*breakerState
}

func NewAdaptiveBreakerPolicy() *AdaptiveBreakerPolicy {
	return &AdaptiveBreakerPolicy{breakers: make(map[string]*breakerState)}
}

func (p *AdaptiveBreakerPolicy) stateFor(toolName string, cfg CircuitBreakerConfig) *breakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[toolName]
	if !ok {
		base := cfg.FailureThreshold
		if base <= 0 {
			base = 5
		}
		max := cfg.MaxThreshold
		if max < base {
			max = base * 3
		}
		window := cfg.WindowSize
		if window <= 0 {
			window = 20
		}
		b = &breakerState{threshold: base, baseThresh: base, maxThresh: max, window: window}
		p.breakers[toolName] = b
	}
	return b
}

func (p *AdaptiveBreakerPolicy) Execute(toolName string, cfg CircuitBreakerConfig, attempt func() error) error {
	b := p.stateFor(toolName, cfg)
	recovery := cfg.RecoveryTimeout
	if recovery <= 0 {
		recovery = timeconfig.BreakerRecoveryTimeout()
	}
	if err := b.canProceed(recovery); err != nil {
		return err.(*ToolError).WithToolID(toolName)
	}
	errRateThreshold := cfg.ErrorRateThreshold
	if errRateThreshold <= 0 {
		errRateThreshold = 0.5
	}
	err := attempt()
	b.recordAdaptive(err, errRateThreshold)
	return err
}

func (p *AdaptiveBreakerPolicy) GetState(toolName string) CircuitState {
	p.mu.Lock()
	b, ok := p.breakers[toolName]
	p.mu.Unlock()
	if !ok {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (p *AdaptiveBreakerPolicy) Reset(toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.breakers, toolName)
}

func BreakerPolicyFor(strategy CircuitBreakerStrategy) BreakerPolicy {
	switch strategy {
	case BreakerAdaptive:
		return NewAdaptiveBreakerPolicy()
	case BreakerNoop:
		return NoopBreakerPolicy{}
	default:
		return NewStandardBreakerPolicy()
	}
}
