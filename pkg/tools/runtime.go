package tools

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arcflow-run/toolrun/internal/timeconfig"
)

// Engine executes ToolSpecs. One Engine should be built per process (or
// per tenant, if tenants need isolated circuit breaker/rate limit state)
// and reused across every call: its BreakerPolicy and RateLimiter carry
// state across invocations by design.
type Engine struct {
	validator Validator
	security  SecurityGate
	store     Store
	// breaker and adaptiveBreaker are the process-wide, per-tool-name
	// state holders for ToolSpecs whose CircuitBreaker.Strategy is
	// "standard" (the default) and "adaptive" respectively; "noop"
	// specs use the stateless NoopBreakerPolicy directly. Keeping one
	// long-lived instance per strategy (rather than building one from
	// BreakerPolicyFor per call) is what makes breaker state survive
	// across invocations of the same tool.
	breaker         BreakerPolicy
	adaptiveBreaker BreakerPolicy
	metrics         MetricsSink
	tracer          Tracer
	limiter         RateLimiter
	usage           UsageCalculator
	logger          *logrus.Logger

	functionExecutor FunctionExecutor
	httpExecutor     *HTTPExecutor
	dbRegistry       *DBStrategyRegistry

	defaultTimeout time.Duration
}

// EngineOption configures an Engine built with NewEngine.
type EngineOption func(*Engine)

func WithValidator(v Validator) EngineOption         { return func(e *Engine) { e.validator = v } }
func WithSecurity(s SecurityGate) EngineOption       { return func(e *Engine) { e.security = s } }
func WithStore(s Store) EngineOption                 { return func(e *Engine) { e.store = s } }

// WithBreakerPolicy overrides the policy used for specs whose
// CircuitBreaker.Strategy is "standard" (or unset). Specs that opt into
// "adaptive" always use the Engine's own AdaptiveBreakerPolicy, since
// that policy's per-tool state must be shared across every adaptive spec
// the Engine serves.
func WithBreakerPolicy(b BreakerPolicy) EngineOption { return func(e *Engine) { e.breaker = b } }
func WithMetrics(m MetricsSink) EngineOption         { return func(e *Engine) { e.metrics = m } }
func WithTracer(t Tracer) EngineOption               { return func(e *Engine) { e.tracer = t } }
func WithRateLimiter(l RateLimiter) EngineOption     { return func(e *Engine) { e.limiter = l } }
func WithUsageCalculator(u UsageCalculator) EngineOption {
	return func(e *Engine) { e.usage = u }
}

// WithLogger overrides the Engine's logrus.Logger. The default logs at
// info level, which shows only failures; pass a logger at debug level to
// also see one line per successful completion.
func WithLogger(l *logrus.Logger) EngineOption { return func(e *Engine) { e.logger = l } }
func WithHTTPExecutor(h *HTTPExecutor) EngineOption { return func(e *Engine) { e.httpExecutor = h } }
func WithDBRegistry(r *DBStrategyRegistry) EngineOption {
	return func(e *Engine) { e.dbRegistry = r }
}
func WithDefaultTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.defaultTimeout = d }
}

// NewEngine builds an Engine with safe, conservative defaults (basic
// validation, basic security with SSRF guarding, an in-process
// idempotency store, a standard per-tool circuit breaker, and noop
// metrics/tracing/rate-limiting) and applies opts on top.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		validator:        BasicValidator{},
		security:         NewBasicSecurity(),
		store:            NewInMemoryStore(),
		breaker:          NewStandardBreakerPolicy(),
		adaptiveBreaker:  NewAdaptiveBreakerPolicy(),
		metrics:          NoopMetrics{},
		tracer:           NoopTracer{},
		limiter:          NoopRateLimiter{},
		usage:            NoopUsageCalculator{},
		logger:           logrus.New(),
		functionExecutor: FunctionExecutor{},
		httpExecutor:     NewHTTPExecutor(),
		dbRegistry:       NewDBStrategyRegistry(),
		defaultTimeout:   timeconfig.ToolExecutionTimeout(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the full pipeline for one call: validate, authorize,
// check egress, resolve idempotency, rate-limit, trace, then retry a
// breaker-guarded, timeout-bounded dispatch to the spec's backend
// strategy.
func (e *Engine) Execute(ctx context.Context, spec *ToolSpec, args map[string]interface{}, tctx *ToolContext) (*ToolResult, error) {
	start := time.Now()
	if tctx == nil {
		tctx = &ToolContext{}
	}
	if tctx.RunID == "" {
		tctx.RunID = uuid.NewString()
	}
	tags := map[string]string{"tool": spec.Name}

	if args == nil {
		args = map[string]interface{}{}
	}

	if err := e.validator.Validate(args, spec); err != nil {
		e.metrics.Incr("tool.validation_error", tags)
		return nil, AsToolError(err).WithToolID(spec.ID)
	}
	if err := e.security.Authorize(tctx, spec); err != nil {
		e.metrics.Incr("tool.unauthorized", tags)
		return nil, AsToolError(err).WithToolID(spec.ID)
	}
	if err := e.security.CheckEgress(args, spec); err != nil {
		e.metrics.Incr("tool.egress_blocked", tags)
		return nil, AsToolError(err).WithToolID(spec.ID)
	}

	if spec.Idempotency.Enabled {
		result, err, done := e.executeIdempotent(ctx, spec, args, tctx, tags)
		if done {
			e.recordLatency(spec, result, start, tags)
			return result, err
		}
	}

	if spec.RateLimit > 0 {
		allowed, err := e.limiter.Allow(ctx, spec.Name, spec.RateLimit)
		if err != nil {
			return nil, AsToolError(err).WithToolID(spec.ID)
		}
		if !allowed {
			e.metrics.Incr("tool.rate_limited", tags)
			return nil, NewToolError(CodeUnavailable, "rate limit exceeded").WithToolID(spec.ID).WithRetryable(true)
		}
	}

	spanCtx, span := e.tracer.StartSpan(ctx, spec.Name)
	defer span.End()

	result, err := e.runPipeline(spanCtx, spec, args, tctx)
	if err != nil {
		span.RecordError(err)
		e.metrics.Incr("tool.error", tags)
		e.recordLatency(spec, nil, start, tags)
		e.logger.WithFields(logrus.Fields{
			"tool_id":         spec.ID,
			"tool_name":       spec.Name,
			"processing_time": time.Since(start),
			"error":           err.Error(),
		}).Error("tool execution failed")
		return nil, err
	}

	e.metrics.Incr("tool.success", tags)
	e.recordLatency(spec, result, start, tags)
	e.logger.WithFields(logrus.Fields{
		"tool_id":         spec.ID,
		"tool_name":       spec.Name,
		"processing_time": time.Since(start),
		"attempts":        result.Usage.Attempts,
	}).Debug("tool execution completed")
	return result, nil
}

// executeIdempotent resolves the idempotency key, returns a cached result
// on a hit, and otherwise takes the per-key lock and re-checks before
// falling through to normal execution so two concurrent first-callers
// for the same key never both reach the backend. On a confirmed miss it
// also acquires the spec's rate limit, since Execute's own rate-limit
// block never runs once this path is taken. done is always true: the
// caller (Execute) always returns directly on this function's result
// rather than falling through to its own pipeline call.
func (e *Engine) executeIdempotent(ctx context.Context, spec *ToolSpec, args map[string]interface{}, tctx *ToolContext, tags map[string]string) (*ToolResult, error, bool) {
	keyGen := KeyGeneratorFor(spec.Idempotency.Strategy)
	key := keyGen.GenerateKey(args, tctx, spec)
	tctx.IdempotencyKey = key
	ttl := spec.Idempotency.TTL
	if ttl <= 0 {
		ttl = timeconfig.IdempotencyLockTTL()
	}

	if cached, hit, err := e.store.Get(ctx, key); err == nil && hit {
		e.metrics.Incr("tool.idempotency_hit", tags)
		cached.Usage.IdempotencyReused = true
		cached.Usage.CacheHit = true
		return cached, nil, true
	}

	unlock, err := e.store.Lock(ctx, key, ttl)
	if err != nil {
		return nil, AsToolError(err).WithToolID(spec.ID), true
	}
	defer unlock()

	if cached, hit, err := e.store.Get(ctx, key); err == nil && hit {
		e.metrics.Incr("tool.idempotency_hit", tags)
		cached.Usage.IdempotencyReused = true
		cached.Usage.CacheHit = true
		return cached, nil, true
	}

	if spec.RateLimit > 0 {
		allowed, err := e.limiter.Allow(ctx, spec.Name, spec.RateLimit)
		if err != nil {
			return nil, AsToolError(err).WithToolID(spec.ID), true
		}
		if !allowed {
			e.metrics.Incr("tool.rate_limited", tags)
			return nil, NewToolError(CodeUnavailable, "rate limit exceeded").WithToolID(spec.ID).WithRetryable(true), true
		}
	}

	spanCtx, span := e.tracer.StartSpan(ctx, spec.Name)
	result, err := e.runPipeline(spanCtx, spec, args, tctx)
	if err != nil {
		span.RecordError(err)
		span.End()
		e.metrics.Incr("tool.error", tags)
		return nil, err, true
	}
	span.End()
	e.metrics.Incr("tool.success", tags)
	persisted := result
	if !spec.Idempotency.ShouldPersistResult() {
		persisted = idempotencySentinel(result)
	}
	_ = e.store.Set(ctx, key, persisted, ttl)
	return result, nil, true
}

// idempotencySentinel is what a Store records for a spec configured with
// IdempotencyConfig.PersistResult = false: the fact of execution, not its
// payload. A later replay returns this instead of the original content.
func idempotencySentinel(result *ToolResult) *ToolResult {
	return &ToolResult{
		ReturnType:   result.ReturnType,
		ReturnTarget: result.ReturnTarget,
		Content:      map[string]interface{}{"idempotent_replay": true},
	}
}

// breakerFor returns the long-lived BreakerPolicy for cfg.Strategy. Noop
// is stateless so a fresh value is fine; standard and adaptive reuse the
// Engine's own instances so per-tool-name state persists across calls.
func (e *Engine) breakerFor(cfg CircuitBreakerConfig) BreakerPolicy {
	switch cfg.Strategy {
	case BreakerAdaptive:
		return e.adaptiveBreaker
	case BreakerNoop:
		return NoopBreakerPolicy{}
	default:
		return e.breaker
	}
}

// runPipeline retries a breaker-guarded, timeout-bounded dispatch to the
// spec's backend strategy.
func (e *Engine) runPipeline(ctx context.Context, spec *ToolSpec, args map[string]interface{}, tctx *ToolContext) (*ToolResult, error) {
	retryPolicy := RetryPolicyFor(spec.Retry)
	var circuitOpened bool

	result, attempts, err := retryPolicy.Execute(ctx, func() (*ToolResult, error) {
		r, attemptErr := e.attemptOnce(ctx, spec, args, tctx)
		if IsCircuitOpenError(attemptErr) {
			circuitOpened = true
		}
		return r, attemptErr
	})
	if result != nil {
		result.Usage.Attempts = attempts
		result.Usage.Retries = attempts - 1
		result.Usage.CircuitOpened = circuitOpened
		if spec.ReturnTarget == ReturnTargetLLM {
			prompt, completion, cost := e.usage.Calculate(spec, result.Content)
			result.Usage.PromptTokens = prompt
			result.Usage.CompletionTokens = completion
			result.Usage.CostUSD = cost
		}
	}
	if err != nil {
		return nil, AsToolError(err).WithToolID(spec.ID)
	}
	return result, nil
}

// attemptDeadline returns the stricter of spec.Timeout (or the Engine's
// default when unset) and tctx.Deadline, per the cancellation rule: two
// timeout sources apply and the stricter wins.
func (e *Engine) attemptDeadline(spec *ToolSpec, tctx *ToolContext) time.Duration {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	if tctx != nil && !tctx.Deadline.IsZero() {
		if remaining := time.Until(tctx.Deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	return timeout
}

func (e *Engine) attemptOnce(ctx context.Context, spec *ToolSpec, args map[string]interface{}, tctx *ToolContext) (*ToolResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptDeadline(spec, tctx))
	defer cancel()

	type outcome struct {
		content interface{}
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		var content interface{}
		invoke := func() error {
			var dispatchErr error
			content, dispatchErr = e.dispatch(attemptCtx, spec, args, tctx)
			return dispatchErr
		}
		var err error
		if spec.CircuitBreaker.Enabled {
			err = e.breakerFor(spec.CircuitBreaker).Execute(spec.Name, spec.CircuitBreaker, invoke)
		} else {
			err = invoke()
		}
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return &ToolResult{
			ReturnType:   spec.ReturnType,
			ReturnTarget: spec.ReturnTarget,
			Content:      out.content,
		}, nil
	case <-attemptCtx.Done():
		return nil, NewToolError(CodeTimeout, "tool call exceeded its timeout").
			WithToolID(spec.ID).WithRetryable(true).WithCause(attemptCtx.Err())
	}
}

func (e *Engine) dispatch(ctx context.Context, spec *ToolSpec, args map[string]interface{}, tctx *ToolContext) (interface{}, error) {
	switch spec.ToolType {
	case ToolTypeFunction:
		return e.functionExecutor.Execute(ctx, tctx, spec, args)
	case ToolTypeHTTP:
		return e.httpExecutor.Execute(ctx, spec, args)
	case ToolTypeDB:
		strategy, err := e.dbRegistry.Get(spec.Driver)
		if err != nil {
			return nil, err
		}
		return strategy.Execute(ctx, spec, args)
	default:
		return nil, NewToolError(CodeInvalidOperation, "spec has no recognized tool_type").WithToolID(spec.ID)
	}
}

func (e *Engine) recordLatency(spec *ToolSpec, result *ToolResult, start time.Time, tags map[string]string) {
	elapsed := time.Since(start)
	e.metrics.Timing("tool.latency", elapsed, tags)
	if result != nil {
		result.Usage.LatencyMS = elapsed.Milliseconds()
	}
}
