// Package tools implements the execution runtime that turns a ToolSpec, a
// set of arguments and a ToolContext into a ToolResult: validation,
// authorization, idempotency, retry, circuit breaking, timeouts and
// observability composed around pluggable backend strategies.
package tools

import (
	"context"
	"time"
)

// ToolType selects which backend strategy executes a ToolSpec.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
	ToolTypeHTTP     ToolType = "http"
	ToolTypeDB       ToolType = "db"
)

// ReturnType describes how a ToolResult's Content should be interpreted.
type ReturnType string

const (
	ReturnTypeJSON   ReturnType = "json"
	ReturnTypeText   ReturnType = "text"
	ReturnTypeBinary ReturnType = "binary"
)

// ReturnTarget describes the intended consumer of a ToolResult.
type ReturnTarget string

const (
	ReturnTargetHuman ReturnTarget = "human"
	ReturnTargetLLM   ReturnTarget = "llm"
	ReturnTargetAgent ReturnTarget = "agent"
	ReturnTargetStep  ReturnTarget = "step"
)

// ParameterKind is the discriminant of the ToolParameter union.
type ParameterKind string

const (
	KindString  ParameterKind = "string"
	KindNumber  ParameterKind = "number"
	KindInteger ParameterKind = "integer"
	KindBoolean ParameterKind = "boolean"
	KindArray   ParameterKind = "array"
	KindObject  ParameterKind = "object"
)

// ToolParameter describes one argument a ToolSpec accepts. Only the fields
// relevant to Kind are meaningful; the rest are left at their zero value.
type ToolParameter struct {
	Name        string
	Description string
	Kind        ParameterKind
	Required    bool
	Default     interface{}
	Deprecated  bool
	Examples    []interface{}

	// string
	Enum      []interface{}
	Format    string
	MinLength *int
	MaxLength *int
	Pattern   string
	Coerce    bool

	// number / integer
	Minimum *float64
	Maximum *float64

	// array
	Items       *ToolParameter
	MinItems    *int
	MaxItems    *int
	UniqueItems bool

	// object
	Properties map[string]*ToolParameter
}

// RetryStrategy names a retry policy implementation.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryExponential RetryStrategy = "exponential"
)

// RetryConfig parameterizes the RetryPolicy attached to a ToolSpec.
type RetryConfig struct {
	Strategy    RetryStrategy
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterFrac  float64
}

// CircuitBreakerStrategy names a circuit breaker implementation.
type CircuitBreakerStrategy string

const (
	BreakerStandard CircuitBreakerStrategy = "standard"
	BreakerAdaptive CircuitBreakerStrategy = "adaptive"
	BreakerNoop     CircuitBreakerStrategy = "noop"
)

// CircuitBreakerConfig parameterizes the breaker guarding a ToolSpec's
// backend calls. State is kept per tool name in the BreakerPolicy the
// Engine was built with, not in this struct.
type CircuitBreakerConfig struct {
	Enabled            bool
	Strategy           CircuitBreakerStrategy
	FailureThreshold   int
	RecoveryTimeout    time.Duration
	WindowSize         int
	MaxThreshold       int
	ErrorRateThreshold float64
}

// IdempotencyKeyStrategy names a key-generation strategy.
type IdempotencyKeyStrategy string

const (
	IdemDefault    IdempotencyKeyStrategy = "default"
	IdemFieldBased IdempotencyKeyStrategy = "field_based"
	IdemHashBased  IdempotencyKeyStrategy = "hash_based"
	IdemCustom     IdempotencyKeyStrategy = "custom"
)

// IdempotencyConfig parameterizes idempotent replay for a ToolSpec.
type IdempotencyConfig struct {
	Enabled               bool
	Strategy              IdempotencyKeyStrategy
	KeyFields             []string
	TTL                   time.Duration
	HashAlgorithm         string
	IncludeUserContext    bool
	IncludeSessionContext bool
	CustomKeyFunc         func(args map[string]interface{}, tctx *ToolContext, spec *ToolSpec) string

	// PersistResult controls whether a replay returns the original
	// payload or a content-free sentinel. nil (the zero value) means
	// true: the common case of persisting the full result.
	PersistResult *bool
}

// ShouldPersistResult reports whether a successful execution's full
// ToolResult should be cached, as opposed to only the fact that it ran.
func (c IdempotencyConfig) ShouldPersistResult() bool {
	return c.PersistResult == nil || *c.PersistResult
}

// ToolSpec is the immutable description of one callable tool. Specs are
// built once at registration time and never mutated by the Engine.
type ToolSpec struct {
	ID          string
	Version     string
	Name        string
	Description string
	ToolType    ToolType
	Parameters  []*ToolParameter

	ReturnType   ReturnType
	ReturnTarget ReturnTarget

	Owner       string
	Permissions []string
	RateLimit   int // calls/sec; 0 disables rate limiting for this spec

	Timeout        time.Duration
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	Idempotency    IdempotencyConfig
	MetricsTags    map[string]string

	// HTTP backend
	URL          string
	Method       string
	Headers      map[string]string
	Query        map[string]string
	BodyTemplate string

	// DB backend
	Driver           string
	ConnectionString string
	TableName        string
	Region           string
	EndpointURL      string

	// Function backend
	Function FunctionHandler
}

// FunctionHandler is the user-supplied implementation behind a
// ToolTypeFunction spec. Well-behaved handlers watch ctx.Done() on any
// blocking work so they unwind promptly when the call times out or is
// canceled.
type FunctionHandler func(ctx context.Context, tctx *ToolContext, args map[string]interface{}) (interface{}, error)

// ToolContext carries per-call identity, tracing and collaborator
// references through the pipeline. It is distinct from context.Context,
// which callers pass alongside it for cancellation and deadlines.
type ToolContext struct {
	TenantID     string
	UserID       string
	SessionID    string
	RunID        string
	TraceID      string
	SpanID       string
	ParentSpanID string
	Locale       string
	Timezone     string
	Auth         map[string]interface{}
	Extras       map[string]interface{}

	// Deadline, if non-zero, is an absolute cutoff: the stricter of it
	// and spec.Timeout wins (see Engine.attemptOnce).
	Deadline time.Time

	// IdempotencyKey is populated by the Engine once computed, so
	// downstream hooks and the backend strategy can observe it.
	IdempotencyKey string
}

// Usage reports resource consumption and pipeline bookkeeping for one
// Execute call. PromptTokens/CompletionTokens/CostUSD are filled in by a
// UsageCalculator the caller attached to the Engine; the default noop
// calculator leaves them zero, matching the permissive dev-environment
// defaults described by ENVIRONMENT (internal/timeconfig.IsDevEnvironment).
type Usage struct {
	BytesIn           int64
	BytesOut          int64
	PromptTokens      int64
	CompletionTokens  int64
	CostUSD           float64
	Attempts          int
	Retries           int
	CacheHit          bool
	IdempotencyReused bool
	CircuitOpened     bool
	LatencyMS         int64
}

// ToolResult is the outcome of a successful Execute call.
type ToolResult struct {
	ReturnType   ReturnType
	ReturnTarget ReturnTarget
	Content      interface{}
	Warnings     []string
	Usage        Usage
}
