package tools

import (
	"encoding/json"
	"fmt"
	"time"
)

// toolSpecWire is the on-the-wire shape of a ToolSpec. FunctionHandler
// values are process-local Go closures and have no wire representation;
// specs serialize everything except Function and
// Idempotency.CustomKeyFunc, and
// deserializing one yields a spec whose Function must be reattached by
// the caller (typically by looking it up in a local function registry by
// ID) before it can be executed.
type toolSpecWire struct {
	ID          string               `json:"id"`
	Version     string               `json:"version,omitempty"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	ToolType    ToolType             `json:"tool_type"`
	Parameters  []*parameterWire     `json:"parameters,omitempty"`

	ReturnType   ReturnType   `json:"return_type,omitempty"`
	ReturnTarget ReturnTarget `json:"return_target,omitempty"`

	Owner       string   `json:"owner,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	RateLimit   int      `json:"rate_limit,omitempty"`

	TimeoutMS      int64                `json:"timeout_ms,omitempty"`
	Retry          *retryWire           `json:"retry,omitempty"`
	CircuitBreaker *circuitBreakerWire  `json:"circuit_breaker,omitempty"`
	Idempotency    *idempotencyWire     `json:"idempotency,omitempty"`
	MetricsTags    map[string]string    `json:"metrics_tags,omitempty"`

	URL          string            `json:"url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Query        map[string]string `json:"query,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`

	Driver           string `json:"driver,omitempty"`
	ConnectionString string `json:"connection_string,omitempty"`
	TableName        string `json:"table_name,omitempty"`
	Region           string `json:"region,omitempty"`
	EndpointURL      string `json:"endpoint_url,omitempty"`
}

type parameterWire struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Kind        ParameterKind             `json:"kind"`
	Required    bool                      `json:"required,omitempty"`
	Default     interface{}               `json:"default,omitempty"`
	Deprecated  bool                      `json:"deprecated,omitempty"`
	Examples    []interface{}             `json:"examples,omitempty"`
	Enum        []interface{}             `json:"enum,omitempty"`
	Format      string                    `json:"format,omitempty"`
	MinLength   *int                      `json:"min_length,omitempty"`
	MaxLength   *int                      `json:"max_length,omitempty"`
	Pattern     string                    `json:"pattern,omitempty"`
	Coerce      bool                      `json:"coerce,omitempty"`
	Minimum     *float64                  `json:"minimum,omitempty"`
	Maximum     *float64                  `json:"maximum,omitempty"`
	Items       *parameterWire            `json:"items,omitempty"`
	MinItems    *int                      `json:"min_items,omitempty"`
	MaxItems    *int                      `json:"max_items,omitempty"`
	UniqueItems bool                      `json:"unique_items,omitempty"`
	Properties  map[string]*parameterWire `json:"properties,omitempty"`
}

type retryWire struct {
	Strategy    RetryStrategy `json:"strategy"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	BaseDelayMS int64         `json:"base_delay_ms,omitempty"`
	MaxDelayMS  int64         `json:"max_delay_ms,omitempty"`
	Multiplier  float64       `json:"multiplier,omitempty"`
	JitterFrac  float64       `json:"jitter_frac,omitempty"`
}

type circuitBreakerWire struct {
	Enabled            bool                   `json:"enabled"`
	Strategy           CircuitBreakerStrategy `json:"strategy,omitempty"`
	FailureThreshold   int                    `json:"failure_threshold,omitempty"`
	RecoveryTimeoutMS  int64                  `json:"recovery_timeout_ms,omitempty"`
	WindowSize         int                    `json:"window_size,omitempty"`
	MaxThreshold       int                    `json:"max_threshold,omitempty"`
	ErrorRateThreshold float64                `json:"error_rate_threshold,omitempty"`
}

type idempotencyWire struct {
	Enabled               bool                   `json:"enabled"`
	Strategy              IdempotencyKeyStrategy `json:"strategy,omitempty"`
	KeyFields             []string               `json:"key_fields,omitempty"`
	TTLMS                 int64                  `json:"ttl_ms,omitempty"`
	HashAlgorithm         string                 `json:"hash_algorithm,omitempty"`
	IncludeUserContext    bool                   `json:"include_user_context,omitempty"`
	IncludeSessionContext bool                   `json:"include_session_context,omitempty"`
	PersistResult         *bool                  `json:"persist_result,omitempty"`
}

// MarshalSpec renders a ToolSpec as JSON for catalog distribution or LLM
// tool-definition export. Function handlers are omitted; see
// toolSpecWire.
func MarshalSpec(spec *ToolSpec) ([]byte, error) {
	return json.Marshal(toWire(spec))
}

// UnmarshalSpec parses JSON produced by MarshalSpec back into a ToolSpec.
// For ToolTypeFunction specs, Function is left nil and must be reattached
// by the caller before the spec is registered with an Engine.
func UnmarshalSpec(data []byte) (*ToolSpec, error) {
	var wire toolSpecWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal tool spec: %w", err)
	}
	return fromWire(&wire), nil
}

func toWire(spec *ToolSpec) *toolSpecWire {
	w := &toolSpecWire{
		ID:               spec.ID,
		Version:          spec.Version,
		Name:             spec.Name,
		Description:      spec.Description,
		ToolType:         spec.ToolType,
		ReturnType:       spec.ReturnType,
		ReturnTarget:     spec.ReturnTarget,
		Owner:            spec.Owner,
		Permissions:      spec.Permissions,
		RateLimit:        spec.RateLimit,
		TimeoutMS:        spec.Timeout.Milliseconds(),
		MetricsTags:      spec.MetricsTags,
		URL:              spec.URL,
		Method:           spec.Method,
		Headers:          spec.Headers,
		Query:            spec.Query,
		BodyTemplate:     spec.BodyTemplate,
		Driver:           spec.Driver,
		ConnectionString: spec.ConnectionString,
		TableName:        spec.TableName,
		Region:           spec.Region,
		EndpointURL:      spec.EndpointURL,
	}
	for _, p := range spec.Parameters {
		w.Parameters = append(w.Parameters, paramToWire(p))
	}
	w.Retry = &retryWire{
		Strategy:    spec.Retry.Strategy,
		MaxAttempts: spec.Retry.MaxAttempts,
		BaseDelayMS: spec.Retry.BaseDelay.Milliseconds(),
		MaxDelayMS:  spec.Retry.MaxDelay.Milliseconds(),
		Multiplier:  spec.Retry.Multiplier,
		JitterFrac:  spec.Retry.JitterFrac,
	}
	w.CircuitBreaker = &circuitBreakerWire{
		Enabled:            spec.CircuitBreaker.Enabled,
		Strategy:           spec.CircuitBreaker.Strategy,
		FailureThreshold:   spec.CircuitBreaker.FailureThreshold,
		RecoveryTimeoutMS:  spec.CircuitBreaker.RecoveryTimeout.Milliseconds(),
		WindowSize:         spec.CircuitBreaker.WindowSize,
		MaxThreshold:       spec.CircuitBreaker.MaxThreshold,
		ErrorRateThreshold: spec.CircuitBreaker.ErrorRateThreshold,
	}
	w.Idempotency = &idempotencyWire{
		Enabled:               spec.Idempotency.Enabled,
		Strategy:              spec.Idempotency.Strategy,
		KeyFields:             spec.Idempotency.KeyFields,
		TTLMS:                 spec.Idempotency.TTL.Milliseconds(),
		HashAlgorithm:         spec.Idempotency.HashAlgorithm,
		IncludeUserContext:    spec.Idempotency.IncludeUserContext,
		IncludeSessionContext: spec.Idempotency.IncludeSessionContext,
		PersistResult:         spec.Idempotency.PersistResult,
	}
	return w
}

func paramToWire(p *ToolParameter) *parameterWire {
	if p == nil {
		return nil
	}
	w := &parameterWire{
		Name:        p.Name,
		Description: p.Description,
		Kind:        p.Kind,
		Required:    p.Required,
		Default:     p.Default,
		Deprecated:  p.Deprecated,
		Examples:    p.Examples,
		Enum:        p.Enum,
		Format:      p.Format,
		MinLength:   p.MinLength,
		MaxLength:   p.MaxLength,
		Pattern:     p.Pattern,
		Coerce:      p.Coerce,
		Minimum:     p.Minimum,
		Maximum:     p.Maximum,
		MinItems:    p.MinItems,
		MaxItems:    p.MaxItems,
		UniqueItems: p.UniqueItems,
		Items:       paramToWire(p.Items),
	}
	if len(p.Properties) > 0 {
		w.Properties = make(map[string]*parameterWire, len(p.Properties))
		for k, v := range p.Properties {
			w.Properties[k] = paramToWire(v)
		}
	}
	return w
}

func fromWire(w *toolSpecWire) *ToolSpec {
	spec := &ToolSpec{
		ID:               w.ID,
		Version:          w.Version,
		Name:             w.Name,
		Description:      w.Description,
		ToolType:         w.ToolType,
		ReturnType:       w.ReturnType,
		ReturnTarget:     w.ReturnTarget,
		Owner:            w.Owner,
		Permissions:      w.Permissions,
		RateLimit:        w.RateLimit,
		Timeout:          time.Duration(w.TimeoutMS) * time.Millisecond,
		MetricsTags:      w.MetricsTags,
		URL:              w.URL,
		Method:           w.Method,
		Headers:          w.Headers,
		Query:            w.Query,
		BodyTemplate:     w.BodyTemplate,
		Driver:           w.Driver,
		ConnectionString: w.ConnectionString,
		TableName:        w.TableName,
		Region:           w.Region,
		EndpointURL:      w.EndpointURL,
	}
	for _, p := range w.Parameters {
		spec.Parameters = append(spec.Parameters, paramFromWire(p))
	}
	if w.Retry != nil {
		spec.Retry = RetryConfig{
			Strategy:    w.Retry.Strategy,
			MaxAttempts: w.Retry.MaxAttempts,
			BaseDelay:   time.Duration(w.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(w.Retry.MaxDelayMS) * time.Millisecond,
			Multiplier:  w.Retry.Multiplier,
			JitterFrac:  w.Retry.JitterFrac,
		}
	}
	if w.CircuitBreaker != nil {
		spec.CircuitBreaker = CircuitBreakerConfig{
			Enabled:            w.CircuitBreaker.Enabled,
			Strategy:           w.CircuitBreaker.Strategy,
			FailureThreshold:   w.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:    time.Duration(w.CircuitBreaker.RecoveryTimeoutMS) * time.Millisecond,
			WindowSize:         w.CircuitBreaker.WindowSize,
			MaxThreshold:       w.CircuitBreaker.MaxThreshold,
			ErrorRateThreshold: w.CircuitBreaker.ErrorRateThreshold,
		}
	}
	if w.Idempotency != nil {
		spec.Idempotency = IdempotencyConfig{
			Enabled:               w.Idempotency.Enabled,
			Strategy:              w.Idempotency.Strategy,
			KeyFields:             w.Idempotency.KeyFields,
			TTL:                   time.Duration(w.Idempotency.TTLMS) * time.Millisecond,
			HashAlgorithm:         w.Idempotency.HashAlgorithm,
			IncludeUserContext:    w.Idempotency.IncludeUserContext,
			IncludeSessionContext: w.Idempotency.IncludeSessionContext,
			PersistResult:         w.Idempotency.PersistResult,
		}
	}
	return spec
}

func paramFromWire(w *parameterWire) *ToolParameter {
	if w == nil {
		return nil
	}
	p := &ToolParameter{
		Name:        w.Name,
		Description: w.Description,
		Kind:        w.Kind,
		Required:    w.Required,
		Default:     w.Default,
		Deprecated:  w.Deprecated,
		Examples:    w.Examples,
		Enum:        w.Enum,
		Format:      w.Format,
		MinLength:   w.MinLength,
		MaxLength:   w.MaxLength,
		Pattern:     w.Pattern,
		Coerce:      w.Coerce,
		Minimum:     w.Minimum,
		Maximum:     w.Maximum,
		MinItems:    w.MinItems,
		MaxItems:    w.MaxItems,
		UniqueItems: w.UniqueItems,
		Items:       paramFromWire(w.Items),
	}
	if len(w.Properties) > 0 {
		p.Properties = make(map[string]*ToolParameter, len(w.Properties))
		for k, v := range w.Properties {
			p.Properties[k] = paramFromWire(v)
		}
	}
	return p
}
