package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecRoundTripsThroughJSON(t *testing.T) {
	spec := &ToolSpec{
		ID:       "tool.search",
		Name:     "search",
		ToolType: ToolTypeHTTP,
		URL:      "https://api.example.com/search",
		Method:   "GET",
		Parameters: []*ToolParameter{
			{Name: "q", Kind: KindString, Required: true, MaxLength: intPtr(200)},
			{Name: "tags", Kind: KindArray, Items: &ToolParameter{Kind: KindString}},
		},
		Timeout: 5 * time.Second,
		Retry: RetryConfig{
			Strategy:    RetryExponential,
			MaxAttempts: 4,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Multiplier:  2,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			Strategy:         BreakerStandard,
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Idempotency: IdempotencyConfig{
			Enabled:  true,
			Strategy: IdemFieldBased,
			KeyFields: []string{"q"},
			TTL:      time.Hour,
		},
	}

	data, err := MarshalSpec(spec)
	require.NoError(t, err)

	restored, err := UnmarshalSpec(data)
	require.NoError(t, err)

	assert.Equal(t, spec.ID, restored.ID)
	assert.Equal(t, spec.ToolType, restored.ToolType)
	assert.Equal(t, spec.URL, restored.URL)
	assert.Equal(t, spec.Timeout, restored.Timeout)
	assert.Equal(t, spec.Retry, restored.Retry)
	assert.Equal(t, spec.CircuitBreaker, restored.CircuitBreaker)
	require.Len(t, restored.Parameters, 2)
	assert.Equal(t, "q", restored.Parameters[0].Name)
	assert.Equal(t, KindArray, restored.Parameters[1].Kind)
	assert.Equal(t, KindString, restored.Parameters[1].Items.Kind)
}

func TestToOpenAIToolEmitsJSONSchema(t *testing.T) {
	spec := &ToolSpec{
		Name:        "search",
		Description: "search the web",
		Parameters: []*ToolParameter{
			{Name: "q", Kind: KindString, Required: true},
		},
	}
	out := ToOpenAITool(spec)
	assert.Equal(t, "function", out.Type)
	assert.Equal(t, "search", out.Function.Name)
	schema := out.Function.Parameters
	assert.Equal(t, "object", schema["type"])
	required := schema["required"].([]string)
	assert.Contains(t, required, "q")
}

func TestToAnthropicToolEmitsInputSchema(t *testing.T) {
	spec := &ToolSpec{
		Name: "search",
		Parameters: []*ToolParameter{
			{Name: "q", Kind: KindString, Required: true},
		},
	}
	out := ToAnthropicTool(spec)
	assert.Equal(t, "search", out.Name)
	assert.Equal(t, "object", out.InputSchema["type"])
}
