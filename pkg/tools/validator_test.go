package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int          { return &n }
func floatPtr(f float64) *float64 { return &f }

func sampleSpec() *ToolSpec {
	return &ToolSpec{
		ID:   "tool.sample",
		Name: "sample",
		Parameters: []*ToolParameter{
			{Name: "query", Kind: KindString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(50)},
			{Name: "limit", Kind: KindInteger, Minimum: floatPtr(1), Maximum: floatPtr(100)},
			{Name: "tags", Kind: KindArray, Items: &ToolParameter{Kind: KindString}, UniqueItems: true},
		},
	}
}

func TestBasicValidatorAcceptsValidArgs(t *testing.T) {
	v := BasicValidator{}
	args := map[string]interface{}{
		"query": "hello",
		"limit": float64(10),
		"tags":  []interface{}{"a", "b"},
	}
	require.NoError(t, v.Validate(args, sampleSpec()))
}

func TestBasicValidatorRejectsMissingRequired(t *testing.T) {
	v := BasicValidator{}
	err := v.Validate(map[string]interface{}{}, sampleSpec())
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidationError, te.Code)
}

func TestBasicValidatorRejectsUnknownKey(t *testing.T) {
	v := BasicValidator{}
	args := map[string]interface{}{"query": "hi", "bogus": 1}
	err := v.Validate(args, sampleSpec())
	require.Error(t, err)
}

func TestBasicValidatorRejectsOutOfRangeNumber(t *testing.T) {
	v := BasicValidator{}
	args := map[string]interface{}{"query": "hi", "limit": float64(1000)}
	err := v.Validate(args, sampleSpec())
	require.Error(t, err)
}

func TestBasicValidatorRejectsDuplicateUniqueItems(t *testing.T) {
	v := BasicValidator{}
	args := map[string]interface{}{"query": "hi", "tags": []interface{}{"a", "a"}}
	err := v.Validate(args, sampleSpec())
	require.Error(t, err)
}

func TestBasicValidatorCoercesStringToInteger(t *testing.T) {
	v := BasicValidator{}
	args := map[string]interface{}{"query": "hi"}
	spec := sampleSpec()
	spec.Parameters[1].Coerce = true
	args["limit"] = "42"
	require.NoError(t, v.Validate(args, spec))
	assert.Equal(t, int64(42), args["limit"])
}

func TestNoopValidatorAcceptsAnything(t *testing.T) {
	v := NoopValidator{}
	require.NoError(t, v.Validate(map[string]interface{}{"whatever": true}, sampleSpec()))
}
