package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersToJSONSchemaTopLevelRequired(t *testing.T) {
	spec := &ToolSpec{
		Name: "tool.search",
		Parameters: []*ToolParameter{
			{Name: "query", Kind: KindString, Required: true},
			{Name: "limit", Kind: KindInteger},
		},
	}
	schema := ToOpenAITool(spec).Function.Parameters
	assert.ElementsMatch(t, []string{"query"}, schema["required"])
}

func TestParameterToJSONSchemaNestedObjectRequired(t *testing.T) {
	p := &ToolParameter{
		Name: "address",
		Kind: KindObject,
		Properties: map[string]*ToolParameter{
			"street": {Name: "street", Kind: KindString, Required: true},
			"city":   {Name: "city", Kind: KindString, Required: true},
			"suite":  {Name: "suite", Kind: KindString},
		},
	}
	schema := parameterToJSONSchema(p)
	required, ok := schema["required"].([]string)
	require.True(t, ok, "nested object schema must carry a required array derived from its children")
	assert.ElementsMatch(t, []string{"street", "city"}, required)
}

func TestParameterToJSONSchemaNestedObjectWithNoRequiredChildrenOmitsRequired(t *testing.T) {
	p := &ToolParameter{
		Name: "metadata",
		Kind: KindObject,
		Properties: map[string]*ToolParameter{
			"note": {Name: "note", Kind: KindString},
		},
	}
	schema := parameterToJSONSchema(p)
	_, ok := schema["required"]
	assert.False(t, ok)
}
