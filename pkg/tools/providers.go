package tools

import (
	"encoding/json"
	"sort"
)

// OpenAITool is the {"type":"function","function":{...}} shape the
// OpenAI chat completions API expects in its tools array.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

type OpenAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// AnthropicTool is the {"name","description","input_schema"} shape the
// Anthropic Messages API expects in its tools array.
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// GoogleTool is the {"name","description","parameters"} shape Google's
// function-calling API expects.
type GoogleTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToOpenAITool converts a ToolSpec into the OpenAI function-calling shape.
func ToOpenAITool(spec *ToolSpec) *OpenAITool {
	return &OpenAITool{
		Type: "function",
		Function: OpenAIToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parametersToJSONSchema(spec.Parameters),
		},
	}
}

// ToAnthropicTool converts a ToolSpec into the Anthropic tool-use shape.
func ToAnthropicTool(spec *ToolSpec) *AnthropicTool {
	return &AnthropicTool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: parametersToJSONSchema(spec.Parameters),
	}
}

// ToGoogleTool converts a ToolSpec into the shape Google's
// function-calling API expects.
func ToGoogleTool(spec *ToolSpec) *GoogleTool {
	return &GoogleTool{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parametersToJSONSchema(spec.Parameters),
	}
}

// parametersToJSONSchema renders a ToolSpec's parameter list as a
// JSON-Schema object, the common shape all three LLM providers embed
// their tool-call argument schema in.
func parametersToJSONSchema(params []*ToolParameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = parameterToJSONSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func parameterToJSONSchema(p *ToolParameter) map[string]interface{} {
	schema := map[string]interface{}{"type": string(p.Kind)}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Format != "" {
		schema["format"] = p.Format
	}
	if p.Default != nil {
		schema["default"] = p.Default
	}
	switch p.Kind {
	case KindString:
		if p.MinLength != nil {
			schema["minLength"] = *p.MinLength
		}
		if p.MaxLength != nil {
			schema["maxLength"] = *p.MaxLength
		}
		if p.Pattern != "" {
			schema["pattern"] = p.Pattern
		}
	case KindNumber, KindInteger:
		if p.Minimum != nil {
			schema["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			schema["maximum"] = *p.Maximum
		}
	case KindArray:
		if p.Items != nil {
			schema["items"] = parameterToJSONSchema(p.Items)
		}
		if p.MinItems != nil {
			schema["minItems"] = *p.MinItems
		}
		if p.MaxItems != nil {
			schema["maxItems"] = *p.MaxItems
		}
		if p.UniqueItems {
			schema["uniqueItems"] = true
		}
	case KindObject:
		if len(p.Properties) > 0 {
			schema["properties"] = propertiesToJSONSchema(p.Properties)
			if required := requiredPropertyNames(p.Properties); len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	return schema
}

// requiredPropertyNames returns the sorted names of props whose Required
// flag is set, mirroring parametersToJSONSchema's top-level required
// derivation for nested object parameters.
func requiredPropertyNames(props map[string]*ToolParameter) []string {
	var required []string
	for name, p := range props {
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}

func propertiesToJSONSchema(props map[string]*ToolParameter) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for name, p := range props {
		out[name] = parameterToJSONSchema(p)
	}
	return out
}

// ParsedToolCall is the normalized form of one tool invocation parsed out
// of a provider response, regardless of which provider produced it.
type ParsedToolCall struct {
	ID        string
	ToolName  string
	Arguments map[string]interface{}
}

// FromOpenAIToolCall parses the arguments JSON object from an OpenAI tool
// call into a ParsedToolCall.
func FromOpenAIToolCall(id, name string, argumentsJSON []byte) (*ParsedToolCall, error) {
	args, err := decodeArguments(argumentsJSON)
	if err != nil {
		return nil, err
	}
	return &ParsedToolCall{ID: id, ToolName: name, Arguments: args}, nil
}

// FromAnthropicToolUse parses the already-decoded input object from an
// Anthropic tool_use content block into a ParsedToolCall.
func FromAnthropicToolUse(id, name string, input map[string]interface{}) *ParsedToolCall {
	return &ParsedToolCall{ID: id, ToolName: name, Arguments: input}
}

func decodeArguments(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
