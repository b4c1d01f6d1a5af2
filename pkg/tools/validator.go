package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validator checks a call's arguments against a ToolSpec's parameter list
// before anything else in the pipeline runs.
type Validator interface {
	Validate(args map[string]interface{}, spec *ToolSpec) error
}

// NoopValidator accepts every call unchanged. Useful for specs whose
// backend already enforces its own argument shape.
type NoopValidator struct{}

func (NoopValidator) Validate(map[string]interface{}, *ToolSpec) error { return nil }

// BasicValidator enforces required parameters, type/kind matching, string
// length/pattern/format/enum constraints, numeric bounds, array cardinality
// and uniqueness, and nested object properties. Unknown keys not declared
// on the spec are rejected. When a ToolParameter has Coerce set, string
// arguments are converted to a declared integer/number/boolean kind, and
// scalar non-string arguments to a string parameter are stringified,
// before validation.
type BasicValidator struct{}

func (BasicValidator) Validate(args map[string]interface{}, spec *ToolSpec) error {
	errs := &ValidationErrors{}

	// Work against a copy so a failed validation never leaves args
	// partially defaulted or coerced: args is only overwritten with the
	// working copy once validation succeeds outright.
	working := make(map[string]interface{}, len(args))
	for k, v := range args {
		working[k] = v
	}

	known := make(map[string]*ToolParameter, len(spec.Parameters))
	for _, p := range spec.Parameters {
		known[p.Name] = p
	}
	for key := range working {
		if _, ok := known[key]; !ok {
			errs.Add(key, fmt.Sprintf("unknown parameter %q", key))
		}
	}

	for _, p := range spec.Parameters {
		val, present := working[p.Name]
		if !present {
			if p.Default != nil {
				working[p.Name] = p.Default
				continue
			}
			if p.Required {
				errs.Add(p.Name, "required parameter is missing")
			}
			continue
		}
		if p.Coerce {
			val = coerceValue(val, p.Kind)
			working[p.Name] = val
		}
		validateParameter(p.Name, val, p, errs)
	}

	if errs.HasErrors() {
		return NewToolError(CodeValidationError, errs.Error())
	}

	for k := range args {
		if _, ok := working[k]; !ok {
			delete(args, k)
		}
	}
	for k, v := range working {
		args[k] = v
	}
	return nil
}

// ValidationErrors accumulates field-scoped validation failures.
type ValidationErrors struct {
	Errors []string
}

func (e *ValidationErrors) Add(field, msg string) {
	e.Errors = append(e.Errors, fmt.Sprintf("%s: %s", field, msg))
}

func (e *ValidationErrors) HasErrors() bool { return len(e.Errors) > 0 }

func (e *ValidationErrors) Error() string {
	return strings.Join(e.Errors, "; ")
}

func coerceValue(val interface{}, kind ParameterKind) interface{} {
	s, ok := val.(string)
	if !ok {
		if kind == KindString {
			switch val.(type) {
			case bool, int, int32, int64, float32, float64:
				return fmt.Sprint(val)
			}
		}
		return val
	}
	switch kind {
	case KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case KindNumber:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case KindBoolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return val
}

func validateParameter(path string, val interface{}, p *ToolParameter, errs *ValidationErrors) {
	if !matchesKind(val, p.Kind) {
		errs.Add(path, fmt.Sprintf("expected %s, got %T", p.Kind, val))
		return
	}
	if len(p.Enum) > 0 && !containsValue(p.Enum, val) {
		errs.Add(path, "value is not one of the allowed enum values")
	}
	switch p.Kind {
	case KindString:
		validateString(path, val.(string), p, errs)
	case KindNumber, KindInteger:
		validateNumber(path, val, p, errs)
	case KindArray:
		validateArray(path, val, p, errs)
	case KindObject:
		validateObject(path, val, p, errs)
	}
}

func matchesKind(val interface{}, kind ParameterKind) bool {
	switch kind {
	case KindString:
		_, ok := val.(string)
		return ok
	case KindBoolean:
		_, ok := val.(bool)
		return ok
	case KindInteger:
		switch n := val.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		}
		return false
	case KindNumber:
		switch val.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case KindArray:
		_, ok := val.([]interface{})
		return ok
	case KindObject:
		_, ok := val.(map[string]interface{})
		return ok
	}
	return false
}

func validateString(path, val string, p *ToolParameter, errs *ValidationErrors) {
	if p.MinLength != nil && len(val) < *p.MinLength {
		errs.Add(path, fmt.Sprintf("length %d is less than minimum %d", len(val), *p.MinLength))
	}
	if p.MaxLength != nil && len(val) > *p.MaxLength {
		errs.Add(path, fmt.Sprintf("length %d exceeds maximum %d", len(val), *p.MaxLength))
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			errs.Add(path, fmt.Sprintf("invalid pattern on spec: %v", err))
		} else if !re.MatchString(val) {
			errs.Add(path, fmt.Sprintf("value does not match pattern %q", p.Pattern))
		}
	}
	if p.Format != "" {
		if err := validateFormat(val, p.Format); err != nil {
			errs.Add(path, err.Error())
		}
	}
}

var formatRegexes = map[string]*regexp.Regexp{
	"email":    regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
	"uuid":     regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	"ipv4":     regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`),
	"date":     regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

func validateFormat(val, format string) error {
	switch format {
	case "date-time":
		if _, err := time.Parse(time.RFC3339, val); err != nil {
			return fmt.Errorf("value is not a valid RFC3339 date-time")
		}
		return nil
	case "uri", "url":
		if !strings.Contains(val, "://") {
			return fmt.Errorf("value is not a valid URI")
		}
		return nil
	}
	if re, ok := formatRegexes[format]; ok {
		if !re.MatchString(val) {
			return fmt.Errorf("value does not match format %q", format)
		}
		return nil
	}
	return nil
}

func validateNumber(path string, val interface{}, p *ToolParameter, errs *ValidationErrors) {
	f := toFloat64(val)
	if p.Minimum != nil && f < *p.Minimum {
		errs.Add(path, fmt.Sprintf("value %v is less than minimum %v", f, *p.Minimum))
	}
	if p.Maximum != nil && f > *p.Maximum {
		errs.Add(path, fmt.Sprintf("value %v exceeds maximum %v", f, *p.Maximum))
	}
}

func toFloat64(val interface{}) float64 {
	switch n := val.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func validateArray(path string, val interface{}, p *ToolParameter, errs *ValidationErrors) {
	arr := val.([]interface{})
	if p.MinItems != nil && len(arr) < *p.MinItems {
		errs.Add(path, fmt.Sprintf("array has %d items, fewer than minimum %d", len(arr), *p.MinItems))
	}
	if p.MaxItems != nil && len(arr) > *p.MaxItems {
		errs.Add(path, fmt.Sprintf("array has %d items, more than maximum %d", len(arr), *p.MaxItems))
	}
	if p.UniqueItems {
		seen := make(map[string]struct{}, len(arr))
		for _, item := range arr {
			key := canonicalJSON(item)
			if _, dup := seen[key]; dup {
				errs.Add(path, "array items must be unique")
				break
			}
			seen[key] = struct{}{}
		}
	}
	if p.Items != nil {
		for i, item := range arr {
			validateParameter(fmt.Sprintf("%s[%d]", path, i), item, p.Items, errs)
		}
	}
}

func validateObject(path string, val interface{}, p *ToolParameter, errs *ValidationErrors) {
	obj := val.(map[string]interface{})
	for name, child := range p.Properties {
		cv, present := obj[name]
		if !present {
			if child.Required {
				errs.Add(path+"."+name, "required property is missing")
			}
			continue
		}
		validateParameter(path+"."+name, cv, child, errs)
	}
	if len(p.Properties) > 0 {
		for key := range obj {
			if _, ok := p.Properties[key]; !ok {
				errs.Add(path, fmt.Sprintf("unknown property %q", key))
			}
		}
	}
}

func containsValue(haystack []interface{}, needle interface{}) bool {
	target := canonicalJSON(needle)
	for _, v := range haystack {
		if canonicalJSON(v) == target {
			return true
		}
	}
	return false
}
