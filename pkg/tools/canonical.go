package tools

import (
	"encoding/json"
	"sort"
)

// canonicalJSON renders v as JSON with map keys sorted recursively, so
// semantically identical arguments always produce byte-identical output
// regardless of map iteration order. Used for idempotency key derivation
// and for value-equality checks (enum membership, array uniqueness).
func canonicalJSON(v interface{}) string {
	b, err := json.Marshal(canonicalize(v))
	if err != nil {
		return ""
	}
	return string(b)
}

func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, canonicalize(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return val
	}
}

type kv struct {
	Key   string
	Value interface{}
}

// orderedMap marshals as a JSON object preserving insertion order, which
// canonicalize has already sorted by key.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyBytes, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}
