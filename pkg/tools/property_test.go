//go:build property

package tools

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Property-based tests for canonicalization and idempotency invariants.
// Run separately: go test -tags=property ./pkg/tools -run TestProperty

func generateArgValue() *rapid.Generator[interface{}] {
	return rapid.Custom(func(t *rapid.T) interface{} {
		switch rapid.IntRange(0, 2).Draw(t, "kind") {
		case 0:
			return rapid.IntRange(-1000, 1000).Draw(t, "intVal")
		case 1:
			return rapid.SampledFrom([]string{"alpha", "bravo", "charlie", "", "delta-echo"}).Draw(t, "strVal")
		default:
			return rapid.SampledFrom([]bool{true, false}).Draw(t, "boolVal")
		}
	})
}

func generateArgs() *rapid.Generator[map[string]interface{}] {
	return rapid.Custom(func(t *rapid.T) map[string]interface{} {
		n := rapid.IntRange(0, 8).Draw(t, "numKeys")
		args := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("k%d", rapid.IntRange(0, 20).Draw(t, fmt.Sprintf("key_%d", i)))
			args[key] = generateArgValue().Draw(t, fmt.Sprintf("val_%d", i))
		}
		return args
	})
}

// TestPropertyCanonicalJSONIsDeterministic verifies canonicalJSON produces
// the same string for two maps built from copying the same key/value
// pairs, independent of Go's randomized map iteration order.
func TestPropertyCanonicalJSONIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		args := generateArgs().Draw(t, "args")

		rebuilt := make(map[string]interface{}, len(args))
		for k, v := range args {
			rebuilt[k] = v
		}

		if canonicalJSON(args) != canonicalJSON(rebuilt) {
			t.Fatalf("canonicalJSON differed across map copies of the same content: %#v", args)
		}
	})
}

// TestPropertyDefaultKeyGeneratorIsDeterministic verifies the same
// (spec, tctx, args) always produces the same idempotency key, and that
// changing the caller's user ID changes the key.
func TestPropertyDefaultKeyGeneratorIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		specID := rapid.SampledFrom([]string{"tool.a", "tool.b", "tool.refund", "tool.lookup"}).Draw(t, "specID")
		userID := rapid.SampledFrom([]string{"", "user-1", "user-2"}).Draw(t, "userID")
		args := generateArgs().Draw(t, "args")

		spec := &ToolSpec{ID: specID}
		tctx := &ToolContext{UserID: userID}

		key1 := DefaultKeyGenerator{}.GenerateKey(args, tctx, spec)
		key2 := DefaultKeyGenerator{}.GenerateKey(args, tctx, spec)
		if key1 != key2 {
			t.Fatalf("same inputs produced different keys: %q vs %q", key1, key2)
		}

		otherTctx := &ToolContext{UserID: userID + "-other"}
		key3 := DefaultKeyGenerator{}.GenerateKey(args, otherTctx, spec)
		if key1 == key3 {
			t.Fatalf("different users produced the same key %q", key1)
		}
	})
}

// TestPropertyHashKeyPartsWithIsStableAcrossAlgorithms verifies every
// supported digest algorithm produces a deterministic hex digest for the
// same input parts.
func TestPropertyHashKeyPartsWithIsStableAcrossAlgorithms(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		algorithm := rapid.SampledFrom([]string{"sha256", "sha512", "md5", "unknown"}).Draw(t, "algorithm")
		n := rapid.IntRange(1, 5).Draw(t, "numParts")
		parts := make([]string, n)
		for i := range parts {
			parts[i] = rapid.SampledFrom([]string{"a", "b", "", "part-with-dashes", "1234"}).Draw(t, fmt.Sprintf("part_%d", i))
		}

		h1 := hashKeyPartsWith(algorithm, parts...)
		h2 := hashKeyPartsWith(algorithm, parts...)
		if h1 != h2 {
			t.Fatalf("hashKeyPartsWith(%q, %v) was not deterministic: %q vs %q", algorithm, parts, h1, h2)
		}
	})
}
