package tools

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"sort"
	"sync"
	"time"
)

// KeyGenerator derives the idempotency key for one call. Implementations
// must be deterministic: identical (args, tctx, spec) must always yield
// the identical key.
type KeyGenerator interface {
	GenerateKey(args map[string]interface{}, tctx *ToolContext, spec *ToolSpec) string
}

// DefaultKeyGenerator hashes the spec identity, the caller's user and
// session, and the full canonicalized argument set.
type DefaultKeyGenerator struct{}

func (DefaultKeyGenerator) GenerateKey(args map[string]interface{}, tctx *ToolContext, spec *ToolSpec) string {
	return hashKeyParts(spec.ID, userOf(tctx), sessionOf(tctx), canonicalArgs(args, nil))
}

// FieldBasedKeyGenerator hashes only the fields named in
// ToolSpec.Idempotency.KeyFields, ignoring caller identity. Two different
// users submitting the same business key collide on purpose.
type FieldBasedKeyGenerator struct{}

func (FieldBasedKeyGenerator) GenerateKey(args map[string]interface{}, _ *ToolContext, spec *ToolSpec) string {
	return hashKeyParts(spec.ID, canonicalArgs(args, spec.Idempotency.KeyFields))
}

// HashBasedKeyGenerator is field_based plus an optional, explicitly
// configured slice of caller-identity fields and a configurable digest
// algorithm (sha256/sha512/md5, defaulting to sha256).
type HashBasedKeyGenerator struct{}

func (HashBasedKeyGenerator) GenerateKey(args map[string]interface{}, tctx *ToolContext, spec *ToolSpec) string {
	parts := []string{spec.ID}
	if spec.Idempotency.IncludeUserContext {
		parts = append(parts, userOf(tctx))
	}
	if spec.Idempotency.IncludeSessionContext {
		parts = append(parts, sessionOf(tctx))
	}
	parts = append(parts, canonicalArgs(args, spec.Idempotency.KeyFields))
	return hashKeyPartsWith(spec.Idempotency.HashAlgorithm, parts...)
}

// CustomKeyGenerator delegates to the function configured on the spec,
// falling back to DefaultKeyGenerator if none was supplied.
type CustomKeyGenerator struct{}

func (CustomKeyGenerator) GenerateKey(args map[string]interface{}, tctx *ToolContext, spec *ToolSpec) string {
	if spec.Idempotency.CustomKeyFunc != nil {
		return spec.Idempotency.CustomKeyFunc(args, tctx, spec)
	}
	return DefaultKeyGenerator{}.GenerateKey(args, tctx, spec)
}

func KeyGeneratorFor(strategy IdempotencyKeyStrategy) KeyGenerator {
	switch strategy {
	case IdemFieldBased:
		return FieldBasedKeyGenerator{}
	case IdemHashBased:
		return HashBasedKeyGenerator{}
	case IdemCustom:
		return CustomKeyGenerator{}
	default:
		return DefaultKeyGenerator{}
	}
}

func userOf(tctx *ToolContext) string {
	if tctx == nil {
		return ""
	}
	return tctx.UserID
}

func sessionOf(tctx *ToolContext) string {
	if tctx == nil {
		return ""
	}
	return tctx.SessionID
}

// canonicalArgs renders args as canonical JSON. When fields is non-empty
// only those keys participate; keys are emitted in sorted order, so the
// order of fields never affects the key.
func canonicalArgs(args map[string]interface{}, fields []string) string {
	if len(fields) == 0 {
		return canonicalJSON(args)
	}
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	subset := make(map[string]interface{}, len(sorted))
	for _, f := range sorted {
		if v, ok := args[f]; ok {
			subset[f] = v
		}
	}
	return canonicalJSON(subset)
}

func hashKeyParts(parts ...string) string {
	return hashKeyPartsWith("", parts...)
}

// hashKeyPartsWith digests parts with the named algorithm
// (sha256/sha512/md5), defaulting to sha256 when algorithm is empty or
// unrecognized.
func hashKeyPartsWith(algorithm string, parts ...string) string {
	var h hash.Hash
	switch algorithm {
	case "sha512":
		h = sha512.New()
	case "md5":
		h = md5.New()
	default:
		h = sha256.New()
	}
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store persists ToolResults keyed by idempotency key and provides a
// named mutual-exclusion lock so concurrent first-callers for the same
// key don't both execute the backend.
type Store interface {
	Get(ctx context.Context, key string) (*ToolResult, bool, error)
	Set(ctx context.Context, key string, result *ToolResult, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, result *ToolResult, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

type cacheEntry struct {
	result  *ToolResult
	expires time.Time
}

// InMemoryStore is a mutex-backed, single-process Store. A real
// horizontally scaled deployment should substitute a Redis-backed Store
// (see RedisStore) so idempotency locks are shared across processes.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	locks   map[string]*sync.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]cacheEntry),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*ToolResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.result, true, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, result *ToolResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.makeEntry(result, ttl)
	return nil
}

func (s *InMemoryStore) SetIfAbsent(_ context.Context, key string, result *ToolResult, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && (entry.expires.IsZero() || time.Now().Before(entry.expires)) {
		return false, nil
	}
	s.entries[key] = s.makeEntry(result, ttl)
	return true, nil
}

func (s *InMemoryStore) makeEntry(result *ToolResult, ttl time.Duration) cacheEntry {
	entry := cacheEntry{result: result}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	return entry
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Lock blocks until it owns the named mutex for key, then returns an
// unlock func. The lock is released automatically after ttl even if the
// caller never calls unlock, so a crashed first-caller can't wedge every
// subsequent caller for that key forever.
func (s *InMemoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	s.mu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The waiting goroutine still takes the mutex eventually; hand
		// it straight back so the key is not held with no owner.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() { once.Do(mu.Unlock) }
	if ttl > 0 {
		timer := time.AfterFunc(ttl, release)
		return func() {
			timer.Stop()
			release()
		}, nil
	}
	return release, nil
}
