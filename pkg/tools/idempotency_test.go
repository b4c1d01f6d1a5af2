package tools

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyGeneratorIsDeterministic(t *testing.T) {
	spec := &ToolSpec{ID: "tool.charge"}
	tctx := &ToolContext{UserID: "u1", SessionID: "s1"}
	args := map[string]interface{}{"amount": 10, "currency": "usd"}

	gen := DefaultKeyGenerator{}
	k1 := gen.GenerateKey(args, tctx, spec)
	k2 := gen.GenerateKey(map[string]interface{}{"currency": "usd", "amount": 10}, tctx, spec)
	assert.Equal(t, k1, k2, "key order must not affect the derived key")
}

func TestDefaultKeyGeneratorDiffersByUser(t *testing.T) {
	spec := &ToolSpec{ID: "tool.charge"}
	args := map[string]interface{}{"amount": 10}
	gen := DefaultKeyGenerator{}
	k1 := gen.GenerateKey(args, &ToolContext{UserID: "u1"}, spec)
	k2 := gen.GenerateKey(args, &ToolContext{UserID: "u2"}, spec)
	assert.NotEqual(t, k1, k2)
}

func TestFieldBasedKeyGeneratorIgnoresUser(t *testing.T) {
	spec := &ToolSpec{ID: "tool.charge", Idempotency: IdempotencyConfig{KeyFields: []string{"amount"}}}
	args := map[string]interface{}{"amount": 10, "note": "ignored"}
	gen := FieldBasedKeyGenerator{}
	k1 := gen.GenerateKey(args, &ToolContext{UserID: "u1"}, spec)
	k2 := gen.GenerateKey(args, &ToolContext{UserID: "u2"}, spec)
	assert.Equal(t, k1, k2)
}

func TestInMemoryStoreGetSetRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	result := &ToolResult{Content: "ok"}

	_, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, store.Set(ctx, "k", result, time.Minute))
	got, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "ok", got.Content)
}

func TestInMemoryStoreExpiresEntries(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", &ToolResult{}, 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	_, hit, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInMemoryStoreSetIfAbsent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	ok, err := store.SetIfAbsent(ctx, "k", &ToolResult{Content: "first"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, "k", &ToolResult{Content: "second"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "first", got.Content)
}

func TestInMemoryStoreLockSerializesConcurrentFirstCallers(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := store.Lock(ctx, "key", time.Second)
			require.NoError(t, err)
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive, "only one caller should hold the named lock at a time")
}
