package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newTestManager() (*Manager, *MemoryTier, *MemoryTier) {
	memory := NewMemoryTier()
	persistent := NewMemoryTier()
	return NewManager(memory, persistent), memory, persistent
}

func TestManagerSetGet(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "discovery_trending_weekly", payload{Name: "trending"}, TypeDiscovery))

	entry, err := manager.Get(ctx, "discovery_trending_weekly", TypeDiscovery)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, TypeDiscovery, entry.DataType)
	assert.WithinDuration(t, time.Now(), entry.Timestamp, 5*time.Second)

	var got payload
	require.NoError(t, entry.Decode(&got))
	assert.Equal(t, "trending", got.Name)
}

func TestManagerGetMiss(t *testing.T) {
	manager, _, _ := newTestManager()

	entry, err := manager.Get(context.Background(), "nope", TypeDynamic)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestManagerBackfillsMemoryFromPersistent(t *testing.T) {
	manager, memory, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", payload{Name: "v"}, TypeUser))

	// simulate a process restart losing the memory tier
	require.NoError(t, memory.Delete(ctx, "k1"))
	assert.Zero(t, memory.Len())

	entry, err := manager.Get(ctx, "k1", TypeUser)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, memory.Len(), "read should backfill the memory tier")
}

func TestManagerDeleteRemovesBothTiersAndRegistry(t *testing.T) {
	manager, memory, persistent := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", payload{Name: "v"}, TypeStats))
	require.NoError(t, manager.Delete(ctx, "k1"))

	_, ok, err := memory.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = persistent.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, manager.AllKeys(""))
}

func TestManagerAllKeysByType(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "discovery_a", payload{}, TypeDiscovery))
	require.NoError(t, manager.Set(ctx, "discovery_b", payload{}, TypeDiscovery))
	require.NoError(t, manager.Set(ctx, "user_a", payload{}, TypeUser))

	assert.ElementsMatch(t, []string{"discovery_a", "discovery_b"}, manager.AllKeys(TypeDiscovery))
	assert.ElementsMatch(t, []string{"user_a"}, manager.AllKeys(TypeUser))
	assert.Len(t, manager.AllKeys(""), 3)

	dataType, ok := manager.DataTypeOf("user_a")
	assert.True(t, ok)
	assert.Equal(t, TypeUser, dataType)

	_, ok = manager.DataTypeOf("ghost")
	assert.False(t, ok)
}

func TestManagerStats(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", payload{}, TypeDiscovery))

	_, err := manager.Get(ctx, "k1", TypeDiscovery)
	require.NoError(t, err)
	_, err = manager.Get(ctx, "missing", TypeDiscovery)
	require.NoError(t, err)

	stats := manager.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Tracked)
	assert.Equal(t, 1, stats.MemorySize)
}

func TestManagerTTLOverrideIsConcurrencySafe(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			manager.SetTTL(TypeDiscovery, time.Duration(i+1)*time.Minute)
			assert.NoError(t, manager.Set(ctx, key, payload{Name: key}, TypeDiscovery))
			_, err := manager.Get(ctx, key, TypeDiscovery)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, manager.AllKeys(TypeDiscovery), 8)
}

func TestMemoryTierExpiry(t *testing.T) {
	tier := NewMemoryTier()
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, tier.Len())
}

func TestMemoryTierCopiesOnRead(t *testing.T) {
	tier := NewMemoryTier()
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("abc"), 0))

	b, ok, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	b[0] = 'x'

	again, _, _ := tier.Get(ctx, "k1")
	assert.Equal(t, []byte("abc"), again)
}
