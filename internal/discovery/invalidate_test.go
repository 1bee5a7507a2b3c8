package discovery

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/internal/cache"
)

// countingTier records Delete calls so tests can assert the persistent
// tier saw every invalidation. Deletes run concurrently, hence the lock.
type countingTier struct {
	*cache.MemoryTier

	mu      sync.Mutex
	deletes map[string]int
}

func newCountingTier() *countingTier {
	return &countingTier{MemoryTier: cache.NewMemoryTier(), deletes: make(map[string]int)}
}

func (t *countingTier) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	t.deletes[key]++
	t.mu.Unlock()
	return t.MemoryTier.Delete(ctx, key)
}

func (t *countingTier) deleteCount(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deletes[key]
}

func newInvalidationFixture(t *testing.T) (*DataService, *cache.Manager, *countingTier) {
	t.Helper()
	persistent := newCountingTier()
	manager := cache.NewManager(cache.NewMemoryTier(), persistent)
	svc := NewDataService(manager, nil)

	ctx := context.Background()
	seed := map[string]string{
		"discovery_trending_weekly":  cache.TypeDiscovery,
		"discovery_new_arrivals_30d": cache.TypeDiscovery,
		"discovery_editors_pick":     cache.TypeDiscovery,
		"user_profile_123":           cache.TypeUser,
		"user_library_123":           cache.TypeUser,
		"novel_stats_456":            cache.TypeStats,
	}
	for key, dataType := range seed {
		require.NoError(t, manager.Set(ctx, key, map[string]string{"k": key}, dataType))
	}
	return svc, manager, persistent
}

func TestSelectiveInvalidateRegex(t *testing.T) {
	svc, manager, persistent := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(),
		[]Pattern{Regex(regexp.MustCompile(`^discovery_`))}, InvalidateOptions{})

	assert.ElementsMatch(t, []string{
		"discovery_trending_weekly",
		"discovery_new_arrivals_30d",
		"discovery_editors_pick",
	}, keys)

	// untouched keys survive in both tiers and the registry
	assert.ElementsMatch(t, []string{
		"user_profile_123", "user_library_123", "novel_stats_456",
	}, manager.AllKeys(""))

	for _, key := range keys {
		assert.Equal(t, 1, persistent.deleteCount(key), "persistent delete for %s", key)
		entry, err := manager.Get(context.Background(), key, cache.TypeDiscovery)
		require.NoError(t, err)
		assert.Nil(t, entry, "key %s should be gone", key)
	}
	assert.Zero(t, persistent.deleteCount("user_profile_123"))
}

func TestSelectiveInvalidateLiteral(t *testing.T) {
	svc, _, _ := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(),
		[]Pattern{Literal("library")}, InvalidateOptions{})

	assert.Equal(t, []string{"user_library_123"}, keys)
}

func TestSelectiveInvalidatePatternsAreORed(t *testing.T) {
	svc, _, _ := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(), []Pattern{
		Literal("editors"),
		Regex(regexp.MustCompile(`^user_`)),
	}, InvalidateOptions{})

	assert.ElementsMatch(t, []string{
		"discovery_editors_pick",
		"user_profile_123",
		"user_library_123",
	}, keys)
}

func TestSelectiveInvalidateTypeSweep(t *testing.T) {
	svc, manager, _ := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(), nil, InvalidateOptions{
		DataTypes: []string{cache.TypeUser},
	})

	assert.ElementsMatch(t, []string{"user_profile_123", "user_library_123"}, keys)
	assert.Len(t, manager.AllKeys(""), 4)
}

func TestSelectiveInvalidateTags(t *testing.T) {
	svc, _, _ := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(), nil, InvalidateOptions{
		Tags: []string{"stats"},
	})

	assert.Equal(t, []string{"novel_stats_456"}, keys)
}

func TestSelectiveInvalidateOlderThan(t *testing.T) {
	svc, manager, _ := newInvalidationFixture(t)
	ctx := context.Background()

	// a cutoff in the past matches nothing that was just written
	keys := svc.SelectiveInvalidate(ctx, nil, InvalidateOptions{
		OlderThan: time.Now().Add(-time.Hour),
	})
	assert.Empty(t, keys)
	assert.Len(t, manager.AllKeys(""), 6)

	// a future cutoff matches every entry via its stored write timestamp
	keys = svc.SelectiveInvalidate(ctx, nil, InvalidateOptions{
		OlderThan: time.Now().Add(time.Minute),
	})
	assert.Len(t, keys, 6)
	assert.Empty(t, manager.AllKeys(""))
}

// backdateEntry rewrites a registered key in both tiers with an envelope
// carrying an older write timestamp, as if the entry had been sitting in
// the cache since ts.
func backdateEntry(t *testing.T, manager *cache.Manager, key string, ts time.Time) {
	t.Helper()
	b, err := json.Marshal(cache.Entry{
		DataType:  cache.TypeDiscovery,
		Timestamp: ts,
		Value:     json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, manager.Memory().Set(ctx, key, b, time.Hour))
	require.NoError(t, manager.Persistent().Set(ctx, key, b, time.Hour))
}

func TestSelectiveInvalidateOlderThanMixedAges(t *testing.T) {
	manager := cache.NewManager(cache.NewMemoryTier(), cache.NewMemoryTier())
	svc := NewDataService(manager, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	ages := map[string]time.Time{
		"discovery_old":     now.Add(-2 * time.Hour),
		"discovery_recent":  now.Add(-30 * time.Minute),
		"discovery_current": now,
	}
	for key, ts := range ages {
		require.NoError(t, manager.Set(ctx, key, map[string]string{"k": key}, cache.TypeDiscovery))
		backdateEntry(t, manager, key, ts)
	}

	keys := svc.SelectiveInvalidate(ctx, nil, InvalidateOptions{
		OlderThan: now.Add(-time.Hour),
	})

	assert.Equal(t, []string{"discovery_old"}, keys)
	assert.ElementsMatch(t, []string{"discovery_recent", "discovery_current"}, manager.AllKeys(""))

	entry, err := manager.Get(ctx, "discovery_recent", cache.TypeDiscovery)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Timestamp.Equal(ages["discovery_recent"]))
}

func TestSelectiveInvalidateNoCriteria(t *testing.T) {
	svc, manager, _ := newInvalidationFixture(t)

	keys := svc.SelectiveInvalidate(context.Background(), nil, InvalidateOptions{})

	assert.Empty(t, keys)
	assert.Len(t, manager.AllKeys(""), 6)
}

func TestInferDataTypeFromKey(t *testing.T) {
	for key, want := range map[string]string{
		"discovery_trending_weekly": cache.TypeDiscovery,
		"trending_daily":            cache.TypeDiscovery,
		"top_novels_by_genre":       cache.TypeDiscovery,
		"user_profile_123":          cache.TypeUser,
		"novel_stats_456":           cache.TypeStats,
		"site_metadata":             cache.TypeStats,
		"something_else":            cache.TypeDynamic,
	} {
		assert.Equal(t, want, inferDataTypeFromKey(key), "key %s", key)
	}
}
