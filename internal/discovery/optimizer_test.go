package discovery

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/internal/cache"
	"novelhub/internal/novels"
	"novelhub/pkg/database"
	"novelhub/pkg/models"
)

func newOptimizerFixture(t *testing.T) (*SQLOptimizer, *cache.Manager) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1) // one shared in-memory database
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))

	now := time.Now().UTC()
	repo := novels.NewRepo(db)
	seed := []models.NovelDB{
		{
			ID: "n1", Title: "Emberfall", Author: "L. Quill",
			Genres: []string{"fantasy"}, Rating: 4.8, ViewCount: 1000,
			Status: models.StatusActive, PublishedAt: now.AddDate(0, 0, -10),
		},
		{
			ID: "n2", Title: "Hollow Tide", Author: "M. Reyes",
			Genres: []string{"horror"}, Rating: 3.0, ViewCount: 500,
			Featured: true, Rank: 1,
			Status: models.StatusCompleted, PublishedAt: now.AddDate(0, 0, -40),
		},
		{
			ID: "n3", Title: "Skybound", Author: "L. Quill",
			Genres: []string{"fantasy", "adventure"}, Rating: 4.0, ViewCount: 2000,
			Featured: true, Rank: 2,
			Status: models.StatusActive, PublishedAt: now.AddDate(0, 0, -2),
		},
	}
	for _, n := range seed {
		require.NoError(t, repo.Upsert(context.Background(), n))
	}

	manager := cache.NewManager(cache.NewMemoryTier(), cache.NewMemoryTier())
	return NewSQLOptimizer(db, manager), manager
}

func laneIDs(records []models.RawNovelRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestSQLOptimizerUnifiedFetch(t *testing.T) {
	opt, _ := newOptimizerFixture(t)
	ctx := context.Background()

	result, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Metadata.CacheHit)
	assert.Equal(t, []string{"n3", "n1", "n2"}, laneIDs(result.Trending), "most viewed first")
	assert.Equal(t, []string{"n3", "n1"}, laneIDs(result.NewArrivals), "only novels published inside the window")
	assert.Equal(t, []string{"n2", "n3"}, laneIDs(result.EditorsPick), "featured novels by rank")
	assert.Equal(t, []string{"n1", "n3"}, laneIDs(result.CategoryNovels), "fantasy by rating")

	assert.Equal(t, 9, result.Metadata.TotalReads)
	assert.InDelta(t, 66.6, result.Metadata.OptimizationRatio, 0.2)
}

func TestSQLOptimizerServesSecondFetchFromCache(t *testing.T) {
	opt, _ := newOptimizerFixture(t)
	ctx := context.Background()

	first, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)

	second, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)

	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, laneIDs(first.Trending), laneIDs(second.Trending))

	report := opt.PerformanceReport()
	assert.InDelta(t, 50.0, report.CacheHitRate, 0.01)
	assert.Positive(t, report.EstimatedCostSaving)

	// ForceRefresh bypasses the snapshot
	third, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, third.Metadata.CacheHit)
}

func TestSQLOptimizerSnapshotsAreIsolatedPerPreferences(t *testing.T) {
	opt, _ := newOptimizerFixture(t)
	ctx := context.Background()

	fantasy, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{
		Variant:     "personalized",
		Preferences: &models.ContentPreferences{FavoriteGenres: []string{"fantasy"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n3"}, laneIDs(fantasy.CategoryNovels))

	// a second user with different preferences must not be served the
	// first user's snapshot
	horror, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{
		Variant:     "personalized",
		Preferences: &models.ContentPreferences{FavoriteGenres: []string{"horror"}},
	})
	require.NoError(t, err)
	assert.False(t, horror.Metadata.CacheHit)
	assert.Equal(t, []string{"n2"}, laneIDs(horror.CategoryNovels))

	// identical preferences do reuse the snapshot
	again, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{
		Variant:     "personalized",
		Preferences: &models.ContentPreferences{FavoriteGenres: []string{"horror"}},
	})
	require.NoError(t, err)
	assert.True(t, again.Metadata.CacheHit)
	assert.Equal(t, []string{"n2"}, laneIDs(again.CategoryNovels))
}

func TestSQLOptimizerSnapshotsAreIsolatedPerLaneLimits(t *testing.T) {
	opt, _ := newOptimizerFixture(t)
	ctx := context.Background()

	full, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)
	assert.Len(t, full.Trending, 3)

	limited, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{
		LaneLimits: map[string]int{"trending": 1},
	})
	require.NoError(t, err)
	assert.False(t, limited.Metadata.CacheHit)
	assert.Equal(t, []string{"n3"}, laneIDs(limited.Trending))
}

func TestSQLOptimizerTrendingLane(t *testing.T) {
	opt, manager := newOptimizerFixture(t)
	ctx := context.Background()

	records, err := opt.GetTrendingOptimized(ctx, "weekly")
	require.NoError(t, err)
	assert.Equal(t, []string{"n3", "n1", "n2"}, laneIDs(records))

	// snapshot lands under the lane key and serves the repeat call
	assert.Contains(t, manager.AllKeys(cache.TypeDiscovery), "discovery_trending_weekly")

	again, err := opt.GetTrendingOptimized(ctx, "weekly")
	require.NoError(t, err)
	assert.Equal(t, laneIDs(records), laneIDs(again))
}

func TestSQLOptimizerCategoryLane(t *testing.T) {
	opt, _ := newOptimizerFixture(t)
	ctx := context.Background()

	records, err := opt.GetCategoryOptimizedData(ctx, "Fantasy", "rating")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n3"}, laneIDs(records))

	byViews, err := opt.GetCategoryOptimizedData(ctx, "fantasy", "views")
	require.NoError(t, err)
	assert.Equal(t, []string{"n3", "n1"}, laneIDs(byViews))
}

func TestSQLOptimizerInvalidateDiscoveryCache(t *testing.T) {
	opt, manager := newOptimizerFixture(t)
	ctx := context.Background()

	_, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)
	_, err = opt.GetTrendingOptimized(ctx, "weekly")
	require.NoError(t, err)
	require.NotEmpty(t, manager.AllKeys(cache.TypeDiscovery))

	require.NoError(t, opt.InvalidateDiscoveryCache(ctx))
	assert.Empty(t, manager.AllKeys(cache.TypeDiscovery))

	// next fetch goes back to the database
	result, err := opt.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{})
	require.NoError(t, err)
	assert.False(t, result.Metadata.CacheHit)
}
