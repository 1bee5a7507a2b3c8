package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelhub/internal/cache"
	"novelhub/pkg/models"
)

type fakeOptimizer struct {
	unified    *UnifiedFetchResult
	trending   []models.RawNovelRecord
	category   []models.RawNovelRecord
	err        error
	report     models.PerformanceReport
	invalidErr error

	unifiedCalls  int
	trendingCalls int
	categoryCalls int
	variantCalls  int

	lastOpts     models.DiscoveryOptions
	lastCategory string
	lastSortKey  string
}

func (f *fakeOptimizer) GetUnifiedDiscoveryData(_ context.Context, opts models.DiscoveryOptions) (*UnifiedFetchResult, error) {
	f.unifiedCalls++
	f.lastOpts = opts
	return f.unified, f.err
}

func (f *fakeOptimizer) GetTrendingOptimized(_ context.Context, _ string) ([]models.RawNovelRecord, error) {
	f.trendingCalls++
	return f.trending, f.err
}

func (f *fakeOptimizer) GetCategoryOptimizedData(_ context.Context, category, sortKey string) ([]models.RawNovelRecord, error) {
	f.categoryCalls++
	f.lastCategory = category
	f.lastSortKey = sortKey
	return f.category, f.err
}

func (f *fakeOptimizer) GetDiscoveryVariant(ctx context.Context, variant string) (*UnifiedFetchResult, error) {
	f.variantCalls++
	return f.unified, f.err
}

func (f *fakeOptimizer) InvalidateDiscoveryCache(context.Context) error { return f.invalidErr }

func (f *fakeOptimizer) PerformanceReport() models.PerformanceReport { return f.report }

func rawNovel(id string, rating float64, genres ...string) models.RawNovelRecord {
	return models.RawNovelRecord{ID: id, Title: "Novel " + id, Rating: &rating, Genres: genres}
}

func testUnifiedResult() *UnifiedFetchResult {
	return &UnifiedFetchResult{
		Trending:       []models.RawNovelRecord{rawNovel("t1", 4.5, "fantasy"), rawNovel("t2", 3.1, "horror")},
		NewArrivals:    []models.RawNovelRecord{rawNovel("a1", 4.0, "romance")},
		EditorsPick:    []models.RawNovelRecord{rawNovel("e1", 4.9, "fantasy")},
		CategoryNovels: []models.RawNovelRecord{rawNovel("c1", 4.2, "fantasy")},
		Metadata: FetchMetadata{
			LastUpdated:       time.Now().UTC(),
			TotalReads:        5,
			OptimizationRatio: 66.7,
		},
	}
}

func newServiceFixture(opt Optimizer) *DataService {
	manager := cache.NewManager(cache.NewMemoryTier(), cache.NewMemoryTier())
	return NewDataService(manager, opt)
}

func TestGetUnifiedDiscoveryData(t *testing.T) {
	opt := &fakeOptimizer{unified: testUnifiedResult(), report: models.PerformanceReport{CacheHitRate: 42.0}}
	svc := newServiceFixture(opt)

	doc := svc.GetUnifiedDiscoveryData(context.Background(), models.DiscoveryOptions{})
	require.NotNil(t, doc)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "2.0", doc.SchemaVersion)
	assert.Equal(t, models.SourceFirebase, doc.CacheMetadata.Source)

	// lanes normalized from the raw records
	require.Len(t, doc.Trending.Novels, 2)
	assert.Equal(t, "t1", doc.Trending.Novels[0].ID)
	assert.Equal(t, models.StatusActive, doc.Trending.Novels[0].Status)
	assert.Equal(t, 2, doc.Trending.Metadata.TotalCount)
	assert.Equal(t, "discovery_trending_weekly", doc.Trending.Metadata.CacheKey)
	assert.Equal(t, "discovery_new_arrivals_30d", doc.NewArrivals.Metadata.CacheKey)
	assert.Equal(t, "discovery_editors_pick", doc.EditorsPick.Metadata.CacheKey)
	assert.Equal(t, "discovery_category_fantasy", doc.CategoryLane.Metadata.CacheKey)

	// fetch-layer metrics are relayed, not recomputed
	assert.Equal(t, 5, doc.Performance.TotalReads)
	assert.Equal(t, 66.7, doc.Performance.OptimizationRatio)
	assert.Equal(t, 42.0, doc.Performance.CacheHitRate)

	assert.Equal(t, 1, opt.unifiedCalls)
}

func TestGetUnifiedDiscoveryDataCacheHitSource(t *testing.T) {
	result := testUnifiedResult()
	result.Metadata.CacheHit = true
	svc := newServiceFixture(&fakeOptimizer{unified: result})

	doc := svc.GetUnifiedDiscoveryData(context.Background(), models.DiscoveryOptions{})
	assert.Equal(t, models.SourceCache, doc.CacheMetadata.Source)
}

func TestGetUnifiedDiscoveryDataDegradesToEmpty(t *testing.T) {
	svc := newServiceFixture(&fakeOptimizer{err: errors.New("store down")}).
		WithTTLs(time.Hour, 5*time.Minute)

	doc := svc.GetUnifiedDiscoveryData(context.Background(), models.DiscoveryOptions{})
	require.NotNil(t, doc)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "2.0", doc.SchemaVersion)
	assert.Empty(t, doc.Trending.Novels)
	assert.Empty(t, doc.NewArrivals.Novels)
	assert.Empty(t, doc.EditorsPick.Novels)
	assert.Empty(t, doc.CategoryLane.Novels)
	assert.NotNil(t, doc.Trending.Novels, "lanes stay well-formed on failure")

	// failures carry the short expiry so the page retries soon
	assert.Equal(t, 5*time.Minute, doc.CacheMetadata.ExpiresAt.Sub(doc.CacheMetadata.CreatedAt))
}

func TestHealthyDocumentUsesLongExpiry(t *testing.T) {
	svc := newServiceFixture(&fakeOptimizer{unified: testUnifiedResult()}).
		WithTTLs(time.Hour, 5*time.Minute)

	doc := svc.GetUnifiedDiscoveryData(context.Background(), models.DiscoveryOptions{})
	assert.Equal(t, time.Hour, doc.CacheMetadata.ExpiresAt.Sub(doc.CacheMetadata.CreatedAt))
}

func TestGetLaneTrendingSkipsUnifiedFetch(t *testing.T) {
	opt := &fakeOptimizer{trending: []models.RawNovelRecord{rawNovel("t1", 4.5)}}
	svc := newServiceFixture(opt)

	lane := svc.GetLane(context.Background(), LaneTrending, models.DiscoveryOptions{})
	require.NotNil(t, lane)

	assert.Len(t, lane.Novels, 1)
	assert.Equal(t, "discovery_trending_weekly", lane.Metadata.CacheKey)
	assert.Equal(t, 1, opt.trendingCalls)
	assert.Zero(t, opt.unifiedCalls, "single-lane fetch must not fan out")
}

func TestGetLaneCategory(t *testing.T) {
	opt := &fakeOptimizer{category: []models.RawNovelRecord{rawNovel("c1", 4.2, "romance")}}
	svc := newServiceFixture(opt)

	lane := svc.GetLane(context.Background(), LaneCategory("romance"), models.DiscoveryOptions{})
	require.NotNil(t, lane)

	assert.Equal(t, "romance", opt.lastCategory)
	assert.Equal(t, "rating", opt.lastSortKey)
	assert.Equal(t, "discovery_category_romance_rating", lane.Metadata.CacheKey)
	assert.Zero(t, opt.unifiedCalls)
}

func TestGetLaneFallsBackToUnified(t *testing.T) {
	opt := &fakeOptimizer{unified: testUnifiedResult()}
	svc := newServiceFixture(opt)

	lane := svc.GetLane(context.Background(), LaneNewArrivals, models.DiscoveryOptions{})
	require.NotNil(t, lane)

	assert.Equal(t, 1, opt.unifiedCalls)
	assert.Len(t, lane.Novels, 1)
	assert.Equal(t, "a1", lane.Novels[0].ID)
}

func TestGetLaneErrorYieldsEmptyLane(t *testing.T) {
	svc := newServiceFixture(&fakeOptimizer{err: errors.New("store down")})

	lane := svc.GetLane(context.Background(), LaneTrending, models.DiscoveryOptions{})
	require.NotNil(t, lane)
	assert.Empty(t, lane.Novels)
	assert.Equal(t, "trending_error", lane.Metadata.CacheKey)

	lane = svc.GetLane(context.Background(), LaneCategory("horror"), models.DiscoveryOptions{})
	require.NotNil(t, lane)
	assert.Equal(t, "category_horror_error", lane.Metadata.CacheKey)
}

func TestGetPersonalizedDiscoveryFilters(t *testing.T) {
	opt := &fakeOptimizer{unified: testUnifiedResult()}
	svc := newServiceFixture(opt)

	doc := svc.GetPersonalizedDiscovery(context.Background(), "u1", &models.ContentPreferences{
		FavoriteGenres: []string{"fantasy"},
		ExcludedGenres: []string{"horror"},
		MinRating:      4.0,
	})
	require.NotNil(t, doc)

	assert.Equal(t, "personalized", opt.lastOpts.Variant)
	assert.Equal(t, "u1", opt.lastOpts.UserID)

	// t2 is horror and below the rating floor; only t1 survives
	require.Len(t, doc.Trending.Novels, 1)
	assert.Equal(t, "t1", doc.Trending.Novels[0].ID)
	assert.Equal(t, 1, doc.Trending.Metadata.TotalCount)
	assert.Equal(t, "discovery_category_fantasy", doc.CategoryLane.Metadata.CacheKey)
}

func TestGetDiscoveryVariant(t *testing.T) {
	opt := &fakeOptimizer{unified: testUnifiedResult()}
	svc := newServiceFixture(opt)

	doc := svc.GetDiscoveryVariant(context.Background(), "trending-focused")
	require.NotNil(t, doc)
	assert.Equal(t, 1, opt.variantCalls)

	// variant errors degrade the same way the unified path does
	svc = newServiceFixture(&fakeOptimizer{err: errors.New("nope")})
	doc = svc.GetDiscoveryVariant(context.Background(), "default")
	require.NotNil(t, doc)
	assert.Empty(t, doc.Trending.Novels)
}

func TestPerformanceReportPassthrough(t *testing.T) {
	want := models.PerformanceReport{
		CacheHitRate:          88.5,
		AverageResponseTimeMS: 12,
		TotalOptimizedReads:   420,
		EstimatedCostSaving:   0.0007,
	}
	svc := newServiceFixture(&fakeOptimizer{report: want})
	assert.Equal(t, want, svc.PerformanceReport())
}

func TestInvalidateDiscoveryCacheDelegates(t *testing.T) {
	svc := newServiceFixture(&fakeOptimizer{})
	assert.NoError(t, svc.InvalidateDiscoveryCache(context.Background()))

	wantErr := errors.New("redis gone")
	svc = newServiceFixture(&fakeOptimizer{invalidErr: wantErr})
	assert.ErrorIs(t, svc.InvalidateDiscoveryCache(context.Background()), wantErr)
}
