package discovery

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"novelhub/internal/cache"
	"novelhub/pkg/models"
)

const schemaVersion = "2.0"

// DataService sits between page code and the optimizer + cache manager. It
// normalizes heterogeneous lane results into one DiscoveryDocument,
// relays performance metrics, and offers selective cache invalidation.
//
// It holds no shared mutable state of its own: every call builds a local
// result, so concurrent calls are safe without locking here.
type DataService struct {
	cache     *cache.Manager
	optimizer Optimizer

	// healthy documents expire after documentTTL; failures are stamped
	// with errorTTL so an empty page retries soon
	documentTTL time.Duration
	errorTTL    time.Duration
}

func NewDataService(cacheManager *cache.Manager, optimizer Optimizer) *DataService {
	return &DataService{
		cache:       cacheManager,
		optimizer:   optimizer,
		documentTTL: 60 * time.Minute,
		errorTTL:    5 * time.Minute,
	}
}

// WithTTLs overrides the document expiry windows. Mainly for composition
// roots reading config and for tests.
func (s *DataService) WithTTLs(documentTTL, errorTTL time.Duration) *DataService {
	if documentTTL > 0 {
		s.documentTTL = documentTTL
	}
	if errorTTL > 0 {
		s.errorTTL = errorTTL
	}
	return s
}

// GetUnifiedDiscoveryData returns the aggregated four-lane document. It
// never fails: any fetch or transform error is logged and surfaced as a
// well-formed document with all lanes empty and a short expiry, because an
// empty discovery page beats an error page.
func (s *DataService) GetUnifiedDiscoveryData(ctx context.Context, opts models.DiscoveryOptions) *models.DiscoveryDocument {
	start := time.Now()

	result, err := s.optimizer.GetUnifiedDiscoveryData(ctx, opts)
	if err != nil {
		logf("unified fetch failed: %v", err)
		return s.emptyDocument(start)
	}

	return s.buildDocument(start, result, opts)
}

// GetLane fetches a single lane. Trending and category lanes have
// dedicated optimizer calls so a caller asking for one lane avoids
// fetching the other three; the remaining lanes extract from the unified
// fetch, trading round-trips for simplicity.
//
// On error the lane comes back empty with cache key "<lane>_error"; by
// convention such keys must not be cached long-term.
func (s *DataService) GetLane(ctx context.Context, lane Lane, opts models.DiscoveryOptions) *models.DiscoveryLaneData {
	switch {
	case lane == LaneTrending:
		timeRange := timeRange(opts, "trending", "weekly")
		records, err := s.optimizer.GetTrendingOptimized(ctx, timeRange)
		if err != nil {
			logf("trending lane fetch failed: %v", err)
			return emptyLane(lane.Key() + "_error")
		}
		return s.buildLane(records, "discovery_trending_"+timeRange, map[string]string{
			"lane": lane.Key(), "time_range": timeRange,
		})

	case lane.IsCategory():
		records, err := s.optimizer.GetCategoryOptimizedData(ctx, lane.Category(), "rating")
		if err != nil {
			logf("category lane %s fetch failed: %v", lane.Category(), err)
			return emptyLane(lane.Key() + "_error")
		}
		return s.buildLane(records, "discovery_category_"+lane.Category()+"_rating", map[string]string{
			"lane": lane.Key(), "category": lane.Category(),
		})

	default:
		doc := s.GetUnifiedDiscoveryData(ctx, opts)
		if lane == LaneNewArrivals {
			return &doc.NewArrivals
		}
		return &doc.EditorsPick
	}
}

// GetPersonalizedDiscovery runs the unified pipeline with the user's
// content preferences applied.
func (s *DataService) GetPersonalizedDiscovery(ctx context.Context, userID string, prefs *models.ContentPreferences) *models.DiscoveryDocument {
	return s.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{
		Variant:     "personalized",
		UserID:      userID,
		Preferences: prefs,
	})
}

// GetDiscoveryVariant is a thin variant selector over the same pipeline.
func (s *DataService) GetDiscoveryVariant(ctx context.Context, variant string) *models.DiscoveryDocument {
	start := time.Now()

	result, err := s.optimizer.GetDiscoveryVariant(ctx, variant)
	if err != nil {
		logf("variant %q fetch failed: %v", variant, err)
		return s.emptyDocument(start)
	}
	return s.buildDocument(start, result, models.DiscoveryOptions{Variant: variant})
}

// InvalidateDiscoveryCache delegates entirely to the optimizer's own
// invalidation; the service keeps no state of its own to clear.
func (s *DataService) InvalidateDiscoveryCache(ctx context.Context) error {
	return s.optimizer.InvalidateDiscoveryCache(ctx)
}

// PerformanceReport is a passthrough of the optimizer's accounting.
func (s *DataService) PerformanceReport() models.PerformanceReport {
	return s.optimizer.PerformanceReport()
}

func (s *DataService) buildDocument(start time.Time, result *UnifiedFetchResult, opts models.DiscoveryOptions) *models.DiscoveryDocument {
	now := time.Now().UTC()

	source := models.SourceFirebase
	if result.Metadata.CacheHit {
		source = models.SourceCache
	}

	category := "fantasy"
	if opts.Preferences != nil && len(opts.Preferences.FavoriteGenres) > 0 {
		category = opts.Preferences.FavoriteGenres[0]
	}

	doc := &models.DiscoveryDocument{
		ID:            uuid.NewString(),
		SchemaVersion: schemaVersion,
		LastUpdated:   result.Metadata.LastUpdated,
		CacheMetadata: models.CacheMetadata{
			CreatedAt: now,
			ExpiresAt: now.Add(s.documentTTL),
			Source:    source,
		},
		Trending:     *s.buildLane(result.Trending, "discovery_trending_weekly", map[string]string{"lane": "trending"}),
		NewArrivals:  *s.buildLane(result.NewArrivals, "discovery_new_arrivals_30d", map[string]string{"lane": "new_arrivals"}),
		EditorsPick:  *s.buildLane(result.EditorsPick, "discovery_editors_pick", map[string]string{"lane": "editors_pick"}),
		CategoryLane: *s.buildLane(result.CategoryNovels, "discovery_category_"+category, map[string]string{"lane": "category", "category": category}),
		Performance: models.PerformanceMetrics{
			// relayed from the fetch layer, not recomputed here
			TotalReads:        result.Metadata.TotalReads,
			OptimizationRatio: result.Metadata.OptimizationRatio,
			ResponseTimeMS:    time.Since(start).Milliseconds(),
			CacheHitRate:      s.optimizer.PerformanceReport().CacheHitRate,
		},
	}

	if opts.Preferences != nil {
		applyPreferences(doc, opts.Preferences)
	}
	return doc
}

// emptyDocument is the degrade-to-empty result: structurally complete,
// all lanes empty, short expiry so a retry happens soon.
func (s *DataService) emptyDocument(start time.Time) *models.DiscoveryDocument {
	now := time.Now().UTC()
	return &models.DiscoveryDocument{
		ID:            uuid.NewString(),
		SchemaVersion: schemaVersion,
		LastUpdated:   now,
		CacheMetadata: models.CacheMetadata{
			CreatedAt: now,
			ExpiresAt: now.Add(s.errorTTL),
			Source:    models.SourceFirebase,
		},
		Trending:     *emptyLane("discovery_trending_weekly"),
		NewArrivals:  *emptyLane("discovery_new_arrivals_30d"),
		EditorsPick:  *emptyLane("discovery_editors_pick"),
		CategoryLane: *emptyLane("discovery_category_fantasy"),
		Performance: models.PerformanceMetrics{
			ResponseTimeMS: time.Since(start).Milliseconds(),
		},
	}
}

func (s *DataService) buildLane(records []models.RawNovelRecord, cacheKey string, query map[string]string) *models.DiscoveryLaneData {
	novels := make([]models.NovelSummary, 0, len(records))
	for _, record := range records {
		novels = append(novels, NormalizeNovel(record))
	}
	return &models.DiscoveryLaneData{
		Novels: novels,
		Metadata: models.LaneMetadata{
			TotalCount:  len(novels),
			LastUpdated: time.Now().UTC(),
			Query:       query,
			CacheKey:    cacheKey,
		},
	}
}

func emptyLane(cacheKey string) *models.DiscoveryLaneData {
	return &models.DiscoveryLaneData{
		Novels: []models.NovelSummary{},
		Metadata: models.LaneMetadata{
			TotalCount:  0,
			LastUpdated: time.Now().UTC(),
			CacheKey:    cacheKey,
		},
	}
}

// applyPreferences drops excluded genres and below-minimum ratings from
// every lane. Filtering happens after normalization so the counts stay
// consistent with the visible novels.
func applyPreferences(doc *models.DiscoveryDocument, prefs *models.ContentPreferences) {
	for _, lane := range []*models.DiscoveryLaneData{&doc.Trending, &doc.NewArrivals, &doc.EditorsPick, &doc.CategoryLane} {
		filtered := lane.Novels[:0]
		for _, novel := range lane.Novels {
			if novel.Rating < prefs.MinRating {
				continue
			}
			if hasAnyGenre(novel.Genres, prefs.ExcludedGenres) {
				continue
			}
			filtered = append(filtered, novel)
		}
		lane.Novels = filtered
		lane.Metadata.TotalCount = len(filtered)
	}
}

func hasAnyGenre(genres, excluded []string) bool {
	for _, genre := range genres {
		for _, ex := range excluded {
			if genre == ex {
				return true
			}
		}
	}
	return false
}

func logf(format string, args ...any) {
	log.Printf("[discovery] "+format, args...)
}
