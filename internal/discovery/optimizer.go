package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"novelhub/internal/cache"
	"novelhub/pkg/models"
)

// FetchMetadata is reported by the optimizer alongside raw lane data. The
// discovery service relays TotalReads and OptimizationRatio verbatim; only
// the fetch layer can see actual round-trip counts.
type FetchMetadata struct {
	LastUpdated       time.Time `json:"last_updated"`
	CacheHit          bool      `json:"cache_hit"`
	TotalReads        int       `json:"total_reads"`
	OptimizationRatio float64   `json:"optimization_ratio"`
}

// UnifiedFetchResult is one combined fetch covering all four lanes.
type UnifiedFetchResult struct {
	Trending       []models.RawNovelRecord `json:"trending"`
	NewArrivals    []models.RawNovelRecord `json:"new_arrivals"`
	EditorsPick    []models.RawNovelRecord `json:"editors_pick"`
	CategoryNovels []models.RawNovelRecord `json:"category_novels"`
	Metadata       FetchMetadata           `json:"metadata"`
}

// Optimizer fetches denormalized novel listings from the backing store in
// as few round-trips as possible and accounts for what it saved.
type Optimizer interface {
	GetUnifiedDiscoveryData(ctx context.Context, opts models.DiscoveryOptions) (*UnifiedFetchResult, error)
	GetTrendingOptimized(ctx context.Context, timeRange string) ([]models.RawNovelRecord, error)
	GetCategoryOptimizedData(ctx context.Context, category, sortKey string) ([]models.RawNovelRecord, error)
	GetDiscoveryVariant(ctx context.Context, variant string) (*UnifiedFetchResult, error)
	InvalidateDiscoveryCache(ctx context.Context) error
	PerformanceReport() models.PerformanceReport
}

// Reads the denormalized store charges for, per novel, when discovery is
// assembled naively (document + stats + chapter metadata lookups). The
// denormalized rows collapse those into one read each.
const naiveReadsPerNovel = 3

// rough per-document read price used for the cost-saving estimate
const costPerRead = 0.06 / 100_000

const defaultLaneLimit = 20

// SQLOptimizer reads denormalized novel rows from sqlite, one query per
// lane, and snapshots results through the cache manager so repeat requests
// inside the TTL never reach the database.
type SQLOptimizer struct {
	db    *sql.DB
	cache *cache.Manager

	mu          sync.Mutex
	requests    int64
	cacheHits   int64
	totalReads  int64
	savedReads  int64
	totalTimeMS int64
}

func NewSQLOptimizer(db *sql.DB, cacheManager *cache.Manager) *SQLOptimizer {
	return &SQLOptimizer{db: db, cache: cacheManager}
}

func (o *SQLOptimizer) GetUnifiedDiscoveryData(ctx context.Context, opts models.DiscoveryOptions) (*UnifiedFetchResult, error) {
	variant := opts.Variant
	if variant == "" {
		variant = "default"
	}
	category := "fantasy"
	if opts.Preferences != nil && len(opts.Preferences.FavoriteGenres) > 0 {
		category = strings.ToLower(opts.Preferences.FavoriteGenres[0])
	}
	// the snapshot key carries everything that shapes the result, so one
	// user's preferences never serve another user's request
	key := unifiedSnapshotKey(variant, category, opts.LaneLimits)

	if !opts.ForceRefresh {
		if cached := o.lookupUnified(ctx, key, opts.MaxAge); cached != nil {
			return cached, nil
		}
	}

	start := time.Now()

	trending, err := o.queryLane(ctx, laneQuery{orderBy: "view_count DESC", limit: laneLimit(opts, "trending"), since: rangeCutoff(timeRange(opts, "trending", "weekly"))})
	if err != nil {
		return nil, fmt.Errorf("fetch trending: %w", err)
	}
	newArrivals, err := o.queryLane(ctx, laneQuery{orderBy: "published_at DESC", limit: laneLimit(opts, "new_arrivals"), since: rangeCutoff(timeRange(opts, "new_arrivals", "30d")), sinceColumn: "published_at"})
	if err != nil {
		return nil, fmt.Errorf("fetch new arrivals: %w", err)
	}
	editorsPick, err := o.queryLane(ctx, laneQuery{featuredOnly: true, orderBy: "rank ASC", limit: laneLimit(opts, "editors_pick")})
	if err != nil {
		return nil, fmt.Errorf("fetch editors pick: %w", err)
	}

	categoryNovels, err := o.queryLane(ctx, laneQuery{genre: category, orderBy: "rating DESC", limit: laneLimit(opts, "category")})
	if err != nil {
		return nil, fmt.Errorf("fetch category lane: %w", err)
	}

	reads := len(trending) + len(newArrivals) + len(editorsPick) + len(categoryNovels)
	result := &UnifiedFetchResult{
		Trending:       trending,
		NewArrivals:    newArrivals,
		EditorsPick:    editorsPick,
		CategoryNovels: categoryNovels,
		Metadata: FetchMetadata{
			LastUpdated:       time.Now().UTC(),
			CacheHit:          false,
			TotalReads:        reads,
			OptimizationRatio: optimizationRatio(reads),
		},
	}

	if err := o.cache.Set(ctx, key, result, cache.TypeDiscovery); err != nil {
		// a failed snapshot write is a staleness risk, not a fetch failure
		logf("cache snapshot %s failed: %v", key, err)
	}

	o.account(reads, time.Since(start), false)
	return result, nil
}

func (o *SQLOptimizer) GetTrendingOptimized(ctx context.Context, timeRange string) ([]models.RawNovelRecord, error) {
	if timeRange == "" {
		timeRange = "weekly"
	}
	key := "discovery_trending_" + timeRange

	if records, ok := o.lookupLane(ctx, key); ok {
		return records, nil
	}

	start := time.Now()
	records, err := o.queryLane(ctx, laneQuery{orderBy: "view_count DESC", limit: defaultLaneLimit, since: rangeCutoff(timeRange)})
	if err != nil {
		return nil, fmt.Errorf("fetch trending %s: %w", timeRange, err)
	}

	if err := o.cache.Set(ctx, key, records, cache.TypeDiscovery); err != nil {
		logf("cache snapshot %s failed: %v", key, err)
	}
	o.account(len(records), time.Since(start), false)
	return records, nil
}

func (o *SQLOptimizer) GetCategoryOptimizedData(ctx context.Context, category, sortKey string) ([]models.RawNovelRecord, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = "fantasy"
	}
	orderBy, sortName := sortClause(sortKey)
	key := "discovery_category_" + category + "_" + sortName

	if records, ok := o.lookupLane(ctx, key); ok {
		return records, nil
	}

	start := time.Now()
	records, err := o.queryLane(ctx, laneQuery{genre: category, orderBy: orderBy, limit: defaultLaneLimit})
	if err != nil {
		return nil, fmt.Errorf("fetch category %s: %w", category, err)
	}

	if err := o.cache.Set(ctx, key, records, cache.TypeDiscovery); err != nil {
		logf("cache snapshot %s failed: %v", key, err)
	}
	o.account(len(records), time.Since(start), false)
	return records, nil
}

func (o *SQLOptimizer) GetDiscoveryVariant(ctx context.Context, variant string) (*UnifiedFetchResult, error) {
	return o.GetUnifiedDiscoveryData(ctx, models.DiscoveryOptions{Variant: variant})
}

// InvalidateDiscoveryCache drops every discovery-typed cache entry.
func (o *SQLOptimizer) InvalidateDiscoveryCache(ctx context.Context) error {
	for _, key := range o.cache.AllKeys(cache.TypeDiscovery) {
		if err := o.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return nil
}

func (o *SQLOptimizer) PerformanceReport() models.PerformanceReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := models.PerformanceReport{
		TotalOptimizedReads: int(o.totalReads),
		EstimatedCostSaving: float64(o.savedReads) * costPerRead,
	}
	if o.requests > 0 {
		report.CacheHitRate = float64(o.cacheHits) / float64(o.requests) * 100
		report.AverageResponseTimeMS = o.totalTimeMS / o.requests
	}
	return report
}

func (o *SQLOptimizer) lookupUnified(ctx context.Context, key string, maxAge time.Duration) *UnifiedFetchResult {
	entry, err := o.cache.Get(ctx, key, cache.TypeDiscovery)
	if err != nil || entry == nil {
		return nil
	}
	if maxAge > 0 && time.Since(entry.Timestamp) > maxAge {
		return nil
	}

	var result UnifiedFetchResult
	if err := entry.Decode(&result); err != nil {
		return nil
	}
	result.Metadata.CacheHit = true
	o.account(0, 0, true)
	return &result
}

func (o *SQLOptimizer) lookupLane(ctx context.Context, key string) ([]models.RawNovelRecord, bool) {
	entry, err := o.cache.Get(ctx, key, cache.TypeDiscovery)
	if err != nil || entry == nil {
		return nil, false
	}
	var records []models.RawNovelRecord
	if err := entry.Decode(&records); err != nil {
		return nil, false
	}
	o.account(0, 0, true)
	return records, true
}

func (o *SQLOptimizer) account(reads int, elapsed time.Duration, cacheHit bool) {
	o.mu.Lock()
	o.requests++
	if cacheHit {
		o.cacheHits++
		// a hit saves the full naive fan-out for the request
		o.savedReads += int64(defaultLaneLimit * naiveReadsPerNovel)
	} else {
		o.totalReads += int64(reads)
		o.savedReads += int64(reads * (naiveReadsPerNovel - 1))
		o.totalTimeMS += elapsed.Milliseconds()
	}
	o.mu.Unlock()
}

type laneQuery struct {
	orderBy      string
	limit        int
	since        time.Time
	sinceColumn  string // defaults to updated_at
	genre        string
	featuredOnly bool
}

func (o *SQLOptimizer) queryLane(ctx context.Context, q laneQuery) ([]models.RawNovelRecord, error) {
	if q.limit <= 0 || q.limit > 100 {
		q.limit = defaultLaneLimit
	}

	var where []string
	var args []any

	if q.featuredOnly {
		where = append(where, "featured = 1")
	}
	if !q.since.IsZero() {
		col := q.sinceColumn
		if col == "" {
			col = "updated_at"
		}
		where = append(where, col+" >= ?")
		args = append(args, q.since)
	}
	if q.genre != "" {
		// genres stored as a JSON array in text; any-match via LIKE,
		// same trick the catalog listing uses
		where = append(where, "LOWER(genres) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.genre)+"%")
	}

	sqlStr := `
		SELECT id, title, author, author_id, genres, genre_ids, tags, status,
		       total_chapters, cover_url, rating, review_count, view_count,
		       featured, rank, published_at, updated_at
		FROM novels
	`
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY " + q.orderBy + " LIMIT ?"
	args = append(args, q.limit)

	rows, err := o.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("lane query: %w", err)
	}
	defer rows.Close()

	out := make([]models.RawNovelRecord, 0, q.limit)
	for rows.Next() {
		record, err := scanRawNovel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func scanRawNovel(rows *sql.Rows) (models.RawNovelRecord, error) {
	var (
		record      models.RawNovelRecord
		author      sql.NullString
		authorID    sql.NullString
		genresJSON  string
		genreIDsRaw sql.NullString
		tagsRaw     sql.NullString
		status      sql.NullString
		chapters    sql.NullInt64
		coverURL    sql.NullString
		rating      sql.NullFloat64
		reviewCount sql.NullInt64
		viewCount   sql.NullInt64
		featured    sql.NullBool
		rank        sql.NullInt64
		publishedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	if err := rows.Scan(
		&record.ID, &record.Title, &author, &authorID, &genresJSON, &genreIDsRaw,
		&tagsRaw, &status, &chapters, &coverURL, &rating, &reviewCount,
		&viewCount, &featured, &rank, &publishedAt, &updatedAt,
	); err != nil {
		return record, fmt.Errorf("scan novel row: %w", err)
	}

	record.Author = author.String
	record.AuthorID = authorID.String
	record.CoverURL = coverURL.String
	record.Status = status.String

	_ = json.Unmarshal([]byte(genresJSON), &record.Genres)
	if genreIDsRaw.Valid {
		_ = json.Unmarshal([]byte(genreIDsRaw.String), &record.GenreIDs)
	}
	if tagsRaw.Valid {
		_ = json.Unmarshal([]byte(tagsRaw.String), &record.Tags)
	}

	if rating.Valid {
		v := rating.Float64
		record.Rating = &v
	}
	if reviewCount.Valid {
		v := int(reviewCount.Int64)
		record.ReviewCount = &v
	}
	if viewCount.Valid {
		v := int(viewCount.Int64)
		record.ViewCount = &v
	}
	if chapters.Valid {
		v := int(chapters.Int64)
		record.Chapters = &v
	}
	if featured.Valid && featured.Bool {
		v := true
		record.Featured = &v
	}
	if rank.Valid && rank.Int64 > 0 {
		v := int(rank.Int64)
		record.Rank = &v
	}
	if publishedAt.Valid {
		record.PublishedAt = publishedAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return record, nil
}

func unifiedSnapshotKey(variant, category string, limits map[string]int) string {
	key := "discovery_unified_" + variant + "_" + category
	if len(limits) == 0 {
		return key
	}
	lanes := make([]string, 0, len(limits))
	for lane := range limits {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)
	for _, lane := range lanes {
		key += fmt.Sprintf("_%s%d", lane, limits[lane])
	}
	return key
}

func optimizationRatio(reads int) float64 {
	if reads == 0 {
		return 0
	}
	naive := reads * naiveReadsPerNovel
	return (1 - float64(reads)/float64(naive)) * 100
}

func rangeCutoff(timeRange string) time.Time {
	now := time.Now().UTC()
	switch timeRange {
	case "daily", "24h":
		return now.Add(-24 * time.Hour)
	case "weekly", "7d":
		return now.AddDate(0, 0, -7)
	case "monthly", "30d":
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

func sortClause(sortKey string) (clause, name string) {
	switch sortKey {
	case "views", "view_count":
		return "view_count DESC", "views"
	case "newest", "published_at":
		return "published_at DESC", "newest"
	default:
		return "rating DESC", "rating"
	}
}

func laneLimit(opts models.DiscoveryOptions, lane string) int {
	if limit, ok := opts.LaneLimits[lane]; ok && limit > 0 {
		return limit
	}
	return defaultLaneLimit
}

func timeRange(opts models.DiscoveryOptions, lane, def string) string {
	if r, ok := opts.TimeRanges[lane]; ok && r != "" {
		return r
	}
	return def
}
