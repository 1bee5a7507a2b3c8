package models

import "time"

// Cache sources for a DiscoveryDocument.
const (
	SourceCache    = "cache"
	SourceFirebase = "firebase" // backing store, label kept from the upstream contract
	SourceHybrid   = "hybrid"
)

// LaneMetadata describes one lane's bookkeeping. TotalCount always equals
// len(Novels) in the non-paginated reads this service performs.
type LaneMetadata struct {
	TotalCount  int               `json:"total_count"`
	LastUpdated time.Time         `json:"last_updated"`
	Query       map[string]string `json:"query,omitempty"`
	CacheKey    string            `json:"cache_key"`
}

// DiscoveryLaneData is one named slice of the discovery page.
type DiscoveryLaneData struct {
	Novels   []NovelSummary `json:"novels"`
	Metadata LaneMetadata   `json:"metadata"`
}

// CacheMetadata records how and when a document was produced.
// ExpiresAt is always after CreatedAt.
type CacheMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	HitCount  int       `json:"hit_count"`
	Source    string    `json:"source"`
}

// PerformanceMetrics is the per-document accounting block. TotalReads and
// OptimizationRatio are relayed from the optimizer, never recomputed here.
type PerformanceMetrics struct {
	TotalReads        int     `json:"total_reads"`
	OptimizationRatio float64 `json:"optimization_ratio"`
	ResponseTimeMS    int64   `json:"response_time_ms"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

// DiscoveryDocument is the unified response aggregating all four lanes.
type DiscoveryDocument struct {
	ID            string             `json:"id"`
	SchemaVersion string             `json:"schema_version"`
	LastUpdated   time.Time          `json:"last_updated"`
	CacheMetadata CacheMetadata      `json:"cache_metadata"`
	Trending      DiscoveryLaneData  `json:"trending"`
	NewArrivals   DiscoveryLaneData  `json:"new_arrivals"`
	EditorsPick   DiscoveryLaneData  `json:"editors_pick"`
	CategoryLane  DiscoveryLaneData  `json:"category_lane"`
	Performance   PerformanceMetrics `json:"performance"`
}

// ContentPreferences tune personalized discovery.
type ContentPreferences struct {
	FavoriteGenres   []string `json:"favorite_genres,omitempty"`
	ExcludedGenres   []string `json:"excluded_genres,omitempty"`
	MinRating        float64  `json:"min_rating,omitempty"`
	PreferredAuthors []string `json:"preferred_authors,omitempty"`
}

// DiscoveryOptions is the options block accepted by the discovery service.
// The zero value requests the default variant with default limits.
type DiscoveryOptions struct {
	Variant     string              `json:"variant,omitempty"` // default | personalized | trending-focused
	UserID      string              `json:"user_id,omitempty"`
	Preferences *ContentPreferences `json:"preferences,omitempty"`
	LaneLimits  map[string]int      `json:"lane_limits,omitempty"`
	TimeRanges  map[string]string   `json:"time_ranges,omitempty"`

	ForceRefresh         bool          `json:"force_refresh,omitempty"`
	MaxAge               time.Duration `json:"max_age,omitempty"`
	StaleWhileRevalidate bool          `json:"stale_while_revalidate,omitempty"`
}

// PerformanceReport is the optimizer's cumulative accounting, reachable
// through the discovery service as a passthrough.
type PerformanceReport struct {
	CacheHitRate          float64 `json:"cache_hit_rate"`
	AverageResponseTimeMS int64   `json:"average_response_time_ms"`
	TotalOptimizedReads   int     `json:"total_optimized_reads"`
	EstimatedCostSaving   float64 `json:"estimated_cost_saving"`
}

// NovelListItem is the flattened legacy shape still consumed by pages that
// have not migrated to the unified document. Field renaming only.
type NovelListItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Author   string   `json:"author"`
	Cover    string   `json:"cover,omitempty"`
	Score    float64  `json:"score"`
	Reviews  int      `json:"reviews"`
	Views    int      `json:"views"`
	Chapters int      `json:"chapters"`
	Genres   []string `json:"genres"`
}
