package models

import "time"

// Publication status of a novel. Unknown upstream values normalize to
// StatusActive.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusHiatus    = "hiatus"
	StatusDropped   = "dropped"
)

// NovelSummary is the normalized projection of a novel used on discovery
// surfaces. It is built fresh from a RawNovelRecord on every transform and
// never mutated afterwards.
//
// Tags falls back to Genres when the upstream row carries no explicit tag
// list, so callers must not assume the two are independent.
type NovelSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	ViewCount   int       `json:"view_count"`
	Chapters    int       `json:"chapters"`
	Genres      []string  `json:"genres"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Featured    bool      `json:"featured,omitempty"`
	Rank        int       `json:"rank,omitempty"`
	AuthorID    string    `json:"author_id,omitempty"`
	GenreIDs    []string  `json:"genre_ids"`
	Tags        []string  `json:"tags"`
	Status      string    `json:"status"`
}

// RawNovelRecord is the loosely-shaped row the optimizer hands back from
// the denormalized store. Every field is optional; the normalization
// transform maps any combination of missing fields to a valid NovelSummary.
//
// PublishedAt/UpdatedAt are `any` because upstream rows carry either a
// time.Time, an RFC3339 string, or a unix-seconds number depending on how
// the row was serialized.
type RawNovelRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	CoverURL    string   `json:"cover_url"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"review_count"`
	ViewCount   *int     `json:"view_count"`
	Chapters    *int     `json:"chapters"`
	Genres      []string `json:"genres"`
	PublishedAt any      `json:"published_at"`
	UpdatedAt   any      `json:"updated_at"`
	Featured    *bool    `json:"featured"`
	Rank        *int     `json:"rank"`
	AuthorID    string   `json:"author_id"`
	GenreIDs    []string `json:"genre_ids"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
}

// NovelDB is the catalog row as stored in sqlite, including the
// denormalized stats the discovery optimizer reads.
type NovelDB struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	AuthorID    string    `json:"author_id,omitempty"`
	Genres      []string  `json:"genres"`
	GenreIDs    []string  `json:"genre_ids,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Status      string    `json:"status,omitempty"`
	Chapters    int       `json:"chapters,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	ViewCount   int       `json:"view_count"`
	Featured    bool      `json:"featured"`
	Rank        int       `json:"rank,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
