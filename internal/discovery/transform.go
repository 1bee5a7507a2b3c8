package discovery

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"novelhub/pkg/models"
)

// NormalizeNovel maps a raw upstream record to a NovelSummary. It is total:
// any combination of missing or oddly shaped fields degrades to defaults,
// because one malformed record must never fail a whole lane.
//
// Defaulting rules: numeric fields become 0 when absent or not finite,
// GenreIDs become an empty list, Tags fall back to Genres and then to an
// empty list, Status falls back to "active". Applying the transform to an
// already-normalized record changes nothing.
func NormalizeNovel(raw models.RawNovelRecord) models.NovelSummary {
	summary := models.NovelSummary{
		ID:          raw.ID,
		Title:       raw.Title,
		Author:      raw.Author,
		CoverURL:    raw.CoverURL,
		Rating:      finiteOrZero(derefFloat(raw.Rating)),
		ReviewCount: nonNegative(derefInt(raw.ReviewCount)),
		ViewCount:   nonNegative(derefInt(raw.ViewCount)),
		Chapters:    nonNegative(derefInt(raw.Chapters)),
		Genres:      orEmpty(raw.Genres),
		PublishedAt: coerceTime(raw.PublishedAt),
		UpdatedAt:   coerceTime(raw.UpdatedAt),
		AuthorID:    raw.AuthorID,
		GenreIDs:    orEmpty(raw.GenreIDs),
		Status:      normalizeStatus(raw.Status),
	}

	if raw.Featured != nil {
		summary.Featured = *raw.Featured
	}
	if raw.Rank != nil {
		summary.Rank = nonNegative(*raw.Rank)
	}

	if raw.Tags != nil {
		summary.Tags = raw.Tags
	} else {
		summary.Tags = summary.Genres
	}

	return summary
}

// RawFromSummary converts a summary back to the raw shape, so normalized
// data can round-trip through the transform.
func RawFromSummary(s models.NovelSummary) models.RawNovelRecord {
	raw := models.RawNovelRecord{
		ID:          s.ID,
		Title:       s.Title,
		Author:      s.Author,
		CoverURL:    s.CoverURL,
		Rating:      &s.Rating,
		ReviewCount: &s.ReviewCount,
		ViewCount:   &s.ViewCount,
		Chapters:    &s.Chapters,
		Genres:      s.Genres,
		PublishedAt: s.PublishedAt,
		UpdatedAt:   s.UpdatedAt,
		AuthorID:    s.AuthorID,
		GenreIDs:    s.GenreIDs,
		Tags:        s.Tags,
		Status:      s.Status,
	}
	if s.Featured {
		raw.Featured = &s.Featured
	}
	if s.Rank != 0 {
		raw.Rank = &s.Rank
	}
	return raw
}

// coerceTime accepts the date shapes upstream rows actually carry: a
// time.Time, an RFC3339 string, or unix seconds as a number. Anything else
// yields the zero time.
func coerceTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case int64:
		return time.Unix(t, 0).UTC()
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case json.Number:
		if secs, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}

func normalizeStatus(status string) string {
	switch status {
	case models.StatusActive, models.StatusCompleted, models.StatusHiatus, models.StatusDropped:
		return status
	default:
		return models.StatusActive
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
