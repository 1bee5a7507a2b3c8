package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"novelhub/pkg/database"
)

func main() {
	var (
		novelsIn  = flag.String("novels", "data/novels.csv", "input CSV path for novels")
		libraryIn = flag.String("library", "data/user_library.csv", "input CSV path for user libraries")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if err := importNovels(ctx, db, *novelsIn); err != nil {
		log.Fatalf("import novels failed: %v", err)
	}
	if err := importUserLibrary(ctx, db, *libraryIn); err != nil {
		log.Fatalf("import user library failed: %v", err)
	}

	log.Printf("imported novels from %s and user libraries from %s", *novelsIn, *libraryIn)
}

func importNovels(ctx context.Context, db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO novels (id, title, author, genres, genre_ids, tags, status,
		                    total_chapters, description, cover_url, rating,
		                    review_count, view_count, featured, rank, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  title = excluded.title,
		  author = excluded.author,
		  genres = excluded.genres,
		  genre_ids = excluded.genre_ids,
		  tags = excluded.tags,
		  status = excluded.status,
		  total_chapters = excluded.total_chapters,
		  description = excluded.description,
		  cover_url = excluded.cover_url,
		  rating = excluded.rating,
		  review_count = excluded.review_count,
		  view_count = excluded.view_count,
		  featured = excluded.featured,
		  rank = excluded.rank,
		  published_at = excluded.published_at,
		  updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}

		id := valueAt(header, row, "id")
		title := valueAt(header, row, "title")
		if id == "" || title == "" {
			continue
		}

		totalChapters, err := parseInt64(valueAt(header, row, "total_chapters"))
		if err != nil {
			return fmt.Errorf("parse total_chapters for %s: %w", id, err)
		}
		rating, err := parseFloat(valueAt(header, row, "rating"))
		if err != nil {
			return fmt.Errorf("parse rating for %s: %w", id, err)
		}
		reviewCount, err := parseInt64(valueAt(header, row, "review_count"))
		if err != nil {
			return fmt.Errorf("parse review_count for %s: %w", id, err)
		}
		viewCount, err := parseInt64(valueAt(header, row, "view_count"))
		if err != nil {
			return fmt.Errorf("parse view_count for %s: %w", id, err)
		}
		rank, err := parseInt64(valueAt(header, row, "rank"))
		if err != nil {
			return fmt.Errorf("parse rank for %s: %w", id, err)
		}
		publishedAt, err := parseTime(valueAt(header, row, "published_at"))
		if err != nil {
			return fmt.Errorf("parse published_at for %s: %w", id, err)
		}

		featured := 0
		if isTruthy(valueAt(header, row, "featured")) {
			featured = 1
		}

		if _, err := stmt.ExecContext(
			ctx,
			id,
			title,
			nullString(valueAt(header, row, "author")),
			jsonList(valueAt(header, row, "genres")),
			jsonList(valueAt(header, row, "genre_ids")),
			nullJSONList(valueAt(header, row, "tags")),
			defaultString(valueAt(header, row, "status"), "active"),
			totalChapters,
			nullString(valueAt(header, row, "description")),
			nullString(valueAt(header, row, "cover_url")),
			rating,
			reviewCount,
			viewCount,
			featured,
			rank,
			publishedAt,
		); err != nil {
			return err
		}
	}

	return nil
}

func importUserLibrary(ctx context.Context, db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO user_library (user_id, novel_id, current_chapter, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, novel_id) DO UPDATE SET
			current_chapter = excluded.current_chapter,
			status = excluded.status,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}

		userID := valueAt(header, row, "user_id")
		novelID := valueAt(header, row, "novel_id")
		if userID == "" || novelID == "" {
			continue
		}

		currentChapter, err := parseInt64(valueAt(header, row, "current_chapter"))
		if err != nil {
			return fmt.Errorf("parse current_chapter for %s/%s: %w", userID, novelID, err)
		}

		updatedAt, err := parseTime(valueAt(header, row, "updated_at"))
		if err != nil {
			return fmt.Errorf("parse updated_at for %s/%s: %w", userID, novelID, err)
		}
		if !updatedAt.Valid {
			updatedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		}

		if _, err := stmt.ExecContext(
			ctx,
			userID,
			novelID,
			currentChapter,
			defaultString(valueAt(header, row, "status"), "reading"),
			updatedAt,
		); err != nil {
			return err
		}
	}

	return nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func parseTime(raw string) (sql.NullTime, error) {
	if raw == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

func nullString(raw string) sql.NullString {
	if raw == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: raw, Valid: true}
}

func defaultString(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	return raw
}

func isTruthy(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// jsonList turns a semicolon-separated CSV cell into a JSON array string,
// the storage format the catalog expects.
func jsonList(raw string) string {
	if raw == "" {
		return "[]"
	}
	parts := strings.Split(raw, ";")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// nullJSONList is jsonList but keeps NULL for an empty cell, since missing
// tags fall back to genres downstream.
func nullJSONList(raw string) sql.NullString {
	if raw == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: jsonList(raw), Valid: true}
}
