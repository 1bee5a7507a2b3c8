package novels

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"novelhub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Q      string   // keyword search in title/author
	Genres []string // any-match
	Status string
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.NovelDB, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, title, author, author_id, genres, genre_ids, tags, status,
		       total_chapters, description, cover_url, rating, review_count,
		       view_count, featured, rank, published_at, updated_at
		FROM novels
		WHERE id = ?
	`, id)

	n, err := scanNovel(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan getByID: %w", err)
	}
	return n, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.NovelDB, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.NovelDB, 0, q.Limit)
	for rows.Next() {
		n, err := scanNovel(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Upsert writes a catalog row, including the denormalized stats columns
// the discovery optimizer reads.
func (r *Repo) Upsert(ctx context.Context, n models.NovelDB) error {
	genresJSON, err := json.Marshal(n.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres for %s: %w", n.ID, err)
	}
	genreIDsJSON, err := json.Marshal(n.GenreIDs)
	if err != nil {
		return fmt.Errorf("marshal genre ids for %s: %w", n.ID, err)
	}

	var tagsJSON any
	if n.Tags != nil {
		b, err := json.Marshal(n.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", n.ID, err)
		}
		tagsJSON = string(b)
	}

	var publishedAt any
	if !n.PublishedAt.IsZero() {
		publishedAt = n.PublishedAt
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO novels (id, title, author, author_id, genres, genre_ids, tags,
		                    status, total_chapters, description, cover_url, rating,
		                    review_count, view_count, featured, rank, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
		  title = excluded.title,
		  author = excluded.author,
		  author_id = excluded.author_id,
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
	`, n.ID, n.Title, n.Author, n.AuthorID, string(genresJSON), string(genreIDsJSON),
		tagsJSON, n.Status, n.Chapters, n.Description, n.CoverURL, n.Rating,
		n.ReviewCount, n.ViewCount, boolToInt(n.Featured), n.Rank, publishedAt)
	if err != nil {
		return fmt.Errorf("upsert novel %s: %w", n.ID, err)
	}
	return nil
}

// IncrementViewCount bumps the denormalized view counter.
func (r *Repo) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE novels
		SET view_count = view_count + 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("increment view count %s: %w", id, err)
	}
	return nil
}

type scanFunc func(dest ...any) error

func scanNovel(scan scanFunc) (*models.NovelDB, error) {
	var (
		n           models.NovelDB
		author      sql.NullString
		authorID    sql.NullString
		genresJSON  string
		genreIDsRaw sql.NullString
		tagsRaw     sql.NullString
		status      sql.NullString
		chapters    sql.NullInt64
		description sql.NullString
		coverURL    sql.NullString
		featured    sql.NullBool
		rank        sql.NullInt64
		publishedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	if err := scan(
		&n.ID, &n.Title, &author, &authorID, &genresJSON, &genreIDsRaw, &tagsRaw,
		&status, &chapters, &description, &coverURL, &n.Rating, &n.ReviewCount,
		&n.ViewCount, &featured, &rank, &publishedAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	n.Author = author.String
	n.AuthorID = authorID.String
	n.Status = status.String
	if chapters.Valid {
		n.Chapters = int(chapters.Int64)
	}
	n.Description = description.String
	n.CoverURL = coverURL.String
	n.Featured = featured.Valid && featured.Bool
	if rank.Valid {
		n.Rank = int(rank.Int64)
	}
	if publishedAt.Valid {
		n.PublishedAt = publishedAt.Time
	}
	if updatedAt.Valid {
		n.UpdatedAt = updatedAt.Time
	} else {
		n.UpdatedAt = time.Time{}
	}

	_ = json.Unmarshal([]byte(genresJSON), &n.Genres)
	if genreIDsRaw.Valid {
		_ = json.Unmarshal([]byte(genreIDsRaw.String), &n.GenreIDs)
	}
	if tagsRaw.Valid {
		_ = json.Unmarshal([]byte(tagsRaw.String), &n.Tags)
	}
	return &n, nil
}

// buildListSQL builds either COUNT(*) or SELECT list.
// genres filter is "any-match" by doing LIKE searches inside stored JSON text.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `
		SELECT id, title, author, author_id, genres, genre_ids, tags, status,
		       total_chapters, description, cover_url, rating, review_count,
		       view_count, featured, rank, published_at, updated_at
		FROM novels
	`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM novels`
	}

	var where []string
	var args []any

	if strings.TrimSpace(q.Q) != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(author) LIKE ?)")
		kw := "%" + strings.ToLower(strings.TrimSpace(q.Q)) + "%"
		args = append(args, kw, kw)
	}

	if strings.TrimSpace(q.Status) != "" {
		where = append(where, "LOWER(status) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(q.Status)))
	}

	// any-match genre filter against JSON string
	if len(q.Genres) > 0 {
		var genreOr []string
		for _, g := range q.Genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			genreOr = append(genreOr, "LOWER(genres) LIKE ?")
			args = append(args, `%`+strings.ToLower(g)+`%`)
		}
		if len(genreOr) > 0 {
			where = append(where, "("+strings.Join(genreOr, " OR ")+")")
		}
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sqlStr += " ORDER BY title ASC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
