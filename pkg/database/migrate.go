package database

import (
	"database/sql"
	"fmt"
)

// Schema is applied on startup. Statements are idempotent so repeated
// migration runs are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS novels (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  author TEXT,
  author_id TEXT,
  genres TEXT NOT NULL DEFAULT '[]',      -- JSON array as text
  genre_ids TEXT NOT NULL DEFAULT '[]',   -- JSON array as text
  tags TEXT,                              -- JSON array as text, NULL = fall back to genres
  status TEXT NOT NULL DEFAULT 'active',
  total_chapters INTEGER NOT NULL DEFAULT 0,
  description TEXT,
  cover_url TEXT,
  rating REAL NOT NULL DEFAULT 0,
  review_count INTEGER NOT NULL DEFAULT 0,
  view_count INTEGER NOT NULL DEFAULT 0,
  featured INTEGER NOT NULL DEFAULT 0,
  rank INTEGER NOT NULL DEFAULT 0,
  published_at TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_novels_view_count ON novels(view_count);
CREATE INDEX IF NOT EXISTS idx_novels_published ON novels(published_at);
CREATE INDEX IF NOT EXISTS idx_novels_rating ON novels(rating);
CREATE INDEX IF NOT EXISTS idx_novels_featured ON novels(featured);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  token_version INTEGER NOT NULL DEFAULT 0,
  favorite_genres TEXT NOT NULL DEFAULT '[]',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_library (
  user_id TEXT NOT NULL REFERENCES users(id),
  novel_id TEXT NOT NULL REFERENCES novels(id),
  current_chapter INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (user_id, novel_id)
);

CREATE INDEX IF NOT EXISTS idx_user_library_user ON user_library(user_id, updated_at);

CREATE TABLE IF NOT EXISTS reviews (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL REFERENCES users(id),
  novel_id TEXT NOT NULL REFERENCES novels(id),
  rating INTEGER NOT NULL,
  text TEXT,
  timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_reviews_novel ON reviews(novel_id, timestamp);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
