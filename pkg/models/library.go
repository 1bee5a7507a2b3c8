package models

import "time"

type LibraryItem struct {
	UserID         string    `json:"user_id"`
	NovelID        string    `json:"novel_id"`
	CurrentChapter int       `json:"current_chapter"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}
