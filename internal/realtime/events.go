package realtime

import "time"

type LibraryEvent struct {
	Type           string    `json:"type"` // "library.update" or "library.delete"
	UserID         string    `json:"user_id"`
	NovelID        string    `json:"novel_id"`
	CurrentChapter int       `json:"current_chapter,omitempty"`
	Status         string    `json:"status,omitempty"`
	At             time.Time `json:"at"`
}

// DiscoveryEvent tells connected clients which cached discovery keys just
// went stale so they can refetch the affected sections.
type DiscoveryEvent struct {
	Type string    `json:"type"` // "discovery.invalidate"
	Keys []string  `json:"keys,omitempty"`
	At   time.Time `json:"at"`
}

func (e LibraryEvent) EventType() string { return e.Type }

func (e DiscoveryEvent) EventType() string { return e.Type }

func NewDiscoveryInvalidation(keys []string) DiscoveryEvent {
	return DiscoveryEvent{
		Type: "discovery.invalidate",
		Keys: keys,
		At:   time.Now().UTC(),
	}
}
