// Package types contains the read shapes returned by queue queries.
package types

import (
	"time"

	"github.com/okian/requestline/internal/domain/model"
)

// Entry represents a request entry in service order.
type Entry struct {
	Position         int     `json:"position"`
	ID               string  `json:"id"`
	OwnerID          string  `json:"owner_id"`
	Artist           string  `json:"artist"`
	Title            string  `json:"title"`
	Link             string  `json:"link,omitempty"`
	Tier             string  `json:"tier"`
	Status           string  `json:"status"`
	PendingPromotion bool    `json:"pending_promotion,omitempty"`
	Score            float64 `json:"score"`
	CreatedAt        string  `json:"created_at"`
}

// FromEntry converts a domain entry into its read shape. Position is
// 1-based within whatever ordering the caller queried.
func FromEntry(e model.Entry, position int) Entry {
	return Entry{
		Position:         position,
		ID:               e.ID,
		OwnerID:          e.OwnerID,
		Artist:           e.Artist,
		Title:            e.Title,
		Link:             e.Link,
		Tier:             e.Tier.String(),
		Status:           string(e.Status),
		PendingPromotion: e.PendingPromotion,
		Score:            e.Score,
		CreatedAt:        e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FromEntries converts a slice of domain entries, assigning positions in
// slice order.
func FromEntries(entries []model.Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = FromEntry(e, i+1)
	}
	return out
}

// Participant represents a stream participant's engagement state.
type Participant struct {
	Handle   string  `json:"handle"`
	OwnerID  string  `json:"owner_id,omitempty"`
	Points   float64 `json:"points"`
	LastSeen string  `json:"last_seen,omitempty"`
}

// Session represents a live session in API responses.
type Session struct {
	ID         string `json:"id"`
	HostHandle string `json:"host_handle"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Unplanned  bool   `json:"unplanned,omitempty"`
}

// FromSession converts a domain session into its read shape.
func FromSession(s model.Session) Session {
	out := Session{
		ID:         s.ID,
		HostHandle: s.HostHandle,
		StartedAt:  s.StartedAt.UTC().Format(time.RFC3339),
		Unplanned:  s.Unplanned,
	}
	if !s.EndedAt.IsZero() {
		out.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
	}
	return out
}
