// Package model contains domain models passed between layers.
package model

import "time"

// Tier is a priority bucket for queue entries. Lower values rank earlier
// when the resolver walks tiers from highest to lowest priority.
type Tier int

// Tiers in descending priority order. TierFree is the only tier ordered by
// engagement score; every tier above it is strictly FIFO.
const (
	TierBackToBack Tier = iota
	TierDoubleSkip
	TierSkip25
	TierSkip20
	TierSkip15
	TierSkip10
	TierSkip5
	TierFree
)

var tierNames = map[Tier]string{
	TierBackToBack: "backtoback",
	TierDoubleSkip: "doubleskip",
	TierSkip25:     "skip25",
	TierSkip20:     "skip20",
	TierSkip15:     "skip15",
	TierSkip10:     "skip10",
	TierSkip5:      "skip5",
	TierFree:       "free",
}

// Tiers returns all tiers in descending priority order.
func Tiers() []Tier {
	return []Tier{
		TierBackToBack, TierDoubleSkip,
		TierSkip25, TierSkip20, TierSkip15, TierSkip10, TierSkip5,
		TierFree,
	}
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// Paid reports whether t is one of the purchased skip tiers.
func (t Tier) Paid() bool {
	return t.Valid() && t != TierFree
}

// ParseTier resolves a tier name produced by Tier.String.
func ParseTier(name string) (Tier, bool) {
	for t, n := range tierNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Status is the lifecycle state of an entry. Served and removed are
// terminal: no operation moves an entry out of them.
type Status string

const (
	StatusActive  Status = "active"
	StatusServed  Status = "served"
	StatusRemoved Status = "removed"
)

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusServed || s == StatusRemoved
}

// Entry is one submission in the queue. Owned exclusively by the entry
// store; mutated only through store operations.
type Entry struct {
	ID      string
	OwnerID string

	// Display metadata, opaque to the core.
	Artist string
	Title  string
	Link   string

	Tier   Tier
	Status Status

	// PendingPromotion marks a free-tier entry reserved for gift promotion.
	// It is a sub-state of TierFree, never set on paid tiers.
	PendingPromotion bool

	// Score is a cached projection of the linked participants' points,
	// refreshed by the aggregator's periodic sync. Never authoritative.
	Score float64

	// LinkedHandle is an optional external-participant handle.
	LinkedHandle string

	CreatedAt time.Time
}

// EventKind classifies interaction events from the live source.
type EventKind string

const (
	KindJoin       EventKind = "join"
	KindReaction   EventKind = "reaction"
	KindComment    EventKind = "comment"
	KindShare      EventKind = "share"
	KindFollow     EventKind = "follow"
	KindSubscribe  EventKind = "subscribe"
	KindGift       EventKind = "gift"
	KindConnect    EventKind = "connect"
	KindDisconnect EventKind = "disconnect"
)

// InteractionEvent is one interaction from the live source. Append-only:
// never mutated after creation.
type InteractionEvent struct {
	EventID   string // unique id for idempotency
	SessionID string
	Handle    string
	Kind      EventKind
	Magnitude int // coin value for gifts, count for batched reactions
	TS        time.Time
}

// Participant is an external-source identity accumulating engagement points.
type Participant struct {
	Handle   string
	OwnerID  string // empty until linked to an entry owner
	Points   float64
	LastSeen time.Time
}

// Session is one lifecycle window of the live-source connection.
type Session struct {
	ID         string
	HostHandle string
	StartedAt  time.Time
	EndedAt    time.Time // zero while active
	Unplanned  bool      // closed by link loss rather than caller request
}

// Active reports whether the session is still open.
func (s Session) Active() bool {
	return s.EndedAt.IsZero()
}
