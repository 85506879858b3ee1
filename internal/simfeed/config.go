package simfeed

import "time"

// Config holds configuration for the simulated live feed.
type Config struct {
	Addr       string        // Listen address for the websocket server
	Path       string        // Websocket endpoint path
	Handles    []string      // Participant handles to emit events for
	EventRate  time.Duration // Delay between emitted events
	GiftChance float64       // Probability that an event is a gift
	MaxGift    int           // Upper bound on gift magnitude
	DropAfter  time.Duration // Close connections after this long; 0 keeps them open
	LogFile    string        // Log file for feed output
	Verbose    bool          // Enable verbose logging
}

// Frame is the wire shape of one interaction event.
type Frame struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Handle    string    `json:"handle"`
	Magnitude int       `json:"magnitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats holds feed statistics.
type Stats struct {
	Connections   int
	EventsEmitted int
	GiftsEmitted  int
	StartTime     time.Time
}
