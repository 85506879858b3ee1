// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file backing the queue.
	DBPath string `koanf:"db_path"`

	// BackupDir receives hourly database snapshots. Empty disables backups.
	BackupDir string `koanf:"backup_dir"`

	// BackupIntervalMin sets minutes between database snapshots.
	BackupIntervalMin int `koanf:"backup_interval_min"`

	// EventQueueSize bounds the in-memory stream event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingest workers. Keep at 1 to
	// preserve stream event ordering.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// SyncIntervalSec sets seconds between engagement score syncs.
	SyncIntervalSec int `koanf:"sync_interval_sec"`

	// FeedURL is the websocket endpoint of the live event feed.
	FeedURL string `koanf:"feed_url"`

	// HostHandle is the default stream host to connect to.
	HostHandle string `koanf:"host_handle"`

	// MaxQueueLimit caps GET /queue?limit.
	MaxQueueLimit int `koanf:"max_queue_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		DBPath:            "requestline.db",
		BackupDir:         "backups",
		BackupIntervalMin: 60,
		EventQueueSize:    10_000,
		WorkerCount:       1,
		DedupeSize:        50_000,
		SyncIntervalSec:   15,
		FeedURL:           "ws://localhost:9081/feed",
		HostHandle:        "",
		MaxQueueLimit:     500,
	}
	return c
}
