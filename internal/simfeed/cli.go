package simfeed

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/requestline/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "feed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the feed generator.
func ShowHelp() {
	os.Stdout.WriteString(`Requestline Feed Generator
==========================

A websocket server that emits a synthetic live-stream interaction feed
for exercising the request queue service.

Usage:
  go run cmd/feedgen/main.go [options]

Options:
  -addr string
        Listen address for the websocket server (default ":9081")
  -path string
        Websocket endpoint path (default "/feed")
  -handles string
        Comma-separated participant handles (default built-in set)
  -rate duration
        Delay between emitted events (default 200ms)
  -gift float
        Probability that an event is a gift (default 0.05)
  -max-gift int
        Upper bound on gift magnitude (default 5000)
  -drop-after duration
        Close connections after this long to simulate link loss (default 0, never)
  -log string
        Log file for feed output (default: feed_log_TIMESTAMP.log)
  -verbose
        Log every emitted event
  -help
        Show this help message

Examples:
  # Run with default settings
  go run cmd/feedgen/main.go

  # Emit faster with more gifts
  go run cmd/feedgen/main.go -rate 50ms -gift 0.15

  # Simulate an unstable link
  go run cmd/feedgen/main.go -drop-after 90s
`)
}
