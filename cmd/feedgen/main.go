package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/requestline/internal/simfeed"
)

// Default configuration constants.
const (
	defaultAddr       = ":9081"
	defaultPath       = "/feed"
	defaultEventRate  = 200 * time.Millisecond
	defaultGiftChance = 0.05
	defaultMaxGift    = 5000
)

// defaultHandles seed the feed when no -handles flag is given.
var defaultHandles = []string{
	"mira_song", "dj_packet", "late_owl", "vinyl_vera", "chord_cat",
	"bass_line", "echo_echo", "night_drive",
}

func main() {
	var (
		addr      = flag.String("addr", defaultAddr, "Listen address for the websocket server")
		path      = flag.String("path", defaultPath, "Websocket endpoint path")
		handles   = flag.String("handles", "", "Comma-separated participant handles")
		rate      = flag.Duration("rate", defaultEventRate, "Delay between emitted events")
		gift      = flag.Float64("gift", defaultGiftChance, "Probability that an event is a gift")
		maxGift   = flag.Int("max-gift", defaultMaxGift, "Upper bound on gift magnitude")
		dropAfter = flag.Duration("drop-after", 0, "Close connections after this long (0 = never)")
		logFile   = flag.String("log", "", "Log file for feed output (default: feed_log_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Log every emitted event")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simfeed.ShowHelp()
		return
	}

	if err := simfeed.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	handleList := defaultHandles
	if *handles != "" {
		handleList = strings.Split(*handles, ",")
	}

	config := &simfeed.Config{
		Addr:       *addr,
		Path:       *path,
		Handles:    handleList,
		EventRate:  *rate,
		GiftChance: *gift,
		MaxGift:    *maxGift,
		DropAfter:  *dropAfter,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := simfeed.NewServer(config)
	if err := server.ListenAndServe(ctx); err != nil {
		os.Stderr.WriteString("Feed server failed: " + err.Error() + "\n")
	}
}
