package simfeed

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
)

// Relative weights for non-gift event kinds. Reactions dominate a live
// chat; subscriptions are rare.
var kindWeights = []struct {
	kind   string
	weight float64
}{
	{"reaction", 0.55},
	{"comment", 0.30},
	{"share", 0.08},
	{"follow", 0.05},
	{"subscribe", 0.02},
}

// Gift magnitude brackets, arranged from common small gifts to rare
// large ones.
var giftBrackets = []struct {
	max    int
	weight float64
}{
	{50, 0.60},
	{500, 0.25},
	{999, 0.10},
	{5000, 0.05},
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [1, max].
func getRandomInt(max int) int {
	if max < 1 {
		return 1
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64()) + 1
}

// generateFrame produces one synthetic interaction event for a random
// handle.
func generateFrame(config *Config) Frame {
	handle := config.Handles[getRandomInt(len(config.Handles))-1]
	f := Frame{
		EventID:   uuid.New().String(),
		Handle:    handle,
		Timestamp: time.Now().UTC(),
	}

	if getRandomFloat() < config.GiftChance {
		f.Kind = "gift"
		f.Magnitude = giftMagnitude(config.MaxGift)
		return f
	}

	f.Kind = pickKind()
	return f
}

// pickKind draws a non-gift kind from the weight table.
func pickKind() string {
	r := getRandomFloat()
	acc := 0.0
	for _, kw := range kindWeights {
		acc += kw.weight
		if r < acc {
			return kw.kind
		}
	}
	return kindWeights[len(kindWeights)-1].kind
}

// giftMagnitude draws a magnitude from the bracket table, capped at max.
func giftMagnitude(max int) int {
	r := getRandomFloat()
	acc := 0.0
	for _, b := range giftBrackets {
		acc += b.weight
		if r < acc {
			m := getRandomInt(b.max)
			if max > 0 && m > max {
				return max
			}
			return m
		}
	}
	return getRandomInt(max)
}
