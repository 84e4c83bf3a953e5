package services

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/playhall/backend/internal/models"
)

// OutcomeSource produces the randomness behind every game outcome.
// The production implementation reads crypto/rand; tests inject scripted
// sources to make draws deterministic.
type OutcomeSource interface {
	// Intn returns a uniform value in [0, n). n must be > 0.
	Intn(n int) int
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// CryptoSource is the crypto/rand backed OutcomeSource.
type CryptoSource struct{}

func NewCryptoSource() *CryptoSource { return &CryptoSource{} }

func (s *CryptoSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("Intn called with n=%d", n))
	}
	// Rejection sampling to avoid modulo bias.
	max := uint64(n)
	limit := (^uint64(0) / max) * max
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(fmt.Sprintf("crypto/rand read failed: %v", err))
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return int(v % max)
		}
	}
}

func (s *CryptoSource) Float64() float64 {
	// 53 random bits, the float64 mantissa width.
	const denom = 1 << 53
	return float64(s.Intn(denom)) / float64(denom)
}

var suits = []string{"S", "H", "D", "C"}

// ShuffledDeck returns a full 52-card deck in Fisher-Yates order drawn
// from src.
func ShuffledDeck(src OutcomeSource) []models.Card {
	deck := make([]models.Card, 0, 52)
	for _, suit := range suits {
		for rank := 1; rank <= 13; rank++ {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// WeightedIndex picks an index with probability proportional to weights.
// Weights are expected to sum to 1.0; any rounding remainder falls to the
// last index so a draw can never miss.
func WeightedIndex(src OutcomeSource, weights []float64) int {
	r := src.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}
