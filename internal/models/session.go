package models

import (
	"fmt"
	"time"
)

// Card is a single playing card. Rank 1 is the ace, 11-13 are face cards.
type Card struct {
	Rank int    `json:"rank"`
	Suit string `json:"suit"`
}

// Value returns the blackjack value of the card with aces counted as 11.
func (c Card) Value() int {
	switch {
	case c.Rank == 1:
		return 11
	case c.Rank >= 10:
		return 10
	default:
		return c.Rank
	}
}

func (c Card) String() string {
	names := map[int]string{1: "A", 11: "J", 12: "Q", 13: "K"}
	if n, ok := names[c.Rank]; ok {
		return n + c.Suit
	}
	return fmt.Sprintf("%d%s", c.Rank, c.Suit)
}

// HandStatus tracks the per-hand sub-state of a blackjack hand.
type HandStatus string

const (
	HandActive    HandStatus = "active"
	HandStood     HandStatus = "stood"
	HandBusted    HandStatus = "busted"
	HandBlackjack HandStatus = "blackjack"
	HandDoubled   HandStatus = "doubled"
)

// Hand is an ordered list of cards plus its resolution status.
type Hand struct {
	Cards  []Card     `json:"cards"`
	Status HandStatus `json:"status"`
	Bet    int64      `json:"bet"`
}

// Value computes the best blackjack value of the hand: aces count as 11
// unless that would bust, in which case they drop to 1 one at a time.
func (h *Hand) Value() int {
	total, aces := 0, 0
	for _, c := range h.Cards {
		v := c.Value()
		if c.Rank == 1 {
			aces++
		}
		total += v
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// IsSoft reports whether the hand still counts an ace as 11.
func (h *Hand) IsSoft() bool {
	total, aces := 0, 0
	for _, c := range h.Cards {
		total += c.Value()
		if c.Rank == 1 {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return aces > 0
}

// IsBlackjack reports a natural: exactly two cards totalling 21.
func (h *Hand) IsBlackjack() bool {
	return len(h.Cards) == 2 && h.Value() == 21
}

// SessionStatus is the top-level state of a blackjack game session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// GameSession holds in-flight blackjack state across HTTP round-trips.
// Owned exclusively by the blackjack engine; at most one in_progress
// session per user.
type GameSession struct {
	SessionID       string        `json:"session_id"`
	UserID          string        `json:"user_id"`
	BetAmount       int64         `json:"bet_amount"`
	Hands           []Hand        `json:"hands"`
	ActiveHandIndex int           `json:"active_hand_index"`
	DealerHand      Hand          `json:"dealer_hand"`
	Status          SessionStatus `json:"status"`
	DeckState       []Card        `json:"deck_state"`
	Version         int           `json:"version"` // for optimistic updates
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
}
