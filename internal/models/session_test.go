package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCardValue(t *testing.T) {
	assert.Equal(t, 11, Card{Rank: 1, Suit: "S"}.Value())
	assert.Equal(t, 7, Card{Rank: 7, Suit: "H"}.Value())
	assert.Equal(t, 10, Card{Rank: 10, Suit: "D"}.Value())
	assert.Equal(t, 10, Card{Rank: 11, Suit: "C"}.Value())
	assert.Equal(t, 10, Card{Rank: 13, Suit: "S"}.Value())
}

func TestCardString(t *testing.T) {
	assert.Equal(t, "AS", Card{Rank: 1, Suit: "S"}.String())
	assert.Equal(t, "10H", Card{Rank: 10, Suit: "H"}.String())
	assert.Equal(t, "JD", Card{Rank: 11, Suit: "D"}.String())
	assert.Equal(t, "QC", Card{Rank: 12, Suit: "C"}.String())
	assert.Equal(t, "KS", Card{Rank: 13, Suit: "S"}.String())
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		name  string
		ranks []int
		want  int
		soft  bool
	}{
		{"ace plus six is soft 17", []int{1, 6}, 17, true},
		{"ace plus six plus ten drops to hard 17", []int{1, 6, 10}, 17, false},
		{"two aces count 12", []int{1, 1}, 12, true},
		{"three aces count 13", []int{1, 1, 1}, 13, true},
		{"face cards count ten", []int{13, 12}, 20, false},
		{"natural twenty one", []int{1, 13}, 21, true},
		{"bust", []int{10, 9, 5}, 24, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hand := Hand{}
			for _, r := range tt.ranks {
				hand.Cards = append(hand.Cards, Card{Rank: r, Suit: "S"})
			}
			assert.Equal(t, tt.want, hand.Value())
			assert.Equal(t, tt.soft, hand.IsSoft())
		})
	}
}

func TestHandIsBlackjack(t *testing.T) {
	natural := Hand{Cards: []Card{{Rank: 1, Suit: "S"}, {Rank: 13, Suit: "H"}}}
	assert.True(t, natural.IsBlackjack())

	threeCard := Hand{Cards: []Card{{Rank: 7, Suit: "S"}, {Rank: 7, Suit: "H"}, {Rank: 7, Suit: "D"}}}
	assert.False(t, threeCard.IsBlackjack())

	twenty := Hand{Cards: []Card{{Rank: 10, Suit: "S"}, {Rank: 13, Suit: "H"}}}
	assert.False(t, twenty.IsBlackjack())
}
