package services

import (
	"fmt"
	"strconv"
	"strings"
)

// RouletteService resolves single-shot European roulette bets (37 slots,
// single zero). It is a pure resolver: it never touches the ledger.
type RouletteService struct {
	src OutcomeSource
}

func NewRouletteService(src OutcomeSource) *RouletteService {
	return &RouletteService{src: src}
}

type RouletteBetType string

const (
	BetNumber  RouletteBetType = "number"
	BetColor   RouletteBetType = "color"
	BetParity  RouletteBetType = "parity"
	BetHighLow RouletteBetType = "highlow"
	BetDozen   RouletteBetType = "dozen"
	BetColumn  RouletteBetType = "column"
)

// RouletteBet is a validated, normalized bet.
type RouletteBet struct {
	Type   RouletteBetType
	Number int    // straight-number bets, 0-36
	Choice string // color: red|black, parity: odd|even, highlow: high|low
	Group  int    // dozen/column bets, 1-3
}

// RouletteResult is the resolved outcome, recorded as settlement
// result data.
type RouletteResult struct {
	Number     int    `json:"number"`
	Color      string `json:"color"`
	Matched    bool   `json:"matched"`
	Multiplier int64  `json:"multiplier"`
}

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true,
	16: true, 18: true, 19: true, 21: true, 23: true, 25: true, 27: true,
	30: true, 32: true, 34: true, 36: true,
}

// WheelColor returns red, black, or green for a slot. Zero is green: it is
// neither red nor black, so color bets always lose on it.
func WheelColor(n int) string {
	switch {
	case n == 0:
		return "green"
	case redNumbers[n]:
		return "red"
	default:
		return "black"
	}
}

// ParseRouletteBet validates betType/betValue against their type-specific
// domains. betValue arrives as decoded JSON, so it may be a float64, a
// string, or an int.
func ParseRouletteBet(betType string, betValue any) (*RouletteBet, error) {
	bet := &RouletteBet{Type: RouletteBetType(strings.ToLower(strings.TrimSpace(betType)))}

	switch bet.Type {
	case BetNumber:
		n, err := intValue(betValue)
		if err != nil || n < 0 || n > 36 {
			return nil, NewValidationError("betValue", "number bet must be between 0 and 36")
		}
		bet.Number = n
	case BetColor:
		c, err := stringValue(betValue)
		if err != nil || (c != "red" && c != "black") {
			return nil, NewValidationError("betValue", "color bet must be red or black")
		}
		bet.Choice = c
	case BetParity:
		p, err := stringValue(betValue)
		if err != nil || (p != "odd" && p != "even") {
			return nil, NewValidationError("betValue", "parity bet must be odd or even")
		}
		bet.Choice = p
	case BetHighLow:
		h, err := stringValue(betValue)
		if err != nil || (h != "high" && h != "low") {
			return nil, NewValidationError("betValue", "highlow bet must be high or low")
		}
		bet.Choice = h
	case BetDozen, BetColumn:
		g, err := intValue(betValue)
		if err != nil || g < 1 || g > 3 {
			return nil, NewValidationError("betValue", "%s bet must be between 1 and 3", bet.Type)
		}
		bet.Group = g
	default:
		return nil, NewValidationError("betType", "unknown bet type %q", betType)
	}
	return bet, nil
}

// Spin draws one outcome uniformly from the 37 wheel slots.
func (s *RouletteService) Spin() int {
	return s.src.Intn(37)
}

// Resolve computes the outcome of a bet against a drawn number. Pure
// function of (bet, drawn): winAmount = betAmount*(multiplier+1) on a
// match, 0 otherwise.
func (s *RouletteService) Resolve(bet *RouletteBet, drawn int, betAmount int64) (*RouletteResult, int64) {
	result := &RouletteResult{
		Number:     drawn,
		Color:      WheelColor(drawn),
		Matched:    matches(bet, drawn),
		Multiplier: multiplier(bet.Type),
	}
	if !result.Matched {
		return result, 0
	}
	return result, betAmount * (result.Multiplier + 1)
}

func multiplier(t RouletteBetType) int64 {
	switch t {
	case BetNumber:
		return 35
	case BetDozen, BetColumn:
		return 2
	default:
		return 1
	}
}

func matches(bet *RouletteBet, drawn int) bool {
	switch bet.Type {
	case BetNumber:
		return drawn == bet.Number
	case BetColor:
		return WheelColor(drawn) == bet.Choice
	case BetParity:
		if drawn == 0 {
			return false
		}
		if bet.Choice == "even" {
			return drawn%2 == 0
		}
		return drawn%2 == 1
	case BetHighLow:
		if drawn == 0 {
			return false
		}
		if bet.Choice == "high" {
			return drawn >= 19
		}
		return drawn <= 18
	case BetDozen:
		if drawn == 0 {
			return false
		}
		return (drawn-1)/12+1 == bet.Group
	case BetColumn:
		if drawn == 0 {
			return false
		}
		return (drawn-1)%3+1 == bet.Group
	}
	return false
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func stringValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}
