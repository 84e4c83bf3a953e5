package services

import (
	"github.com/stretchr/testify/mock"
)

// MockOutcomeSource is a testify mock for OutcomeSource.
type MockOutcomeSource struct {
	mock.Mock
}

func (m *MockOutcomeSource) Intn(n int) int {
	args := m.Called(n)
	return args.Int(0)
}

func (m *MockOutcomeSource) Float64() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}

// fixedSource returns the same draw every time, clamped into range.
type fixedSource struct {
	n int
	f float64
}

func (s fixedSource) Intn(n int) int {
	if s.n >= n {
		return n - 1
	}
	return s.n
}

func (s fixedSource) Float64() float64 { return s.f }

// identityShuffleSource makes ShuffledDeck a no-op shuffle: every swap
// picks the element already in place, so the deck stays in its
// constructed order (AS, 2S, ... KS, AH, ...).
type identityShuffleSource struct{}

func (identityShuffleSource) Intn(n int) int { return n - 1 }

func (identityShuffleSource) Float64() float64 { return 0 }
