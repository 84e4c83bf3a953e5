package models

import (
	"encoding/json"
	"time"
)

// GameType identifies the game (or bonus) that produced a settlement.
type GameType string

const (
	GameRoulette   GameType = "roulette"
	GameBlackjack  GameType = "blackjack"
	GameCaseOpen   GameType = "case_opening"
	GameDailyBonus GameType = "daily_bonus"
)

// Transaction is an immutable record of one settlement. The table is
// append-only and forms the audit trail.
// Invariant: BalanceAfter = BalanceBefore - BetAmount + WinAmount, >= 0.
type Transaction struct {
	ID            int             `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	GameType      GameType        `json:"game_type" db:"game_type"`
	BetAmount     int64           `json:"bet_amount" db:"bet_amount"`
	WinAmount     int64           `json:"win_amount" db:"win_amount"`
	BalanceBefore int64           `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64           `json:"balance_after" db:"balance_after"`
	ResultData    json.RawMessage `json:"result_data,omitempty" db:"result_data"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
