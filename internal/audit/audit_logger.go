package audit

import (
	"encoding/json"
	"log"
	"time"
)

// AuditEvent is one settlement-related audit line, emitted as single-line
// JSON so downstream log tooling can index it.
type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	GameType      string    `json:"game_type"`
	BetAmount     int64     `json:"bet_amount"`
	WinAmount     int64     `json:"win_amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// LogSettlement records a committed settlement.
func (a *AuditLogger) LogSettlement(transactionID, userID, gameType string, betAmount, winAmount int64, ip string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "SETTLEMENT",
		TransactionID: transactionID,
		UserID:        userID,
		GameType:      gameType,
		BetAmount:     betAmount,
		WinAmount:     winAmount,
		Status:        "SUCCESS",
		Details:       map[string]string{"ip": ip},
	})
}

// LogError records a settlement attempt that failed. Failed attempts are
// audited alongside successes so stuck flows can be reconciled manually.
func (a *AuditLogger) LogError(userID, gameType string, betAmount int64, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "SETTLEMENT",
		UserID:    userID,
		GameType:  gameType,
		BetAmount: betAmount,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

// LogOperation records a non-settlement game event (session start, action).
func (a *AuditLogger) LogOperation(userID, operation, details string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		UserID:    userID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
