package services

import (
	"errors"
	"fmt"
)

// Settlement and game-state errors surfaced to handlers. Handlers map
// these onto HTTP statuses; anything else is treated as an internal error
// and never leaks persistence detail to the caller.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrGameInProgress        = errors.New("game already in progress")
	ErrGameNotFound          = errors.New("game not found")
	ErrGameAlreadyCompleted  = errors.New("game already completed")
	ErrGameConflict          = errors.New("game state changed concurrently")
	ErrDuplicateInProgress   = errors.New("duplicate request in progress")
	ErrBonusAlreadyClaimed   = errors.New("daily bonus already claimed")
	ErrPendingCreditNotFound = errors.New("pending credit not found or already settled")
	ErrSettlementFailed      = errors.New("settlement failed")
)

// ValidationError reports a malformed or out-of-range bet. It is always
// recovered locally and returned to the caller as a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
