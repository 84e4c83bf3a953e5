package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playhall/backend/internal/models"
	"github.com/spf13/viper"
)

// LedgerService owns the authoritative balance per user and the
// append-only transaction log. All balance mutation goes through Settle so
// a settlement is always one atomic commit: the balance update and its
// transaction record land together or not at all.
type LedgerService struct {
	db          *sql.DB
	maxAttempts int
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:          db,
		maxAttempts: 3,
	}
}

// GetBalance returns the user's balance, creating the row on first
// activity.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*models.Balance, error) {
	bal, err := s.fetchBalance(ctx, s.db, userID)
	if err == sql.ErrNoRows {
		return s.createBalance(ctx, userID)
	}
	return bal, err
}

// Settle atomically applies one game outcome to the user's balance and
// records the transaction. Rejects with ErrInsufficientFunds when the
// balance cannot cover betAmount; concurrent settlements for the same user
// are serialized by optimistic versioning with a bounded retry loop.
func (s *LedgerService) Settle(ctx context.Context, userID string, gameType models.GameType, betAmount, winAmount int64, resultData any) (*models.Transaction, error) {
	return s.settleWithExtra(ctx, userID, gameType, betAmount, winAmount, resultData, nil)
}

// SettleWithPendingCredit settles a case preview's phase one: the price
// debit and the pending-credit row land in the same transaction, so a
// preview is never paid for without its deferred credit being recorded.
func (s *LedgerService) SettleWithPendingCredit(ctx context.Context, userID string, gameType models.GameType, betAmount, winAmount int64, resultData any, pc *models.PendingCredit) (*models.Transaction, error) {
	record := func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_credits (nonce, user_id, case_type_id, item_id, rarity, value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pc.Nonce, pc.UserID, pc.CaseTypeID, pc.ItemID, pc.Rarity, pc.Value, pc.CreatedAt); err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		return nil
	}
	return s.settleWithExtra(ctx, userID, gameType, betAmount, winAmount, resultData, record)
}

// SettleConsumingPendingCredit settles a case preview's phase two. The
// nonce is consumed inside the settlement transaction and only an
// unconsumed row owned by userID qualifies, so each paid preview credits
// at most once; a replayed or foreign nonce fails with
// ErrPendingCreditNotFound before any money moves.
func (s *LedgerService) SettleConsumingPendingCredit(ctx context.Context, userID string, gameType models.GameType, betAmount, winAmount int64, resultData any, nonce string) (*models.Transaction, error) {
	consume := func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE pending_credits
			SET consumed_at = $1
			WHERE nonce = $2 AND user_id = $3 AND consumed_at IS NULL`,
			time.Now(), nonce, userID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		if rowsAffected == 0 {
			return ErrPendingCreditNotFound
		}
		return nil
	}
	return s.settleWithExtra(ctx, userID, gameType, betAmount, winAmount, resultData, consume)
}

// txExtra runs inside the settlement transaction, after the balance check
// and before the transaction insert. A non-nil error aborts the attempt
// and is returned to the caller unwrapped.
type txExtra func(ctx context.Context, tx *sql.Tx) error

func (s *LedgerService) settleWithExtra(ctx context.Context, userID string, gameType models.GameType, betAmount, winAmount int64, resultData any, extra txExtra) (*models.Transaction, error) {
	if betAmount < 0 || winAmount < 0 {
		return nil, NewValidationError("amount", "bet and win amounts must be non-negative")
	}

	var payload []byte
	if resultData != nil {
		var err error
		payload, err = json.Marshal(resultData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result data: %w", err)
		}
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		txn, retry, err := s.settleOnce(ctx, userID, gameType, betAmount, winAmount, payload, extra)
		if err == nil {
			return txn, nil
		}
		if !retry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: version conflict persisted after %d attempts", ErrSettlementFailed, s.maxAttempts)
}

// settleOnce runs a single optimistic attempt. The second return value
// reports whether the caller should retry (lost version race).
func (s *LedgerService) settleOnce(ctx context.Context, userID string, gameType models.GameType, betAmount, winAmount int64, payload []byte, extra txExtra) (*models.Transaction, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	defer tx.Rollback()

	bal, err := s.fetchBalance(ctx, tx, userID)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (user_id, amount, version, updated_at)
			VALUES ($1, 0, 1, $2)
			ON CONFLICT (user_id) DO NOTHING`,
			userID, time.Now()); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		bal, err = s.fetchBalance(ctx, tx, userID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	if bal.Amount < betAmount {
		return nil, false, ErrInsufficientFunds
	}

	if extra != nil {
		if err := extra(ctx, tx); err != nil {
			return nil, false, err
		}
	}

	txn := &models.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		GameType:      gameType,
		BetAmount:     betAmount,
		WinAmount:     winAmount,
		BalanceBefore: bal.Amount,
		BalanceAfter:  bal.Amount - betAmount + winAmount,
		ResultData:    payload,
		CreatedAt:     time.Now(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, user_id, game_type, bet_amount, win_amount, balance_before, balance_after, result_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.TransactionID, txn.UserID, txn.GameType, txn.BetAmount, txn.WinAmount,
		txn.BalanceBefore, txn.BalanceAfter, txn.ResultData, txn.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE balances
		SET amount = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		txn.BalanceAfter, time.Now(), userID, bal.Version)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if rowsAffected == 0 {
		// Another settlement won the version race; retry from a fresh read.
		return nil, true, fmt.Errorf("optimistic lock failed for user %s", userID)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	return txn, false, nil
}

// ClaimDailyBonus performs a zero-bet credit settlement unless the user's
// last daily_bonus transaction is still inside the cooldown window. The
// cooldown check runs inside the settlement transaction: a concurrent
// claim that commits first bumps the balance version, which forces this
// attempt to retry and re-read the just-committed bonus row.
func (s *LedgerService) ClaimDailyBonus(ctx context.Context, userID string) (*models.Transaction, time.Time, error) {
	viper.SetDefault("games.bonus_amount", 1000)
	viper.SetDefault("games.bonus_cooldown", 24*time.Hour)
	bonusAmount := viper.GetInt64("games.bonus_amount")
	cooldown := viper.GetDuration("games.bonus_cooldown")

	var next time.Time
	checkCooldown := func(ctx context.Context, tx *sql.Tx) error {
		var lastClaim time.Time
		err := tx.QueryRowContext(ctx, `
			SELECT created_at FROM transactions
			WHERE user_id = $1 AND game_type = $2
			ORDER BY created_at DESC LIMIT 1`,
			userID, models.GameDailyBonus).Scan(&lastClaim)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		next = lastClaim.Add(cooldown)
		if time.Now().Before(next) {
			return ErrBonusAlreadyClaimed
		}
		return nil
	}

	txn, err := s.settleWithExtra(ctx, userID, models.GameDailyBonus, 0, bonusAmount, map[string]any{"bonus": bonusAmount}, checkCooldown)
	if err != nil {
		return nil, next, err
	}
	return txn, txn.CreatedAt.Add(cooldown), nil
}

// RecentTransactions returns the user's latest settlements, newest first.
func (s *LedgerService) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, game_type, bet_amount, win_amount, balance_before, balance_after, result_data, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		var resultData []byte
		if err := rows.Scan(
			&txn.ID, &txn.TransactionID, &txn.UserID, &txn.GameType,
			&txn.BetAmount, &txn.WinAmount, &txn.BalanceBefore, &txn.BalanceAfter,
			&resultData, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.ResultData = resultData
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *LedgerService) fetchBalance(ctx context.Context, q queryer, userID string) (*models.Balance, error) {
	var bal models.Balance
	err := q.QueryRowContext(ctx, `
		SELECT user_id, amount, version, updated_at
		FROM balances
		WHERE user_id = $1`, userID).
		Scan(&bal.UserID, &bal.Amount, &bal.Version, &bal.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (s *LedgerService) createBalance(ctx context.Context, userID string) (*models.Balance, error) {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount, version, updated_at)
		VALUES ($1, 0, 1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, now); err != nil {
		return nil, err
	}
	return s.fetchBalance(ctx, s.db, userID)
}
