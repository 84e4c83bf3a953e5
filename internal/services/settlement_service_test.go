package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/playhall/backend/internal/audit"
	"github.com/playhall/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlementFixture struct {
	svc   *SettlementService
	store *MemorySessionStore
	mock  sqlmock.Sqlmock
	close func()
}

func newSettlementFixture(t *testing.T, src OutcomeSource) *settlementFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store := NewMemorySessionStore()
	ledger := NewLedgerService(db)
	svc := NewSettlementService(
		ledger,
		NewRouletteService(src),
		NewBlackjackService(store, src),
		NewCasesService(src),
		audit.NewAuditLogger(),
	)
	return &settlementFixture{svc: svc, store: store, mock: mock, close: func() { db.Close() }}
}

// expectSettle queues the full expectation set for one successful
// settlement commit.
func (f *settlementFixture) expectSettle(balance int64, version int) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT user_id, amount, version").
		WillReturnRows(balanceRows(balance, version))
	f.mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE balances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

func (f *settlementFixture) expectInsufficientFunds(balance int64) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT user_id, amount, version").
		WillReturnRows(balanceRows(balance, 1))
	f.mock.ExpectRollback()
}

// expectPreviewSettle queues the preview commit: price debit plus the
// pending-credit insert in one transaction.
func (f *settlementFixture) expectPreviewSettle(balance int64, version int) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT user_id, amount, version").
		WillReturnRows(balanceRows(balance, version))
	f.mock.ExpectExec("INSERT INTO pending_credits").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE balances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

// expectConsumeSettle queues the deferred-settlement commit, consuming the
// preview's pending credit.
func (f *settlementFixture) expectConsumeSettle(balance int64, version int) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT user_id, amount, version").
		WillReturnRows(balanceRows(balance, version))
	f.mock.ExpectExec("UPDATE pending_credits").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE balances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

// expectConsumedNonce queues a deferred settlement that finds no live
// pending credit for the nonce.
func (f *settlementFixture) expectConsumedNonce(balance int64, version int) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT user_id, amount, version").
		WillReturnRows(balanceRows(balance, version))
	f.mock.ExpectExec("UPDATE pending_credits").
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
}

// lostCompletionStore simulates a concurrent request winning the
// completion transition after this one validated the session.
type lostCompletionStore struct {
	*MemorySessionStore
}

func (s *lostCompletionStore) Complete(ctx context.Context, session *models.GameSession) error {
	return ErrGameAlreadyCompleted
}

func TestSettlementService_PlayRoulette(t *testing.T) {
	ctx := context.Background()

	t.Run("winning number settles bet and payout together", func(t *testing.T) {
		src := new(MockOutcomeSource)
		src.On("Intn", 37).Return(17)
		f := newSettlementFixture(t, src)
		defer f.close()

		f.expectSettle(1000, 1)

		outcome, err := f.svc.PlayRoulette(ctx, "user-1", "127.0.0.1", 100, "number", float64(17))
		require.NoError(t, err)

		assert.True(t, outcome.Result.Matched)
		assert.Equal(t, int64(3600), outcome.Transaction.WinAmount)
		assert.Equal(t, int64(4500), outcome.Transaction.BalanceAfter)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("rejects bets outside table limits without touching the ledger", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		_, err := f.svc.PlayRoulette(ctx, "user-1", "127.0.0.1", 0, "color", "red")
		assert.True(t, IsValidationError(err))

		_, err = f.svc.PlayRoulette(ctx, "user-1", "127.0.0.1", 2_000_000, "color", "red")
		assert.True(t, IsValidationError(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds surfaces before any payout", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectInsufficientFunds(50)

		_, err := f.svc.PlayRoulette(ctx, "user-1", "127.0.0.1", 100, "color", "red")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestSettlementService_StartBlackjack(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the opening bet", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		f.expectSettle(1000, 1)

		outcome, err := f.svc.StartBlackjack(ctx, "user-1", "127.0.0.1", 100)
		require.NoError(t, err)
		assert.Nil(t, outcome.Instruction)
		assert.Equal(t, models.SessionInProgress, outcome.Session.Status)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("rejected debit aborts the session", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		f.expectInsufficientFunds(50)

		_, err := f.svc.StartBlackjack(ctx, "user-1", "127.0.0.1", 100)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		// The user is not locked out of starting once funded.
		f.expectSettle(1000, 1)
		_, err = f.svc.StartBlackjack(ctx, "user-1", "127.0.0.1", 100)
		assert.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("second game is rejected before any debit", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		f.expectSettle(1000, 1)
		_, err := f.svc.StartBlackjack(ctx, "user-1", "127.0.0.1", 100)
		require.NoError(t, err)

		_, err = f.svc.StartBlackjack(ctx, "user-1", "127.0.0.1", 100)
		assert.ErrorIs(t, err, ErrGameInProgress)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestSettlementService_BlackjackAction(t *testing.T) {
	ctx := context.Background()

	t.Run("completion credits the total win once", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		session := seedSession(t, f.store, "user-1", 100, cards(10, 10), cards(10, 7), cards(2))

		// One credit settlement for the win; the opening debit happened at
		// start time.
		f.expectSettle(900, 2)

		outcome, err := f.svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionStand, -1)
		require.NoError(t, err)
		require.NotNil(t, outcome.Instruction)
		assert.Equal(t, int64(200), outcome.Instruction.TotalWin)
		assert.Equal(t, int64(200), outcome.Transaction.WinAmount)

		// Replaying the action cannot settle again.
		_, err = f.svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionStand, -1)
		assert.ErrorIs(t, err, ErrGameAlreadyCompleted)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("double debits the extra stake before acting", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		session := seedSession(t, f.store, "user-1", 100, cards(5, 6), cards(10, 7), cards(10))

		f.expectSettle(900, 2) // extra stake debit
		f.expectSettle(800, 3) // completion credit

		outcome, err := f.svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionDouble, -1)
		require.NoError(t, err)
		require.NotNil(t, outcome.Instruction)
		assert.Equal(t, int64(400), outcome.Instruction.TotalWin)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unaffordable double leaves the hand unchanged", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		session := seedSession(t, f.store, "user-1", 100, cards(5, 6), cards(10, 7), cards(10))

		f.expectInsufficientFunds(50)

		_, err := f.svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionDouble, -1)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		// The hand can still hit or stand afterwards.
		got, err := f.svc.blackjack.Get(ctx, "user-1", session.SessionID)
		require.NoError(t, err)
		assert.Len(t, got.Hands[0].Cards, 2)
		assert.Equal(t, int64(100), got.Hands[0].Bet)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("illegal action is rejected before the extra debit", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		session := seedSession(t, f.store, "user-1", 100, cards(2, 3, 4), cards(10, 7), cards(10))

		_, err := f.svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionDouble, -1)
		assert.True(t, IsValidationError(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("extra stake is refunded when the action loses the completion race", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		// Another request completes the session between this one's debit
		// and its action.
		store := &lostCompletionStore{MemorySessionStore: NewMemorySessionStore()}
		src := identityShuffleSource{}
		svc := NewSettlementService(
			NewLedgerService(db),
			NewRouletteService(src),
			NewBlackjackService(store, src),
			NewCasesService(src),
			audit.NewAuditLogger(),
		)

		session := seedSession(t, store.MemorySessionStore, "user-1", 100, cards(5, 6), cards(10, 7), cards(10))

		expectOne := func(balance int64, version int) {
			mock.ExpectBegin()
			mock.ExpectQuery("SELECT user_id, amount, version").
				WillReturnRows(balanceRows(balance, version))
			mock.ExpectExec("INSERT INTO transactions").
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectExec("UPDATE balances").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
		}
		expectOne(1000, 1) // extra stake debit
		expectOne(900, 2)  // refund of the same stake

		_, err = svc.BlackjackAction(ctx, "user-1", "127.0.0.1", session.SessionID, ActionDouble, -1)
		assert.ErrorIs(t, err, ErrGameAlreadyCompleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign session is not found", func(t *testing.T) {
		f := newSettlementFixture(t, identityShuffleSource{})
		defer f.close()

		session := seedSession(t, f.store, "user-1", 100, cards(10, 9), cards(10, 7), cards(5))

		_, err := f.svc.BlackjackAction(ctx, "user-2", "127.0.0.1", session.SessionID, ActionHit, -1)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})
}

func TestSettlementService_Cases(t *testing.T) {
	ctx := context.Background()

	t.Run("preview debits the price up front", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectPreviewSettle(1000, 1)

		outcome, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		require.NoError(t, err)

		assert.True(t, outcome.Preview)
		require.NotNil(t, outcome.Transaction)
		assert.Equal(t, int64(500), outcome.Transaction.BetAmount)
		assert.Equal(t, int64(0), outcome.Transaction.WinAmount)
		require.NotNil(t, outcome.Predetermined)
		assert.NotEmpty(t, outcome.Predetermined.Signature)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("a broke user cannot preview", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectInsufficientFunds(100)

		_, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("direct open settles price and value together", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectSettle(1000, 1)

		outcome, err := f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", nil)
		require.NoError(t, err)

		assert.Equal(t, int64(500), outcome.Transaction.BetAmount)
		assert.Equal(t, outcome.Result.Item.Value, outcome.Transaction.WinAmount)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("previewed draw settles deferred for its value only", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectPreviewSettle(1000, 1)
		preview, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		require.NoError(t, err)

		f.expectConsumeSettle(500, 2)

		outcome, err := f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", preview.Predetermined)
		require.NoError(t, err)
		assert.Equal(t, preview.Result.Item.ItemID, outcome.Result.Item.ItemID)
		// The price was already debited at preview time.
		assert.Equal(t, int64(0), outcome.Transaction.BetAmount)
		assert.Equal(t, preview.Result.Item.Value, outcome.Transaction.WinAmount)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("a preview settles at most once", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectPreviewSettle(1000, 1)
		preview, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		require.NoError(t, err)

		f.expectConsumeSettle(500, 2)
		_, err = f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", preview.Predetermined)
		require.NoError(t, err)

		// Resubmitting the same signed payload finds its nonce consumed and
		// credits nothing.
		f.expectConsumedNonce(550, 3)
		_, err = f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", preview.Predetermined)
		assert.ErrorIs(t, err, ErrPendingCreditNotFound)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("payload for another case type is rejected", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectPreviewSettle(10000, 1)
		preview, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		require.NoError(t, err)

		_, err = f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "highroller", preview.Predetermined)
		assert.True(t, IsValidationError(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("tampered payload cannot settle", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectPreviewSettle(1000, 1)
		preview, err := f.svc.PreviewCase(ctx, "user-1", "127.0.0.1", "starter")
		require.NoError(t, err)
		preview.Predetermined.Value = 1_000_000

		_, err = f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", preview.Predetermined)
		assert.True(t, IsValidationError(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds cannot open a case", func(t *testing.T) {
		f := newSettlementFixture(t, fixedSource{})
		defer f.close()

		f.expectInsufficientFunds(100)

		_, err := f.svc.OpenCase(ctx, "user-1", "127.0.0.1", "starter", nil)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}
