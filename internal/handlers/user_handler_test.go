package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/playhall/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserHandler(t *testing.T) (*UserHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewUserHandler(services.NewLedgerService(db)), mock, func() { db.Close() }
}

func TestUserHandler_GetBalance(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		h, _, closeDB := newUserHandler(t)
		defer closeDB()

		w := httptest.NewRecorder()
		h.GetBalance(w, httptest.NewRequest(http.MethodGet, "/user/balance", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("returns the balance", func(t *testing.T) {
		h, mock, closeDB := newUserHandler(t)
		defer closeDB()

		mock.ExpectQuery("SELECT user_id, amount, version").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "version", "updated_at"}).
				AddRow("user-1", 1250, 4, time.Now()))

		req := authedRequest(t, http.MethodGet, "/user/balance", nil)
		w := httptest.NewRecorder()
		h.GetBalance(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "user-1", body["userId"])
		assert.Equal(t, float64(1250), body["balance"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserHandler_GetTransactions(t *testing.T) {
	t.Run("rejects a non-numeric limit", func(t *testing.T) {
		h, _, closeDB := newUserHandler(t)
		defer closeDB()

		req := authedRequest(t, http.MethodGet, "/user/transactions?limit=abc", nil)
		w := httptest.NewRecorder()
		h.GetTransactions(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns recent settlements", func(t *testing.T) {
		h, mock, closeDB := newUserHandler(t)
		defer closeDB()

		mock.ExpectQuery("SELECT id, transaction_id, user_id").
			WithArgs("user-1", 10).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "transaction_id", "user_id", "game_type", "bet_amount", "win_amount",
				"balance_before", "balance_after", "result_data", "created_at",
			}).AddRow(1, "tx-1", "user-1", "roulette", 100, 200, 1000, 1100, []byte(`{"number":4}`), time.Now()))

		req := authedRequest(t, http.MethodGet, "/user/transactions?limit=10", nil)
		w := httptest.NewRecorder()
		h.GetTransactions(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		transactions := body["transactions"].([]any)
		require.Len(t, transactions, 1)
		first := transactions[0].(map[string]any)
		assert.Equal(t, "tx-1", first["transaction_id"])
		assert.Equal(t, float64(200), first["win_amount"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
