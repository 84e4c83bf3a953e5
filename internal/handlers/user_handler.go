package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/playhall/backend/internal/services"
)

type UserHandler struct {
	ledger *services.LedgerService
}

func NewUserHandler(ledger *services.LedgerService) *UserHandler {
	return &UserHandler{ledger: ledger}
}

// GetBalance returns the caller's current balance
// @Summary Get Balance
// @Description Return the authenticated user's virtual currency balance
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{userId=string,balance=int64}
// @Failure 401 {object} services.ErrorResponse
// @Router /user/balance [get]
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":    balance.UserID,
		"balance":   balance.Amount,
		"updatedAt": balance.UpdatedAt,
	})
}

// GetTransactions returns the caller's recent settlements
// @Summary Get Transactions
// @Description Return the authenticated user's most recent transactions, newest first
// @Tags User
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows to return (default 50, max 100)"
// @Success 200 {object} object{transactions=[]object}
// @Failure 401 {object} services.ErrorResponse
// @Router /user/transactions [get]
func (h *UserHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	transactions, err := h.ledger.RecentTransactions(r.Context(), userID, limit)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
	})
}
