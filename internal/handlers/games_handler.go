package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/playhall/backend/internal/models"
	"github.com/playhall/backend/internal/services"
)

type GamesHandler struct {
	settlement  *services.SettlementService
	ledger      *services.LedgerService
	idempotency *services.IdempotencyService
	validator   *services.ValidationHelper
}

func NewGamesHandler(settlement *services.SettlementService, ledger *services.LedgerService, idempotency *services.IdempotencyService) *GamesHandler {
	return &GamesHandler{
		settlement:  settlement,
		ledger:      ledger,
		idempotency: idempotency,
		validator:   services.NewValidationHelper(),
	}
}

// sendGameError maps the service error taxonomy onto HTTP statuses.
func sendGameError(w http.ResponseWriter, err error) {
	switch {
	case services.IsValidationError(err):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrBonusAlreadyClaimed):
		services.SendErrorResponse(w, "Daily bonus already claimed", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrPendingCreditNotFound):
		services.SendErrorResponse(w, "Preview not found or already settled", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrGameNotFound):
		services.SendErrorResponse(w, "Game not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrGameInProgress):
		services.SendErrorResponse(w, "A game is already in progress", http.StatusConflict, nil)
	case errors.Is(err, services.ErrGameAlreadyCompleted):
		services.SendErrorResponse(w, "Game already completed", http.StatusConflict, nil)
	case errors.Is(err, services.ErrGameConflict):
		services.SendErrorResponse(w, "Game state changed, retry the action", http.StatusConflict, nil)
	case errors.Is(err, services.ErrDuplicateInProgress):
		services.SendErrorResponse(w, "Duplicate request still in progress", http.StatusTooManyRequests, nil)
	default:
		services.SendErrorResponse(w, "Settlement failed", http.StatusInternalServerError, nil)
	}
}

// handViews renders player hands for the client.
func handViews(session *models.GameSession) []map[string]any {
	hands := make([]map[string]any, 0, len(session.Hands))
	for i := range session.Hands {
		hand := &session.Hands[i]
		cards := make([]string, 0, len(hand.Cards))
		for _, c := range hand.Cards {
			cards = append(cards, c.String())
		}
		hands = append(hands, map[string]any{
			"cards":  cards,
			"value":  hand.Value(),
			"status": hand.Status,
			"bet":    hand.Bet,
		})
	}
	return hands
}

// gameStateView renders a session for the client. While the game is in
// progress the dealer's hole card stays hidden and the dealer value only
// counts the up card.
func gameStateView(session *models.GameSession) map[string]any {
	dealer := map[string]any{}
	if session.Status == models.SessionInProgress && len(session.DealerHand.Cards) >= 2 {
		up := session.DealerHand.Cards[0]
		dealer["cards"] = []string{up.String(), "??"}
		dealer["value"] = (&models.Hand{Cards: []models.Card{up}}).Value()
	} else {
		cards := make([]string, 0, len(session.DealerHand.Cards))
		for _, c := range session.DealerHand.Cards {
			cards = append(cards, c.String())
		}
		dealer["cards"] = cards
		dealer["value"] = session.DealerHand.Value()
	}

	return map[string]any{
		"gameId":          session.SessionID,
		"status":          session.Status,
		"hands":           handViews(session),
		"activeHandIndex": session.ActiveHandIndex,
		"dealer":          dealer,
	}
}

// RouletteBet places and settles a single roulette bet
// @Summary Play Roulette
// @Description Place a roulette bet, spin the wheel, and settle the outcome atomically
// @Tags Games
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,betType=string,betValue=string} true "Roulette bet"
// @Success 200 {object} object{success=bool,result=object,winAmount=int64,newBalance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /games/roulette/bet [post]
func (h *GamesHandler) RouletteBet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount   int64  `json:"amount" validate:"required,gt=0"`
		BetType  string `json:"betType" validate:"required"`
		BetValue any    `json:"betValue" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	outcome, err := h.settlement.PlayRoulette(r.Context(), userID, r.RemoteAddr, req.Amount, req.BetType, req.BetValue)
	if err != nil {
		sendGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"gameId":     outcome.Transaction.TransactionID,
		"result":     outcome.Result,
		"betAmount":  req.Amount,
		"winAmount":  outcome.Transaction.WinAmount,
		"netResult":  outcome.Transaction.WinAmount - req.Amount,
		"newBalance": outcome.Transaction.BalanceAfter,
	})
}

// BlackjackStart deals a new blackjack game
// @Summary Start Blackjack
// @Description Start a blackjack game, debiting the bet; a natural blackjack settles immediately
// @Tags Games
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Opening bet"
// @Success 200 {object} object{gameId=string,gameState=object,betAmount=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /games/blackjack/start [post]
func (h *GamesHandler) BlackjackStart(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	outcome, err := h.settlement.StartBlackjack(r.Context(), userID, r.RemoteAddr, req.Amount)
	if err != nil {
		sendGameError(w, err)
		return
	}

	response := map[string]any{
		"gameId":       outcome.Session.SessionID,
		"gameState":    gameStateView(outcome.Session),
		"betAmount":    req.Amount,
		"gameComplete": outcome.Instruction != nil,
	}
	if outcome.Instruction != nil {
		response["gameResult"] = outcome.Instruction
		response["winAmount"] = outcome.Instruction.TotalWin
		response["newBalance"] = outcome.Transaction.BalanceAfter
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// BlackjackAction applies a player action to the active game
// @Summary Blackjack Action
// @Description Apply hit, stand, double, or split to the caller's active blackjack game
// @Tags Games
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{gameId=string,action=string,handIndex=int} true "Player action"
// @Success 200 {object} object{gameComplete=bool,gameState=object}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /games/blackjack/action [post]
func (h *GamesHandler) BlackjackAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		GameID    string `json:"gameId" validate:"required"`
		Action    string `json:"action" validate:"required"`
		HandIndex *int   `json:"handIndex"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	action, err := services.ParseAction(req.Action)
	if err != nil {
		sendGameError(w, err)
		return
	}
	handIndex := -1
	if req.HandIndex != nil {
		handIndex = *req.HandIndex
	}

	outcome, err := h.settlement.BlackjackAction(r.Context(), userID, r.RemoteAddr, req.GameID, action, handIndex)
	if err != nil {
		sendGameError(w, err)
		return
	}

	response := map[string]any{
		"gameComplete": outcome.Instruction != nil,
		"gameState":    gameStateView(outcome.Session),
	}
	if outcome.Instruction != nil {
		response["gameResult"] = outcome.Instruction
		response["winAmount"] = outcome.Instruction.TotalWin
		response["newBalance"] = outcome.Transaction.BalanceAfter
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListCases returns the case catalog
// @Summary List Cases
// @Description List the openable case types with prices and item tables
// @Tags Games
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{cases=[]object}
// @Router /games/cases [get]
func (h *GamesHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"cases": h.settlement.Catalog(),
	})
}

// OpenCase opens a case, optionally in the two-phase preview flow
// @Summary Open Case
// @Description Open a case for its price, pay for a previewed draw up front, or settle a previously paid preview
// @Tags Games
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{caseTypeId=string,previewOnly=bool,requestId=string} true "Case opening request"
// @Success 200 {object} object{opening_result=object,newBalance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /games/cases/open [post]
func (h *GamesHandler) OpenCase(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		CaseTypeID          string                      `json:"caseTypeId" validate:"required"`
		PreviewOnly         bool                        `json:"previewOnly"`
		RequestID           string                      `json:"requestId"`
		PredeterminedWinner *models.PredeterminedWinner `json:"predeterminedWinner"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Every branch below moves money: previews debit the case price up
	// front, openings settle it. Duplicate submissions with the same
	// request id must collapse to one settlement.
	var reservation *services.Reservation
	var idemKey string
	if req.RequestID != "" {
		idemKey = h.idempotency.Key(userID, req.RequestID)
		var err error
		reservation, err = h.idempotency.CheckAndReserve(r.Context(), idemKey)
		if err != nil {
			sendGameError(w, err)
			return
		}
		if !reservation.IsNew {
			w.Header().Set("Content-Type", "application/json")
			w.Write(reservation.CachedResult)
			return
		}
	}

	var outcome *services.CaseOutcome
	var err error
	if req.PreviewOnly {
		outcome, err = h.settlement.PreviewCase(r.Context(), userID, r.RemoteAddr, req.CaseTypeID)
	} else {
		outcome, err = h.settlement.OpenCase(r.Context(), userID, r.RemoteAddr, req.CaseTypeID, req.PredeterminedWinner)
	}
	if err != nil {
		if reservation != nil {
			h.idempotency.Release(r.Context(), idemKey, reservation)
		}
		sendGameError(w, err)
		return
	}

	response := map[string]any{
		"opening_result": outcome.Result,
		"newBalance":     outcome.Transaction.BalanceAfter,
		"transactionId":  outcome.Transaction.TransactionID,
	}
	if outcome.Preview {
		response["preview"] = true
		response["predetermined_winner"] = outcome.Predetermined
	}
	if reservation != nil {
		h.idempotency.Complete(r.Context(), idemKey, reservation, response)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// DailyBonus claims the daily bonus
// @Summary Claim Daily Bonus
// @Description Credit the daily bonus once per cooldown window
// @Tags Games
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{bonusAmount=int64,newBalance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /user/daily-bonus [post]
func (h *GamesHandler) DailyBonus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txn, next, err := h.settlement.ClaimDailyBonus(r.Context(), userID, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, services.ErrBonusAlreadyClaimed) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error":              "Daily bonus already claimed",
				"nextBonusAvailable": next.Format(time.RFC3339),
			})
			return
		}
		sendGameError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"bonusAmount":        txn.WinAmount,
		"previousBalance":    txn.BalanceBefore,
		"newBalance":         txn.BalanceAfter,
		"nextBonusAvailable": next.Format(time.RFC3339),
	})
}
