package services

import (
	"context"
	"errors"
	"time"

	"github.com/playhall/backend/internal/audit"
	"github.com/playhall/backend/internal/models"
	"github.com/spf13/viper"
)

// SettlementService coordinates one game round end to end: validate the
// bet, resolve the outcome through the game engine, commit exactly one
// ledger settlement, and audit the result. Game engines never touch the
// ledger directly; all money movement funnels through here.
type SettlementService struct {
	ledger    *LedgerService
	roulette  *RouletteService
	blackjack *BlackjackService
	cases     *CasesService
	audit     *audit.AuditLogger
}

func NewSettlementService(ledger *LedgerService, roulette *RouletteService, blackjack *BlackjackService, cases *CasesService, auditLogger *audit.AuditLogger) *SettlementService {
	return &SettlementService{
		ledger:    ledger,
		roulette:  roulette,
		blackjack: blackjack,
		cases:     cases,
		audit:     auditLogger,
	}
}

// validateBetLimits rejects bets outside the configured table limits
// before any engine or ledger work happens.
func validateBetLimits(amount int64) error {
	viper.SetDefault("games.min_bet", 1)
	viper.SetDefault("games.max_bet", 1_000_000)
	if amount < viper.GetInt64("games.min_bet") {
		return NewValidationError("amount", "bet amount must be at least %d", viper.GetInt64("games.min_bet"))
	}
	if amount > viper.GetInt64("games.max_bet") {
		return NewValidationError("amount", "bet amount must not exceed %d", viper.GetInt64("games.max_bet"))
	}
	return nil
}

// RouletteOutcome is one settled roulette round.
type RouletteOutcome struct {
	Result      *RouletteResult
	Transaction *models.Transaction
}

// PlayRoulette resolves and settles a single-shot roulette bet. The spin,
// the debit, and the credit land in one settlement commit.
func (s *SettlementService) PlayRoulette(ctx context.Context, userID, ip string, betAmount int64, betType string, betValue any) (*RouletteOutcome, error) {
	if err := validateBetLimits(betAmount); err != nil {
		return nil, err
	}
	bet, err := ParseRouletteBet(betType, betValue)
	if err != nil {
		return nil, err
	}

	result, winAmount := s.roulette.Resolve(bet, s.roulette.Spin(), betAmount)
	txn, err := s.ledger.Settle(ctx, userID, models.GameRoulette, betAmount, winAmount, result)
	if err != nil {
		s.audit.LogError(userID, string(models.GameRoulette), betAmount, err)
		return nil, err
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameRoulette), betAmount, winAmount, ip)
	return &RouletteOutcome{Result: result, Transaction: txn}, nil
}

// BlackjackOutcome is the state after a blackjack start or action. The
// instruction and transaction are nil while the game is still in
// progress.
type BlackjackOutcome struct {
	Session     *models.GameSession
	Instruction *SettlementInstruction
	Transaction *models.Transaction
}

// StartBlackjack creates a session and debits the opening bet. The
// session is created first so the one-active-game invariant holds, then
// the debit settles; a rejected debit aborts the session so the user is
// not locked out. A natural blackjack resolves and credits immediately.
func (s *SettlementService) StartBlackjack(ctx context.Context, userID, ip string, betAmount int64) (*BlackjackOutcome, error) {
	if err := validateBetLimits(betAmount); err != nil {
		return nil, err
	}

	session, natural, err := s.blackjack.Start(ctx, userID, betAmount)
	if err != nil {
		return nil, err
	}

	debit, err := s.ledger.Settle(ctx, userID, models.GameBlackjack, betAmount, 0,
		map[string]any{"phase": "bet", "session_id": session.SessionID})
	if err != nil {
		s.audit.LogError(userID, string(models.GameBlackjack), betAmount, err)
		if abortErr := s.blackjack.Abort(ctx, session); abortErr != nil {
			s.audit.LogError(userID, string(models.GameBlackjack), betAmount, abortErr)
		}
		return nil, err
	}
	s.audit.LogSettlement(debit.TransactionID, userID, string(models.GameBlackjack), betAmount, 0, ip)

	outcome := &BlackjackOutcome{Session: session}
	if natural {
		instruction, err := s.blackjack.FinishNatural(ctx, session)
		if err != nil {
			return nil, err
		}
		outcome.Instruction = instruction
		outcome.Transaction, err = s.creditBlackjack(ctx, userID, ip, instruction)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// BlackjackAction applies one player action. Double and split debit their
// extra stake before the action mutates the session, so a rejected debit
// leaves the hand untouched; action legality is checked first so the
// extra stake is only taken for an action expected to apply. If the
// action still fails after the debit (a concurrent request completed or
// advanced the session first), the stake is refunded.
func (s *SettlementService) BlackjackAction(ctx context.Context, userID, ip, sessionID string, action BlackjackAction, handIndex int) (*BlackjackOutcome, error) {
	session, err := s.blackjack.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.blackjack.ValidateAction(session, action, handIndex); err != nil {
		return nil, err
	}

	extra := s.blackjack.ExtraBetRequired(session, action)
	if extra > 0 {
		debit, err := s.ledger.Settle(ctx, userID, models.GameBlackjack, extra, 0,
			map[string]any{"phase": string(action), "session_id": session.SessionID})
		if err != nil {
			s.audit.LogError(userID, string(models.GameBlackjack), extra, err)
			return nil, err
		}
		s.audit.LogSettlement(debit.TransactionID, userID, string(models.GameBlackjack), extra, 0, ip)
	}

	instruction, err := s.blackjack.Act(ctx, session, action, handIndex)
	if err != nil {
		if extra > 0 {
			s.refundStake(ctx, userID, ip, session.SessionID, extra, action)
		}
		return nil, err
	}

	outcome := &BlackjackOutcome{Session: session, Instruction: instruction}
	if instruction != nil {
		outcome.Transaction, err = s.creditBlackjack(ctx, userID, ip, instruction)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// refundStake returns an extra stake whose action never applied, e.g.
// when a concurrent request completed the session between the debit and
// the action. A failed refund leaves the stake stranded; the audit trail
// carries enough to reconcile it.
func (s *SettlementService) refundStake(ctx context.Context, userID, ip, sessionID string, amount int64, action BlackjackAction) {
	txn, err := s.ledger.Settle(ctx, userID, models.GameBlackjack, 0, amount,
		map[string]any{"phase": "refund", "action": string(action), "session_id": sessionID})
	if err != nil {
		s.audit.LogError(userID, string(models.GameBlackjack), amount, err)
		return
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameBlackjack), 0, amount, ip)
}

// creditBlackjack commits the completion credit. The session store has
// already flipped the session to completed, so a crash between the two
// steps can under-pay but never double-pay; the audit trail carries
// enough to reconcile.
func (s *SettlementService) creditBlackjack(ctx context.Context, userID, ip string, instruction *SettlementInstruction) (*models.Transaction, error) {
	txn, err := s.ledger.Settle(ctx, userID, models.GameBlackjack, 0, instruction.TotalWin, instruction)
	if err != nil {
		s.audit.LogError(userID, string(models.GameBlackjack), 0, err)
		return nil, err
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameBlackjack), 0, instruction.TotalWin, ip)
	return txn, nil
}

// CaseOutcome is one case-opening response. Preview outcomes carry the
// signed payload plus the price-debit transaction; settled outcomes carry
// the transaction that moved the remaining money.
type CaseOutcome struct {
	Preview       bool
	Result        *models.OpeningResult
	Predetermined *models.PredeterminedWinner
	Transaction   *models.Transaction
}

// Catalog exposes the openable case definitions.
func (s *SettlementService) Catalog() []models.CaseDefinition {
	return s.cases.ListCases()
}

// PreviewCase runs a paid opening's first phase: the case price is
// debited up front and the draw comes back as a signed payload the client
// submits later for the item credit. The debit and the pending-credit row
// commit together; abandoning the preview forfeits the price.
func (s *SettlementService) PreviewCase(ctx context.Context, userID, ip, caseTypeID string) (*CaseOutcome, error) {
	def, err := s.cases.GetCase(caseTypeID)
	if err != nil {
		return nil, err
	}
	result := s.cases.Draw(def)
	pw := s.cases.SignResult(result)

	pc := &models.PendingCredit{
		Nonce:      pw.Nonce,
		UserID:     userID,
		CaseTypeID: def.CaseTypeID,
		ItemID:     result.Item.ItemID,
		Rarity:     result.Rarity,
		Value:      result.Item.Value,
		CreatedAt:  time.Now(),
	}
	txn, err := s.ledger.SettleWithPendingCredit(ctx, userID, models.GameCaseOpen, def.Price, 0,
		map[string]any{"phase": "preview", "case_type_id": def.CaseTypeID, "nonce": pw.Nonce}, pc)
	if err != nil {
		s.audit.LogError(userID, string(models.GameCaseOpen), def.Price, err)
		return nil, err
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameCaseOpen), def.Price, 0, ip)
	s.audit.LogOperation(userID, "CASE_PREVIEW", result.Item.ItemID)
	return &CaseOutcome{
		Preview:       true,
		Result:        result,
		Predetermined: pw,
		Transaction:   txn,
	}, nil
}

// OpenCase settles a case opening. When predetermined is non-nil this is
// a preview's second phase: the payload is re-verified, its nonce's
// pending credit is consumed, and only the item value is credited since
// the price was debited at preview time. Otherwise the server draws fresh
// and the price debit and item credit land in one settlement commit.
func (s *SettlementService) OpenCase(ctx context.Context, userID, ip, caseTypeID string, predetermined *models.PredeterminedWinner) (*CaseOutcome, error) {
	if predetermined != nil {
		result, err := s.cases.ValidatePredetermined(predetermined)
		if err != nil {
			return nil, err
		}
		if result.CaseTypeID != caseTypeID {
			return nil, NewValidationError("caseTypeId", "payload belongs to a different case type")
		}
		txn, err := s.ledger.SettleConsumingPendingCredit(ctx, userID, models.GameCaseOpen, 0, result.Item.Value, result, predetermined.Nonce)
		if err != nil {
			s.audit.LogError(userID, string(models.GameCaseOpen), 0, err)
			return nil, err
		}
		s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameCaseOpen), 0, result.Item.Value, ip)
		return &CaseOutcome{Result: result, Transaction: txn}, nil
	}

	def, err := s.cases.GetCase(caseTypeID)
	if err != nil {
		return nil, err
	}
	result := s.cases.Draw(def)
	txn, err := s.ledger.Settle(ctx, userID, models.GameCaseOpen, result.Price, result.Item.Value, result)
	if err != nil {
		s.audit.LogError(userID, string(models.GameCaseOpen), result.Price, err)
		return nil, err
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameCaseOpen), result.Price, result.Item.Value, ip)
	return &CaseOutcome{Result: result, Transaction: txn}, nil
}

// ClaimDailyBonus settles the daily bonus credit unless the cooldown is
// still running. On ErrBonusAlreadyClaimed the returned time says when
// the next claim opens.
func (s *SettlementService) ClaimDailyBonus(ctx context.Context, userID, ip string) (*models.Transaction, time.Time, error) {
	txn, next, err := s.ledger.ClaimDailyBonus(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrBonusAlreadyClaimed) {
			s.audit.LogError(userID, string(models.GameDailyBonus), 0, err)
		}
		return nil, next, err
	}
	s.audit.LogSettlement(txn.TransactionID, userID, string(models.GameDailyBonus), 0, txn.WinAmount, ip)
	return txn, next, nil
}
