package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/playhall/backend/internal/models"
)

// BlackjackService runs the multi-step blackjack state machine. It owns
// the session store and the game rules; settlement amounts are returned as
// instructions for the coordinator, the engine never touches the ledger.
type BlackjackService struct {
	store SessionStore
	src   OutcomeSource
}

func NewBlackjackService(store SessionStore, src OutcomeSource) *BlackjackService {
	return &BlackjackService{store: store, src: src}
}

// BlackjackAction is a player move on the active hand.
type BlackjackAction string

const (
	ActionHit    BlackjackAction = "hit"
	ActionStand  BlackjackAction = "stand"
	ActionDouble BlackjackAction = "double"
	ActionSplit  BlackjackAction = "split"
)

// HandResult is the per-hand settlement outcome recorded in result data.
type HandResult struct {
	Cards   []string `json:"cards"`
	Value   int      `json:"value"`
	Status  string   `json:"status"`
	Outcome string   `json:"outcome"` // win, loss, push, blackjack
	Bet     int64    `json:"bet"`
	Win     int64    `json:"win"`
}

// SettlementInstruction is what the coordinator commits when a session
// completes. Bets were already debited at start/double/split time, so only
// TotalWin is credited.
type SettlementInstruction struct {
	SessionID   string       `json:"session_id"`
	TotalBet    int64        `json:"total_bet"`
	TotalWin    int64        `json:"total_win"`
	DealerCards []string     `json:"dealer_cards"`
	DealerValue int          `json:"dealer_value"`
	Hands       []HandResult `json:"hands"`
}

// Start deals a new session for the user. The one-active-game invariant is
// enforced by the store's atomic check-and-create; callers debit the bet
// only after Start succeeds. The second return value reports a natural
// blackjack: the coordinator debits the stake and then resolves it through
// FinishNatural.
func (s *BlackjackService) Start(ctx context.Context, userID string, betAmount int64) (*models.GameSession, bool, error) {
	if betAmount <= 0 {
		return nil, false, NewValidationError("amount", "bet amount must be positive")
	}

	deck := ShuffledDeck(s.src)
	now := time.Now()
	session := &models.GameSession{
		SessionID: uuid.New().String(),
		UserID:    userID,
		BetAmount: betAmount,
		Status:    models.SessionInProgress,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL()),
	}

	player := models.Hand{Status: models.HandActive, Bet: betAmount}
	dealer := models.Hand{Status: models.HandActive}
	// Casino deal order: player, dealer, player, dealer (hole card).
	player.Cards = append(player.Cards, deck[0], deck[2])
	dealer.Cards = append(dealer.Cards, deck[1], deck[3])
	session.DeckState = deck[4:]
	session.Hands = []models.Hand{player}
	session.DealerHand = dealer

	if player.IsBlackjack() {
		session.Hands[0].Status = models.HandBlackjack
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, false, err
	}
	return session, session.Hands[0].Status == models.HandBlackjack, nil
}

// FinishNatural resolves a session whose opening deal was a natural
// blackjack, after the coordinator has debited the stake.
func (s *BlackjackService) FinishNatural(ctx context.Context, session *models.GameSession) (*SettlementInstruction, error) {
	if session.Status != models.SessionInProgress {
		return nil, ErrGameAlreadyCompleted
	}
	return s.finish(ctx, session)
}

// Abort discards a session whose opening debit was rejected.
func (s *BlackjackService) Abort(ctx context.Context, session *models.GameSession) error {
	return s.store.Abort(ctx, session)
}

// Get loads a session and verifies ownership.
func (s *BlackjackService) Get(ctx context.Context, userID, sessionID string) (*models.GameSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// A session id is opaque but not a capability: the caller must own it.
	if session.UserID != userID {
		return nil, ErrGameNotFound
	}
	return session, nil
}

// ExtraBetRequired reports the additional debit an action needs before it
// may be applied (double and split stake a second bet).
func (s *BlackjackService) ExtraBetRequired(session *models.GameSession, action BlackjackAction) int64 {
	switch action {
	case ActionDouble, ActionSplit:
		return session.BetAmount
	}
	return 0
}

// ValidateAction checks an action's legality without mutating anything,
// so the coordinator can debit a double/split stake only for an action
// that will actually apply.
func (s *BlackjackService) ValidateAction(session *models.GameSession, action BlackjackAction, handIndex int) error {
	if session.Status != models.SessionInProgress {
		return ErrGameAlreadyCompleted
	}
	if handIndex < 0 {
		handIndex = session.ActiveHandIndex
	}
	if handIndex != session.ActiveHandIndex {
		return NewValidationError("handIndex", "hand %d is not the active hand", handIndex)
	}
	if session.ActiveHandIndex >= len(session.Hands) {
		return ErrGameAlreadyCompleted
	}
	hand := &session.Hands[session.ActiveHandIndex]
	if hand.Status != models.HandActive {
		return NewValidationError("action", "hand is not active")
	}

	switch action {
	case ActionHit, ActionStand:
		return nil
	case ActionDouble:
		if len(hand.Cards) != 2 {
			return NewValidationError("action", "double is only allowed on a two-card hand")
		}
		return nil
	case ActionSplit:
		if len(session.Hands) > 1 {
			return NewValidationError("action", "only one split is allowed per game")
		}
		if len(hand.Cards) != 2 || hand.Cards[0].Value() != hand.Cards[1].Value() {
			return NewValidationError("action", "split requires a two-card pair of equal value")
		}
		return nil
	}
	return NewValidationError("action", "unknown action %q", string(action))
}

// Act applies one validated action to the caller's session. When the last
// hand resolves the dealer plays out, the store performs its atomic
// completion, and a settlement instruction is returned for the
// coordinator to commit. Calling Act on a completed session returns
// ErrGameAlreadyCompleted without re-settling.
func (s *BlackjackService) Act(ctx context.Context, session *models.GameSession, action BlackjackAction, handIndex int) (*SettlementInstruction, error) {
	if session.Status != models.SessionInProgress {
		return nil, ErrGameAlreadyCompleted
	}
	if handIndex < 0 {
		handIndex = session.ActiveHandIndex
	}
	if handIndex != session.ActiveHandIndex {
		return nil, NewValidationError("handIndex", "hand %d is not the active hand", handIndex)
	}
	if session.ActiveHandIndex >= len(session.Hands) {
		return nil, ErrGameAlreadyCompleted
	}

	hand := &session.Hands[session.ActiveHandIndex]
	if hand.Status != models.HandActive {
		return nil, NewValidationError("action", "hand is not active")
	}

	switch action {
	case ActionHit:
		s.deal(session, hand)
		switch {
		case hand.Value() > 21:
			hand.Status = models.HandBusted
		case hand.Value() == 21:
			hand.Status = models.HandStood
		}
	case ActionStand:
		hand.Status = models.HandStood
	case ActionDouble:
		if len(hand.Cards) != 2 {
			return nil, NewValidationError("action", "double is only allowed on a two-card hand")
		}
		hand.Bet *= 2
		s.deal(session, hand)
		if hand.Value() > 21 {
			hand.Status = models.HandBusted
		} else {
			hand.Status = models.HandDoubled
		}
	case ActionSplit:
		if err := s.split(session, hand); err != nil {
			return nil, err
		}
	default:
		return nil, NewValidationError("action", "unknown action %q", string(action))
	}

	for session.ActiveHandIndex < len(session.Hands) &&
		session.Hands[session.ActiveHandIndex].Status != models.HandActive {
		session.ActiveHandIndex++
	}

	if session.ActiveHandIndex >= len(session.Hands) {
		return s.finish(ctx, session)
	}
	return nil, s.store.Update(ctx, session)
}

// split turns a two-card pair into two active hands, one split per
// session. Rank values must match (a king can be split with a ten).
func (s *BlackjackService) split(session *models.GameSession, hand *models.Hand) error {
	if len(session.Hands) > 1 {
		return NewValidationError("action", "only one split is allowed per game")
	}
	if len(hand.Cards) != 2 || hand.Cards[0].Value() != hand.Cards[1].Value() {
		return NewValidationError("action", "split requires a two-card pair of equal value")
	}

	second := models.Hand{
		Cards:  []models.Card{hand.Cards[1]},
		Status: models.HandActive,
		Bet:    session.BetAmount,
	}
	hand.Cards = hand.Cards[:1]
	s.deal(session, hand)
	session.Hands = append(session.Hands, second)
	s.deal(session, &session.Hands[1])
	return nil
}

func (s *BlackjackService) deal(session *models.GameSession, hand *models.Hand) {
	hand.Cards = append(hand.Cards, session.DeckState[0])
	session.DeckState = session.DeckState[1:]
}

// finish plays out the dealer, settles hand outcomes, and performs the
// store's atomic completion so settlement triggers exactly once.
func (s *BlackjackService) finish(ctx context.Context, session *models.GameSession) (*SettlementInstruction, error) {
	// Busted hands lose regardless of the dealer, so the dealer only draws
	// when at least one hand is still standing.
	anyStanding := false
	for i := range session.Hands {
		if session.Hands[i].Status != models.HandBusted {
			anyStanding = true
			break
		}
	}
	if anyStanding {
		for session.DealerHand.Value() < 17 {
			s.deal(session, &session.DealerHand)
		}
	}

	instruction := &SettlementInstruction{
		SessionID:   session.SessionID,
		DealerValue: session.DealerHand.Value(),
	}
	for _, c := range session.DealerHand.Cards {
		instruction.DealerCards = append(instruction.DealerCards, c.String())
	}

	dealerValue := session.DealerHand.Value()
	dealerBlackjack := session.DealerHand.IsBlackjack()
	for i := range session.Hands {
		hand := &session.Hands[i]
		result := HandResult{
			Value:  hand.Value(),
			Status: string(hand.Status),
			Bet:    hand.Bet,
		}
		for _, c := range hand.Cards {
			result.Cards = append(result.Cards, c.String())
		}

		switch {
		case hand.Status == models.HandBusted:
			result.Outcome = "loss"
		case hand.Status == models.HandBlackjack:
			if dealerBlackjack {
				result.Outcome = "push"
				result.Win = hand.Bet
			} else {
				result.Outcome = "blackjack"
				result.Win = hand.Bet * 5 / 2 // 3:2 payout plus returned stake
			}
		case dealerBlackjack:
			result.Outcome = "loss"
		case dealerValue > 21 || hand.Value() > dealerValue:
			result.Outcome = "win"
			result.Win = hand.Bet * 2
		case hand.Value() == dealerValue:
			result.Outcome = "push"
			result.Win = hand.Bet
		default:
			result.Outcome = "loss"
		}

		instruction.TotalBet += hand.Bet
		instruction.TotalWin += result.Win
		instruction.Hands = append(instruction.Hands, result)
	}

	if err := s.store.Complete(ctx, session); err != nil {
		return nil, err
	}
	return instruction, nil
}

// ParseAction normalizes a client action string.
func ParseAction(action string) (BlackjackAction, error) {
	a := BlackjackAction(strings.ToLower(strings.TrimSpace(action)))
	switch a {
	case ActionHit, ActionStand, ActionDouble, ActionSplit:
		return a, nil
	}
	return "", NewValidationError("action", "action must be one of hit, stand, double, split")
}
