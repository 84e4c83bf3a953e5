package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/playhall/backend/internal/models"
	"github.com/spf13/viper"
)

// CasesService resolves case openings against the server-held catalog.
// Preview draws are handed back as HMAC-signed payloads so deferred
// settlement can verify the draw came from this server; amounts are always
// re-validated against the catalog and never taken from the client. The
// ledger additionally ties each preview nonce to a single-use pending
// credit, so a signed payload cannot be settled twice.
type CasesService struct {
	src     OutcomeSource
	catalog map[string]*models.CaseDefinition
	order   []string
}

func NewCasesService(src OutcomeSource) *CasesService {
	svc := &CasesService{
		src:     src,
		catalog: map[string]*models.CaseDefinition{},
	}
	for i := range defaultCatalog {
		def := &defaultCatalog[i]
		svc.catalog[def.CaseTypeID] = def
		svc.order = append(svc.order, def.CaseTypeID)
	}
	return svc
}

// defaultCatalog is the built-in case catalog. Weights inside each case
// sum to 1.0.
var defaultCatalog = []models.CaseDefinition{
	{
		CaseTypeID: "starter",
		Name:       "Starter Case",
		Price:      500,
		Tiers: []models.RarityTier{
			{Rarity: "common", Weight: 0.70, Items: []models.CaseItem{
				{ItemID: "st-chip-50", Name: "Loose Chips", Value: 50},
				{ItemID: "st-chip-150", Name: "Chip Stack", Value: 150},
				{ItemID: "st-chip-300", Name: "Chip Tray", Value: 300},
			}},
			{Rarity: "rare", Weight: 0.25, Items: []models.CaseItem{
				{ItemID: "st-chip-800", Name: "Chip Rack", Value: 800},
				{ItemID: "st-chip-1200", Name: "High Roller Rack", Value: 1200},
			}},
			{Rarity: "legendary", Weight: 0.05, Items: []models.CaseItem{
				{ItemID: "st-chip-5000", Name: "Vault Briefcase", Value: 5000},
			}},
		},
	},
	{
		CaseTypeID: "highroller",
		Name:       "High Roller Case",
		Price:      2500,
		Tiers: []models.RarityTier{
			{Rarity: "common", Weight: 0.60, Items: []models.CaseItem{
				{ItemID: "hr-chip-500", Name: "Table Minimum", Value: 500},
				{ItemID: "hr-chip-1000", Name: "Green Stack", Value: 1000},
				{ItemID: "hr-chip-2000", Name: "Black Stack", Value: 2000},
			}},
			{Rarity: "rare", Weight: 0.30, Items: []models.CaseItem{
				{ItemID: "hr-chip-4000", Name: "Purple Plaque", Value: 4000},
				{ItemID: "hr-chip-6000", Name: "Orange Plaque", Value: 6000},
			}},
			{Rarity: "legendary", Weight: 0.10, Items: []models.CaseItem{
				{ItemID: "hr-chip-20000", Name: "Cage Payout", Value: 20000},
			}},
		},
	},
}

// ListCases returns the catalog in a stable order.
func (s *CasesService) ListCases() []models.CaseDefinition {
	cases := make([]models.CaseDefinition, 0, len(s.order))
	for _, id := range s.order {
		cases = append(cases, *s.catalog[id])
	}
	return cases
}

// GetCase looks a case up by id.
func (s *CasesService) GetCase(caseTypeID string) (*models.CaseDefinition, error) {
	def, ok := s.catalog[caseTypeID]
	if !ok {
		return nil, NewValidationError("caseTypeId", "unknown case type %q", caseTypeID)
	}
	return def, nil
}

// Draw samples a rarity tier by weight, then an item uniformly within the
// tier. The awarded currency is the item's declared value, not a second
// random draw.
func (s *CasesService) Draw(def *models.CaseDefinition) *models.OpeningResult {
	weights := make([]float64, len(def.Tiers))
	for i, tier := range def.Tiers {
		weights[i] = tier.Weight
	}
	tier := def.Tiers[WeightedIndex(s.src, weights)]
	item := tier.Items[s.src.Intn(len(tier.Items))]

	return &models.OpeningResult{
		CaseTypeID: def.CaseTypeID,
		Rarity:     tier.Rarity,
		Item:       item,
		Price:      def.Price,
	}
}

// SignResult wraps a draw into the preview payload handed back to the
// client. The nonce identifies the paid preview's pending credit; it must
// be unpredictable, so a failed entropy read is fatal rather than a
// guessable fallback.
func (s *CasesService) SignResult(result *models.OpeningResult) *models.PredeterminedWinner {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		panic(fmt.Sprintf("crypto/rand is unavailable: %v", err))
	}
	pw := &models.PredeterminedWinner{
		CaseTypeID: result.CaseTypeID,
		ItemID:     result.Item.ItemID,
		Rarity:     result.Rarity,
		Price:      result.Price,
		Value:      result.Item.Value,
		Nonce:      hex.EncodeToString(nonce),
	}
	pw.Signature = s.sign(pw)
	return pw
}

// ValidatePredetermined re-validates a client-submitted preview payload
// before it may settle: the signature must verify and every field must
// match the server catalog.
func (s *CasesService) ValidatePredetermined(pw *models.PredeterminedWinner) (*models.OpeningResult, error) {
	if pw == nil {
		return nil, NewValidationError("predeterminedWinner", "payload is required")
	}
	if !hmac.Equal([]byte(s.sign(pw)), []byte(pw.Signature)) {
		return nil, NewValidationError("predeterminedWinner", "signature mismatch")
	}

	def, err := s.GetCase(pw.CaseTypeID)
	if err != nil {
		return nil, err
	}
	if def.Price != pw.Price {
		return nil, NewValidationError("predeterminedWinner", "price does not match case definition")
	}
	for _, tier := range def.Tiers {
		if tier.Rarity != pw.Rarity {
			continue
		}
		for _, item := range tier.Items {
			if item.ItemID == pw.ItemID {
				if item.Value != pw.Value {
					return nil, NewValidationError("predeterminedWinner", "item value does not match catalog")
				}
				return &models.OpeningResult{
					CaseTypeID: def.CaseTypeID,
					Rarity:     tier.Rarity,
					Item:       item,
					Price:      def.Price,
				}, nil
			}
		}
	}
	return nil, NewValidationError("predeterminedWinner", "item does not belong to case")
}

func (s *CasesService) sign(pw *models.PredeterminedWinner) string {
	viper.SetDefault("games.case_secret", "dev-case-secret")
	h := hmac.New(sha256.New, []byte(viper.GetString("games.case_secret")))
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%s", pw.CaseTypeID, pw.ItemID, pw.Rarity, pw.Price, pw.Value, pw.Nonce)
	return hex.EncodeToString(h.Sum(nil))
}
