package models

import "time"

// CaseItem is one prize inside a rarity tier. Value is the currency
// awarded when the item is drawn; it is declared by the catalog, never by
// the client.
type CaseItem struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Value  int64  `json:"value"`
}

// RarityTier groups items under a draw weight. Weights across a case's
// tiers sum to 1.0.
type RarityTier struct {
	Rarity string     `json:"rarity"`
	Weight float64    `json:"weight"`
	Items  []CaseItem `json:"items"`
}

// CaseDefinition is a server-held case: its open price and weighted item
// pool. Definitions are the source of truth for every settlement amount.
type CaseDefinition struct {
	CaseTypeID string       `json:"case_type_id"`
	Name       string       `json:"name"`
	Price      int64        `json:"price"`
	Tiers      []RarityTier `json:"tiers"`
}

// OpeningResult is the outcome of a single case draw.
type OpeningResult struct {
	CaseTypeID string   `json:"case_type_id"`
	Rarity     string   `json:"rarity"`
	Item       CaseItem `json:"item"`
	Price      int64    `json:"price"`
}

// PendingCredit is the phase-one record of a previewed opening: the case
// price has already been debited and the item credit waits for the client
// to settle. The nonce is single-use; consuming it is what makes each
// paid preview settle at most once.
type PendingCredit struct {
	Nonce      string    `json:"nonce" db:"nonce"`
	UserID     string    `json:"user_id" db:"user_id"`
	CaseTypeID string    `json:"case_type_id" db:"case_type_id"`
	ItemID     string    `json:"item_id" db:"item_id"`
	Rarity     string    `json:"rarity" db:"rarity"`
	Value      int64     `json:"value" db:"value"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PredeterminedWinner is the payload handed out by preview mode. The
// signature proves the draw was produced by this server; the fields are
// still re-validated against the catalog, and the nonce's pending-credit
// row must be unconsumed, before crediting.
type PredeterminedWinner struct {
	CaseTypeID string `json:"case_type_id"`
	ItemID     string `json:"item_id"`
	Rarity     string `json:"rarity"`
	Price      int64  `json:"price"`
	Value      int64  `json:"value"`
	Nonce      string `json:"nonce"`
	Signature  string `json:"signature"`
}
