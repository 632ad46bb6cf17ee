package models

import "time"

// Transaction type constants
const (
	TransactionTypeBuy  = "buy"
	TransactionTypeSell = "sell"
)

// Transaction is a single immutable journal entry for one trade. Amount,
// price and the execution timestamp are stored exactly as the caller
// supplied them; the ledger coerces them to numbers/instants at replay time,
// so a malformed record degrades to a zero contribution instead of being
// unstorable.
type Transaction struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Type       string    `json:"type"`
	Amount     string    `json:"amount"`
	Price      string    `json:"price"`
	ExecutedAt string    `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
