package models

import "time"

// Position status constants
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position is the derived holding state for one instrument. Everything from
// CurrentSize through UpdatedAt is recomputed from scratch by the ledger on
// every replay; only ID, Symbol and TransactionIDs are owned by the journal.
type Position struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	TransactionIDs []string   `json:"transaction_ids"`
	CurrentSize    float64    `json:"current_size"`
	TotalBuyAmount float64    `json:"total_buy_amount"`
	TotalCost      float64    `json:"total_cost"`
	AvgEntryPrice  float64    `json:"avg_entry_price"`
	RealizedPnlAbs float64    `json:"realized_pnl_abs"`
	Status         string     `json:"status"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
