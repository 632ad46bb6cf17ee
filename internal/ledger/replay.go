package ledger

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/position-ledger/internal/models"
)

// foldState is the running accounting state carried across the replay.
type foldState struct {
	currentSize    float64
	totalBuyAmount float64
	totalCost      float64
	realizedPnl    float64
}

// replay folds the ordered transactions into accounting state. Buys grow
// size and cost basis; sells shrink size and realize P&L against the
// cumulative average entry price. Unrecognized types carry no accounting
// weight and are skipped, not rejected.
func replay(txs []*models.Transaction) foldState {
	var st foldState
	for _, tx := range txs {
		amount := coerceNumber(tx.Amount)
		price := coerceNumber(tx.Price)

		switch tx.Type {
		case models.TransactionTypeBuy:
			st.currentSize += amount
			st.totalBuyAmount += amount
			st.totalCost += amount * price
		case models.TransactionTypeSell:
			st.currentSize -= amount
			avgEntry := 0.0
			if st.totalBuyAmount > 0 {
				avgEntry = st.totalCost / st.totalBuyAmount
			}
			// A sell before any buy realizes the full proceeds
			// against an entry price of zero.
			st.realizedPnl += (price - avgEntry) * amount
		}
	}
	return st
}

// finalize writes the terminal fold state onto the position. A terminal
// size within Epsilon of zero closes the position and forces the size to
// exactly zero; closed_at is the created_at of the last-ordered transaction,
// falling back to now. Sizes outside the band, including negative ones from
// over-selling, leave the position open. Status is always recomputed here,
// never read back, so a later replay with a fresh buy reopens a closed
// position.
func finalize(pos *models.Position, st foldState, last *models.Transaction, now time.Time) {
	pos.CurrentSize = st.currentSize
	pos.TotalBuyAmount = st.totalBuyAmount
	pos.TotalCost = st.totalCost
	pos.RealizedPnlAbs = st.realizedPnl

	pos.AvgEntryPrice = 0
	if st.totalBuyAmount > 0 {
		pos.AvgEntryPrice = st.totalCost / st.totalBuyAmount
	}

	if math.Abs(st.currentSize) <= Epsilon {
		pos.CurrentSize = 0
		pos.Status = models.PositionStatusClosed
		closedAt := last.CreatedAt
		if closedAt.IsZero() {
			closedAt = now
		}
		pos.ClosedAt = &closedAt
	} else {
		pos.Status = models.PositionStatusOpen
		pos.ClosedAt = nil
	}

	pos.UpdatedAt = now
}

// orderByDate sorts transactions ascending by execution instant. The sort
// is stable over load order, so equal-date transactions replay in a
// reproducible sequence. Unparseable dates collapse to the zero instant and
// sort first.
func orderByDate(txs []*models.Transaction) []*models.Transaction {
	type keyed struct {
		tx *models.Transaction
		at time.Time
	}

	items := make([]keyed, len(txs))
	for i, tx := range txs {
		items[i] = keyed{tx: tx, at: parseInstant(tx.ExecutedAt)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.Before(items[j].at)
	})

	ordered := make([]*models.Transaction, len(items))
	for i, it := range items {
		ordered[i] = it.tx
	}
	return ordered
}

// coerceNumber turns a raw amount/price string into a float64. Malformed or
// missing values coerce to zero so a single bad record cannot abort the
// whole replay.
func coerceNumber(raw string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// parseInstant interprets a raw execution timestamp. RFC3339 first, then a
// naive layout without zone, then a bare date; anything else is the zero
// instant.
func parseInstant(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
