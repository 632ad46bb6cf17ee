// Package ledger reconstructs a position's derived state from its ordered
// transaction history. The replay is a pure re-derivation: every invocation
// folds the full transaction set into fresh accounting state and overwrites
// the position's derived fields in a single write, so replaying the same set
// twice produces identical output.
//
// Cost basis is cumulative-since-inception: sells realize P&L against the
// lifetime average buy price and never consume the buy-amount denominator.
// This is the average-cost convention the journal has always used, not
// FIFO/LIFO lot tracking, and callers depend on its observable output.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/position-ledger/internal/models"
)

// Epsilon is the closure band around zero. Repeated float additions and
// subtractions over a position's lifetime leave residue on the order of
// 1e-9; any terminal size within Epsilon of zero is treated as flat.
const Epsilon = 1e-8

// ErrPositionNotFound is returned when the requested position does not
// exist in the store. Implementations wrap it so errors.Is works.
var ErrPositionNotFound = errors.New("position not found")

// TransactionSource supplies transaction records by id. Ids that cannot be
// resolved are simply absent from the result, never an error; the replay
// tolerates a partially available set.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, ids []string) ([]*models.Transaction, error)
}

// PositionStore is the sink side of a replay: position lookup plus the
// atomic overwrite of the derived field set.
type PositionStore interface {
	GetPositionByID(ctx context.Context, id string) (*models.Position, error)
	OverwritePositionDerived(ctx context.Context, p *models.Position) error
}

// Clock returns the current time; injected so tests can pin updated_at and
// the closed_at fallback.
type Clock func() time.Time

// Outcome reports what a repair did. Repaired is false for the empty-ledger
// no-op, which leaves the stored position untouched.
type Outcome struct {
	Repaired       bool
	PreviousStatus string
	Position       *models.Position
}

// Engine replays a position's transaction history into derived state.
type Engine struct {
	source TransactionSource
	store  PositionStore
	now    Clock
}

// NewEngine creates an Engine. A nil clock defaults to time.Now.
func NewEngine(source TransactionSource, store PositionStore, now Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{source: source, store: store, now: now}
}

// Repair re-derives the position's accounting state from its transaction
// history and overwrites the stored derived fields. An unknown position id
// is an error; a position with no resolvable transactions is a no-op.
func (e *Engine) Repair(ctx context.Context, positionID string) (*Outcome, error) {
	pos, err := e.store.GetPositionByID(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", positionID, err)
	}

	txs, err := e.load(ctx, pos.TransactionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for position %s: %w", positionID, err)
	}
	if len(txs) == 0 {
		return &Outcome{Repaired: false, PreviousStatus: pos.Status}, nil
	}

	ordered := orderByDate(txs)
	state := replay(ordered)

	previous := pos.Status
	finalize(pos, state, ordered[len(ordered)-1], e.now())

	if err := e.store.OverwritePositionDerived(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to persist position %s: %w", positionID, err)
	}

	return &Outcome{Repaired: true, PreviousStatus: previous, Position: pos}, nil
}

// load fetches the referenced transactions and pins them back to id-list
// order. The source may return records in any order and may omit ids it
// cannot resolve; re-keying on the id list makes the pre-sort order, and
// therefore the equal-date tie-break, deterministic.
func (e *Engine) load(ctx context.Context, ids []string) ([]*models.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := e.source.FetchTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Transaction, len(fetched))
	for _, tx := range fetched {
		byID[tx.ID] = tx
	}

	txs := make([]*models.Transaction, 0, len(fetched))
	for _, id := range ids {
		if tx, ok := byID[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}
