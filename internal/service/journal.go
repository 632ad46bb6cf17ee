// Package service orchestrates the trading journal: recording transactions,
// creating positions on first trade, and running ledger repairs under the
// per-position lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trogers1052/position-ledger/internal/cache/redis"
	"github.com/trogers1052/position-ledger/internal/ledger"
	"github.com/trogers1052/position-ledger/internal/models"
)

// ErrRepairInFlight is returned when another repair of the same position
// holds the lock.
var ErrRepairInFlight = errors.New("repair already in flight")

// ErrInvalidTransaction is returned for requests missing a symbol or using
// a transaction type outside buy/sell.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Store is the persistence surface the journal needs. *database.DB
// satisfies it.
type Store interface {
	ledger.TransactionSource
	ledger.PositionStore

	CreatePosition(ctx context.Context, p *models.Position) error
	GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context) ([]*models.Position, error)
	AppendTransactionID(ctx context.Context, positionID, txID string) error
	RemoveTransactionID(ctx context.Context, positionID, txID string) error
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) (string, error)
}

// Locker serializes repairs per position
type Locker interface {
	Acquire(ctx context.Context, positionID string) (func(), error)
}

// Publisher announces position lifecycle changes
type Publisher interface {
	PublishPositionRepaired(ctx context.Context, pos *models.Position) error
	PublishPositionClosed(ctx context.Context, pos *models.Position) error
}

// Journal wires the store, the replay engine, the repair lock and the
// event producer together. Locker and Publisher may be nil for single
// instance deployments without Redis or Kafka.
type Journal struct {
	store    Store
	engine   *ledger.Engine
	locks    Locker
	producer Publisher
	logger   *logrus.Logger
	now      ledger.Clock
}

// NewJournal creates a Journal. A nil clock defaults to time.Now.
func NewJournal(store Store, locks Locker, producer Publisher, logger *logrus.Logger, now ledger.Clock) *Journal {
	if now == nil {
		now = time.Now
	}
	return &Journal{
		store:    store,
		engine:   ledger.NewEngine(store, store, now),
		locks:    locks,
		producer: producer,
		logger:   logger,
		now:      now,
	}
}

// RecordTransactionInput carries a journal entry as supplied by the caller.
// Amount and price are raw strings; malformed values are stored as-is and
// coerce to zero at replay time.
type RecordTransactionInput struct {
	Symbol     string
	Type       string
	Amount     string
	Price      string
	ExecutedAt string
}

// RecordTransaction stores a new journal entry, creating the position on
// the instrument's first trade, and re-derives the position afterwards.
// A failed re-derivation does not fail the recording; the entry is durable
// and the position can be repaired again at any time.
func (j *Journal) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*models.Transaction, *ledger.Outcome, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, nil, fmt.Errorf("%w: symbol is required", ErrInvalidTransaction)
	}

	txType := strings.ToLower(strings.TrimSpace(in.Type))
	if txType != models.TransactionTypeBuy && txType != models.TransactionTypeSell {
		return nil, nil, fmt.Errorf("%w: type must be buy or sell, got %q", ErrInvalidTransaction, in.Type)
	}

	executedAt := in.ExecutedAt
	if strings.TrimSpace(executedAt) == "" {
		executedAt = j.now().UTC().Format(time.RFC3339)
	}

	pos, err := j.store.GetPositionBySymbol(ctx, symbol)
	if errors.Is(err, ledger.ErrPositionNotFound) {
		pos = &models.Position{
			ID:     uuid.NewString(),
			Symbol: symbol,
			Status: models.PositionStatusOpen,
		}
		if err := j.store.CreatePosition(ctx, pos); err != nil {
			return nil, nil, fmt.Errorf("failed to create position for %s: %w", symbol, err)
		}
		j.logger.WithFields(logrus.Fields{
			"position_id": pos.ID,
			"symbol":      symbol,
		}).Info("position created")
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to look up position for %s: %w", symbol, err)
	}

	tx := &models.Transaction{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Type:       txType,
		Amount:     in.Amount,
		Price:      in.Price,
		ExecutedAt: executedAt,
	}
	if err := j.store.CreateTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	if err := j.store.AppendTransactionID(ctx, pos.ID, tx.ID); err != nil {
		return nil, nil, fmt.Errorf("failed to link transaction to position: %w", err)
	}

	outcome, err := j.RepairPosition(ctx, pos.ID)
	if err != nil {
		j.logger.WithError(err).WithFields(logrus.Fields{
			"position_id":    pos.ID,
			"transaction_id": tx.ID,
		}).Warn("transaction recorded but repair failed")
		return tx, nil, nil
	}

	return tx, outcome, nil
}

// DeleteTransaction removes a journal entry and re-derives the owning
// position from its remaining history.
func (j *Journal) DeleteTransaction(ctx context.Context, txID string) (*ledger.Outcome, error) {
	positionID, err := j.store.DeleteTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := j.store.RemoveTransactionID(ctx, positionID, txID); err != nil {
		return nil, fmt.Errorf("failed to unlink transaction %s: %w", txID, err)
	}

	outcome, err := j.RepairPosition(ctx, positionID)
	if err != nil {
		j.logger.WithError(err).WithFields(logrus.Fields{
			"position_id":    positionID,
			"transaction_id": txID,
		}).Warn("transaction deleted but repair failed")
		return nil, nil
	}
	return outcome, nil
}

// RepairPosition re-derives one position under the per-position lock and
// publishes lifecycle events when the replay wrote new state.
func (j *Journal) RepairPosition(ctx context.Context, positionID string) (*ledger.Outcome, error) {
	if j.locks != nil {
		release, err := j.locks.Acquire(ctx, positionID)
		if errors.Is(err, redis.ErrLockHeld) {
			return nil, fmt.Errorf("position %s: %w", positionID, ErrRepairInFlight)
		}
		if err != nil {
			return nil, err
		}
		defer release()
	}

	outcome, err := j.engine.Repair(ctx, positionID)
	if err != nil {
		return nil, err
	}

	if !outcome.Repaired {
		j.logger.WithField("position_id", positionID).Info("repair was a no-op, no transactions")
		return outcome, nil
	}

	pos := outcome.Position
	j.logger.WithFields(logrus.Fields{
		"position_id":      positionID,
		"symbol":           pos.Symbol,
		"current_size":     pos.CurrentSize,
		"realized_pnl_abs": pos.RealizedPnlAbs,
		"status":           pos.Status,
	}).Info("position repaired")

	if j.producer != nil {
		if err := j.producer.PublishPositionRepaired(ctx, pos); err != nil {
			j.logger.WithError(err).WithField("position_id", positionID).
				Warn("failed to publish repair event")
		}
		closed := pos.Status == models.PositionStatusClosed &&
			outcome.PreviousStatus != models.PositionStatusClosed
		if closed {
			if err := j.producer.PublishPositionClosed(ctx, pos); err != nil {
				j.logger.WithError(err).WithField("position_id", positionID).
					Warn("failed to publish close event")
			}
		}
	}

	return outcome, nil
}

// GetPosition returns one position by id
func (j *Journal) GetPosition(ctx context.Context, positionID string) (*models.Position, error) {
	return j.store.GetPositionByID(ctx, positionID)
}

// ListPositions returns all positions
func (j *Journal) ListPositions(ctx context.Context) ([]*models.Position, error) {
	return j.store.ListPositions(ctx)
}
