package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trogers1052/position-ledger/internal/models"
)

// CreateTransaction inserts a new journal entry. Amount, price and the
// execution timestamp are stored verbatim; coercion happens at replay time.
func (db *DB) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, position_id, tx_type, amount, price, executed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	now := time.Now()

	_, err := db.conn.ExecContext(ctx, query,
		t.ID, t.PositionID, t.Type, t.Amount, t.Price, t.ExecutedAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.CreatedAt = now
	return nil
}

// FetchTransactions retrieves the transactions for the given ids. Ids that
// do not resolve are simply absent from the result; callers own ordering.
func (db *DB) FetchTransactions(ctx context.Context, ids []string) ([]*models.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, position_id, tx_type, amount, price, executed_at, created_at
		FROM transactions
		WHERE id = ANY($1)
	`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(
			&t.ID, &t.PositionID, &t.Type, &t.Amount, &t.Price,
			&t.ExecutedAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}

	return txs, nil
}

// GetTransactionByID retrieves a single transaction
func (db *DB) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `
		SELECT id, position_id, tx_type, amount, price, executed_at, created_at
		FROM transactions
		WHERE id = $1
	`
	var t models.Transaction
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.PositionID, &t.Type, &t.Amount, &t.Price,
		&t.ExecutedAt, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// DeleteTransaction removes a journal entry and reports which position it
// belonged to, so the caller can re-derive that position afterwards
func (db *DB) DeleteTransaction(ctx context.Context, id string) (string, error) {
	query := `DELETE FROM transactions WHERE id = $1 RETURNING position_id`

	var positionID string
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&positionID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("transaction not found: %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete transaction: %w", err)
	}
	return positionID, nil
}
