package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trogers1052/position-ledger/internal/ledger"
	"github.com/trogers1052/position-ledger/internal/models"
)

// CreatePosition inserts a new position with zeroed derived fields
func (db *DB) CreatePosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (
			id, symbol, transaction_ids, current_size, total_buy_amount,
			total_cost, avg_entry_price, realized_pnl_abs, status,
			closed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	now := time.Now()
	if p.Status == "" {
		p.Status = models.PositionStatusOpen
	}
	ids := p.TransactionIDs
	if ids == nil {
		ids = []string{}
	}

	_, err := db.conn.ExecContext(ctx, query,
		p.ID, p.Symbol, pq.Array(ids), p.CurrentSize, p.TotalBuyAmount,
		p.TotalCost, p.AvgEntryPrice, p.RealizedPnlAbs, p.Status,
		p.ClosedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPositionByID retrieves a position by its id
func (db *DB) GetPositionByID(ctx context.Context, id string) (*models.Position, error) {
	query := `
		SELECT id, symbol, transaction_ids, current_size, total_buy_amount,
		       total_cost, avg_entry_price, realized_pnl_abs, status,
		       closed_at, created_at, updated_at
		FROM positions
		WHERE id = $1
	`
	return db.scanPosition(db.conn.QueryRowContext(ctx, query, id), id)
}

// GetPositionBySymbol retrieves a position by its instrument symbol
func (db *DB) GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	query := `
		SELECT id, symbol, transaction_ids, current_size, total_buy_amount,
		       total_cost, avg_entry_price, realized_pnl_abs, status,
		       closed_at, created_at, updated_at
		FROM positions
		WHERE symbol = $1
	`
	return db.scanPosition(db.conn.QueryRowContext(ctx, query, symbol), symbol)
}

func (db *DB) scanPosition(row *sql.Row, key string) (*models.Position, error) {
	var p models.Position
	var txIDs pq.StringArray
	var closedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.Symbol, &txIDs, &p.CurrentSize, &p.TotalBuyAmount,
		&p.TotalCost, &p.AvgEntryPrice, &p.RealizedPnlAbs, &p.Status,
		&closedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %s: %w", key, ledger.ErrPositionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	p.TransactionIDs = []string(txIDs)
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	return &p, nil
}

// ListPositions retrieves all positions ordered by creation time, newest first
func (db *DB) ListPositions(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT id, symbol, transaction_ids, current_size, total_buy_amount,
		       total_cost, avg_entry_price, realized_pnl_abs, status,
		       closed_at, created_at, updated_at
		FROM positions
		ORDER BY created_at DESC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var p models.Position
		var txIDs pq.StringArray
		var closedAt sql.NullTime

		err := rows.Scan(
			&p.ID, &p.Symbol, &txIDs, &p.CurrentSize, &p.TotalBuyAmount,
			&p.TotalCost, &p.AvgEntryPrice, &p.RealizedPnlAbs, &p.Status,
			&closedAt, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		p.TransactionIDs = []string(txIDs)
		if closedAt.Valid {
			p.ClosedAt = &closedAt.Time
		}
		positions = append(positions, &p)
	}

	return positions, nil
}

// AppendTransactionID adds a transaction id to the position's ledger membership
func (db *DB) AppendTransactionID(ctx context.Context, positionID, txID string) error {
	query := `
		UPDATE positions
		SET transaction_ids = array_append(transaction_ids, $2)
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query, positionID, txID)
	if err != nil {
		return fmt.Errorf("failed to append transaction id: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", positionID, ledger.ErrPositionNotFound)
	}
	return nil
}

// RemoveTransactionID removes a transaction id from the position's ledger membership
func (db *DB) RemoveTransactionID(ctx context.Context, positionID, txID string) error {
	query := `
		UPDATE positions
		SET transaction_ids = array_remove(transaction_ids, $2)
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query, positionID, txID)
	if err != nil {
		return fmt.Errorf("failed to remove transaction id: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", positionID, ledger.ErrPositionNotFound)
	}
	return nil
}

// OverwritePositionDerived replaces the derived accounting fields in a
// single update. Symbol, membership and created_at are left untouched.
func (db *DB) OverwritePositionDerived(ctx context.Context, p *models.Position) error {
	query := `
		UPDATE positions SET
			current_size = $2, total_buy_amount = $3, total_cost = $4,
			avg_entry_price = $5, realized_pnl_abs = $6, status = $7,
			closed_at = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query,
		p.ID, p.CurrentSize, p.TotalBuyAmount, p.TotalCost,
		p.AvgEntryPrice, p.RealizedPnlAbs, p.Status,
		p.ClosedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to overwrite position: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", p.ID, ledger.ErrPositionNotFound)
	}
	return nil
}
