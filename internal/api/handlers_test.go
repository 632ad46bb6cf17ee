package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/position-ledger/internal/cache/redis"
	"github.com/trogers1052/position-ledger/internal/ledger"
	"github.com/trogers1052/position-ledger/internal/models"
	"github.com/trogers1052/position-ledger/internal/service"
)

// stubStore is a minimal in-memory service.Store for handler tests
type stubStore struct {
	positions map[string]*models.Position
	bySymbol  map[string]string
	txs       map[string]*models.Transaction
}

func newStubStore() *stubStore {
	return &stubStore{
		positions: map[string]*models.Position{},
		bySymbol:  map[string]string{},
		txs:       map[string]*models.Transaction{},
	}
}

func (s *stubStore) GetPositionByID(_ context.Context, id string) (*models.Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ledger.ErrPositionNotFound)
	}
	cp := *p
	cp.TransactionIDs = append([]string(nil), p.TransactionIDs...)
	return &cp, nil
}

func (s *stubStore) GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	id, ok := s.bySymbol[symbol]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", symbol, ledger.ErrPositionNotFound)
	}
	return s.GetPositionByID(ctx, id)
}

func (s *stubStore) CreatePosition(_ context.Context, p *models.Position) error {
	cp := *p
	s.positions[p.ID] = &cp
	s.bySymbol[p.Symbol] = p.ID
	return nil
}

func (s *stubStore) ListPositions(_ context.Context) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range s.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *stubStore) AppendTransactionID(_ context.Context, positionID, txID string) error {
	p, ok := s.positions[positionID]
	if !ok {
		return fmt.Errorf("position %s: %w", positionID, ledger.ErrPositionNotFound)
	}
	p.TransactionIDs = append(p.TransactionIDs, txID)
	return nil
}

func (s *stubStore) RemoveTransactionID(_ context.Context, positionID, txID string) error {
	p, ok := s.positions[positionID]
	if !ok {
		return fmt.Errorf("position %s: %w", positionID, ledger.ErrPositionNotFound)
	}
	var kept []string
	for _, id := range p.TransactionIDs {
		if id != txID {
			kept = append(kept, id)
		}
	}
	p.TransactionIDs = kept
	return nil
}

func (s *stubStore) CreateTransaction(_ context.Context, t *models.Transaction) error {
	t.CreatedAt = time.Now()
	cp := *t
	s.txs[t.ID] = &cp
	return nil
}

func (s *stubStore) DeleteTransaction(_ context.Context, id string) (string, error) {
	t, ok := s.txs[id]
	if !ok {
		return "", fmt.Errorf("transaction not found: %s", id)
	}
	delete(s.txs, id)
	return t.PositionID, nil
}

func (s *stubStore) FetchTransactions(_ context.Context, ids []string) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, id := range ids {
		if t, ok := s.txs[id]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) OverwritePositionDerived(_ context.Context, p *models.Position) error {
	stored, ok := s.positions[p.ID]
	if !ok {
		return fmt.Errorf("position %s: %w", p.ID, ledger.ErrPositionNotFound)
	}
	stored.CurrentSize = p.CurrentSize
	stored.TotalBuyAmount = p.TotalBuyAmount
	stored.TotalCost = p.TotalCost
	stored.AvgEntryPrice = p.AvgEntryPrice
	stored.RealizedPnlAbs = p.RealizedPnlAbs
	stored.Status = p.Status
	stored.ClosedAt = p.ClosedAt
	stored.UpdatedAt = p.UpdatedAt
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (func(), error) {
	return nil, redis.ErrLockHeld
}

func newTestRouter(store service.Store, locks service.Locker) http.Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	journal := service.NewJournal(store, locks, nil, logger, func() time.Time { return fixed })
	return SetupRoutes(NewHandler(journal))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	t.Run("health check", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "GET", "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("record transaction with numeric amounts", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "POST", "/api/v1/transactions",
			`{"symbol":"BTC","type":"buy","amount":10,"price":100.5}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Transaction models.Transaction `json:"transaction"`
			Repair      struct {
				Repaired bool             `json:"repaired"`
				Position *models.Position `json:"position"`
			} `json:"repair"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "10", resp.Transaction.Amount)
		assert.Equal(t, "100.5", resp.Transaction.Price)
		require.True(t, resp.Repair.Repaired)
		assert.Equal(t, 10.0, resp.Repair.Position.CurrentSize)
	})

	t.Run("record transaction with string amounts", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "POST", "/api/v1/transactions",
			`{"symbol":"BTC","type":"sell","amount":"5","price":"50"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Repair struct {
				Repaired bool             `json:"repaired"`
				Position *models.Position `json:"position"`
			} `json:"repair"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Repair.Repaired)
		assert.Equal(t, -5.0, resp.Repair.Position.CurrentSize)
		assert.Equal(t, 250.0, resp.Repair.Position.RealizedPnlAbs)
	})

	t.Run("record transaction rejects unknown type", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "POST", "/api/v1/transactions",
			`{"symbol":"BTC","type":"dividend","amount":1,"price":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("record transaction rejects bad body", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "POST", "/api/v1/transactions", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("repair unknown position returns 404", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "POST", "/api/v1/positions/ghost/repair", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("repair with no transactions reports a no-op", func(t *testing.T) {
		store := newStubStore()
		require.NoError(t, store.CreatePosition(context.Background(),
			&models.Position{ID: "pos-1", Symbol: "BTC", Status: models.PositionStatusOpen}))

		router := newTestRouter(store, nil)
		rec := doJSON(t, router, "POST", "/api/v1/positions/pos-1/repair", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp repairResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Repaired)
		assert.Equal(t, "no transactions", resp.Reason)
	})

	t.Run("repair in flight returns 409", func(t *testing.T) {
		store := newStubStore()
		require.NoError(t, store.CreatePosition(context.Background(),
			&models.Position{ID: "pos-1", Symbol: "BTC", Status: models.PositionStatusOpen}))

		router := newTestRouter(store, heldLocker{})
		rec := doJSON(t, router, "POST", "/api/v1/positions/pos-1/repair", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("get position", func(t *testing.T) {
		store := newStubStore()
		require.NoError(t, store.CreatePosition(context.Background(),
			&models.Position{ID: "pos-1", Symbol: "BTC", Status: models.PositionStatusOpen}))

		router := newTestRouter(store, nil)
		rec := doJSON(t, router, "GET", "/api/v1/positions/pos-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var pos models.Position
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
		assert.Equal(t, "BTC", pos.Symbol)
	})

	t.Run("get unknown position returns 404", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "GET", "/api/v1/positions/ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list positions returns empty array, not null", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "GET", "/api/v1/positions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]\n", rec.Body.String())
	})

	t.Run("delete transaction re-derives the position", func(t *testing.T) {
		store := newStubStore()
		router := newTestRouter(store, nil)

		rec := doJSON(t, router, "POST", "/api/v1/transactions",
			`{"symbol":"BTC","type":"buy","amount":10,"price":100,"executed_at":"2024-01-01T00:00:00Z"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = doJSON(t, router, "POST", "/api/v1/transactions",
			`{"symbol":"BTC","type":"sell","amount":10,"price":150,"executed_at":"2024-01-02T00:00:00Z"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created struct {
			Transaction models.Transaction `json:"transaction"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = doJSON(t, router, "DELETE", "/api/v1/transactions/"+created.Transaction.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Deleted string         `json:"deleted"`
			Repair  repairResponse `json:"repair"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, created.Transaction.ID, resp.Deleted)
		require.True(t, resp.Repair.Repaired)
		assert.Equal(t, models.PositionStatusOpen, resp.Repair.Position.Status)
		assert.Equal(t, 10.0, resp.Repair.Position.CurrentSize)
	})

	t.Run("delete unknown transaction returns 404", func(t *testing.T) {
		router := newTestRouter(newStubStore(), nil)
		rec := doJSON(t, router, "DELETE", "/api/v1/transactions/ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
