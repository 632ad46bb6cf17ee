package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/trogers1052/position-ledger/internal/ledger"
	"github.com/trogers1052/position-ledger/internal/models"
	"github.com/trogers1052/position-ledger/internal/service"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	journal *service.Journal
}

// NewHandler creates a new Handler
func NewHandler(journal *service.Journal) *Handler {
	return &Handler{journal: journal}
}

type repairResponse struct {
	Repaired bool             `json:"repaired"`
	Reason   string           `json:"reason,omitempty"`
	Position *models.Position `json:"position,omitempty"`
}

func newRepairResponse(outcome *ledger.Outcome) repairResponse {
	if outcome == nil {
		return repairResponse{Repaired: false, Reason: "repair pending"}
	}
	if !outcome.Repaired {
		return repairResponse{Repaired: false, Reason: "no transactions"}
	}
	return repairResponse{Repaired: true, Position: outcome.Position}
}

// RepairPosition handles POST /positions/{id}/repair
func (h *Handler) RepairPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	outcome, err := h.journal.RepairPosition(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrPositionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrRepairInFlight):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, newRepairResponse(outcome))
}

// RecordTransaction handles POST /transactions
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol     string          `json:"symbol"`
		Type       string          `json:"type"`
		Amount     json.RawMessage `json:"amount"`
		Price      json.RawMessage `json:"price"`
		ExecutedAt string          `json:"executed_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, outcome, err := h.journal.RecordTransaction(r.Context(), service.RecordTransactionInput{
		Symbol:     req.Symbol,
		Type:       req.Type,
		Amount:     rawString(req.Amount),
		Price:      rawString(req.Price),
		ExecutedAt: req.ExecutedAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransaction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": tx,
		"repair":      newRepairResponse(outcome),
	})
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	outcome, err := h.journal.DeleteTransaction(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": id,
		"repair":  newRepairResponse(outcome),
	})
}

// GetPosition handles GET /positions/{id}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	pos, err := h.journal.GetPosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrPositionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, pos)
}

// ListPositions handles GET /positions
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.journal.ListPositions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []*models.Position{}
	}

	respondJSON(w, http.StatusOK, positions)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// rawString flattens a JSON value that may arrive as either a string or a
// bare number into the raw text the journal stores.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
