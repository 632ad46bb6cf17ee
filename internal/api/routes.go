package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Journal routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/positions", handler.ListPositions).Methods("GET")
	api.HandleFunc("/positions/{id}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/repair", handler.RepairPosition).Methods("POST")
	api.HandleFunc("/transactions", handler.RecordTransaction).Methods("POST")
	api.HandleFunc("/transactions/{id}", handler.DeleteTransaction).Methods("DELETE")

	return r
}
