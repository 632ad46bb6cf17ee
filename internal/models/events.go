package models

import "time"

// Position event types published to Kafka after a successful repair
const (
	EventPositionRepaired = "POSITION_REPAIRED"
	EventPositionClosed   = "POSITION_CLOSED"
)

// PositionEvent is the envelope for position lifecycle events
type PositionEvent struct {
	EventType string    `json:"event_type"`
	Symbol    string    `json:"symbol"`
	Position  *Position `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
