package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/position-ledger/internal/models"
)

// Producer publishes position lifecycle events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishPositionRepaired publishes an event after a successful replay
func (p *Producer) PublishPositionRepaired(ctx context.Context, pos *models.Position) error {
	event := models.PositionEvent{
		EventType: models.EventPositionRepaired,
		Symbol:    pos.Symbol,
		Position:  pos,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, pos.Symbol, event)
}

// PublishPositionClosed publishes an event when a replay transitions a
// position to closed
func (p *Producer) PublishPositionClosed(ctx context.Context, pos *models.Position) error {
	event := models.PositionEvent{
		EventType: models.EventPositionClosed,
		Symbol:    pos.Symbol,
		Position:  pos,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, pos.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.PositionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
