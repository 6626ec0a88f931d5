package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

// Publisher announces settlement events. Publishing is best-effort: a broker
// outage must never fail a payment that already committed.
type Publisher interface {
	StateChanged(ctx context.Context, paymentID uuid.UUID, from, to models.PaymentStatus)
	Notify(ctx context.Context, event string, payload interface{})
}

// EventPublisher writes state transitions to Kafka and pushes notification
// payloads for the (out-of-scope) notification service over NATS.
type EventPublisher struct {
	kafkaWriter *kafka.Writer
	nc          *nats.Conn
}

func NewEventPublisher(kafkaWriter *kafka.Writer, nc *nats.Conn) *EventPublisher {
	return &EventPublisher{kafkaWriter: kafkaWriter, nc: nc}
}

func (e *EventPublisher) StateChanged(ctx context.Context, paymentID uuid.UUID, from, to models.PaymentStatus) {
	event := map[string]interface{}{
		"payment_id":     paymentID.String(),
		"state":          to,
		"previous_state": from,
		"timestamp":      time.Now(),
	}
	eventJSON, _ := json.Marshal(event)

	if err := e.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(paymentID.String()),
		Value: eventJSON,
	}); err != nil {
		telemetry.Logger.Warn("Failed to publish state change",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", paymentID.String()),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
}

func (e *EventPublisher) Notify(ctx context.Context, event string, payload interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return
	}
	if err := e.nc.Publish("settlement.notifications", msg); err != nil {
		telemetry.Logger.Warn("Failed to publish notification",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
