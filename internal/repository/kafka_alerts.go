package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"PumpWatch/internal/domain/models"
	domainrepo "PumpWatch/internal/domain/repository"
	"PumpWatch/pkg/kafka"
	"PumpWatch/pkg/logger"
)

// alertMessage is the wire shape of one alert event. Decimals serialize as
// quoted strings, so downstream consumers never see binary float values.
type alertMessage struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Type      string    `json:"type"`
	Fuel      string    `json:"fuel"`
	Metric    string    `json:"metric"`
	Action    string    `json:"action"`
	Value     string    `json:"value"`
	Threshold string    `json:"threshold"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// KafkaAlertPublisher publishes alert events to a Kafka topic, keyed by fuel
// so consumers see each fuel's open/close sequence in order.
type KafkaAlertPublisher struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

func NewKafkaAlertPublisher(producer *kafka.Producer, topic string, log *logger.Logger) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic, log: log}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, event *models.AlertEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	msg := alertMessage{
		ID:        event.ID,
		Level:     string(event.Level),
		Type:      event.Type,
		Fuel:      string(event.Fuel),
		Metric:    string(event.Metric),
		Action:    event.Action,
		Value:     event.Value.String(),
		Threshold: event.Threshold.String(),
		Title:     event.Title,
		Message:   event.Message,
		CreatedAt: event.CreatedAt,
	}

	if err := p.producer.Publish(ctx, p.topic, []byte(event.Fuel), msg); err != nil {
		return err
	}
	p.log.Info("alert published",
		logger.String("fuel", string(event.Fuel)),
		logger.String("metric", string(event.Metric)),
		logger.String("level", string(event.Level)),
		logger.String("action", event.Action),
	)
	return nil
}

func (p *KafkaAlertPublisher) Close() error {
	return p.producer.Close()
}

var _ domainrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
