package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"PumpWatch/internal/domain/models"
	domainrepo "PumpWatch/internal/domain/repository"
	"PumpWatch/pkg/kafka"
)

// KafkaResultStore streams result rows to a topic instead of writing them to
// ClickHouse directly. Each message carries a kind tag so one consumer can
// fan rows out to their tables.
type KafkaResultStore struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaResultStore(producer *kafka.Producer, topic string) *KafkaResultStore {
	return &KafkaResultStore{producer: producer, topic: topic}
}

type resultEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (s *KafkaResultStore) publish(ctx context.Context, kind string, fuel models.FuelType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s row: %w", kind, err)
	}
	return s.producer.Publish(ctx, s.topic, []byte(fuel), resultEnvelope{Kind: kind, Payload: raw})
}

func (s *KafkaResultStore) StoreSnapshot(ctx context.Context, snap *models.CostSnapshot) error {
	return s.publish(ctx, "cost_snapshot", snap.Fuel, snap)
}

func (s *KafkaResultStore) StoreMBE(ctx context.Context, r *models.MBERow) error {
	return s.publish(ctx, "mbe_result", r.Fuel, r)
}

func (s *KafkaResultStore) StoreRisk(ctx context.Context, r *models.RiskRow) error {
	return s.publish(ctx, "risk_score", r.Fuel, r)
}

func (s *KafkaResultStore) StoreDelayHistory(ctx context.Context, r *models.DelayHistoryRow) error {
	return s.publish(ctx, "delay_history", r.Fuel, r)
}

// Health always succeeds: the producer buffers and surfaces broker trouble
// on publish.
func (s *KafkaResultStore) Health(ctx context.Context) error {
	return nil
}

func (s *KafkaResultStore) Close() error {
	return s.producer.Close()
}

var _ domainrepo.ResultStore = (*KafkaResultStore)(nil)
