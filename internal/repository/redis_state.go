package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PumpWatch/internal/domain/models"
	domainrepo "PumpWatch/internal/domain/repository"
)

const (
	trackerKeyFmt   = "pumpwatch:tracker:%s"
	lastAlertKeyFmt = "pumpwatch:alert:last:%s:%s:%s"

	// Tracker snapshots outlive any reasonable outage window but do not
	// accumulate forever for fuels that stop running.
	trackerTTL = 90 * 24 * time.Hour
)

// RedisStateStore keeps per-fuel tracker snapshots and alert cooldown stamps
// in Redis so pipeline restarts resume mid-episode instead of from idle.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) LoadTracker(ctx context.Context, fuel models.FuelType) ([]byte, error) {
	key := fmt.Sprintf(trackerKeyFmt, fuel)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tracker %s: %w", fuel, err)
	}
	return raw, nil
}

func (s *RedisStateStore) SaveTracker(ctx context.Context, fuel models.FuelType, snapshot []byte) error {
	key := fmt.Sprintf(trackerKeyFmt, fuel)
	if err := s.client.Set(ctx, key, snapshot, trackerTTL).Err(); err != nil {
		return fmt.Errorf("save tracker %s: %w", fuel, err)
	}
	return nil
}

func (s *RedisStateStore) LastAlert(ctx context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel) (*time.Time, error) {
	key := fmt.Sprintf(lastAlertKeyFmt, fuel, metric, level)
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last alert %s: %w", key, err)
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("last alert %s: bad timestamp %q: %w", key, raw, err)
	}
	return &at, nil
}

func (s *RedisStateStore) MarkAlert(ctx context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel, at time.Time) error {
	key := fmt.Sprintf(lastAlertKeyFmt, fuel, metric, level)
	if err := s.client.Set(ctx, key, at.UTC().Format(time.RFC3339), trackerTTL).Err(); err != nil {
		return fmt.Errorf("mark alert %s: %w", key, err)
	}
	return nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

var _ domainrepo.TrackerStateStore = (*RedisStateStore)(nil)
