package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
)

// MarketStore reads the daily market inputs owned by the acquisition side.
type MarketStore interface {
	MarketDay(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error)
	// PreviousMarketDay returns the latest row strictly before date, or
	// nil when the fuel has no earlier rows.
	PreviousMarketDay(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error)
	// ForwardCostHistory returns the stored forward net costs for the fuel
	// up to and excluding date, oldest first, at most limit rows.
	ForwardCostHistory(ctx context.Context, date time.Time, fuel models.FuelType, limit int) ([]models.MBERow, error)
	// LastPriceChange returns the most recent row on which the pump price
	// changed, or nil when no change is on record.
	LastPriceChange(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MBERow, error)
	// FXHistory returns the FX rates for the fuel's rows up to and
	// including date, oldest first, at most limit values.
	FXHistory(ctx context.Context, date time.Time, fuel models.FuelType, limit int) ([]decimal.Decimal, error)
	// ActiveRegime resolves the regime code in force on date from the
	// operator-maintained event calendar.
	ActiveRegime(ctx context.Context, date time.Time) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultStore persists engine outputs, one row per (date, fuel).
type ResultStore interface {
	StoreSnapshot(ctx context.Context, s *models.CostSnapshot) error
	StoreMBE(ctx context.Context, row *models.MBERow) error
	StoreRisk(ctx context.Context, row *models.RiskRow) error
	StoreDelayHistory(ctx context.Context, row *models.DelayHistoryRow) error
	Health(ctx context.Context) error
	Close() error
}

// AlertPublisher emits alert events for downstream notification delivery.
type AlertPublisher interface {
	Publish(ctx context.Context, e *models.AlertEvent) error
	Close() error
}

// TrackerStateStore persists per-fuel delay-tracker snapshots and threshold
// cooldown marks across restarts.
type TrackerStateStore interface {
	LoadTracker(ctx context.Context, fuel models.FuelType) ([]byte, error)
	SaveTracker(ctx context.Context, fuel models.FuelType, snapshot []byte) error
	LastAlert(ctx context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel) (*time.Time, error)
	MarkAlert(ctx context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel, at time.Time) error
	Close() error
}

type Metrics interface {
	RecordPipelineRun(fuel string, outcome string)
	RecordMBE(fuel string, value float64)
	RecordRiskScore(fuel string, value float64)
	RecordAlert(fuel, metric, level, action string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
