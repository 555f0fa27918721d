package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostSnapshot decomposes a pump price into cost, tax and margin components
// against the same-day theoretical price.
type CostSnapshot struct {
	Date             time.Time
	Fuel             FuelType
	CIFComponent     decimal.Decimal // forward net cost, TL per liter
	OTVComponent     decimal.Decimal
	KDVComponent     decimal.Decimal
	MarginComponent  decimal.Decimal
	TheoreticalPrice decimal.Decimal
	PumpPrice        decimal.Decimal
	CostGap          decimal.Decimal // pump minus theoretical
	CostGapPct       decimal.Decimal
	ImpliedCIF       *decimal.Decimal // nil when FX is not positive
}

// MBERow is one day's cost-base effect result for one fuel.
type MBERow struct {
	Date                time.Time
	Fuel                FuelType
	NCForward           decimal.Decimal
	NCBase              decimal.Decimal
	MBE                 decimal.Decimal
	MBEPct              decimal.Decimal
	SMA5                decimal.Decimal
	SMA10               decimal.Decimal
	DeltaMBE            *decimal.Decimal // nil on the first day
	DeltaMBE3           *decimal.Decimal // nil until three days of history
	Trend               Trend
	Regime              int
	SinceLastChangeDays int
	SMAWindow           int
	Source              string // pipeline or backtest
}

// RiskRow is one day's composite risk score with its normalized components.
type RiskRow struct {
	Date                     time.Time
	Fuel                     FuelType
	Composite                decimal.Decimal
	MBEComponent             decimal.Decimal
	FXVolatilityComponent    decimal.Decimal
	PoliticalDelayComponent  decimal.Decimal
	ThresholdBreachComponent decimal.Decimal
	TrendMomentumComponent   decimal.Decimal
	WeightVector             map[string]string
	Mode                     SystemMode
}

// DelayHistoryRow records one watch episode of the political-delay tracker.
type DelayHistoryRow struct {
	Fuel                   FuelType
	ExpectedChangeDate     time.Time
	ActualChangeDate       *time.Time
	DelayDays              int
	MBEAtExpected          decimal.Decimal
	MBEAtActual            *decimal.Decimal
	AccumulatedPressurePct decimal.Decimal
	Status                 string
}

// AlertEvent is published when a guarded metric crosses its open threshold
// or falls back through its close threshold.
type AlertEvent struct {
	ID        string
	Level     AlertLevel
	Type      string // threshold_breach
	Fuel      FuelType
	Metric    MetricKind
	Action    string // open or close
	Value     decimal.Decimal
	Threshold decimal.Decimal
	Title     string
	Message   string
	CreatedAt time.Time
}
