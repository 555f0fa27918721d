package models

// FuelType identifies a regulated retail fuel category.
type FuelType string

const (
	FuelBenzin  FuelType = "benzin"
	FuelMotorin FuelType = "motorin"
	FuelLPG     FuelType = "lpg"
)

func (f FuelType) Valid() bool {
	switch f {
	case FuelBenzin, FuelMotorin, FuelLPG:
		return true
	}
	return false
}

// Trend describes the direction of the forward-cost moving average.
type Trend string

const (
	TrendIncrease Trend = "increase"
	TrendDecrease Trend = "decrease"
	TrendNoChange Trend = "no_change"
)

// SystemMode is the alerting posture derived from the composite risk score.
type SystemMode string

const (
	ModeNormal    SystemMode = "normal"
	ModeHighAlert SystemMode = "high_alert"
	ModeCrisis    SystemMode = "crisis"
)

// DelayState is a political-delay tracker state.
type DelayState string

const (
	DelayIdle         DelayState = "idle"
	DelayWatching     DelayState = "watching"
	DelayClosed       DelayState = "closed"
	DelayAbsorbed     DelayState = "absorbed"
	DelayPartialClose DelayState = "partial_close"
)

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// MetricKind names a metric guarded by alert thresholds.
type MetricKind string

const (
	MetricRiskScore MetricKind = "risk_score"
	MetricMBEValue  MetricKind = "mbe_value"
)
