// Package threshold manages alert threshold definitions: hysteresis bands,
// cooldown windows and regime-scaled copies of the seed set.
package threshold

import (
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
)

// Def is one alert threshold definition.
type Def struct {
	Metric   models.MetricKind
	Level    models.AlertLevel
	Open     decimal.Decimal // alert opens at or above this value
	Close    decimal.Decimal // alert closes at or below this value
	Cooldown time.Duration
}

// Defaults returns the seed threshold set evaluated by the pipeline. Config
// may override it.
func Defaults() []Def {
	return []Def{
		{
			Metric:   models.MetricRiskScore,
			Level:    models.AlertWarning,
			Open:     decimal.RequireFromString("0.60"),
			Close:    decimal.RequireFromString("0.45"),
			Cooldown: 24 * time.Hour,
		},
		{
			Metric:   models.MetricRiskScore,
			Level:    models.AlertCritical,
			Open:     decimal.RequireFromString("0.70"),
			Close:    decimal.RequireFromString("0.55"),
			Cooldown: 12 * time.Hour,
		},
		{
			Metric:   models.MetricMBEValue,
			Level:    models.AlertWarning,
			Open:     decimal.RequireFromString("0.50"),
			Close:    decimal.RequireFromString("0.35"),
			Cooldown: 24 * time.Hour,
		},
		{
			Metric:   models.MetricMBEValue,
			Level:    models.AlertCritical,
			Open:     decimal.RequireFromString("0.70"),
			Close:    decimal.RequireFromString("0.55"),
			Cooldown: 12 * time.Hour,
		},
	}
}

// Hysteresis reports whether the alert should be active. A closed alert
// needs the value at or above the open band; an open alert stays open until
// the value falls to or below the close band.
func Hysteresis(current, open, close decimal.Decimal, active bool) bool {
	if !active {
		return current.GreaterThanOrEqual(open)
	}
	return current.GreaterThan(close)
}

// CooldownPassed reports whether enough time has elapsed since the last
// alert. No previous alert means the cooldown is trivially over.
func CooldownPassed(lastAlert *time.Time, cooldown time.Duration, now time.Time) bool {
	if lastAlert == nil {
		return true
	}
	return now.Sub(*lastAlert) >= cooldown
}

// ApplyRegime returns copies of the definitions with both bands scaled by
// the multiplier registered for the active regime type. Without a matching
// multiplier the definitions are returned unscaled.
func ApplyRegime(defs []Def, modifiers map[string]decimal.Decimal, activeRegimeType string) []Def {
	out := make([]Def, len(defs))
	copy(out, defs)

	modifier, ok := modifiers[activeRegimeType]
	if !ok {
		return out
	}
	for i := range out {
		out[i].Open = out[i].Open.Mul(modifier)
		out[i].Close = out[i].Close.Mul(modifier)
	}
	return out
}
