// Package risk folds five early-warning components into one composite score
// on [0, 1]:
//
//	score = 0.30*mbe + 0.15*fx_volatility + 0.20*political_delay
//	      + 0.20*threshold_breach + 0.15*trend_momentum
//
// with each component min-max normalized before weighting.
package risk

import (
	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/fixedpoint"
)

// Component keys, also the weight-vector keys persisted with each score.
const (
	ComponentMBE             = "mbe"
	ComponentFXVolatility    = "fx_volatility"
	ComponentPoliticalDelay  = "political_delay"
	ComponentThresholdBreach = "threshold_breach"
	ComponentTrendMomentum   = "trend_momentum"
)

// Mode boundaries on the composite score.
var (
	crisisFloor    = decimal.RequireFromString("0.80")
	highAlertFloor = decimal.RequireFromString("0.60")
)

// Inputs are the raw, un-normalized component values for one day.
type Inputs struct {
	MBE             decimal.Decimal
	FXVolatility    decimal.Decimal
	PoliticalDelay  decimal.Decimal // days spent in the watching state
	ThresholdBreach decimal.Decimal
	TrendMomentum   decimal.Decimal
}

// Range is a component's min-max normalization reference.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Result is the composite score with its normalized components.
type Result struct {
	Composite                decimal.Decimal
	MBEComponent             decimal.Decimal
	FXVolatilityComponent    decimal.Decimal
	PoliticalDelayComponent  decimal.Decimal
	ThresholdBreachComponent decimal.Decimal
	TrendMomentumComponent   decimal.Decimal
	WeightVector             map[string]string
	Mode                     models.SystemMode
}

// DefaultWeights returns the production weight vector.
func DefaultWeights() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		ComponentMBE:             decimal.RequireFromString("0.30"),
		ComponentFXVolatility:    decimal.RequireFromString("0.15"),
		ComponentPoliticalDelay:  decimal.RequireFromString("0.20"),
		ComponentThresholdBreach: decimal.RequireFromString("0.20"),
		ComponentTrendMomentum:   decimal.RequireFromString("0.15"),
	}
}

// DefaultRanges returns the production normalization references.
func DefaultRanges() map[string]Range {
	return map[string]Range{
		ComponentMBE:             {Min: decimal.Zero, Max: decimal.NewFromInt(1)},
		ComponentFXVolatility:    {Min: decimal.Zero, Max: decimal.RequireFromString("0.10")},
		ComponentPoliticalDelay:  {Min: decimal.Zero, Max: decimal.NewFromInt(60)},
		ComponentThresholdBreach: {Min: decimal.Zero, Max: decimal.NewFromInt(1)},
		ComponentTrendMomentum:   {Min: decimal.NewFromInt(-1), Max: decimal.NewFromInt(1)},
	}
}

// Normalize maps value into [0, 1] against the [min, max] reference. A
// degenerate range (min == max) maps values at or below the point to 0 and
// anything above it to 1 instead of dividing by zero.
func Normalize(value, min, max decimal.Decimal) decimal.Decimal {
	if max.Equal(min) {
		if value.LessThanOrEqual(min) {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	ratio := value.Sub(min).DivRound(max.Sub(min), fixedpoint.ScorePlaces)
	return fixedpoint.Clamp01(ratio)
}

// Score computes the weighted composite. Nil ranges or weights select the
// production defaults; callers supplying their own must cover all five
// component keys.
func Score(in Inputs, ranges map[string]Range, weights map[string]decimal.Decimal) Result {
	if ranges == nil {
		ranges = DefaultRanges()
	}
	if weights == nil {
		weights = DefaultWeights()
	}

	mbeNorm := Normalize(in.MBE, ranges[ComponentMBE].Min, ranges[ComponentMBE].Max)
	fxNorm := Normalize(in.FXVolatility, ranges[ComponentFXVolatility].Min, ranges[ComponentFXVolatility].Max)
	delayNorm := Normalize(in.PoliticalDelay, ranges[ComponentPoliticalDelay].Min, ranges[ComponentPoliticalDelay].Max)
	breachNorm := Normalize(in.ThresholdBreach, ranges[ComponentThresholdBreach].Min, ranges[ComponentThresholdBreach].Max)
	trendNorm := Normalize(in.TrendMomentum, ranges[ComponentTrendMomentum].Min, ranges[ComponentTrendMomentum].Max)

	composite := fixedpoint.QuantizeScore(
		weights[ComponentMBE].Mul(mbeNorm).
			Add(weights[ComponentFXVolatility].Mul(fxNorm)).
			Add(weights[ComponentPoliticalDelay].Mul(delayNorm)).
			Add(weights[ComponentThresholdBreach].Mul(breachNorm)).
			Add(weights[ComponentTrendMomentum].Mul(trendNorm)))
	composite = fixedpoint.Clamp01(composite)

	vector := make(map[string]string, len(weights))
	for k, v := range weights {
		vector[k] = v.String()
	}

	return Result{
		Composite:                composite,
		MBEComponent:             mbeNorm,
		FXVolatilityComponent:    fxNorm,
		PoliticalDelayComponent:  delayNorm,
		ThresholdBreachComponent: breachNorm,
		TrendMomentumComponent:   trendNorm,
		WeightVector:             vector,
		Mode:                     ModeFor(composite),
	}
}

// ModeFor maps the composite score to the system alerting posture.
func ModeFor(composite decimal.Decimal) models.SystemMode {
	if composite.GreaterThanOrEqual(crisisFloor) {
		return models.ModeCrisis
	}
	if composite.GreaterThanOrEqual(highAlertFloor) {
		return models.ModeHighAlert
	}
	return models.ModeNormal
}

// Breach describes a hysteresis transition of the composite score.
type Breach struct {
	Action    string // open or close
	Score     decimal.Decimal
	Threshold decimal.Decimal
}

// CheckBreach applies hysteresis to the composite score: an inactive alert
// opens at or above the open threshold, an active one closes at or below the
// close threshold. Anything in between returns nil and leaves the alert as
// it was.
func CheckBreach(composite, openThreshold, closeThreshold decimal.Decimal, alertActive bool) *Breach {
	if !alertActive {
		if composite.GreaterThanOrEqual(openThreshold) {
			return &Breach{Action: "open", Score: composite, Threshold: openThreshold}
		}
		return nil
	}
	if composite.LessThanOrEqual(closeThreshold) {
		return &Breach{Action: "close", Score: composite, Threshold: closeThreshold}
	}
	return nil
}

// ApplyRegimeModifier scales a threshold by the multiplier registered for
// the active regime type. Unknown or absent regime types leave the
// threshold untouched.
func ApplyRegimeModifier(threshold decimal.Decimal, modifiers map[string]decimal.Decimal, activeRegimeType string) decimal.Decimal {
	if modifiers == nil || activeRegimeType == "" {
		return threshold
	}
	modifier, ok := modifiers[activeRegimeType]
	if !ok {
		return threshold
	}
	return fixedpoint.QuantizeScore(threshold.Mul(modifier))
}
