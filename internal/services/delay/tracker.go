// Package delay implements the political-delay state machine: once the MBE
// crosses the watch threshold, the tracker counts the days a due price
// change is withheld until the change arrives, the pressure is absorbed, or
// a partial adjustment lands.
package delay

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/fixedpoint"
)

// BelowThresholdReset is how many consecutive below-threshold days absorb a
// watch episode. Shorter dips keep the episode and its original cross date.
const BelowThresholdReset = 5

// Z-score interpretation bands.
const (
	ZNormal   = "normal"
	ZCaution  = "caution"
	ZAbnormal = "abnormal"
)

const dateLayout = "2006-01-02"

// Tracker is the per-fuel state machine state. It serializes to JSON as the
// restart snapshot the state store keeps.
type Tracker struct {
	State                models.DelayState `json:"state"`
	ThresholdCrossDate   string            `json:"threshold_cross_date,omitempty"`
	CurrentDelayDays     int               `json:"current_delay_days"`
	MBEAtCross           decimal.Decimal   `json:"mbe_at_cross"`
	MBEMax               decimal.Decimal   `json:"mbe_max"`
	Regime               string            `json:"regime,omitempty"`
	ZScore               decimal.Decimal   `json:"z_score"`
	BelowThresholdStreak int               `json:"below_threshold_streak"`
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{State: models.DelayIdle}
}

// Update is one day's worth of input for the state machine.
type Update struct {
	MBE           decimal.Decimal
	Threshold     decimal.Decimal
	Date          time.Time
	PriceChanged  bool
	PartialChange bool
	RegimeType    string // empty means no active regime event
	// Historical delay statistics for the z-score; both must be set for
	// the score to update.
	HistoricalMeanDelay *decimal.Decimal
	HistoricalStdDelay  *decimal.Decimal
}

// Transition reports what one Update did to the tracker.
type Transition struct {
	Previous     models.DelayState
	New          models.DelayState
	Reason       string
	CreateRecord bool              // a new watch episode opened
	CloseRecord  bool              // the current episode ended
	CloseStatus  models.DelayState // closed, partial_close or absorbed
}

// Apply advances the state machine by one day.
func (t *Tracker) Apply(u Update) Transition {
	prev := t.State

	switch t.State {
	case models.DelayIdle:
		return t.handleIdle(u)
	case models.DelayWatching:
		return t.handleWatching(u)
	}

	// Terminal states start a fresh cycle on the next day.
	t.State = models.DelayIdle
	t.BelowThresholdStreak = 0
	t.CurrentDelayDays = 0
	return Transition{
		Previous: prev,
		New:      models.DelayIdle,
		Reason:   "terminal state, next cycle starts idle",
	}
}

func (t *Tracker) handleIdle(u Update) Transition {
	if u.MBE.GreaterThanOrEqual(u.Threshold) {
		t.State = models.DelayWatching
		t.ThresholdCrossDate = u.Date.Format(dateLayout)
		t.CurrentDelayDays = 0
		t.MBEAtCross = u.MBE
		t.MBEMax = u.MBE
		t.Regime = u.RegimeType
		t.BelowThresholdStreak = 0
		t.ZScore = decimal.Zero

		return Transition{
			Previous:     models.DelayIdle,
			New:          models.DelayWatching,
			Reason:       fmt.Sprintf("mbe %s crossed threshold %s", u.MBE, u.Threshold),
			CreateRecord: true,
		}
	}

	return Transition{
		Previous: models.DelayIdle,
		New:      models.DelayIdle,
		Reason:   "mbe below threshold",
	}
}

func (t *Tracker) handleWatching(u Update) Transition {
	t.CurrentDelayDays++

	if u.MBE.GreaterThan(t.MBEMax) {
		t.MBEMax = u.MBE
	}
	if u.RegimeType != "" {
		t.Regime = u.RegimeType
	}
	if u.HistoricalMeanDelay != nil && u.HistoricalStdDelay != nil {
		t.ZScore = ZScore(decimal.NewFromInt(int64(t.CurrentDelayDays)),
			*u.HistoricalMeanDelay, *u.HistoricalStdDelay)
	}

	if u.PriceChanged && !u.PartialChange {
		t.State = models.DelayClosed
		return Transition{
			Previous:    models.DelayWatching,
			New:         models.DelayClosed,
			Reason:      fmt.Sprintf("price changed after %d days", t.CurrentDelayDays),
			CloseRecord: true,
			CloseStatus: models.DelayClosed,
		}
	}
	if u.PriceChanged && u.PartialChange {
		t.State = models.DelayPartialClose
		return Transition{
			Previous:    models.DelayWatching,
			New:         models.DelayPartialClose,
			Reason:      fmt.Sprintf("partial price change after %d days", t.CurrentDelayDays),
			CloseRecord: true,
			CloseStatus: models.DelayPartialClose,
		}
	}

	if u.MBE.LessThan(u.Threshold) {
		t.BelowThresholdStreak++
		if t.BelowThresholdStreak >= BelowThresholdReset {
			t.State = models.DelayAbsorbed
			return Transition{
				Previous:    models.DelayWatching,
				New:         models.DelayAbsorbed,
				Reason:      fmt.Sprintf("%d days below threshold, pressure absorbed", BelowThresholdReset),
				CloseRecord: true,
				CloseStatus: models.DelayAbsorbed,
			}
		}
		return Transition{
			Previous: models.DelayWatching,
			New:      models.DelayWatching,
			Reason:   fmt.Sprintf("short dip, day %d of %d below threshold", t.BelowThresholdStreak, BelowThresholdReset),
		}
	}
	t.BelowThresholdStreak = 0

	return Transition{
		Previous: models.DelayWatching,
		New:      models.DelayWatching,
		Reason:   fmt.Sprintf("watching continues, delay %d days, z %s", t.CurrentDelayDays, t.ZScore),
	}
}

// AccumulatedPressurePct is how far the MBE climbed over the episode,
// relative to its value at the cross. Zero when the cross value is zero.
func (t *Tracker) AccumulatedPressurePct() decimal.Decimal {
	return fixedpoint.PercentOfBase(t.MBEMax.Sub(t.MBEAtCross), t.MBEAtCross, fixedpoint.MoneyPlaces)
}

// ZScore standardizes the current delay against historical delays. A zero
// historical deviation cannot be divided through: delays above the mean are
// pinned to 3 (clearly abnormal), anything else to 0.
func ZScore(currentDelay, historicalMean, historicalStd decimal.Decimal) decimal.Decimal {
	if historicalStd.IsZero() {
		if currentDelay.GreaterThan(historicalMean) {
			return decimal.NewFromInt(3)
		}
		return decimal.Zero
	}
	return currentDelay.Sub(historicalMean).DivRound(historicalStd, fixedpoint.ZScorePlaces)
}

// InterpretZScore maps the z-score to its reading band.
func InterpretZScore(z decimal.Decimal) string {
	if z.LessThan(decimal.NewFromInt(1)) {
		return ZNormal
	}
	if z.LessThan(decimal.NewFromInt(2)) {
		return ZCaution
	}
	return ZAbnormal
}
