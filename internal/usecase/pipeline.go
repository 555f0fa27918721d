// Package usecase orchestrates the daily early-warning evaluation: market
// inputs in, cost decomposition, cost-base effect, political-delay state,
// risk score and threshold alerts out.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
	drepo "PumpWatch/internal/domain/repository"
	"PumpWatch/internal/services/costbase"
	"PumpWatch/internal/services/delay"
	"PumpWatch/internal/services/risk"
	"PumpWatch/internal/services/threshold"
	"PumpWatch/pkg/fixedpoint"
	"PumpWatch/pkg/logger"
)

var (
	// barrelsPerTon converts a Brent quote to a CIF-equivalent when the
	// product benchmark is not published.
	barrelsPerTon = decimal.RequireFromString("7.33")

	// priceChangeEpsilon separates a real pump-price change from
	// rounding drift between consecutive rows.
	priceChangeEpsilon = decimal.RequireFromString("0.01")

	mbeWatchThreshold = decimal.RequireFromString("0.50")
)

const (
	fxVolatilityWindow = 5
	momentumLookback   = 3

	sourcePipeline = "pipeline"
)

// pipelineState is the per-fuel blob kept in the state store: the delay
// tracker plus which hysteresis bands are currently open.
type pipelineState struct {
	Tracker      *delay.Tracker  `json:"tracker"`
	ActiveAlerts map[string]bool `json:"active_alerts"`
}

func newPipelineState() *pipelineState {
	return &pipelineState{
		Tracker:      delay.NewTracker(),
		ActiveAlerts: make(map[string]bool),
	}
}

func alertKey(metric models.MetricKind, level models.AlertLevel) string {
	return string(metric) + ":" + string(level)
}

// SignalPipeline runs the full daily evaluation for one fuel and date.
type SignalPipeline struct {
	market      drepo.MarketStore
	results     drepo.ResultStore
	alerts      drepo.AlertPublisher
	state       drepo.TrackerStateStore
	metrics     drepo.Metrics
	log         *logger.Logger
	historyDays int
	thresholds  []threshold.Def
	modifiers   map[string]decimal.Decimal
}

func NewSignalPipeline(
	market drepo.MarketStore,
	results drepo.ResultStore,
	alerts drepo.AlertPublisher,
	state drepo.TrackerStateStore,
	metrics drepo.Metrics,
	log *logger.Logger,
	historyDays int,
) *SignalPipeline {
	return &SignalPipeline{
		market:      market,
		results:     results,
		alerts:      alerts,
		state:       state,
		metrics:     metrics,
		log:         log,
		historyDays: historyDays,
		thresholds:  threshold.Defaults(),
		modifiers:   defaultRegimeModifiers(),
	}
}

// defaultRegimeModifiers widens alert bands during an election window, when
// administrative pricing makes breaches chronic, and tightens them under an
// FX shock.
func defaultRegimeModifiers() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"election": decimal.RequireFromString("1.10"),
		"fx_shock": decimal.RequireFromString("0.90"),
	}
}

// regimeLabel maps a regime code to the event-type label used by the delay
// tracker and the threshold modifiers. Regime 0 has no label.
func regimeLabel(regime int) string {
	switch regime {
	case 1:
		return "election"
	case 2:
		return "fx_shock"
	case 3:
		return "tax_adjustment"
	default:
		return ""
	}
}

// RunDay evaluates one fuel for one date, persisting every derived row and
// publishing alerts for bands that opened or closed.
func (p *SignalPipeline) RunDay(ctx context.Context, date time.Time, fuel models.FuelType) error {
	start := time.Now()
	err := p.runDay(ctx, date, fuel)
	p.metrics.RecordLatency("pipeline_day", time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordPipelineRun(string(fuel), "error")
		return fmt.Errorf("pipeline %s %s: %w", fuel, date.Format("2006-01-02"), err)
	}
	p.metrics.RecordPipelineRun(string(fuel), "ok")
	return nil
}

func (p *SignalPipeline) runDay(ctx context.Context, date time.Time, fuel models.FuelType) error {
	day, err := p.market.MarketDay(ctx, date, fuel)
	if err != nil {
		p.metrics.RecordError("market_load")
		return err
	}

	cif, err := resolveCIF(day)
	if err != nil {
		p.metrics.RecordError("benchmark_missing")
		return err
	}

	regime, err := p.market.ActiveRegime(ctx, date)
	if err != nil {
		p.metrics.RecordError("regime_load")
		return err
	}
	regimeCfg, err := costbase.RegimeFor(regime)
	if err != nil {
		return err
	}

	rho, err := costbase.Density(fuel)
	if err != nil {
		return err
	}
	forward, err := costbase.ForwardNetCost(cif, day.FX, rho)
	if err != nil {
		return err
	}

	history, err := p.market.ForwardCostHistory(ctx, date, fuel, p.historyDays)
	if err != nil {
		p.metrics.RecordError("history_load")
		return err
	}

	prevDay, err := p.market.PreviousMarketDay(ctx, date, fuel)
	if err != nil {
		p.metrics.RecordError("market_load")
		return err
	}
	priceChanged := prevDay != nil &&
		day.PumpPrice.Sub(prevDay.PumpPrice).Abs().GreaterThan(priceChangeEpsilon)

	// The base anchors at the last price change. A change today, or an
	// empty history, re-derives it from today's pump price; otherwise it
	// carries over from yesterday's row.
	var (
		base        decimal.Decimal
		sinceChange int
	)
	if priceChanged || len(history) == 0 {
		base, err = costbase.BaseNetCost(day.PumpPrice, day.Taxes.OTV, day.Taxes.KDV, regimeCfg.Margin)
		if err != nil {
			return err
		}
	} else {
		last := history[len(history)-1]
		base = last.NCBase
		sinceChange = last.SinceLastChangeDays + 1
	}

	series := make([]decimal.Decimal, 0, len(history)+1)
	for _, row := range history {
		series = append(series, row.NCForward)
	}
	series = append(series, forward)

	var prevMBE, mbe3 *decimal.Decimal
	if len(history) > 0 {
		prevMBE = &history[len(history)-1].MBE
	}
	if len(history) >= momentumLookback {
		mbe3 = &history[len(history)-momentumLookback].MBE
	}

	res, err := costbase.FullMBE(costbase.Input{
		ForwardSeries: series,
		Base:          base,
		Regime:        regime,
		PreviousMBE:   prevMBE,
		MBE3DaysAgo:   mbe3,
	})
	if err != nil {
		p.metrics.RecordError("mbe_compute")
		return err
	}

	snap, err := costbase.ComputeSnapshot(costbase.SnapshotInput{
		Fuel:   fuel,
		CIF:    cif,
		FX:     day.FX,
		Pump:   day.PumpPrice,
		Taxes:  day.Taxes,
		Margin: regimeCfg.Margin,
	})
	if err != nil {
		p.metrics.RecordError("snapshot_compute")
		return err
	}

	fxHist, err := p.market.FXHistory(ctx, date, fuel, fxVolatilityWindow)
	if err != nil {
		p.metrics.RecordError("history_load")
		return err
	}
	fxVol, err := fxVolatility(fxHist)
	if err != nil {
		return err
	}

	st, err := p.loadState(ctx, fuel)
	if err != nil {
		p.metrics.RecordError("state_load")
		return err
	}

	transition := st.Tracker.Apply(delay.Update{
		MBE:          res.MBE.Abs(),
		Threshold:    mbeWatchThreshold,
		Date:         date,
		PriceChanged: priceChanged,
		RegimeType:   regimeLabel(regime),
	})

	delayRows := p.delayRows(st.Tracker, transition, date, res.MBE)

	// Terminal states fold back to idle immediately so a fresh episode
	// can open the next day.
	switch st.Tracker.State {
	case models.DelayClosed, models.DelayAbsorbed, models.DelayPartialClose:
		st.Tracker.State = models.DelayIdle
		st.Tracker.BelowThresholdStreak = 0
		st.Tracker.CurrentDelayDays = 0
	}

	breachVal := decimal.Zero
	if res.MBE.Abs().GreaterThanOrEqual(mbeWatchThreshold) {
		breachVal = decimal.NewFromInt(1)
	}

	mbeSeries := make([]decimal.Decimal, 0, len(history)+1)
	for _, row := range history {
		mbeSeries = append(mbeSeries, row.MBE)
	}
	mbeSeries = append(mbeSeries, res.MBE)

	scored := risk.Score(risk.Inputs{
		MBE:             res.MBE.Abs(),
		FXVolatility:    fxVol,
		PoliticalDelay:  decimal.NewFromInt(int64(st.Tracker.CurrentDelayDays)),
		ThresholdBreach: breachVal,
		TrendMomentum:   trendMomentum(mbeSeries, momentumLookback),
	}, nil, nil)

	if err := p.evaluateThresholds(ctx, st, date, fuel, regime, scored.Composite, res.MBE); err != nil {
		return err
	}

	if err := p.saveState(ctx, fuel, st); err != nil {
		p.metrics.RecordError("state_save")
		return err
	}

	if err := p.persist(ctx, date, fuel, day, res, snap, scored, sinceChange, regime, delayRows); err != nil {
		p.metrics.RecordError("persist")
		return err
	}

	mbeFloat, _ := res.MBE.Float64()
	riskFloat, _ := scored.Composite.Float64()
	p.metrics.RecordMBE(string(fuel), mbeFloat)
	p.metrics.RecordRiskScore(string(fuel), riskFloat)

	p.log.Info("pipeline day complete",
		logger.String("fuel", string(fuel)),
		logger.String("date", date.Format("2006-01-02")),
		logger.Decimal("mbe", res.MBE),
		logger.Decimal("risk", scored.Composite),
		logger.Bool("price_changed", priceChanged),
		logger.Int("regime", regime),
	)
	return nil
}

// resolveCIF prefers the published product benchmark and falls back to a
// Brent-derived equivalent.
func resolveCIF(day *models.MarketDay) (decimal.Decimal, error) {
	if day.CIF != nil {
		return *day.CIF, nil
	}
	if day.Brent != nil {
		return fixedpoint.QuantizeMoney(day.Brent.Mul(barrelsPerTon)), nil
	}
	return decimal.Decimal{}, fmt.Errorf("no benchmark quote for %s on %s",
		day.Fuel, day.Date.Format("2006-01-02"))
}

func (p *SignalPipeline) loadState(ctx context.Context, fuel models.FuelType) (*pipelineState, error) {
	raw, err := p.state.LoadTracker(ctx, fuel)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return newPipelineState(), nil
	}
	st := newPipelineState()
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", fuel, err)
	}
	if st.Tracker == nil {
		st.Tracker = delay.NewTracker()
	}
	if st.ActiveAlerts == nil {
		st.ActiveAlerts = make(map[string]bool)
	}
	return st, nil
}

func (p *SignalPipeline) saveState(ctx context.Context, fuel models.FuelType, st *pipelineState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", fuel, err)
	}
	return p.state.SaveTracker(ctx, fuel, raw)
}

// delayRows captures episode records before the terminal-state fold wipes
// the tracker fields they read.
func (p *SignalPipeline) delayRows(t *delay.Tracker, tr delay.Transition, date time.Time, mbe decimal.Decimal) []*models.DelayHistoryRow {
	var rows []*models.DelayHistoryRow
	if tr.CreateRecord {
		rows = append(rows, &models.DelayHistoryRow{
			ExpectedChangeDate:     date,
			MBEAtExpected:          t.MBEAtCross,
			AccumulatedPressurePct: t.AccumulatedPressurePct(),
			Status:                 string(models.DelayWatching),
		})
	}
	if tr.CloseRecord {
		expected := date
		if parsed, err := time.Parse("2006-01-02", t.ThresholdCrossDate); err == nil {
			expected = parsed
		}
		actual := date
		rows = append(rows, &models.DelayHistoryRow{
			ExpectedChangeDate:     expected,
			ActualChangeDate:       &actual,
			DelayDays:              t.CurrentDelayDays,
			MBEAtExpected:          t.MBEAtCross,
			MBEAtActual:            &mbe,
			AccumulatedPressurePct: t.AccumulatedPressurePct(),
			Status:                 string(tr.CloseStatus),
		})
	}
	return rows
}

// evaluateThresholds walks every definition through its hysteresis band and
// publishes an event for each open or close. Cooldown suppresses repeat open
// notifications without disturbing the band state.
func (p *SignalPipeline) evaluateThresholds(ctx context.Context, st *pipelineState, date time.Time, fuel models.FuelType, regime int, composite, mbe decimal.Decimal) error {
	defs := threshold.ApplyRegime(p.thresholds, p.modifiers, regimeLabel(regime))
	for _, def := range defs {
		value := composite
		if def.Metric == models.MetricMBEValue {
			value = mbe.Abs()
		}

		key := alertKey(def.Metric, def.Level)
		active := st.ActiveAlerts[key]
		nowActive := threshold.Hysteresis(value, def.Open, def.Close, active)
		if nowActive == active {
			continue
		}
		st.ActiveAlerts[key] = nowActive

		if nowActive {
			last, err := p.state.LastAlert(ctx, fuel, def.Metric, def.Level)
			if err != nil {
				p.metrics.RecordError("state_load")
				return err
			}
			if !threshold.CooldownPassed(last, def.Cooldown, date) {
				p.log.Warn("alert open suppressed by cooldown",
					logger.String("fuel", string(fuel)),
					logger.String("metric", string(def.Metric)),
					logger.String("level", string(def.Level)),
				)
				continue
			}
			if err := p.publishAlert(ctx, date, fuel, def, "open", value, def.Open); err != nil {
				return err
			}
			if err := p.state.MarkAlert(ctx, fuel, def.Metric, def.Level, date); err != nil {
				p.metrics.RecordError("state_save")
				return err
			}
		} else {
			if err := p.publishAlert(ctx, date, fuel, def, "close", value, def.Close); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *SignalPipeline) publishAlert(ctx context.Context, date time.Time, fuel models.FuelType, def threshold.Def, action string, value, band decimal.Decimal) error {
	verb := "crossed above"
	if action == "close" {
		verb = "fell back below"
	}
	event := &models.AlertEvent{
		Level:     def.Level,
		Type:      "threshold_breach",
		Fuel:      fuel,
		Metric:    def.Metric,
		Action:    action,
		Value:     value,
		Threshold: band,
		Title:     fmt.Sprintf("%s %s %s", fuel, def.Metric, action),
		Message: fmt.Sprintf("%s %s %s %s (value %s, band %s) on %s",
			fuel, def.Metric, verb, def.Level, value, band, date.Format("2006-01-02")),
		CreatedAt: date,
	}
	if err := p.alerts.Publish(ctx, event); err != nil {
		p.metrics.RecordError("alert_publish")
		return err
	}
	p.metrics.RecordAlert(string(fuel), string(def.Metric), string(def.Level), action)
	return nil
}

func (p *SignalPipeline) persist(
	ctx context.Context,
	date time.Time,
	fuel models.FuelType,
	day *models.MarketDay,
	res *costbase.Result,
	snap *costbase.Snapshot,
	scored risk.Result,
	sinceChange int,
	regime int,
	delayRows []*models.DelayHistoryRow,
) error {
	mbeRow := &models.MBERow{
		Date:                date,
		Fuel:                fuel,
		NCForward:           res.NCForward,
		NCBase:              res.NCBase,
		MBE:                 res.MBE,
		MBEPct:              res.MBEPct,
		SMA5:                res.SMA5,
		SMA10:               res.SMA10,
		DeltaMBE:            res.DeltaMBE,
		DeltaMBE3:           res.DeltaMBE3,
		Trend:               res.Trend,
		Regime:              regime,
		SinceLastChangeDays: sinceChange,
		SMAWindow:           res.SMAWindow,
		Source:              sourcePipeline,
	}
	if err := p.results.StoreMBE(ctx, mbeRow); err != nil {
		return err
	}

	snapRow := &models.CostSnapshot{
		Date:             date,
		Fuel:             fuel,
		CIFComponent:     snap.CIFComponent,
		OTVComponent:     snap.OTVComponent,
		KDVComponent:     snap.KDVComponent,
		MarginComponent:  snap.MarginComponent,
		TheoreticalPrice: snap.TheoreticalPrice,
		PumpPrice:        snap.PumpPrice,
		CostGap:          snap.CostGap,
		CostGapPct:       snap.CostGapPct,
		ImpliedCIF:       snap.ImpliedCIF,
	}
	if err := p.results.StoreSnapshot(ctx, snapRow); err != nil {
		return err
	}

	riskRow := &models.RiskRow{
		Date:                     date,
		Fuel:                     fuel,
		Composite:                scored.Composite,
		MBEComponent:             scored.MBEComponent,
		FXVolatilityComponent:    scored.FXVolatilityComponent,
		PoliticalDelayComponent:  scored.PoliticalDelayComponent,
		ThresholdBreachComponent: scored.ThresholdBreachComponent,
		TrendMomentumComponent:   scored.TrendMomentumComponent,
		WeightVector:             scored.WeightVector,
		Mode:                     scored.Mode,
	}
	if err := p.results.StoreRisk(ctx, riskRow); err != nil {
		return err
	}

	for _, row := range delayRows {
		row.Fuel = fuel
		if err := p.results.StoreDelayHistory(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// fxVolatility is the population standard deviation of the FX window. Fewer
// than two samples read as zero volatility.
func fxVolatility(history []decimal.Decimal) (decimal.Decimal, error) {
	if len(history) < 2 {
		return decimal.Zero, nil
	}
	mean, err := fixedpoint.Mean(history, 16)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.PopulationStdDev(history, mean, fixedpoint.MoneyPlaces)
}

// trendMomentum is the relative change of the latest value over the
// lookback, clamped to [-1, 1]. A zero starting value collapses to the sign
// of the current one.
func trendMomentum(mbes []decimal.Decimal, lookback int) decimal.Decimal {
	index := len(mbes) - 1
	if index < 1 {
		return decimal.Zero
	}
	start := index - lookback
	if start < 0 {
		start = 0
	}
	startMBE := mbes[start]
	current := mbes[index]

	if startMBE.IsZero() {
		switch current.Sign() {
		case 1:
			return decimal.NewFromInt(1)
		case -1:
			return decimal.NewFromInt(-1)
		default:
			return decimal.Zero
		}
	}

	momentum := current.Sub(startMBE).DivRound(startMBE.Abs(), fixedpoint.ScorePlaces)
	return fixedpoint.ClampSigned1(momentum)
}
