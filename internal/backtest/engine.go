package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"PumpWatch/internal/domain/models"
	"PumpWatch/internal/services/costbase"
	"PumpWatch/internal/services/delay"
	"PumpWatch/internal/services/risk"
	"PumpWatch/pkg/fixedpoint"
)

// Thresholds the harness runs with. The alert band here is deliberately
// fixed and independent of the configurable production seed set, so the
// go/no-go numbers cannot drift with config.
var (
	mbeWatchThreshold  = decimal.RequireFromString("0.50")
	riskThresholdOpen  = decimal.RequireFromString("0.60")
	riskThresholdClose = decimal.RequireFromString("0.45")
)

const (
	fxVolatilityWindow = 5
	momentumLookback   = 3
)

// DailyMBERecord is one day of the cost leg.
type DailyMBERecord struct {
	Date          time.Time
	Fuel          models.FuelType
	CIF           decimal.Decimal
	FX            decimal.Decimal
	PumpPrice     decimal.Decimal
	NCForward     decimal.Decimal
	NCBase        decimal.Decimal
	MBE           decimal.Decimal
	MBEPct        decimal.Decimal
	SMAWindow     int
	Trend         models.Trend
	Regime        int
	Snapshot      *costbase.Snapshot
	IsPriceChange bool
	ChangeDir     string
}

// DailyRiskRecord is one day of the risk leg.
type DailyRiskRecord struct {
	Date          time.Time
	Fuel          models.FuelType
	Composite     decimal.Decimal
	Components    risk.Result
	Mode          models.SystemMode
	DelayState    models.DelayState
	DelayDays     int
	AlertAction   string // open, close or empty
	IsPriceChange bool
}

// MBERun is the cost leg over one scenario.
type MBERun struct {
	Scenario     string
	Fuel         models.FuelType
	TotalDays    int
	Records      []DailyMBERecord
	PriceChanges int
	MaxMBE       decimal.Decimal
	MinMBE       decimal.Decimal
	AvgMBE       decimal.Decimal
}

// RiskRun is the risk leg over one scenario.
type RiskRun struct {
	Scenario     string
	Fuel         models.FuelType
	TotalDays    int
	Records      []DailyRiskRecord
	TotalAlerts  int
	DelayEvents  int
	MaxRiskScore decimal.Decimal
	AvgRiskScore decimal.Decimal
}

// ScenarioResult bundles both legs for one scenario and fuel.
type ScenarioResult struct {
	Scenario string
	Fuel     models.FuelType
	MBE      *MBERun
	Risk     *RiskRun
}

// RunResult is a full run over every scenario and fuel.
type RunResult struct {
	Results []ScenarioResult
	RunDate time.Time
}

// RunMBE drives the cost-base engine across a scenario. The forward-cost
// history, MBE history and baseline carry across days; the baseline is
// re-derived from the new pump price before the day's MBE on change days.
func RunMBE(scenario []Day, fuel models.FuelType, name string) (*MBERun, error) {
	if len(scenario) == 0 {
		return nil, fmt.Errorf("backtest: scenario %q has no days", name)
	}

	run := &MBERun{Scenario: name, Fuel: fuel, TotalDays: len(scenario)}

	first := scenario[0]
	regimeCfg, err := costbase.RegimeFor(first.Regime)
	if err != nil {
		return nil, err
	}
	base, err := costbase.BaseNetCost(first.PumpPrice, first.Taxes.OTV, first.Taxes.KDV, regimeCfg.Margin)
	if err != nil {
		return nil, err
	}

	rho, err := costbase.Density(fuel)
	if err != nil {
		return nil, err
	}

	var (
		forwardHistory []decimal.Decimal
		mbeHistory     []decimal.Decimal
		previousMBE    *decimal.Decimal
	)

	for _, day := range scenario {
		cfg, err := costbase.RegimeFor(day.Regime)
		if err != nil {
			return nil, err
		}

		forward, err := costbase.ForwardNetCost(day.CIF, day.FX, rho)
		if err != nil {
			return nil, err
		}
		forwardHistory = append(forwardHistory, forward)

		if day.IsPriceChange {
			base, err = costbase.BaseNetCost(day.PumpPrice, day.Taxes.OTV, day.Taxes.KDV, cfg.Margin)
			if err != nil {
				return nil, err
			}
			run.PriceChanges++
		}

		var mbe3DaysAgo *decimal.Decimal
		if len(mbeHistory) >= momentumLookback {
			v := mbeHistory[len(mbeHistory)-momentumLookback]
			mbe3DaysAgo = &v
		}

		result, err := costbase.FullMBE(costbase.Input{
			ForwardSeries: forwardHistory,
			Base:          base,
			Regime:        day.Regime,
			PreviousMBE:   previousMBE,
			MBE3DaysAgo:   mbe3DaysAgo,
		})
		if err != nil {
			return nil, err
		}
		mbeHistory = append(mbeHistory, result.MBE)
		previousMBE = &mbeHistory[len(mbeHistory)-1]

		snapshot, err := costbase.ComputeSnapshot(costbase.SnapshotInput{
			Fuel:   fuel,
			CIF:    day.CIF,
			FX:     day.FX,
			Pump:   day.PumpPrice,
			Taxes:  day.Taxes,
			Margin: cfg.Margin,
		})
		if err != nil {
			return nil, err
		}

		run.Records = append(run.Records, DailyMBERecord{
			Date:          day.Date,
			Fuel:          fuel,
			CIF:           day.CIF,
			FX:            day.FX,
			PumpPrice:     day.PumpPrice,
			NCForward:     forward,
			NCBase:        base,
			MBE:           result.MBE,
			MBEPct:        result.MBEPct,
			SMAWindow:     result.SMAWindow,
			Trend:         result.Trend,
			Regime:        day.Regime,
			Snapshot:      snapshot,
			IsPriceChange: day.IsPriceChange,
			ChangeDir:     day.ChangeDirection,
		})
	}

	run.MaxMBE = mbeHistory[0]
	run.MinMBE = mbeHistory[0]
	for _, v := range mbeHistory[1:] {
		if v.GreaterThan(run.MaxMBE) {
			run.MaxMBE = v
		}
		if v.LessThan(run.MinMBE) {
			run.MinMBE = v
		}
	}
	avg, err := fixedpoint.Mean(mbeHistory, fixedpoint.MoneyPlaces)
	if err != nil {
		return nil, err
	}
	run.AvgMBE = avg

	return run, nil
}

// RunRisk drives the risk score, alert hysteresis and the political-delay
// state machine across the cost leg's output.
func RunRisk(mbeRun *MBERun, scenario []Day, fuel models.FuelType, name string) (*RiskRun, error) {
	if len(mbeRun.Records) == 0 {
		return nil, fmt.Errorf("backtest: mbe run for %q has no records", name)
	}

	run := &RiskRun{Scenario: name, Fuel: fuel, TotalDays: len(mbeRun.Records)}

	var fxHistory []decimal.Decimal
	tracker := delay.NewTracker()
	alertActive := false
	var riskScores []decimal.Decimal

	for i, rec := range mbeRun.Records {
		day := scenario[i]

		fxHistory = append(fxHistory, day.FX)
		fxVol, err := fxVolatility(fxHistory, fxVolatilityWindow)
		if err != nil {
			return nil, err
		}

		transition := tracker.Apply(delay.Update{
			MBE:          rec.MBE.Abs(),
			Threshold:    mbeWatchThreshold,
			Date:         day.Date,
			PriceChanged: day.IsPriceChange,
			RegimeType:   regimeType(day.Regime),
		})
		if transition.CreateRecord {
			run.DelayEvents++
		}

		// Terminal states fold back to idle immediately so the daily
		// record never carries one and a fresh episode can open the
		// next day.
		switch tracker.State {
		case models.DelayClosed, models.DelayAbsorbed, models.DelayPartialClose:
			tracker.State = models.DelayIdle
			tracker.BelowThresholdStreak = 0
			tracker.CurrentDelayDays = 0
		}

		breachVal := decimal.Zero
		if rec.MBE.Abs().GreaterThanOrEqual(mbeWatchThreshold) {
			breachVal = decimal.NewFromInt(1)
		}

		scored := risk.Score(risk.Inputs{
			MBE:             rec.MBE.Abs(),
			FXVolatility:    fxVol,
			PoliticalDelay:  decimal.NewFromInt(int64(tracker.CurrentDelayDays)),
			ThresholdBreach: breachVal,
			TrendMomentum:   trendMomentum(mbeRun.Records, i, momentumLookback),
		}, nil, nil)
		riskScores = append(riskScores, scored.Composite)

		action := ""
		if breach := risk.CheckBreach(scored.Composite, riskThresholdOpen, riskThresholdClose, alertActive); breach != nil {
			action = breach.Action
			switch breach.Action {
			case "open":
				alertActive = true
				run.TotalAlerts++
			case "close":
				alertActive = false
			}
		}

		run.Records = append(run.Records, DailyRiskRecord{
			Date:          rec.Date,
			Fuel:          fuel,
			Composite:     scored.Composite,
			Components:    scored,
			Mode:          scored.Mode,
			DelayState:    tracker.State,
			DelayDays:     tracker.CurrentDelayDays,
			AlertAction:   action,
			IsPriceChange: day.IsPriceChange,
		})
	}

	run.MaxRiskScore = riskScores[0]
	for _, v := range riskScores[1:] {
		if v.GreaterThan(run.MaxRiskScore) {
			run.MaxRiskScore = v
		}
	}
	avg, err := fixedpoint.Mean(riskScores, fixedpoint.ScorePlaces)
	if err != nil {
		return nil, err
	}
	run.AvgRiskScore = avg

	return run, nil
}

// RunScenario runs both legs over one scenario.
func RunScenario(scenario []Day, fuel models.FuelType, name string) (*ScenarioResult, error) {
	mbeRun, err := RunMBE(scenario, fuel, name)
	if err != nil {
		return nil, fmt.Errorf("mbe leg %s/%s: %w", name, fuel, err)
	}
	riskRun, err := RunRisk(mbeRun, scenario, fuel, name)
	if err != nil {
		return nil, fmt.Errorf("risk leg %s/%s: %w", name, fuel, err)
	}
	return &ScenarioResult{Scenario: name, Fuel: fuel, MBE: mbeRun, Risk: riskRun}, nil
}

// scenarioOrder fixes the report ordering.
var scenarioOrder = []string{ScenarioNormal, ScenarioFXShock, ScenarioElection}

// Run executes every canonical scenario for every fuel. Fuels run in
// parallel; days within a scenario stay strictly sequential.
func Run(ctx context.Context, fuels []models.FuelType) (*RunResult, error) {
	if len(fuels) == 0 {
		fuels = []models.FuelType{models.FuelBenzin, models.FuelMotorin}
	}

	perFuel := make([][]ScenarioResult, len(fuels))
	g, _ := errgroup.WithContext(ctx)
	for fi, fuel := range fuels {
		g.Go(func() error {
			scenarios, err := Scenarios(fuel)
			if err != nil {
				return err
			}
			results := make([]ScenarioResult, 0, len(scenarioOrder))
			for _, name := range scenarioOrder {
				r, err := RunScenario(scenarios[name], fuel, name)
				if err != nil {
					return err
				}
				results = append(results, *r)
			}
			perFuel[fi] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &RunResult{RunDate: time.Now().UTC()}
	for _, results := range perFuel {
		out.Results = append(out.Results, results...)
	}
	return out, nil
}

// fxVolatility is the population standard deviation of the last window FX
// values. Fewer than two samples read as zero volatility.
func fxVolatility(history []decimal.Decimal, window int) (decimal.Decimal, error) {
	if len(history) < 2 {
		return decimal.Zero, nil
	}
	data := history
	if len(data) > window {
		data = data[len(data)-window:]
	}
	mean, err := fixedpoint.Mean(data, 16)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.PopulationStdDev(data, mean, fixedpoint.MoneyPlaces)
}

// trendMomentum is the relative MBE change over the lookback, clamped to
// [-1, 1]. A zero starting MBE collapses to the sign of the current value.
func trendMomentum(records []DailyMBERecord, index, lookback int) decimal.Decimal {
	if index < 1 {
		return decimal.Zero
	}
	start := index - lookback
	if start < 0 {
		start = 0
	}
	startMBE := records[start].MBE
	current := records[index].MBE

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

// regimeType maps a regime code to the event-type label the delay tracker
// records. Regime 0 has no label.
func regimeType(regime int) string {
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
