package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/pkg/fixedpoint"
)

// Go/no-go thresholds.
var (
	captureRateFloor  = decimal.RequireFromString("0.70")
	falseAlarmCeiling = decimal.RequireFromString("0.40")
	costGapStdCeiling = decimal.RequireFromString("3.0")
	earlyWarningMin   = decimal.NewFromInt(1)
	earlyWarningMax   = decimal.NewFromInt(7)
)

// alertWindowDays bounds how far an alert and a price change may sit apart
// and still count as a pair.
const alertWindowDays = 7

// MetricsResult scores one scenario against the go/no-go thresholds.
type MetricsResult struct {
	Scenario         string
	Fuel             string
	CaptureRate      decimal.Decimal
	FalseAlarmRate   decimal.Decimal
	EarlyWarningDays decimal.Decimal
	CostGapMean      decimal.Decimal
	CostGapStd       decimal.Decimal
	CapturePass      bool
	FalseAlarmPass   bool
	EarlyWarningPass bool
	CostGapPass      bool
	Go               bool
}

// EvaluationReport is the full metric sweep over a run.
type EvaluationReport struct {
	Scenarios []MetricsResult
	OverallGo bool
	Markdown  string
	RunDate   time.Time
}

// CaptureRate is the share of price-change days preceded by an open alert
// within the prior window. With no price changes there is nothing to miss,
// so the rate reads 1.
func CaptureRate(riskRecords []DailyRiskRecord, mbeRecords []DailyMBERecord, window int) decimal.Decimal {
	var changes, captured int
	for i, rec := range mbeRecords {
		if !rec.IsPriceChange {
			continue
		}
		changes++
		start := i - window
		if start < 0 {
			start = 0
		}
		for _, r := range riskRecords[start:i] {
			if r.AlertAction == "open" {
				captured++
				break
			}
		}
	}
	if changes == 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(captured)).
		DivRound(decimal.NewFromInt(int64(changes)), fixedpoint.ScorePlaces)
}

// FalseAlarmRate is the share of open-alert days not followed by a price
// change within the next window. No alerts means no false alarms.
func FalseAlarmRate(riskRecords []DailyRiskRecord, mbeRecords []DailyMBERecord, window int) decimal.Decimal {
	var alerts, falseAlarms int
	for i, rec := range riskRecords {
		if rec.AlertAction != "open" {
			continue
		}
		alerts++
		end := i + window + 1
		if end > len(mbeRecords) {
			end = len(mbeRecords)
		}
		followed := false
		for _, r := range mbeRecords[i:end] {
			if r.IsPriceChange {
				followed = true
				break
			}
		}
		if !followed {
			falseAlarms++
		}
	}
	if alerts == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(falseAlarms)).
		DivRound(decimal.NewFromInt(int64(alerts)), fixedpoint.ScorePlaces)
}

// EarlyWarningDays is the mean lead time between the nearest preceding open
// alert and each price change. Zero when no change has a preceding alert.
func EarlyWarningDays(riskRecords []DailyRiskRecord, mbeRecords []DailyMBERecord) decimal.Decimal {
	var alertIndices []int
	for i, rec := range riskRecords {
		if rec.AlertAction == "open" {
			alertIndices = append(alertIndices, i)
		}
	}
	if len(alertIndices) == 0 {
		return decimal.Zero
	}

	var total, count int64
	for i, rec := range mbeRecords {
		if !rec.IsPriceChange {
			continue
		}
		// nearest alert strictly before the change
		closest := -1
		for _, a := range alertIndices {
			if a < i {
				closest = a
			} else {
				break
			}
		}
		if closest >= 0 {
			total += int64(i - closest)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(total).
		DivRound(decimal.NewFromInt(count), fixedpoint.ZScorePlaces)
}

// CostGapAccuracy is the mean and population standard deviation of the
// absolute gap between actual and theoretical price across all days.
func CostGapAccuracy(mbeRecords []DailyMBERecord) (mean, std decimal.Decimal, err error) {
	if len(mbeRecords) == 0 {
		return decimal.Zero, decimal.Zero, nil
	}
	gaps := make([]decimal.Decimal, 0, len(mbeRecords))
	for _, rec := range mbeRecords {
		gaps = append(gaps, rec.Snapshot.CostGap.Abs())
	}
	mean, err = fixedpoint.Mean(gaps, fixedpoint.ScorePlaces)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	// dispersion around the quantized mean, matching the stored column
	std, err = fixedpoint.PopulationStdDev(gaps, mean, fixedpoint.ScorePlaces)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return mean, std, nil
}

// EvaluateScenario computes all four metrics for one scenario and applies
// the go/no-go thresholds. An early-warning value of zero passes trivially:
// it only happens when there were no alert/change pairs to measure.
func EvaluateScenario(result *ScenarioResult) (*MetricsResult, error) {
	mbeRecs := result.MBE.Records
	riskRecs := result.Risk.Records

	capture := CaptureRate(riskRecs, mbeRecs, alertWindowDays)
	falseAlarm := FalseAlarmRate(riskRecs, mbeRecs, alertWindowDays)
	earlyWarn := EarlyWarningDays(riskRecs, mbeRecs)
	gapMean, gapStd, err := CostGapAccuracy(mbeRecs)
	if err != nil {
		return nil, err
	}

	m := &MetricsResult{
		Scenario:         result.Scenario,
		Fuel:             string(result.Fuel),
		CaptureRate:      capture,
		FalseAlarmRate:   falseAlarm,
		EarlyWarningDays: earlyWarn,
		CostGapMean:      gapMean,
		CostGapStd:       gapStd,
	}
	m.CapturePass = capture.GreaterThanOrEqual(captureRateFloor)
	m.FalseAlarmPass = falseAlarm.LessThanOrEqual(falseAlarmCeiling)
	m.EarlyWarningPass = earlyWarn.IsZero() ||
		(earlyWarn.GreaterThanOrEqual(earlyWarningMin) && earlyWarn.LessThanOrEqual(earlyWarningMax))
	m.CostGapPass = gapStd.LessThan(costGapStdCeiling)
	m.Go = m.CapturePass && m.FalseAlarmPass && m.EarlyWarningPass && m.CostGapPass
	return m, nil
}

// Evaluate scores a full run. The run is a go only when every scenario is;
// an empty run is a no-go.
func Evaluate(run *RunResult) (*EvaluationReport, error) {
	report := &EvaluationReport{RunDate: run.RunDate}

	for i := range run.Results {
		m, err := EvaluateScenario(&run.Results[i])
		if err != nil {
			return nil, err
		}
		report.Scenarios = append(report.Scenarios, *m)
	}

	report.OverallGo = len(report.Scenarios) > 0
	for _, m := range report.Scenarios {
		if !m.Go {
			report.OverallGo = false
			break
		}
	}

	report.Markdown = renderMarkdown(report)
	return report, nil
}
