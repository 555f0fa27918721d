package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PumpWatch/internal/domain/models"
)

func mustScenario(t *testing.T, name string, fuel models.FuelType) []Day {
	t.Helper()
	days, err := ScenarioByName(name, fuel)
	require.NoError(t, err)
	return days
}

func alertDays(run *RiskRun, action string) []int {
	var out []int
	for i, rec := range run.Records {
		if rec.AlertAction == action {
			out = append(out, i)
		}
	}
	return out
}

func TestRunMBENormalBenzin(t *testing.T) {
	days := mustScenario(t, ScenarioNormal, models.FuelBenzin)
	run, err := RunMBE(days, models.FuelBenzin, ScenarioNormal)
	require.NoError(t, err)

	assert.Equal(t, 90, run.TotalDays)
	require.Len(t, run.Records, 90)
	assert.Equal(t, 4, run.PriceChanges)

	assert.True(t, run.Records[0].MBE.Equal(dec(t, "0.04764545")), "day 0 mbe %s", run.Records[0].MBE)
	assert.True(t, run.Records[21].MBE.Equal(dec(t, "0.93167845")), "day 21 mbe %s", run.Records[21].MBE)
}

func TestRunMBERebasesOnChangeDays(t *testing.T) {
	days := mustScenario(t, ScenarioNormal, models.FuelBenzin)
	run, err := RunMBE(days, models.FuelBenzin, ScenarioNormal)
	require.NoError(t, err)

	// the day before an increase the accumulated pressure is large; the
	// re-derived baseline collapses it on the change day itself
	for _, changeDay := range []int{25, 50} {
		before := run.Records[changeDay-1].MBE
		after := run.Records[changeDay].MBE
		assert.True(t, before.GreaterThan(dec(t, "0.90")), "day %d mbe %s", changeDay-1, before)
		assert.True(t, after.Abs().LessThan(dec(t, "0.20")), "day %d mbe %s", changeDay, after)
		assert.False(t, run.Records[changeDay].NCBase.Equal(run.Records[changeDay-1].NCBase))
	}
}

func TestRunMBEEmptyScenario(t *testing.T) {
	_, err := RunMBE(nil, models.FuelBenzin, ScenarioNormal)
	require.Error(t, err)
}

func TestRunRiskAlertCycleNormalBenzin(t *testing.T) {
	days := mustScenario(t, ScenarioNormal, models.FuelBenzin)
	mbeRun, err := RunMBE(days, models.FuelBenzin, ScenarioNormal)
	require.NoError(t, err)
	run, err := RunRisk(mbeRun, days, models.FuelBenzin, ScenarioNormal)
	require.NoError(t, err)

	assert.Equal(t, []int{21, 46, 70, 81}, alertDays(run, "open"))
	assert.Equal(t, []int{25, 50, 72}, alertDays(run, "close"))
	assert.Equal(t, 4, run.TotalAlerts)
	assert.Equal(t, 5, run.DelayEvents)

	assert.True(t, run.Records[21].Composite.Equal(dec(t, "0.6137")), "day 21 composite %s", run.Records[21].Composite)

	// terminal tracker states fold back to idle within the same day
	for _, rec := range run.Records {
		assert.Contains(t, []models.DelayState{models.DelayIdle, models.DelayWatching}, rec.DelayState)
	}
}

func TestRunRiskFXShock(t *testing.T) {
	for _, fuel := range []models.FuelType{models.FuelBenzin, models.FuelMotorin} {
		days := mustScenario(t, ScenarioFXShock, fuel)
		mbeRun, err := RunMBE(days, fuel, ScenarioFXShock)
		require.NoError(t, err)
		run, err := RunRisk(mbeRun, days, fuel, ScenarioFXShock)
		require.NoError(t, err)

		opens := alertDays(run, "open")
		closes := alertDays(run, "close")
		require.Len(t, opens, 2, "%s opens %v", fuel, opens)
		require.Len(t, closes, 2, "%s closes %v", fuel, closes)

		// the FX jump opens the first alert ahead of the day-18 catch-up;
		// the partial correction closes it on the change day
		assert.GreaterOrEqual(t, opens[0], 15, "%s", fuel)
		assert.Less(t, opens[0], 18, "%s", fuel)
		assert.Equal(t, 18, closes[0], "%s", fuel)

		// pressure rebuilds under the elevated drift and reopens within
		// the week before the larger day-30 increase
		assert.GreaterOrEqual(t, opens[1], 23, "%s opens %v", fuel, opens)
		assert.Less(t, opens[1], 30, "%s opens %v", fuel, opens)
		assert.Greater(t, closes[1], 30, "%s closes %v", fuel, closes)

		assert.Equal(t, 3, run.DelayEvents, "%s", fuel)
		assert.True(t, run.MaxRiskScore.GreaterThan(dec(t, "0.70")),
			"%s max risk %s", fuel, run.MaxRiskScore)
	}
}

func TestRunRiskElection(t *testing.T) {
	days := mustScenario(t, ScenarioElection, models.FuelMotorin)
	mbeRun, err := RunMBE(days, models.FuelMotorin, ScenarioElection)
	require.NoError(t, err)
	run, err := RunRisk(mbeRun, days, models.FuelMotorin, ScenarioElection)
	require.NoError(t, err)

	assert.Equal(t, []int{34}, alertDays(run, "open"))
	assert.Equal(t, []int{40}, alertDays(run, "close"))
	assert.Equal(t, 1, run.TotalAlerts)
}

func TestRunScenario(t *testing.T) {
	days := mustScenario(t, ScenarioNormal, models.FuelMotorin)
	result, err := RunScenario(days, models.FuelMotorin, ScenarioNormal)
	require.NoError(t, err)
	assert.Equal(t, ScenarioNormal, result.Scenario)
	assert.Equal(t, models.FuelMotorin, result.Fuel)
	assert.Equal(t, []int{20, 45, 68, 79}, alertDays(result.Risk, "open"))
}

func TestRunCoversAllScenariosAndFuels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, result.Results, 6)

	want := []struct {
		scenario string
		fuel     models.FuelType
	}{
		{ScenarioNormal, models.FuelBenzin},
		{ScenarioFXShock, models.FuelBenzin},
		{ScenarioElection, models.FuelBenzin},
		{ScenarioNormal, models.FuelMotorin},
		{ScenarioFXShock, models.FuelMotorin},
		{ScenarioElection, models.FuelMotorin},
	}
	for i, w := range want {
		assert.Equal(t, w.scenario, result.Results[i].Scenario)
		assert.Equal(t, w.fuel, result.Results[i].Fuel)
	}
}

func TestTrendMomentum(t *testing.T) {
	recs := []DailyMBERecord{
		{MBE: decimal.Zero},
		{MBE: dec(t, "0.10")},
		{MBE: dec(t, "0.20")},
		{MBE: dec(t, "0.30")},
		{MBE: dec(t, "0.45")},
	}

	assert.True(t, trendMomentum(recs, 0, momentumLookback).IsZero())

	// zero starting value collapses to the sign of the current one
	assert.True(t, trendMomentum(recs, 2, momentumLookback).Equal(decimal.NewFromInt(1)))

	// (0.45 - 0.10) / 0.10 clamps to 1
	assert.True(t, trendMomentum(recs, 4, momentumLookback).Equal(decimal.NewFromInt(1)))

	falling := []DailyMBERecord{
		{MBE: dec(t, "1.00")},
		{MBE: dec(t, "0.90")},
		{MBE: dec(t, "0.80")},
		{MBE: dec(t, "0.75")},
	}
	got := trendMomentum(falling, 3, momentumLookback)
	assert.True(t, got.Equal(dec(t, "-0.25")), "got %s", got)
}

func TestFXVolatility(t *testing.T) {
	one := dec(t, "36.50")
	vol, err := fxVolatility([]decimal.Decimal{one}, fxVolatilityWindow)
	require.NoError(t, err)
	assert.True(t, vol.IsZero())

	flat := []decimal.Decimal{one, one, one, one, one, one}
	vol, err = fxVolatility(flat, fxVolatilityWindow)
	require.NoError(t, err)
	assert.True(t, vol.IsZero())

	moving := []decimal.Decimal{dec(t, "36.00"), dec(t, "36.00"), dec(t, "36.00"), dec(t, "38.00")}
	vol, err = fxVolatility(moving, fxVolatilityWindow)
	require.NoError(t, err)
	assert.True(t, vol.GreaterThan(decimal.Zero))
}
