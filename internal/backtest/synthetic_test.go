package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PumpWatch/internal/domain/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestRand01Deterministic(t *testing.T) {
	a := rand01("normal-benzin", 7, "cif")
	b := rand01("normal-benzin", 7, "cif")
	assert.True(t, a.Equal(b))
	assert.True(t, a.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, a.LessThanOrEqual(decimal.NewFromInt(1)))

	// any input difference moves the stream
	c := rand01("normal-benzin", 7, "fx")
	assert.False(t, a.Equal(c))
}

func TestGenerateIsIdempotent(t *testing.T) {
	first, err := Normal(models.FuelBenzin)
	require.NoError(t, err)
	second, err := Normal(models.FuelBenzin)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].CIF.Equal(second[i].CIF), "cif day %d", i)
		assert.True(t, first[i].FX.Equal(second[i].FX), "fx day %d", i)
		assert.True(t, first[i].PumpPrice.Equal(second[i].PumpPrice), "pump day %d", i)
	}
}

func TestFuelsGetDistinctSeries(t *testing.T) {
	benzin, err := Normal(models.FuelBenzin)
	require.NoError(t, err)
	motorin, err := Normal(models.FuelMotorin)
	require.NoError(t, err)

	assert.False(t, benzin[10].CIF.Equal(motorin[10].CIF))
	assert.False(t, benzin[0].PumpPrice.Equal(motorin[0].PumpPrice))
}

func TestNormalScenarioShape(t *testing.T) {
	days, err := Normal(models.FuelBenzin)
	require.NoError(t, err)
	require.Len(t, days, 90)

	wantChanges := map[int]struct {
		amount    string
		direction string
	}{
		25: {"1.40", "up"},
		50: {"1.40", "up"},
		72: {"0.60", "up"},
		82: {"-0.80", "down"},
	}
	for i, day := range days {
		want, ok := wantChanges[i]
		if !ok {
			assert.False(t, day.IsPriceChange, "unexpected change on day %d", i)
			assert.Equal(t, "none", day.ChangeDirection)
			continue
		}
		require.True(t, day.IsPriceChange, "missing change on day %d", i)
		assert.Equal(t, want.direction, day.ChangeDirection)
		assert.True(t, day.ChangeAmount.Equal(dec(t, want.amount)), "day %d amount %s", i, day.ChangeAmount)
		assert.Equal(t, 0, day.Regime)
	}

	// the regulated price only moves on scheduled days
	assert.True(t, days[0].PumpPrice.Equal(dec(t, "29.42")))
	assert.True(t, days[24].PumpPrice.Equal(dec(t, "29.42")))
	assert.True(t, days[25].PumpPrice.Equal(dec(t, "30.82")))
	assert.True(t, days[82].PumpPrice.Equal(dec(t, "32.02")))
	assert.True(t, days[89].PumpPrice.Equal(dec(t, "32.02")))
}

func TestFXShockJumpAndRegimeWindow(t *testing.T) {
	days, err := FXShock(models.FuelBenzin)
	require.NoError(t, err)
	require.Len(t, days, 60)

	// +10% jump lands exactly on day 15
	assert.True(t, days[14].FX.Equal(dec(t, "36.05")), "fx day 14 %s", days[14].FX)
	assert.True(t, days[15].FX.Equal(dec(t, "39.66")), "fx day 15 %s", days[15].FX)

	for i, day := range days {
		if i >= 15 && i < 40 {
			assert.Equal(t, 2, day.Regime, "day %d", i)
		} else {
			assert.Equal(t, 0, day.Regime, "day %d", i)
		}
	}

	assert.True(t, days[17].PumpPrice.Equal(dec(t, "14.43")))
	assert.True(t, days[18].PumpPrice.Equal(dec(t, "15.58")))
	assert.True(t, days[30].PumpPrice.Equal(dec(t, "17.58")))
}

func TestFXShockEscalatingChangesUnderElevatedDrift(t *testing.T) {
	for _, fuel := range []models.FuelType{models.FuelBenzin, models.FuelMotorin} {
		days, err := FXShock(fuel)
		require.NoError(t, err)

		// the day-18 catch-up covers only part of the jump; day 30 brings
		// the larger correction
		require.True(t, days[18].IsPriceChange, "%s", fuel)
		require.True(t, days[30].IsPriceChange, "%s", fuel)
		assert.True(t, days[18].ChangeAmount.LessThan(days[30].ChangeAmount),
			"%s day 18 %s vs day 30 %s", fuel, days[18].ChangeAmount, days[30].ChangeAmount)

		// FX drift stays elevated from the jump through day 40 and only
		// then falls back to the baseline walk
		early := days[39].FX.Sub(days[30].FX)
		late := days[59].FX.Sub(days[39].FX)
		assert.True(t, early.GreaterThan(dec(t, "0.70")), "%s fx days 30-39 %s", fuel, early)
		assert.True(t, late.LessThan(dec(t, "1.00")), "%s fx days 39-59 %s", fuel, late)
		assert.True(t, late.LessThan(early), "%s", fuel)
	}
}

func TestElectionScenarioShape(t *testing.T) {
	days, err := Election(models.FuelMotorin)
	require.NoError(t, err)
	require.Len(t, days, 60)

	var changeDays []int
	for i, day := range days {
		if day.IsPriceChange {
			changeDays = append(changeDays, i)
		}
		if i < 45 {
			assert.Equal(t, 1, day.Regime, "day %d", i)
		} else {
			assert.Equal(t, 0, day.Regime, "day %d", i)
		}
	}
	assert.Equal(t, []int{40}, changeDays)
	assert.True(t, days[39].PumpPrice.Equal(dec(t, "28.78")))
	assert.True(t, days[40].PumpPrice.Equal(dec(t, "30.13")))
}

func TestScenarioByName(t *testing.T) {
	days, err := ScenarioByName(ScenarioFXShock, models.FuelMotorin)
	require.NoError(t, err)
	assert.Len(t, days, 60)

	_, err = ScenarioByName("hyperinflation", models.FuelBenzin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestListScenarios(t *testing.T) {
	infos := ListScenarios()
	require.Len(t, infos, 3)
	assert.Equal(t, ScenarioNormal, infos[0].Name)
	assert.Equal(t, 90, infos[0].Days)
	assert.Equal(t, 4, infos[0].PriceChanges)
	assert.Equal(t, ScenarioFXShock, infos[1].Name)
	assert.Equal(t, ScenarioElection, infos[2].Name)
}
