package risk

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

func TestNormalize(t *testing.T) {
	cases := []struct {
		name            string
		value, min, max string
		want            string
	}{
		{"interior", "1", "0", "3", "0.3333"},
		{"at min", "0", "0", "1", "0"},
		{"at max", "1", "0", "1", "1"},
		{"clamped below", "-5", "0", "1", "0"},
		{"clamped above", "7", "0", "1", "1"},
		{"degenerate at point", "2", "2", "2", "0"},
		{"degenerate below", "1", "2", "2", "0"},
		{"degenerate above", "3", "2", "2", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(dec(t, tc.value), dec(t, tc.min), dec(t, tc.max))
			assert.True(t, got.Equal(dec(t, tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestScoreDefaults(t *testing.T) {
	res := Score(Inputs{
		MBE:             dec(t, "0.5"),
		FXVolatility:    dec(t, "0.05"),
		PoliticalDelay:  dec(t, "30"),
		ThresholdBreach: dec(t, "1"),
		TrendMomentum:   dec(t, "0"),
	}, nil, nil)

	// 0.30*0.5 + 0.15*0.5 + 0.20*0.5 + 0.20*1 + 0.15*0.5 = 0.60
	assert.True(t, res.Composite.Equal(dec(t, "0.6")), "got %s", res.Composite)
	assert.Equal(t, models.ModeHighAlert, res.Mode)
	assert.True(t, res.MBEComponent.Equal(dec(t, "0.5")))
	assert.True(t, res.ThresholdBreachComponent.Equal(dec(t, "1")))
	assert.True(t, res.TrendMomentumComponent.Equal(dec(t, "0.5")), "momentum 0 sits mid-range")

	assert.Equal(t, map[string]string{
		"mbe":              "0.30",
		"fx_volatility":    "0.15",
		"political_delay":  "0.20",
		"threshold_breach": "0.20",
		"trend_momentum":   "0.15",
	}, res.WeightVector)
}

func TestModeBoundaries(t *testing.T) {
	assert.Equal(t, models.ModeNormal, ModeFor(dec(t, "0.5999")))
	assert.Equal(t, models.ModeHighAlert, ModeFor(dec(t, "0.60")))
	assert.Equal(t, models.ModeHighAlert, ModeFor(dec(t, "0.7999")))
	assert.Equal(t, models.ModeCrisis, ModeFor(dec(t, "0.80")))
}

func TestCheckBreach(t *testing.T) {
	open := dec(t, "0.60")
	cls := dec(t, "0.45")

	b := CheckBreach(dec(t, "0.60"), open, cls, false)
	require.NotNil(t, b, "inactive alert opens at the open threshold")
	assert.Equal(t, "open", b.Action)
	assert.True(t, b.Threshold.Equal(open))

	assert.Nil(t, CheckBreach(dec(t, "0.5999"), open, cls, false))

	b = CheckBreach(dec(t, "0.45"), open, cls, true)
	require.NotNil(t, b, "active alert closes at the close threshold")
	assert.Equal(t, "close", b.Action)

	assert.Nil(t, CheckBreach(dec(t, "0.46"), open, cls, true),
		"between the bands an active alert stays open")
	assert.Nil(t, CheckBreach(dec(t, "0.59"), open, cls, false),
		"between the bands an inactive alert stays closed")
}

func TestApplyRegimeModifier(t *testing.T) {
	threshold := dec(t, "0.60")
	modifiers := map[string]decimal.Decimal{"election": dec(t, "0.85")}

	got := ApplyRegimeModifier(threshold, modifiers, "election")
	assert.True(t, got.Equal(dec(t, "0.51")), "got %s", got)

	assert.True(t, ApplyRegimeModifier(threshold, modifiers, "holiday").Equal(threshold))
	assert.True(t, ApplyRegimeModifier(threshold, modifiers, "").Equal(threshold))
	assert.True(t, ApplyRegimeModifier(threshold, nil, "election").Equal(threshold))
}
