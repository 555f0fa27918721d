package fixedpoint

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestQuantizeRoundsHalfUp(t *testing.T) {
	cases := []struct {
		in     string
		places int32
		want   string
	}{
		{"2.345", 2, "2.35"},
		{"2.344", 2, "2.34"},
		{"-2.345", 2, "-2.35"}, // ties away from zero on both signs
		{"0.123456785", 8, "0.12345679"},
		{"0.123456784", 8, "0.12345678"},
		{"1.00005", 4, "1.0001"},
	}
	for _, tc := range cases {
		got := Quantize(dec(t, tc.in), tc.places)
		assert.True(t, got.Equal(dec(t, tc.want)), "quantize(%s, %d) = %s, want %s", tc.in, tc.places, got, tc.want)
	}
}

func TestDiv(t *testing.T) {
	got, err := Div(decimal.NewFromInt(1), decimal.NewFromInt(3), MoneyPlaces)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec(t, "0.33333333")))

	_, err = Div(decimal.NewFromInt(1), decimal.Zero, MoneyPlaces)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestPercentOfBase(t *testing.T) {
	got := PercentOfBase(dec(t, "0.5"), dec(t, "2"), MoneyPlaces)
	assert.True(t, got.Equal(dec(t, "25")))

	assert.True(t, PercentOfBase(dec(t, "0.5"), decimal.Zero, MoneyPlaces).IsZero())
}

func TestSqrt(t *testing.T) {
	got, err := Sqrt(decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))

	got, err = Sqrt(decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, got.Equal(dec(t, "1.41421356")))

	got, err = Sqrt(decimal.Zero)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = Sqrt(decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrNegativeSqrt)
}

func TestClamps(t *testing.T) {
	assert.True(t, Clamp01(dec(t, "-0.5")).IsZero())
	assert.True(t, Clamp01(dec(t, "1.5")).Equal(decimal.NewFromInt(1)))
	assert.True(t, Clamp01(dec(t, "0.25")).Equal(dec(t, "0.25")))

	assert.True(t, ClampSigned1(dec(t, "-2")).Equal(decimal.NewFromInt(-1)))
	assert.True(t, ClampSigned1(dec(t, "2")).Equal(decimal.NewFromInt(1)))
	assert.True(t, ClampSigned1(dec(t, "0.75")).Equal(dec(t, "0.75")))
}

func TestParse(t *testing.T) {
	d, err := Parse("36.50")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec(t, "36.5")))

	_, err = Parse("")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))

	_, err = Parse("not-a-number")
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "not-a-number", perr.Input)
}

func TestMean(t *testing.T) {
	vals := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(4)}
	got, err := Mean(vals, MoneyPlaces)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec(t, "2.33333333")))

	_, err = Mean(nil, MoneyPlaces)
	require.ErrorIs(t, err, ErrEmptySeries)
}

func TestPopulationStdDev(t *testing.T) {
	vals := []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(4)}
	got, err := PopulationStdDev(vals, decimal.NewFromInt(3), MoneyPlaces)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1)))

	got, err = PopulationStdDev([]decimal.Decimal{decimal.NewFromInt(7)}, decimal.NewFromInt(7), MoneyPlaces)
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "fewer than two samples have zero dispersion")
}
