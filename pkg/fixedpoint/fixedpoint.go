// Package fixedpoint carries the numeric conventions used across the
// pricing core: fixed decimal precision per field class, round-half-up at
// every quantization point, and explicit errors instead of infinities.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Fractional digits per field class.
const (
	MoneyPlaces  int32 = 8 // net costs, MBE values, percent columns
	ScorePlaces  int32 = 4 // normalized components, composite scores, rates
	PricePlaces  int32 = 2 // pump prices in TL per liter
	ZScorePlaces int32 = 2
)

const (
	sqrtIterations       = 16
	sqrtWorkingPrecision int32 = 16
)

var (
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrEmptySeries    = errors.New("fixedpoint: empty series")
	ErrNegativeSqrt   = errors.New("fixedpoint: square root of negative value")
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// ParseError reports an external numeric value that could not be accepted.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fixedpoint: parse %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("fixedpoint: parse %q", e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse converts external numeric input. Empty and unparseable values are
// rejected with a ParseError rather than defaulting to zero.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, &ParseError{Input: s, Err: errors.New("empty value")}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Input: s, Err: err}
	}
	return d, nil
}

// Quantize rounds half up (ties away from zero) to the given number of
// fractional digits.
func Quantize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

func QuantizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

func QuantizeScore(d decimal.Decimal) decimal.Decimal {
	return d.Round(ScorePlaces)
}

func QuantizePrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePlaces)
}

// Div divides a by b, rounded half up at the given scale. A zero divisor is
// an ErrDivisionByZero, never a panic or an infinity.
func Div(a, b decimal.Decimal, places int32) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, ErrDivisionByZero
	}
	return a.DivRound(b, places), nil
}

// PercentOfBase returns value/base*100 quantized, and zero when the base is
// zero. Percent-style columns treat a zero base as "no reference", not as an
// error.
func PercentOfBase(value, base decimal.Decimal, places int32) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return value.Mul(hundred).DivRound(base, places)
}

// Sqrt computes the square root with Newton's method: initial guess value/2,
// a fixed 16 iterations, result quantized to MoneyPlaces.
func Sqrt(value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Decimal{}, ErrNegativeSqrt
	}
	if value.IsZero() {
		return decimal.Zero, nil
	}
	guess := value.DivRound(two, sqrtWorkingPrecision)
	for i := 0; i < sqrtIterations; i++ {
		guess = guess.Add(value.DivRound(guess, sqrtWorkingPrecision)).DivRound(two, sqrtWorkingPrecision)
	}
	return guess.Round(MoneyPlaces), nil
}

// Clamp01 clamps into [0, 1].
func Clamp01(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

// ClampSigned1 clamps into [-1, 1].
func ClampSigned1(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.GreaterThan(one) {
		return one
	}
	if d.LessThan(one.Neg()) {
		return one.Neg()
	}
	return d
}

// Sum adds a slice of values. An empty slice sums to zero.
func Sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Mean averages a slice, quantized to places. Empty input is ErrEmptySeries.
func Mean(values []decimal.Decimal, places int32) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Decimal{}, ErrEmptySeries
	}
	n := decimal.NewFromInt(int64(len(values)))
	return Sum(values).DivRound(n, places), nil
}

// PopulationStdDev computes the standard deviation around the given mean,
// dividing the squared deviations by n (not n-1), then quantizes to places.
// Fewer than two samples yield zero. The mean is a parameter because some
// callers measure dispersion around an already-quantized mean.
func PopulationStdDev(values []decimal.Decimal, mean decimal.Decimal, places int32) (decimal.Decimal, error) {
	if len(values) < 2 {
		return decimal.Zero, nil
	}
	sum := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}
	n := decimal.NewFromInt(int64(len(values)))
	variance := sum.DivRound(n, sqrtWorkingPrecision)
	root, err := Sqrt(variance)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return root.Round(places), nil
}
