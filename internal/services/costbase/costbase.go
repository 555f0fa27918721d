// Package costbase computes the cost-base effect (MBE) for regulated pump
// prices: the gap between the moving average of the forward-looking net cost
// and the net cost baked into the price at the most recent change.
//
// All monetary math runs on fixed-point decimals quantized to eight
// fractional digits, rounding half up. Floats never enter the formulas.
package costbase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/fixedpoint"
)

// Density constants per fuel, ton to liter conversion.
var densities = map[models.FuelType]decimal.Decimal{
	models.FuelBenzin:  decimal.NewFromInt(1180),
	models.FuelMotorin: decimal.NewFromInt(1190),
	models.FuelLPG:     decimal.NewFromInt(1750),
}

// RegimeConfig pairs the moving-average window with the total margin the
// regulator tolerates under a regime.
type RegimeConfig struct {
	Window int
	Margin decimal.Decimal
}

// Regime table. 0 normal, 1 election, 2 fx shock, 3 tax adjustment.
var regimeParams = map[int]RegimeConfig{
	0: {Window: 5, Margin: decimal.RequireFromString("1.20")},
	1: {Window: 7, Margin: decimal.RequireFromString("1.00")},
	2: {Window: 3, Margin: decimal.RequireFromString("1.50")},
	3: {Window: 5, Margin: decimal.RequireFromString("1.20")},
}

const trendLookback = 3

// workingPlaces is the intermediate division scale before final quantization.
const workingPlaces int32 = 16

// InvalidArgumentError reports an input outside the engine's closed domain
// (unknown fuel, unknown regime code, non-positive window).
type InvalidArgumentError struct {
	Name  string
	Value interface{}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("costbase: invalid %s: %v", e.Name, e.Value)
}

// Density returns the ton-to-liter density constant for a fuel.
func Density(fuel models.FuelType) (decimal.Decimal, error) {
	rho, ok := densities[fuel]
	if !ok {
		return decimal.Decimal{}, &InvalidArgumentError{Name: "fuel type", Value: fuel}
	}
	return rho, nil
}

// RegimeFor returns the (window, margin) configuration for a regime code.
func RegimeFor(regime int) (RegimeConfig, error) {
	cfg, ok := regimeParams[regime]
	if !ok {
		return RegimeConfig{}, &InvalidArgumentError{Name: "regime code", Value: regime}
	}
	return cfg, nil
}

// ForwardNetCost computes (cif * fx) / rho in TL per liter, quantized.
func ForwardNetCost(cif, fx, rho decimal.Decimal) (decimal.Decimal, error) {
	result, err := fixedpoint.Div(cif.Mul(fx), rho, fixedpoint.MoneyPlaces)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("forward net cost: %w", err)
	}
	return result, nil
}

// BaseNetCost reverses the pump price into the net cost it implies:
// (pump - margin) / (1 + kdv) - otv, quantized. A kdv of -1 makes the
// denominator zero and is rejected.
func BaseNetCost(pump, otv, kdv, margin decimal.Decimal) (decimal.Decimal, error) {
	denom := decimal.NewFromInt(1).Add(kdv)
	q, err := fixedpoint.Div(pump.Sub(margin), denom, workingPlaces)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("base net cost: %w", err)
	}
	return fixedpoint.QuantizeMoney(q.Sub(otv)), nil
}

// MovingAverage computes a simple moving average with a shrinking head: for
// each index the window covers the last min(window, i+1) values, so the
// series never requires full history. Output has the input's length.
func MovingAverage(series []decimal.Decimal, window int) ([]decimal.Decimal, error) {
	if window < 1 {
		return nil, &InvalidArgumentError{Name: "sma window", Value: window}
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("moving average: %w", fixedpoint.ErrEmptySeries)
	}
	result := make([]decimal.Decimal, 0, len(series))
	for i := range series {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		avg, err := fixedpoint.Mean(series[start:i+1], fixedpoint.MoneyPlaces)
		if err != nil {
			return nil, fmt.Errorf("moving average: %w", err)
		}
		result = append(result, avg)
	}
	return result, nil
}

// MBE is the latest forward-cost moving average minus the baseline net cost.
func MBE(forwardSeries []decimal.Decimal, base decimal.Decimal, window int) (decimal.Decimal, error) {
	sma, err := MovingAverage(forwardSeries, window)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return fixedpoint.QuantizeMoney(sma[len(sma)-1].Sub(base)), nil
}

// DetectTrend compares the moving-average value lookback steps back against
// the latest one. Strictly greater means increase, strictly less decrease.
// Series shorter than two entries report no change.
func DetectTrend(smaSeries []decimal.Decimal, lookback int) models.Trend {
	if len(smaSeries) < 2 {
		return models.TrendNoChange
	}
	actual := lookback
	if actual > len(smaSeries) {
		actual = len(smaSeries)
	}
	start := smaSeries[len(smaSeries)-actual]
	end := smaSeries[len(smaSeries)-1]
	switch end.Cmp(start) {
	case 1:
		return models.TrendIncrease
	case -1:
		return models.TrendDecrease
	default:
		return models.TrendNoChange
	}
}

// Input is one day's data for a full MBE evaluation.
type Input struct {
	ForwardSeries []decimal.Decimal // oldest first, latest value is today's
	Base          decimal.Decimal   // net cost anchored at the last price change
	Regime        int
	PreviousMBE   *decimal.Decimal
	MBE3DaysAgo   *decimal.Decimal
}

// Result carries the full derived metric set for one day.
type Result struct {
	NCForward decimal.Decimal
	NCBase    decimal.Decimal
	MBE       decimal.Decimal
	MBEPct    decimal.Decimal
	SMA5      decimal.Decimal
	SMA10     decimal.Decimal
	DeltaMBE  *decimal.Decimal
	DeltaMBE3 *decimal.Decimal
	Trend     models.Trend
	Regime    int
	SMAWindow int
}

// FullMBE evaluates the complete metric set: regime-windowed MBE, the fixed
// 5 and 10 day averages, day-over-day and 3-day deltas, and the trend of the
// regime-windowed average.
func FullMBE(in Input) (*Result, error) {
	cfg, err := RegimeFor(in.Regime)
	if err != nil {
		return nil, err
	}
	if len(in.ForwardSeries) == 0 {
		return nil, fmt.Errorf("full mbe: %w", fixedpoint.ErrEmptySeries)
	}

	smaAll, err := MovingAverage(in.ForwardSeries, cfg.Window)
	if err != nil {
		return nil, err
	}
	sma5, err := MovingAverage(in.ForwardSeries, 5)
	if err != nil {
		return nil, err
	}
	sma10, err := MovingAverage(in.ForwardSeries, 10)
	if err != nil {
		return nil, err
	}

	mbe := fixedpoint.QuantizeMoney(smaAll[len(smaAll)-1].Sub(in.Base))
	mbePct := fixedpoint.PercentOfBase(mbe, in.Base, fixedpoint.MoneyPlaces)

	var deltaMBE, deltaMBE3 *decimal.Decimal
	if in.PreviousMBE != nil {
		d := fixedpoint.QuantizeMoney(mbe.Sub(*in.PreviousMBE))
		deltaMBE = &d
	}
	if in.MBE3DaysAgo != nil {
		d := fixedpoint.QuantizeMoney(mbe.Sub(*in.MBE3DaysAgo))
		deltaMBE3 = &d
	}

	return &Result{
		NCForward: in.ForwardSeries[len(in.ForwardSeries)-1],
		NCBase:    in.Base,
		MBE:       mbe,
		MBEPct:    mbePct,
		SMA5:      sma5[len(sma5)-1],
		SMA10:     sma10[len(sma10)-1],
		DeltaMBE:  deltaMBE,
		DeltaMBE3: deltaMBE3,
		Trend:     DetectTrend(smaAll, trendLookback),
		Regime:    in.Regime,
		SMAWindow: cfg.Window,
	}, nil
}

// Snapshot decomposes a pump price into its cost, tax and margin components.
type Snapshot struct {
	CIFComponent     decimal.Decimal
	OTVComponent     decimal.Decimal
	KDVComponent     decimal.Decimal
	MarginComponent  decimal.Decimal
	TheoreticalPrice decimal.Decimal
	PumpPrice        decimal.Decimal
	CostGap          decimal.Decimal
	CostGapPct       decimal.Decimal
	ImpliedCIF       *decimal.Decimal
}

// SnapshotInput is the market data one snapshot derives from.
type SnapshotInput struct {
	Fuel   models.FuelType
	CIF    decimal.Decimal // USD per ton
	FX     decimal.Decimal // TL per USD
	Pump   decimal.Decimal // TL per liter
	Taxes  models.TaxRates
	Margin decimal.Decimal
}

// ComputeSnapshot derives the daily cost decomposition:
// theoretical = (cif_component + otv) * (1 + kdv) + margin, the gap between
// the actual pump price and the theoretical one, and the benchmark price the
// pump price implies. The implied benchmark is omitted when FX is not
// positive.
func ComputeSnapshot(in SnapshotInput) (*Snapshot, error) {
	rho, err := Density(in.Fuel)
	if err != nil {
		return nil, err
	}

	cifComponent, err := ForwardNetCost(in.CIF, in.FX, rho)
	if err != nil {
		return nil, err
	}

	costPlusOTV := cifComponent.Add(in.Taxes.OTV)
	kdvComponent := fixedpoint.QuantizeMoney(costPlusOTV.Mul(in.Taxes.KDV))
	theoretical := fixedpoint.QuantizeMoney(
		costPlusOTV.Mul(decimal.NewFromInt(1).Add(in.Taxes.KDV)).Add(in.Margin))

	var impliedCIF *decimal.Decimal
	if in.FX.IsPositive() {
		base, err := BaseNetCost(in.Pump, in.Taxes.OTV, in.Taxes.KDV, in.Margin)
		if err != nil {
			return nil, err
		}
		implied, err := fixedpoint.Div(base.Mul(rho), in.FX, fixedpoint.MoneyPlaces)
		if err != nil {
			return nil, err
		}
		impliedCIF = &implied
	}

	gap := fixedpoint.QuantizeMoney(in.Pump.Sub(theoretical))
	gapPct := fixedpoint.PercentOfBase(gap, theoretical, fixedpoint.MoneyPlaces)

	return &Snapshot{
		CIFComponent:     cifComponent,
		OTVComponent:     in.Taxes.OTV,
		KDVComponent:     kdvComponent,
		MarginComponent:  in.Margin,
		TheoreticalPrice: theoretical,
		PumpPrice:        in.Pump,
		CostGap:          gap,
		CostGapPct:       gapPct,
		ImpliedCIF:       impliedCIF,
	}, nil
}
