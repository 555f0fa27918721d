// Package backtest validates the pricing engines end to end on synthetic
// market data: a deterministic scenario generator, a day-by-day driver for
// the cost-base and risk engines, and a go/no-go metric evaluator.
//
// Nothing here touches a store or a broker. All inputs are generated in
// memory and every run over the same scenario is bit-identical.
package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"PumpWatch/internal/domain/models"
	"PumpWatch/internal/services/costbase"
	"PumpWatch/pkg/fixedpoint"
)

// Canonical scenario names.
const (
	ScenarioNormal   = "normal"
	ScenarioFXShock  = "fx_shock"
	ScenarioElection = "election"
)

// seedSalt pins the deterministic random stream. Changing it changes every
// synthetic dataset, so it is part of the regression contract.
const seedSalt = "pumpwatch-backtest-v1"

// Fixed tax constants for synthetic data, TL per liter and KDV rate.
var (
	otvBenzin     = decimal.RequireFromString("2.4835")
	otvMotorin    = decimal.RequireFromString("2.1079")
	kdvRate       = decimal.RequireFromString("0.20")
	defaultMargin = decimal.RequireFromString("1.20")
)

var scenarioStart = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day is one simulated trading day. Immutable once generated.
type Day struct {
	Date            time.Time
	Fuel            models.FuelType
	CIF             decimal.Decimal // USD per ton
	FX              decimal.Decimal // TL per USD
	PumpPrice       decimal.Decimal // TL per liter
	Taxes           models.TaxRates
	IsPriceChange   bool
	ChangeDirection string // up, down or none
	ChangeAmount    decimal.Decimal
	Regime          int
}

// priceChange is a scheduled pump-price move at a fixed day offset.
type priceChange struct {
	amount    decimal.Decimal
	direction string
}

// rand01 reduces a SHA-256 digest of (salt, seed, day, component) to a
// decimal in [0, 1), quantized to eight places. Pure function of its
// arguments, so the same scenario day always perturbs the same way.
func rand01(seed string, dayIndex int, component string) decimal.Decimal {
	sum := sha256.Sum256([]byte(seedSalt + ":" + seed + ":" + strconv.Itoa(dayIndex) + ":" + component))
	head := hex.EncodeToString(sum[:4])
	v, _ := strconv.ParseUint(head, 16, 64)
	return decimal.NewFromUint64(v).
		DivRound(decimal.NewFromUint64(0xFFFFFFFF), fixedpoint.MoneyPlaces)
}

// walk advances a random walk one step: current + drift + vol*(2r-1),
// quantized to price precision.
func walk(current, drift, vol decimal.Decimal, seed string, dayIndex int, component string) decimal.Decimal {
	r := rand01(seed, dayIndex, component)
	noise := vol.Mul(decimal.NewFromInt(2).Mul(r).Sub(decimal.NewFromInt(1)))
	return fixedpoint.QuantizePrice(current.Add(drift).Add(noise))
}

func floorAt(v, floor decimal.Decimal) decimal.Decimal {
	if v.LessThan(floor) {
		return floor
	}
	return v
}

// otvFor mirrors the production tax table the scenarios were tuned against:
// benzin has its own OTV, everything else carries the motorin rate.
func otvFor(fuel models.FuelType) decimal.Decimal {
	if fuel == models.FuelBenzin {
		return otvBenzin
	}
	return otvMotorin
}

// theoreticalPump builds the opening pump price from the cost stack:
// (cif*fx/rho + otv) * (1+kdv) + margin, at price precision.
func theoreticalPump(cif, fx, rho, otv, kdv, margin decimal.Decimal) (decimal.Decimal, error) {
	nc, err := costbase.ForwardNetCost(cif, fx, rho)
	if err != nil {
		return decimal.Decimal{}, err
	}
	pump := nc.Add(otv).Mul(decimal.NewFromInt(1).Add(kdv)).Add(margin)
	return fixedpoint.QuantizePrice(pump), nil
}

// Normal is 90 days of slow benchmark drift with three increases and one
// decrease at fixed offsets. Regime stays 0 throughout.
func Normal(fuel models.FuelType) ([]Day, error) {
	changes := map[int]priceChange{
		25: {decimal.RequireFromString("1.40"), "up"},
		50: {decimal.RequireFromString("1.40"), "up"},
		72: {decimal.RequireFromString("0.60"), "up"},
		82: {decimal.RequireFromString("-0.80"), "down"},
	}
	return generate(generatorParams{
		seed:     ScenarioNormal + "-" + string(fuel),
		fuel:     fuel,
		days:     90,
		cif0:     decimal.RequireFromString("680.00"),
		fx0:      decimal.RequireFromString("36.50"),
		cifFloor: decimal.RequireFromString("500.00"),
		changes:  changes,
		cifStep: func(i int) (drift, vol decimal.Decimal) {
			return decimal.RequireFromString("1.45"), decimal.RequireFromString("0.15")
		},
		fxStep: func(i int) (drift, vol decimal.Decimal) {
			return decimal.RequireFromString("0.005"), decimal.RequireFromString("0.01")
		},
		regime: func(i int) int { return 0 },
	})
}

// FXShock is 60 days with an abrupt +10% FX jump at day 15 and a sustained
// FX slide through day 40 under regime 2. The day-18 increase covers only
// part of the jump; the larger day-30 increase clears the pressure that
// kept building under the elevated drift.
func FXShock(fuel models.FuelType) ([]Day, error) {
	changes := map[int]priceChange{
		18: {decimal.RequireFromString("1.15"), "up"},
		30: {decimal.RequireFromString("2.00"), "up"},
	}
	return generate(generatorParams{
		seed:     ScenarioFXShock + "-" + string(fuel),
		fuel:     fuel,
		days:     60,
		cif0:     decimal.RequireFromString("280.00"),
		fx0:      decimal.RequireFromString("36.00"),
		cifFloor: decimal.RequireFromString("250.00"),
		changes:  changes,
		cifStep: func(i int) (drift, vol decimal.Decimal) {
			return decimal.RequireFromString("0.25"), decimal.RequireFromString("0.30")
		},
		fxStep: func(i int) (drift, vol decimal.Decimal) {
			switch {
			case i < 15:
				return decimal.RequireFromString("0.003"), decimal.RequireFromString("0.02")
			case i < 40:
				return decimal.RequireFromString("0.15"), decimal.RequireFromString("0.08")
			default:
				return decimal.RequireFromString("0.01"), decimal.RequireFromString("0.03")
			}
		},
		fxJump: func(i int, fx decimal.Decimal) (decimal.Decimal, bool) {
			if i == 15 {
				return fixedpoint.QuantizePrice(fx.Mul(decimal.RequireFromString("1.10"))), true
			}
			return fx, false
		},
		regime: func(i int) int {
			if i >= 15 && i < 40 {
				return 2
			}
			return 0
		},
	})
}

// Election is 60 days under the election regime (code 1, days 0-44): costs
// climb while the pump price is held, then a single catch-up increase lands
// on day 40.
func Election(fuel models.FuelType) ([]Day, error) {
	changes := map[int]priceChange{
		40: {decimal.RequireFromString("1.35"), "up"},
	}
	return generate(generatorParams{
		seed:     ScenarioElection + "-" + string(fuel),
		fuel:     fuel,
		days:     60,
		cif0:     decimal.RequireFromString("690.00"),
		fx0:      decimal.RequireFromString("36.00"),
		cifFloor: decimal.RequireFromString("550.00"),
		changes:  changes,
		cifStep: func(i int) (drift, vol decimal.Decimal) {
			return decimal.RequireFromString("0.85"), decimal.RequireFromString("0.30")
		},
		fxStep: func(i int) (drift, vol decimal.Decimal) {
			return decimal.RequireFromString("0.01"), decimal.RequireFromString("0.03")
		},
		regime: func(i int) int {
			if i < 45 {
				return 1
			}
			return 0
		},
	})
}

var fxFloor = decimal.RequireFromString("30.00")

type generatorParams struct {
	seed     string
	fuel     models.FuelType
	days     int
	cif0     decimal.Decimal
	fx0      decimal.Decimal
	cifFloor decimal.Decimal
	changes  map[int]priceChange
	cifStep  func(i int) (drift, vol decimal.Decimal)
	fxStep   func(i int) (drift, vol decimal.Decimal)
	fxJump   func(i int, fx decimal.Decimal) (decimal.Decimal, bool) // optional
	regime   func(i int) int
}

func generate(p generatorParams) ([]Day, error) {
	rho, err := costbase.Density(p.fuel)
	if err != nil {
		return nil, err
	}
	otv := otvFor(p.fuel)

	cif := p.cif0
	fx := p.fx0
	pump, err := theoreticalPump(cif, fx, rho, otv, kdvRate, defaultMargin)
	if err != nil {
		return nil, err
	}

	days := make([]Day, 0, p.days)
	for i := 0; i < p.days; i++ {
		cifDrift, cifVol := p.cifStep(i)
		cif = floorAt(walk(cif, cifDrift, cifVol, p.seed, i, "cif"), p.cifFloor)

		jumped := false
		if p.fxJump != nil {
			fx, jumped = p.fxJump(i, fx)
		}
		if !jumped {
			fxDrift, fxVol := p.fxStep(i)
			fx = floorAt(walk(fx, fxDrift, fxVol, p.seed, i, "fx"), fxFloor)
		}

		change, isChange := p.changes[i]
		amount := decimal.Zero
		direction := "none"
		if isChange {
			amount = change.amount
			direction = change.direction
			// Outside scheduled moves the pump price stays put: the
			// regulated price does not track costs day to day.
			pump = pump.Add(amount)
		}

		days = append(days, Day{
			Date:            scenarioStart.AddDate(0, 0, i),
			Fuel:            p.fuel,
			CIF:             cif,
			FX:              fx,
			PumpPrice:       pump,
			Taxes:           models.TaxRates{OTV: otv, KDV: kdvRate},
			IsPriceChange:   isChange,
			ChangeDirection: direction,
			ChangeAmount:    amount,
			Regime:          p.regime(i),
		})
	}
	return days, nil
}

// Scenarios generates all three canonical scenarios for one fuel.
func Scenarios(fuel models.FuelType) (map[string][]Day, error) {
	normal, err := Normal(fuel)
	if err != nil {
		return nil, err
	}
	shock, err := FXShock(fuel)
	if err != nil {
		return nil, err
	}
	election, err := Election(fuel)
	if err != nil {
		return nil, err
	}
	return map[string][]Day{
		ScenarioNormal:   normal,
		ScenarioFXShock:  shock,
		ScenarioElection: election,
	}, nil
}

// ScenarioInfo describes one canonical scenario for listings.
type ScenarioInfo struct {
	Name         string
	Description  string
	Days         int
	PriceChanges int
}

// ListScenarios returns the canonical scenario set in a fixed order.
func ListScenarios() []ScenarioInfo {
	return []ScenarioInfo{
		{ScenarioNormal, "slow benchmark drift, three increases and one decrease over 90 days", 90, 4},
		{ScenarioFXShock, "abrupt +10% FX jump at day 15, a partial catch-up at day 18 and a larger one at day 30", 60, 2},
		{ScenarioElection, "costs climb under a held price for 40 days, then one large increase", 60, 1},
	}
}

// ScenarioByName generates a single scenario for one fuel.
func ScenarioByName(name string, fuel models.FuelType) ([]Day, error) {
	switch name {
	case ScenarioNormal:
		return Normal(fuel)
	case ScenarioFXShock:
		return FXShock(fuel)
	case ScenarioElection:
		return Election(fuel)
	default:
		return nil, fmt.Errorf("backtest: unknown scenario %q", name)
	}
}
