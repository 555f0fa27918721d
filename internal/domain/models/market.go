package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRates holds the per-liter fixed tax and the value-added tax rate in
// force for a fuel on a given day.
type TaxRates struct {
	OTV decimal.Decimal // TL per liter
	KDV decimal.Decimal // rate, e.g. 0.20
}

// MarketDay is one trade day of market inputs for one fuel category.
type MarketDay struct {
	Date      time.Time
	Fuel      FuelType
	PumpPrice decimal.Decimal  // TL per liter
	CIF       *decimal.Decimal // USD per ton; nil when no quote published
	Brent     *decimal.Decimal // USD per barrel, fallback source for CIF
	FX        decimal.Decimal  // TL per USD
	Taxes     TaxRates
	Regime    int // 0 normal, 1 election, 2 fx shock, 3 tax adjustment
}

// RegimeEvent is an operator-maintained calendar entry that switches the
// engines into a non-normal regime while active.
type RegimeEvent struct {
	EventType   string // election, holiday, economic_crisis, tax_change, geopolitical, other
	EventName   string
	StartDate   time.Time
	EndDate     time.Time
	ImpactScore int // 0-10
	IsActive    bool
	Source      string
	Description string
}
