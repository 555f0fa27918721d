package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"PumpWatch/internal/domain/models"
	domainrepo "PumpWatch/internal/domain/repository"
)

// Table names inside the collaborator-owned schema. The acquisition side
// writes market_days and regime_events; PumpWatch only reads them. The
// result tables are written here, one row per (date, fuel), with
// deduplication left to the table engine.
const (
	tableMarketDays    = "market_days"
	tableRegimeEvents  = "regime_events"
	tableCostSnapshots = "cost_snapshots"
	tableMBEResults    = "mbe_results"
	tableRiskScores    = "risk_scores"
	tableDelayHistory  = "delay_history"
)

const dateLayout = "2006-01-02"

// regimeCodeFor maps an operator calendar event type to the regime code the
// engines run under. Event types without special handling read as normal.
func regimeCodeFor(eventType string) int {
	switch eventType {
	case "election":
		return 1
	case "economic_crisis", "geopolitical":
		return 2
	case "tax_change":
		return 3
	default:
		return 0
	}
}

// ClickHouseStore implements MarketStore and ResultStore on one connection
// pool. Writes run behind a circuit breaker so a struggling ClickHouse
// degrades the pipeline fast instead of stalling it.
type ClickHouseStore struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker
}

// NewClickHouseStore creates the store. The breaker opens after five
// consecutive write failures and probes again after 30 seconds.
func NewClickHouseStore(db *sql.DB) *ClickHouseStore {
	return &ClickHouseStore{
		db: db,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "clickhouse-writes",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (s *ClickHouseStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
	return err
}

func (s *ClickHouseStore) MarketDay(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error) {
	q := fmt.Sprintf(`SELECT date, pump_price, cif_usd_ton, brent_usd_bbl, fx_try_usd, otv, kdv
		FROM %s WHERE date = ? AND fuel = ? LIMIT 1`, tableMarketDays)
	row := s.db.QueryRowContext(ctx, q, date.Format(dateLayout), string(fuel))
	day, err := scanMarketDay(row, fuel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market day %s/%s: %w", date.Format(dateLayout), fuel, err)
	}
	return day, err
}

func (s *ClickHouseStore) PreviousMarketDay(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error) {
	q := fmt.Sprintf(`SELECT date, pump_price, cif_usd_ton, brent_usd_bbl, fx_try_usd, otv, kdv
		FROM %s WHERE date < ? AND fuel = ? ORDER BY date DESC LIMIT 1`, tableMarketDays)
	row := s.db.QueryRowContext(ctx, q, date.Format(dateLayout), string(fuel))
	day, err := scanMarketDay(row, fuel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return day, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarketDay(row rowScanner, fuel models.FuelType) (*models.MarketDay, error) {
	var (
		day                models.MarketDay
		pump, fx, otv, kdv string
		cif, brent         sql.NullString
	)
	if err := row.Scan(&day.Date, &pump, &cif, &brent, &fx, &otv, &kdv); err != nil {
		return nil, err
	}
	day.Fuel = fuel

	var err error
	if day.PumpPrice, err = decimal.NewFromString(pump); err != nil {
		return nil, fmt.Errorf("pump price: %w", err)
	}
	if day.FX, err = decimal.NewFromString(fx); err != nil {
		return nil, fmt.Errorf("fx rate: %w", err)
	}
	if day.Taxes.OTV, err = decimal.NewFromString(otv); err != nil {
		return nil, fmt.Errorf("otv: %w", err)
	}
	if day.Taxes.KDV, err = decimal.NewFromString(kdv); err != nil {
		return nil, fmt.Errorf("kdv: %w", err)
	}
	if cif.Valid {
		v, err := decimal.NewFromString(cif.String)
		if err != nil {
			return nil, fmt.Errorf("cif: %w", err)
		}
		day.CIF = &v
	}
	if brent.Valid {
		v, err := decimal.NewFromString(brent.String)
		if err != nil {
			return nil, fmt.Errorf("brent: %w", err)
		}
		day.Brent = &v
	}
	return &day, nil
}

func (s *ClickHouseStore) ForwardCostHistory(ctx context.Context, date time.Time, fuel models.FuelType, limit int) ([]models.MBERow, error) {
	q := fmt.Sprintf(`SELECT date, nc_forward, nc_base, mbe, since_last_change_days
		FROM %s WHERE fuel = ? AND date < ? ORDER BY date DESC LIMIT ?`, tableMBEResults)
	rows, err := s.db.QueryContext(ctx, q, string(fuel), date.Format(dateLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MBERow
	for rows.Next() {
		r, err := scanMBEHistory(rows, fuel)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// rows came newest-first; callers want oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHouseStore) LastPriceChange(ctx context.Context, date time.Time, fuel models.FuelType) (*models.MBERow, error) {
	q := fmt.Sprintf(`SELECT date, nc_forward, nc_base, mbe, since_last_change_days
		FROM %s WHERE fuel = ? AND date < ? AND since_last_change_days = 0
		ORDER BY date DESC LIMIT 1`, tableMBEResults)
	row := s.db.QueryRowContext(ctx, q, string(fuel), date.Format(dateLayout))
	r, err := scanMBEHistory(row, fuel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func scanMBEHistory(row rowScanner, fuel models.FuelType) (*models.MBERow, error) {
	var (
		r                  models.MBERow
		forward, base, mbe string
	)
	if err := row.Scan(&r.Date, &forward, &base, &mbe, &r.SinceLastChangeDays); err != nil {
		return nil, err
	}
	r.Fuel = fuel

	var err error
	if r.NCForward, err = decimal.NewFromString(forward); err != nil {
		return nil, fmt.Errorf("nc_forward: %w", err)
	}
	if r.NCBase, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("nc_base: %w", err)
	}
	if r.MBE, err = decimal.NewFromString(mbe); err != nil {
		return nil, fmt.Errorf("mbe: %w", err)
	}
	return &r, nil
}

func (s *ClickHouseStore) FXHistory(ctx context.Context, date time.Time, fuel models.FuelType, limit int) ([]decimal.Decimal, error) {
	q := fmt.Sprintf(`SELECT fx_try_usd FROM %s
		WHERE fuel = ? AND date <= ? ORDER BY date DESC LIMIT ?`, tableMarketDays)
	rows, err := s.db.QueryContext(ctx, q, string(fuel), date.Format(dateLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		fx, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("fx rate: %w", err)
		}
		out = append(out, fx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ClickHouseStore) ActiveRegime(ctx context.Context, date time.Time) (int, error) {
	q := fmt.Sprintf(`SELECT event_type FROM %s
		WHERE is_active = 1 AND start_date <= ? AND end_date >= ?
		ORDER BY impact_score DESC LIMIT 1`, tableRegimeEvents)
	var eventType string
	err := s.db.QueryRowContext(ctx, q, date.Format(dateLayout), date.Format(dateLayout)).Scan(&eventType)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return regimeCodeFor(eventType), nil
}

func (s *ClickHouseStore) StoreSnapshot(ctx context.Context, snap *models.CostSnapshot) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(date, fuel, cif_component, otv_component, kdv_component, margin_component,
		 theoretical_price, pump_price, cost_gap, cost_gap_pct, implied_cif)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableCostSnapshots)
	var implied any
	if snap.ImpliedCIF != nil {
		implied = snap.ImpliedCIF.String()
	}
	return s.exec(ctx, q,
		snap.Date.Format(dateLayout),
		string(snap.Fuel),
		snap.CIFComponent.String(),
		snap.OTVComponent.String(),
		snap.KDVComponent.String(),
		snap.MarginComponent.String(),
		snap.TheoreticalPrice.String(),
		snap.PumpPrice.String(),
		snap.CostGap.String(),
		snap.CostGapPct.String(),
		implied,
	)
}

func (s *ClickHouseStore) StoreMBE(ctx context.Context, r *models.MBERow) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(date, fuel, nc_forward, nc_base, mbe, mbe_pct, sma_5, sma_10,
		 delta_mbe, delta_mbe_3, trend, regime, since_last_change_days, sma_window, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableMBEResults)
	var delta, delta3 any
	if r.DeltaMBE != nil {
		delta = r.DeltaMBE.String()
	}
	if r.DeltaMBE3 != nil {
		delta3 = r.DeltaMBE3.String()
	}
	return s.exec(ctx, q,
		r.Date.Format(dateLayout),
		string(r.Fuel),
		r.NCForward.String(),
		r.NCBase.String(),
		r.MBE.String(),
		r.MBEPct.String(),
		r.SMA5.String(),
		r.SMA10.String(),
		delta,
		delta3,
		string(r.Trend),
		r.Regime,
		r.SinceLastChangeDays,
		r.SMAWindow,
		r.Source,
	)
}

func (s *ClickHouseStore) StoreRisk(ctx context.Context, r *models.RiskRow) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(date, fuel, composite, mbe_component, fx_volatility_component,
		 political_delay_component, threshold_breach_component, trend_momentum_component,
		 weight_mbe, weight_fx_volatility, weight_political_delay,
		 weight_threshold_breach, weight_trend_momentum, mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableRiskScores)
	return s.exec(ctx, q,
		r.Date.Format(dateLayout),
		string(r.Fuel),
		r.Composite.String(),
		r.MBEComponent.String(),
		r.FXVolatilityComponent.String(),
		r.PoliticalDelayComponent.String(),
		r.ThresholdBreachComponent.String(),
		r.TrendMomentumComponent.String(),
		r.WeightVector["mbe"],
		r.WeightVector["fx_volatility"],
		r.WeightVector["political_delay"],
		r.WeightVector["threshold_breach"],
		r.WeightVector["trend_momentum"],
		string(r.Mode),
	)
}

func (s *ClickHouseStore) StoreDelayHistory(ctx context.Context, r *models.DelayHistoryRow) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(fuel, expected_change_date, actual_change_date, delay_days,
		 mbe_at_expected, mbe_at_actual, accumulated_pressure_pct, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, tableDelayHistory)
	var actualDate, mbeActual any
	if r.ActualChangeDate != nil {
		actualDate = r.ActualChangeDate.Format(dateLayout)
	}
	if r.MBEAtActual != nil {
		mbeActual = r.MBEAtActual.String()
	}
	return s.exec(ctx, q,
		string(r.Fuel),
		r.ExpectedChangeDate.Format(dateLayout),
		actualDate,
		r.DelayDays,
		r.MBEAtExpected.String(),
		mbeActual,
		r.AccumulatedPressurePct.String(),
		r.Status,
	)
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op: the connection pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseStore) Close() error {
	return nil
}

var (
	_ domainrepo.MarketStore = (*ClickHouseStore)(nil)
	_ domainrepo.ResultStore = (*ClickHouseStore)(nil)
)
