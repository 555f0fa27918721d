package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/logger"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// memStore backs MarketStore and ResultStore with slices so a multi-day run
// reads back what earlier days persisted, the way production does.
type memStore struct {
	mu      sync.Mutex
	days    map[models.FuelType][]*models.MarketDay
	regimes map[string]int
	mbeRows []*models.MBERow
	snaps   []*models.CostSnapshot
	risks   []*models.RiskRow
	delays  []*models.DelayHistoryRow
}

func newMemStore() *memStore {
	return &memStore{
		days:    make(map[models.FuelType][]*models.MarketDay),
		regimes: make(map[string]int),
	}
}

func (m *memStore) addDay(d *models.MarketDay) {
	m.days[d.Fuel] = append(m.days[d.Fuel], d)
}

func (m *memStore) MarketDay(_ context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error) {
	for _, d := range m.days[fuel] {
		if d.Date.Equal(date) {
			return d, nil
		}
	}
	return nil, assert.AnError
}

func (m *memStore) PreviousMarketDay(_ context.Context, date time.Time, fuel models.FuelType) (*models.MarketDay, error) {
	var prev *models.MarketDay
	for _, d := range m.days[fuel] {
		if d.Date.Before(date) {
			prev = d
		}
	}
	return prev, nil
}

func (m *memStore) ForwardCostHistory(_ context.Context, date time.Time, fuel models.FuelType, limit int) ([]models.MBERow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MBERow
	for _, r := range m.mbeRows {
		if r.Fuel == fuel && r.Date.Before(date) {
			out = append(out, *r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) LastPriceChange(_ context.Context, date time.Time, fuel models.FuelType) (*models.MBERow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.MBERow
	for _, r := range m.mbeRows {
		if r.Fuel == fuel && r.Date.Before(date) && r.SinceLastChangeDays == 0 {
			last = r
		}
	}
	return last, nil
}

func (m *memStore) FXHistory(_ context.Context, date time.Time, fuel models.FuelType, limit int) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, d := range m.days[fuel] {
		if !d.Date.After(date) {
			out = append(out, d.FX)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) ActiveRegime(_ context.Context, date time.Time) (int, error) {
	return m.regimes[date.Format("2006-01-02")], nil
}

func (m *memStore) StoreSnapshot(_ context.Context, s *models.CostSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memStore) StoreMBE(_ context.Context, r *models.MBERow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mbeRows = append(m.mbeRows, r)
	return nil
}

func (m *memStore) StoreRisk(_ context.Context, r *models.RiskRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risks = append(m.risks, r)
	return nil
}

func (m *memStore) StoreDelayHistory(_ context.Context, r *models.DelayHistoryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, r)
	return nil
}

func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

type memAlerts struct {
	mu     sync.Mutex
	events []*models.AlertEvent
}

func (a *memAlerts) Publish(_ context.Context, e *models.AlertEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *memAlerts) Close() error { return nil }

type memState struct {
	mu       sync.Mutex
	trackers map[models.FuelType][]byte
	alerts   map[string]time.Time
}

func newMemState() *memState {
	return &memState{
		trackers: make(map[models.FuelType][]byte),
		alerts:   make(map[string]time.Time),
	}
}

func (s *memState) LoadTracker(_ context.Context, fuel models.FuelType) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[fuel], nil
}

func (s *memState) SaveTracker(_ context.Context, fuel models.FuelType, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[fuel] = snapshot
	return nil
}

func (s *memState) LastAlert(_ context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.alerts[string(fuel)+":"+string(metric)+":"+string(level)]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (s *memState) MarkAlert(_ context.Context, fuel models.FuelType, metric models.MetricKind, level models.AlertLevel, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[string(fuel)+":"+string(metric)+":"+string(level)] = at
	return nil
}

func (s *memState) Close() error { return nil }

type memMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemMetrics() *memMetrics {
	return &memMetrics{counts: make(map[string]int)}
}

func (m *memMetrics) bump(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *memMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *memMetrics) RecordPipelineRun(fuel, outcome string) { m.bump("run:" + fuel + ":" + outcome) }
func (m *memMetrics) RecordMBE(fuel string, _ float64)       { m.bump("mbe:" + fuel) }
func (m *memMetrics) RecordRiskScore(fuel string, _ float64) { m.bump("risk:" + fuel) }

func (m *memMetrics) RecordAlert(fuel, metric, level, action string) {
	m.bump("alert:" + metric + ":" + level + ":" + action)
}

func (m *memMetrics) RecordError(kind string)       { m.bump("error:" + kind) }
func (m *memMetrics) RecordLatency(string, float64) {}

type pipelineFixture struct {
	store   *memStore
	alerts  *memAlerts
	state   *memState
	metrics *memMetrics
	pipe    *SignalPipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:   newMemStore(),
		alerts:  &memAlerts{},
		state:   newMemState(),
		metrics: newMemMetrics(),
	}
	f.pipe = NewSignalPipeline(f.store, f.store, f.alerts, f.state, f.metrics, testLogger(t), 30)
	return f
}

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// benzinDay builds a market row with FX fixed at 35.40, which divides the
// benzin density to an exact 0.03 TL/liter per CIF dollar.
func benzinDay(t *testing.T, n int, cif, pump string) *models.MarketDay {
	t.Helper()
	c := dec(t, cif)
	return &models.MarketDay{
		Date:      day(n),
		Fuel:      models.FuelBenzin,
		PumpPrice: dec(t, pump),
		CIF:       &c,
		FX:        dec(t, "35.40"),
		Taxes: models.TaxRates{
			OTV: dec(t, "2.4835"),
			KDV: dec(t, "0.20"),
		},
	}
}

func TestRunDaySteadyMarket(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// pump 25.78 is the theoretical price at CIF 600, so the cost-base
	// effect stays near zero
	for n := 0; n < 3; n++ {
		f.store.addDay(benzinDay(t, n, "600.00", "25.78"))
	}
	for n := 0; n < 3; n++ {
		require.NoError(t, f.pipe.RunDay(ctx, day(n), models.FuelBenzin))
	}

	require.Len(t, f.store.mbeRows, 3)
	require.Len(t, f.store.snaps, 3)
	require.Len(t, f.store.risks, 3)

	first := f.store.mbeRows[0]
	assert.True(t, first.NCForward.Equal(dec(t, "18")), "got %s", first.NCForward)
	assert.True(t, first.NCBase.Equal(dec(t, "17.99983333")), "got %s", first.NCBase)
	assert.True(t, first.MBE.Equal(dec(t, "0.00016667")), "got %s", first.MBE)
	assert.Equal(t, 0, first.SinceLastChangeDays)
	assert.Equal(t, sourcePipeline, first.Source)

	// no change, so the counter advances day over day
	assert.Equal(t, 1, f.store.mbeRows[1].SinceLastChangeDays)
	assert.Equal(t, 2, f.store.mbeRows[2].SinceLastChangeDays)

	assert.Empty(t, f.alerts.events)
	assert.Empty(t, f.store.delays)
	assert.Equal(t, 3, f.metrics.count("run:benzin:ok"))

	var st pipelineState
	require.NoError(t, json.Unmarshal(f.state.trackers[models.FuelBenzin], &st))
	assert.Equal(t, models.DelayIdle, st.Tracker.State)
}

func TestRunDayCostSpikeOpensAlerts(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.store.addDay(benzinDay(t, 0, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 1, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 2, "700.00", "25.78"))
	for n := 0; n < 3; n++ {
		require.NoError(t, f.pipe.RunDay(ctx, day(n), models.FuelBenzin))
	}

	// forward jumps to 21.00, the shrinking 5-day average reads 19.00
	// and the effect clears one lira over the base
	spike := f.store.mbeRows[2]
	assert.True(t, spike.NCForward.Equal(dec(t, "21")), "got %s", spike.NCForward)
	assert.True(t, spike.MBE.Equal(dec(t, "1.00016667")), "got %s", spike.MBE)

	// mbe, breach and momentum components saturate: 0.30+0.20+0.15
	composite := f.store.risks[2].Composite
	assert.True(t, composite.Equal(dec(t, "0.6500")), "got %s", composite)

	// risk warning plus both mbe bands open; risk critical stays shut
	require.Len(t, f.alerts.events, 3)
	var actions []string
	for _, e := range f.alerts.events {
		assert.Equal(t, "open", e.Action)
		actions = append(actions, string(e.Metric)+":"+string(e.Level))
	}
	assert.ElementsMatch(t, []string{
		"risk_score:warning",
		"mbe_value:warning",
		"mbe_value:critical",
	}, actions)
	assert.Equal(t, 1, f.metrics.count("alert:risk_score:warning:open"))

	// the delay tracker opened a watch episode on the cross
	require.Len(t, f.store.delays, 1)
	assert.Equal(t, string(models.DelayWatching), f.store.delays[0].Status)
	assert.True(t, f.store.delays[0].ExpectedChangeDate.Equal(day(2)))

	var st pipelineState
	require.NoError(t, json.Unmarshal(f.state.trackers[models.FuelBenzin], &st))
	assert.Equal(t, models.DelayWatching, st.Tracker.State)
	assert.True(t, st.ActiveAlerts["risk_score:warning"])
	assert.False(t, st.ActiveAlerts["risk_score:critical"])
}

func TestRunDayPriceChangeClosesEpisode(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.store.addDay(benzinDay(t, 0, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 1, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 2, "700.00", "25.78"))
	// pump catches up to the new cost level
	f.store.addDay(benzinDay(t, 3, "700.00", "29.38"))
	for n := 0; n < 4; n++ {
		require.NoError(t, f.pipe.RunDay(ctx, day(n), models.FuelBenzin))
	}

	// the change day rebases the anchor and resets the counter
	changed := f.store.mbeRows[3]
	assert.Equal(t, 0, changed.SinceLastChangeDays)
	assert.True(t, changed.NCBase.Equal(dec(t, "20.99983333")), "got %s", changed.NCBase)

	// watch episode closed by the change after one day
	require.Len(t, f.store.delays, 2)
	closed := f.store.delays[1]
	assert.Equal(t, string(models.DelayClosed), closed.Status)
	assert.Equal(t, 1, closed.DelayDays)
	assert.True(t, closed.ExpectedChangeDate.Equal(day(2)))
	require.NotNil(t, closed.ActualChangeDate)
	assert.True(t, closed.ActualChangeDate.Equal(day(3)))

	var st pipelineState
	require.NoError(t, json.Unmarshal(f.state.trackers[models.FuelBenzin], &st))
	assert.Equal(t, models.DelayIdle, st.Tracker.State)
}

func TestRunDayBrentFallback(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	d := benzinDay(t, 0, "0", "25.78")
	d.CIF = nil
	brent := dec(t, "100.00")
	d.Brent = &brent
	f.store.addDay(d)

	require.NoError(t, f.pipe.RunDay(ctx, day(0), models.FuelBenzin))

	// 100 bbl * 7.33 = 733 USD/ton, 733 * 0.03 = 21.99 TL/liter
	require.Len(t, f.store.mbeRows, 1)
	assert.True(t, f.store.mbeRows[0].NCForward.Equal(dec(t, "21.99")),
		"got %s", f.store.mbeRows[0].NCForward)
}

func TestRunDayNoBenchmarkFails(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	d := benzinDay(t, 0, "0", "25.78")
	d.CIF = nil
	d.Brent = nil
	f.store.addDay(d)

	err := f.pipe.RunDay(ctx, day(0), models.FuelBenzin)
	require.Error(t, err)
	assert.Equal(t, 1, f.metrics.count("error:benchmark_missing"))
	assert.Equal(t, 1, f.metrics.count("run:benzin:error"))
}

func TestRunDayCooldownSuppressesRepeatOpen(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// a fresh alert of every kind fired moments before the run
	for _, def := range f.pipe.thresholds {
		require.NoError(t, f.state.MarkAlert(ctx, models.FuelBenzin, def.Metric, def.Level, day(2)))
	}

	f.store.addDay(benzinDay(t, 0, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 1, "600.00", "25.78"))
	f.store.addDay(benzinDay(t, 2, "700.00", "25.78"))
	for n := 0; n < 3; n++ {
		require.NoError(t, f.pipe.RunDay(ctx, day(n), models.FuelBenzin))
	}

	// bands opened in the state, but no events went out
	assert.Empty(t, f.alerts.events)
	var st pipelineState
	require.NoError(t, json.Unmarshal(f.state.trackers[models.FuelBenzin], &st))
	assert.True(t, st.ActiveAlerts["risk_score:warning"])
}

func TestRunnerCoversAllFuels(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.store.addDay(benzinDay(t, 0, "600.00", "25.78"))
	motorin := benzinDay(t, 0, "620.00", "25.78")
	motorin.Fuel = models.FuelMotorin
	motorin.Taxes.OTV = dec(t, "2.1079")
	f.store.addDay(motorin)

	runner := NewRunner(f.pipe, []string{"benzin", "motorin"}, testLogger(t))
	require.NoError(t, runner.RunAll(ctx, day(0)))

	assert.Equal(t, 1, f.metrics.count("run:benzin:ok"))
	assert.Equal(t, 1, f.metrics.count("run:motorin:ok"))
	require.Len(t, f.store.mbeRows, 2)
}
