package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/logger"
)

type stubMarket struct {
	healthErr  error
	lastChange *models.MBERow
}

func (s *stubMarket) MarketDay(context.Context, time.Time, models.FuelType) (*models.MarketDay, error) {
	return nil, nil
}

func (s *stubMarket) PreviousMarketDay(context.Context, time.Time, models.FuelType) (*models.MarketDay, error) {
	return nil, nil
}

func (s *stubMarket) ForwardCostHistory(context.Context, time.Time, models.FuelType, int) ([]models.MBERow, error) {
	return nil, nil
}

func (s *stubMarket) LastPriceChange(context.Context, time.Time, models.FuelType) (*models.MBERow, error) {
	return s.lastChange, nil
}

func (s *stubMarket) FXHistory(context.Context, time.Time, models.FuelType, int) ([]decimal.Decimal, error) {
	return nil, nil
}

func (s *stubMarket) ActiveRegime(context.Context, time.Time) (int, error) { return 0, nil }
func (s *stubMarket) Health(context.Context) error                         { return s.healthErr }
func (s *stubMarket) Close() error                                         { return nil }

type stubResults struct {
	healthErr error
}

func (s *stubResults) StoreSnapshot(context.Context, *models.CostSnapshot) error { return nil }
func (s *stubResults) StoreMBE(context.Context, *models.MBERow) error            { return nil }
func (s *stubResults) StoreRisk(context.Context, *models.RiskRow) error          { return nil }

func (s *stubResults) StoreDelayHistory(context.Context, *models.DelayHistoryRow) error {
	return nil
}
func (s *stubResults) Health(context.Context) error { return s.healthErr }
func (s *stubResults) Close() error                 { return nil }

type stubState struct {
	snapshot []byte
}

func (s *stubState) LoadTracker(context.Context, models.FuelType) ([]byte, error) {
	return s.snapshot, nil
}

func (s *stubState) SaveTracker(context.Context, models.FuelType, []byte) error { return nil }

func (s *stubState) LastAlert(context.Context, models.FuelType, models.MetricKind, models.AlertLevel) (*time.Time, error) {
	return nil, nil
}

func (s *stubState) MarkAlert(context.Context, models.FuelType, models.MetricKind, models.AlertLevel, time.Time) error {
	return nil
}

func (s *stubState) Close() error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestHandler(t *testing.T, market *stubMarket, results *stubResults, state *stubState) *Handler {
	t.Helper()
	return NewHandler(nil, market, results, state, testLogger(t))
}

func TestHealthOK(t *testing.T) {
	h := newTestHandler(t, &stubMarket{}, &stubResults{}, &stubState{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Health(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)
}

func TestHealthDegraded(t *testing.T) {
	h := newTestHandler(t, &stubMarket{healthErr: errors.New("connection refused")}, &stubResults{}, &stubState{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Health(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestFuelStatusUnknownFuel(t *testing.T) {
	h := newTestHandler(t, &stubMarket{}, &stubResults{}, &stubState{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status/kerosene", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("fuel")
	c.SetParamValues("kerosene")

	require.NoError(t, h.FuelStatus(c))
	assert.Contains(t, rec.Body.String(), "unknown fuel")
}

func TestFuelStatusWithLastChange(t *testing.T) {
	last := &models.MBERow{
		Date:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Fuel:   models.FuelBenzin,
		NCBase: decimal.RequireFromString("20.99983333"),
		MBE:    decimal.RequireFromString("-0.12"),
	}
	h := newTestHandler(t,
		&stubMarket{lastChange: last},
		&stubResults{},
		&stubState{snapshot: []byte(`{"tracker":{"state":"idle"}}`)},
	)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status/benzin", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("fuel")
	c.SetParamValues("benzin")

	require.NoError(t, h.FuelStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2026-03-10")
	assert.Contains(t, rec.Body.String(), "20.99983333")
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)
}
