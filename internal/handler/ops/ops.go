// Package ops exposes the operational HTTP surface: health probes, per-fuel
// status and a manual pipeline trigger.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"PumpWatch/internal/domain/models"
	drepo "PumpWatch/internal/domain/repository"
	"PumpWatch/internal/usecase"
	xhttp "PumpWatch/pkg/http"
	"PumpWatch/pkg/logger"
	"PumpWatch/pkg/util"
)

type Handler struct {
	runner  *usecase.Runner
	market  drepo.MarketStore
	results drepo.ResultStore
	state   drepo.TrackerStateStore
	log     *logger.Logger
}

func NewHandler(
	runner *usecase.Runner,
	market drepo.MarketStore,
	results drepo.ResultStore,
	state drepo.TrackerStateStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		runner:  runner,
		market:  market,
		results: results,
		state:   state,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Health)

	g := e.Group("/api/v1")
	g.GET("/status/:fuel", h.FuelStatus)
	g.POST("/pipeline/run", h.TriggerRun)
}

// Health reports the state of every backing store.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"market":  "ok",
		"results": "ok",
	}
	healthy := true
	if err := h.market.Health(ctx); err != nil {
		checks["market"] = err.Error()
		healthy = false
	}
	if err := h.results.Health(ctx); err != nil {
		checks["results"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]interface{}{
		"healthy": healthy,
		"checks":  checks,
	})
}

// FuelStatus returns the most recent price change on record and the current
// delay-tracker snapshot for one fuel.
func (h *Handler) FuelStatus(c echo.Context) error {
	fuel := models.FuelType(c.Param("fuel"))
	switch fuel {
	case models.FuelBenzin, models.FuelMotorin, models.FuelLPG:
	default:
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown fuel %q", c.Param("fuel")))
	}

	ctx := c.Request().Context()
	asOf := xhttp.ParseTimeDefault(c.QueryParam("as_of"), time.Now().UTC())

	lastChange, err := h.market.LastPriceChange(ctx, asOf, fuel)
	if err != nil {
		h.log.Error("status: last price change", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("load status").WithError(err))
	}

	var tracker json.RawMessage
	raw, err := h.state.LoadTracker(ctx, fuel)
	if err != nil {
		h.log.Error("status: load tracker", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if raw != nil {
		tracker = json.RawMessage(raw)
	}

	resp := map[string]interface{}{
		"fuel":    fuel,
		"tracker": tracker,
	}
	if lastChange != nil {
		resp["last_price_change"] = map[string]interface{}{
			"date":    lastChange.Date.Format("2006-01-02"),
			"nc_base": lastChange.NCBase.String(),
			"mbe":     lastChange.MBE.String(),
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

// TriggerRunRequest is the manual trigger payload. An empty date means the
// current UTC day.
type TriggerRunRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// TriggerRun kicks the daily evaluation off for every configured fuel.
func (h *Handler) TriggerRun(c echo.Context) error {
	req := new(TriggerRunRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	date := util.DayOf(time.Now())
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return xhttp.BadRequestResponse(c, "bad date")
		}
		date = parsed
	}

	if err := h.runner.RunAll(c.Request().Context(), date); err != nil {
		h.log.Error("manual pipeline run failed", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"date":   date.Format("2006-01-02"),
		"status": "completed",
	})
}

var _ xhttp.Handler = (*Handler)(nil)
