package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/logger"
)

// Runner fans the daily evaluation out across the configured fuels. Fuels
// are independent, so one failing does not stop the others; the first error
// is reported after all finish.
type Runner struct {
	pipeline *SignalPipeline
	fuels    []models.FuelType
	log      *logger.Logger
}

func NewRunner(pipeline *SignalPipeline, fuels []string, log *logger.Logger) *Runner {
	fts := make([]models.FuelType, 0, len(fuels))
	for _, f := range fuels {
		fts = append(fts, models.FuelType(f))
	}
	return &Runner{pipeline: pipeline, fuels: fts, log: log}
}

// RunAll evaluates every fuel for the given date.
func (r *Runner) RunAll(ctx context.Context, date time.Time) error {
	start := time.Now()
	var g errgroup.Group
	for _, fuel := range r.fuels {
		fuel := fuel
		g.Go(func() error {
			if err := r.pipeline.RunDay(ctx, date, fuel); err != nil {
				r.log.Error("pipeline day failed",
					logger.String("fuel", string(fuel)),
					logger.Error(err),
				)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	r.log.Info("pipeline run finished",
		logger.String("date", date.Format("2006-01-02")),
		logger.Int("fuels", len(r.fuels)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return err
}
