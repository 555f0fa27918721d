package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"PumpWatch/internal/backtest"
	"PumpWatch/internal/domain/models"
	"PumpWatch/pkg/logger"
)

// BacktestRunner replays the synthetic scenarios through the engines,
// evaluates the go/no-go criteria and writes the markdown report artifact.
type BacktestRunner struct {
	fuels      []models.FuelType
	reportPath string
	log        *logger.Logger
}

func NewBacktestRunner(fuels []string, reportPath string, log *logger.Logger) *BacktestRunner {
	fts := make([]models.FuelType, 0, len(fuels))
	for _, f := range fuels {
		fts = append(fts, models.FuelType(f))
	}
	return &BacktestRunner{fuels: fts, reportPath: reportPath, log: log}
}

// Execute runs the full harness and returns the evaluation. The report file
// is written even on NO-GO so the failing criteria are inspectable.
func (b *BacktestRunner) Execute(ctx context.Context) (*backtest.EvaluationReport, error) {
	start := time.Now()
	run, err := backtest.Run(ctx, b.fuels)
	if err != nil {
		return nil, fmt.Errorf("backtest run: %w", err)
	}

	report, err := backtest.Evaluate(run)
	if err != nil {
		return nil, fmt.Errorf("backtest evaluate: %w", err)
	}

	if b.reportPath != "" {
		if err := os.WriteFile(b.reportPath, []byte(report.Markdown), 0o644); err != nil {
			return nil, fmt.Errorf("write report %s: %w", b.reportPath, err)
		}
	}

	b.log.Info("backtest finished",
		logger.Int("scenarios", len(report.Scenarios)),
		logger.Bool("go", report.OverallGo),
		logger.String("report", b.reportPath),
		logger.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}
