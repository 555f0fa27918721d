package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PumpWatch/internal/usecase"
	pkgch "PumpWatch/pkg/clickhouse"
	"PumpWatch/pkg/config"
	xhttp "PumpWatch/pkg/http"
	applogger "PumpWatch/pkg/logger"
	"PumpWatch/pkg/util"
)

// App encapsulates the service lifecycle: the daily evaluation schedule, the
// operational HTTP server and graceful shutdown of the backing clients.
type App struct {
	cfg         *config.Config
	runner      *usecase.Runner
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	log         *applogger.Logger
	closers     []func() error
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	runner *usecase.Runner,
	chClient *pkgch.Client,
	log *applogger.Logger,
) *App {
	return &App{
		cfg:      cfg,
		runner:   runner,
		chClient: chClient,
		log:      log,
	}
}

// SetHTTPHandler allows DI to inject the HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// AddCloser registers a resource to close on shutdown, in reverse order.
func (a *App) AddCloser(close func() error) { a.closers = append(a.closers, close) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	go a.schedule(ctx)
	a.log.Info("scheduler started",
		applogger.String("run_at", a.cfg.Pipeline.RunAt),
		applogger.Strings("fuels", a.cfg.Pipeline.Fuels),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// schedule fires the daily evaluation at the configured wall-clock time and
// then every 24 hours.
func (a *App) schedule(ctx context.Context) {
	for {
		wait := untilNext(a.cfg.Pipeline.RunAt, time.Now().UTC())
		a.log.Info("next pipeline run scheduled",
			applogger.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		date := util.DayOf(time.Now())
		if err := a.runner.RunAll(ctx, date); err != nil {
			a.log.Error("scheduled pipeline run failed", applogger.Error(err))
		}
	}
}

// untilNext returns the duration until the next occurrence of the HH:MM
// wall-clock time, always in the future.
func untilNext(runAt string, now time.Time) time.Duration {
	at, err := time.Parse("15:04", runAt)
	if err != nil {
		return 24 * time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(),
		at.Hour(), at.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
