package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dailysend/internal/config"
	"github.com/dailysend/internal/dispatch"
	"github.com/dailysend/internal/handler"
	"github.com/dailysend/internal/mailer"
	"github.com/dailysend/internal/metrics"
)

type App struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	mailer   *mailer.Mailer
	loop     *dispatch.Loop
	runs     *handler.Registry
}

// New loads the configuration from args and the environment and wires the
// mailer, dispatch loop and metrics together.
func New(args []string) (*App, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := NewLogger(os.Stdout, cfg.IsDevelopment())

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := mailer.New(mailer.WithLogger(logger))
	loop := dispatch.NewLoop(m).
		WithPace(cfg.SendPace).
		WithMetrics(metrics.NewPrometheusSink(reg)).
		WithLogger(logger)

	return &App{
		config:   cfg,
		logger:   logger,
		registry: reg,
		mailer:   m,
		loop:     loop,
		runs:     handler.NewRegistry(),
	}, nil
}

// Start serves the web form until ctx is done. Passes started from the form
// run under ctx too, so shutting down interrupts them between recipients.
func (app *App) Start(ctx context.Context) error {
	// Create an errgroup derived from the parent context
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", app.config.Port),
		Handler:      app.routes(gctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done() // Wait for OS signal or the listener to fail

		app.logger.Info("shutting down server", "active_runs", app.runs.Active())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo

	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
