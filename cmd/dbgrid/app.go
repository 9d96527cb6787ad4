package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/internal/config"
	"github.com/redbco/dbgrid/internal/database"
	"github.com/redbco/dbgrid/internal/service"
	"github.com/redbco/dbgrid/pkg/logger"
)

// app is the runtime wiring shared by every command.
var app *App

// App holds the objects one CLI invocation works with.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Bridge  *bridge.Manager
	Pool    *database.Pool
	Service *service.Service
	Metrics *prometheus.Registry
	out     io.Writer
}

func defaultConfigPath() string {
	return config.DefaultPath()
}

// newApp loads the configuration and wires the pool and the service. A
// missing config file is only an error when the path was given explicitly.
// showMetrics turns pool metrics on regardless of the config.
func newApp(path string, explicit bool, level string, showMetrics bool) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	log := logger.New(cfg.Logging.ServiceName, Version)
	log.SetOutput(os.Stderr)
	lv, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lv)

	manager := bridge.NewManager(cfg.Bridge.ManagerOptions(log))

	var registry *prometheus.Registry
	opts := database.PoolOptions{Logger: log}
	if cfg.Pool.Metrics || showMetrics {
		registry = prometheus.NewRegistry()
		opts.Registerer = registry
	}
	deps := database.Dependencies{Logger: log, Bridge: manager}
	opts.Factory = database.NewFactory(deps)
	pool, err := database.NewPool(opts)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:  cfg,
		Logger:  log,
		Bridge:  manager,
		Pool:    pool,
		Service: service.New(pool, cfg, database.NewFactory(deps), log),
		Metrics: registry,
		out:     os.Stdout,
	}, nil
}

// Close disconnects every pooled connection and stops a helper this
// invocation started.
func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.Pool.CloseAll(ctx)
	if a.Bridge.State() != bridge.StateNotStarted {
		if serr := a.Bridge.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// WriteMetrics writes the pool metrics in the Prometheus text format.
func (a *App) WriteMetrics(w io.Writer) error {
	if a.Metrics == nil {
		return nil
	}
	families, err := a.Metrics.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// printJSON writes v as indented JSON.
func (a *App) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}
