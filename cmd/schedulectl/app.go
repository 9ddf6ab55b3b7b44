package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/libschedule/config"
	"github.com/cyp0633/libschedule/internal/eventfile"
	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/service"
	"github.com/cyp0633/libschedule/storage"
	"github.com/cyp0633/libschedule/storage/memory"
	"github.com/cyp0633/libschedule/storage/sqlite"
)

// app holds everything a command needs. Close releases it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Storage
	rules   *recurrence.Engine
	engine  *schedule.Engine
	svc     *service.Service
	closers []func() error
}

type appOptions struct {
	configPath string
	eventsPath string
	logLevel   string
	stderr     io.Writer
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(opts.stderr, &slog.HandlerOptions{Level: level}))

	policy, err := cfg.ZonePolicy()
	if err != nil {
		return nil, err
	}
	rc, err := cfg.RecurrenceConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.rules = recurrence.NewEngineWithConfig(rc, recurrence.WithLogger(logger))
	a.closers = append(a.closers, func() error { a.rules.Close(); return nil })
	a.engine = schedule.NewEngine(
		schedule.WithRuleEngine(a.rules),
		schedule.WithZonePolicy(policy),
		schedule.WithLogger(logger),
	)

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Storage.DSN, sqlite.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	default:
		a.store = memory.New()
	}

	a.svc = service.New(a.store, a.engine,
		service.WithLogger(logger),
		service.WithConcurrency(cfg.Concurrency))

	if opts.eventsPath != "" {
		f, err := eventfile.Load(opts.eventsPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := f.Import(ctx, a.store); err != nil {
			a.Close()
			return nil, fmt.Errorf("import %s: %w", opts.eventsPath, err)
		}
		logger.Debug("events imported", "path", opts.eventsPath, "events", len(f.Events))
	}

	logger.Debug("schedulectl ready",
		"driver", cfg.Storage.Driver,
		"preset", cfg.Engine.Preset,
		"allow_naive", policy.AllowNaive)
	return a, nil
}

// Close runs the closers in reverse order.
func (a *app) Close() error {
	if stats := a.rules.CacheStats(); stats.Hits+stats.Misses > 0 {
		a.logger.Debug("rule cache", "hits", stats.Hits, "misses", stats.Misses, "entries", stats.ActiveEntries)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.logger.Debug("schedulectl closed")
	return errors.Join(errs...)
}
