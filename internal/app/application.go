// Package app wires the data families, their stores and the shared
// notifier into one Application used by the CLI and the HTTP surface.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"transitstore.org/internal/appconf"
	"transitstore.org/internal/clock"
	"transitstore.org/internal/families/stm"
	"transitstore.org/internal/families/transit"
	"transitstore.org/internal/families/userdata"
	"transitstore.org/internal/metrics"
	"transitstore.org/internal/notify"
	"transitstore.org/internal/provider"
	"transitstore.org/transitdb"
)

const dbStatsInterval = 15 * time.Second

// Application holds the dependencies for our HTTP handlers, commands and
// middleware.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
	Resolver *provider.Resolver
	Transit  *transit.Family
}

// New builds the three families on top of cfg.DataDir. In the test
// environment every store is in memory.
func New(cfg appconf.Config, logger *slog.Logger, c clock.Clock) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c = clock.OrReal(c)
	m := metrics.NewWithLogger(logger)
	n := notify.New(c, logger, m)

	transitFamily := transit.New(cfg.SuggestionLimit)
	families := []provider.Family{transitFamily, stm.New(), userdata.New()}

	providers := make([]*provider.Provider, 0, len(families))
	for _, f := range families {
		storeCfg := transitdb.Config{
			Dir:           cfg.DataDir,
			ProbeInterval: cfg.ProbeInterval,
			Logger:        logger,
			Metrics:       m,
			Clock:         c,
		}
		if cfg.Env == appconf.Test {
			storeCfg.Path = transitdb.MemoryPath
		}
		providers = append(providers, provider.New(f, transitdb.New(f, storeCfg), n, m, logger))
	}

	return &Application{
		Config:   cfg,
		Logger:   logger,
		Clock:    c,
		Metrics:  m,
		Notifier: n,
		Resolver: provider.NewResolver(n, providers...),
		Transit:  transitFamily,
	}, nil
}

// StatsSources exposes the pool statistics of every family's store.
func (app *Application) StatsSources() map[string]metrics.StatsSource {
	sources := make(map[string]metrics.StatsSource)
	for _, p := range app.Resolver.Providers() {
		sources[p.Authority()] = p.Store().Stats
	}
	return sources
}

// StartCollectors begins publishing store pool gauges.
func (app *Application) StartCollectors() {
	app.Metrics.StartDBStatsCollector(app.StatsSources(), dbStatsInterval)
}

// Close stops the collectors and closes every store.
func (app *Application) Close() error {
	app.Metrics.Shutdown()
	return app.Resolver.Close()
}
