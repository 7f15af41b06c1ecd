// Package provider exposes one data family through the resource
// addressing scheme: reads go through the planner, writes through the
// mutation gateway.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"transitstore.org/internal/dataset"
	"transitstore.org/internal/logging"
	"transitstore.org/internal/metrics"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/notify"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

// Family is a data family: its on-disk schema plus its resource table.
// Entries may register open hooks on the store.
type Family interface {
	transitdb.Schema
	Entries(store *transitdb.Store) []planner.Entry
}

// Provider serves every resource of one family.
type Provider struct {
	family   Family
	store    *transitdb.Store
	table    *planner.Table
	gateway  *mutation.Gateway
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds the resource table of f on top of store. It panics when the
// family's table is malformed.
func New(f Family, store *transitdb.Store, n *notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Provider {
	table := planner.NewTable(f.Authority())
	table.MustRegister(f.Entries(store)...)
	table.MustRegister(metaEntries(store)...)

	return &Provider{
		family:   f,
		store:    store,
		table:    table,
		gateway:  mutation.New(table, store, n, m, logger),
		notifier: n,
		metrics:  m,
		logger:   logging.Component(logger, "provider").With(slog.String("family", f.Authority())),
	}
}

func (p *Provider) Authority() string {
	return p.family.Authority()
}

func (p *Provider) Store() *transitdb.Store {
	return p.store
}

func (p *Provider) Table() *planner.Table {
	return p.table
}

// Query reads the resource at u.
func (p *Provider) Query(ctx context.Context, u resource.URI, q planner.Query) (*planner.ResultSet, error) {
	start := time.Now()
	m, e, err := p.table.Resolve(u)
	if err != nil {
		p.metrics.ObserveQuery(p.Authority(), "unknown", time.Since(start), err)
		return nil, err
	}

	var rs *planner.ResultSet
	if e.Compute != nil {
		rs, err = e.Compute(ctx, p.open, m)
	} else {
		rs, err = p.run(ctx, m, q)
	}
	p.metrics.ObserveQuery(p.Authority(), string(m.Tag), time.Since(start), err)
	if err != nil {
		logging.LogError(p.logger, "query failed", err, slog.String("uri", u.String()))
		return nil, err
	}
	return rs, nil
}

func (p *Provider) run(ctx context.Context, m resource.Match, q planner.Query) (*planner.ResultSet, error) {
	plan, err := p.table.Plan(m, q)
	if err != nil {
		return nil, err
	}
	db, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("executing plan", slog.String("sql", plan.SQL), slog.Any("args", plan.Args))
	return planner.Execute(ctx, db, plan)
}

// open probes the store for a replaced file before handing out the handle.
func (p *Provider) open(ctx context.Context) (planner.Querier, error) {
	p.store.HealthCheck(ctx)
	return p.store.Get(ctx)
}

// Type returns the coarse type string of the resource at u.
func (p *Provider) Type(u resource.URI) (string, error) {
	return p.table.Type(u)
}

func (p *Provider) Insert(ctx context.Context, u resource.URI, v mutation.Values) (resource.URI, error) {
	return p.gateway.Insert(ctx, u, v)
}

func (p *Provider) BulkInsert(ctx context.Context, u resource.URI, rows []mutation.Values) (int, error) {
	return p.gateway.BulkInsert(ctx, u, rows)
}

func (p *Provider) Replace(ctx context.Context, u resource.URI, rows []mutation.Values) (int, error) {
	return p.gateway.Replace(ctx, u, rows)
}

func (p *Provider) Delete(ctx context.Context, u resource.URI) (int64, error) {
	return p.gateway.Delete(ctx, u)
}

func (p *Provider) Update(ctx context.Context, u resource.URI, v mutation.Values) (int64, error) {
	return p.gateway.Update(ctx, u, v)
}

// Install replaces the family's database with a deployed dataset read from
// src and publishes a change for the whole family.
func (p *Provider) Install(ctx context.Context, src io.Reader) error {
	if err := dataset.Install(ctx, p.store, src); err != nil {
		return fmt.Errorf("install %s: %w", p.Authority(), err)
	}
	p.notifier.Publish(resource.New(p.Authority()))
	return nil
}

// Close releases the store handle.
func (p *Provider) Close() error {
	return p.store.Close()
}
