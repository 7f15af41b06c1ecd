// Package mutation applies inserts and deletes to the writable resources of
// a data family and publishes the identifiers it changed.
package mutation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"transitstore.org/internal/logging"
	"transitstore.org/internal/metrics"
	"transitstore.org/internal/notify"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

// ErrInsertFailed is returned when the store rejects a row or yields no id.
var ErrInsertFailed = errors.New("insert failed")

// Values maps column names to the values written.
type Values map[string]any

// Gateway is the write path of one data family.
type Gateway struct {
	table    *planner.Table
	store    *transitdb.Store
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(table *planner.Table, store *transitdb.Store, notifier *notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		table:    table,
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logging.Component(logger, "mutation_gateway").With(slog.String("family", table.Authority())),
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (g *Gateway) writable(u resource.URI, op string, allowed func(*planner.WriteSpec) bool) (resource.Match, *planner.Entry, error) {
	m, e, err := g.table.Resolve(u)
	if err != nil {
		return resource.Match{}, nil, err
	}
	if e.Write == nil || !allowed(e.Write) {
		return resource.Match{}, nil, fmt.Errorf("%w: %s not allowed on %s", resource.ErrUnknownResource, op, u)
	}
	return m, e, nil
}

// Insert writes one row and returns the identifier of the new item.
func (g *Gateway) Insert(ctx context.Context, u resource.URI, v Values) (resource.URI, error) {
	id, err := g.insert(ctx, u, v)
	g.metrics.ObserveMutation(g.table.Authority(), "insert", err)
	if err != nil {
		return resource.URI{}, err
	}
	item := u.Append(strconv.FormatInt(id, 10))
	g.notifier.Publish(item)
	return item, nil
}

func (g *Gateway) insert(ctx context.Context, u resource.URI, v Values) (int64, error) {
	_, e, err := g.writable(u, "insert", func(w *planner.WriteSpec) bool { return w.Insert })
	if err != nil {
		return 0, err
	}
	stmt, args, err := insertStatement(e.Write, v)
	if err != nil {
		return 0, err
	}
	db, err := g.store.Get(ctx)
	if err != nil {
		return 0, err
	}
	return execInsert(ctx, db, u, stmt, args)
}

// BulkInsert writes every row in one transaction. Either all rows are
// stored or none.
func (g *Gateway) BulkInsert(ctx context.Context, u resource.URI, rows []Values) (int, error) {
	n, err := g.bulk(ctx, u, rows, false)
	g.metrics.ObserveMutation(g.table.Authority(), "bulk_insert", err)
	return n, err
}

// Replace deletes every row of the resource and inserts rows in the same
// transaction, the refresh cycle of snapshot data.
func (g *Gateway) Replace(ctx context.Context, u resource.URI, rows []Values) (int, error) {
	n, err := g.bulk(ctx, u, rows, true)
	g.metrics.ObserveMutation(g.table.Authority(), "replace", err)
	return n, err
}

func (g *Gateway) bulk(ctx context.Context, u resource.URI, rows []Values, replace bool) (int, error) {
	op := "bulk_insert"
	allowed := func(w *planner.WriteSpec) bool { return w.Insert }
	if replace {
		op = "replace"
		allowed = func(w *planner.WriteSpec) bool { return w.Insert && w.Delete }
	}
	_, e, err := g.writable(u, op, allowed)
	if err != nil {
		return 0, err
	}

	type prepared struct {
		stmt string
		args []any
	}
	stmts := make([]prepared, len(rows))
	for i, v := range rows {
		if stmts[i].stmt, stmts[i].args, err = insertStatement(e.Write, v); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	db, err := g.store.Get(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = transitdb.WithTx(ctx, db, g.logger, op, func(tx *sql.Tx) error {
		if replace {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+e.Write.Table)
			if err != nil {
				return fmt.Errorf("clear %s: %w", e.Write.Table, err)
			}
			deleted, _ = res.RowsAffected()
		}
		for i, p := range stmts {
			if _, err := execInsert(ctx, tx, u, p.stmt, p.args); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.LogOperation(g.logger, op,
		slog.String("uri", u.String()),
		slog.Int("rows", len(rows)),
		slog.Int64("deleted", deleted))
	if deleted > 0 || len(rows) > 0 {
		g.notifier.Publish(u)
	}
	return len(rows), nil
}

// Delete removes the rows the identifier selects and returns their count.
func (g *Gateway) Delete(ctx context.Context, u resource.URI) (int64, error) {
	n, err := g.delete(ctx, u)
	g.metrics.ObserveMutation(g.table.Authority(), "delete", err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.notifier.Publish(u)
	}
	return n, nil
}

func (g *Gateway) delete(ctx context.Context, u resource.URI) (int64, error) {
	m, e, err := g.writable(u, "delete", func(w *planner.WriteSpec) bool { return w.Delete })
	if err != nil {
		return 0, err
	}
	where := planner.Clause{}
	if e.Where != nil {
		if where, err = e.Where(m); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", resource.ErrUnknownResource, u, err)
		}
	}
	stmt := "DELETE FROM " + e.Write.Table
	if !where.Empty() {
		stmt += " WHERE " + where.SQL
	}

	db, err := g.store.Get(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, stmt, where.Args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", u, err)
	}
	return res.RowsAffected()
}

// Update is not supported by any resource: it changes nothing and reports
// zero rows. Callers delete and re-insert instead.
func (g *Gateway) Update(ctx context.Context, u resource.URI, v Values) (int64, error) {
	if _, _, err := g.table.Resolve(u); err != nil {
		g.metrics.ObserveMutation(g.table.Authority(), "update", err)
		return 0, err
	}
	logging.LogWarning(g.logger, "update is not supported, nothing changed",
		slog.String("uri", u.String()),
		slog.Int("columns", len(v)))
	g.metrics.ObserveMutation(g.table.Authority(), "update", nil)
	return 0, nil
}

func insertStatement(w *planner.WriteSpec, v Values) (string, []any, error) {
	if len(v) == 0 {
		return "INSERT INTO " + w.Table + " DEFAULT VALUES", nil, nil
	}
	cols := make([]string, 0, len(v))
	for c := range v {
		if !w.Writable(c) {
			return "", nil, fmt.Errorf("%w: %q is not writable in %s", planner.ErrInvalidColumn, c, w.Table)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = v[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.Table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return stmt, args, nil
}

func execInsert(ctx context.Context, db execer, u resource.URI, stmt string, args []any) (int64, error) {
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		if IsConstraint(err) {
			return 0, fmt.Errorf("%w: %s: %v", ErrInsertFailed, u, err)
		}
		return 0, fmt.Errorf("insert %s: %w", u, err)
	}
	id, err := res.LastInsertId()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s: no row id", ErrInsertFailed, u)
	}
	return id, nil
}

// IsConstraint reports whether err is an SQLite constraint violation.
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
