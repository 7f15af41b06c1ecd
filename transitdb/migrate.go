package transitdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"transitstore.org/internal/logging"
)

// Lifecycle outcomes of opening a store, also used as metric labels.
const (
	OpenKindCurrent = "current"
	OpenKindCreate  = "create"
	OpenKindUpgrade = "upgrade"
	OpenKindReset   = "reset"
)

// MigrationPath returns the steps leading from version from to version to,
// one per version gap. ok is false when any gap has no step or when the
// path would go backwards.
func MigrationPath(steps []Migration, from, to int) ([]Migration, bool) {
	if from > to {
		return nil, false
	}
	byVersion := make(map[int]Migration, len(steps))
	for _, s := range steps {
		byVersion[s.To] = s
	}
	path := make([]Migration, 0, to-from)
	for v := from + 1; v <= to; v++ {
		s, ok := byVersion[v]
		if !ok {
			return nil, false
		}
		path = append(path, s)
	}
	return path, true
}

// Migrate brings db to the schema's version inside one transaction: create
// when empty, apply the contiguous upgrade steps when they exist, otherwise
// drop every table and recreate.
func Migrate(ctx context.Context, db *sql.DB, schema Schema, logger *slog.Logger) (string, error) {
	current, err := UserVersion(ctx, db)
	if err != nil {
		return "", err
	}
	target := schema.Version()
	if current == target {
		return OpenKindCurrent, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin migration: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "migrate")

	tables, err := userTables(ctx, tx)
	if err != nil {
		return "", err
	}

	kind := OpenKindUpgrade
	path, ok := MigrationPath(schema.Migrations(), current, target)
	switch {
	case current == 0 && len(tables) == 0:
		kind = OpenKindCreate
		err = Exec(schema.Create()...)(ctx, tx)
	case current == 0 || !ok:
		kind = OpenKindReset
		err = reset(ctx, tx, schema, tables)
	default:
		for _, step := range path {
			if err = step.Apply(ctx, tx); err != nil {
				err = fmt.Errorf("migration %d (%s): %w", step.To, step.Name, err)
				break
			}
			logging.LogOperation(logger, "migration_step_applied",
				slog.Int("to", step.To),
				slog.String("name", step.Name))
		}
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return "", fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit migration: %w", err)
	}

	logging.LogOperation(logger, "schema_migrated",
		slog.String("kind", kind),
		slog.Int("from", current),
		slog.Int("to", target))
	return kind, nil
}

func reset(ctx context.Context, tx *sql.Tx, schema Schema, tables []string) error {
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t)); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	return Exec(schema.Create()...)(ctx, tx)
}

// UserVersion reads PRAGMA user_version.
func UserVersion(ctx context.Context, q queryRower) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}
