package transitdb

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration upgrades a database from version To-1 to version To. Apply runs
// inside the upgrade transaction and must be idempotent.
type Migration struct {
	To    int
	Name  string
	Apply func(ctx context.Context, tx *sql.Tx) error
}

// Schema describes one data family's on-disk database.
type Schema interface {
	// Authority is the identifier authority the family answers to.
	Authority() string
	// FileName is the database file name inside the data directory.
	FileName() string
	Label() string
	// Version is the schema version this build expects.
	Version() int
	// Create returns the DDL of the current version.
	Create() []string
	// Migrations lists the single-version upgrade steps in any order.
	Migrations() []Migration
}

// Exec builds a migration step from plain statements.
func Exec(statements ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("error executing statement [%s]: %w", stmt, err)
			}
		}
		return nil
	}
}

// AddColumn returns a step adding a column unless it already exists, so the
// step can be re-run on a partially upgraded file.
func AddColumn(table, column, definition string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		for _, c := range cols {
			if c.Name == column {
				return nil
			}
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing statement [%s]: %w", stmt, err)
		}
		return nil
	}
}

// Steps chains migration steps into one.
func Steps(steps ...func(ctx context.Context, tx *sql.Tx) error) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, step := range steps {
			if err := step(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}
}
