package transitdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"transitstore.org/internal/logging"
)

// ColumnInfo is one row of PRAGMA table_info.
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	Default    string
	PrimaryKey int
}

// IndexInfo is one index with the columns it covers.
type IndexInfo struct {
	Name    string
	Unique  bool
	Columns []string
}

// TableInfo is the structural fingerprint of one table.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
	Indexes []IndexInfo
}

// Describe fingerprints every user table so two databases can be compared
// structurally, independent of the DDL text that produced them.
func Describe(ctx context.Context, db querier) ([]TableInfo, error) {
	tables, err := userTables(ctx, db)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With(slog.String("component", "debugging"))

	out := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		info := TableInfo{Name: t}
		if info.Columns, err = tableColumns(ctx, db, t); err != nil {
			return nil, err
		}
		if info.Indexes, err = tableIndexes(ctx, db, t, logger); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func tableColumns(ctx context.Context, db querier, table string) ([]ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			c       ColumnInfo
			notNull int
			dflt    *string
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		c.Type = strings.ToUpper(c.Type)
		c.NotNull = notNull != 0
		if dflt != nil {
			c.Default = *dflt
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func tableIndexes(ctx context.Context, db querier, table string, logger *slog.Logger) ([]IndexInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("index_list %s: %w", table, err)
	}

	var (
		indexes []IndexInfo
		auto    []bool
	)
	for rows.Next() {
		var (
			seq     int
			idx     IndexInfo
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &idx.Name, &unique, &origin, &partial); err != nil {
			logging.SafeCloseWithLogging(rows, logger, "database_rows")
			return nil, fmt.Errorf("scan index_list %s: %w", table, err)
		}
		idx.Unique = unique != 0
		indexes = append(indexes, idx)
		auto = append(auto, origin != "c")
	}
	err = rows.Err()
	logging.SafeCloseWithLogging(rows, logger, "database_rows")
	if err != nil {
		return nil, err
	}

	for i := range indexes {
		if indexes[i].Columns, err = indexColumns(ctx, db, indexes[i].Name, logger); err != nil {
			return nil, err
		}
		// Auto index names depend on declaration order.
		if auto[i] {
			indexes[i].Name = ""
		}
	}
	sort.Slice(indexes, func(a, b int) bool {
		if indexes[a].Name != indexes[b].Name {
			return indexes[a].Name < indexes[b].Name
		}
		return strings.Join(indexes[a].Columns, ",") < strings.Join(indexes[b].Columns, ",")
	})
	return indexes, nil
}

func indexColumns(ctx context.Context, db querier, index string, logger *slog.Logger) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(index)))
	if err != nil {
		return nil, fmt.Errorf("index_info %s: %w", index, err)
	}
	defer logging.SafeCloseWithLogging(rows, logger, "database_rows")

	var cols []string
	for rows.Next() {
		var (
			seqno, cid int
			name       *string
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("scan index_info %s: %w", index, err)
		}
		if name != nil {
			cols = append(cols, *name)
		}
	}
	return cols, rows.Err()
}

// TableCounts returns the row count of every user table.
func TableCounts(ctx context.Context, db querier) (map[string]int, error) {
	tables, err := userTables(ctx, db)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		rows, err := db.QueryContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t))
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		if rows.Next() {
			err = rows.Scan(&n)
		}
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}

// PrintSimpleSchema writes the DDL of every schema object to w.
func PrintSimpleSchema(ctx context.Context, db querier, w io.Writer) error {
	rows, err := db.QueryContext(ctx, `
		SELECT type, name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'view', 'trigger')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name
	`)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	for rows.Next() {
		var objType, objName, objSQL string
		if err := rows.Scan(&objType, &objName, &objSQL); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n%s\n\n", strings.ToUpper(objType), objName, objSQL); err != nil {
			return err
		}
	}
	return rows.Err()
}
