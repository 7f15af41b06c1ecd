package planner

import (
	"context"
	"fmt"
	"strconv"

	"transitstore.org/internal/resource"
)

// ResultSet is the tabular answer to a read, tagged with the identifier it
// was produced for so callers can watch it for changes.
type ResultSet struct {
	Origin  resource.URI
	Tag     resource.Tag
	Columns []string
	Rows    [][]any
}

// NewResultSet builds a result set from literal rows.
func NewResultSet(origin resource.URI, tag resource.Tag, columns []string, rows ...[]any) *ResultSet {
	return &ResultSet{Origin: origin, Tag: tag, Columns: columns, Rows: rows}
}

func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// Index returns the position of column, or -1.
func (rs *ResultSet) Index(column string) int {
	for i, c := range rs.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Value returns the raw value of column in row.
func (rs *ResultSet) Value(row int, column string) (any, bool) {
	i := rs.Index(column)
	if i < 0 || row < 0 || row >= len(rs.Rows) {
		return nil, false
	}
	return rs.Rows[row][i], true
}

// Text renders the value of column in row, "" for NULL or missing.
func (rs *ResultSet) Text(row int, column string) string {
	v, ok := rs.Value(row, column)
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Int64 returns the value of column in row as an integer.
func (rs *ResultSet) Int64(row int, column string) (int64, bool) {
	v, ok := rs.Value(row, column)
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float64 returns the value of column in row as a float.
func (rs *ResultSet) Float64(row int, column string) (float64, bool) {
	v, ok := rs.Value(row, column)
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// Column returns every value of column rendered as strings.
func (rs *ResultSet) Column(column string) []string {
	out := make([]string, len(rs.Rows))
	for i := range rs.Rows {
		out[i] = rs.Text(i, column)
	}
	return out
}

// Maps converts the rows into column-keyed maps.
func (rs *ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, len(rs.Rows))
	for i, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for j, c := range rs.Columns {
			m[c] = row[j]
		}
		out[i] = m
	}
	return out
}

// Execute runs a plan and reads every row.
func Execute(ctx context.Context, db Querier, p *Plan) (*ResultSet, error) {
	rows, err := db.QueryContext(ctx, p.SQL, p.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.Origin, err)
	}
	defer func() { _ = rows.Close() }()

	rs := &ResultSet{Origin: p.Origin, Tag: p.Tag, Columns: p.Columns}
	for rows.Next() {
		vals := make([]any, len(p.Columns))
		ptrs := make([]any, len(p.Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.Origin, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Origin, err)
	}
	return rs, nil
}
