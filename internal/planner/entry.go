package planner

import (
	"context"
	"database/sql"
	"strings"

	"transitstore.org/internal/resource"
)

// JoinKind selects the SQL join operator.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftOuterJoin
)

func (k JoinKind) String() string {
	if k == LeftOuterJoin {
		return "LEFT OUTER JOIN"
	}
	return "INNER JOIN"
}

// Join adds one table to a Source.
type Join struct {
	Kind  JoinKind
	Table string
	On    string
}

// Source is the FROM clause of an entry: a table plus an ordered list of joins.
type Source struct {
	Table string
	Joins []Join
}

// SQL renders the FROM clause body.
func (s Source) SQL() string {
	var sb strings.Builder
	sb.WriteString(s.Table)
	for _, j := range s.Joins {
		sb.WriteString(" ")
		sb.WriteString(j.Kind.String())
		sb.WriteString(" ")
		sb.WriteString(j.Table)
		sb.WriteString(" ON ")
		sb.WriteString(j.On)
	}
	return sb.String()
}

// Column maps an output alias to the expression that produces it, so
// same-named columns of joined tables stay independently addressable.
type Column struct {
	Name string
	Expr string
}

// Col is shorthand for Column{name, expr}.
func Col(name, expr string) Column {
	return Column{Name: name, Expr: expr}
}

func (c Column) selectSQL() string {
	if c.Expr == "" || c.Expr == c.Name {
		return c.Name
	}
	return c.Expr + " AS " + c.Name
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// OpenFunc hands a computed entry the store handle on demand, so entries
// that do not need the database never open it.
type OpenFunc func(ctx context.Context) (Querier, error)

// ComputeFunc produces the rows of a resource that is not a plain query.
type ComputeFunc func(ctx context.Context, open OpenFunc, m resource.Match) (*ResultSet, error)

// WriteSpec describes what the mutation gateway may do with an entry.
type WriteSpec struct {
	Table   string
	Columns []string

	// Insert allows inserts and bulk inserts at the entry's identifier.
	Insert bool
	// Delete allows deleting the rows the entry's Where selects, every row
	// of Table when the entry has no Where.
	Delete bool
}

// Writable reports whether column may be written.
func (w *WriteSpec) Writable(column string) bool {
	for _, c := range w.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Entry is one row of a family's declarative resource table.
type Entry struct {
	Tag      resource.Tag
	Patterns []string
	// Type is the coarse type string callers dispatch on.
	Type string

	Source       Source
	Columns      []Column
	DefaultOrder string
	Distinct     bool
	GroupBy      string
	Limit        int

	// Where derives predicates from the matched identifier.
	Where func(m resource.Match) (Clause, error)
	// Search, when set, tokenizes the last wildcard into a keyword predicate.
	Search *SearchSpec

	Compute ComputeFunc
	Write   *WriteSpec
}

func (e *Entry) column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// DirType and ItemType build the coarse type strings for listings and
// single rows of a kind.
func DirType(kind string) string {
	return "vnd.transitstore.cursor.dir/" + kind
}

func ItemType(kind string) string {
	return "vnd.transitstore.cursor.item/" + kind
}
