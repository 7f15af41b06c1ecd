package planner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"transitstore.org/internal/resource"
)

// ErrInvalidColumn is returned when a projection names a column the
// resource does not expose.
var ErrInvalidColumn = errors.New("invalid column")

// Query carries the caller's optional refinements of a resource read.
type Query struct {
	Projection    []string
	Selection     string
	SelectionArgs []any
	SortOrder     string
}

// Plan is a ready-to-run statement for one resolved resource.
type Plan struct {
	Tag     resource.Tag
	Origin  resource.URI
	SQL     string
	Args    []any
	Columns []string
}

// Table is a family's declarative resource table: a router plus the entry
// registered for every tag.
type Table struct {
	authority string
	router    *resource.Router
	entries   map[resource.Tag]*Entry
	order     []resource.Tag
}

func NewTable(authority string) *Table {
	return &Table{
		authority: authority,
		router:    resource.NewRouter(),
		entries:   make(map[resource.Tag]*Entry),
	}
}

func (t *Table) Authority() string {
	return t.authority
}

// Register adds an entry under all of its patterns.
func (t *Table) Register(e Entry) error {
	if e.Tag == "" {
		return errors.New("entry without tag")
	}
	if _, ok := t.entries[e.Tag]; ok {
		return fmt.Errorf("duplicate tag %q", e.Tag)
	}
	if len(e.Patterns) == 0 {
		return fmt.Errorf("entry %q has no pattern", e.Tag)
	}
	for _, p := range e.Patterns {
		if err := t.router.Register(p, e.Tag); err != nil {
			return err
		}
	}
	entry := e
	t.entries[e.Tag] = &entry
	t.order = append(t.order, e.Tag)
	return nil
}

// MustRegister registers every entry, panicking on a malformed table.
func (t *Table) MustRegister(entries ...Entry) {
	for _, e := range entries {
		if err := t.Register(e); err != nil {
			panic(fmt.Sprintf("planner: %s: %v", t.authority, err))
		}
	}
}

// Resolve maps an identifier onto its entry.
func (t *Table) Resolve(u resource.URI) (resource.Match, *Entry, error) {
	if u.Authority != t.authority {
		return resource.Match{}, nil, fmt.Errorf("%w: authority %q", resource.ErrUnknownResource, u.Authority)
	}
	m, err := t.router.Resolve(u)
	if err != nil {
		return resource.Match{}, nil, err
	}
	return m, t.entries[m.Tag], nil
}

// Entry returns the entry registered for tag.
func (t *Table) Entry(tag resource.Tag) (*Entry, bool) {
	e, ok := t.entries[tag]
	return e, ok
}

// Entries lists the entries in registration order.
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, len(t.order))
	for i, tag := range t.order {
		out[i] = t.entries[tag]
	}
	return out
}

// Type returns the coarse type string of the resource at u.
func (t *Table) Type(u resource.URI) (string, error) {
	_, e, err := t.Resolve(u)
	if err != nil {
		return "", err
	}
	return e.Type, nil
}

// Plan builds the SELECT for a resolved match. An entry with neither a
// caller order nor a default order is a programming error and panics.
func (t *Table) Plan(m resource.Match, q Query) (*Plan, error) {
	e, ok := t.entries[m.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %q", resource.ErrUnknownResource, m.Tag)
	}
	if e.Compute != nil {
		return nil, fmt.Errorf("tag %q is computed, not planned", m.Tag)
	}

	cols, err := e.project(q.Projection)
	if err != nil {
		return nil, err
	}

	where := Clause{}
	if e.Where != nil {
		if where, err = e.Where(m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", resource.ErrUnknownResource, m.URI, err)
		}
	}
	var search Clause
	if e.Search != nil {
		search = BuildSearch(Tokenize(m.Last()), *e.Search)
	}
	where = AllOf(where, search, Raw(q.Selection, q.SelectionArgs...))

	order := q.SortOrder
	if order == "" {
		order = e.DefaultOrder
	}
	if order == "" {
		panic(fmt.Sprintf("planner: %s: entry %q has no default order", t.authority, e.Tag))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if e.Distinct {
		sb.WriteString("DISTINCT ")
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.selectSQL())
		names[i] = c.Name
	}
	sb.WriteString(" FROM ")
	sb.WriteString(e.Source.SQL())
	if !where.Empty() {
		sb.WriteString(" WHERE ")
		sb.WriteString(where.SQL)
	}
	if e.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(e.GroupBy)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)
	if e.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(e.Limit))
	}

	return &Plan{
		Tag:     e.Tag,
		Origin:  m.URI,
		SQL:     sb.String(),
		Args:    where.Args,
		Columns: names,
	}, nil
}

func (e *Entry) project(names []string) ([]Column, error) {
	if len(names) == 0 {
		return e.Columns, nil
	}
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := e.column(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q on %s", ErrInvalidColumn, n, e.Tag)
		}
		cols = append(cols, c)
	}
	return cols, nil
}
