package planner

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitstore.org/internal/resource"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable("transit")
	table.MustRegister(
		Entry{
			Tag:          "routes",
			Patterns:     []string{"route"},
			Type:         DirType("route"),
			Source:       Source{Table: "routes"},
			Columns:      []Column{Col("id", "routes.id"), Col("short_name", "")},
			DefaultOrder: "short_name",
		},
		Entry{
			Tag:      "route",
			Patterns: []string{"route/#"},
			Type:     ItemType("route"),
			Source:   Source{Table: "routes"},
			Columns:  []Column{Col("id", "routes.id"), Col("short_name", "")},
			Where: func(m resource.Match) (Clause, error) {
				return Equals("routes.id", m.Arg(0)), nil
			},
			DefaultOrder: "short_name",
		},
		Entry{
			Tag:      "trip_stops",
			Patterns: []string{"trip/stop", "trip/stop/*"},
			Type:     DirType("tripstop"),
			Source: Source{Table: "trips", Joins: []Join{
				{Kind: InnerJoin, Table: "trip_stops", On: "trip_stops.trip_id = trips.id"},
				{Kind: LeftOuterJoin, Table: "stops", On: "stops.id = trip_stops.stop_id"},
			}},
			Columns: []Column{
				Col("trip_id", "trips.id"),
				Col("stop_id", "stops.id"),
				Col("stop_name", "stops.name"),
			},
			Search:       &SearchSpec{TextColumns: []string{"stops.name"}},
			DefaultOrder: "trip_stops.sequence",
			Limit:        7,
		},
		Entry{
			Tag:      "no_order",
			Patterns: []string{"broken"},
			Source:   Source{Table: "routes"},
			Columns:  []Column{Col("id", "")},
		},
		Entry{
			Tag:      "computed",
			Patterns: []string{"meta/version"},
			Compute: func(context.Context, OpenFunc, resource.Match) (*ResultSet, error) {
				return nil, nil
			},
		},
	)
	return table
}

func resolve(t *testing.T, table *Table, uri string) resource.Match {
	t.Helper()
	m, _, err := table.Resolve(resource.MustParse(uri))
	require.NoError(t, err)
	return m
}

func TestPlanListing(t *testing.T) {
	table := testTable(t)

	p, err := table.Plan(resolve(t, table, "transit://transit/route"), Query{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT routes.id AS id, short_name FROM routes ORDER BY short_name", p.SQL)
	assert.Equal(t, []string{"id", "short_name"}, p.Columns)
	assert.Empty(t, p.Args)
	assert.Equal(t, "transit://transit/route", p.Origin.String())
}

func TestPlanSelectionAndOrder(t *testing.T) {
	table := testTable(t)

	p, err := table.Plan(resolve(t, table, "transit/route/12"), Query{
		Projection:    []string{"short_name"},
		Selection:     "short_name <> ?",
		SelectionArgs: []any{"X"},
		SortOrder:     "id DESC",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT short_name FROM routes WHERE (routes.id = ?) AND (short_name <> ?) ORDER BY id DESC", p.SQL)
	assert.Equal(t, []any{"12", "X"}, p.Args)
}

func TestPlanJoinsAndSearch(t *testing.T) {
	table := testTable(t)

	p, err := table.Plan(resolve(t, table, "transit/trip/stop/Berri UQAM"), Query{})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT trips.id AS trip_id, stops.id AS stop_id, stops.name AS stop_name "+
			"FROM trips INNER JOIN trip_stops ON trip_stops.trip_id = trips.id "+
			"LEFT OUTER JOIN stops ON stops.id = trip_stops.stop_id "+
			"WHERE (stops.name LIKE ?) AND (stops.name LIKE ?) ORDER BY trip_stops.sequence LIMIT 7",
		p.SQL)
	assert.Equal(t, []any{"%berri%", "%uqam%"}, p.Args)

	p, err = table.Plan(resolve(t, table, "transit/trip/stop"), Query{})
	require.NoError(t, err)
	assert.NotContains(t, p.SQL, "WHERE")
}

func TestPlanInvalidColumn(t *testing.T) {
	table := testTable(t)

	_, err := table.Plan(resolve(t, table, "transit/route"), Query{Projection: []string{"long_name"}})
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestPlanMissingOrderPanics(t *testing.T) {
	table := testTable(t)
	m := resolve(t, table, "transit/broken")

	assert.Panics(t, func() { _, _ = table.Plan(m, Query{}) })
	assert.NotPanics(t, func() { _, _ = table.Plan(m, Query{SortOrder: "id"}) })
}

func TestPlanComputedEntry(t *testing.T) {
	table := testTable(t)

	_, err := table.Plan(resolve(t, table, "transit/meta/version"), Query{})
	assert.Error(t, err)
}

func TestResolveErrors(t *testing.T) {
	table := testTable(t)

	_, _, err := table.Resolve(resource.MustParse("stm/route"))
	assert.ErrorIs(t, err, resource.ErrUnknownResource)

	_, _, err = table.Resolve(resource.MustParse("transit/route/abc"))
	assert.ErrorIs(t, err, resource.ErrUnknownResource)

	typ, err := table.Type(resource.MustParse("transit/route/4"))
	require.NoError(t, err)
	assert.Equal(t, "vnd.transitstore.cursor.item/route", typ)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	table := NewTable("transit")
	require.NoError(t, table.Register(Entry{Tag: "a", Patterns: []string{"a"}}))
	assert.Error(t, table.Register(Entry{Tag: "a", Patterns: []string{"b"}}))
	assert.Error(t, table.Register(Entry{Tag: "c", Patterns: []string{"a"}}))
	assert.Error(t, table.Register(Entry{Tag: "d"}))
	assert.Len(t, table.Entries(), 1)
}

func TestExecute(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		CREATE TABLE routes (id INTEGER PRIMARY KEY, short_name TEXT);
		INSERT INTO routes VALUES (1, '80'), (2, '24'), (3, '51');
	`)
	require.NoError(t, err)

	table := testTable(t)
	p, err := table.Plan(resolve(t, table, "transit/route"), Query{})
	require.NoError(t, err)

	rs, err := Execute(context.Background(), db, p)
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, resource.Tag("routes"), rs.Tag)
	assert.Equal(t, []string{"24", "51", "80"}, rs.Column("short_name"))

	id, ok := rs.Int64(0, "id")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.Equal(t, map[string]any{"id": int64(2), "short_name": "24"}, rs.Maps()[0])

	_, ok = rs.Value(0, "missing")
	assert.False(t, ok)
}
