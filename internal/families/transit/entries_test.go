package transit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"transitstore.org/internal/families/transit"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/provider"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

const seed = `
INSERT INTO routes (id, short_name, long_name, color, text_color) VALUES
	(1, '80', 'Avenue du Parc', '009EE0', 'FFFFFF'),
	(2, '24', 'Sherbrooke', '009EE0', 'FFFFFF'),
	(3, '51', 'Édouard-Montpetit', '009EE0', 'FFFFFF');
INSERT INTO stops (id, code, name, lat, lng) VALUES
	(1, '51234', 'Berri-UQAM', 45.5152, -73.5611),
	(2, '52001', 'Sherbrooke / Saint-Denis', 45.5180, -73.5680),
	(3, '60123', 'Parc / Mont-Royal', 45.5210, -73.5890),
	(4, '61000', 'Côte-des-Neiges / Édouard-Montpetit', 45.5060, -73.6160);
INSERT INTO trips (id, route_id, headsign_type, headsign_value) VALUES
	(1, 1, 0, 'Nord'), (2, 1, 1, '0'), (3, 2, 0, 'Est'), (4, 3, 0, 'Ouest');
INSERT INTO trip_stops (trip_id, stop_id, sequence) VALUES
	(1, 3, 1), (1, 2, 2),
	(2, 2, 1), (2, 3, 2),
	(3, 1, 1), (3, 2, 2),
	(4, 4, 1), (4, 1, 2);
`

func newProvider(t *testing.T, suggestionLimit int) (*provider.Provider, *transit.Family) {
	t.Helper()
	ctx := context.Background()
	family := transit.New(suggestionLimit)
	store := transitdb.New(family, transitdb.Config{Dir: t.TempDir()})
	p := provider.New(family, store, nil, nil, nil)
	t.Cleanup(func() { _ = p.Close() })

	db, err := store.Get(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, seed)
	require.NoError(t, err)
	require.NoError(t, family.Index().Load(ctx, db, `SELECT id, lat, lng FROM stops`))
	return p, family
}

func query(t *testing.T, p *provider.Provider, uri string) *planner.ResultSet {
	t.Helper()
	rs, err := p.Query(context.Background(), resource.MustParse(uri), planner.Query{})
	require.NoError(t, err)
	return rs
}

func TestResolveEveryPattern(t *testing.T) {
	p, _ := newProvider(t, 0)

	tests := map[string]resource.Tag{
		"transit/route":                   transit.TagRoutes,
		"transit/route/3":                 transit.TagRoute,
		"transit/trip":                    transit.TagTrips,
		"transit/trip/1":                  transit.TagTrip,
		"transit/trip/1/stop":             transit.TagTripStops,
		"transit/trip/1/polyline":         transit.TagTripPolyline,
		"transit/stop":                    transit.TagStops,
		"transit/stop/2":                  transit.TagStop,
		"transit/stop/1+2":                transit.TagStopsBatch,
		"transit/stop/near/45.5,-73.5":    transit.TagStopsNear,
		"transit/route/trip":              transit.TagRouteTrips,
		"transit/trip/stop":               transit.TagTripStopView,
		"transit/route/trip/stop":         transit.TagRouteTripStop,
		"transit/route/trip/stop/berri":   transit.TagRouteTripStopFind,
		"transit/route/trip/stop/stops/1": transit.TagRouteTripStopIDs,
		"transit/search":                  transit.TagSuggestions,
		"transit/search/berri":            transit.TagSuggestionsFind,
		"transit/meta/version":            provider.TagMetaVersion,
	}
	for uri, tag := range tests {
		t.Run(uri, func(t *testing.T) {
			m, _, err := p.Table().Resolve(resource.MustParse(uri))
			require.NoError(t, err)
			assert.Equal(t, tag, m.Tag)
		})
	}

	for _, uri := range []string{"transit/routes", "transit/route/x", "transit/trip/1/shape", "stm/route"} {
		_, _, err := p.Table().Resolve(resource.MustParse(uri))
		assert.ErrorIs(t, err, resource.ErrUnknownResource, uri)
	}
}

func TestRoutesSortedByShortName(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/route")
	assert.Equal(t, []string{"24", "51", "80"}, rs.Column("short_name"))

	rs, err := p.Query(context.Background(), resource.MustParse("transit/route"),
		planner.Query{Projection: []string{"_id"}, SortOrder: "routes.id DESC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, rs.Column("_id"))
	assert.Equal(t, []string{"_id"}, rs.Columns)
}

func TestJoinedViewsKeepAliases(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/trip/1/stop")
	assert.Equal(t, []string{"3", "2"}, rs.Column("stop_id"))
	assert.Equal(t, []string{"1", "1"}, rs.Column("trip_id"))
	assert.Equal(t, []string{"1", "2"}, rs.Column("sequence"))

	rs = query(t, p, "transit/route/trip/stop")
	assert.Equal(t, 8, rs.Len())
	assert.NotEqual(t, rs.Index("route_id"), rs.Index("trip_id"))
	assert.NotEqual(t, rs.Index("trip_id"), rs.Index("stop_id"))
}

func TestSearchAndsTokens(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/route/trip/stop/Sherbrooke%20Saint")
	assert.Equal(t, []string{"2", "2", "2"}, rs.Column("stop_id"))

	rs = query(t, p, "transit/route/trip/stop/sherbrooke%20montpetit")
	assert.Zero(t, rs.Len())
}

func TestSearchDigitHeuristic(t *testing.T) {
	p, _ := newProvider(t, 0)

	// Long digit tokens match the stop code even with no name match.
	rs := query(t, p, "transit/route/trip/stop/1234")
	assert.Equal(t, []string{"1", "1"}, rs.Column("stop_id"))

	// Short tokens led by the code digit go to the code column too.
	rs = query(t, p, "transit/route/trip/stop/51")
	assert.Equal(t, []string{"1", "1"}, rs.Column("stop_id"))

	// Other short tokens match the route number.
	rs = query(t, p, "transit/route/trip/stop/24")
	assert.Equal(t, []string{"24", "24"}, rs.Column("route_short_name"))
}

func TestBatchLookups(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/stop/4+1+4")
	assert.Equal(t, []string{"1", "4"}, rs.Column("_id"))

	rs = query(t, p, "transit/route/trip/stop/stops/2+3")
	require.Equal(t, 3, rs.Len())
	seen := make(map[string]bool)
	for i := range rs.Rows {
		key := rs.Text(i, "stop_code") + "/" + rs.Text(i, "route_id")
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}
}

func TestSuggestionsAreBounded(t *testing.T) {
	p, _ := newProvider(t, 3)

	assert.Equal(t, 3, query(t, p, "transit/search").Len())

	rs := query(t, p, "transit/search/berri")
	assert.Equal(t, []string{"Berri-UQAM", "Berri-UQAM"}, rs.Column("stop_name"))
}

func TestTripPolyline(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/trip/1/polyline")
	require.Equal(t, 1, rs.Len())
	n, _ := rs.Int64(0, "points")
	assert.Equal(t, int64(2), n)

	coords, _, err := polyline.DecodeCoords([]byte(rs.Text(0, "polyline")))
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 45.5210, coords[0][0], 1e-5)
	assert.InDelta(t, -73.5680, coords[1][1], 1e-5)
}

func TestNearbyStops(t *testing.T) {
	p, _ := newProvider(t, 0)

	rs := query(t, p, "transit/stop/near/45.5152,-73.5611")
	assert.Equal(t, []string{"1"}, rs.Column("_id"))

	rs = query(t, p, "transit/stop/near/45.5152,-73.5611,1000")
	assert.Equal(t, []string{"1", "2"}, rs.Column("_id"))
	d, ok := rs.Float64(1, "distance")
	require.True(t, ok)
	assert.Greater(t, d, 500.0)

	_, err := p.Query(context.Background(), resource.MustParse("transit/stop/near/north"), planner.Query{})
	assert.ErrorIs(t, err, resource.ErrUnknownResource)
}

func TestReferenceDataIsReadOnly(t *testing.T) {
	p, _ := newProvider(t, 0)
	ctx := context.Background()

	_, err := p.Insert(ctx, resource.MustParse("transit/route"), mutation.Values{"short_name": "99"})
	assert.ErrorIs(t, err, resource.ErrUnknownResource)
	_, err = p.Delete(ctx, resource.MustParse("transit/stop/1"))
	assert.ErrorIs(t, err, resource.ErrUnknownResource)

	typ, err := p.Type(resource.MustParse("transit/stop/1+2"))
	require.NoError(t, err)
	assert.Equal(t, "vnd.transitstore.cursor.dir/stop", typ)
}

func TestIndexRebuiltOnOpen(t *testing.T) {
	p, family := newProvider(t, 0)

	p.Store().Invalidate()
	family.Index().Replace(nil)
	query(t, p, "transit/route")
	assert.Equal(t, 4, family.Index().Len())
}
