package transit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-polyline"

	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/internal/spatial"
	"transitstore.org/transitdb"
)

// Resource tags.
const (
	TagRoutes            resource.Tag = "routes"
	TagRoute             resource.Tag = "route"
	TagTrips             resource.Tag = "trips"
	TagTrip              resource.Tag = "trip"
	TagTripStops         resource.Tag = "trip_stops_of_trip"
	TagTripPolyline      resource.Tag = "trip_polyline"
	TagStops             resource.Tag = "stops"
	TagStop              resource.Tag = "stop"
	TagStopsBatch        resource.Tag = "stops_batch"
	TagStopsNear         resource.Tag = "stops_near"
	TagRouteTrips        resource.Tag = "route_trips"
	TagTripStopView      resource.Tag = "trip_stop_view"
	TagRouteTripStop     resource.Tag = "route_trip_stop"
	TagRouteTripStopFind resource.Tag = "route_trip_stop_search"
	TagRouteTripStopIDs  resource.Tag = "route_trip_stop_batch"
	TagSuggestions       resource.Tag = "suggestions"
	TagSuggestionsFind   resource.Tag = "suggestions_search"
)

// CodeLeadingDigit marks short numeric search tokens as stop code prefixes.
const CodeLeadingDigit = "5"

const nearbyLimit = 50

var (
	routeColumns = []planner.Column{
		planner.Col("_id", "routes.id"),
		planner.Col("short_name", "routes.short_name"),
		planner.Col("long_name", "routes.long_name"),
		planner.Col("color", "routes.color"),
		planner.Col("text_color", "routes.text_color"),
	}
	tripColumns = []planner.Column{
		planner.Col("_id", "trips.id"),
		planner.Col("route_id", "trips.route_id"),
		planner.Col("headsign_type", "trips.headsign_type"),
		planner.Col("headsign_value", "trips.headsign_value"),
	}
	stopColumns = []planner.Column{
		planner.Col("_id", "stops.id"),
		planner.Col("code", "stops.code"),
		planner.Col("name", "stops.name"),
		planner.Col("lat", "stops.lat"),
		planner.Col("lng", "stops.lng"),
	}

	routeTripSource = planner.Source{Table: "routes", Joins: []planner.Join{
		{Kind: planner.InnerJoin, Table: "trips", On: "trips.route_id = routes.id"},
	}}
	tripStopSource = planner.Source{Table: "trips", Joins: []planner.Join{
		{Kind: planner.InnerJoin, Table: "trip_stops", On: "trip_stops.trip_id = trips.id"},
		{Kind: planner.InnerJoin, Table: "stops", On: "stops.id = trip_stops.stop_id"},
	}}
	routeTripStopSource = planner.Source{Table: "routes", Joins: []planner.Join{
		{Kind: planner.InnerJoin, Table: "trips", On: "trips.route_id = routes.id"},
		{Kind: planner.InnerJoin, Table: "trip_stops", On: "trip_stops.trip_id = trips.id"},
		{Kind: planner.InnerJoin, Table: "stops", On: "stops.id = trip_stops.stop_id"},
	}}

	routeTripColumns = []planner.Column{
		planner.Col("route_id", "routes.id"),
		planner.Col("route_short_name", "routes.short_name"),
		planner.Col("route_long_name", "routes.long_name"),
		planner.Col("route_color", "routes.color"),
		planner.Col("trip_id", "trips.id"),
		planner.Col("headsign_type", "trips.headsign_type"),
		planner.Col("headsign_value", "trips.headsign_value"),
	}
	tripStopColumns = []planner.Column{
		planner.Col("trip_id", "trips.id"),
		planner.Col("headsign_type", "trips.headsign_type"),
		planner.Col("headsign_value", "trips.headsign_value"),
		planner.Col("stop_id", "stops.id"),
		planner.Col("stop_code", "stops.code"),
		planner.Col("stop_name", "stops.name"),
		planner.Col("stop_lat", "stops.lat"),
		planner.Col("stop_lng", "stops.lng"),
		planner.Col("sequence", "trip_stops.sequence"),
	}
	routeTripStopColumns = append(append([]planner.Column{}, routeTripColumns...), tripStopColumns[3:]...)

	stopSearch = planner.SearchSpec{
		CodeColumn:       "stops.code",
		NumberColumn:     "routes.short_name",
		LongTextColumn:   "stops.name",
		TextColumns:      []string{"stops.name", "routes.long_name"},
		CodeLeadingDigit: CodeLeadingDigit,
	}
)

func byID(column string) func(resource.Match) (planner.Clause, error) {
	return func(m resource.Match) (planner.Clause, error) {
		return planner.Equals(column, m.Arg(0)), nil
	}
}

// Entries registers the stop index hook on store and returns the resource table.
func (f *Family) Entries(store *transitdb.Store) []planner.Entry {
	store.OnOpen(func(ctx context.Context, db *sql.DB) error {
		return f.index.Load(ctx, db, `SELECT id, lat, lng FROM stops`)
	})

	return []planner.Entry{
		{
			Tag: TagRoutes, Patterns: []string{"route"}, Type: planner.DirType("route"),
			Source: planner.Source{Table: "routes"}, Columns: routeColumns,
			DefaultOrder: "routes.short_name",
		},
		{
			Tag: TagRoute, Patterns: []string{"route/#"}, Type: planner.ItemType("route"),
			Source: planner.Source{Table: "routes"}, Columns: routeColumns,
			Where: byID("routes.id"), DefaultOrder: "routes.short_name",
		},
		{
			Tag: TagTrips, Patterns: []string{"trip"}, Type: planner.DirType("trip"),
			Source: planner.Source{Table: "trips"}, Columns: tripColumns,
			DefaultOrder: "trips.id",
		},
		{
			Tag: TagTrip, Patterns: []string{"trip/#"}, Type: planner.ItemType("trip"),
			Source: planner.Source{Table: "trips"}, Columns: tripColumns,
			Where: byID("trips.id"), DefaultOrder: "trips.id",
		},
		{
			Tag: TagTripStops, Patterns: []string{"trip/#/stop"}, Type: planner.DirType("tripstop"),
			Source: tripStopSource, Columns: tripStopColumns,
			Where: byID("trips.id"), DefaultOrder: "trip_stops.sequence",
		},
		{
			Tag: TagTripPolyline, Patterns: []string{"trip/#/polyline"}, Type: planner.ItemType("polyline"),
			Compute: tripPolyline,
		},
		{
			Tag: TagStops, Patterns: []string{"stop"}, Type: planner.DirType("stop"),
			Source: planner.Source{Table: "stops"}, Columns: stopColumns,
			DefaultOrder: "stops.id",
		},
		{
			Tag: TagStop, Patterns: []string{"stop/#"}, Type: planner.ItemType("stop"),
			Source: planner.Source{Table: "stops"}, Columns: stopColumns,
			Where: byID("stops.id"), DefaultOrder: "stops.id",
		},
		{
			Tag: TagStopsBatch, Patterns: []string{"stop/*"}, Type: planner.DirType("stop"),
			Source: planner.Source{Table: "stops"}, Columns: stopColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AnyOf("stops.id", m.Arg(0)), nil
			},
			DefaultOrder: "stops.id",
		},
		{
			Tag: TagStopsNear, Patterns: []string{"stop/near/*"}, Type: planner.DirType("stop"),
			Compute: f.nearbyStops,
		},
		{
			Tag: TagRouteTrips, Patterns: []string{"route/trip"}, Type: planner.DirType("routetrip"),
			Source: routeTripSource, Columns: routeTripColumns,
			DefaultOrder: "routes.short_name, trips.id",
		},
		{
			Tag: TagTripStopView, Patterns: []string{"trip/stop"}, Type: planner.DirType("tripstop"),
			Source: tripStopSource, Columns: tripStopColumns,
			DefaultOrder: "trips.id, trip_stops.sequence",
		},
		{
			Tag: TagRouteTripStop, Patterns: []string{"route/trip/stop"}, Type: planner.DirType("routetripstop"),
			Source: routeTripStopSource, Columns: routeTripStopColumns,
			DefaultOrder: "routes.short_name, trips.id, trip_stops.sequence",
		},
		{
			Tag: TagRouteTripStopFind, Patterns: []string{"route/trip/stop/*"}, Type: planner.DirType("routetripstop"),
			Source: routeTripStopSource, Columns: routeTripStopColumns,
			Search:       &stopSearch,
			DefaultOrder: "routes.short_name, trips.id, trip_stops.sequence",
		},
		{
			// One row per (stop code, route) even when the stop serves
			// several trips of the route.
			Tag: TagRouteTripStopIDs, Patterns: []string{"route/trip/stop/stops/*"}, Type: planner.DirType("routetripstop"),
			Source: routeTripStopSource, Columns: routeTripStopColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AnyOf("stops.id", m.Arg(0)), nil
			},
			GroupBy:      "stops.code, routes.id",
			DefaultOrder: "stops.id, routes.short_name",
		},
		{
			Tag: TagSuggestions, Patterns: []string{"search"}, Type: planner.DirType("suggestion"),
			Source: routeTripStopSource, Columns: suggestionColumns,
			GroupBy:      "stops.code, routes.id",
			DefaultOrder: "stops.name, routes.short_name",
			Limit:        f.suggestionLimit,
		},
		{
			Tag: TagSuggestionsFind, Patterns: []string{"search/*"}, Type: planner.DirType("suggestion"),
			Source: routeTripStopSource, Columns: suggestionColumns,
			Search:       &stopSearch,
			GroupBy:      "stops.code, routes.id",
			DefaultOrder: "stops.name, routes.short_name",
			Limit:        f.suggestionLimit,
		},
	}
}

var suggestionColumns = []planner.Column{
	planner.Col("_id", "stops.id"),
	planner.Col("stop_code", "stops.code"),
	planner.Col("stop_name", "stops.name"),
	planner.Col("route_short_name", "routes.short_name"),
	planner.Col("route_long_name", "routes.long_name"),
	planner.Col("headsign_value", "trips.headsign_value"),
}

func tripPolyline(ctx context.Context, open planner.OpenFunc, m resource.Match) (*planner.ResultSet, error) {
	db, err := open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT stops.lat, stops.lng
		FROM trip_stops INNER JOIN stops ON stops.id = trip_stops.stop_id
		WHERE trip_stops.trip_id = ?
		ORDER BY trip_stops.sequence`, m.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("query polyline %s: %w", m.URI, err)
	}
	defer func() { _ = rows.Close() }()

	var coords [][]float64
	for rows.Next() {
		var lat, lng float64
		if err := rows.Scan(&lat, &lng); err != nil {
			return nil, fmt.Errorf("scan polyline %s: %w", m.URI, err)
		}
		coords = append(coords, []float64{lat, lng})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	id, _ := strconv.ParseInt(m.Arg(0), 10, 64)
	return planner.NewResultSet(m.URI, m.Tag, []string{"trip_id", "polyline", "points"},
		[]any{id, string(polyline.EncodeCoords(coords)), int64(len(coords))}), nil
}

func (f *Family) nearbyStops(ctx context.Context, open planner.OpenFunc, m resource.Match) (*planner.ResultSet, error) {
	lat, lng, radius, err := spatial.ParseCenter(m.Arg(0))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", resource.ErrUnknownResource, m.URI, err)
	}
	db, err := open(ctx)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(stopColumns)+1)
	for _, c := range stopColumns {
		columns = append(columns, c.Name)
	}
	columns = append(columns, "distance")
	rs := planner.NewResultSet(m.URI, m.Tag, columns)

	hits := f.index.Nearby(lat, lng, radius, nearbyLimit)
	if len(hits) == 0 {
		return rs, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = strconv.FormatInt(h.ID, 10)
	}
	where := planner.AnyOf("stops.id", strings.Join(ids, planner.IDSeparator))
	plan := &planner.Plan{
		Tag:     m.Tag,
		Origin:  m.URI,
		SQL:     "SELECT stops.id, stops.code, stops.name, stops.lat, stops.lng FROM stops WHERE " + where.SQL,
		Args:    where.Args,
		Columns: columns[:len(columns)-1],
	}
	found, err := planner.Execute(ctx, db, plan)
	if err != nil {
		return nil, err
	}

	rowsByID := make(map[int64][]any, found.Len())
	for i, row := range found.Rows {
		id, _ := found.Int64(i, "_id")
		rowsByID[id] = row
	}
	for _, h := range hits {
		row, ok := rowsByID[h.ID]
		if !ok {
			continue
		}
		rs.Rows = append(rs.Rows, append(row, h.Distance))
	}
	return rs, nil
}
