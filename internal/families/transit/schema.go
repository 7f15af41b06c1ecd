// Package transit is the reference data family built from a GTFS feed:
// routes, trips, stops and the ordered stops of every trip.
package transit

import (
	"transitstore.org/internal/spatial"
	"transitstore.org/transitdb"
)

const (
	Authority = "transit"
	Version   = 1
)

// Family serves the transit reference data. The zero value is not usable;
// call New.
type Family struct {
	index           *spatial.Index
	suggestionLimit int
}

// New returns the family. suggestionLimit bounds the search resources,
// seven when zero.
func New(suggestionLimit int) *Family {
	if suggestionLimit <= 0 {
		suggestionLimit = 7
	}
	return &Family{index: spatial.NewIndex(), suggestionLimit: suggestionLimit}
}

func (f *Family) Authority() string { return Authority }
func (f *Family) FileName() string  { return "transit.db" }
func (f *Family) Label() string     { return "Transit reference data" }
func (f *Family) Version() int      { return Version }

func (f *Family) Create() []string {
	return []string{
		`CREATE TABLE routes (
			id INTEGER PRIMARY KEY,
			short_name TEXT NOT NULL,
			long_name TEXT,
			color TEXT,
			text_color TEXT
		)`,
		`CREATE TABLE trips (
			id INTEGER PRIMARY KEY,
			route_id INTEGER NOT NULL REFERENCES routes(id),
			headsign_type INTEGER NOT NULL DEFAULT 0,
			headsign_value TEXT
		)`,
		`CREATE TABLE stops (
			id INTEGER PRIMARY KEY,
			code TEXT,
			name TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL
		)`,
		`CREATE TABLE trip_stops (
			trip_id INTEGER NOT NULL REFERENCES trips(id),
			stop_id INTEGER NOT NULL REFERENCES stops(id),
			sequence INTEGER NOT NULL,
			UNIQUE (trip_id, sequence)
		)`,
		`CREATE INDEX trips_route ON trips(route_id)`,
		`CREATE INDEX trip_stops_stop ON trip_stops(stop_id)`,
		`CREATE INDEX stops_code ON stops(code)`,
	}
}

// Migrations is empty: the transit dataset is deployed whole, so any other
// version is reset.
func (f *Family) Migrations() []transitdb.Migration {
	return nil
}

// Index exposes the stop index kept in sync with the store.
func (f *Family) Index() *spatial.Index {
	return f.index
}
