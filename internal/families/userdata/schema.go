// Package userdata holds what the user creates (favorites, search history)
// and the periodically replaced live snapshots (bike stations, service
// status).
package userdata

import (
	"transitstore.org/transitdb"
)

const (
	Authority = "data"
	Version   = 4
)

// Favorite kinds stored in favorites.type.
const (
	FavoriteBusStop       = 1
	FavoriteSubwayStation = 2
	FavoriteBikeStation   = 3
)

var (
	createFavorites = `CREATE TABLE IF NOT EXISTS favorites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fk1 TEXT NOT NULL,
		fk2 TEXT,
		type INTEGER NOT NULL
	)`
	createHistory = `CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL
	)`
	createBikeStations = `CREATE TABLE IF NOT EXISTS bike_stations (
		id INTEGER PRIMARY KEY,
		terminal_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		lat REAL,
		lng REAL,
		installed INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		bikes INTEGER NOT NULL DEFAULT 0,
		empty_docks INTEGER NOT NULL DEFAULT 0
	)`
	createBikeStationsV3 = `CREATE TABLE IF NOT EXISTS bike_stations (
		id INTEGER PRIMARY KEY,
		terminal_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		lat REAL,
		lng REAL,
		installed INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		bikes INTEGER NOT NULL DEFAULT 0,
		empty_docks INTEGER NOT NULL DEFAULT 0,
		latest_update_time INTEGER
	)`
	createServiceStatus = `CREATE TABLE IF NOT EXISTS service_status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		pub_date INTEGER NOT NULL,
		read_date INTEGER,
		lang TEXT NOT NULL,
		source TEXT,
		link TEXT,
		type TEXT
	)`
	// NULL fk2 counts as a value so a station can only be saved once.
	createFavoritesKey = `CREATE UNIQUE INDEX IF NOT EXISTS favorites_key ON favorites(fk1, COALESCE(fk2, ''), type)`
	dedupeFavorites    = `DELETE FROM favorites WHERE id NOT IN (
		SELECT MIN(id) FROM favorites GROUP BY fk1, COALESCE(fk2, ''), type
	)`
)

type Family struct{}

func New() *Family {
	return &Family{}
}

func (f *Family) Authority() string { return Authority }
func (f *Family) FileName() string  { return "userdata.db" }
func (f *Family) Label() string     { return "User data" }
func (f *Family) Version() int      { return Version }

func (f *Family) Create() []string {
	return []string{
		createFavorites,
		createHistory,
		createBikeStationsV3,
		createServiceStatus,
		createFavoritesKey,
	}
}

// Migrations, one per version:
//
//	2: bike station snapshots
//	3: bike station update time and service status messages
//	4: favorites become unique per key
func (f *Family) Migrations() []transitdb.Migration {
	return []transitdb.Migration{
		{To: 2, Name: "bike_stations", Apply: transitdb.Exec(createBikeStations)},
		{To: 3, Name: "service_status", Apply: transitdb.Steps(
			transitdb.AddColumn("bike_stations", "latest_update_time", "INTEGER"),
			transitdb.Exec(createServiceStatus),
		)},
		{To: 4, Name: "unique_favorites", Apply: transitdb.Exec(dedupeFavorites, createFavoritesKey)},
	}
}
