// Package stm is the legacy per-domain bus and metro family: lines,
// directions and stops keyed by their public numbers and codes.
package stm

import (
	"transitstore.org/transitdb"
)

const (
	Authority = "stm"
	Version   = 2
)

type Family struct {
	codeLeadingDigit string
}

func New() *Family {
	return &Family{codeLeadingDigit: "5"}
}

func (f *Family) Authority() string { return Authority }
func (f *Family) FileName() string  { return "stm.db" }
func (f *Family) Label() string     { return "STM bus and metro" }
func (f *Family) Version() int      { return Version }

func (f *Family) Create() []string {
	return []string{
		`CREATE TABLE buslines (
			number INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT,
			hours TEXT,
			frequency TEXT
		)`,
		`CREATE TABLE busline_directions (
			id TEXT PRIMARY KEY,
			line_id INTEGER NOT NULL REFERENCES buslines(number),
			name TEXT NOT NULL
		)`,
		`CREATE TABLE busstops (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL,
			place TEXT NOT NULL,
			line_id INTEGER NOT NULL REFERENCES buslines(number),
			direction_id TEXT NOT NULL REFERENCES busline_directions(id),
			lat REAL,
			lng REAL,
			stop_order INTEGER NOT NULL,
			subway_station_id INTEGER
		)`,
		`CREATE TABLE subwaylines (
			number INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE subwaystations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			lat REAL,
			lng REAL
		)`,
		`CREATE TABLE subway_directions (
			line_id INTEGER NOT NULL REFERENCES subwaylines(number),
			station_id INTEGER NOT NULL REFERENCES subwaystations(id),
			sequence INTEGER NOT NULL,
			UNIQUE (line_id, sequence)
		)`,
		`CREATE INDEX busstops_code ON busstops(code)`,
		`CREATE INDEX busstops_line_direction ON busstops(line_id, direction_id)`,
		`CREATE INDEX busstops_subway_station ON busstops(subway_station_id)`,
	}
}

// Migrations: version 2 linked bus stops to the metro station they serve.
func (f *Family) Migrations() []transitdb.Migration {
	return []transitdb.Migration{
		{
			To:   2,
			Name: "busstop_subway_link",
			Apply: transitdb.Steps(
				transitdb.AddColumn("busstops", "subway_station_id", "INTEGER"),
				transitdb.Exec(`CREATE INDEX IF NOT EXISTS busstops_subway_station ON busstops(subway_station_id)`),
			),
		},
	}
}
