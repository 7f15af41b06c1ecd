package stm

import (
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

// Resource tags.
const (
	TagBusLines             resource.Tag = "buslines"
	TagBusLine              resource.Tag = "busline"
	TagBusLineDirections    resource.Tag = "busline_directions"
	TagDirectionStops       resource.Tag = "direction_busstops"
	TagDirectionStopsSearch resource.Tag = "direction_busstops_search"
	TagBusStops             resource.Tag = "busstops"
	TagBusStop              resource.Tag = "busstop"
	TagBusStopsBatch        resource.Tag = "busstops_batch"
	TagBusStopsSearch       resource.Tag = "busstops_search"
	TagLiveFolder           resource.Tag = "busstops_livefolder"
	TagSubwayLines          resource.Tag = "subwaylines"
	TagSubwayLine           resource.Tag = "subwayline"
	TagSubwayLineStations   resource.Tag = "subwayline_stations"
	TagSubwayStationsSearch resource.Tag = "subwayline_stations_search"
	TagSubwayStations       resource.Tag = "subwaystations"
	TagSubwayStationsBatch  resource.Tag = "subwaystations_batch"
)

// LiveFolderSeparator joins the stop code and line of a live folder key.
const LiveFolderSeparator = "-"

var (
	busLineColumns = []planner.Column{
		planner.Col("_id", "buslines.number"),
		planner.Col("number", "buslines.number"),
		planner.Col("name", "buslines.name"),
		planner.Col("type", "buslines.type"),
		planner.Col("hours", "buslines.hours"),
		planner.Col("frequency", "buslines.frequency"),
	}
	directionColumns = []planner.Column{
		planner.Col("_id", "busline_directions.id"),
		planner.Col("line_id", "busline_directions.line_id"),
		planner.Col("name", "busline_directions.name"),
	}
	busStopColumns = []planner.Column{
		planner.Col("_id", "busstops.id"),
		planner.Col("code", "busstops.code"),
		planner.Col("place", "busstops.place"),
		planner.Col("line_id", "busstops.line_id"),
		planner.Col("direction_id", "busstops.direction_id"),
		planner.Col("lat", "busstops.lat"),
		planner.Col("lng", "busstops.lng"),
		planner.Col("stop_order", "busstops.stop_order"),
		planner.Col("subway_station_id", "busstops.subway_station_id"),
		planner.Col("subway_station_name", "subwaystations.name"),
	}
	liveFolderColumns = append(append([]planner.Column{}, busStopColumns...),
		planner.Col("line_name", "buslines.name"),
		planner.Col("direction_name", "busline_directions.name"),
	)
	subwayLineColumns = []planner.Column{
		planner.Col("_id", "subwaylines.number"),
		planner.Col("number", "subwaylines.number"),
		planner.Col("name", "subwaylines.name"),
	}
	stationColumns = []planner.Column{
		planner.Col("_id", "subwaystations.id"),
		planner.Col("name", "subwaystations.name"),
		planner.Col("lat", "subwaystations.lat"),
		planner.Col("lng", "subwaystations.lng"),
	}
	lineStationColumns = append(append([]planner.Column{}, stationColumns...),
		planner.Col("line_id", "subway_directions.line_id"),
		planner.Col("sequence", "subway_directions.sequence"),
	)

	busStopSource = planner.Source{Table: "busstops", Joins: []planner.Join{
		{Kind: planner.LeftOuterJoin, Table: "subwaystations", On: "subwaystations.id = busstops.subway_station_id"},
	}}
	liveFolderSource = planner.Source{Table: "busstops", Joins: []planner.Join{
		{Kind: planner.LeftOuterJoin, Table: "subwaystations", On: "subwaystations.id = busstops.subway_station_id"},
		{Kind: planner.InnerJoin, Table: "buslines", On: "buslines.number = busstops.line_id"},
		{Kind: planner.InnerJoin, Table: "busline_directions", On: "busline_directions.id = busstops.direction_id"},
	}}
	lineStationSource = planner.Source{Table: "subway_directions", Joins: []planner.Join{
		{Kind: planner.InnerJoin, Table: "subwaystations", On: "subwaystations.id = subway_directions.station_id"},
	}}

	stationSearch = planner.SearchSpec{
		LongTextColumn: "subwaystations.name",
		TextColumns:    []string{"subwaystations.name"},
	}
)

func equals(column string, arg int) func(resource.Match) (planner.Clause, error) {
	return func(m resource.Match) (planner.Clause, error) {
		return planner.Equals(column, m.Arg(arg)), nil
	}
}

func (f *Family) busStopSearch() *planner.SearchSpec {
	return &planner.SearchSpec{
		CodeColumn:       "busstops.code",
		NumberColumn:     "busstops.line_id",
		LongTextColumn:   "busstops.place",
		TextColumns:      []string{"busstops.place", "subwaystations.name"},
		CodeLeadingDigit: f.codeLeadingDigit,
	}
}

// Entries returns the resource table. The family is read-only.
func (f *Family) Entries(*transitdb.Store) []planner.Entry {
	lineDirection := func(m resource.Match) (planner.Clause, error) {
		return planner.AllOf(
			planner.Equals("busstops.line_id", m.Arg(0)),
			planner.Equals("busstops.direction_id", m.Arg(1)),
		), nil
	}

	return []planner.Entry{
		{
			Tag: TagBusLines, Patterns: []string{"buslines"}, Type: planner.DirType("busline"),
			Source: planner.Source{Table: "buslines"}, Columns: busLineColumns,
			DefaultOrder: "buslines.number",
		},
		{
			Tag: TagBusLine, Patterns: []string{"buslines/#"}, Type: planner.ItemType("busline"),
			Source: planner.Source{Table: "buslines"}, Columns: busLineColumns,
			Where: equals("buslines.number", 0), DefaultOrder: "buslines.number",
		},
		{
			Tag: TagBusLineDirections, Patterns: []string{"buslines/#/buslinedirections"}, Type: planner.DirType("buslinedirection"),
			Source: planner.Source{Table: "busline_directions"}, Columns: directionColumns,
			Where: equals("busline_directions.line_id", 0), DefaultOrder: "busline_directions.id",
		},
		{
			Tag: TagDirectionStops, Patterns: []string{"buslines/#/buslinedirections/*/busstops"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			Where: lineDirection, DefaultOrder: "busstops.stop_order",
		},
		{
			Tag: TagDirectionStopsSearch, Patterns: []string{"buslines/#/buslinedirections/*/busstops/search/*"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			Where: lineDirection, Search: f.busStopSearch(), DefaultOrder: "busstops.stop_order",
		},
		{
			Tag: TagBusStops, Patterns: []string{"busstops"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			DefaultOrder: "busstops.code, busstops.line_id",
		},
		{
			Tag: TagBusStop, Patterns: []string{"busstops/#"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			Where: equals("busstops.code", 0), DefaultOrder: "busstops.line_id",
		},
		{
			Tag: TagBusStopsBatch, Patterns: []string{"busstops/*"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AnyOf("busstops.code", m.Arg(0)), nil
			},
			GroupBy:      "busstops.code, busstops.line_id",
			DefaultOrder: "busstops.code, busstops.line_id",
		},
		{
			Tag: TagBusStopsSearch, Patterns: []string{"busstops/search/*"}, Type: planner.DirType("busstop"),
			Source: busStopSource, Columns: busStopColumns,
			Search:       f.busStopSearch(),
			GroupBy:      "busstops.code, busstops.line_id",
			DefaultOrder: "busstops.code, busstops.line_id",
		},
		{
			Tag: TagLiveFolder, Patterns: []string{"busstopslivefolder/*"}, Type: planner.DirType("busstop"),
			Source: liveFolderSource, Columns: liveFolderColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.CompositeAny([]string{"busstops.code", "busstops.line_id"}, m.Arg(0), LiveFolderSeparator)
			},
			GroupBy:      "busstops.code, busstops.line_id",
			DefaultOrder: "busstops.code, busstops.line_id",
		},
		{
			Tag: TagSubwayLines, Patterns: []string{"subwaylines"}, Type: planner.DirType("subwayline"),
			Source: planner.Source{Table: "subwaylines"}, Columns: subwayLineColumns,
			DefaultOrder: "subwaylines.number",
		},
		{
			Tag: TagSubwayLine, Patterns: []string{"subwaylines/#"}, Type: planner.ItemType("subwayline"),
			Source: planner.Source{Table: "subwaylines"}, Columns: subwayLineColumns,
			Where: equals("subwaylines.number", 0), DefaultOrder: "subwaylines.number",
		},
		{
			Tag: TagSubwayLineStations, Patterns: []string{"subwaylines/#/subwaystations"}, Type: planner.DirType("subwaystation"),
			Source: lineStationSource, Columns: lineStationColumns,
			Where: equals("subway_directions.line_id", 0), DefaultOrder: "subway_directions.sequence",
		},
		{
			Tag: TagSubwayStationsSearch, Patterns: []string{"subwaylines/#/subwaystations/search/*"}, Type: planner.DirType("subwaystation"),
			Source: lineStationSource, Columns: lineStationColumns,
			Where: equals("subway_directions.line_id", 0), Search: &stationSearch,
			DefaultOrder: "subway_directions.sequence",
		},
		{
			Tag: TagSubwayStations, Patterns: []string{"subwaystations"}, Type: planner.DirType("subwaystation"),
			Source: planner.Source{Table: "subwaystations"}, Columns: stationColumns,
			DefaultOrder: "subwaystations.name",
		},
		{
			Tag: TagSubwayStationsBatch, Patterns: []string{"subwaystations/*"}, Type: planner.DirType("subwaystation"),
			Source: planner.Source{Table: "subwaystations"}, Columns: stationColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AnyOf("subwaystations.id", m.Arg(0)), nil
			},
			DefaultOrder: "subwaystations.name",
		},
	}
}
