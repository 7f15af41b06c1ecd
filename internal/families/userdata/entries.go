package userdata

import (
	"strconv"

	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

// Resource tags.
const (
	TagFavorites           resource.Tag = "favorites"
	TagFavorite            resource.Tag = "favorite"
	TagFavoriteByKey       resource.Tag = "favorite_key"
	TagFavoritesByType     resource.Tag = "favorites_type"
	TagHistory             resource.Tag = "history"
	TagBikeStations        resource.Tag = "bike_stations"
	TagBikeStationsBatch   resource.Tag = "bike_stations_batch"
	TagServiceStatus       resource.Tag = "service_status"
	TagServiceStatusLatest resource.Tag = "service_status_latest"
	TagServiceStatusLang   resource.Tag = "service_status_latest_lang"
)

// FavoriteKey encodes the composite key addressed by favs/*. An empty fk2
// stands for NULL.
func FavoriteKey(fk1, fk2 string, kind int) string {
	return fk1 + planner.IDSeparator + fk2 + planner.IDSeparator + strconv.Itoa(kind)
}

var (
	favoriteColumns = []planner.Column{
		planner.Col("_id", "favorites.id"),
		planner.Col("fk1", "favorites.fk1"),
		planner.Col("fk2", "favorites.fk2"),
		planner.Col("type", "favorites.type"),
	}
	historyColumns = []planner.Column{
		planner.Col("_id", "history.id"),
		planner.Col("text", "history.text"),
	}
	bikeStationColumns = []planner.Column{
		planner.Col("_id", "bike_stations.id"),
		planner.Col("terminal_id", "bike_stations.terminal_id"),
		planner.Col("name", "bike_stations.name"),
		planner.Col("lat", "bike_stations.lat"),
		planner.Col("lng", "bike_stations.lng"),
		planner.Col("installed", "bike_stations.installed"),
		planner.Col("locked", "bike_stations.locked"),
		planner.Col("bikes", "bike_stations.bikes"),
		planner.Col("empty_docks", "bike_stations.empty_docks"),
		planner.Col("latest_update_time", "bike_stations.latest_update_time"),
	}
	serviceStatusColumns = []planner.Column{
		planner.Col("_id", "service_status.id"),
		planner.Col("message", "service_status.message"),
		planner.Col("pub_date", "service_status.pub_date"),
		planner.Col("read_date", "service_status.read_date"),
		planner.Col("lang", "service_status.lang"),
		planner.Col("source", "service_status.source"),
		planner.Col("link", "service_status.link"),
		planner.Col("type", "service_status.type"),
	}

	favoritesWrite = &planner.WriteSpec{
		Table:   "favorites",
		Columns: []string{"fk1", "fk2", "type"},
		Insert:  true,
	}
	historyWrite = &planner.WriteSpec{
		Table:   "history",
		Columns: []string{"text"},
		Insert:  true,
		Delete:  true,
	}
	bikeStationsWrite = &planner.WriteSpec{
		Table: "bike_stations",
		Columns: []string{"terminal_id", "name", "lat", "lng", "installed", "locked",
			"bikes", "empty_docks", "latest_update_time"},
		Insert: true,
		Delete: true,
	}
	serviceStatusWrite = &planner.WriteSpec{
		Table:   "service_status",
		Columns: []string{"message", "pub_date", "read_date", "lang", "source", "link", "type"},
		Insert:  true,
		Delete:  true,
	}
)

// newestPerLang keeps the newest row of each language, the highest id
// winning a pub_date tie. NULL languages form their own group.
var newestPerLang = planner.Raw(`service_status.id = (
	SELECT s2.id FROM service_status s2
	WHERE s2.lang IS service_status.lang
	ORDER BY s2.pub_date DESC, s2.id DESC
	LIMIT 1)`)

func (f *Family) Entries(*transitdb.Store) []planner.Entry {
	favorites := planner.Source{Table: "favorites"}

	return []planner.Entry{
		{
			Tag: TagFavorites, Patterns: []string{"favs"}, Type: planner.DirType("favorite"),
			Source: favorites, Columns: favoriteColumns,
			DefaultOrder: "favorites.type, favorites.id",
			Write:        favoritesWrite,
		},
		{
			Tag: TagFavorite, Patterns: []string{"favs/#"}, Type: planner.ItemType("favorite"),
			Source: favorites, Columns: favoriteColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.Equals("favorites.id", m.Arg(0)), nil
			},
			DefaultOrder: "favorites.id",
			Write:        &planner.WriteSpec{Table: "favorites", Delete: true},
		},
		{
			Tag: TagFavoriteByKey, Patterns: []string{"favs/*"}, Type: planner.ItemType("favorite"),
			Source: favorites, Columns: favoriteColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.Composite([]string{"favorites.fk1", "favorites.fk2", "favorites.type"},
					m.Arg(0), planner.IDSeparator)
			},
			DefaultOrder: "favorites.id",
		},
		{
			Tag: TagFavoritesByType, Patterns: []string{"favs/type/#"}, Type: planner.DirType("favorite"),
			Source: favorites, Columns: favoriteColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.Equals("favorites.type", m.Arg(0)), nil
			},
			DefaultOrder: "favorites.id",
		},
		{
			Tag: TagHistory, Patterns: []string{"history"}, Type: planner.DirType("history"),
			Source: planner.Source{Table: "history"}, Columns: historyColumns,
			DefaultOrder: "history.id DESC",
			Write:        historyWrite,
		},
		{
			Tag: TagBikeStations, Patterns: []string{"bikestations"}, Type: planner.DirType("bikestation"),
			Source: planner.Source{Table: "bike_stations"}, Columns: bikeStationColumns,
			DefaultOrder: "bike_stations.name",
			Write:        bikeStationsWrite,
		},
		{
			Tag: TagBikeStationsBatch, Patterns: []string{"bikestations/*"}, Type: planner.DirType("bikestation"),
			Source: planner.Source{Table: "bike_stations"}, Columns: bikeStationColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AnyOf("bike_stations.terminal_id", m.Arg(0)), nil
			},
			DefaultOrder: "bike_stations.name",
		},
		{
			Tag: TagServiceStatus, Patterns: []string{"servicestatus"}, Type: planner.DirType("servicestatus"),
			Source: planner.Source{Table: "service_status"}, Columns: serviceStatusColumns,
			DefaultOrder: "service_status.pub_date DESC",
			Write:        serviceStatusWrite,
		},
		{
			Tag: TagServiceStatusLatest, Patterns: []string{"servicestatus/latest"}, Type: planner.DirType("servicestatus"),
			Source: planner.Source{Table: "service_status"}, Columns: serviceStatusColumns,
			Where: func(resource.Match) (planner.Clause, error) {
				return newestPerLang, nil
			},
			DefaultOrder: "service_status.lang",
		},
		{
			Tag: TagServiceStatusLang, Patterns: []string{"servicestatus/latest/*"}, Type: planner.ItemType("servicestatus"),
			Source: planner.Source{Table: "service_status"}, Columns: serviceStatusColumns,
			Where: func(m resource.Match) (planner.Clause, error) {
				return planner.AllOf(newestPerLang, planner.Equals("service_status.lang", m.Arg(0))), nil
			},
			DefaultOrder: "service_status.lang",
		},
	}
}
