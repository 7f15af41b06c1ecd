package userdata_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitstore.org/internal/families/userdata"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/notify"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/provider"
	"transitstore.org/internal/resource"
	"transitstore.org/transitdb"
)

func newProvider(t *testing.T) *provider.Provider {
	t.Helper()
	family := userdata.New()
	store := transitdb.New(family, transitdb.Config{Path: transitdb.MemoryPath})
	p := provider.New(family, store, notify.New(nil, nil, nil), nil, nil)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func query(t *testing.T, p *provider.Provider, uri string) *planner.ResultSet {
	t.Helper()
	rs, err := p.Query(context.Background(), resource.MustParse(uri), planner.Query{})
	require.NoError(t, err)
	return rs
}

func TestFavoriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	item, err := p.Insert(ctx, resource.MustParse("data/favs"), mutation.Values{
		"fk1": "52345", "fk2": "51", "type": userdata.FavoriteBusStop,
	})
	require.NoError(t, err)
	assert.Equal(t, "transit://data/favs/1", item.String())

	rs := query(t, p, "data/favs/"+userdata.FavoriteKey("52345", "51", userdata.FavoriteBusStop))
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, "52345", rs.Text(0, "fk1"))
	assert.Equal(t, "51", rs.Text(0, "fk2"))

	n, err := p.Delete(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rs = query(t, p, "data/favs/"+userdata.FavoriteKey("52345", "51", userdata.FavoriteBusStop))
	assert.Zero(t, rs.Len())
}

func TestFavoriteWithoutSecondKey(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, err := p.Insert(ctx, resource.MustParse("data/favs"), mutation.Values{
		"fk1": "2", "type": userdata.FavoriteSubwayStation,
	})
	require.NoError(t, err)

	rs := query(t, p, "data/favs/"+userdata.FavoriteKey("2", "", userdata.FavoriteSubwayStation))
	require.Equal(t, 1, rs.Len())
	fk2, ok := rs.Value(0, "fk2")
	require.True(t, ok)
	assert.Nil(t, fk2)

	// The key treats a missing fk2 as a value of its own.
	_, err = p.Insert(ctx, resource.MustParse("data/favs"), mutation.Values{
		"fk1": "2", "type": userdata.FavoriteSubwayStation,
	})
	assert.ErrorIs(t, err, mutation.ErrInsertFailed)
}

func TestDuplicateFavoriteRejected(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	fav := mutation.Values{"fk1": "52345", "fk2": "80", "type": userdata.FavoriteBusStop}

	_, err := p.Insert(ctx, resource.MustParse("data/favs"), fav)
	require.NoError(t, err)
	_, err = p.Insert(ctx, resource.MustParse("data/favs"), fav)
	assert.ErrorIs(t, err, mutation.ErrInsertFailed)

	assert.Equal(t, 1, query(t, p, "data/favs").Len())
}

func TestFavoritesByType(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	n, err := p.BulkInsert(ctx, resource.MustParse("data/favs"), []mutation.Values{
		{"fk1": "52345", "fk2": "51", "type": userdata.FavoriteBusStop},
		{"fk1": "3", "type": userdata.FavoriteSubwayStation},
		{"fk1": "61001", "fk2": "24", "type": userdata.FavoriteBusStop},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"52345", "61001"}, query(t, p, "data/favs/type/1").Column("fk1"))
	assert.Equal(t, []string{"3"}, query(t, p, "data/favs/type/2").Column("fk1"))
	// Listing orders by kind first.
	assert.Equal(t, []string{"52345", "61001", "3"}, query(t, p, "data/favs").Column("fk1"))

	_, err = p.Insert(ctx, resource.MustParse("data/favs/type/1"), mutation.Values{"fk1": "1"})
	assert.ErrorIs(t, err, resource.ErrUnknownResource)
}

func TestUpdateChangesNothing(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	item, err := p.Insert(ctx, resource.MustParse("data/favs"), mutation.Values{
		"fk1": "52345", "fk2": "51", "type": userdata.FavoriteBusStop,
	})
	require.NoError(t, err)
	before := query(t, p, item.String())

	n, err := p.Update(ctx, item, mutation.Values{"fk2": "80"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before.Rows, query(t, p, item.String()).Rows)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	for _, text := range []string{"parc", "sherbrooke", "berri"} {
		_, err := p.Insert(ctx, resource.MustParse("data/history"), mutation.Values{"text": text})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"berri", "sherbrooke", "parc"}, query(t, p, "data/history").Column("text"))

	n, err := p.Delete(ctx, resource.MustParse("data/history"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Zero(t, query(t, p, "data/history").Len())
}

func TestBikeStationSnapshots(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	u := resource.MustParse("data/bikestations")

	_, err := p.Replace(ctx, u, []mutation.Values{
		{"terminal_id": "6001", "name": "Métro Mont-Royal", "bikes": 4, "empty_docks": 11},
		{"terminal_id": "6002", "name": "Berri / Ontario", "bikes": 0, "empty_docks": 19},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Berri / Ontario", "Métro Mont-Royal"}, query(t, p, "data/bikestations").Column("name"))

	_, err = p.Replace(ctx, u, []mutation.Values{
		{"terminal_id": "6002", "name": "Berri / Ontario", "bikes": 7, "empty_docks": 12, "latest_update_time": 1700000000},
		{"terminal_id": "6003", "name": "Laurier / Parc", "bikes": 2, "empty_docks": 9},
	})
	require.NoError(t, err)

	rs := query(t, p, "data/bikestations/6003+6002+6002+6999")
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, []string{"6002", "6003"}, rs.Column("terminal_id"))
	assert.Equal(t, "7", rs.Text(0, "bikes"))
	assert.Equal(t, "1700000000", rs.Text(0, "latest_update_time"))

	// A failing snapshot leaves the previous one in place.
	_, err = p.Replace(ctx, u, []mutation.Values{
		{"terminal_id": "6004", "name": "Rachel / Papineau"},
		{"terminal_id": "6004", "name": "Rachel / Papineau"},
	})
	assert.ErrorIs(t, err, mutation.ErrInsertFailed)
	assert.Equal(t, 2, query(t, p, "data/bikestations").Len())
}

func TestServiceStatusLatest(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, err := p.BulkInsert(ctx, resource.MustParse("data/servicestatus"), []mutation.Values{
		{"message": "Service normal", "pub_date": 100, "lang": "fr"},
		{"message": "Normal service", "pub_date": 110, "lang": "en"},
		{"message": "Ligne orange interrompue", "pub_date": 200, "lang": "fr"},
		{"message": "Older notice", "pub_date": 90, "lang": "en"},
	})
	require.NoError(t, err)

	rs := query(t, p, "data/servicestatus")
	assert.Equal(t, []string{"200", "110", "100", "90"}, rs.Column("pub_date"))

	rs = query(t, p, "data/servicestatus/latest")
	assert.Equal(t, []string{"en", "fr"}, rs.Column("lang"))
	assert.Equal(t, []string{"Normal service", "Ligne orange interrompue"}, rs.Column("message"))

	rs = query(t, p, "data/servicestatus/latest/fr")
	require.Equal(t, 1, rs.Len())
	pub, ok := rs.Int64(0, "pub_date")
	require.True(t, ok)
	assert.Equal(t, int64(200), pub)
}

func TestServiceStatusLatestWithProjection(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, err := p.BulkInsert(ctx, resource.MustParse("data/servicestatus"), []mutation.Values{
		{"message": "Service normal", "pub_date": 100, "lang": "fr"},
		{"message": "Normal service", "pub_date": 110, "lang": "en"},
		{"message": "Ligne orange interrompue", "pub_date": 200, "lang": "fr"},
		{"message": "Older notice", "pub_date": 90, "lang": "en"},
		{"message": "Same time, later row", "pub_date": 110, "lang": "en"},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		uri      string
		langs    []string
		messages []string
	}{
		{
			name:     "every language",
			uri:      "data/servicestatus/latest",
			langs:    []string{"en", "fr"},
			messages: []string{"Same time, later row", "Ligne orange interrompue"},
		},
		{
			name:     "one language",
			uri:      "data/servicestatus/latest/fr",
			langs:    []string{"fr"},
			messages: []string{"Ligne orange interrompue"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := p.Query(ctx, resource.MustParse(tt.uri), planner.Query{Projection: []string{"lang", "message"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"lang", "message"}, rs.Columns)
			assert.Equal(t, tt.langs, rs.Column("lang"))
			assert.Equal(t, tt.messages, rs.Column("message"))
		})
	}
}

func TestWritesNotify(t *testing.T) {
	ctx := context.Background()
	n := notify.New(nil, nil, nil)
	family := userdata.New()
	p := provider.New(family, transitdb.New(family, transitdb.Config{Path: transitdb.MemoryPath}), n, nil, nil)
	defer func() { _ = p.Close() }()

	sub := n.Subscribe(resource.MustParse("data/favs"), true)
	defer sub.Close()

	item, err := p.Insert(ctx, resource.MustParse("data/favs"), mutation.Values{"fk1": "1", "type": userdata.FavoriteSubwayStation})
	require.NoError(t, err)

	ev := <-sub.C()
	assert.True(t, ev.URI.Equal(item))
}

// legacy serves an older version of the family: the schema as it was
// shipped at that version, with only the migrations that existed then.
type legacy struct {
	*userdata.Family
	version int
	create  []string
}

func (l legacy) Version() int     { return l.version }
func (l legacy) Create() []string { return l.create }
func (l legacy) Migrations() []transitdb.Migration {
	var out []transitdb.Migration
	for _, m := range l.Family.Migrations() {
		if m.To <= l.version {
			out = append(out, m)
		}
	}
	return out
}

var v1 = []string{
	`CREATE TABLE favorites (id INTEGER PRIMARY KEY AUTOINCREMENT, fk1 TEXT NOT NULL, fk2 TEXT, type INTEGER NOT NULL)`,
	`CREATE TABLE history (id INTEGER PRIMARY KEY AUTOINCREMENT, text TEXT NOT NULL)`,
}

func describe(t *testing.T, s *transitdb.Store) []transitdb.TableInfo {
	t.Helper()
	db, err := s.Get(context.Background())
	require.NoError(t, err)
	tables, err := transitdb.Describe(context.Background(), db)
	require.NoError(t, err)
	return tables
}

func seedLegacy(t *testing.T, path string, schema transitdb.Schema, stmts ...string) {
	t.Helper()
	ctx := context.Background()
	s := transitdb.New(schema, transitdb.Config{Path: path})
	db, err := s.Get(ctx)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err = db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
}

func TestUpgradeMatchesFreshCreate(t *testing.T) {
	ctx := context.Background()
	fresh := transitdb.New(userdata.New(), transitdb.Config{Path: transitdb.MemoryPath})
	defer func() { _ = fresh.Close() }()
	want := describe(t, fresh)

	// Straight from v1 to the current version.
	direct := filepath.Join(t.TempDir(), "userdata.db")
	seedLegacy(t, direct, legacy{userdata.New(), 1, v1},
		`INSERT INTO favorites (fk1, fk2, type) VALUES ('52345', '51', 1)`,
		`INSERT INTO history (text) VALUES ('parc')`)
	upgraded := transitdb.New(userdata.New(), transitdb.Config{Path: direct})
	defer func() { _ = upgraded.Close() }()
	assert.Equal(t, want, describe(t, upgraded))

	db, err := upgraded.Get(ctx)
	require.NoError(t, err)
	counts, err := transitdb.TableCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["favorites"])
	assert.Equal(t, 1, counts["history"])

	// One version at a time.
	stepwise := filepath.Join(t.TempDir(), "userdata.db")
	seedLegacy(t, stepwise, legacy{userdata.New(), 1, v1})
	for v := 2; v < userdata.Version; v++ {
		seedLegacy(t, stepwise, legacy{userdata.New(), v, nil})
	}
	last := transitdb.New(userdata.New(), transitdb.Config{Path: stepwise})
	defer func() { _ = last.Close() }()
	assert.Equal(t, want, describe(t, last))
}

func TestUniqueFavoritesMigrationDropsDuplicates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "userdata.db")
	seedLegacy(t, path, legacy{userdata.New(), 1, v1},
		`INSERT INTO favorites (fk1, fk2, type) VALUES ('52345', '51', 1), ('52345', '51', 1), ('3', NULL, 2), ('3', NULL, 2), ('3', '1', 2)`)

	s := transitdb.New(userdata.New(), transitdb.Config{Path: path})
	defer func() { _ = s.Close() }()
	db, err := s.Get(ctx)
	require.NoError(t, err)

	var ids []string
	rows, err := db.QueryContext(ctx, `SELECT id FROM favorites ORDER BY id`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, "1,3,5", strings.Join(ids, ","))
}

// gap ships the current version without the step to v3.
type gap struct{ *userdata.Family }

func (g gap) Migrations() []transitdb.Migration {
	var out []transitdb.Migration
	for _, m := range g.Family.Migrations() {
		if m.To != 3 {
			out = append(out, m)
		}
	}
	return out
}

func TestMissingStepResets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "userdata.db")
	seedLegacy(t, path, legacy{userdata.New(), 1, v1},
		`INSERT INTO favorites (fk1, fk2, type) VALUES ('52345', '51', 1)`)

	s := transitdb.New(gap{userdata.New()}, transitdb.Config{Path: path})
	defer func() { _ = s.Close() }()

	fresh := transitdb.New(userdata.New(), transitdb.Config{Path: transitdb.MemoryPath})
	defer func() { _ = fresh.Close() }()
	assert.Equal(t, describe(t, fresh), describe(t, s))

	db, err := s.Get(ctx)
	require.NoError(t, err)
	counts, err := transitdb.TableCounts(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, counts["favorites"])

	version, err := transitdb.UserVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, userdata.Version, version)
}
