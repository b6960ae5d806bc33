// Package testutil provides a migrated sqlite database with a small,
// fixed set of users, names, locations, images and observations.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/obsquery/internal/db"
)

// BaseTime is the created_at of the first fixture row; each later row is
// one day newer.
const BaseTime int64 = 1700000000

const day = 86400

// Fixtures maps fixture keys to the ids they were inserted with.
type Fixtures struct {
	Users        map[string]int64
	Names        map[string]int64
	Locations    map[string]int64
	Images       map[string]int64
	Observations map[string]int64
}

// ObservationIDs returns the ids of the given observation keys, in order.
func (f *Fixtures) ObservationIDs(keys ...string) []int64 {
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = f.Observations[k]
	}
	return ids
}

// NewDB opens a migrated sqlite database under t.TempDir.
func NewDB(t testing.TB) *db.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := db.NewConnection(ctx, db.Config{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "obsquery.db"),
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, db.Migrate(ctx, conn, db.Config{Driver: db.DriverSQLite}))
	return conn
}

// NewSeededDB opens a migrated database and loads the fixtures.
func NewSeededDB(t testing.TB) (*db.Connection, *Fixtures) {
	t.Helper()
	conn := NewDB(t)
	fixtures, err := Seed(context.Background(), conn)
	require.NoError(t, err)
	return conn, fixtures
}

type userRow struct{ key, login, name string }

type nameRow struct {
	key, text, search, author, rank string
	deprecated                      bool
	correctKey                      string
	synonym                         int64
	classification                  string
}

type locationRow struct {
	key, name                string
	north, south, east, west float64
}

type imageRow struct{ key, user, when, notes string }

type observationRow struct {
	key, user, name, location string
	when, where, notes        string
	thumb                     string
	images                    []string
	specimen                  bool
	lat, lng                  *float64
	vote                      float64
}

func f64(v float64) *float64 { return &v }

var (
	users = []userRow{
		{"alice", "alice", "Alice Abbot"},
		{"bob", "bob", "Bob Burns"},
		{"rolf", "rolf", "Rolf Singer"},
	}

	names = []nameRow{
		{key: "amanita", text: "Amanita", search: "Amanita", author: "Pers.", rank: "Genus",
			classification: "Order: _Agaricales_\r\nFamily: _Amanitaceae_"},
		{key: "muscaria", text: "Amanita muscaria", search: "Amanita muscaria (L.) Lam.", author: "(L.) Lam.", rank: "Species",
			classification: "Order: _Agaricales_\r\nFamily: _Amanitaceae_\r\nGenus: _Amanita_"},
		{key: "campestris", text: "Agaricus campestris", search: "Agaricus campestris L.", author: "L.", rank: "Species",
			synonym: 1, classification: "Order: _Agaricales_\r\nFamily: _Agaricaceae_\r\nGenus: _Agaricus_"},
		{key: "campestros", text: "Agaricus campestros", search: "Agaricus campestros", rank: "Species", deprecated: true, correctKey: "campestris",
			synonym: 1},
		{key: "edulis", text: "Boletus edulis", search: "Boletus edulis Bull.", author: "Bull.", rank: "Species",
			classification: "Order: _Boletales_\r\nFamily: _Boletaceae_\r\nGenus: _Boletus_"},
	}

	locations = []locationRow{
		{"burbank", "Burbank, California, USA", 34.22, 34.15, -118.27, -118.37},
		{"portland", "Portland, Oregon, USA", 45.65, 45.43, -122.47, -122.84},
		{"albion", "Albion, Mendocino Co., California, USA", 39.25, 39.20, -123.72, -123.80},
	}

	images = []imageRow{
		{"img1", "alice", "2024-05-01", "cap detail"},
		{"img2", "alice", "2024-11-20", "pores"},
		{"img3", "bob", "2024-06-03", "habitat"},
		{"img4", "rolf", "2022-12-25", "gills"},
	}

	observations = []observationRow{
		{key: "o1", user: "alice", name: "muscaria", location: "burbank", when: "2024-05-01",
			where: "Burbank, California, USA", notes: "red cap with white warts", thumb: "img1",
			images: []string{"img1"}, specimen: true, lat: f64(34.18), lng: f64(-118.30), vote: 2.5},
		{key: "o2", user: "alice", name: "campestris", location: "portland", when: "2023-10-15",
			where: "Portland, Oregon, USA", notes: "field mushroom", vote: 1},
		{key: "o3", user: "alice", name: "edulis", location: "albion", when: "2024-11-20",
			where: "Albion, Mendocino Co., California, USA", notes: "porcini under pines", thumb: "img2",
			images: []string{"img2"}, vote: 3},
		{key: "o4", user: "bob", name: "muscaria", location: "portland", when: "2024-06-03",
			where: "Portland, Oregon, USA", notes: "fly agaric", thumb: "img3",
			images: []string{"img3"}, specimen: true, vote: -1},
		{key: "o5", user: "rolf", name: "campestros", location: "albion", when: "2022-12-25",
			where: "Albion, Mendocino Co., California, USA", thumb: "img4", images: []string{"img4"}},
		{key: "o6", user: "bob", location: "burbank", when: "2021-01-05",
			where: "Burbank, California, USA", notes: "unidentified brown thing"},
	}
)

// Seed inserts the fixtures in one transaction.
func Seed(ctx context.Context, conn *db.Connection) (*Fixtures, error) {
	f := &Fixtures{
		Users:        map[string]int64{},
		Names:        map[string]int64{},
		Locations:    map[string]int64{},
		Images:       map[string]int64{},
		Observations: map[string]int64{},
	}
	err := conn.WithTx(ctx, func(tx db.DB) error {
		s := seeder{ctx: ctx, tx: tx, when: BaseTime}
		return s.run(f)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed fixtures: %w", err)
	}
	return f, nil
}

type seeder struct {
	ctx  context.Context
	tx   db.DB
	when int64
}

func (s *seeder) insert(query string, args ...any) (int64, error) {
	var id int64
	err := s.tx.QueryRow(s.ctx, s.tx.Dialect().Rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

func (s *seeder) stamp() int64 {
	s.when += day
	return s.when
}

func nullable(m map[string]int64, key string) any {
	if key == "" {
		return nil
	}
	return m[key]
}

func (s *seeder) run(f *Fixtures) error {
	for _, u := range users {
		at := s.stamp()
		id, err := s.insert(`INSERT INTO users (login, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			u.login, u.name, at, at)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.key, err)
		}
		f.Users[u.key] = id
	}
	for _, n := range names {
		at := s.stamp()
		var synonym any
		if n.synonym > 0 {
			synonym = n.synonym
		}
		id, err := s.insert(`INSERT INTO names (text_name, search_name, author, rank, deprecated, correct_spelling_id,
			synonym_id, classification, user_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.text, n.search, n.author, n.rank, n.deprecated, nullable(f.Names, n.correctKey),
			synonym, n.classification, f.Users["rolf"], at, at)
		if err != nil {
			return fmt.Errorf("name %s: %w", n.key, err)
		}
		f.Names[n.key] = id
	}
	for _, l := range locations {
		at := s.stamp()
		id, err := s.insert(`INSERT INTO locations (name, north, south, east, west, user_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.name, l.north, l.south, l.east, l.west, f.Users["rolf"], at, at)
		if err != nil {
			return fmt.Errorf("location %s: %w", l.key, err)
		}
		f.Locations[l.key] = id
	}
	for _, img := range images {
		at := s.stamp()
		id, err := s.insert(`INSERT INTO images (user_id, when_date, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			f.Users[img.user], img.when, img.notes, at, at)
		if err != nil {
			return fmt.Errorf("image %s: %w", img.key, err)
		}
		f.Images[img.key] = id
	}
	for _, o := range observations {
		at := s.stamp()
		id, err := s.insert(`INSERT INTO observations (user_id, name_id, location_id, when_date, where_name, notes,
			thumb_image_id, specimen, is_collection_location, vote_cache, lat, lng, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Users[o.user], nullable(f.Names, o.name), nullable(f.Locations, o.location), o.when, o.where, o.notes,
			nullable(f.Images, o.thumb), o.specimen, true, o.vote, o.lat, o.lng, at, at)
		if err != nil {
			return fmt.Errorf("observation %s: %w", o.key, err)
		}
		f.Observations[o.key] = id
		for _, img := range o.images {
			if _, err := s.tx.Exec(s.ctx, s.tx.Dialect().Rebind(`INSERT INTO observation_images (observation_id, image_id) VALUES (?, ?)`),
				id, f.Images[img]); err != nil {
				return fmt.Errorf("observation %s image %s: %w", o.key, img, err)
			}
		}
	}
	if _, err := s.tx.Exec(s.ctx, s.tx.Dialect().Rebind(`INSERT INTO comments (target_type, target_id, user_id, summary, created_at) VALUES (?, ?, ?, ?, ?)`),
		"Observation", f.Observations["o4"], f.Users["alice"], "Nice find", s.stamp()); err != nil {
		return fmt.Errorf("comment: %w", err)
	}
	return nil
}
