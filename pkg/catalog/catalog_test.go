package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
)

const chinook = `
CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, Name TEXT);
CREATE TABLE Album (
    AlbumId INTEGER PRIMARY KEY,
    Title TEXT,
    ArtistId INTEGER REFERENCES Artist(ArtistId)
);
CREATE TABLE Track (
    TrackId INTEGER PRIMARY KEY,
    Name TEXT,
    AlbumId INTEGER REFERENCES Album,
    UnitPrice NUMERIC
);
`

func openChinook(t *testing.T) conn.Conn {
	t.Helper()
	ctx := context.Background()
	c, err := conn.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(ctx) })

	for _, stmt := range strings.Split(chinook, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := c.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return c
}

func TestReflectSQLite(t *testing.T) {
	c := openChinook(t)

	snap, err := Reflect(context.Background(), c, Options{})
	require.NoError(t, err)

	require.Equal(t, 3, snap.Len())
	names := make([]string, 0, 3)
	for _, tbl := range snap.Tables() {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"Album", "Artist", "Track"}, names)

	track, ok := snap.Table("Track")
	require.True(t, ok)
	assert.Equal(t, []string{"TrackId", "Name", "AlbumId", "UnitPrice"}, track.ColumnNames())

	albumID, ok := track.Column("AlbumId")
	require.True(t, ok)
	assert.Equal(t, "integer", albumID.Type)
	assert.Equal(t, []Key{{Table: "Album", Column: "AlbumId"}}, albumID.ForeignKeys)

	album, _ := snap.Table("Album")
	pk, _ := album.Column("AlbumId")
	assert.Equal(t, "Track.AlbumId", JoinKeys(pk.RefKeys))

	artistID, _ := album.Column("ArtistId")
	assert.Equal(t, "Artist.ArtistId", JoinKeys(artistID.ForeignKeys))

	_, ok = snap.Table("Genre")
	assert.False(t, ok)
}

func TestSnapshotEqual(t *testing.T) {
	c := openChinook(t)
	ctx := context.Background()

	a, err := Reflect(ctx, c, Options{})
	require.NoError(t, err)
	b, err := Reflect(ctx, c, Options{})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	_, err = c.Exec(ctx, "CREATE TABLE Genre (GenreId INTEGER PRIMARY KEY, Name TEXT)")
	require.NoError(t, err)
	after, err := Reflect(ctx, c, Options{})
	require.NoError(t, err)
	assert.False(t, a.Equal(after))

	_, ok := after.Table("Genre")
	assert.True(t, ok)
	_, ok = a.Table("Genre")
	assert.False(t, ok, "earlier snapshots are never updated in place")
}

func TestReflectAfterDrop(t *testing.T) {
	c := openChinook(t)
	ctx := context.Background()

	before, err := Reflect(ctx, c, Options{})
	require.NoError(t, err)

	_, err = c.Exec(ctx, "DROP TABLE Track")
	require.NoError(t, err)
	_, err = c.Exec(ctx, "ALTER TABLE Album DROP COLUMN Title")
	require.NoError(t, err)

	after, err := Reflect(ctx, c, Options{})
	require.NoError(t, err)
	assert.False(t, before.Equal(after))

	_, ok := after.Table("Track")
	assert.False(t, ok)
	album, ok := after.Table("Album")
	require.True(t, ok)
	_, ok = album.Column("Title")
	assert.False(t, ok)
	pk, ok := album.Column("AlbumId")
	require.True(t, ok)
	assert.Empty(t, pk.RefKeys)

	_, ok = before.Table("Track")
	assert.True(t, ok, "earlier snapshots keep what they saw")
}

// fakeQuerier answers information_schema queries from canned result sets.
type fakeQuerier struct {
	family  dialect.Family
	columns *conn.ResultSet
	keys    *conn.ResultSet
	keysErr error
	seen    []string
}

func (f *fakeQuerier) Family() dialect.Family { return f.family }

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...interface{}) (*conn.ResultSet, error) {
	f.seen = append(f.seen, sql)
	if strings.Contains(sql, "information_schema.columns") {
		return f.columns, nil
	}
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	return f.keys, nil
}

func pgColumns() *conn.ResultSet {
	return &conn.ResultSet{
		Columns: []string{"table_schema", "table_name", "column_name", "udt_name", "ordinal_position", "table_type"},
		Rows: [][]interface{}{
			{"public", "orders", "id", "int4", int32(1), "BASE TABLE"},
			{"public", "orders", "customer_id", "int4", int32(2), "BASE TABLE"},
			{"public", "orders", "scores", "_float8", int32(3), "BASE TABLE"},
			{"public", "customers", "id", "int4", int32(1), "BASE TABLE"},
			{"staging", "raw_csv", "line", "text", int32(1), "FOREIGN"},
		},
	}
}

func TestReflectInformationSchema(t *testing.T) {
	q := &fakeQuerier{
		family:  dialect.Postgres,
		columns: pgColumns(),
		keys: &conn.ResultSet{Rows: [][]interface{}{
			{"public", "orders", "customer_id", "public", "customers", "id"},
		}},
	}

	snap, err := Reflect(context.Background(), q, Options{})
	require.NoError(t, err)

	assert.Contains(t, q.seen[0], "c.udt_name")
	assert.Contains(t, q.seen[0], "not in ('pg_catalog'")

	orders, ok := snap.Table("orders")
	require.True(t, ok)
	scores, _ := orders.Column("scores")
	assert.True(t, scores.Array)
	assert.Equal(t, "float8[]", scores.Type)

	cust, _ := orders.Column("customer_id")
	assert.Equal(t, "customers.id", JoinKeys(cust.ForeignKeys))

	customers, _ := snap.Table("customers")
	id, _ := customers.Column("id")
	assert.Equal(t, "orders.customer_id", JoinKeys(id.RefKeys))

	raw, ok := snap.Table("staging.raw_csv")
	require.True(t, ok)
	assert.True(t, raw.Foreign)
	assert.Equal(t, "staging", raw.Schema)
}

func TestReflectKeyFailureRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{DefaultLevel: log.LevelWarn, Output: &buf})

	q := &fakeQuerier{
		family:  dialect.Postgres,
		columns: pgColumns(),
		keysErr: fmt.Errorf("permission denied for table table_constraints"),
	}

	snap, err := Reflect(context.Background(), q, Options{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())

	orders, _ := snap.Table("orders")
	cust, _ := orders.Column("customer_id")
	assert.Empty(t, cust.ForeignKeys)
	assert.Contains(t, buf.String(), "foreign keys unavailable")
}

func TestReflectSchemaFilter(t *testing.T) {
	q := &fakeQuerier{family: dialect.Postgres, columns: &conn.ResultSet{}, keys: &conn.ResultSet{}}
	_, err := Reflect(context.Background(), q, Options{Schemas: []string{"analytics"}, IncludeSystem: true})
	require.NoError(t, err)
	assert.Contains(t, q.seen[0], "c.table_schema in ('analytics')")
	assert.NotContains(t, q.seen[0], "not in")
}

func TestReflectColumnsFailure(t *testing.T) {
	c := openChinook(t)
	c.Close(context.Background())

	_, err := Reflect(context.Background(), c, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaReflection))
}
