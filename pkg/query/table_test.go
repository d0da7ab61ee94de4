package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
)

func TestSelectReturnsRequestedColumnsInOrder(t *testing.T) {
	s := newSQLiteSession(t)
	track := s.table(t, "Track")
	assert.Len(t, track.Columns(), 5)

	sel, err := track.Select(Col("UnitPrice"), Col("Name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"UnitPrice", "Name"}, sel.ColumnNames())
	assert.Empty(t, s.queries, "select must not touch the database")

	rs, err := sel.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"UnitPrice", "Name"}, rs.Columns)
	assert.Equal(t, 8, rs.Len())
	assert.Equal(t, "For Those About To Rock", rs.Rows[0][1])
}

func TestSelectItems(t *testing.T) {
	s := newSQLiteSession(t)
	track := s.table(t, "Track")
	name, err := track.Column("Name")
	require.NoError(t, err)

	sel, err := track.Select(name, Raw{Expr: `"Milliseconds" / 1000`, Name: "seconds", Type: "integer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "seconds"}, sel.ColumnNames())

	rs, err := sel.Head(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(343), rs.Rows[0][1])

	_, err = track.Select(Col("Composer"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeColumnNotFound))

	album := s.table(t, "Album")
	title, _ := album.Column("Title")
	_, err = track.Select(title)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTypeMismatch))

	_, err = track.Select()
	assert.Error(t, err)
}

func TestGetTaggedIndex(t *testing.T) {
	s := newSQLiteSession(t)
	track := s.table(t, "Track")

	node, err := track.Get(ByName("Name"))
	require.NoError(t, err)
	assert.Equal(t, "Column(Name)", node.String())

	node, err = track.Get(ByIndex(-1))
	require.NoError(t, err)
	assert.Equal(t, "UnitPrice", node.Name())

	_, err = track.Get(ByIndex(5))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIndex))

	node, err = track.Get(BySelection{"TrackId", "Name"})
	require.NoError(t, err)
	sel, ok := node.(*Table)
	require.True(t, ok)
	assert.Equal(t, []string{"TrackId", "Name"}, sel.ColumnNames())

	node, err = track.Get(BySlice{Start: 2, Stop: 5})
	require.NoError(t, err)
	rs, err := node.(*Table).Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, int64(3), rs.Rows[0][0])

	node, err = track.Get(BySlice{Start: 6, Stop: -1})
	require.NoError(t, err)
	n, err := node.(*Table).Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = track.Get(BySlice{Start: 4, Stop: 2})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIndex))
}

func TestMaterialisation(t *testing.T) {
	s := newSQLiteSession(t)
	ctx := context.Background()
	track := s.table(t, "Track")

	rs, err := track.Head(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHead, rs.Len())

	n, err := track.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	albums, err := track.Unique(ctx, "AlbumId")
	require.NoError(t, err)
	assert.Equal(t, 2, albums.Len())

	sample, err := track.Sample(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sample.Len())

	var names []string
	err = track.Where(`"AlbumId" = 2`).Each(ctx, func(row map[string]interface{}) error {
		names = append(names, row["Name"].(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Balls to the Wall", "Fast As a Shark"}, names)

	ordered, err := track.OrderBy("Milliseconds", true)
	require.NoError(t, err)
	first, err := ordered.Head(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "For Those About To Rock", first.Rows[0][1])

	_, err = track.OrderBy("Nope", false)
	assert.True(t, errors.IsCode(err, errors.ErrCodeColumnNotFound))
}

func TestUnion(t *testing.T) {
	s := newSQLiteSession(t)
	ctx := context.Background()
	track := s.table(t, "Track")

	a, err := track.Slice(0, 2)
	require.NoError(t, err)
	b, err := track.Slice(6, -1)
	require.NoError(t, err)

	u, err := a.Union(b)
	require.NoError(t, err)
	n, err := u.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, track.ColumnNames(), u.ColumnNames())

	_, err = track.Union(s.table(t, "Album"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeTypeMismatch))
}

func TestFragmentsAreImmutable(t *testing.T) {
	s := newSQLiteSession(t)
	track := s.table(t, "Track")
	before := track.SQL()

	_, err := track.Select(Col("Name"))
	require.NoError(t, err)
	track.Where("1 = 1")
	_, err = track.Slice(1, 2)
	require.NoError(t, err)

	assert.Equal(t, before, track.SQL())
	assert.Equal(t, `select * from "Track"`, before)
}

func TestAttributeDeconfliction(t *testing.T) {
	s := &fakeSession{family: dialect.Postgres}
	tbl := Derived(s, "people", "select 1", []ColumnDef{
		{Name: "id"}, {Name: "name"}, {Name: "_name"}, {Name: "ctx"}, {Name: "data"},
	})

	assert.Equal(t, []string{"id", "_name", "__name", "_ctx", "_data"}, tbl.Attrs())

	c, ok := tbl.Attr("_name")
	require.True(t, ok)
	assert.Equal(t, "name", c.Name())

	c, ok = tbl.Attr("__name")
	require.True(t, ok)
	assert.Equal(t, "_name", c.Name())

	_, ok = tbl.Attr("name")
	assert.False(t, ok)

	c, err := tbl.Column("name")
	require.NoError(t, err)
	assert.Equal(t, "name", c.Name())
}

func TestCSVStatement(t *testing.T) {
	s := &fakeSession{family: dialect.Postgres}
	tbl := Derived(s, "track", "select * from track", []ColumnDef{{Name: "name", Type: "text"}})

	stmt, err := tbl.CSVStatement("/tmp/track.csv.gz", true)
	require.NoError(t, err)
	assert.Contains(t, stmt, "gzip > /tmp/track.csv.gz")

	stmt, err = tbl.CSVStatement("/tmp/track.csv", false)
	require.NoError(t, err)
	assert.NotContains(t, stmt, "gzip")
	assert.Contains(t, stmt, "TO '/tmp/track.csv'")

	require.NoError(t, tbl.ToCSV(context.Background(), "/tmp/track.csv", false))
	assert.Equal(t, []string{stmt}, s.execs)

	lite := newSQLiteSession(t)
	_, err = lite.table(t, "Track").CSVStatement("/tmp/x.csv", false)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedDialect))
}

func TestDescribe(t *testing.T) {
	s := newSQLiteSession(t)
	out := s.table(t, "Track").Describe()

	assert.True(t, strings.Contains(out, "Track"))
	assert.Contains(t, out, "Reference Keys")
	assert.Contains(t, out, "Album.AlbumId")
	assert.Equal(t, "Table(Track)", s.table(t, "Track").String())
}

func TestMSSQLHead(t *testing.T) {
	s := &fakeSession{family: dialect.MSSQL, answer: func(string) *conn.ResultSet { return &conn.ResultSet{} }}
	tbl := Derived(s, "t", "select * from [t]", nil)

	_, err := tbl.Head(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"select top 3 * from (select * from [t]) q"}, s.queries)
}
