package query

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
)

func scoresTable(s Session) *Table {
	return Derived(s, "runs", "select * from runs", []ColumnDef{
		{Name: "id", Type: "int4"},
		{Name: "scores", Type: "float8[]", Array: true},
	})
}

func TestIndexNonArrayFails(t *testing.T) {
	s := newSQLiteSession(t)
	name, err := s.table(t, "Track").Column("Name")
	require.NoError(t, err)

	_, err = name.Index(1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTypeMismatch))
	assert.Contains(t, err.Error(), `"Name"`)
	assert.Contains(t, err.Error(), "not an array type")
	assert.Empty(t, s.queries, "no SQL may be issued")
}

func TestIndexArrayColumn(t *testing.T) {
	s := &fakeSession{family: dialect.Postgres}
	scores, err := scoresTable(s).Column("scores")
	require.NoError(t, err)

	el, err := scores.Index(2)
	require.NoError(t, err)
	assert.Equal(t, "scores[2]", el.Name())
	assert.Equal(t, "float8", el.Type())
	assert.False(t, el.IsArray())
	assert.Equal(t, `select ("scores")[2] as "scores[2]" from (select * from runs) q`, el.SQL())
}

func TestColumnMaterialisation(t *testing.T) {
	s := newSQLiteSession(t)
	ctx := context.Background()
	track := s.table(t, "Track")
	albumID, err := track.Column("AlbumId")
	require.NoError(t, err)

	rs, err := albumID.Head(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Len())
	assert.Equal(t, []string{"AlbumId"}, rs.Columns)

	all, err := albumID.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, all.Len())

	uniq, err := albumID.Unique(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, uniq.Len())

	n, err := albumID.DistinctCount(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	sample, err := albumID.Sample(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sample.Len())

	_, err = albumID.ValuesCount(ctx, 5)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedDialect))

	assert.Equal(t, "Album.AlbumId", albumID.ForeignKeysString())
	assert.Equal(t, "", albumID.RefKeysString())
	assert.Contains(t, albumID.Describe(), "Album.AlbumId")
}

func TestScalarShapeAndNdims(t *testing.T) {
	s := newSQLiteSession(t)
	ctx := context.Background()
	name, _ := s.table(t, "Track").Column("Name")

	nd, err := name.Ndims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, nd)

	sh, err := name.Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, Shape{Min: 1, Max: 1}, sh)
	assert.Empty(t, s.queries)
}

func TestArrayShapeCached(t *testing.T) {
	s := &fakeSession{
		family: dialect.Postgres,
		answer: func(sql string) *conn.ResultSet {
			if strings.Contains(sql, "array_ndims") {
				return &conn.ResultSet{Rows: [][]interface{}{{int32(1)}}}
			}
			return &conn.ResultSet{Rows: [][]interface{}{{int32(3), int32(5)}}}
		},
	}
	scores, _ := scoresTable(s).Column("scores")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sh, err := scores.Shape(ctx)
		require.NoError(t, err)
		assert.Equal(t, Shape{Min: 3, Max: 5}, sh)

		nd, err := scores.Ndims(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, nd)
	}
	assert.Len(t, s.queries, 2, "shape and ndims are cached")
	assert.Contains(t, s.queries[0], "min(array_length(col, 1))")
}

func TestArrayStatsNotCachedWhileEmpty(t *testing.T) {
	filled := false
	s := &fakeSession{
		family: dialect.Postgres,
		answer: func(sql string) *conn.ResultSet {
			if !filled {
				if strings.Contains(sql, "array_ndims") {
					return &conn.ResultSet{Rows: [][]interface{}{{nil}}}
				}
				return &conn.ResultSet{Rows: [][]interface{}{{nil, nil}}}
			}
			if strings.Contains(sql, "array_ndims") {
				return &conn.ResultSet{Rows: [][]interface{}{{int32(2)}}}
			}
			return &conn.ResultSet{Rows: [][]interface{}{{int32(4), int32(4)}}}
		},
	}
	scores, _ := scoresTable(s).Column("scores")
	ctx := context.Background()

	nd, err := scores.Ndims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, nd)
	sh, err := scores.Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, Shape{}, sh)

	filled = true
	nd, err = scores.Ndims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, nd)
	sh, err = scores.Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, Shape{Min: 4, Max: 4}, sh)
	assert.Len(t, s.queries, 4)
}

func TestValuesCountSQL(t *testing.T) {
	s := &fakeSession{
		family: dialect.Postgres,
		answer: func(string) *conn.ResultSet {
			return &conn.ResultSet{Rows: [][]interface{}{{"[1:2]={1,2}"}}}
		},
	}
	id, _ := scoresTable(s).Column("id")

	v, err := id.ValuesCount(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "[1:2]={1,2}", v)
	assert.Equal(t,
		`select madlib.mfvsketch_top_histogram(col, 10)::text from (select "id" as col from (select * from runs) q) q`,
		s.queries[0])
}

func TestSummary(t *testing.T) {
	var mu sync.Mutex
	var dialled []string
	dials := 0

	s := &fakeSession{
		family: dialect.Postgres,
		answer: func(string) *conn.ResultSet {
			return &conn.ResultSet{Rows: [][]interface{}{{int32(3), int32(5)}}}
		},
	}
	s.dial = func(ctx context.Context) (conn.Conn, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return fakeConn{mu: &mu, queries: &dialled, row: []interface{}{int64(7), "{a,b}"}}, nil
	}

	scores, _ := scoresTable(s).Column("scores")
	rows, err := scores.Summary(context.Background(), SummaryOptions{Workers: 2})
	require.NoError(t, err)

	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, i+1, r.Element)
		assert.Equal(t, "runs", r.Table)
		assert.Equal(t, "scores", r.Column)
		assert.Equal(t, int64(7), r.Distinct)
		assert.Equal(t, "{a,b}", r.Top)
	}
	assert.Len(t, dialled, 3)
	assert.Equal(t, 2, dials, "one connection per worker")
	for _, q := range dialled {
		assert.Contains(t, q, "madlib.mfvsketch_top_histogram(col, 32)")
	}

	id, _ := scoresTable(s).Column("id")
	_, err = id.Summary(context.Background(), SummaryOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeTypeMismatch))
}

func TestPercentiles(t *testing.T) {
	s := &fakeSession{family: dialect.Postgres}
	id, _ := scoresTable(s).Column("id")

	p, err := id.Percentiles(4)
	require.NoError(t, err)
	assert.Equal(t, "percentile", p.Name())
	assert.True(t, p.IsArray())
	assert.Equal(t,
		`select percentile_disc(array[0.25,0.5,0.75]) within group (order by "id") as "percentile" from (select * from runs) q`,
		p.SQL())

	scores, _ := scoresTable(s).Column("scores")
	_, err = scores.Percentiles(10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTypeMismatch))

	_, err = id.Percentiles(1)
	assert.Error(t, err)
}
