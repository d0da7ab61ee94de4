package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/errors"
)

func TestFromScheme(t *testing.T) {
	tests := map[string]Family{
		"postgres":   Postgres,
		"postgresql": Postgres,
		"redshift":   Redshift,
		"sqlite":     SQLite,
		"mysql":      MySQL,
		"mssql":      MSSQL,
		"sqlserver":  MSSQL,
	}
	for scheme, want := range tests {
		got, err := FromScheme(scheme)
		require.NoError(t, err, scheme)
		assert.Equal(t, want, got, scheme)
	}

	_, err := FromScheme("oracle")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedDriver))
}

func TestLimitQuery(t *testing.T) {
	q := "select * from Album;\n"

	for _, f := range []Family{Postgres, Redshift, SQLite, MySQL} {
		assert.Equal(t, "select * from (select * from Album) q limit 10", f.LimitQuery(q, 10), f.String())
	}
	assert.Equal(t, "select top 10 * from (select * from Album) q", MSSQL.LimitQuery(q, 10))

	assert.Equal(t, q, Postgres.LimitQuery(q, 0), "zero limit leaves the query untouched")
	assert.Equal(t, q, MSSQL.LimitQuery(q, -1))
}

func TestSliceQuery(t *testing.T) {
	q := "select a from t"

	tests := []struct {
		family        Family
		offset, limit int
		want          string
	}{
		{Postgres, 2, 3, "select * from (select a from t) q limit 3 offset 2"},
		{Postgres, 2, -1, "select * from (select a from t) q offset 2"},
		{SQLite, 0, 5, "select * from (select a from t) q limit 5 offset 0"},
		{SQLite, 4, -1, "select * from (select a from t) q limit -1 offset 4"},
		{MSSQL, 1, 2, "select * from (select a from t) q order by (select null) offset 1 rows fetch next 2 rows only"},
		{MSSQL, 3, -1, "select * from (select a from t) q order by (select null) offset 3 rows"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.family.SliceQuery(q, tt.offset, tt.limit))
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"Track"`, Postgres.QuoteIdent("Track"))
	assert.Equal(t, `"public"."Track"`, Postgres.QuoteIdent("public.Track"))
	assert.Equal(t, "[Track]", MSSQL.QuoteIdent("Track"))
	assert.Equal(t, "`Track`", MySQL.QuoteIdent("Track"))

	assert.Equal(t, `'it''s'`, Postgres.QuoteLiteral("it's"))
	assert.Equal(t, `'it''s'`, SQLite.QuoteLiteral("it's"))
	assert.Equal(t, `E'a\\b'`, Postgres.QuoteLiteral(`a\b`))
}

func TestCapabilities(t *testing.T) {
	assert.True(t, Postgres.SupportsRemoteFunctions())
	assert.False(t, SQLite.SupportsRemoteFunctions())
	assert.True(t, Redshift.PostgresLike())
	assert.False(t, MSSQL.OuterLimit())
	assert.Equal(t, "newid()", MSSQL.Random())
	assert.Equal(t, "random()", SQLite.Random())
	assert.False(t, Family("db2").Valid())
}
