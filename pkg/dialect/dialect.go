// Package dialect knows how each supported database family spells the few
// statements postmind generates itself: row limits, slicing, quoting and
// random ordering.
package dialect

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ha1tch/postmind/pkg/errors"
)

// Family identifies a database dialect.
type Family string

// Supported families.
const (
	Postgres Family = "postgres"
	Redshift Family = "redshift"
	SQLite   Family = "sqlite"
	MySQL    Family = "mysql"
	MSSQL    Family = "mssql"
)

// Families lists every recognised family.
var Families = []Family{Postgres, Redshift, SQLite, MySQL, MSSQL}

// FromScheme maps a URI scheme onto its family.
func FromScheme(scheme string) (Family, error) {
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "redshift":
		return Redshift, nil
	case "sqlite", "sqlite3", "file":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	}
	return "", errors.Newf(errors.ErrCodeUnsupportedDriver, "unsupported database scheme %q", scheme).
		WithField("scheme", scheme).
		Err()
}

func (f Family) String() string { return string(f) }

// Valid reports whether f is a recognised family.
func (f Family) Valid() bool {
	for _, known := range Families {
		if f == known {
			return true
		}
	}
	return false
}

// PostgresLike reports whether the family speaks the PostgreSQL wire dialect.
func (f Family) PostgresLike() bool {
	return f == Postgres || f == Redshift
}

// SupportsRemoteFunctions reports whether stored procedures in an embedded
// Python interpreter can be created on this family.
func (f Family) SupportsRemoteFunctions() bool {
	return f == Postgres
}

// OuterLimit reports whether limits are applied by wrapping the query in an
// outer select with a LIMIT clause. SQL Server uses TOP instead.
func (f Family) OuterLimit() bool {
	return f != MSSQL
}

// trimStatement strips trailing whitespace and semicolons so the statement
// can be nested as a subquery.
func trimStatement(q string) string {
	q = strings.TrimRightFunc(q, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return q
}

// LimitQuery restricts q to at most n rows. n <= 0 leaves q unchanged.
//
//	postgres/redshift/sqlite/mysql: select * from (q) q limit n
//	mssql:                          select top n * from (q) q
func (f Family) LimitQuery(q string, n int) string {
	if n <= 0 {
		return q
	}
	q = trimStatement(q)
	if f.OuterLimit() {
		return fmt.Sprintf("select * from (%s) q limit %d", q, n)
	}
	return fmt.Sprintf("select top %d * from (%s) q", n, q)
}

// SliceQuery returns rows [offset, offset+limit) of q. A negative limit
// means no upper bound.
func (f Family) SliceQuery(q string, offset, limit int) string {
	q = trimStatement(q)
	if offset < 0 {
		offset = 0
	}
	switch f {
	case MSSQL:
		s := fmt.Sprintf("select * from (%s) q order by (select null) offset %d rows", q, offset)
		if limit >= 0 {
			s += fmt.Sprintf(" fetch next %d rows only", limit)
		}
		return s
	case SQLite, MySQL:
		if limit < 0 {
			if f == MySQL {
				// MySQL has no open-ended LIMIT.
				return fmt.Sprintf("select * from (%s) q limit %d, 18446744073709551615", q, offset)
			}
			return fmt.Sprintf("select * from (%s) q limit -1 offset %d", q, offset)
		}
		return fmt.Sprintf("select * from (%s) q limit %d offset %d", q, limit, offset)
	default:
		if limit < 0 {
			return fmt.Sprintf("select * from (%s) q offset %d", q, offset)
		}
		return fmt.Sprintf("select * from (%s) q limit %d offset %d", q, limit, offset)
	}
}

// CountQuery counts the rows produced by q.
func (f Family) CountQuery(q string) string {
	return fmt.Sprintf("select count(*) from (%s) q", trimStatement(q))
}

// QuoteIdent quotes an identifier. Dotted names are quoted per part.
func (f Family) QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		switch f {
		case MySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case MSSQL:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = pq.QuoteIdentifier(p)
		}
	}
	return strings.Join(parts, ".")
}

// QuoteLiteral quotes a string literal.
func (f Family) QuoteLiteral(s string) string {
	if f.PostgresLike() {
		return strings.TrimSpace(pq.QuoteLiteral(s))
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Random returns the expression used to order rows randomly.
func (f Family) Random() string {
	switch f {
	case MySQL:
		return "rand()"
	case MSSQL:
		return "newid()"
	default:
		return "random()"
	}
}
