// Package conn owns database connections for postmind.
//
// A Conn is a single connection: postmind issues one statement at a time and
// never pools. Parallel fan-out (RunParallel) dials one extra connection per
// worker. Result values are normalised across drivers: text comes back as
// string, NUMERIC/DECIMAL/MONEY as decimal.Decimal, arrays as []interface{}.
package conn

import (
	"context"
	"net/url"
	"strings"

	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
)

// Conn is a single database connection.
type Conn interface {
	// Family returns the dialect family of the connected database.
	Family() dialect.Family

	// Query runs a statement and returns all of its rows.
	Query(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...interface{}) (int64, error)

	// ExecTx runs statements in one transaction, rolling back on the first
	// failure.
	ExecTx(ctx context.Context, stmts ...string) error

	// Close releases the connection. Further calls fail with a
	// connection-closed error.
	Close(ctx context.Context) error
}

// Dialer opens a fresh connection.
type Dialer func(ctx context.Context) (Conn, error)

// Target is a parsed connection URI.
type Target struct {
	Family dialect.Family
	Driver string // pgx, sqlite3 or sqlserver
	DSN    string
}

// ParseURI maps a postmind connection URI onto a driver and DSN.
//
//	postgres://u:p@host:5432/db   -> pgx
//	redshift://u:p@host:5439/db   -> pgx, postgres:// DSN
//	sqlite:///abs/path.db         -> sqlite3 "/abs/path.db"
//	sqlite://:memory:             -> sqlite3 ":memory:"
//	mssql://u:p@host:1433/db      -> sqlserver "sqlserver://u:p@host:1433?database=db"
func ParseURI(uri string) (Target, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return Target{}, errors.Newf(errors.ErrCodeInvalidURI, "invalid connection uri %q", Redact(uri)).Err()
	}
	family, err := dialect.FromScheme(scheme)
	if err != nil {
		return Target{}, err
	}

	switch family {
	case dialect.Postgres, dialect.Redshift:
		return Target{Family: family, Driver: "pgx", DSN: "postgres://" + rest}, nil

	case dialect.SQLite:
		path, query, _ := strings.Cut(rest, "?")
		if path == "" {
			path = ":memory:"
		}
		dsn := path
		opts := "_foreign_keys=ON"
		if query != "" {
			opts = query + "&" + opts
		}
		return Target{Family: family, Driver: "sqlite3", DSN: dsn + "?" + opts}, nil

	case dialect.MSSQL:
		u, err := url.Parse("sqlserver://" + rest)
		if err != nil {
			return Target{}, errors.Wrap(err, errors.ErrCodeInvalidURI, "invalid sql server uri").Err()
		}
		if db := strings.Trim(u.Path, "/"); db != "" {
			q := u.Query()
			q.Set("database", db)
			u.RawQuery = q.Encode()
			u.Path = ""
		}
		return Target{Family: family, Driver: "sqlserver", DSN: u.String()}, nil
	}

	return Target{}, errors.Newf(errors.ErrCodeUnsupportedDriver, "no driver bundled for %s", family).
		WithField("family", family.String()).
		Err()
}

// Open connects to uri.
func Open(ctx context.Context, uri string) (Conn, error) {
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var c Conn
	if target.Driver == "pgx" {
		c, err = openPostgres(ctx, target)
	} else {
		c, err = openSQL(ctx, target)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "cannot connect").
			WithField("uri", Redact(uri)).
			WithOp("conn.Open").
			Err()
	}
	return c, nil
}

// DialURI returns a Dialer that opens uri.
func DialURI(uri string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return Open(ctx, uri)
	}
}

// Redact hides the password of a URI for logging.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}

func closedError(op string) error {
	return errors.New(errors.ErrCodeConnectionClosed, "connection is closed").WithOp(op).Err()
}
