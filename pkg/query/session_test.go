package query

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/catalog"
	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/log"
)

// sqliteSession is a Session over a temp-file SQLite database.
type sqliteSession struct {
	uri     string
	c       conn.Conn
	mu      sync.Mutex
	queries []string
}

func (s *sqliteSession) Family() dialect.Family { return s.c.Family() }

func (s *sqliteSession) Query(ctx context.Context, sql string, limit int) (*conn.ResultSet, error) {
	s.mu.Lock()
	s.queries = append(s.queries, sql)
	s.mu.Unlock()
	return s.c.Query(ctx, s.c.Family().LimitQuery(sql, limit))
}

func (s *sqliteSession) Exec(ctx context.Context, sql string) error {
	_, err := s.c.Exec(ctx, sql)
	return err
}

func (s *sqliteSession) Dial(ctx context.Context) (conn.Conn, error) { return conn.Open(ctx, s.uri) }

func (s *sqliteSession) Logger() *log.Logger { return log.Discard() }

const fixture = `
CREATE TABLE Album (AlbumId INTEGER PRIMARY KEY, Title TEXT);
CREATE TABLE Track (
    TrackId INTEGER PRIMARY KEY,
    Name TEXT,
    AlbumId INTEGER REFERENCES Album(AlbumId),
    Milliseconds INTEGER,
    UnitPrice NUMERIC
);
INSERT INTO Album VALUES (1, 'For Those About To Rock'), (2, 'Balls to the Wall');
INSERT INTO Track VALUES
    (1, 'For Those About To Rock', 1, 343719, 0.99),
    (2, 'Put The Finger On You', 1, 205662, 0.99),
    (3, 'Lets Get It Up', 1, 233926, 0.99),
    (4, 'Inject The Venom', 1, 210834, 0.99),
    (5, 'Snowballed', 1, 203102, 0.99),
    (6, 'Evil Walks', 1, 263497, 0.99),
    (7, 'Balls to the Wall', 2, 342562, 1.99),
    (8, 'Fast As a Shark', 2, 230619, 1.99);
`

func newSQLiteSession(t *testing.T) *sqliteSession {
	t.Helper()
	ctx := context.Background()
	uri := "sqlite://" + filepath.Join(t.TempDir(), "chinook.db")
	c, err := conn.Open(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(ctx) })

	for _, stmt := range strings.Split(fixture, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := c.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return &sqliteSession{uri: uri, c: c}
}

func (s *sqliteSession) table(t *testing.T, name string) *Table {
	t.Helper()
	snap, err := catalog.Reflect(context.Background(), s.c, catalog.Options{})
	require.NoError(t, err)
	ct, ok := snap.Table(name)
	require.True(t, ok, name)
	return FromCatalog(s, ct)
}

// fakeSession records statements and answers queries from a callback.
type fakeSession struct {
	family  dialect.Family
	answer  func(sql string) *conn.ResultSet
	dial    func(ctx context.Context) (conn.Conn, error)
	mu      sync.Mutex
	queries []string
	execs   []string
}

func (f *fakeSession) Family() dialect.Family { return f.family }

func (f *fakeSession) Query(ctx context.Context, sql string, limit int) (*conn.ResultSet, error) {
	f.mu.Lock()
	f.queries = append(f.queries, f.family.LimitQuery(sql, limit))
	f.mu.Unlock()
	if f.answer == nil {
		return &conn.ResultSet{}, nil
	}
	return f.answer(sql), nil
}

func (f *fakeSession) Exec(ctx context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	return nil
}

func (f *fakeSession) Dial(ctx context.Context) (conn.Conn, error) { return f.dial(ctx) }

func (f *fakeSession) Logger() *log.Logger { return log.Discard() }

// fakeConn answers every query with the same row.
type fakeConn struct {
	mu      *sync.Mutex
	queries *[]string
	row     []interface{}
}

func (c fakeConn) Family() dialect.Family { return dialect.Postgres }

func (c fakeConn) Query(ctx context.Context, sql string, args ...interface{}) (*conn.ResultSet, error) {
	c.mu.Lock()
	*c.queries = append(*c.queries, sql)
	c.mu.Unlock()
	return &conn.ResultSet{Columns: []string{"count", "top"}, Rows: [][]interface{}{c.row}}, nil
}

func (c fakeConn) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	return 0, nil
}

func (c fakeConn) ExecTx(ctx context.Context, stmts ...string) error { return nil }

func (c fakeConn) Close(ctx context.Context) error { return nil }
