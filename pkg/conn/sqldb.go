package conn

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
)

// sqlConn serves SQLite and SQL Server through database/sql, pinned to a
// single physical connection so an in-memory SQLite database survives
// between statements.
type sqlConn struct {
	mu     sync.Mutex
	db     *sql.DB
	family dialect.Family
}

func openSQL(ctx context.Context, target Target) (*sqlConn, error) {
	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlConn{db: db, family: target.Family}, nil
}

func (s *sqlConn) Family() dialect.Family { return s.family }

// acquire locks the connection for op. The caller must call s.mu.Unlock
// when err is nil.
func (s *sqlConn) acquire(op string) (*sql.DB, error) {
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return nil, closedError(op)
	}
	return s.db, nil
}

func (s *sqlConn) Query(ctx context.Context, stmt string, args ...interface{}) (*ResultSet, error) {
	db, err := s.acquire("Query")
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err == nil {
		var rs *ResultSet
		rs, err = collectRows(rows)
		if err == nil {
			return rs, nil
		}
	}
	return nil, errors.Query(err, stmt).Err()
}

func (s *sqlConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	db, err := s.acquire("Exec")
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, execError(err, stmt)
	}
	// Drivers that cannot count affected rows report zero.
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqlConn) ExecTx(ctx context.Context, stmts ...string) (err error) {
	db, err := s.acquire("ExecTx")
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExecFailed, "cannot begin transaction").Err()
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return execError(err, stmt)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeExecFailed, "commit failed").Err()
	}
	return nil
}

func (s *sqlConn) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db
	s.db = nil
	if db == nil {
		return nil
	}
	return db.Close()
}

func execError(err error, stmt string) error {
	return errors.Wrap(err, errors.ErrCodeExecFailed, "statement failed").WithSQL(stmt).Err()
}

// collectRows drains rows into a ResultSet and closes them.
func collectRows(rows *sql.Rows) (*ResultSet, error) {
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{
		Columns: make([]string, len(types)),
		Types:   make([]string, len(types)),
	}
	for i, ct := range types {
		rs.Columns[i] = ct.Name()
		rs.Types[i] = strings.ToLower(ct.DatabaseTypeName())
	}

	for rows.Next() {
		row := make([]interface{}, len(types))
		dest := make([]interface{}, len(types))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i := range row {
			row[i] = normalizeValue(row[i], rs.Types[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

// normalizeValue turns driver bytes into strings and decimal columns into
// decimal.Decimal.
func normalizeValue(v interface{}, typeName string) interface{} {
	var text string
	switch val := v.(type) {
	case []byte:
		text = string(val)
	case string:
		text = val
	default:
		return v
	}
	if isDecimalType(typeName) {
		if d, err := decimal.NewFromString(text); err == nil {
			return d
		}
	}
	return text
}

func isDecimalType(name string) bool {
	base, _, _ := strings.Cut(name, "(")
	switch base {
	case "decimal", "numeric", "money", "smallmoney":
		return true
	}
	return false
}
