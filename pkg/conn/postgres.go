package conn

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
)

// pgConn is a PostgreSQL or Redshift connection.
type pgConn struct {
	mu     sync.Mutex
	conn   *pgx.Conn
	family dialect.Family
}

func openPostgres(ctx context.Context, target Target) (*pgConn, error) {
	c, err := pgx.Connect(ctx, target.DSN)
	if err != nil {
		return nil, err
	}
	return &pgConn{conn: c, family: target.Family}, nil
}

func (p *pgConn) Family() dialect.Family { return p.family }

func (p *pgConn) Query(ctx context.Context, sql string, args ...interface{}) (*ResultSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil, closedError("Query")
	}

	rows, err := p.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Query(err, sql).Err()
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &ResultSet{
		Columns: make([]string, len(fields)),
		Types:   make([]string, len(fields)),
	}
	typeMap := p.conn.TypeMap()
	for i, f := range fields {
		rs.Columns[i] = f.Name
		if t, ok := typeMap.TypeForOID(f.DataTypeOID); ok {
			rs.Types[i] = t.Name
		}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Query(err, sql).Err()
		}
		for i, v := range values {
			values[i] = normalizePG(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Query(err, sql).Err()
	}
	return rs, nil
}

func (p *pgConn) Exec(ctx context.Context, sql string, args ...interface{}) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return 0, closedError("Exec")
	}
	tag, err := p.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeExecFailed, "statement failed").WithSQL(sql).Err()
	}
	return tag.RowsAffected(), nil
}

func (p *pgConn) ExecTx(ctx context.Context, stmts ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return closedError("ExecTx")
	}
	return pgx.BeginFunc(ctx, p.conn, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return errors.Wrap(err, errors.ErrCodeExecFailed, "statement failed").WithSQL(stmt).Err()
			}
		}
		return nil
	})
}

func (p *pgConn) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close(ctx)
	p.conn = nil
	return err
}

// normalizePG converts pgx values into the driver-neutral representation.
func normalizePG(v interface{}) interface{} {
	switch val := v.(type) {
	case pgtype.Numeric:
		return numericValue(val)
	case []interface{}:
		for i, e := range val {
			val[i] = normalizePG(e)
		}
		return val
	case [16]byte:
		// uuid
		return uuid.UUID(val).String()
	}
	return v
}

func numericValue(n pgtype.Numeric) interface{} {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	case n.Int == nil:
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
