package postmind

import (
	"context"
	"os"
	"time"

	"github.com/ha1tch/postmind/pkg/annotations"
	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/query"
)

// Query runs sql and returns its rows. A positive limit wraps the statement
// in the dialect's row limit.
func (c *Context) Query(ctx context.Context, sql string, limit int) (*conn.ResultSet, error) {
	stmt := c.Family().LimitQuery(sql, limit)

	start := time.Now()
	rs, err := c.conn.Query(ctx, stmt)
	if err != nil {
		c.logger.Query().Error("query failed", err, "limit", limit)
		return nil, err
	}
	c.logger.Query().Debug("query executed",
		"rows", rs.Len(),
		"limit", limit,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rs, nil
}

// QueryFile runs the statement stored in path. An "@postmind:limit"
// annotation in the file applies when limit is zero.
func (c *Context) QueryFile(ctx context.Context, path string, limit int) (*conn.ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "cannot read query file").
			WithOp("Context.QueryFile").
			WithField("path", path).
			Err()
	}
	source := string(data)
	if limit == 0 {
		limit = annotations.NewParser().Header(source).GetInt("limit", 0)
	}
	return c.Query(ctx, source, limit)
}

// Exec runs a statement that returns no rows.
func (c *Context) Exec(ctx context.Context, sql string) error {
	start := time.Now()
	n, err := c.conn.Exec(ctx, sql)
	if err != nil {
		c.logger.Query().Error("statement failed", err)
		return err
	}
	c.logger.Query().Debug("statement executed",
		"affected", n,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// ToSQL returns the SQL of a table or column fragment without running it.
func (c *Context) ToSQL(node query.Node) string {
	return node.SQL()
}

// Dial opens a new connection to the same database. The caller closes it.
func (c *Context) Dial(ctx context.Context) (conn.Conn, error) {
	return conn.Open(ctx, c.uri)
}

// QueryBatch runs independent queries on a pool of workers, each with its
// own connection. Results are in query order.
func (c *Context) QueryBatch(ctx context.Context, queries []string, workers int) ([]*conn.ResultSet, error) {
	if workers <= 0 {
		workers = c.opts.Workers
	}
	start := time.Now()
	results, err := conn.RunParallel(ctx, c.Dial, queries, workers)
	if err != nil {
		c.logger.Query().Error("batch failed", err, "queries", len(queries))
		return nil, err
	}
	c.logger.Performance().Debug("batch executed",
		"queries", len(queries),
		"workers", workers,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// Export writes the rows of a fragment to a CSV file on the database host.
func (c *Context) Export(ctx context.Context, t *query.Table, path string, compress bool) error {
	if err := t.ToCSV(ctx, path, compress); err != nil {
		return err
	}
	c.logger.Query().Info("table exported", "table", t.Name(), "path", path, "compress", compress)
	return nil
}
