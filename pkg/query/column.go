package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ha1tch/postmind/pkg/catalog"
	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/render"
)

// Column is a lazy column-level fragment.
type Column struct {
	table *Table
	name  string
	typ   string
	arr   bool
	expr  string

	fks  []catalog.Key
	refs []catalog.Key

	mu    sync.Mutex
	ndims *int
	shape *Shape
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the column type as reported by the catalog.
func (c *Column) Type() string { return c.typ }

// Table returns the table the column belongs to.
func (c *Column) Table() *Table { return c.table }

// IsArray reports whether the column holds arrays.
func (c *Column) IsArray() bool { return c.arr }

// Expr returns the SQL expression of the column relative to its table.
func (c *Column) Expr() string { return c.expr }

func (c *Column) String() string { return fmt.Sprintf("Column(%s)", c.name) }

func (c *Column) item() {}

func (c *Column) selectExpr() string {
	quoted := c.table.session.Family().QuoteIdent(c.name)
	if c.expr == quoted {
		return quoted
	}
	return c.expr + " as " + quoted
}

// SQL returns the statement selecting the column.
func (c *Column) SQL() string {
	return fmt.Sprintf("select %s from %s", c.selectExpr(), c.table.from)
}

// valueSQL selects the column under the fixed alias "col".
func (c *Column) valueSQL() string {
	return fmt.Sprintf("select %s as col from %s", c.expr, c.table.from)
}

// Index projects element i of an array column. Non-array columns fail with
// a type error.
func (c *Column) Index(i int) (*Column, error) {
	if !c.arr {
		return nil, errors.TypeMismatch("column %q of type %s is not an array type", c.name, c.typ).
			WithField("table", c.table.name).
			WithOp("Column.Index").
			Err()
	}
	return &Column{
		table: c.table,
		name:  fmt.Sprintf("%s[%d]", c.name, i),
		typ:   strings.TrimSuffix(c.typ, "[]"),
		expr:  fmt.Sprintf("(%s)[%d]", c.expr, i),
	}, nil
}

// ForeignKeysString lists the columns this column references.
func (c *Column) ForeignKeysString() string { return catalog.JoinKeys(c.fks) }

// RefKeysString lists the columns referencing this column.
func (c *Column) RefKeysString() string { return catalog.JoinKeys(c.refs) }

// ForeignKeys returns the referenced columns.
func (c *Column) ForeignKeys() []catalog.Key { return append([]catalog.Key(nil), c.fks...) }

// RefKeys returns the referencing columns.
func (c *Column) RefKeys() []catalog.Key { return append([]catalog.Key(nil), c.refs...) }

// Head returns the first n values (DefaultHead when n <= 0).
func (c *Column) Head(ctx context.Context, n int) (*conn.ResultSet, error) {
	if n <= 0 {
		n = DefaultHead
	}
	return c.table.session.Query(ctx, c.SQL(), n)
}

// Collect returns every value.
func (c *Column) Collect(ctx context.Context) (*conn.ResultSet, error) {
	return c.table.session.Query(ctx, c.SQL(), 0)
}

// Unique returns the distinct values.
func (c *Column) Unique(ctx context.Context) (*conn.ResultSet, error) {
	return c.table.session.Query(ctx, fmt.Sprintf("select distinct %s from %s", c.selectExpr(), c.table.from), 0)
}

// Sample returns n random values.
func (c *Column) Sample(ctx context.Context, n int) (*conn.ResultSet, error) {
	if n <= 0 {
		n = DefaultHead
	}
	s := c.table.session
	return s.Query(ctx, fmt.Sprintf("%s order by %s", c.SQL(), s.Family().Random()), n)
}

// CSVStatement returns the COPY statement exporting the column to path.
func (c *Column) CSVStatement(path string, compress bool) (string, error) {
	return c.table.session.Family().CopyToCSV(c.SQL(), path, compress)
}

// ToCSV exports the column to a file on the database server.
func (c *Column) ToCSV(ctx context.Context, path string, compress bool) error {
	stmt, err := c.CSVStatement(path, compress)
	if err != nil {
		return err
	}
	return c.table.session.Exec(ctx, stmt)
}

// Describe renders the column's table, name, type and keys.
func (c *Column) Describe() string {
	return render.Grid(
		[]string{"Table", "Name", "Type", "Foreign Keys", "Reference Keys"},
		[][]string{{c.table.name, c.name, c.typ, c.ForeignKeysString(), c.RefKeysString()}},
	)
}
