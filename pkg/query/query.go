// Package query builds lazy table and column fragments.
//
// A fragment is an unexecuted SQL expression bound to a Session. Every
// composition (select, order, union, slice, array indexing) returns a new
// fragment; only the materialising methods (Head, Collect, Len, Each,
// Unique, Sample and the column statistics) talk to the database.
package query

import (
	"context"
	"strings"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/log"
)

// DefaultHead is the number of rows Head returns when n <= 0.
const DefaultHead = 6

// Session is what fragments need from their owner.
type Session interface {
	Family() dialect.Family

	// Query runs sql with an optional row limit (0 for none).
	Query(ctx context.Context, sql string, limit int) (*conn.ResultSet, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Dial opens a separate connection for parallel work.
	Dial(ctx context.Context) (conn.Conn, error)

	Logger() *log.Logger
}

// Node is a table or column fragment.
type Node interface {
	Name() string
	SQL() string
	String() string
}

// Index is a request resolved by Table.Get.
type Index interface {
	index()
}

// ByName selects a column by name.
type ByName string

// ByIndex selects a column by position. Negative positions count from the end.
type ByIndex int

// BySelection projects several columns into a new table.
type BySelection []string

// BySlice selects rows [Start, Stop). Stop < 0 means no upper bound.
type BySlice struct {
	Start int
	Stop  int
}

func (ByName) index()      {}
func (ByIndex) index()     {}
func (BySelection) index() {}
func (BySlice) index()     {}

// Item is one entry of a projection: a column name (Col), a column handle
// (*Column) or a raw expression (Raw).
type Item interface {
	item()
}

// Col names a column of the table being projected.
type Col string

func (Col) item() {}

// Raw is a raw SQL expression with an output name.
type Raw struct {
	Expr string
	Name string
	Type string
}

func (Raw) item() {}

// ColumnDef describes a column of a derived table.
type ColumnDef struct {
	Name  string
	Type  string
	Array bool
	// Expr defaults to the quoted column name.
	Expr string
}

func trimStatement(q string) string {
	return strings.TrimRight(strings.TrimSpace(q), ";")
}
