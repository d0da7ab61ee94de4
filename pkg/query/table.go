package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ha1tch/postmind/pkg/catalog"
	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/naming"
	"github.com/ha1tch/postmind/pkg/render"
)

// reserved attribute keys; columns with these names are exposed as _name etc.
var reserved = map[string]bool{"name": true, "ctx": true, "data": true}

// Table is a lazy table-level fragment.
type Table struct {
	session Session
	name    string
	sql     string
	from    string
	foreign bool

	columns []*Column
	byName  map[string]int
	attrs   map[string]int
	keys    []string
}

// FromCatalog builds the fragment for a reflected table.
func FromCatalog(s Session, ct *catalog.Table) *Table {
	from := s.Family().QuoteIdent(ct.Name)
	t := &Table{
		session: s,
		name:    ct.Name,
		sql:     "select * from " + from,
		from:    from,
		foreign: ct.Foreign,
	}
	for _, c := range ct.Columns {
		t.addColumn(&Column{
			name: c.Name,
			typ:  c.Type,
			arr:  c.Array,
			fks:  c.ForeignKeys,
			refs: c.RefKeys,
		})
	}
	return t
}

// Derived builds a fragment over an arbitrary select statement.
func Derived(s Session, name, sql string, cols []ColumnDef) *Table {
	if name == "" {
		name = naming.TableName()
	}
	sql = trimStatement(sql)
	t := &Table{
		session: s,
		name:    name,
		sql:     sql,
		from:    "(" + sql + ") q",
	}
	for _, d := range cols {
		t.addColumn(&Column{name: d.Name, typ: d.Type, arr: d.Array, expr: d.Expr})
	}
	return t
}

func (t *Table) addColumn(c *Column) {
	if t.byName == nil {
		t.byName = make(map[string]int)
		t.attrs = make(map[string]int)
	}
	c.table = t
	if c.expr == "" {
		c.expr = t.session.Family().QuoteIdent(c.name)
	}
	idx := len(t.columns)
	t.columns = append(t.columns, c)
	if _, dup := t.byName[c.name]; !dup {
		t.byName[c.name] = idx
	}

	key := c.name
	if reserved[key] {
		key = "_" + key
	}
	for {
		if _, taken := t.attrs[key]; !taken && !reserved[key] {
			break
		}
		key = "_" + key
	}
	t.attrs[key] = idx
	t.keys = append(t.keys, key)
}

// Name returns the table name (generated for derived tables).
func (t *Table) Name() string { return t.name }

// SQL returns the select statement producing the table's rows.
func (t *Table) SQL() string { return t.sql }

// From returns the FROM clause source for the table.
func (t *Table) From() string { return t.from }

// Foreign reports whether the table is a foreign table.
func (t *Table) Foreign() bool { return t.foreign }

// Session returns the owning session.
func (t *Table) Session() Session { return t.session }

func (t *Table) String() string { return fmt.Sprintf("Table(%s)", t.name) }

// Columns returns the column handles in order.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, error) {
	idx, ok := t.byName[name]
	if !ok {
		return nil, errors.NotFound(errors.ErrCodeColumnNotFound, "column", name).
			WithField("table", t.name).
			Err()
	}
	return t.columns[idx], nil
}

// ColumnAt returns the column at position i; negative positions count from
// the end.
func (t *Table) ColumnAt(i int) (*Column, error) {
	n := len(t.columns)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, errors.Newf(errors.ErrCodeInvalidIndex, "column index %d out of range for %s (%d columns)", i, t.name, n).Err()
	}
	return t.columns[i], nil
}

// Attr looks a column up by its attribute key. Keys equal column names
// except where deconflicted: a column called "name" has the key "_name".
func (t *Table) Attr(key string) (*Column, bool) {
	idx, ok := t.attrs[key]
	if !ok {
		return nil, false
	}
	return t.columns[idx], true
}

// Attrs returns the attribute keys in column order.
func (t *Table) Attrs() []string {
	return append([]string(nil), t.keys...)
}

// Get resolves a tagged index request.
func (t *Table) Get(idx Index) (Node, error) {
	switch v := idx.(type) {
	case ByName:
		return t.Column(string(v))
	case ByIndex:
		return t.ColumnAt(int(v))
	case BySelection:
		items := make([]Item, len(v))
		for i, name := range v {
			items[i] = Col(name)
		}
		return t.Select(items...)
	case BySlice:
		return t.Slice(v.Start, v.Stop)
	}
	return nil, errors.Newf(errors.ErrCodeInvalidIndex, "unsupported index %T", idx).Err()
}

// Select projects items into a new table whose columns are exactly the
// requested ones, in the requested order.
func (t *Table) Select(items ...Item) (*Table, error) {
	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidIndex, "select requires at least one column").Err()
	}
	family := t.session.Family()

	exprs := make([]string, len(items))
	defs := make([]ColumnDef, len(items))
	for i, it := range items {
		var c *Column
		switch v := it.(type) {
		case Col:
			col, err := t.Column(string(v))
			if err != nil {
				return nil, err
			}
			c = col
		case *Column:
			if v.table != t {
				return nil, errors.TypeMismatch("column %s belongs to %s, not %s", v.name, v.table.name, t.name).Err()
			}
			c = v
		case Raw:
			name := v.Name
			if name == "" {
				name = fmt.Sprintf("expr%d", i)
			}
			typ := v.Type
			exprs[i] = v.Expr + " as " + family.QuoteIdent(name)
			defs[i] = ColumnDef{Name: name, Type: typ, Array: strings.HasSuffix(typ, "[]")}
			continue
		default:
			return nil, errors.TypeMismatch("unsupported select item %T", it).Err()
		}
		exprs[i] = c.selectExpr()
		defs[i] = ColumnDef{Name: c.name, Type: c.typ, Array: c.arr}
	}

	sql := fmt.Sprintf("select %s from %s", strings.Join(exprs, ", "), t.from)
	return Derived(t.session, naming.TableNameFor(t.name), sql, defs), nil
}

// OrderBy sorts the table by a column.
func (t *Table) OrderBy(column string, desc bool) (*Table, error) {
	c, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("select * from %s order by %s", t.from, c.expr)
	if desc {
		sql += " desc"
	}
	return t.derive(sql), nil
}

// Distinct removes duplicate rows.
func (t *Table) Distinct() *Table {
	return t.derive("select distinct * from " + t.from)
}

// Where filters rows with a raw SQL predicate.
func (t *Table) Where(predicate string) *Table {
	return t.derive(fmt.Sprintf("select * from %s where %s", t.from, predicate))
}

// Union concatenates tables with UNION ALL. All tables must have the same
// number of columns.
func (t *Table) Union(others ...*Table) (*Table, error) {
	parts := []string{"select * from " + t.from}
	for _, o := range others {
		if len(o.columns) != len(t.columns) {
			return nil, errors.TypeMismatch("cannot union %s (%d columns) with %s (%d columns)",
				t.name, len(t.columns), o.name, len(o.columns)).Err()
		}
		parts = append(parts, "select * from "+o.from)
	}
	return Derived(t.session, naming.TableName(), strings.Join(parts, " union all "), t.defs()), nil
}

// Slice selects rows [start, stop). stop < 0 means no upper bound.
func (t *Table) Slice(start, stop int) (*Table, error) {
	if start < 0 || (stop >= 0 && stop < start) {
		return nil, errors.Newf(errors.ErrCodeInvalidIndex, "invalid slice [%d:%d]", start, stop).
			WithField("table", t.name).Err()
	}
	limit := -1
	if stop >= 0 {
		limit = stop - start
	}
	return t.derive(t.session.Family().SliceQuery(t.sql, start, limit)), nil
}

func (t *Table) derive(sql string) *Table {
	return Derived(t.session, naming.TableNameFor(t.name), sql, t.defs())
}

func (t *Table) defs() []ColumnDef {
	defs := make([]ColumnDef, len(t.columns))
	for i, c := range t.columns {
		defs[i] = ColumnDef{Name: c.name, Type: c.typ, Array: c.arr}
	}
	return defs
}

// Head returns the first n rows (DefaultHead when n <= 0).
func (t *Table) Head(ctx context.Context, n int) (*conn.ResultSet, error) {
	if n <= 0 {
		n = DefaultHead
	}
	return t.session.Query(ctx, t.sql, n)
}

// Collect returns every row.
func (t *Table) Collect(ctx context.Context) (*conn.ResultSet, error) {
	return t.session.Query(ctx, t.sql, 0)
}

// Len counts the rows.
func (t *Table) Len(ctx context.Context) (int64, error) {
	rs, err := t.session.Query(ctx, t.session.Family().CountQuery(t.sql), 0)
	if err != nil {
		return 0, err
	}
	n, ok := conn.ToInt64(rs.Scalar())
	if !ok {
		return 0, errors.TypeMismatch("unexpected count value %v", rs.Scalar()).Err()
	}
	return n, nil
}

// Each materialises the table and calls fn for every row. Iteration stops at
// the first error fn returns.
func (t *Table) Each(ctx context.Context, fn func(row map[string]interface{}) error) error {
	rs, err := t.Collect(ctx)
	if err != nil {
		return err
	}
	for _, rec := range rs.Records() {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Unique returns the distinct values of the given columns (all columns when
// none are given).
func (t *Table) Unique(ctx context.Context, columns ...string) (*conn.ResultSet, error) {
	if len(columns) == 0 {
		return t.Distinct().Collect(ctx)
	}
	exprs := make([]string, len(columns))
	for i, name := range columns {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		exprs[i] = c.selectExpr()
	}
	return t.session.Query(ctx, fmt.Sprintf("select distinct %s from %s", strings.Join(exprs, ", "), t.from), 0)
}

// Sample returns n random rows.
func (t *Table) Sample(ctx context.Context, n int) (*conn.ResultSet, error) {
	if n <= 0 {
		n = DefaultHead
	}
	family := t.session.Family()
	return t.session.Query(ctx, fmt.Sprintf("select * from %s order by %s", t.from, family.Random()), n)
}

// CSVStatement returns the COPY statement exporting the table to path.
func (t *Table) CSVStatement(path string, compress bool) (string, error) {
	return t.session.Family().CopyToCSV(t.sql, path, compress)
}

// ToCSV exports the table to a file on the database server.
func (t *Table) ToCSV(ctx context.Context, path string, compress bool) error {
	stmt, err := t.CSVStatement(path, compress)
	if err != nil {
		return err
	}
	return t.session.Exec(ctx, stmt)
}

// Describe renders the column listing titled with the table name.
func (t *Table) Describe() string {
	rows := make([][]string, len(t.columns))
	for i, c := range t.columns {
		rows[i] = []string{c.name, c.typ, c.ForeignKeysString(), c.RefKeysString()}
	}
	return render.Titled(t.name, []string{"Column", "Type", "Foreign Keys", "Reference Keys"}, rows)
}
