// Package catalog reflects database schemas into immutable snapshots.
//
// A Snapshot is rebuilt wholesale on every refresh; nothing in it is updated
// in place. Foreign keys and reference keys are best effort: when the
// constraint metadata cannot be read the tables are still returned, with
// empty key lists and a logged warning.
package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
)

// Querier is the subset of a connection reflection needs.
type Querier interface {
	Family() dialect.Family
	Query(ctx context.Context, sql string, args ...interface{}) (*conn.ResultSet, error)
}

// Key points at a column of a table.
type Key struct {
	Table  string
	Column string
}

func (k Key) String() string { return k.Table + "." + k.Column }

// Column describes one reflected column.
type Column struct {
	Table   string
	Name    string
	Type    string
	Ordinal int
	Array   bool

	// ForeignKeys lists the columns this column references.
	ForeignKeys []Key
	// RefKeys lists the columns that reference this column.
	RefKeys []Key
}

// Table describes one reflected table or view.
type Table struct {
	Schema  string
	Name    string
	Foreign bool
	Columns []Column
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Snapshot is an immutable view of a schema.
type Snapshot struct {
	Family  dialect.Family
	TakenAt time.Time

	tables []*Table
	byName map[string]*Table
}

// NewSnapshot builds a snapshot from tables. Tables are sorted by name and
// their columns by ordinal.
func NewSnapshot(family dialect.Family, tables []*Table) *Snapshot {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	s := &Snapshot{
		Family:  family,
		TakenAt: time.Now(),
		tables:  tables,
		byName:  make(map[string]*Table, len(tables)),
	}
	for _, t := range tables {
		sort.SliceStable(t.Columns, func(i, j int) bool { return t.Columns[i].Ordinal < t.Columns[j].Ordinal })
		s.byName[t.Name] = t
	}
	return s
}

// Table returns the named table.
func (s *Snapshot) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Tables returns all tables sorted by name.
func (s *Snapshot) Tables() []*Table {
	out := make([]*Table, len(s.tables))
	copy(out, s.tables)
	return out
}

// Len returns the number of tables.
func (s *Snapshot) Len() int { return len(s.tables) }

// Equal reports whether two snapshots describe the same schema.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.tables) != len(other.tables) {
		return false
	}
	for i, t := range s.tables {
		o := other.tables[i]
		if t.Name != o.Name || t.Schema != o.Schema || t.Foreign != o.Foreign || len(t.Columns) != len(o.Columns) {
			return false
		}
		for j, c := range t.Columns {
			oc := o.Columns[j]
			if c.Name != oc.Name || c.Type != oc.Type || c.Array != oc.Array ||
				!keysEqual(c.ForeignKeys, oc.ForeignKeys) || !keysEqual(c.RefKeys, oc.RefKeys) {
				return false
			}
		}
	}
	return true
}

func keysEqual(a, b []Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Options control reflection.
type Options struct {
	// IncludeSystem keeps pg_catalog/information_schema (or sqlite_*) tables.
	IncludeSystem bool
	// Schemas restricts reflection to the named schemas.
	Schemas []string
	Logger  *log.Logger
}

// Reflector reads a schema for one dialect family.
type Reflector interface {
	Reflect(ctx context.Context, q Querier, opts Options) (*Snapshot, error)
}

// ForFamily returns the reflector for a family.
func ForFamily(f dialect.Family) (Reflector, error) {
	switch f {
	case dialect.Postgres, dialect.Redshift, dialect.MSSQL, dialect.MySQL:
		return informationSchema{}, nil
	case dialect.SQLite:
		return sqliteReflector{}, nil
	}
	return nil, errors.UnsupportedDialect("schema reflection", f.String()).Err()
}

// Reflect builds a new snapshot of the database behind q.
func Reflect(ctx context.Context, q Querier, opts Options) (*Snapshot, error) {
	r, err := ForFamily(q.Family())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snap, err := r.Reflect(ctx, q, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSchemaReflection, "schema reflection failed").
			WithField("family", q.Family().String()).
			WithOp("catalog.Reflect").
			Err()
	}

	opts.Logger.Performance().Debug("schema reflected",
		"tables", snap.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return snap, nil
}

// keyIndex collects key pairs and attaches them to snapshot columns.
type keyIndex struct {
	foreign map[Key][]Key
	refs    map[Key][]Key
}

func newKeyIndex() *keyIndex {
	return &keyIndex{foreign: make(map[Key][]Key), refs: make(map[Key][]Key)}
}

func (k *keyIndex) add(from, to Key) {
	k.foreign[from] = append(k.foreign[from], to)
	k.refs[to] = append(k.refs[to], from)
}

func (k *keyIndex) apply(tables []*Table) {
	for _, t := range tables {
		for i := range t.Columns {
			c := &t.Columns[i]
			key := Key{Table: t.Name, Column: c.Name}
			c.ForeignKeys = sortedKeys(k.foreign[key])
			c.RefKeys = sortedKeys(k.refs[key])
		}
	}
}

func sortedKeys(keys []Key) []Key {
	if len(keys) == 0 {
		return nil
	}
	out := append([]Key(nil), keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// JoinKeys renders keys as "table.column, table.column".
func JoinKeys(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return conn.FormatValue(v)
}
