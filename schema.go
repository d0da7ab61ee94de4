package postmind

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/ha1tch/postmind/pkg/catalog"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/query"
	"github.com/ha1tch/postmind/pkg/render"
)

// RefreshSchema reflects the database again and replaces every table handle.
// Handles obtained before the refresh keep working against the old shape.
func (c *Context) RefreshSchema(ctx context.Context) error {
	start := time.Now()
	snap, err := catalog.Reflect(ctx, c.conn, catalog.Options{
		IncludeSystem: c.opts.IncludeSystem,
		Schemas:       c.opts.Schemas,
		Logger:        c.logger,
	})
	if err != nil {
		c.logger.Schema().Error("schema refresh failed", err)
		return err
	}

	tables := make(map[string]*query.Table, snap.Len())
	order := make([]string, 0, snap.Len())
	for _, ct := range snap.Tables() {
		tables[ct.Name] = query.FromCatalog(c, ct)
		order = append(order, ct.Name)
	}

	c.mu.Lock()
	changed := c.snapshot == nil || !c.snapshot.Equal(snap)
	c.snapshot = snap
	c.tables = tables
	c.order = order
	c.mu.Unlock()

	c.logger.Schema().Info("schema refreshed",
		"tables", len(order),
		"changed", changed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Snapshot returns the current schema snapshot.
func (c *Context) Snapshot() *catalog.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Tables returns every reflected table in name order.
func (c *Context) Tables() TableSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := make(TableSet, len(c.order))
	for i, name := range c.order {
		set[i] = c.tables[name]
	}
	return set
}

// Table returns the handle of a reflected table.
func (c *Context) Table(name string) (*query.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	return nil, errors.NotFound(errors.ErrCodeTableNotFound, "table", name).
		WithOp("Context.Table").
		Err()
}

// FindTable returns the tables whose name matches the shell pattern glob.
func (c *Context) FindTable(glob string) (TableSet, error) {
	if _, err := path.Match(glob, ""); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTypeMismatch, "invalid table pattern").
			WithField("pattern", glob).Err()
	}
	var out TableSet
	for _, t := range c.Tables() {
		if ok, _ := path.Match(glob, t.Name()); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindColumn returns the columns whose name matches glob, optionally
// restricted to the given types.
func (c *Context) FindColumn(glob string, types ...string) (ColumnSet, error) {
	if _, err := path.Match(glob, ""); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTypeMismatch, "invalid column pattern").
			WithField("pattern", glob).Err()
	}
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[strings.ToLower(t)] = true
	}

	var out ColumnSet
	for _, t := range c.Tables() {
		for _, col := range t.Columns() {
			if ok, _ := path.Match(glob, col.Name()); !ok {
				continue
			}
			if len(want) > 0 && !want[strings.ToLower(col.Type())] {
				continue
			}
			out = append(out, col)
		}
	}
	return out, nil
}

// TableSet is a list of table handles.
type TableSet []*query.Table

// Len returns the number of tables.
func (s TableSet) Len() int { return len(s) }

// Get returns the table called name.
func (s TableSet) Get(name string) (*query.Table, bool) {
	for _, t := range s {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names returns the table names in order.
func (s TableSet) Names() []string {
	names := make([]string, len(s))
	for i, t := range s {
		names[i] = t.Name()
	}
	return names
}

// Describe renders one row per table with its column names.
func (s TableSet) Describe() string {
	rows := make([][]string, len(s))
	for i, t := range s {
		rows[i] = []string{t.Name(), strings.Join(t.ColumnNames(), ", ")}
	}
	return render.Printer{MaxWidth: 80}.Render([]string{"Table", "Columns"}, rows)
}

// ColumnSet is a list of column handles.
type ColumnSet []*query.Column

// Len returns the number of columns.
func (s ColumnSet) Len() int { return len(s) }

// Get returns the column called name of table.
func (s ColumnSet) Get(table, name string) (*query.Column, bool) {
	for _, c := range s {
		if c.Table().Name() == table && c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Describe renders one row per column with its table and type.
func (s ColumnSet) Describe() string {
	rows := make([][]string, len(s))
	for i, c := range s {
		rows[i] = []string{c.Table().Name(), c.Name(), c.Type()}
	}
	return render.Grid([]string{"Table", "Column Name", "Type"}, rows)
}
