package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
)

// sqliteReflector reads sqlite_master and the table PRAGMAs.
type sqliteReflector struct{}

func (sqliteReflector) Reflect(ctx context.Context, q Querier, opts Options) (*Snapshot, error) {
	list := "select name from sqlite_master where type in ('table', 'view')"
	if !opts.IncludeSystem {
		list += " and name not like 'sqlite_%'"
	}
	rs, err := q.Query(ctx, list+" order by name")
	if err != nil {
		return nil, err
	}

	var tables []*Table
	primary := make(map[string]string)
	for _, row := range rs.Rows {
		name := asString(row[0])
		info, err := q.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", dialect.SQLite.QuoteIdent(name)))
		if err != nil {
			return nil, err
		}
		t := &Table{Schema: "main", Name: name}
		for _, col := range info.Rows {
			ordinal, _ := conn.ToInt64(col[0])
			typ := strings.ToLower(asString(col[2]))
			t.Columns = append(t.Columns, Column{
				Table:   name,
				Name:    asString(col[1]),
				Type:    typ,
				Ordinal: int(ordinal) + 1,
				Array:   strings.HasSuffix(typ, "[]"),
			})
			if pk, _ := conn.ToInt64(col[5]); pk == 1 {
				primary[name] = asString(col[1])
			}
		}
		tables = append(tables, t)
	}

	keys := newKeyIndex()
	for _, t := range tables {
		fk, err := q.Query(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", dialect.SQLite.QuoteIdent(t.Name)))
		if err != nil {
			opts.Logger.Schema().Warn("foreign keys unavailable", "table", t.Name, "error", err.Error())
			continue
		}
		// id, seq, table, from, to, on_update, on_delete, match
		for _, row := range fk.Rows {
			target := asString(row[2])
			to := asString(row[4])
			if to == "" {
				to = primary[target]
			}
			keys.add(Key{Table: t.Name, Column: asString(row[3])}, Key{Table: target, Column: to})
		}
	}
	keys.apply(tables)

	return NewSnapshot(dialect.SQLite, tables), nil
}
