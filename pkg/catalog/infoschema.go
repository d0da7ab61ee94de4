package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
)

// informationSchema reflects databases exposing information_schema.
type informationSchema struct{}

var systemSchemas = []string{"pg_catalog", "information_schema", "INFORMATION_SCHEMA", "sys", "pg_internal"}

// defaultSchema is the schema whose tables are addressed without a prefix.
func defaultSchema(f dialect.Family) string {
	switch f {
	case dialect.MSSQL:
		return "dbo"
	case dialect.MySQL:
		return ""
	}
	return "public"
}

func (informationSchema) columnsQuery(f dialect.Family, opts Options) string {
	typeExpr := "c.udt_name"
	if f == dialect.MSSQL || f == dialect.MySQL {
		typeExpr = "c.data_type"
	}

	var where []string
	if !opts.IncludeSystem {
		quoted := make([]string, len(systemSchemas))
		for i, s := range systemSchemas {
			quoted[i] = f.QuoteLiteral(s)
		}
		where = append(where, fmt.Sprintf("c.table_schema not in (%s)", strings.Join(quoted, ", ")))
	}
	if len(opts.Schemas) > 0 {
		quoted := make([]string, len(opts.Schemas))
		for i, s := range opts.Schemas {
			quoted[i] = f.QuoteLiteral(s)
		}
		where = append(where, fmt.Sprintf("c.table_schema in (%s)", strings.Join(quoted, ", ")))
	}

	q := "select c.table_schema, c.table_name, c.column_name, " + typeExpr + ", c.ordinal_position, t.table_type\n" +
		"from information_schema.columns c\n" +
		"join information_schema.tables t on t.table_schema = c.table_schema and t.table_name = c.table_name"
	if len(where) > 0 {
		q += "\nwhere " + strings.Join(where, " and ")
	}
	return q + "\norder by c.table_schema, c.table_name, c.ordinal_position"
}

const foreignKeysQuery = `select kcu.table_schema, kcu.table_name, kcu.column_name,
       ccu.table_schema, ccu.table_name, ccu.column_name
from information_schema.table_constraints tc
join information_schema.key_column_usage kcu
  on tc.constraint_name = kcu.constraint_name and tc.table_schema = kcu.table_schema
join information_schema.constraint_column_usage ccu
  on ccu.constraint_name = tc.constraint_name and ccu.table_schema = tc.table_schema
where tc.constraint_type = 'FOREIGN KEY'`

func (r informationSchema) Reflect(ctx context.Context, q Querier, opts Options) (*Snapshot, error) {
	family := q.Family()
	rs, err := q.Query(ctx, r.columnsQuery(family, opts))
	if err != nil {
		return nil, err
	}

	tables := tablesFromColumns(family, rs)

	keys := newKeyIndex()
	if fk, err := q.Query(ctx, foreignKeysQuery); err != nil {
		opts.Logger.Schema().Warn("foreign keys unavailable", "error", err.Error())
	} else {
		for _, row := range fk.Rows {
			from := Key{Table: displayName(family, asString(row[0]), asString(row[1])), Column: asString(row[2])}
			to := Key{Table: displayName(family, asString(row[3]), asString(row[4])), Column: asString(row[5])}
			keys.add(from, to)
		}
	}
	keys.apply(tables)

	return NewSnapshot(family, tables), nil
}

func displayName(f dialect.Family, schema, table string) string {
	if schema == "" || schema == defaultSchema(f) {
		return table
	}
	return schema + "." + table
}

func tablesFromColumns(family dialect.Family, rs *conn.ResultSet) []*Table {
	var tables []*Table
	index := make(map[string]*Table)

	for _, row := range rs.Rows {
		schema, tableName := asString(row[0]), asString(row[1])
		name := displayName(family, schema, tableName)

		t, ok := index[name]
		if !ok {
			t = &Table{
				Schema:  schema,
				Name:    name,
				Foreign: strings.EqualFold(asString(row[5]), "FOREIGN") || strings.EqualFold(asString(row[5]), "FOREIGN TABLE"),
			}
			index[name] = t
			tables = append(tables, t)
		}

		typ, array := columnType(family, asString(row[3]))
		ordinal, _ := conn.ToInt64(row[4])
		t.Columns = append(t.Columns, Column{
			Table:   name,
			Name:    asString(row[2]),
			Type:    typ,
			Ordinal: int(ordinal),
			Array:   array,
		})
	}
	return tables
}

// columnType maps a PostgreSQL udt name onto a display type: array udt
// names carry a leading underscore ("_int4" is "int4[]").
func columnType(f dialect.Family, udt string) (string, bool) {
	if f.PostgresLike() && strings.HasPrefix(udt, "_") {
		return udt[1:] + "[]", true
	}
	if f == dialect.MSSQL || f == dialect.MySQL {
		return udt, false
	}
	return udt, strings.HasSuffix(udt, "[]")
}
