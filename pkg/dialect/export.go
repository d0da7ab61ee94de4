package dialect

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ha1tch/postmind/pkg/errors"
)

// CSV defaults shared by export and mount.
const (
	ExportDelimiter   = "|"
	CSVServer         = "csv_server"
	DefaultColumnType = "text"
)

// SetupStatements prepare a database for foreign-table CSV mounts.
var SetupStatements = []string{
	"CREATE EXTENSION IF NOT EXISTS file_fdw;",
	"CREATE SERVER IF NOT EXISTS " + CSVServer + " FOREIGN DATA WRAPPER file_fdw;",
}

// CopyToCSV builds the server-side COPY statement exporting q to path. With
// compress the output is piped through gzip on the database host.
func (f Family) CopyToCSV(q, path string, compress bool) (string, error) {
	if !f.PostgresLike() {
		return "", errors.UnsupportedDialect("COPY export", f.String()).Err()
	}
	q = trimStatement(q)
	var target string
	if compress {
		target = "PROGRAM " + f.QuoteLiteral("gzip > "+path)
	} else {
		target = f.QuoteLiteral(path)
	}
	return fmt.Sprintf("COPY (%s) TO %s WITH (format csv, header false, delimiter '%s')",
		q, target, ExportDelimiter), nil
}

// Mount describes a CSV file exposed as a foreign table.
type Mount struct {
	Path    string   // server-side path of the file
	Table   string   // foreign table name, optionally schema-qualified
	Sep     string   // field delimiter; empty means one "value" column
	Header  bool     // the first line holds column names
	Columns []string // column names; when empty they come from the header
	Types   []string // column types; missing entries default to text
}

var lower = cases.Lower(language.Und)

// ColumnNames resolves the mount's column names from an optional header line.
// Without a header the columns are named col0, col1, ...
func (m Mount) ColumnNames(headerLine string) []string {
	var names []string
	switch {
	case len(m.Columns) > 0:
		names = append(names, m.Columns...)
	case m.Sep == "":
		names = []string{"value"}
	default:
		headerLine = strings.TrimRight(headerLine, "\r\n")
		names = strings.Split(headerLine, m.Sep)
		if !m.Header {
			for i := range names {
				names[i] = fmt.Sprintf("col%d", i)
			}
		}
	}
	for i, n := range names {
		names[i] = lower.String(strings.TrimSpace(n))
		if names[i] == "" {
			names[i] = fmt.Sprintf("col%d", i)
		}
	}
	return names
}

// ForeignTableStatements builds the statements that (re)create the foreign
// table for m with the given column names.
func (f Family) ForeignTableStatements(m Mount, columns []string) ([]string, error) {
	if f != Postgres {
		return nil, errors.UnsupportedDialect("file_fdw mount", f.String()).Err()
	}
	if m.Table == "" || m.Path == "" {
		return nil, errors.New(errors.ErrCodeExecFailed, "mount requires a table name and a path").Err()
	}
	if len(columns) == 0 {
		return nil, errors.New(errors.ErrCodeExecFailed, "mount requires at least one column").
			WithField("table", m.Table).Err()
	}

	var stmts []string
	if i := strings.Index(m.Table, "."); i > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", f.QuoteIdent(m.Table[:i])))
	}
	stmts = append(stmts, fmt.Sprintf("DROP FOREIGN TABLE IF EXISTS %s;", f.QuoteIdent(m.Table)))

	defs := make([]string, len(columns))
	for i, c := range columns {
		typ := DefaultColumnType
		if i < len(m.Types) && m.Types[i] != "" {
			typ = m.Types[i]
		}
		defs[i] = f.QuoteIdent(c) + " " + typ
	}

	// A header row is skipped by file_fdw only when the names came from it.
	header := "false"
	if m.Header && len(m.Columns) == 0 && m.Sep != "" {
		header = "true"
	}
	opts := fmt.Sprintf("filename %s, format 'csv', header '%s'", f.QuoteLiteral(m.Path), header)
	if m.Sep != "" {
		opts += ", delimiter " + f.QuoteLiteral(m.Sep)
	}
	stmts = append(stmts, fmt.Sprintf("CREATE FOREIGN TABLE %s (%s) SERVER %s OPTIONS (%s);",
		f.QuoteIdent(m.Table), strings.Join(defs, ", "), CSVServer, opts))
	return stmts, nil
}
