// Package render prints result sets and schema listings as text tables.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ha1tch/postmind/pkg/conn"
)

// Format selects the output style.
type Format string

const (
	FormatASCII   Format = "ascii"
	FormatUnicode Format = "unicode"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// ParseFormat maps a name onto a Format. The empty string is ASCII.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", "default", "text", FormatASCII:
		return FormatASCII, nil
	case FormatUnicode, FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

const (
	colReset = "\033[0m"
	colBold  = "\033[1m"
	colDim   = "\033[2m"
)

// Printer writes tables in one format.
type Printer struct {
	Format   Format
	Colour   bool
	MaxWidth int // per-column cap, 50 when zero
}

// Print writes a result set.
func (p Printer) Print(w io.Writer, rs *conn.ResultSet) error {
	if rs == nil {
		return nil
	}
	switch p.Format {
	case FormatCSV:
		return writeCSV(w, rs.Columns, rs.Strings())
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonRecords(rs))
	case FormatUnicode:
		p.unicode(w, rs.Columns, rs.Strings())
	default:
		p.ascii(w, rs.Columns, rs.Strings())
	}
	fmt.Fprintf(w, "(%d rows)\n", rs.Len())
	return nil
}

// Grid renders an ASCII table without colour.
func Grid(headers []string, rows [][]string) string {
	return Printer{}.Render(headers, rows)
}

// Render renders rows as an ASCII table using the printer's width cap.
func (p Printer) Render(headers []string, rows [][]string) string {
	var b strings.Builder
	p.ascii(&b, headers, rows)
	return b.String()
}

// Titled renders an ASCII table under a centred title row.
func Titled(title string, headers []string, rows [][]string) string {
	table := Grid(headers, rows)
	first, _, _ := strings.Cut(table, "\n")
	inner := utf8.RuneCountInString(first) - 2
	if inner < utf8.RuneCountInString(title) {
		inner = utf8.RuneCountInString(title)
	}
	brk := "+" + strings.Repeat("-", inner) + "+"
	return brk + "\n|" + center(title, inner) + "|\n" + table
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

func (p Printer) maxWidth() int {
	if p.MaxWidth > 0 {
		return p.MaxWidth
	}
	return 50
}

// calculateWidths computes column widths for tabular output.
func calculateWidths(cols []string, rows [][]string, maxWidth int) []int {
	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = utf8.RuneCountInString(col)
		if widths[i] < 4 {
			widths[i] = 4
		}
	}
	for _, row := range rows {
		for i, v := range row {
			if i < len(widths) && utf8.RuneCountInString(v) > widths[i] {
				widths[i] = utf8.RuneCountInString(v)
			}
		}
	}
	for i := range widths {
		if widths[i] > maxWidth {
			widths[i] = maxWidth
		}
	}
	return widths
}

func truncate(v string, width int) string {
	if utf8.RuneCountInString(v) <= width {
		return v
	}
	r := []rune(v)
	return string(r[:width-3]) + "..."
}

func pad(v string, width int) string {
	return v + strings.Repeat(" ", width-utf8.RuneCountInString(v))
}

func (p Printer) paint(code, v string) string {
	if !p.Colour {
		return v
	}
	return code + v + colReset
}

func (p Printer) ascii(w io.Writer, cols []string, rows [][]string) {
	widths := calculateWidths(cols, rows, p.maxWidth())

	border := func(fill string) {
		fmt.Fprint(w, "+")
		for _, wd := range widths {
			fmt.Fprint(w, strings.Repeat(fill, wd+2)+"+")
		}
		fmt.Fprintln(w)
	}

	border("-")
	fmt.Fprint(w, "|")
	for i, v := range cols {
		fmt.Fprintf(w, " %s |", p.paint(colBold, pad(truncate(v, widths[i]), widths[i])))
	}
	fmt.Fprintln(w)
	border("=")

	for _, row := range rows {
		fmt.Fprint(w, "|")
		for i, v := range row {
			cell := pad(truncate(v, widths[i]), widths[i])
			if v == "NULL" {
				cell = p.paint(colDim, cell)
			}
			fmt.Fprintf(w, " %s |", cell)
		}
		fmt.Fprintln(w)
	}
	border("-")
}

func (p Printer) unicode(w io.Writer, cols []string, rows [][]string) {
	widths := calculateWidths(cols, rows, p.maxWidth())

	line := func(left, mid, right string) {
		fmt.Fprint(w, left)
		for i, wd := range widths {
			fmt.Fprint(w, strings.Repeat("─", wd+2))
			if i < len(widths)-1 {
				fmt.Fprint(w, mid)
			}
		}
		fmt.Fprintln(w, right)
	}

	line("┌", "┬", "┐")
	fmt.Fprint(w, "│")
	for i, v := range cols {
		fmt.Fprintf(w, " %s │", p.paint(colBold, pad(truncate(v, widths[i]), widths[i])))
	}
	fmt.Fprintln(w)
	line("├", "┼", "┤")
	for _, row := range rows {
		fmt.Fprint(w, "│")
		for i, v := range row {
			cell := pad(truncate(v, widths[i]), widths[i])
			if v == "NULL" {
				cell = p.paint(colDim, cell)
			}
			fmt.Fprintf(w, " %s │", cell)
		}
		fmt.Fprintln(w)
	}
	line("└", "┴", "┘")
}

func writeCSV(w io.Writer, cols []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func jsonRecords(rs *conn.ResultSet) []map[string]interface{} {
	recs := rs.Records()
	for _, rec := range recs {
		for k, v := range rec {
			switch v.(type) {
			case nil, string, bool, int64, float64, map[string]interface{}:
			default:
				rec[k] = conn.FormatValue(v)
			}
		}
	}
	return recs
}
