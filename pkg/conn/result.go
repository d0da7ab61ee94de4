package conn

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ResultSet holds a fully materialised result.
type ResultSet struct {
	Columns []string
	Types   []string
	Rows    [][]interface{}
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ColumnIndex returns the position of a column, or -1.
func (r *ResultSet) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Column returns all values of one column.
func (r *ResultSet) Column(name string) ([]interface{}, bool) {
	idx := r.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// Scalar returns the first value of the first row, or nil.
func (r *ResultSet) Scalar() interface{} {
	if r.Len() == 0 || len(r.Rows[0]) == 0 {
		return nil
	}
	return r.Rows[0][0]
}

// Records returns the rows as column-keyed maps.
func (r *ResultSet) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]interface{}, len(r.Columns))
		for j, c := range r.Columns {
			rec[c] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Strings renders every value with FormatValue.
func (r *ResultSet) Strings() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = FormatValue(v)
		}
	}
	return out
}

// FormatValue renders a normalised value for display.
func FormatValue(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case decimal.Decimal:
		return val.String()
	case []interface{}:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = FormatValue(e)
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ToInt64 converts a count-like value returned by any driver.
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case float64:
		return int64(n), true
	case decimal.Decimal:
		return n.IntPart(), true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return 0, false
		}
		return d.IntPart(), true
	}
	return 0, false
}
