package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/errors"
)

// Shape is the range of array lengths in a column.
type Shape struct {
	Min int64
	Max int64
}

// SummaryOptions control Column.Summary.
type SummaryOptions struct {
	// Count is the number of most frequent values kept per element (default 32).
	Count int
	// Elements lists the 1-based array positions to summarise (default all).
	Elements []int
	// Workers bounds the number of parallel connections (default 4).
	Workers int
}

// SummaryRow is the sketch of one array element.
type SummaryRow struct {
	Element  int
	Table    string
	Column   string
	Distinct int64
	Top      string
}

func (c *Column) scalar(ctx context.Context, sql string) (interface{}, error) {
	rs, err := c.table.session.Query(ctx, sql, 0)
	if err != nil {
		return nil, err
	}
	return rs.Scalar(), nil
}

// DistinctCount counts distinct values, approximately with a MADlib FM
// sketch when approx is set. Families without MADlib always count exactly.
func (c *Column) DistinctCount(ctx context.Context, approx bool) (int64, error) {
	s := c.table.session
	agg := "count(distinct col)"
	if approx {
		if s.Family().PostgresLike() {
			agg = "madlib.fmsketch_dcount(col)"
		} else {
			s.Logger().Query().Debug("approximate distinct count unavailable, counting exactly",
				"family", s.Family().String())
		}
	}
	v, err := c.scalar(ctx, fmt.Sprintf("select %s from (%s) q", agg, c.valueSQL()))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	n, ok := conn.ToInt64(v)
	if !ok {
		return 0, errors.TypeMismatch("unexpected distinct count %v", v).Err()
	}
	return n, nil
}

// ValuesCount returns the k most frequent values as rendered by
// madlib.mfvsketch_top_histogram.
func (c *Column) ValuesCount(ctx context.Context, k int) (string, error) {
	s := c.table.session
	if !s.Family().PostgresLike() {
		return "", errors.UnsupportedDialect("most frequent values sketch", s.Family().String()).Err()
	}
	if k <= 0 {
		k = 10
	}
	v, err := c.scalar(ctx, fmt.Sprintf("select madlib.mfvsketch_top_histogram(col, %d)::text from (%s) q", k, c.valueSQL()))
	if err != nil {
		return "", err
	}
	return conn.FormatValue(v), nil
}

// Ndims returns the number of array dimensions, 0 for scalar columns. The
// value is cached once the query yields one; an empty table reports 0
// without caching.
func (c *Column) Ndims(ctx context.Context) (int, error) {
	if !c.arr {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ndims != nil {
		return *c.ndims, nil
	}

	v, err := c.scalar(ctx, fmt.Sprintf("select max(array_ndims(col)) from (%s) q", c.valueSQL()))
	if err != nil {
		return 0, err
	}
	n, ok := conn.ToInt64(v)
	if !ok {
		return 0, nil
	}
	nd := int(n)
	c.ndims = &nd
	return nd, nil
}

// Shape returns the minimum and maximum array length. Scalar columns have
// shape {1, 1}. The value is cached once the query yields both bounds.
func (c *Column) Shape(ctx context.Context) (Shape, error) {
	if !c.arr {
		return Shape{Min: 1, Max: 1}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shape != nil {
		return *c.shape, nil
	}

	rs, err := c.table.session.Query(ctx,
		fmt.Sprintf("select min(array_length(col, 1)), max(array_length(col, 1)) from (%s) q", c.valueSQL()), 0)
	if err != nil {
		return Shape{}, err
	}
	var sh Shape
	if rs.Len() == 0 || len(rs.Rows[0]) < 2 {
		return sh, nil
	}
	var okMin, okMax bool
	sh.Min, okMin = conn.ToInt64(rs.Rows[0][0])
	sh.Max, okMax = conn.ToInt64(rs.Rows[0][1])
	if okMin && okMax {
		c.shape = &sh
	}
	return sh, nil
}

// SummaryQueries builds the per-element sketch queries for elements.
func (c *Column) SummaryQueries(elements []int, count int) ([]string, error) {
	queries := make([]string, len(elements))
	for i, e := range elements {
		el, err := c.Index(e)
		if err != nil {
			return nil, err
		}
		queries[i] = fmt.Sprintf(
			"select madlib.fmsketch_dcount(col) as count, madlib.mfvsketch_top_histogram(col, %d)::text as top from (%s) q",
			count, el.valueSQL())
	}
	return queries, nil
}

// Summary sketches every element of an array column. The per-element
// queries run on a pool of workers, each on its own connection.
func (c *Column) Summary(ctx context.Context, opts SummaryOptions) ([]SummaryRow, error) {
	s := c.table.session
	if !c.arr {
		return nil, errors.TypeMismatch("summary requires an array column, %q is %s", c.name, c.typ).
			WithOp("Column.Summary").Err()
	}
	if opts.Count <= 0 {
		opts.Count = 32
	}

	elements := opts.Elements
	if len(elements) == 0 {
		shape, err := c.Shape(ctx)
		if err != nil {
			return nil, err
		}
		for i := 1; i <= int(shape.Min); i++ {
			elements = append(elements, i)
		}
	}

	queries, err := c.SummaryQueries(elements, opts.Count)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.Logger().Query().Info("summarising column", "table", c.table.name, "column", c.name,
		"elements", len(elements), "workers", opts.Workers)

	results, err := conn.RunParallel(ctx, s.Dial, queries, opts.Workers)
	if err != nil {
		return nil, err
	}

	rows := make([]SummaryRow, len(results))
	for i, rs := range results {
		row := SummaryRow{Element: elements[i], Table: c.table.name, Column: c.name}
		if rs.Len() > 0 {
			row.Distinct, _ = conn.ToInt64(rs.Rows[0][0])
			row.Top = conn.FormatValue(rs.Rows[0][1])
		}
		rows[i] = row
	}

	s.Logger().Performance().Debug("column summary", "column", c.name,
		"elapsed_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// Percentiles returns a lazy column holding the n-quantiles of a scalar
// column: percentile_disc at 1/n, 2/n, ... (n-1)/n.
func (c *Column) Percentiles(n int) (*Column, error) {
	if c.arr {
		return nil, errors.TypeMismatch("percentiles require a scalar column, %q is %s", c.name, c.typ).Err()
	}
	if n < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidIndex, "percentiles need at least 2 buckets, got %d", n).Err()
	}

	points := make([]string, 0, n-1)
	for i := 1; i < n; i++ {
		points = append(points, strconv.FormatFloat(float64(i)/float64(n), 'f', -1, 64))
	}
	return &Column{
		table: c.table,
		name:  "percentile",
		typ:   c.typ + "[]",
		arr:   true,
		expr:  fmt.Sprintf("percentile_disc(array[%s]) within group (order by %s)", strings.Join(points, ","), c.expr),
	}, nil
}
