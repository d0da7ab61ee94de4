// Package annotations reads postmind directives out of source comments.
//
// Python function sources and SQL query files keep their metadata in
// comments, so both stay runnable as they are:
//
//	# @postmind:name=add
//	# @postmind:version=2
//	# @postmind:params=a,b
//	def add(a, b):
//	    return a + b
//
//	-- @postmind:limit=100
//	SELECT * FROM track
//
// A directive is either a flag (@postmind:key) or a setting
// (@postmind:key=value). Consecutive directive lines form a block that
// attaches to the next line of code. Plain comments inside a block are
// skipped; a blank line discards it.
package annotations

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Directive is the marker following the comment leader.
const Directive = "@postmind:"

// Comment leaders recognised in front of a directive.
const (
	PythonPrefix = "# " + Directive
	SQLPrefix    = "-- " + Directive
)

var leaders = []string{PythonPrefix, SQLPrefix}

// Annotation is one directive line. Flags have an empty Value.
type Annotation struct {
	Key   string
	Value string
	Line  int
}

// AnnotationSet maps directive keys to their values.
type AnnotationSet map[string]string

func (a AnnotationSet) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a AnnotationSet) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// GetString returns the value of key, or def when it is absent or a flag.
func (a AnnotationSet) GetString(key, def string) string {
	if v := a[key]; v != "" {
		return v
	}
	return def
}

// GetInt returns def unless key holds a valid integer.
func (a AnnotationSet) GetInt(key string, def int) int {
	n, err := strconv.Atoi(a[key])
	if err != nil {
		return def
	}
	return n
}

// GetBool treats a bare flag as true.
func (a AnnotationSet) GetBool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
	return b
}

// GetList splits a comma separated value and drops empty items.
func (a AnnotationSet) GetList(key string) []string {
	v, ok := a[key]
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetDuration parses values such as "250ms" or "2m".
func (a AnnotationSet) GetDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(a[key])
	if err != nil {
		return def
	}
	return d
}

// Merge copies other into a. Keys in other win.
func (a AnnotationSet) Merge(other AnnotationSet) {
	for k, v := range other {
		a[k] = v
	}
}

// Block is a run of directives and the code line it attaches to.
type Block struct {
	Annotations AnnotationSet
	StartLine   int
	EndLine     int
	StmtLine    int
}

// Parser extracts directive blocks from source text.
type Parser struct {
	// StopOnBlank discards a pending block at a blank line.
	StopOnBlank bool
}

func NewParser() *Parser {
	return &Parser{StopOnBlank: true}
}

// Extract returns the directive blocks of source in order.
func (p *Parser) Extract(source string) []Block {
	var (
		blocks  []Block
		pending []Annotation
	)
	for i, line := range strings.Split(source, "\n") {
		n := i + 1
		text := strings.TrimSpace(line)

		if ann, ok := parseLine(text, n); ok {
			if ann.Key != "" {
				pending = append(pending, ann)
			}
			continue
		}
		if text == "" {
			if p.StopOnBlank {
				pending = nil
			}
			continue
		}
		if isComment(text) || len(pending) == 0 {
			continue
		}
		blocks = append(blocks, closeBlock(pending, n))
		pending = nil
	}
	return blocks
}

// Header returns the first block's directives, or an empty set.
func (p *Parser) Header(source string) AnnotationSet {
	if blocks := p.Extract(source); len(blocks) > 0 {
		return blocks[0].Annotations
	}
	return AnnotationSet{}
}

func closeBlock(anns []Annotation, stmt int) Block {
	set := make(AnnotationSet, len(anns))
	for _, a := range anns {
		set[a.Key] = a.Value
	}
	return Block{
		Annotations: set,
		StartLine:   anns[0].Line,
		EndLine:     anns[len(anns)-1].Line,
		StmtLine:    stmt,
	}
}

// parseLine reports whether text is a directive line. An empty directive
// yields an Annotation without a key.
func parseLine(text string, n int) (Annotation, bool) {
	for _, leader := range leaders {
		rest, ok := strings.CutPrefix(text, leader)
		if !ok {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimSpace(rest), "=")
		return Annotation{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value), Line: n}, true
	}
	return Annotation{}, false
}

func isComment(text string) bool {
	return strings.HasPrefix(text, "#") || strings.HasPrefix(text, "--")
}

// FunctionAnnotations documents the keys a function source may carry.
var FunctionAnnotations = map[string]string{
	"name":        "function name, defaults to the file name",
	"version":     "record version",
	"entry":       "Python callable to invoke, defaults to name",
	"params":      "comma separated parameter names",
	"returns":     "declared SQL output type, default setof jsonb",
	"language":    "procedural language, default plpython3u",
	"description": "free text",
}

// QueryAnnotations documents the keys a query file may carry.
var QueryAnnotations = map[string]string{
	"limit": "default row limit",
	"name":  "query name",
}

// Unknown returns the sorted keys of set missing from known.
func Unknown(set AnnotationSet, known map[string]string) []string {
	var out []string
	for key := range set {
		if _, ok := known[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
