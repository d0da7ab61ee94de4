package annotations

import (
	"sort"
	"testing"
	"time"
)

func TestExtractPythonHeader(t *testing.T) {
	source := `# @postmind:name=add
# @postmind:version=2
# adds two numbers
# @postmind:params=a, b
def add(a, b):
    return a + b
`
	blocks := NewParser().Extract(source)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	if b.StartLine != 1 || b.EndLine != 4 || b.StmtLine != 5 {
		t.Errorf("lines = %d/%d/%d", b.StartLine, b.EndLine, b.StmtLine)
	}
	if b.Annotations.GetString("name", "") != "add" {
		t.Errorf("name = %q", b.Annotations["name"])
	}
	params := b.Annotations.GetList("params")
	if len(params) != 2 || params[0] != "a" || params[1] != "b" {
		t.Errorf("params = %v", params)
	}
}

func TestExtractSQL(t *testing.T) {
	source := "-- @postmind:limit=100\nSELECT * FROM track\n"
	set := NewParser().Header(source)
	if got := set.GetInt("limit", 0); got != 100 {
		t.Errorf("limit = %d", got)
	}
}

func TestBlankLineBreaksBlock(t *testing.T) {
	source := "# @postmind:name=orphan\n\ndef f():\n    pass\n"
	if blocks := NewParser().Extract(source); len(blocks) != 0 {
		t.Errorf("expected no blocks, got %v", blocks)
	}

	p := &Parser{StopOnBlank: false}
	if blocks := p.Extract(source); len(blocks) != 1 {
		t.Errorf("expected 1 block without StopOnBlank, got %d", len(blocks))
	}
}

func TestHeaderEmpty(t *testing.T) {
	set := NewParser().Header("def f():\n    return 1\n")
	if len(set) != 0 {
		t.Errorf("expected empty set, got %v", set)
	}
}

func TestAnnotationSetHelpers(t *testing.T) {
	set := AnnotationSet{
		"flag":    "",
		"off":     "no",
		"count":   "3",
		"bad":     "x",
		"timeout": "250ms",
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"flag", set.GetBool("flag"), true},
		{"off", set.GetBool("off"), false},
		{"missing bool", set.GetBool("missing"), false},
		{"count", set.GetInt("count", 0), 3},
		{"bad int", set.GetInt("bad", 7), 7},
		{"duration", set.GetDuration("timeout", time.Second), 250 * time.Millisecond},
		{"default string", set.GetString("flag", "x"), "x"},
		{"has", set.Has("flag"), true},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	merged := AnnotationSet{"count": "1"}
	merged.Merge(AnnotationSet{"count": "2", "new": ""})
	if merged["count"] != "2" || !merged.Has("new") {
		t.Errorf("merge = %v", merged)
	}
}

func TestUnknown(t *testing.T) {
	unknown := Unknown(AnnotationSet{"name": "f", "colour": "red", "size": "1"}, FunctionAnnotations)
	sort.Strings(unknown)
	if len(unknown) != 2 || unknown[0] != "colour" || unknown[1] != "size" {
		t.Errorf("unknown = %v", unknown)
	}
}
