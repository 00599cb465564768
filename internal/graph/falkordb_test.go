package graph

import (
	"testing"
	"time"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
		{"two\nlines", `'two\nlines'`},
		{"cr\rstripped", "'crstripped'"},
		{"nul\x00gone", "'nulgone'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteList(t *testing.T) {
	if got := quoteList(nil); got != "[]" {
		t.Errorf("quoteList(nil) = %s", got)
	}
	if got := quoteList([]string{"a", "b's"}); got != `['a', 'b\'s']` {
		t.Errorf("quoteList = %s", got)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{"s", "'s'"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(42), "42"},
		{3.5, "3.5"},
		{ts, "'2026-08-26T10:00:00Z'"},
		{[]string{"x"}, "['x']"},
		{nil, "null"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTimeRoundtrip(t *testing.T) {
	ts := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	if got := parseTime(formatTime(ts)); !got.Equal(ts) {
		t.Errorf("roundtrip = %v, want %v", got, ts)
	}
	if formatTime(time.Time{}) != "" {
		t.Error("zero time should format empty")
	}
	if !parseTime("").IsZero() {
		t.Error("empty string should parse to zero time")
	}
	if !parseTime("garbage").IsZero() {
		t.Error("unparseable string should parse to zero time")
	}
}

func TestParseReply(t *testing.T) {
	res := []any{
		[]any{"f.path", "f.size"},
		[]any{
			[]any{"main.go", int64(120)},
			[]any{"util.go", int64(40)},
		},
		[]any{"Cached execution: 1"},
	}
	rep, err := parseReply(res)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.columns) != 2 || rep.columns[0] != "f.path" {
		t.Errorf("columns = %v", rep.columns)
	}
	if len(rep.rows) != 2 || asString(rep.rows[0][0]) != "main.go" {
		t.Errorf("rows = %v", rep.rows)
	}
}

func TestParseReplyStatsOnly(t *testing.T) {
	rep, err := parseReply([]any{[]any{"Nodes created: 1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.rows) != 0 {
		t.Errorf("rows = %v, want none for write reply", rep.rows)
	}
	if _, err := parseReply("bogus"); err == nil {
		t.Error("non-slice reply should error")
	}
}

func TestScalarCoercion(t *testing.T) {
	if asString([]byte("b")) != "b" || asString(nil) != "" || asString(int64(7)) != "7" {
		t.Error("asString coercion")
	}
	if asInt(int64(5)) != 5 || asInt(5.0) != 5 || asInt("12") != 12 || asInt(nil) != 0 {
		t.Error("asInt coercion")
	}
	if !asBool(true) || !asBool(int64(1)) || !asBool("true") || asBool("no") || asBool(nil) {
		t.Error("asBool coercion")
	}
	got := asStrings([]any{"a", nil, "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("asStrings = %v", got)
	}
	if asStrings("nope") != nil {
		t.Error("asStrings on non-list should be nil")
	}
}

func TestLimitOr(t *testing.T) {
	if limitOr(0, 10) != 10 || limitOr(-1, 10) != 10 || limitOr(3, 10) != 3 {
		t.Error("limitOr defaults")
	}
}

func TestBuildPath(t *testing.T) {
	a := &pathStep{key: "src/a.ts:f"}
	b := &pathStep{key: "src/b.ts:g", prev: a, label: "CALLS"}
	c := &pathStep{key: "src/c.ts:h", prev: b, label: "CALLS"}

	p := buildPath(c)
	if p.Length != 2 {
		t.Fatalf("Length = %d, want 2", p.Length)
	}
	wantNodes := []string{"src/a.ts:f", "src/b.ts:g", "src/c.ts:h"}
	for i, n := range wantNodes {
		if p.Nodes[i] != n {
			t.Errorf("Nodes[%d] = %q, want %q", i, p.Nodes[i], n)
		}
	}
	if len(p.Edges) != 2 || p.Edges[0] != "CALLS" || p.Edges[1] != "CALLS" {
		t.Errorf("Edges = %v", p.Edges)
	}
}

func TestBuildPathSingleNode(t *testing.T) {
	p := buildPath(&pathStep{key: "src/a.ts:f"})
	if p.Length != 0 || len(p.Nodes) != 1 {
		t.Errorf("trivial path: length %d, nodes %v", p.Length, p.Nodes)
	}
}

func TestIndexSpecs(t *testing.T) {
	want := map[string][]string{
		"File":   {"path", "language", "git_hash"},
		"Symbol": {"name", "qualified_name", "file", "kind"},
		"Module": {"path", "name"},
		"Commit": {"sha", "author", "timestamp"},
	}
	have := map[string]map[string]bool{}
	for _, s := range indexSpecs {
		if have[s.label] == nil {
			have[s.label] = map[string]bool{}
		}
		have[s.label][s.property] = true
	}
	for label, props := range want {
		for _, p := range props {
			if !have[label][p] {
				t.Errorf("missing index on %s.%s", label, p)
			}
		}
	}
}
