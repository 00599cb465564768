package types

import (
	"strings"
	"testing"
)

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		scope string
		sym   string
		want  string
	}{
		{"top level", "src/a.ts", "", "f", "src/a.ts:f"},
		{"method", "src/a.py", "Widget", "render", "src/a.py:Widget:render"},
		{"nested scope", "src/a.py", "Outer.Inner", "helper", "src/a.py:Outer.Inner:helper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QualifiedName(tt.file, tt.scope, tt.sym); got != tt.want {
				t.Errorf("QualifiedName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("src/a.ts", 1, 20); got != "src/a.ts:1:20" {
		t.Errorf("ChunkID() = %q", got)
	}
}

func TestCollectionName(t *testing.T) {
	if got := CollectionName("abc123", CollectionCodeChunks); got != "abc123_code_chunks" {
		t.Errorf("CollectionName() = %q", got)
	}
}

func TestSummaryID(t *testing.T) {
	tests := []struct {
		level int
		key   string
		want  string
	}{
		{1, "src/a.ts:f", "L1:src/a.ts:f"},
		{4, "repo", "L4:repo"},
	}
	for _, tt := range tests {
		if got := SummaryID(tt.level, tt.key); got != tt.want {
			t.Errorf("SummaryID(%d, %q) = %q, want %q", tt.level, tt.key, got, tt.want)
		}
	}
}

func TestSessionKnowledgeKey(t *testing.T) {
	n := &SessionKnowledgeNode{SessionID: "sess-1", TurnNumber: 3}
	if got := n.Key(); got != "sess-1:3" {
		t.Errorf("Key() = %q", got)
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	c := HashBytes([]byte("world"))
	if a != b {
		t.Error("identical content must hash equal")
	}
	if a == c {
		t.Error("different content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Design Notes", "design-notes"},
		{"  API Spec v2  ", "api-spec-v2"},
		{"weird///chars!!!", "weirdchars"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsedFileComplexity(t *testing.T) {
	f := &ParsedFile{Symbols: []*ParsedSymbol{
		{Complexity: 3},
		{Complexity: 2},
	}}
	if got := f.Complexity(); got != 5 {
		t.Errorf("Complexity() = %d, want 5", got)
	}

	empty := &ParsedFile{}
	if got := empty.Complexity(); got != 1 {
		t.Errorf("empty file Complexity() = %d, want 1", got)
	}
}

func TestAllDimensionsOrder(t *testing.T) {
	if len(AllDimensions) != 9 {
		t.Fatalf("expected 9 dimensions, got %d", len(AllDimensions))
	}
	seen := map[Dimension]bool{}
	for _, d := range AllDimensions {
		if seen[d] {
			t.Errorf("duplicate dimension %s", d)
		}
		seen[d] = true
	}
}

func TestAllCollections(t *testing.T) {
	if len(AllCollections) != 5 {
		t.Fatalf("expected 5 collections, got %d", len(AllCollections))
	}
	for _, c := range AllCollections {
		if strings.Contains(string(c), " ") {
			t.Errorf("collection %q has whitespace", c)
		}
	}
}
