package summarize

import (
	"strings"
	"testing"
)

func TestExtractive(t *testing.T) {
	prompt := "Summarize this file in two sentences.\n\nfunc main() { run() }\nmore lines"
	got := extractive(prompt)
	if got != "func main() { run() }" {
		t.Errorf("extractive = %q", got)
	}

	long := "instruction\n\n" + strings.Repeat("x", 300)
	if got := extractive(long); len(got) != 200 {
		t.Errorf("extractive clipped to %d chars, want 200", len(got))
	}

	// No instruction separator: first line of the whole input.
	if got := extractive("single line"); got != "single line" {
		t.Errorf("extractive = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	lines := []string{"one", "two", "three", "four"}

	if got := excerpt(lines, 2, 3, 100); got != "two\nthree" {
		t.Errorf("excerpt = %q", got)
	}
	// Out-of-range bounds are clamped.
	if got := excerpt(lines, 0, 99, 100); got != "one\ntwo\nthree\nfour" {
		t.Errorf("excerpt clamped = %q", got)
	}
	if got := excerpt(lines, 3, 2, 100); got != "" {
		t.Errorf("inverted range = %q, want empty", got)
	}
	if got := excerpt(lines, 1, 4, 5); len(got) != 5 {
		t.Errorf("excerpt size cap = %d chars, want 5", len(got))
	}
}

func TestKeywords(t *testing.T) {
	got := keywords("Parses the sync ledger, replays ledger entries, and saves the ledger.", 3)
	if len(got) != 3 {
		t.Fatalf("got %d keywords: %v", len(got), got)
	}
	if got[0] != "ledger" {
		t.Errorf("top keyword = %q, want ledger (most frequent)", got[0])
	}
	for _, w := range got {
		if keywordStop[w] {
			t.Errorf("stopword leaked: %q", w)
		}
	}

	if kw := keywords("", 5); len(kw) != 0 {
		t.Errorf("empty text produced keywords: %v", kw)
	}
	if kw := keywords("the and for", 5); len(kw) != 0 {
		t.Errorf("stopword-only text produced keywords: %v", kw)
	}
}
