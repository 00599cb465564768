package treesitter

import (
	"testing"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

func parse(t *testing.T, path, src, lang string) *types.ParsedFile {
	t.Helper()
	p := New(provider.ParserConfig{})
	pf, err := p.ParseSource(path, []byte(src), lang)
	if err != nil {
		t.Fatalf("ParseSource(%s): %v", lang, err)
	}
	return pf
}

func findSymbol(pf *types.ParsedFile, name string) *types.ParsedSymbol {
	for _, s := range pf.Symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestSupports(t *testing.T) {
	p := New(provider.ParserConfig{})
	for _, lang := range []string{"go", "python", "javascript", "typescript", "tsx"} {
		if !p.Supports(lang) {
			t.Errorf("Supports(%q) = false", lang)
		}
	}
	if p.Supports("rust") {
		t.Error("Supports(rust) = true, no grammar wired")
	}
}

func TestParseGo(t *testing.T) {
	src := `package store

import (
	"fmt"
	redis "github.com/redis/go-redis/v9"
)

// Store wraps a client.
type Store struct {
	base
}

// Get fetches a key.
func (s *Store) Get(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	return lookup(key), nil
}

func lookup(key string) string {
	return key
}
`
	pf := parse(t, "internal/store/store.go", src, "go")

	st := findSymbol(pf, "Store")
	if st == nil {
		t.Fatal("Store type not extracted")
	}
	if st.Kind != types.SymbolKindStruct {
		t.Errorf("Store kind = %q, want struct", st.Kind)
	}
	if len(st.Inherits) != 1 || st.Inherits[0] != "base" {
		t.Errorf("Store.Inherits = %v, want [base]", st.Inherits)
	}
	if st.Docstring == "" {
		t.Error("Store docstring not captured from preceding comment")
	}

	get := findSymbol(pf, "Get")
	if get == nil {
		t.Fatal("Get method not extracted")
	}
	if get.Kind != types.SymbolKindMethod {
		t.Errorf("Get kind = %q, want method", get.Kind)
	}
	if want := "internal/store/store.go:Store:Get"; get.QualifiedName != want {
		t.Errorf("Get qualified name = %q, want %q", get.QualifiedName, want)
	}
	if get.Visibility != "public" {
		t.Errorf("Get visibility = %q, want public", get.Visibility)
	}
	callees := map[string]bool{}
	for _, c := range get.Calls {
		callees[c.CalleeName] = true
	}
	if !callees["lookup"] {
		t.Errorf("Get calls = %v, want lookup among callees", get.Calls)
	}

	lk := findSymbol(pf, "lookup")
	if lk == nil || lk.Visibility != "private" {
		t.Errorf("lookup = %+v, want private function", lk)
	}

	sources := map[string]bool{}
	aliases := map[string]string{}
	for _, imp := range pf.Imports {
		sources[imp.Source] = true
		aliases[imp.Source] = imp.Alias
	}
	if !sources["fmt"] || !sources["github.com/redis/go-redis/v9"] {
		t.Errorf("imports = %v, want fmt and go-redis", sources)
	}
	if aliases["github.com/redis/go-redis/v9"] != "redis" {
		t.Errorf("go-redis alias = %q, want redis", aliases["github.com/redis/go-redis/v9"])
	}

	exported := map[string]bool{}
	for _, ex := range pf.Exports {
		exported[ex.Name] = true
	}
	if !exported["Store"] || !exported["Get"] || exported["lookup"] {
		t.Errorf("exports = %v", pf.Exports)
	}
}

func TestParsePython(t *testing.T) {
	src := `import os
from pathlib import Path


class Walker:
    """Walks a tree."""

    def visit(self, node):
        if node:
            self.descend(node)
        return render(node)


def render(node):
    return str(node)
`
	pf := parse(t, "tools/walker.py", src, "python")

	cls := findSymbol(pf, "Walker")
	if cls == nil || cls.Kind != types.SymbolKindClass {
		t.Fatalf("Walker = %+v, want class symbol", cls)
	}
	if cls.Docstring == "" {
		t.Error("Walker docstring not captured")
	}

	visit := findSymbol(pf, "visit")
	if visit == nil {
		t.Fatal("visit method not extracted")
	}
	if visit.Kind != types.SymbolKindMethod {
		t.Errorf("visit kind = %q, want method", visit.Kind)
	}
	if want := "tools/walker.py:Walker:visit"; visit.QualifiedName != want {
		t.Errorf("visit qualified name = %q, want %q", visit.QualifiedName, want)
	}

	var hasConditional bool
	for _, c := range visit.Calls {
		if c.CalleeName == "descend" && c.IsConditional {
			hasConditional = true
		}
	}
	if !hasConditional {
		t.Errorf("visit calls = %v, want conditional descend", visit.Calls)
	}

	fn := findSymbol(pf, "render")
	if fn == nil || fn.Kind != types.SymbolKindFunction {
		t.Errorf("render = %+v, want function", fn)
	}

	sources := map[string]bool{}
	for _, imp := range pf.Imports {
		sources[imp.Source] = true
	}
	if !sources["os"] || !sources["pathlib"] {
		t.Errorf("imports = %v, want os and pathlib", sources)
	}
}

func TestParseJavaScript(t *testing.T) {
	src := `import { sum } from './math.js';

export class Counter {
  add(n) {
    return sum(this.total, n);
  }
}

export async function tick() {
  return Promise.resolve(1);
}
`
	pf := parse(t, "web/src/counter.js", src, "javascript")

	cls := findSymbol(pf, "Counter")
	if cls == nil || cls.Kind != types.SymbolKindClass {
		t.Fatalf("Counter = %+v, want class", cls)
	}

	add := findSymbol(pf, "add")
	if add == nil || add.Kind != types.SymbolKindMethod {
		t.Fatalf("add = %+v, want method", add)
	}
	callees := map[string]bool{}
	for _, c := range add.Calls {
		callees[c.CalleeName] = true
	}
	if !callees["sum"] {
		t.Errorf("add calls = %v, want sum", add.Calls)
	}

	tick := findSymbol(pf, "tick")
	if tick == nil {
		t.Fatal("tick function not extracted")
	}
	if !tick.IsAsync {
		t.Error("tick not marked async")
	}

	if len(pf.Imports) == 0 || pf.Imports[0].Source != "./math.js" {
		t.Errorf("imports = %+v, want ./math.js", pf.Imports)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	p := New(provider.ParserConfig{})
	if _, err := p.ParseSource("x.rs", []byte("fn main() {}"), "rust"); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestSymbolChunks(t *testing.T) {
	src := `package x

func A() {}

func B() {}
`
	pf := parse(t, "x.go", src, "go")
	if len(pf.Chunks) != len(pf.Symbols) {
		t.Fatalf("chunks %d != symbols %d", len(pf.Chunks), len(pf.Symbols))
	}
	for i, c := range pf.Chunks {
		if c.SymbolContext != pf.Symbols[i].QualifiedName {
			t.Errorf("chunk %d context = %q, want %q", i, c.SymbolContext, pf.Symbols[i].QualifiedName)
		}
	}
}

// Repeated calls to the same callee collapse into one site that keeps
// the occurrence count and the first line.
func TestCallSiteCounts(t *testing.T) {
	src := `package main

func work() {
	helper()
	helper()
	if ready() {
		helper()
	}
}
`
	pf := parse(t, "main.go", src, "go")
	sym := findSymbol(pf, "work")
	if sym == nil {
		t.Fatal("symbol work not found")
	}

	var plain, conditional *types.CallSite
	for i := range sym.Calls {
		c := &sym.Calls[i]
		if c.CalleeName != "helper" {
			continue
		}
		if c.IsConditional {
			conditional = c
		} else {
			plain = c
		}
	}

	if plain == nil || conditional == nil {
		t.Fatalf("expected both helper sites, got %+v", sym.Calls)
	}
	if plain.Count != 2 {
		t.Errorf("unconditional count = %d, want 2", plain.Count)
	}
	if plain.Line != 4 {
		t.Errorf("first line = %d, want 4", plain.Line)
	}
	if conditional.Count != 1 {
		t.Errorf("conditional count = %d, want 1", conditional.Count)
	}
}
