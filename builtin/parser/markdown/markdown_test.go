package markdown

import (
	"testing"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

const sample = `---
title: Sync Pipeline
type: design
status: draft
tags: [sync, graph]
owner: platform
---

Intro paragraph before any section.

## Delta computation

Walk the tree and diff against the [ledger](../internal/ledger/ledger.go).

## Reconciliation

See the [docs site](https://example.com/docs) for background.

### Ordering

Deletes run first.
`

func TestParseDocumentFrontmatter(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("docs/sync-design.md", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	fm := doc.Frontmatter
	if fm == nil {
		t.Fatal("frontmatter not parsed")
	}
	if fm.Title != "Sync Pipeline" {
		t.Errorf("title = %q", fm.Title)
	}
	if fm.DocumentType != "design" || fm.Status != "draft" {
		t.Errorf("type = %q status = %q", fm.DocumentType, fm.Status)
	}
	if len(fm.Tags) != 2 || fm.Tags[0] != "sync" {
		t.Errorf("tags = %v", fm.Tags)
	}
	if fm.CustomFields["owner"] != "platform" {
		t.Errorf("custom fields = %v", fm.CustomFields)
	}

	if doc.Title != "Sync Pipeline" {
		t.Errorf("doc title = %q", doc.Title)
	}
	if doc.DocumentType != types.DocTypeSpec {
		t.Errorf("doc type = %q, want spec", doc.DocumentType)
	}
	if doc.Status != types.DocStatusDraft {
		t.Errorf("status = %q, want draft", doc.Status)
	}
}

func TestParseDocumentSections(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("docs/sync-design.md", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	titles := make([]string, len(doc.Sections))
	for i, s := range doc.Sections {
		titles[i] = s.Title
	}
	want := []string{"preamble", "Delta computation", "Reconciliation"}
	if len(titles) != len(want) {
		t.Fatalf("sections = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("sections = %v, want %v", titles, want)
		}
	}

	// H3 stays inside its parent H2 section.
	recon := doc.Sections[2]
	if recon.EndLine <= recon.StartLine {
		t.Errorf("Reconciliation spans %d..%d", recon.StartLine, recon.EndLine)
	}
	if len(recon.Chunks) == 0 {
		t.Fatal("Reconciliation has no chunks")
	}
}

func TestParseDocumentLinks(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("docs/sync-design.md", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	byTarget := map[string]types.Link{}
	for _, l := range doc.Links {
		byTarget[l.Target] = l
	}

	ledger, ok := byTarget["../internal/ledger/ledger.go"]
	if !ok {
		t.Fatalf("links = %v, ledger link missing", doc.Links)
	}
	if !ledger.IsCodeRef || ledger.IsExternal {
		t.Errorf("ledger link flags: codeRef=%v external=%v", ledger.IsCodeRef, ledger.IsExternal)
	}

	site, ok := byTarget["https://example.com/docs"]
	if !ok {
		t.Fatal("external link missing")
	}
	if !site.IsExternal || site.IsCodeRef {
		t.Errorf("site link flags: codeRef=%v external=%v", site.IsCodeRef, site.IsExternal)
	}
}

func TestParseDocumentHeadings(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("docs/sync-design.md", []byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Headings) != 3 {
		t.Fatalf("headings = %v, want 3", doc.Headings)
	}
	if doc.Headings[0].Level != 2 || doc.Headings[0].Slug != "delta-computation" {
		t.Errorf("first heading = %+v", doc.Headings[0])
	}
	if doc.Headings[2].Level != 3 {
		t.Errorf("third heading level = %d, want 3", doc.Headings[2].Level)
	}
}

func TestParseDocumentNoFrontmatter(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("README.md", []byte("# Demo Project\n\nHello.\n"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Frontmatter != nil {
		t.Error("unexpected frontmatter")
	}
	if doc.Title != "Demo Project" {
		t.Errorf("title = %q, want from H1", doc.Title)
	}
	if doc.DocumentType != types.DocTypeReadme {
		t.Errorf("type = %q, want readme", doc.DocumentType)
	}
	if doc.Status != types.DocStatusActive {
		t.Errorf("status = %q, want active", doc.Status)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Title != "document" {
		t.Errorf("sections = %+v, want single document section", doc.Sections)
	}
}

func TestParseDocumentFencedCodeIgnored(t *testing.T) {
	p := New(provider.ParserConfig{})
	src := "## Usage\n\n```sh\n# not a heading\n```\n"
	doc, err := p.ParseDocument("docs/usage.md", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Headings) != 1 {
		t.Errorf("headings = %v, fence content leaked", doc.Headings)
	}
}

func TestParseDocumentTitleFallback(t *testing.T) {
	p := New(provider.ParserConfig{})
	doc, err := p.ParseDocument("notes/scratch-pad.md", []byte("just text\n"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "scratch-pad" {
		t.Errorf("title = %q, want filename stem", doc.Title)
	}
}
