package manifold

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/controlVector/cv-git/pkg/types"
)

// render concatenates dimension fragments in the chosen format.
// Dimensions with empty fragments are omitted.
func render(query string, signals []types.DimensionSignal, format types.ContextFormat) string {
	switch format {
	case types.FormatXML:
		return renderXML(query, signals)
	case types.FormatJSON:
		return renderJSON(query, signals)
	default:
		return renderMarkdown(query, signals)
	}
}

func renderMarkdown(query string, signals []types.DimensionSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Context: %s\n", query)
	for _, sig := range signals {
		if sig.Fragment == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (score %.2f)\n\n%s\n", sig.Dimension, sig.Score, strings.TrimRight(sig.Fragment, "\n"))
	}
	return b.String()
}

func renderXML(query string, signals []types.DimensionSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<context query=%q>\n", query)
	for _, sig := range signals {
		if sig.Fragment == "" {
			continue
		}
		fmt.Fprintf(&b, "  <dimension name=%q score=\"%.2f\">\n", sig.Dimension, sig.Score)
		b.WriteString(xmlEscape(strings.TrimRight(sig.Fragment, "\n")))
		b.WriteString("\n  </dimension>\n")
	}
	b.WriteString("</context>\n")
	return b.String()
}

func renderJSON(query string, signals []types.DimensionSignal) string {
	type fragment struct {
		Dimension types.Dimension `json:"dimension"`
		Score     float64         `json:"score"`
		Refs      []string        `json:"refs,omitempty"`
		Content   string          `json:"content"`
	}
	doc := struct {
		Query     string     `json:"query"`
		Fragments []fragment `json:"fragments"`
	}{Query: query}
	for _, sig := range signals {
		if sig.Fragment == "" {
			continue
		}
		doc.Fragments = append(doc.Fragments, fragment{
			Dimension: sig.Dimension,
			Score:     sig.Score,
			Refs:      sig.Refs,
			Content:   sig.Fragment,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

// renderHits formats semantic search hits into a fragment, dropping
// whole hits once the budget is spent.
func renderHits(hits []*types.VectorHit, budget int) string {
	var b strings.Builder
	for _, h := range hits {
		file, _ := h.Payload["file"].(string)
		content, _ := h.Payload["content"].(string)
		entry := fmt.Sprintf("### %s (%.2f)\n%s\n\n", orString(file, h.ID), h.Score, strings.TrimSpace(content))
		if budget > 0 && b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts a fragment at the budget on a line boundary.
func truncate(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	cut := s[:budget]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut
}

func orString(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
