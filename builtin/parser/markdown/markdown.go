// Package markdown parses markdown documents for the documentation
// pipeline: YAML frontmatter, heading outline, link graph, and
// H2-bounded sections with embedding chunks.
package markdown

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultMaxChunkSize caps section chunk length in characters.
const DefaultMaxChunkSize = 8000

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	linkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	codeRefRe = regexp.MustCompile(`\.(go|py|js|jsx|ts|tsx|rs|java|c|h|cpp|rb|php|cs|kt|swift|sql|proto|sh|ya?ml|toml|json)(#|$)`)
)

// Parser implements the DocumentParser interface.
type Parser struct {
	maxChunkSize int
}

// New creates a new markdown parser.
func New(cfg provider.ParserConfig) *Parser {
	max := cfg.MaxChunkSize
	if max == 0 {
		max = DefaultMaxChunkSize
	}
	return &Parser{maxChunkSize: max}
}

// Name returns the parser name.
func (p *Parser) Name() string {
	return "markdown"
}

// ParseDocument parses a markdown file.
func (p *Parser) ParseDocument(path string, content []byte) (*types.ParsedDocument, error) {
	doc := &types.ParsedDocument{
		Path: path,
		Hash: types.HashBytes(content),
		Size: int64(len(content)),
	}

	body, fm, err := splitFrontmatter(content)
	if err != nil {
		// Malformed frontmatter is not fatal; index the whole file.
		body = content
		fm = nil
	}
	doc.Frontmatter = fm

	lines := strings.Split(string(body), "\n")
	bodyOffset := countLines(content) - len(lines) // frontmatter lines, 0 when absent

	inFence := false
	for i, line := range lines {
		lineNum := bodyOffset + i + 1

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[2])
			doc.Headings = append(doc.Headings, types.Heading{
				Level: len(m[1]),
				Text:  text,
				Slug:  types.Slugify(text),
				Line:  lineNum,
			})
		}

		for _, lm := range linkRe.FindAllStringSubmatch(line, -1) {
			target := lm[2]
			doc.Links = append(doc.Links, types.Link{
				Text:       lm[1],
				Target:     target,
				Line:       lineNum,
				IsExternal: strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"),
				IsCodeRef:  codeRefRe.MatchString(target),
			})
		}
	}

	doc.Title = resolveTitle(path, fm, doc.Headings)
	doc.DocumentType = resolveType(path, fm)
	doc.Status = resolveStatus(fm)
	doc.Sections = p.splitSections(path, lines, bodyOffset, doc.Headings)

	return doc, nil
}

// splitFrontmatter separates an optional leading `---` YAML block.
func splitFrontmatter(content []byte) ([]byte, *types.Frontmatter, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return content, nil, nil
	}
	rest := content[bytes.IndexByte(content, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return content, nil, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = nil
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return content, nil, fmt.Errorf("frontmatter: %w", err)
	}

	fm := &types.Frontmatter{CustomFields: map[string]any{}}
	for k, v := range raw {
		switch strings.ToLower(k) {
		case "title":
			fm.Title, _ = v.(string)
		case "type", "document_type", "doc_type":
			if s, ok := v.(string); ok {
				fm.DocumentType = strings.ToLower(s)
			}
		case "status":
			if s, ok := v.(string); ok {
				fm.Status = strings.ToLower(s)
			}
		case "tags":
			if list, ok := v.([]any); ok {
				for _, t := range list {
					if s, ok := t.(string); ok {
						fm.Tags = append(fm.Tags, s)
					}
				}
			}
		default:
			fm.CustomFields[k] = v
		}
	}
	if len(fm.CustomFields) == 0 {
		fm.CustomFields = nil
	}
	return body, fm, nil
}

func resolveTitle(path string, fm *types.Frontmatter, headings []types.Heading) string {
	if fm != nil && fm.Title != "" {
		return fm.Title
	}
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func resolveType(path string, fm *types.Frontmatter) types.DocumentType {
	if fm != nil {
		switch fm.DocumentType {
		case "readme":
			return types.DocTypeReadme
		case "changelog":
			return types.DocTypeChangelog
		case "adr", "decision":
			return types.DocTypeADR
		case "guide", "howto", "tutorial":
			return types.DocTypeGuide
		case "spec", "design", "rfc":
			return types.DocTypeSpec
		}
	}

	base := strings.ToLower(filepath.Base(path))
	dir := strings.ToLower(filepath.Dir(path))
	switch {
	case strings.HasPrefix(base, "readme"):
		return types.DocTypeReadme
	case strings.HasPrefix(base, "changelog") || strings.HasPrefix(base, "history"):
		return types.DocTypeChangelog
	case strings.Contains(dir, "adr") || strings.Contains(dir, "decisions"):
		return types.DocTypeADR
	case strings.Contains(dir, "guide") || strings.Contains(dir, "tutorial"):
		return types.DocTypeGuide
	case strings.Contains(base, "spec") || strings.Contains(base, "design") || strings.Contains(base, "rfc"):
		return types.DocTypeSpec
	default:
		return types.DocTypeGeneric
	}
}

func resolveStatus(fm *types.Frontmatter) types.DocumentStatus {
	if fm != nil {
		switch fm.Status {
		case "draft":
			return types.DocStatusDraft
		case "archived":
			return types.DocStatusArchived
		case "deprecated", "superseded":
			return types.DocStatusDeprecated
		}
	}
	return types.DocStatusActive
}

// splitSections slices the document at H2 boundaries. Content before
// the first H2 forms an implicit "preamble" section when non-empty.
func (p *Parser) splitSections(path string, lines []string, bodyOffset int, headings []types.Heading) []*types.DocumentSection {
	type bound struct {
		title string
		start int // 1-based absolute line
	}

	var bounds []bound
	for _, h := range headings {
		if h.Level == 2 {
			bounds = append(bounds, bound{title: h.Text, start: h.Line})
		}
	}

	lastLine := bodyOffset + len(lines)
	var sections []*types.DocumentSection

	addSection := func(title string, start, end int) {
		if end < start {
			return
		}
		s := &types.DocumentSection{
			Title:     title,
			Slug:      types.Slugify(title),
			StartLine: start,
			EndLine:   end,
		}
		s.Chunks = p.chunkRange(path, lines, bodyOffset, start, end)
		if len(s.Chunks) > 0 {
			sections = append(sections, s)
		}
	}

	if len(bounds) == 0 {
		addSection("document", bodyOffset+1, lastLine)
		return sections
	}

	if bounds[0].start > bodyOffset+1 {
		addSection("preamble", bodyOffset+1, bounds[0].start-1)
	}
	for i, b := range bounds {
		end := lastLine
		if i+1 < len(bounds) {
			end = bounds[i+1].start - 1
		}
		addSection(b.title, b.start, end)
	}
	return sections
}

// chunkRange emits one chunk per section, splitting oversized sections.
func (p *Parser) chunkRange(path string, lines []string, bodyOffset, start, end int) []*types.Chunk {
	slice := lines[start-bodyOffset-1 : end-bodyOffset]
	text := strings.Join(slice, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []*types.Chunk
	add := func(body string, s, e int) {
		chunks = append(chunks, &types.Chunk{
			ID:        types.ChunkID(path, s, e),
			FilePath:  path,
			Language:  "markdown",
			Content:   body,
			StartLine: s,
			EndLine:   e,
			Hash:      types.HashBytes([]byte(body)),
		})
	}

	if len(text) <= p.maxChunkSize {
		add(text, start, end)
		return chunks
	}

	// Split on size while keeping line alignment.
	curStart := start
	var cur []string
	size := 0
	for i, line := range slice {
		if size+len(line) > p.maxChunkSize && size > 0 {
			add(strings.Join(cur, "\n"), curStart, start+i-1)
			cur = nil
			size = 0
			curStart = start + i
		}
		cur = append(cur, line)
		size += len(line) + 1
	}
	if len(cur) > 0 {
		add(strings.Join(cur, "\n"), curStart, end)
	}
	return chunks
}

func countLines(b []byte) int {
	return bytes.Count(b, []byte("\n")) + 1
}

// Ensure Parser implements DocumentParser.
var _ provider.DocumentParser = (*Parser)(nil)
