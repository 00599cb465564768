package treesitter

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/controlVector/cv-git/pkg/types"
)

func (e *extractor) walkGo(n *sitter.Node, scope []string) {
	switch n.Type() {
	case "source_file":
		e.walkChildren(n, scope)

	case "import_declaration":
		e.goImports(n)

	case "function_declaration":
		name := e.text(childByField(n, "name"))
		sym := e.addSymbol(n, scope, name, types.SymbolKindFunction,
			e.signature(n, childByField(n, "body")),
			e.precedingComment(n), goVisibility(name), false)
		e.goExport(sym)

	case "method_declaration":
		name := e.text(childByField(n, "name"))
		recv := goReceiverType(e, n)
		sc := scope
		if recv != "" {
			sc = append(append([]string{}, scope...), recv)
		}
		sym := e.addSymbol(n, sc, name, types.SymbolKindMethod,
			e.signature(n, childByField(n, "body")),
			e.precedingComment(n), goVisibility(name), false)
		e.goExport(sym)

	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
				continue
			}
			name := e.text(childByField(spec, "name"))
			kind := types.SymbolKindType
			switch t := childByField(spec, "type"); {
			case t != nil && t.Type() == "struct_type":
				kind = types.SymbolKindStruct
			case t != nil && t.Type() == "interface_type":
				kind = types.SymbolKindInterface
			}
			doc := e.precedingComment(n)
			sym := e.addSymbol(spec, scope, name, kind,
				firstLineOf(e.text(spec)), doc, goVisibility(name), false)
			e.goExport(sym)
			// Embedded types become INHERITS edges.
			if sym != nil {
				sym.Inherits = e.goEmbedded(childByField(spec, "type"))
			}
		}

	case "const_declaration", "var_declaration":
		kind := types.SymbolKindConstant
		if n.Type() == "var_declaration" {
			kind = types.SymbolKindVariable
		}
		// Only hoist package-level declarations into the graph.
		if n.Parent() == nil || n.Parent().Type() != "source_file" {
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "const_spec" && spec.Type() != "var_spec" {
				continue
			}
			nameNode := childByField(spec, "name")
			if nameNode == nil {
				continue
			}
			name := e.text(nameNode)
			sym := e.addSymbol(spec, scope, name, kind,
				firstLineOf(e.text(spec)), e.precedingComment(n), goVisibility(name), false)
			e.goExport(sym)
		}

	default:
		e.walkChildren(n, scope)
	}
}

func (e *extractor) goImports(decl *sitter.Node) {
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			pathNode := childByField(n, "path")
			source := strings.Trim(e.text(pathNode), `"`)
			alias := ""
			if a := childByField(n, "name"); a != nil {
				alias = e.text(a)
			}
			e.file.Imports = append(e.file.Imports, &types.Import{
				Source:     source,
				Alias:      alias,
				Type:       types.ImportNamespace,
				Line:       int(n.StartPoint().Row) + 1,
				IsExternal: strings.Contains(strings.SplitN(source, "/", 2)[0], "."),
			})
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(decl)
}

// goExport records exported (capitalized) package-level symbols.
func (e *extractor) goExport(sym *types.ParsedSymbol) {
	if sym == nil || sym.Visibility != "public" {
		return
	}
	e.file.Exports = append(e.file.Exports, &types.Export{
		Name: sym.Name,
		Line: sym.StartLine,
	})
}

// goEmbedded collects embedded struct fields and interface embeds.
func (e *extractor) goEmbedded(typeNode *sitter.Node) []string {
	if typeNode == nil {
		return nil
	}
	var out []string
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "field_declaration":
			// Embedded field: type with no name.
			if childByField(n, "name") == nil {
				if t := childByField(n, "type"); t != nil {
					out = append(out, strings.TrimPrefix(e.text(t), "*"))
				}
			}
			return
		case "type_identifier", "qualified_type":
			if n.Parent() != nil && n.Parent().Type() == "interface_type" {
				out = append(out, e.text(n))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(typeNode)
	return out
}

func goReceiverType(e *extractor, method *sitter.Node) string {
	recv := childByField(method, "receiver")
	if recv == nil {
		return ""
	}
	var typeName string
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "type_identifier" {
			typeName = e.text(n)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(recv)
	return typeName
}

func goVisibility(name string) string {
	if name == "" {
		return "private"
	}
	if unicode.IsUpper([]rune(name)[0]) {
		return "public"
	}
	return "private"
}

func firstLineOf(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
