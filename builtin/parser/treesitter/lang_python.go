package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/controlVector/cv-git/pkg/types"
)

func (e *extractor) walkPython(n *sitter.Node, scope []string) {
	switch n.Type() {
	case "module", "block":
		e.walkChildren(n, scope)

	case "decorated_definition":
		if def := childByField(n, "definition"); def != nil {
			e.walkPython(def, scope)
		}

	case "import_statement", "import_from_statement":
		e.pyImport(n)

	case "function_definition":
		name := e.text(childByField(n, "name"))
		kind := types.SymbolKindFunction
		if insideClass(scope) {
			kind = types.SymbolKindMethod
		}
		body := childByField(n, "body")
		sym := e.addSymbol(n, scope, name, kind,
			e.signature(n, body), e.pyDocstring(body), pyVisibility(name),
			hasChildToken(n, "async"))
		if sym != nil && !strings.HasPrefix(name, "_") && len(scope) == 0 {
			e.file.Exports = append(e.file.Exports, &types.Export{Name: name, Line: sym.StartLine})
		}
		// Nested defs get the enclosing function in their scope chain.
		e.walk(body, append(append([]string{}, scope...), name))

	case "class_definition":
		name := e.text(childByField(n, "name"))
		body := childByField(n, "body")
		sym := e.addSymbol(n, scope, name, types.SymbolKindClass,
			e.signature(n, body), e.pyDocstring(body), pyVisibility(name), false)
		if sym != nil {
			sym.Inherits = e.pyBases(n)
			if !strings.HasPrefix(name, "_") && len(scope) == 0 {
				e.file.Exports = append(e.file.Exports, &types.Export{Name: name, Line: sym.StartLine})
			}
		}
		e.walk(body, append(append([]string{}, scope...), name))

	default:
		e.walkChildren(n, scope)
	}
}

func (e *extractor) pyImport(n *sitter.Node) {
	line := int(n.StartPoint().Row) + 1

	if n.Type() == "import_statement" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				e.file.Imports = append(e.file.Imports, &types.Import{
					Source: e.text(c), Type: types.ImportNamespace, Line: line,
					IsExternal: !strings.HasPrefix(e.text(c), "."),
				})
			case "aliased_import":
				e.file.Imports = append(e.file.Imports, &types.Import{
					Source: e.text(childByField(c, "name")),
					Alias:  e.text(childByField(c, "alias")),
					Type:   types.ImportNamespace, Line: line,
					IsExternal: true,
				})
			}
		}
		return
	}

	// from X import a, b as c
	module := e.text(childByField(n, "module_name"))
	imp := &types.Import{
		Source: module, Type: types.ImportNamed, Line: line,
		IsExternal: !strings.HasPrefix(module, "."),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			if e.text(c) != module {
				imp.ImportedSymbols = append(imp.ImportedSymbols, e.text(c))
			}
		case "aliased_import":
			imp.ImportedSymbols = append(imp.ImportedSymbols, e.text(childByField(c, "name")))
		case "wildcard_import":
			imp.Type = types.ImportNamespace
		}
	}
	e.file.Imports = append(e.file.Imports, imp)
}

// pyDocstring returns the leading string literal of a body block.
func (e *extractor) pyDocstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	s := e.text(str)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func (e *extractor) pyBases(class *sitter.Node) []string {
	args := childByField(class, "superclasses")
	if args == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		switch c.Type() {
		case "identifier", "attribute":
			out = append(out, e.text(c))
		case "keyword_argument":
			// metaclass=... is not inheritance
		}
	}
	return out
}

func pyVisibility(name string) string {
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	return "public"
}

func insideClass(scope []string) bool {
	return len(scope) > 0
}
