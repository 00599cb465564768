package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/controlVector/cv-git/pkg/types"
)

// walkJS covers javascript, jsx, typescript, and tsx. The typescript
// grammar is a superset, so TS-only node types simply never match for
// plain javascript inputs.
func (e *extractor) walkJS(n *sitter.Node, scope []string) {
	switch n.Type() {
	case "program", "statement_block", "class_body":
		e.walkChildren(n, scope)

	case "import_statement":
		e.jsImport(n)

	case "export_statement":
		e.jsExport(n, scope)

	case "function_declaration", "generator_function_declaration":
		name := e.text(childByField(n, "name"))
		e.addSymbol(n, scope, name, types.SymbolKindFunction,
			e.signature(n, childByField(n, "body")),
			e.precedingComment(n), "public", hasChildToken(n, "async"))

	case "class_declaration":
		name := e.text(childByField(n, "name"))
		sym := e.addSymbol(n, scope, name, types.SymbolKindClass,
			e.signature(n, childByField(n, "body")),
			e.precedingComment(n), "public", false)
		if sym != nil {
			sym.Inherits = e.jsHeritage(n)
		}
		e.walk(childByField(n, "body"), append(append([]string{}, scope...), name))

	case "method_definition":
		name := e.text(childByField(n, "name"))
		if name == "" {
			return
		}
		vis := "public"
		if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "_") {
			vis = "private"
		}
		sym := e.addSymbol(n, scope, name, types.SymbolKindMethod,
			e.signature(n, childByField(n, "body")),
			e.precedingComment(n), vis, hasChildToken(n, "async"))
		if sym != nil {
			sym.IsStatic = hasChildToken(n, "static")
		}

	case "lexical_declaration", "variable_declaration":
		e.jsVariables(n, scope)

	case "interface_declaration":
		name := e.text(childByField(n, "name"))
		sym := e.addSymbol(n, scope, name, types.SymbolKindInterface,
			firstLineOf(e.text(n)), e.precedingComment(n), "public", false)
		if sym != nil {
			sym.Inherits = e.jsHeritage(n)
		}

	case "type_alias_declaration":
		name := e.text(childByField(n, "name"))
		e.addSymbol(n, scope, name, types.SymbolKindType,
			firstLineOf(e.text(n)), e.precedingComment(n), "public", false)

	case "enum_declaration":
		name := e.text(childByField(n, "name"))
		e.addSymbol(n, scope, name, types.SymbolKindEnum,
			firstLineOf(e.text(n)), e.precedingComment(n), "public", false)

	default:
		e.walkChildren(n, scope)
	}
}

// jsVariables extracts const/let declarations whose value is a
// function or arrow function, which is the dominant JS style.
func (e *extractor) jsVariables(decl *sitter.Node, scope []string) {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		name := e.text(childByField(d, "name"))
		value := childByField(d, "value")
		if value == nil {
			continue
		}
		switch value.Type() {
		case "arrow_function", "function_expression", "function", "generator_function":
			e.addSymbol(d, scope, name, types.SymbolKindFunction,
				e.signature(d, childByField(value, "body")),
				e.precedingComment(decl), "public", hasChildToken(value, "async"))
		default:
			// Top-level const bindings are graph-worthy; locals are not.
			if len(scope) == 0 && decl.Parent() != nil &&
				(decl.Parent().Type() == "program" || decl.Parent().Type() == "export_statement") {
				kind := types.SymbolKindVariable
				if hasChildToken(decl, "const") {
					kind = types.SymbolKindConstant
				}
				e.addSymbol(d, scope, name, kind,
					firstLineOf(e.text(d)), "", "public", false)
			}
		}
	}
}

func (e *extractor) jsImport(n *sitter.Node) {
	line := int(n.StartPoint().Row) + 1
	source := strings.Trim(e.text(childByField(n, "source")), "\"'`")
	external := !strings.HasPrefix(source, ".") && !strings.HasPrefix(source, "/")

	clause := findChildByType(n, "import_clause")
	if clause == nil {
		e.file.Imports = append(e.file.Imports, &types.Import{
			Source: source, Type: types.ImportSideEffect, Line: line, IsExternal: external,
		})
		return
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			e.file.Imports = append(e.file.Imports, &types.Import{
				Source: source, ImportedSymbols: []string{e.text(c)},
				Type: types.ImportDefault, Line: line, IsExternal: external,
			})
		case "namespace_import":
			alias := ""
			if id := findChildByType(c, "identifier"); id != nil {
				alias = e.text(id)
			}
			e.file.Imports = append(e.file.Imports, &types.Import{
				Source: source, Alias: alias,
				Type: types.ImportNamespace, Line: line, IsExternal: external,
			})
		case "named_imports":
			imp := &types.Import{Source: source, Type: types.ImportNamed, Line: line, IsExternal: external}
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec.Type() == "import_specifier" {
					imp.ImportedSymbols = append(imp.ImportedSymbols, e.text(childByField(spec, "name")))
				}
			}
			e.file.Imports = append(e.file.Imports, imp)
		}
	}
}

func (e *extractor) jsExport(n *sitter.Node, scope []string) {
	line := int(n.StartPoint().Row) + 1
	isDefault := hasChildToken(n, "default")

	// Re-exports carry a source clause; record as side-effect import too.
	if src := childByField(n, "source"); src != nil {
		source := strings.Trim(e.text(src), "\"'`")
		e.file.Imports = append(e.file.Imports, &types.Import{
			Source: source, Type: types.ImportSideEffect, Line: line,
			IsExternal: !strings.HasPrefix(source, "."),
		})
	}

	before := len(e.file.Symbols)
	if decl := childByField(n, "declaration"); decl != nil {
		e.walkJS(decl, scope)
		// Everything the declaration produced is exported.
		for _, sym := range e.file.Symbols[before:] {
			e.file.Exports = append(e.file.Exports, &types.Export{
				Name: sym.Name, IsDefault: isDefault, Line: sym.StartLine,
			})
		}
		return
	}

	if clause := findChildByType(n, "export_clause"); clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			spec := clause.NamedChild(i)
			if spec.Type() == "export_specifier" {
				e.file.Exports = append(e.file.Exports, &types.Export{
					Name: e.text(childByField(spec, "name")), Line: line,
				})
			}
		}
		return
	}

	if isDefault {
		e.file.Exports = append(e.file.Exports, &types.Export{
			Name: "default", IsDefault: true, Line: line,
		})
	}
}

// jsHeritage extracts extends/implements targets for classes and
// interfaces in both JS and TS grammars.
func (e *extractor) jsHeritage(n *sitter.Node) []string {
	var out []string
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		switch c.Type() {
		case "class_heritage", "extends_clause", "implements_clause", "extends_type_clause":
			for i := 0; i < int(c.NamedChildCount()); i++ {
				t := c.NamedChild(i)
				switch t.Type() {
				case "identifier", "member_expression", "type_identifier",
					"nested_type_identifier", "generic_type":
					name := e.text(t)
					if idx := strings.IndexByte(name, '<'); idx > 0 {
						name = name[:idx]
					}
					out = append(out, name)
				}
			}
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "class_body" && c.Type() != "interface_body" && c.Type() != "object_type" {
			visit(c)
		}
	}
	return out
}
