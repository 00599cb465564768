package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/controlVector/cv-git/pkg/types"
)

// conditionalAncestors are node types that make a call site conditional:
// branches, loops, exception handlers, and short-circuit expressions.
var conditionalAncestors = map[string]bool{
	"if_statement":            true,
	"elif_clause":             true,
	"else_clause":             true,
	"for_statement":           true,
	"for_in_statement":        true,
	"while_statement":         true,
	"do_statement":            true,
	"switch_statement":        true,
	"expression_switch_statement": true,
	"type_switch_statement":   true,
	"select_statement":        true,
	"try_statement":           true,
	"except_clause":           true,
	"catch_clause":            true,
	"conditional_expression":  true,
	"ternary_expression":      true,
}

// extractCalls finds every call expression inside a symbol body and
// resolves its callee name syntactically. Member calls keep only the
// final attribute (`obj.save()` -> `save`) so graph linking can match
// by symbol name.
func (e *extractor) extractCalls(root *sitter.Node) []types.CallSite {
	var out []types.CallSite
	seen := map[string]int{} // key -> index into out

	var visit func(n *sitter.Node, conditional bool)
	visit = func(n *sitter.Node, conditional bool) {
		if conditionalAncestors[n.Type()] && n != root {
			conditional = true
		}

		if n.Type() == "call_expression" || n.Type() == "call" {
			if callee := e.calleeName(n); callee != "" {
				key := callee + ":" + boolKey(conditional)
				if idx, ok := seen[key]; ok {
					out[idx].Count++
				} else {
					seen[key] = len(out)
					out = append(out, types.CallSite{
						CalleeName:    callee,
						Line:          int(n.StartPoint().Row) + 1,
						IsConditional: conditional,
						Count:         1,
					})
				}
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i), conditional)
		}
	}
	visit(root, false)
	return out
}

func (e *extractor) calleeName(call *sitter.Node) string {
	fn := childByField(call, "function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier", "field_identifier", "type_identifier":
		return e.text(fn)
	case "selector_expression":
		// Go: pkg.Func or recv.Method
		return e.text(childByField(fn, "field"))
	case "member_expression":
		// JS: obj.method
		return e.text(childByField(fn, "property"))
	case "attribute":
		// Python: obj.method
		return e.text(childByField(fn, "attribute"))
	case "parenthesized_expression", "generic_function":
		if inner := fn.NamedChild(0); inner != nil {
			return e.calleeNameOf(inner)
		}
	}
	return ""
}

func (e *extractor) calleeNameOf(n *sitter.Node) string {
	switch n.Type() {
	case "identifier", "field_identifier":
		return e.text(n)
	case "selector_expression":
		return e.text(childByField(n, "field"))
	case "member_expression":
		return e.text(childByField(n, "property"))
	case "attribute":
		return e.text(childByField(n, "attribute"))
	}
	name := e.text(n)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	if len(name) > 0 && isIdentifier(name) {
		return name
	}
	return ""
}

func isIdentifier(s string) bool {
	for i, r := range s {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return s != ""
}

func boolKey(b bool) string {
	if b {
		return "c"
	}
	return "u"
}
