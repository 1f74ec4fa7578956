package astsimplify

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/internal/ast"
)

// simplifyJavaScript maps a JavaScript/TSX-flavored tree-sitter tree to
// the uniform tree. The same function handles JSX-bearing sources since
// the teacher's grammar set treats them as one language surface.
func simplifyJavaScript(n *sitter.Node, source []byte) *ast.Node {
	switch n.Type() {
	case "program":
		node := &ast.Node{Kind: ast.KindProgram, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyJavaScript(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	case "class_declaration", "class":
		node := &ast.Node{
			Kind:     ast.KindClassDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		if heritage := findChildOfType(n, "class_heritage"); heritage != nil {
			node.Metadata["base_classes"] = jsExtendsTargets(heritage, source)
		}
		body := n.ChildByFieldName("body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyJavaScript(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "function_declaration", "function", "generator_function_declaration", "generator_function":
		return jsFunctionNode(n, source, ast.KindFunctionDeclaration, fieldText(n, "name", source))

	case "method_definition":
		name := fieldText(n, "name", source)
		node := jsFunctionNode(n, source, ast.KindMethodDeclaration, name)
		return node

	case "arrow_function":
		return jsFunctionNode(n, source, ast.KindFunctionDeclaration, "")

	case "lexical_declaration", "variable_declaration":
		// A single statement can declare several bindings (const a = 1,
		// b = 2); wrap them so every declarator still gets its own
		// VariableDeclaration node in the uniform tree.
		wrapper := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if c.Type() != "variable_declarator" {
				continue
			}
			nameNode := c.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			decl := &ast.Node{
				Kind:  ast.KindVariableDeclaration,
				Name:  string(source[nameNode.StartByte():nameNode.EndByte()]),
				Range: rangeOf(c),
			}
			if value := c.ChildByFieldName("value"); value != nil && isFunctionLike(value) {
				if fn := simplifyJavaScript(value, source); fn != nil {
					decl.Children = append(decl.Children, fn)
				}
			}
			wrapper.Children = append(wrapper.Children, decl)
		}
		if len(wrapper.Children) == 1 {
			return wrapper.Children[0]
		}
		if len(wrapper.Children) == 0 {
			return nil
		}
		return wrapper

	case "import_statement":
		node := &ast.Node{Kind: ast.KindImportDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		if src := n.ChildByFieldName("source"); src != nil {
			node.Metadata["module"] = stripQuotes(string(source[src.StartByte():src.EndByte()]))
		}
		return node

	case "call_expression":
		node := &ast.Node{Kind: ast.KindCallExpression, Range: rangeOf(n), Metadata: map[string]any{}}
		fn := n.ChildByFieldName("function")
		if fn != nil {
			node.Name = jsCallTargetName(fn, source)
			node.Metadata["qualifier"] = jsCallQualifier(fn, source)
		}
		return node

	case "comment":
		return &ast.Node{Kind: ast.KindComment, Range: rangeOf(n)}

	case "statement_block":
		node := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyJavaScript(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	default:
		return unknown(n, source, simplifyJavaScript)
	}
}

func jsFunctionNode(n *sitter.Node, source []byte, kind ast.Kind, name string) *ast.Node {
	node := &ast.Node{Kind: kind, Name: name, Range: rangeOf(n), Metadata: map[string]any{}}
	node.Metadata["is_async"] = hasChildOfType(n, "async")
	if params := n.ChildByFieldName("parameters"); params != nil {
		node.Metadata["parameters"] = jsParameters(params, source)
	}
	body := n.ChildByFieldName("body")
	if body != nil && body.Type() == "statement_block" {
		for _, c := range namedChildren(body) {
			if child := simplifyJavaScript(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
	}
	return node
}

func isFunctionLike(n *sitter.Node) bool {
	switch n.Type() {
	case "function", "function_declaration", "arrow_function", "generator_function":
		return true
	default:
		return false
	}
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	return findChildOfType(n, typ) != nil
}

func findChildOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return n.Child(i)
		}
	}
	return nil
}

func jsParameters(params *sitter.Node, source []byte) []map[string]string {
	var out []map[string]string
	for _, c := range namedChildren(params) {
		switch c.Type() {
		case "identifier":
			out = append(out, map[string]string{"name": string(source[c.StartByte():c.EndByte()])})
		case "assignment_pattern":
			if left := c.ChildByFieldName("left"); left != nil {
				out = append(out, map[string]string{"name": string(source[left.StartByte():left.EndByte()])})
			}
		case "rest_pattern":
			out = append(out, map[string]string{"name": string(source[c.StartByte():c.EndByte()]), "rest": "true"})
		case "object_pattern", "array_pattern":
			out = append(out, map[string]string{"name": string(source[c.StartByte():c.EndByte()])})
		}
	}
	return out
}

func jsExtendsTargets(heritage *sitter.Node, source []byte) []string {
	var out []string
	for _, c := range namedChildren(heritage) {
		out = append(out, string(source[c.StartByte():c.EndByte()]))
	}
	return out
}

func jsCallTargetName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "identifier":
		return string(source[fn.StartByte():fn.EndByte()])
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return string(source[prop.StartByte():prop.EndByte()])
		}
	}
	return string(source[fn.StartByte():fn.EndByte()])
}

func jsCallQualifier(fn *sitter.Node, source []byte) string {
	if fn.Type() != "member_expression" {
		return ""
	}
	if obj := fn.ChildByFieldName("object"); obj != nil {
		return string(source[obj.StartByte():obj.EndByte()])
	}
	return ""
}

func stripQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
