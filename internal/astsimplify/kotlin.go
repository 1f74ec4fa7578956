package astsimplify

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/internal/ast"
)

// simplifyKotlin maps a Kotlin tree-sitter tree to the uniform tree.
// Kotlin's grammar shares a lot of shape with Java's (classes, functions,
// properties) but uses distinct node type names, so this is kept as its
// own switch rather than delegating to simplifyJava.
func simplifyKotlin(n *sitter.Node, source []byte) *ast.Node {
	switch n.Type() {
	case "source_file":
		node := &ast.Node{Kind: ast.KindProgram, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyKotlin(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	case "class_declaration", "object_declaration":
		node := &ast.Node{
			Kind:     ast.KindClassDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		if node.Name == "" {
			node.Name = kotlinTypeName(n, source)
		}
		node.Metadata["modifiers"] = kotlinModifiers(n, source)
		if delegates := findChildOfType(n, "delegation_specifiers"); delegates != nil {
			node.Metadata["base_classes"] = kotlinDelegationTargets(delegates, source)
		}
		if isKotlinInterfaceLike(n, source) {
			node.Kind = ast.KindInterfaceDeclaration
		}
		body := findChildOfType(n, "class_body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyKotlin(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "enum_class_body":
		node := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyKotlin(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	case "function_declaration":
		node := &ast.Node{
			Kind:     ast.KindFunctionDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		if node.Name == "" {
			node.Name = kotlinTypeName(n, source)
		}
		node.Metadata["modifiers"] = kotlinModifiers(n, source)
		if params := findChildOfType(n, "function_value_parameters"); params != nil {
			node.Metadata["parameters"] = kotlinParameters(params, source)
		}
		if ret := n.ChildByFieldName("type"); ret != nil {
			node.Metadata["return_type"] = string(source[ret.StartByte():ret.EndByte()])
		}
		body := findChildOfType(n, "function_body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyKotlin(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "property_declaration":
		node := &ast.Node{Kind: ast.KindFieldDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Metadata["modifiers"] = kotlinModifiers(n, source)
		if decl := findChildOfType(n, "variable_declaration"); decl != nil {
			node.Name = fieldText(decl, "name", source)
			if typ := decl.ChildByFieldName("type"); typ != nil {
				node.Metadata["type"] = string(source[typ.StartByte():typ.EndByte()])
			}
		}
		return node

	case "import_header":
		node := &ast.Node{Kind: ast.KindImportDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Metadata["module"] = string(source[n.StartByte():n.EndByte()])
		return node

	case "call_expression":
		node := &ast.Node{Kind: ast.KindCallExpression, Range: rangeOf(n), Metadata: map[string]any{}}
		fn := n.ChildByFieldName("function") // named differently across grammar revisions
		if fn == nil && n.NamedChildCount() > 0 {
			fn = n.NamedChild(0)
		}
		if fn != nil {
			node.Name = kotlinCallTargetName(fn, source)
			node.Metadata["qualifier"] = kotlinCallQualifier(fn, source)
		}
		return node

	case "annotation":
		return &ast.Node{Kind: ast.KindAnnotation, Name: string(source[n.StartByte():n.EndByte()]), Range: rangeOf(n)}

	case "comment", "line_comment", "multiline_comment":
		return &ast.Node{Kind: ast.KindComment, Range: rangeOf(n)}

	case "statements", "function_body":
		node := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyKotlin(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	default:
		return unknown(n, source, simplifyKotlin)
	}
}

func kotlinTypeName(n *sitter.Node, source []byte) string {
	for _, c := range namedChildren(n) {
		if c.Type() == "type_identifier" || c.Type() == "simple_identifier" {
			return string(source[c.StartByte():c.EndByte()])
		}
	}
	return ""
}

func isKotlinInterfaceLike(n *sitter.Node, source []byte) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "interface" {
			return true
		}
	}
	return false
}

func kotlinModifiers(n *sitter.Node, source []byte) []string {
	var out []string
	if mods := findChildOfType(n, "modifiers"); mods != nil {
		for _, c := range namedChildren(mods) {
			if c.Type() == "annotation" {
				continue
			}
			out = append(out, string(source[c.StartByte():c.EndByte()]))
		}
	}
	return out
}

func kotlinDelegationTargets(n *sitter.Node, source []byte) []string {
	var out []string
	for _, c := range namedChildren(n) {
		out = append(out, string(source[c.StartByte():c.EndByte()]))
	}
	return out
}

func kotlinParameters(params *sitter.Node, source []byte) []map[string]string {
	var out []map[string]string
	for _, c := range namedChildren(params) {
		if c.Type() != "parameter" {
			continue
		}
		entry := map[string]string{}
		if nameNode := c.ChildByFieldName("name"); nameNode != nil {
			entry["name"] = string(source[nameNode.StartByte():nameNode.EndByte()])
		}
		if typ := c.ChildByFieldName("type"); typ != nil {
			entry["type"] = string(source[typ.StartByte():typ.EndByte()])
		}
		out = append(out, entry)
	}
	return out
}

func kotlinCallTargetName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "simple_identifier":
		return string(source[fn.StartByte():fn.EndByte()])
	case "navigation_expression":
		if n := int(fn.NamedChildCount()); n > 0 {
			last := fn.NamedChild(n - 1)
			return string(source[last.StartByte():last.EndByte()])
		}
	}
	return string(source[fn.StartByte():fn.EndByte()])
}

func kotlinCallQualifier(fn *sitter.Node, source []byte) string {
	if fn.Type() != "navigation_expression" || fn.NamedChildCount() < 2 {
		return ""
	}
	first := fn.NamedChild(0)
	return string(source[first.StartByte():first.EndByte()])
}
