package astsimplify

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/internal/ast"
)

// simplifyPython maps a Python tree-sitter tree to the uniform tree.
func simplifyPython(n *sitter.Node, source []byte) *ast.Node {
	switch n.Type() {
	case "module":
		node := &ast.Node{Kind: ast.KindModule, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyPython(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	case "class_definition":
		node := &ast.Node{
			Kind:     ast.KindClassDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		if super := n.ChildByFieldName("superclasses"); super != nil {
			node.Metadata["base_classes"] = argListIdentifiers(super, source)
		}
		body := n.ChildByFieldName("body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyPython(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "function_definition":
		node := &ast.Node{
			Kind:     ast.KindFunctionDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		node.Metadata["is_async"] = isAsyncFunction(n)
		if params := n.ChildByFieldName("parameters"); params != nil {
			node.Metadata["parameters"] = pythonParameters(params, source)
		}
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			node.Metadata["return_type"] = string(source[ret.StartByte():ret.EndByte()])
		}
		body := n.ChildByFieldName("body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyPython(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "decorated_definition":
		var decorators []string
		var inner *ast.Node
		for _, c := range namedChildren(n) {
			if c.Type() == "decorator" {
				decorators = append(decorators, decoratorName(c, source))
				continue
			}
			inner = simplifyPython(c, source)
		}
		if inner == nil {
			return nil
		}
		if inner.Metadata == nil {
			inner.Metadata = map[string]any{}
		}
		inner.Metadata["decorators"] = decorators
		inner.Range = rangeOf(n) // extend range to cover the decorator lines
		return inner

	case "import_statement", "import_from_statement":
		node := &ast.Node{Kind: ast.KindImportDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Metadata["module"] = importModuleName(n, source)
		return node

	case "assignment":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return unknown(n, source, simplifyPython)
		}
		return &ast.Node{
			Kind:  ast.KindVariableDeclaration,
			Name:  string(source[left.StartByte():left.EndByte()]),
			Range: rangeOf(n),
		}

	case "call":
		node := &ast.Node{Kind: ast.KindCallExpression, Range: rangeOf(n), Metadata: map[string]any{}}
		fn := n.ChildByFieldName("function")
		if fn != nil {
			node.Name = callTargetName(fn, source)
			node.Metadata["qualifier"] = callQualifier(fn, source)
		}
		return node

	case "comment":
		return &ast.Node{Kind: ast.KindComment, Range: rangeOf(n)}

	case "block":
		node := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyPython(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	default:
		return unknown(n, source, simplifyPython)
	}
}

func isAsyncFunction(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

func decoratorName(n *sitter.Node, source []byte) string {
	text := string(source[n.StartByte():n.EndByte()])
	return strings.TrimPrefix(strings.TrimSpace(text), "@")
}

func pythonParameters(params *sitter.Node, source []byte) []map[string]string {
	var out []map[string]string
	for _, c := range namedChildren(params) {
		switch c.Type() {
		case "identifier":
			out = append(out, map[string]string{"name": string(source[c.StartByte():c.EndByte()])})
		case "typed_parameter":
			name := ""
			typ := ""
			for _, gc := range namedChildren(c) {
				if gc.Type() == "identifier" {
					name = string(source[gc.StartByte():gc.EndByte()])
				} else if gc.Type() == "type" {
					typ = string(source[gc.StartByte():gc.EndByte()])
				}
			}
			out = append(out, map[string]string{"name": name, "type": typ})
		case "default_parameter", "typed_default_parameter":
			if nameNode := c.ChildByFieldName("name"); nameNode != nil {
				out = append(out, map[string]string{"name": string(source[nameNode.StartByte():nameNode.EndByte()])})
			}
		}
	}
	return out
}

func argListIdentifiers(n *sitter.Node, source []byte) []string {
	var out []string
	for _, c := range namedChildren(n) {
		if c.Type() == "identifier" || c.Type() == "attribute" {
			out = append(out, string(source[c.StartByte():c.EndByte()]))
		}
	}
	return out
}

func importModuleName(n *sitter.Node, source []byte) string {
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "dotted_name", "relative_import", "identifier":
			return string(source[c.StartByte():c.EndByte()])
		}
	}
	return string(source[n.StartByte():n.EndByte()])
}

func callTargetName(fn *sitter.Node, source []byte) string {
	switch fn.Type() {
	case "identifier":
		return string(source[fn.StartByte():fn.EndByte()])
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			return string(source[attr.StartByte():attr.EndByte()])
		}
	}
	return string(source[fn.StartByte():fn.EndByte()])
}

func callQualifier(fn *sitter.Node, source []byte) string {
	if fn.Type() != "attribute" {
		return ""
	}
	if obj := fn.ChildByFieldName("object"); obj != nil {
		return string(source[obj.StartByte():obj.EndByte()])
	}
	return ""
}
