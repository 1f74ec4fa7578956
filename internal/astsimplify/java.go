package astsimplify

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/internal/ast"
)

// simplifyJava maps a Java tree-sitter tree to the uniform tree.
func simplifyJava(n *sitter.Node, source []byte) *ast.Node {
	switch n.Type() {
	case "program":
		node := &ast.Node{Kind: ast.KindProgram, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyJava(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	case "class_declaration":
		return javaTypeNode(n, source, ast.KindClassDeclaration)

	case "interface_declaration":
		return javaTypeNode(n, source, ast.KindInterfaceDeclaration)

	case "enum_declaration":
		return javaTypeNode(n, source, ast.KindEnumDeclaration)

	case "annotation_type_declaration":
		return javaTypeNode(n, source, ast.KindInterfaceDeclaration)

	case "method_declaration", "constructor_declaration":
		node := &ast.Node{
			Kind:     ast.KindMethodDeclaration,
			Name:     fieldText(n, "name", source),
			Range:    rangeOf(n),
			Metadata: map[string]any{},
		}
		node.Metadata["modifiers"] = javaModifiers(n, source)
		node.Metadata["annotations"] = javaAnnotationNames(n, source)
		if params := n.ChildByFieldName("parameters"); params != nil {
			node.Metadata["parameters"] = javaParameters(params, source)
		}
		if ret := n.ChildByFieldName("type"); ret != nil {
			node.Metadata["return_type"] = string(source[ret.StartByte():ret.EndByte()])
		}
		body := n.ChildByFieldName("body")
		if body != nil {
			for _, c := range namedChildren(body) {
				if child := simplifyJava(c, source); child != nil {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node

	case "field_declaration":
		node := &ast.Node{Kind: ast.KindFieldDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Metadata["modifiers"] = javaModifiers(n, source)
		if typ := n.ChildByFieldName("type"); typ != nil {
			node.Metadata["type"] = string(source[typ.StartByte():typ.EndByte()])
		}
		for _, c := range namedChildren(n) {
			if c.Type() == "variable_declarator" {
				if nameNode := c.ChildByFieldName("name"); nameNode != nil {
					node.Name = string(source[nameNode.StartByte():nameNode.EndByte()])
				}
				break
			}
		}
		return node

	case "import_declaration":
		node := &ast.Node{Kind: ast.KindImportDeclaration, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Metadata["module"] = string(source[n.StartByte():n.EndByte()])
		return node

	case "method_invocation":
		node := &ast.Node{Kind: ast.KindCallExpression, Range: rangeOf(n), Metadata: map[string]any{}}
		node.Name = fieldText(n, "name", source)
		if obj := n.ChildByFieldName("object"); obj != nil {
			node.Metadata["qualifier"] = string(source[obj.StartByte():obj.EndByte()])
		}
		return node

	case "annotation", "marker_annotation":
		return &ast.Node{Kind: ast.KindAnnotation, Name: fieldText(n, "name", source), Range: rangeOf(n)}

	case "line_comment", "block_comment":
		return &ast.Node{Kind: ast.KindComment, Range: rangeOf(n)}

	case "block", "class_body", "interface_body", "enum_body":
		node := &ast.Node{Kind: ast.KindBlock, Range: rangeOf(n)}
		for _, c := range namedChildren(n) {
			if child := simplifyJava(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node

	default:
		return unknown(n, source, simplifyJava)
	}
}

func javaTypeNode(n *sitter.Node, source []byte, kind ast.Kind) *ast.Node {
	node := &ast.Node{
		Kind:     kind,
		Name:     fieldText(n, "name", source),
		Range:    rangeOf(n),
		Metadata: map[string]any{},
	}
	node.Metadata["modifiers"] = javaModifiers(n, source)
	node.Metadata["annotations"] = javaAnnotationNames(n, source)
	if super := n.ChildByFieldName("superclass"); super != nil {
		node.Metadata["base_classes"] = []string{string(source[super.StartByte():super.EndByte()])}
	}
	if iface := n.ChildByFieldName("interfaces"); iface != nil {
		node.Metadata["implements"] = javaTypeListNames(iface, source)
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		for _, c := range namedChildren(body) {
			if child := simplifyJava(c, source); child != nil {
				node.Children = append(node.Children, child)
			}
		}
	}
	return node
}

func javaModifiers(n *sitter.Node, source []byte) []string {
	var out []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() != "modifiers" {
			continue
		}
		// Keyword modifiers (public, static, final, ...) are anonymous
		// tokens in the grammar, so every child is visited, not only the
		// named ones.
		for j := 0; j < int(c.ChildCount()); j++ {
			gc := c.Child(j)
			if gc.Type() == "marker_annotation" || gc.Type() == "annotation" {
				continue
			}
			out = append(out, string(source[gc.StartByte():gc.EndByte()]))
		}
	}
	return out
}

func javaAnnotationNames(n *sitter.Node, source []byte) []string {
	var out []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() != "modifiers" {
			continue
		}
		for _, gc := range namedChildren(c) {
			if gc.Type() == "marker_annotation" || gc.Type() == "annotation" {
				out = append(out, fieldText(gc, "name", source))
			}
		}
	}
	return out
}

func javaParameters(params *sitter.Node, source []byte) []map[string]string {
	var out []map[string]string
	for _, c := range namedChildren(params) {
		if c.Type() != "formal_parameter" && c.Type() != "spread_parameter" {
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

func javaTypeListNames(n *sitter.Node, source []byte) []string {
	var out []string
	for _, c := range namedChildren(n) {
		out = append(out, string(source[c.StartByte():c.EndByte()]))
	}
	return out
}
