// Package astsimplify maps each supported language's concrete
// tree-sitter tree into the uniform ast.Node tree of spec.md §3
// (spec.md §4.5). The mapping is total: any concrete node kind a
// language simplifier does not recognize becomes ast.KindUnknown with
// its raw kind preserved.
package astsimplify

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/internal/ast"
)

func rangeOf(n *sitter.Node) ast.Range {
	start, end := n.StartPoint(), n.EndPoint()
	return ast.Range{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
	}
}

func fieldText(n *sitter.Node, field string, source []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return string(source[c.StartByte():c.EndByte()])
}

// namedChildren returns every named (non-anonymous, non-comment-token)
// child of n.
func namedChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// unknown wraps n as ast.KindUnknown, still recursively simplifying its
// named children with the same per-language simplifier so useful
// structure nested under an unrecognized node isn't silently dropped.
func unknown(n *sitter.Node, source []byte, simplifyChild func(*sitter.Node, []byte) *ast.Node) *ast.Node {
	node := &ast.Node{Kind: ast.KindUnknown, RawKind: n.Type(), Range: rangeOf(n)}
	for _, c := range namedChildren(n) {
		if child := simplifyChild(c, source); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// promoteMethods walks a simplified tree and retags any
// FunctionDeclaration that is a direct structural descendant of a
// ClassDeclaration/InterfaceDeclaration/EnumDeclaration body (with only
// Block/Unknown wrapper nodes in between) as MethodDeclaration, since
// tree-sitter grammars don't distinguish the two syntactically.
func promoteMethods(n *ast.Node, insideClass bool) {
	for _, c := range n.Children {
		switch c.Kind {
		case ast.KindClassDeclaration, ast.KindInterfaceDeclaration, ast.KindEnumDeclaration:
			promoteMethods(c, true)
		case ast.KindFunctionDeclaration:
			if insideClass {
				c.Kind = ast.KindMethodDeclaration
			}
			promoteMethods(c, false)
		default:
			promoteMethods(c, insideClass)
		}
	}
}
