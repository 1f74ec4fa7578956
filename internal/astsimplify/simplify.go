package astsimplify

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/ast"
)

// Simplify converts a parsed tree-sitter tree for a file of the given
// language into the uniform ast.Node tree, then runs the
// FunctionDeclaration-to-MethodDeclaration structural promotion pass
// common to every language.
func Simplify(lang api.Language, source []byte, root *sitter.Node) (*ast.Node, error) {
	var node *ast.Node
	switch lang {
	case api.LangPython:
		node = simplifyPython(root, source)
	case api.LangJavaScript:
		node = simplifyJavaScript(root, source)
	case api.LangJava:
		node = simplifyJava(root, source)
	case api.LangKotlin:
		node = simplifyKotlin(root, source)
	default:
		return nil, fmt.Errorf("astsimplify: unsupported language %q", lang)
	}
	if node == nil {
		return nil, fmt.Errorf("astsimplify: %s produced no root node", lang)
	}
	promoteMethods(node, false)
	return node, nil
}
