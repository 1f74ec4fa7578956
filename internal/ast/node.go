// Package ast defines the uniform AST node shape every language's
// concrete tree-sitter tree is simplified into (spec.md §3).
package ast

import "fmt"

// Kind is the closed set of uniform node-type tags. Any concrete
// tree-sitter node kind not recognized by a language's simplifier maps
// to Unknown, carrying the raw kind string in RawKind.
type Kind string

const (
	KindProgram             Kind = "Program"
	KindModule              Kind = "Module"
	KindClassDeclaration    Kind = "ClassDeclaration"
	KindInterfaceDeclaration Kind = "InterfaceDeclaration"
	KindEnumDeclaration     Kind = "EnumDeclaration"
	KindFunctionDeclaration Kind = "FunctionDeclaration"
	KindMethodDeclaration   Kind = "MethodDeclaration"
	KindVariableDeclaration Kind = "VariableDeclaration"
	KindFieldDeclaration    Kind = "FieldDeclaration"
	KindParameterDeclaration Kind = "ParameterDeclaration"
	KindImportDeclaration   Kind = "ImportDeclaration"
	KindCallExpression      Kind = "CallExpression"
	KindDecorator           Kind = "Decorator"
	KindAnnotation          Kind = "Annotation"
	KindComment             Kind = "Comment"
	KindBlock               Kind = "Block"
	KindUnknown             Kind = "Unknown"
)

// Range is a source range: 1-indexed line/column plus byte offsets.
type Range struct {
	StartLine, StartCol, EndLine, EndCol int
	StartByte, EndByte                   uint32
}

// Contains reports whether r fully contains o.
func (r Range) Contains(o Range) bool {
	return r.StartByte <= o.StartByte && o.EndByte <= r.EndByte
}

// WellFormed reports start <= end, the invariant spec.md §3 requires
// of every node's range.
func (r Range) WellFormed() bool {
	if r.StartByte > r.EndByte {
		return false
	}
	if r.StartLine > r.EndLine {
		return false
	}
	if r.StartLine == r.EndLine && r.StartCol > r.EndCol {
		return false
	}
	return true
}

// Node is one uniform AST node.
type Node struct {
	Kind     Kind
	RawKind  string // populated only when Kind == KindUnknown
	Name     string
	Range    Range
	Metadata map[string]any
	Children []*Node
}

// Validate checks the well-formedness invariants spec.md §3 requires:
// the node's own range is well-formed and every child's range lies
// within the parent's.
func (n *Node) Validate() error {
	if !n.Range.WellFormed() {
		return fmt.Errorf("ast: node %s has malformed range %+v", n.Kind, n.Range)
	}
	for _, c := range n.Children {
		if !n.Range.Contains(c.Range) {
			return fmt.Errorf("ast: child %s range %+v escapes parent %s range %+v", c.Kind, c.Range, n.Kind, n.Range)
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits n and every descendant pre-order.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// MetaString returns a string-valued metadata entry, or "" if absent
// or not a string.
func (n *Node) MetaString(key string) string {
	v, ok := n.Metadata[key].(string)
	if !ok {
		return ""
	}
	return v
}

// MetaStrings returns a []string-valued metadata entry, or nil.
func (n *Node) MetaStrings(key string) []string {
	v, ok := n.Metadata[key].([]string)
	if !ok {
		return nil
	}
	return v
}

// MetaBool returns a bool-valued metadata entry, defaulting to false.
func (n *Node) MetaBool(key string) bool {
	v, _ := n.Metadata[key].(bool)
	return v
}
