// Package extract implements the Entity/Relation Extractor (spec.md
// §4.5): a two-pass walk over a uniform ast.Node tree that emits graph
// entities in pass 1 (building a symbol table as it goes) and graph
// relations in pass 2, resolving what it can against that table and
// marking the rest unresolved for a later cross-file pass.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/ast"
	"github.com/Rubentxu/code-context-graph/internal/casstore"
)

// Result is everything one file's extraction produces.
type Result struct {
	Entities  []api.Entity
	Relations []api.Relation
}

// symbol records where a declared name lives, for best-effort
// same-file resolution of calls/extends/implements.
type symbol struct {
	entityID string
	kind     api.EntityKind
}

// container tracks the enclosing entity stack while walking, so Contains
// edges and qualified names can be derived without a second traversal.
type container struct {
	id         string
	kind       api.EntityKind
	qualified  string // dotted qualified name path, e.g. "Greeter.hello"
}

// Extract runs both passes over root, the simplified tree for the file
// at filePath (already hashed into CAS as fileHash). source is the same
// file's raw bytes, used to derive each non-file entity's BodyHash from
// its own byte range so the Change Planner can detect metadata-only
// edits that leave an entity's line range untouched (spec.md §4.6).
func Extract(filePath string, lang api.Language, fileHash api.Hash, source []byte, root *ast.Node) (Result, error) {
	if root == nil {
		return Result{}, fmt.Errorf("extract: nil root for %s", filePath)
	}

	fileID := entityID(filePath, api.EntityFile, "", 0)
	res := Result{}
	symtab := map[string]symbol{}

	res.Entities = append(res.Entities, api.Entity{
		ID:       fileID,
		Kind:     api.EntityFile,
		Name:     filePath,
		Language: lang,
		FilePath: filePath,
		Range:    toLineRange(root.Range),
		BodyHash: fileHash,
	})
	symtab[filePath] = symbol{entityID: fileID, kind: api.EntityFile}

	p1 := &pass1{filePath: filePath, lang: lang, source: source, symtab: symtab}
	p1.walk(root, container{id: fileID, kind: api.EntityFile, qualified: ""})
	res.Entities = append(res.Entities, p1.entities...)
	res.Relations = append(res.Relations, p1.contains...)

	p2 := &pass2{filePath: filePath, symtab: symtab}
	p2.walk(root, container{id: fileID, kind: api.EntityFile, qualified: ""})
	res.Relations = append(res.Relations, p2.relations...)

	return res, nil
}

// --- Pass 1: entities + Contains edges ---------------------------------

type pass1 struct {
	filePath string
	lang     api.Language
	source   []byte
	symtab   map[string]symbol
	entities []api.Entity
	contains []api.Relation
}

// bodyHash hashes the source bytes r spans, for an entity's change
// detection key. Returns the zero Hash if r falls outside source (a
// simplifier bug, not something worth failing extraction over).
func (p *pass1) bodyHash(r ast.Range) api.Hash {
	if r.StartByte > r.EndByte || int(r.EndByte) > len(p.source) {
		return api.Hash{}
	}
	return casstore.HashBytes(p.source[r.StartByte:r.EndByte])
}

func (p *pass1) walk(n *ast.Node, parent container) {
	for _, c := range n.Children {
		kind, ok := entityKindFor(c.Kind)
		if !ok {
			// Not a declaration node itself (Block, Comment, CallExpression,
			// etc.) — still recurse, so nested declarations are found, but
			// the enclosing container does not change.
			p.walk(c, parent)
			continue
		}

		qualified := c.Name
		if parent.qualified != "" {
			qualified = parent.qualified + "." + c.Name
		}
		arity := len(parameterNames(c))
		id := entityID(p.filePath, kind, qualified, arity)
		entity := api.Entity{
			ID:       id,
			Kind:     kind,
			Name:     c.Name,
			Language: p.lang,
			FilePath: p.filePath,
			Range:    toLineRange(c.Range),
			Metadata: stringMetadata(c.Metadata),
			BodyHash: p.bodyHash(c.Range),
		}
		p.entities = append(p.entities, entity)
		p.contains = append(p.contains, api.Relation{
			FromID:   parent.id,
			Kind:     api.RelContains,
			ToID:     id,
			Site:     fmt.Sprintf("%d:%d", c.Range.StartLine, c.Range.StartCol),
			Resolved: true,
		})

		if qualified != "" {
			p.symtab[qualified] = symbol{entityID: id, kind: kind}
		}
		// Also index by bare name so same-file unqualified resolution
		// (a call to a sibling top-level function) succeeds even when the
		// caller doesn't know the qualified path.
		if _, exists := p.symtab[c.Name]; !exists {
			p.symtab[c.Name] = symbol{entityID: id, kind: kind}
		}

		for i, paramName := range parameterNames(c) {
			paramID := entityID(p.filePath, api.EntityParameter, qualified+"."+paramName, i)
			p.entities = append(p.entities, api.Entity{
				ID:       paramID,
				Kind:     api.EntityParameter,
				Name:     paramName,
				Language: p.lang,
				FilePath: p.filePath,
				Range:    toLineRange(c.Range),
			})
			p.contains = append(p.contains, api.Relation{
				FromID:   id,
				Kind:     api.RelContains,
				ToID:     paramID,
				Site:     strconv.Itoa(i),
				Resolved: true,
			})
		}

		p.walk(c, container{id: id, kind: kind, qualified: qualified})
	}
}

// --- Pass 2: relations ---------------------------------------------------

type pass2 struct {
	filePath  string
	symtab    map[string]symbol
	relations []api.Relation
}

func (p *pass2) walk(n *ast.Node, enclosing container) {
	for _, c := range n.Children {
		next := enclosing
		if kind, ok := entityKindFor(c.Kind); ok {
			qualified := c.Name
			if enclosing.qualified != "" {
				qualified = enclosing.qualified + "." + c.Name
			}
			arity := len(parameterNames(c))
			id := entityID(p.filePath, kind, qualified, arity)
			next = container{id: id, kind: kind, qualified: qualified}

			p.emitDeclRelations(c, next)
		}

		if c.Kind == ast.KindCallExpression {
			p.emitCall(c, enclosing)
		}

		p.walk(c, next)
	}
}

func (p *pass2) emitDeclRelations(c *ast.Node, self container) {
	for _, name := range c.MetaStrings("base_classes") {
		p.emitRef(self.id, api.RelExtends, name, c)
	}
	for _, name := range c.MetaStrings("implements") {
		p.emitRef(self.id, api.RelImplements, name, c)
	}
	for _, name := range c.MetaStrings("decorators") {
		p.emitRef(self.id, api.RelDecorates, name, c)
	}
	if module := c.MetaString("module"); module != "" && c.Kind == ast.KindImportDeclaration {
		p.emitRef(self.id, api.RelImports, module, c)
	}
	if ret := c.MetaString("return_type"); ret != "" {
		p.emitRef(self.id, api.RelReturns, ret, c)
	}
}

func (p *pass2) emitCall(call *ast.Node, enclosing container) {
	site := fmt.Sprintf("%d:%d", call.Range.StartLine, call.Range.StartCol)
	target := call.Name
	if q := call.MetaString("qualifier"); q != "" {
		target = q + "." + call.Name
	}

	sym, resolved := p.symtab[target]
	if !resolved {
		sym, resolved = p.symtab[call.Name]
	}

	rel := api.Relation{
		FromID:   enclosing.id,
		Kind:     api.RelCalls,
		Site:     site,
		Resolved: resolved,
		Attributes: map[string]string{
			"callee_name": target,
		},
	}
	if resolved {
		rel.ToID = sym.entityID
		if sym.kind == api.EntityClass {
			// Calling a class name invokes its constructor.
			rel.Kind = api.RelInstantiates
		}
	} else {
		rel.ToID = unresolvedID(target)
	}
	p.relations = append(p.relations, rel)
}

func (p *pass2) emitRef(fromID string, kind api.RelationKind, target string, site *ast.Node) {
	s := fmt.Sprintf("%d:%d", site.Range.StartLine, site.Range.StartCol)
	sym, resolved := p.symtab[target]
	rel := api.Relation{FromID: fromID, Kind: kind, Site: s, Resolved: resolved}
	if resolved {
		rel.ToID = sym.entityID
	} else {
		rel.ToID = unresolvedID(target)
	}
	p.relations = append(p.relations, rel)
}

// --- helpers -------------------------------------------------------------

func entityKindFor(k ast.Kind) (api.EntityKind, bool) {
	switch k {
	case ast.KindClassDeclaration:
		return api.EntityClass, true
	case ast.KindInterfaceDeclaration:
		return api.EntityInterface, true
	case ast.KindEnumDeclaration:
		return api.EntityEnum, true
	case ast.KindFunctionDeclaration:
		return api.EntityFunction, true
	case ast.KindMethodDeclaration:
		return api.EntityMethod, true
	case ast.KindVariableDeclaration:
		return api.EntityVariable, true
	case ast.KindFieldDeclaration:
		return api.EntityField, true
	case ast.KindImportDeclaration:
		return api.EntityImport, true
	default:
		return "", false
	}
}

// entityID derives a deterministic id from (file path, kind, qualified
// name, arity) per spec.md §3 — overload disambiguation uses parameter
// arity since these languages permit same-name/different-arity members.
func entityID(filePath string, kind api.EntityKind, qualified string, arity int) string {
	if qualified == "" {
		return filePath + "#" + string(kind)
	}
	return fmt.Sprintf("%s#%s#%s/%d", filePath, kind, qualified, arity)
}

// unresolvedID gives an unresolved reference target a stable synthetic id
// so downstream edges are still well-formed tuples even before a later
// cross-file pass resolves the real target.
func unresolvedID(name string) string {
	return "unresolved#" + name
}

// parameterNames extracts ordered parameter names from the "parameters"
// metadata key the per-language simplifiers populate with
// []map[string]string{"name": ..., "type": ...} entries.
func parameterNames(n *ast.Node) []string {
	raw, ok := n.Metadata["parameters"].([]map[string]string)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, p["name"])
	}
	return out
}

func toLineRange(r ast.Range) api.LineRange {
	return api.LineRange{
		StartLine: r.StartLine,
		StartCol:  r.StartCol,
		EndLine:   r.EndLine,
		EndCol:    r.EndCol,
		StartByte: r.StartByte,
		EndByte:   r.EndByte,
	}
}

// stringMetadata flattens ast.Node's map[string]any into the
// map[string]string shape api.Entity carries across the wire: non-empty
// strings are kept as-is, bools are stringified, and non-empty []string
// values are joined with commas. Values of any other type (for example
// the []map[string]string "parameters" list) are not carried over.
func stringMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			if val != "" {
				out[k] = val
			}
		case bool:
			out[k] = strconv.FormatBool(val)
		case []string:
			if len(val) > 0 {
				out[k] = strings.Join(val, ",")
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
