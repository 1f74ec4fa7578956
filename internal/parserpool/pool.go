// Package parserpool implements the Parser Pool (spec.md §4.4): a
// bounded pool of reusable tree-sitter parsers per language, with a
// wall-clock deadline per parse and partial-AST-on-error tolerance.
package parserpool

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/Rubentxu/code-context-graph/api"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
)

func grammarFor(lang api.Language) *sitter.Language {
	switch lang {
	case api.LangPython:
		return python.GetLanguage()
	case api.LangJavaScript:
		return javascript.GetLanguage()
	case api.LangJava:
		return java.GetLanguage()
	case api.LangKotlin:
		return kotlin.GetLanguage()
	default:
		return nil
	}
}

// Diagnostic is a structured parse-error record, adapted from the
// teacher's writeback/validate.go HasError/findFirstError tree walk —
// here used read-only, for reporting rather than gating a write.
type Diagnostic struct {
	FilePath string
	Line     int
	Column   int
	Message  string
}

// Result is the outcome of one parse.
type Result struct {
	Tree        *sitter.Tree
	Diagnostics []Diagnostic
	TimedOut    bool
}

// Pool is a bounded, per-language pool of reusable *sitter.Parser
// instances. Parsers are not individually thread-safe (spec.md §5), so
// acquisition is mediated by a buffered channel acting as a semaphore,
// the same shape as a worker-pool job queue.
type Pool struct {
	timeout time.Duration
	langs   map[api.Language]chan *sitter.Parser
}

// New builds a pool sized min(CPU_count, parallelWorkers) parsers per
// supported language, each with the given per-parse wall-clock timeout.
func New(parallelWorkers int, timeout time.Duration) *Pool {
	size := runtime.NumCPU()
	if parallelWorkers > 0 && parallelWorkers < size {
		size = parallelWorkers
	}
	if size < 1 {
		size = 1
	}

	p := &Pool{timeout: timeout, langs: make(map[api.Language]chan *sitter.Parser)}
	for _, lang := range []api.Language{api.LangPython, api.LangJavaScript, api.LangJava, api.LangKotlin} {
		grammar := grammarFor(lang)
		ch := make(chan *sitter.Parser, size)
		for i := 0; i < size; i++ {
			parser := sitter.NewParser()
			parser.SetLanguage(grammar)
			ch <- parser
		}
		p.langs[lang] = ch
	}
	return p
}

// Parse parses content for lang, reusing oldTree's subtrees when given
// (incremental parsing, spec.md §4.4). A deadline expiry aborts the
// parse and sets Result.TimedOut rather than returning an error — a
// timeout is not fatal.
func (p *Pool) Parse(ctx context.Context, filePath string, lang api.Language, content []byte, oldTree *sitter.Tree) (Result, error) {
	ch, ok := p.langs[lang]
	if !ok {
		return Result{}, fmt.Errorf("parserpool: unsupported language %q", lang)
	}

	parser := <-ch
	defer func() { ch <- parser }()

	deadline := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		deadline, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tree, err := parser.ParseCtx(deadline, oldTree, content)
	if deadline.Err() == context.DeadlineExceeded {
		return Result{TimedOut: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("parserpool: parse %q: %w", filePath, err)
	}

	diags := diagnose(filePath, tree.RootNode())
	return Result{Tree: tree, Diagnostics: diags}, nil
}

// diagnose walks the tree collecting every ERROR/MISSING node, adapted
// from the teacher's HasError/findFirstError validation walk — there it
// gates a write, here it only annotates the parse result.
func diagnose(filePath string, n *sitter.Node) []Diagnostic {
	var diags []Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.IsError() || n.IsMissing() {
			pt := n.StartPoint()
			diags = append(diags, Diagnostic{
				FilePath: filePath,
				Line:     int(pt.Row) + 1,
				Column:   int(pt.Column) + 1,
				Message:  fmt.Sprintf("syntax error near %q", n.Type()),
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
	return diags
}

// Close is a no-op shutdown hook: pooled parsers are not closed
// explicitly and are left to the garbage collector.
func (p *Pool) Close() {}
