// Package pipeline wires the Scanner, Language Detector, Parser Pool,
// AST Simplifier, Entity/Relation Extractor, Change Planner and Graph
// Writer into one incremental indexing run (spec.md §2), the same
// reader/worker-pool/collector channel shape the teacher's
// ingestSQLiteStreaming uses for its own bulk ingest.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/astsimplify"
	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/Rubentxu/code-context-graph/internal/changeplan"
	"github.com/Rubentxu/code-context-graph/internal/config"
	"github.com/Rubentxu/code-context-graph/internal/extract"
	"github.com/Rubentxu/code-context-graph/internal/graphwriter"
	"github.com/Rubentxu/code-context-graph/internal/langdetect"
	"github.com/Rubentxu/code-context-graph/internal/merkle"
	"github.com/Rubentxu/code-context-graph/internal/parserpool"
	"github.com/Rubentxu/code-context-graph/internal/scanner"
	"github.com/Rubentxu/code-context-graph/internal/version"
)

// EventKind identifies one entry in the pipeline's progress stream.
type EventKind string

const (
	EventParsed                  EventKind = "Parsed"
	EventParseFailed             EventKind = "ParseFailed"
	EventSkippedOversize         EventKind = "SkippedOversize"
	EventSkippedInvalidPath      EventKind = "SkippedInvalidPath"
	EventCASWritten              EventKind = "CASWritten"
	EventPlanPrepared            EventKind = "PlanPrepared"
	EventVersionApplied          EventKind = "VersionApplied"
	EventVersionPartiallyApplied EventKind = "VersionPartiallyApplied"
)

// Event is one typed progress notification a Run emits on its event
// channel, so a caller (CLI, watcher-driven daemon) can report progress
// without the pipeline itself knowing how it's displayed.
type Event struct {
	Kind EventKind
	Path string
	Err  error
	Plan *api.Plan
}

// Pipeline holds every long-lived component one indexing root needs.
type Pipeline struct {
	root    string
	cfg     config.Config
	cas     *casstore.Store
	versMgr *version.Manager
	parsers *parserpool.Pool
	store   graphwriter.GraphStoreClient
	writer  *graphwriter.Writer

	mu            sync.Mutex
	lastByPath    map[string]changeplan.FileExtraction // in-memory snapshot of the last applied version's extraction, keyed by file path
	lastVersionID string
}

// New builds a Pipeline over root using cfg, backed by cas for content
// storage, versMgr for Merkle version history, and store as the target
// graph store.
func New(root string, cfg config.Config, cas *casstore.Store, versMgr *version.Manager, store graphwriter.GraphStoreClient) *Pipeline {
	timeout := time.Duration(cfg.Parser.ParseTimeoutMS) * time.Millisecond
	return &Pipeline{
		root:    root,
		cfg:     cfg,
		cas:     cas,
		versMgr: versMgr,
		parsers: parserpool.New(cfg.Parser.ParallelWorkers, timeout),
		store:   store,
		writer: graphwriter.New(store, graphwriter.Config{
			BatchSize:      cfg.Graph.BatchSize,
			RetryMax:       cfg.Graph.RetryMax,
			RetryBackoffMs: cfg.Graph.RetryBackoffMS,
		}),
		lastByPath: make(map[string]changeplan.FileExtraction),
	}
}

// fileOutcome is one scanned+processed file's contribution to the run,
// produced by a worker and consumed by the single collector goroutine —
// the same job/result channel shape as the teacher's recordJob/recordResult.
type fileOutcome struct {
	path       string
	leaf       merkle.FileRecord
	hasLeaf    bool
	extracted  changeplan.FileExtraction
	hasExtract bool
	events     []Event
}

// Run scans root, indexes every file through the whole pipeline, builds
// the new Merkle tree, diffs it against the previous run, computes a
// change plan, and applies it to the graph store. It returns a channel
// of progress Events; the channel is closed once the run completes
// (successfully or not). The resulting Version is only known once the
// run finishes — see RunSync for the common synchronous case.
func (p *Pipeline) Run(ctx context.Context, author, message string) (<-chan Event, error) {
	events := make(chan Event, 256)

	sc := scanner.New(p.root, scanner.Config{
		MaxFileBytes: p.cfg.Parser.MaxFileBytes,
		IncludeGlobs: p.cfg.Parser.IncludeGlobs,
		ExcludeGlobs: p.cfg.Parser.ExcludeGlobs,
	})

	numWorkers := runtime.NumCPU()
	if p.cfg.Parser.ParallelWorkers > 0 && p.cfg.Parser.ParallelWorkers < numWorkers {
		numWorkers = p.cfg.Parser.ParallelWorkers
	}
	jobs := make(chan scanner.File, numWorkers*2)
	results := make(chan fileOutcome, numWorkers*2)

	var workers sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for f := range jobs {
				results <- p.processFile(ctx, f)
			}
		}()
	}

	var scanErr error
	go func() {
		scanErr = sc.Scan(
			func(f scanner.File) error {
				jobs <- f
				return nil
			},
			func(s scanner.SkippedOversize) {
				events <- Event{Kind: EventSkippedOversize, Path: s.Path}
			},
		)
		close(jobs)
		workers.Wait()
		close(results)
	}()

	go func() {
		defer close(events)

		newByPath := make(map[string]changeplan.FileExtraction)
		var leaves []merkle.FileRecord

		for res := range results {
			for _, ev := range res.events {
				events <- ev
			}
			if res.hasLeaf {
				leaves = append(leaves, res.leaf)
			}
			if res.hasExtract {
				newByPath[res.path] = res.extracted
			}
		}

		if scanErr != nil {
			events <- Event{Kind: EventParseFailed, Err: fmt.Errorf("pipeline: scan %s: %w", p.root, scanErr)}
			return
		}

		v, diff, err := p.finish(leaves, author, message)
		if err != nil {
			events <- Event{Kind: EventParseFailed, Err: err}
			return
		}

		plan := changeplan.Build(p.lastVersionID, v.ID, diff, p.snapshot(), newByPath)
		events <- Event{Kind: EventPlanPrepared, Plan: &plan}

		applyResult, err := p.writer.Apply(ctx, plan)
		if err != nil {
			events <- Event{Kind: EventVersionPartiallyApplied, Err: err}
			return
		}
		if applyResult.Applied {
			p.commit(v.ID, newByPath)
			events <- Event{Kind: EventVersionApplied}
		} else {
			events <- Event{Kind: EventVersionPartiallyApplied}
		}
	}()

	return events, nil
}

// RunSync drives Run to completion and returns the final Version,
// blocking until every event has been consumed. This is what the CLI
// uses; a long-lived watch-driven daemon should use Run directly so it
// can report progress incrementally.
func (p *Pipeline) RunSync(ctx context.Context, author, message string) (api.Version, error) {
	events, err := p.Run(ctx, author, message)
	if err != nil {
		return api.Version{}, err
	}
	var lastErr error
	var applied bool
	for ev := range events {
		if ev.Err != nil {
			lastErr = ev.Err
		}
		if ev.Kind == EventVersionApplied {
			applied = true
		}
	}
	if lastErr != nil {
		return api.Version{}, lastErr
	}
	if !applied {
		return api.Version{}, fmt.Errorf("pipeline: run did not reach a fully applied version")
	}
	return p.versMgr.Get(p.lastVersionID)
}

func (p *Pipeline) processFile(ctx context.Context, f scanner.File) fileOutcome {
	// Enumeration-time rejection (spec.md §4.2): non-UTF8 path bytes, and
	// path separators/Unicode forms that would hash two equivalent paths
	// to different leaves, never reach the Merkle tree.
	path, err := merkle.NormalizePath(f.Path)
	if err != nil {
		return fileOutcome{path: f.Path, events: []Event{{Kind: EventSkippedInvalidPath, Path: f.Path, Err: err}}}
	}

	hash, err := p.cas.Put(f.Bytes)
	if err != nil {
		return fileOutcome{path: path, events: []Event{{Kind: EventParseFailed, Path: path, Err: err}}}
	}
	outcome := fileOutcome{
		path: path,
		leaf: merkle.FileRecord{
			Path:        path,
			ContentHash: hash,
			Size:        f.Size,
			ModTime:     time.Unix(0, f.ModTime).UTC(),
		},
		hasLeaf: true,
		events:  []Event{{Kind: EventCASWritten, Path: path}},
	}

	lang := langdetect.Detect(path, f.Bytes)
	if lang == api.LangUnknown {
		return outcome
	}

	parsed, err := p.parsers.Parse(ctx, path, lang, f.Bytes, nil)
	if err != nil {
		outcome.events = append(outcome.events, Event{Kind: EventParseFailed, Path: path, Err: err})
		return outcome
	}
	if parsed.Tree == nil {
		// Wall-clock deadline expired: the file is still stored in CAS,
		// but there is no partial AST to extract from this round. The
		// event carries no Err, so the timeout does not fail the run.
		outcome.events = append(outcome.events, Event{Kind: EventParseFailed, Path: path})
		return outcome
	}

	node, err := astsimplify.Simplify(lang, f.Bytes, parsed.Tree.RootNode())
	if err != nil {
		outcome.events = append(outcome.events, Event{Kind: EventParseFailed, Path: path, Err: err})
		return outcome
	}

	res, err := extract.Extract(path, lang, hash, f.Bytes, node)
	if err != nil {
		outcome.events = append(outcome.events, Event{Kind: EventParseFailed, Path: path, Err: err})
		return outcome
	}

	outcome.extracted = changeplan.FromExtraction(path, res)
	outcome.hasExtract = true
	outcome.events = append(outcome.events, Event{Kind: EventParsed, Path: path})
	return outcome
}

// finish builds the new Merkle tree over every collected leaf, diffs it
// against the previous version's root, and records a new Version.
func (p *Pipeline) finish(leaves []merkle.FileRecord, author, message string) (api.Version, merkle.DiffResult, error) {
	newRoot, _, err := merkle.Build(p.cas, leaves, p.cfg.Merkle.Fanout)
	if err != nil {
		return api.Version{}, merkle.DiffResult{}, fmt.Errorf("pipeline: build merkle tree: %w", err)
	}

	oldRoot := merkle.EmptyTreeHash
	if p.lastVersionID != "" {
		old, err := p.versMgr.Get(p.lastVersionID)
		if err != nil {
			return api.Version{}, merkle.DiffResult{}, fmt.Errorf("pipeline: load previous version: %w", err)
		}
		oldRoot = old.RootHash
	}

	diff, err := merkle.Diff(p.cas, oldRoot, newRoot)
	if err != nil {
		return api.Version{}, merkle.DiffResult{}, fmt.Errorf("pipeline: diff merkle roots: %w", err)
	}

	v, err := p.versMgr.Create(newRoot, p.lastVersionID, author, message)
	if err != nil {
		return api.Version{}, merkle.DiffResult{}, fmt.Errorf("pipeline: create version: %w", err)
	}
	return v, diff, nil
}

func (p *Pipeline) snapshot() map[string]changeplan.FileExtraction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]changeplan.FileExtraction, len(p.lastByPath))
	for k, v := range p.lastByPath {
		out[k] = v
	}
	return out
}

func (p *Pipeline) commit(versionID string, newByPath map[string]changeplan.FileExtraction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVersionID = versionID
	p.lastByPath = newByPath
}

// Close releases the pipeline's long-lived resources (parser pool). The
// CAS, Version Manager and graph store outlive a Pipeline and are
// closed by whoever constructed them.
func (p *Pipeline) Close() {
	p.parsers.Close()
}
