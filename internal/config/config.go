// Package config collects the enumerated pipeline options from spec.md §6
// into a single immutable record passed to every stage's constructor.
// Loading this from disk/flags/env is an external, out-of-scope concern
// (spec.md §1) — this package only defines the shape and its defaults,
// plus an optional HCL decoder for convenience.
package config

import (
	"runtime"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// ParserConfig controls the Scanner, Detector and Parser Pool.
type ParserConfig struct {
	MaxFileBytes       int64    `hcl:"max_file_bytes,optional"`
	ParseTimeoutMS     int      `hcl:"parse_timeout_ms,optional"`
	ParallelWorkers    int      `hcl:"parallel_workers,optional"`
	IncludeGlobs       []string `hcl:"include_globs,optional"`
	ExcludeGlobs       []string `hcl:"exclude_globs,optional"`
	IncrementalEnabled bool     `hcl:"incremental_enabled,optional"`
}

// CASConfig controls the content-addressed store.
type CASConfig struct {
	StoragePath      string `hcl:"storage_path,optional"`
	Compression      string `hcl:"compression,optional"` // "none" | "zstd"
	CompressionLevel int    `hcl:"compression_level,optional"`
	MaxBodyBytes     int64  `hcl:"max_body_bytes,optional"`
}

// MerkleConfig controls the Merkle builder and Version Manager.
type MerkleConfig struct {
	Fanout            int  `hcl:"fanout,optional"`
	RetentionDays     int  `hcl:"retention_days,optional"`
	MinVersionsToKeep int  `hcl:"min_versions_to_keep,optional"`
	GCEnabled         bool `hcl:"gc_enabled,optional"`
}

// WatcherConfig controls the Watcher Debouncer.
type WatcherConfig struct {
	DebounceMS     int      `hcl:"debounce_ms,optional"`
	BatchThreshold int      `hcl:"batch_threshold,optional"`
	IgnoreGlobs    []string `hcl:"ignore_globs,optional"`
}

// GraphConfig controls the Graph Writer's external store connection.
type GraphConfig struct {
	URL             string `hcl:"url,optional"`
	GraphName       string `hcl:"graph_name,optional"`
	BatchSize       int    `hcl:"batch_size,optional"`
	RetryMax        int    `hcl:"retry_max,optional"`
	RetryBackoffMS  int    `hcl:"retry_backoff_ms,optional"`
}

// Config is the immutable root configuration record.
type Config struct {
	Parser  ParserConfig  `hcl:"parser,block"`
	CAS     CASConfig     `hcl:"cas,block"`
	Merkle  MerkleConfig  `hcl:"merkle,block"`
	Watcher WatcherConfig `hcl:"watcher,block"`
	Graph   GraphConfig   `hcl:"graph,block"`
}

// Default returns the documented defaults for every option.
func Default() Config {
	return Config{
		Parser: ParserConfig{
			MaxFileBytes:       4 << 20, // 4 MiB
			ParseTimeoutMS:     2000,
			ParallelWorkers:    runtime.NumCPU(),
			IncludeGlobs:       nil,
			ExcludeGlobs:       []string{".git/**", "node_modules/**", "dist/**", "build/**"},
			IncrementalEnabled: true,
		},
		CAS: CASConfig{
			StoragePath:      ".ccg/cas",
			Compression:      "zstd",
			CompressionLevel: 3,
			MaxBodyBytes:     64 << 20, // 64 MiB
		},
		Merkle: MerkleConfig{
			Fanout:            16,
			RetentionDays:     30,
			MinVersionsToKeep: 10,
			GCEnabled:         true,
		},
		Watcher: WatcherConfig{
			DebounceMS:     200,
			BatchThreshold: 50,
			IgnoreGlobs:    []string{".git/**"},
		},
		Graph: GraphConfig{
			URL:            "",
			GraphName:      "code_context",
			BatchSize:      500,
			RetryMax:       5,
			RetryBackoffMS: 200,
		},
	}
}

// LoadHCL decodes an HCL document into a Config seeded with defaults:
// attributes a block omits keep their default values, but every block
// (parser, cas, merkle, watcher, graph) must be present, since a missing
// block is a decode error. It is a convenience decoder only; actual
// config file discovery and flag/env overlay are an external concern.
func LoadHCL(path string) (Config, error) {
	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
