// Package cmd implements the command-line surface over the indexing
// pipeline: index, version history, and garbage collection, the same
// thin-cobra-over-a-library shape the teacher's own CLI uses.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/Rubentxu/code-context-graph/internal/config"
	"github.com/Rubentxu/code-context-graph/internal/graphwriter"
	"github.com/Rubentxu/code-context-graph/internal/version"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	sourcePath string
	configPath string
	stateDir   string
)

var rootCmd = &cobra.Command{
	Use:     "ccg",
	Short:   "Code Context Graph: incremental semantic indexer",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sourcePath, "source", "s", ".", "Path to the source tree to index")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an HCL config file (defaults built in if omitted)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for CAS blobs and the version/graph index (default: <source>/.ccg)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective Config from --config, falling back
// to documented defaults when no file is given.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadHCL(configPath)
}

// resolveStateDir returns the directory holding CAS blobs and index
// databases, defaulting to <source>/.ccg so a bare `ccg index` just
// works against the current directory.
func resolveStateDir() string {
	if stateDir != "" {
		return stateDir
	}
	return filepath.Join(sourcePath, ".ccg")
}

// openStore opens the CAS, Version Manager and graph store backing one
// CLI invocation. Callers must close all three when done.
func openStore(cfg config.Config) (*casstore.Store, *version.Manager, *graphwriter.SQLiteStore, error) {
	dir := resolveStateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}

	storagePath := cfg.CAS.StoragePath
	if storagePath == "" || !filepath.IsAbs(storagePath) {
		storagePath = filepath.Join(dir, "cas")
	}
	cas, err := casstore.Open(casstore.Config{
		StoragePath:      storagePath,
		Compression:      cfg.CAS.Compression,
		CompressionLevel: cfg.CAS.CompressionLevel,
		MaxBodyBytes:     cfg.CAS.MaxBodyBytes,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open content store: %w", err)
	}

	vers, err := version.Open(filepath.Join(dir, "versions.db"), cas, version.Retention{
		RetentionDays:     cfg.Merkle.RetentionDays,
		MinVersionsToKeep: cfg.Merkle.MinVersionsToKeep,
	})
	if err != nil {
		_ = cas.Close()
		return nil, nil, nil, fmt.Errorf("open version manager: %w", err)
	}

	graphStore, err := graphwriter.Open(filepath.Join(dir, "graph.db"))
	if err != nil {
		_ = vers.Close()
		_ = cas.Close()
		return nil, nil, nil, fmt.Errorf("open graph store: %w", err)
	}

	return cas, vers, graphStore, nil
}
