// Package scanner implements the Source Scanner (spec.md §4.4): it
// enumerates files under a root, applies exclude-then-include globs,
// and yields (path, bytes) lazily. Symlinks are not followed by
// default; oversized files are skipped rather than read.
package scanner

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/bmatcuk/doublestar/v4"
)

// File is one enumerated file: its root-relative slash path and body.
type File struct {
	Path    string
	Bytes   []byte
	Size    int64
	ModTime int64 // unix nanoseconds, UTC
}

// SkippedOversize is emitted for files exceeding MaxFileBytes (spec.md §6).
type SkippedOversize struct {
	Path string
	Size int64
}

// Config controls one scan.
type Config struct {
	IncludeGlobs []string
	ExcludeGlobs []string
	MaxFileBytes int64
}

// Scanner enumerates files under a root filesystem.
type Scanner struct {
	fs  billy.Filesystem
	cfg Config
}

// New constructs a Scanner rooted at root.
func New(root string, cfg Config) *Scanner {
	return &Scanner{fs: osfs.New(root), cfg: cfg}
}

// Scan walks the tree and invokes onFile for every included file and
// onSkipped for every file skipped for being oversized. Directories
// starting with '.' are always skipped, matching the convention the
// ingestion engine this pipeline descends from uses for .git/.mache/etc.
func (s *Scanner) Scan(onFile func(File) error, onSkipped func(SkippedOversize)) error {
	return s.walk("", onFile, onSkipped)
}

func (s *Scanner) walk(dir string, onFile func(File) error, onSkipped func(SkippedOversize)) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scanner: read dir %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		rel := path.Join(dir, e.Name())

		if e.IsDir() {
			if len(e.Name()) > 0 && e.Name()[0] == '.' {
				continue
			}
			if s.excluded(rel + "/") {
				continue
			}
			if err := s.walk(rel, onFile, onSkipped); err != nil {
				return err
			}
			continue
		}

		if e.Mode()&os.ModeSymlink != 0 {
			continue // symlinks not followed by default (spec.md §4.4)
		}

		if s.excluded(rel) || !s.included(rel) {
			continue
		}

		if s.cfg.MaxFileBytes > 0 && e.Size() > s.cfg.MaxFileBytes {
			onSkipped(SkippedOversize{Path: rel, Size: e.Size()})
			continue
		}

		body, err := readFile(s.fs, rel)
		if err != nil {
			return fmt.Errorf("scanner: read %q: %w", rel, err)
		}

		if err := onFile(File{Path: rel, Bytes: body, Size: e.Size(), ModTime: e.ModTime().UTC().UnixNano()}); err != nil {
			return err
		}
	}
	return nil
}

// excluded applies ExcludeGlobs; this runs before included, matching
// spec.md §4.4's "exclude then include" ordering.
func (s *Scanner) excluded(rel string) bool {
	for _, g := range s.cfg.ExcludeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func (s *Scanner) included(rel string) bool {
	if len(s.cfg.IncludeGlobs) == 0 {
		return true
	}
	for _, g := range s.cfg.IncludeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func readFile(fs billy.Filesystem, rel string) ([]byte, error) {
	f, err := fs.Open(rel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
