package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestScanEnumeratesIncludedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":              "print(1)",
		"src/b.py":          "print(2)",
		".git/HEAD":         "ref: refs/heads/main",
		"node_modules/x.js": "ignored",
	})

	s := New(root, Config{ExcludeGlobs: []string{"node_modules/**"}})

	var got []string
	err := s.Scan(func(f File) error {
		got = append(got, f.Path)
		return nil
	}, func(SkippedOversize) {})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"a.py", "src/b.py"}, got)
}

func TestScanAppliesIncludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py": "print(1)",
		"b.js": "console.log(1)",
		"c.md": "# docs",
	})

	s := New(root, Config{IncludeGlobs: []string{"**/*.py", "**/*.js"}})

	var got []string
	err := s.Scan(func(f File) error { got = append(got, f.Path); return nil }, func(SkippedOversize) {})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.py", "b.js"}, got)
}

func TestScanSkipsOversizeFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"big.py": "0123456789"})

	s := New(root, Config{MaxFileBytes: 5})

	var skipped []SkippedOversize
	err := s.Scan(func(File) error { return nil }, func(s SkippedOversize) { skipped = append(skipped, s) })
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.Equal(t, "big.py", skipped[0].Path)
}

func TestScanEmptyRoot(t *testing.T) {
	root := t.TempDir()
	s := New(root, Config{})

	var got []string
	err := s.Scan(func(f File) error { got = append(got, f.Path); return nil }, func(SkippedOversize) {})
	require.NoError(t, err)
	require.Empty(t, got)
}
