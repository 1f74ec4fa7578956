// Package langdetect implements the Language Detector (spec.md §4.4):
// extension first, shebang/content heuristics as fallback. Java vs
// Kotlin is never guessed from content — both use brace syntax, so
// extension always wins, per the spec's explicit rule.
package langdetect

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/Rubentxu/code-context-graph/api"
)

var extensions = map[string]api.Language{
	".py":  api.LangPython,
	".pyi": api.LangPython,
	".js":  api.LangJavaScript,
	".jsx": api.LangJavaScript,
	".mjs": api.LangJavaScript,
	".cjs": api.LangJavaScript,
	".java": api.LangJava,
	".kt":  api.LangKotlin,
	".kts": api.LangKotlin,
}

// Detect maps a (path, head-of-file) pair to a language tag. head may
// be nil or empty; it is only consulted when the extension is unknown.
func Detect(path string, head []byte) api.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensions[ext]; ok {
		return lang
	}
	return detectByContent(head)
}

// detectByContent applies shebang/content heuristics for extension-less
// files. It never distinguishes Java from Kotlin — neither has a
// shebang convention and both would otherwise look like generic
// brace-delimited code.
func detectByContent(head []byte) api.Language {
	if len(head) == 0 {
		return api.LangUnknown
	}
	first := firstLine(head)
	if bytes.HasPrefix(first, []byte("#!")) {
		switch {
		case bytes.Contains(first, []byte("python")):
			return api.LangPython
		case bytes.Contains(first, []byte("node")):
			return api.LangJavaScript
		}
	}
	return api.LangUnknown
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}
