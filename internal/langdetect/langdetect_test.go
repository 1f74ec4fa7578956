package langdetect

import (
	"testing"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/stretchr/testify/require"
)

func TestDetectByExtension(t *testing.T) {
	cases := map[string]api.Language{
		"a.py":        api.LangPython,
		"a.pyi":       api.LangPython,
		"a.js":        api.LangJavaScript,
		"a.jsx":       api.LangJavaScript,
		"a.java":      api.LangJava,
		"a.kt":        api.LangKotlin,
		"a.kts":       api.LangKotlin,
		"a.unknownext": api.LangUnknown,
	}
	for path, want := range cases {
		require.Equal(t, want, Detect(path, nil), path)
	}
}

func TestDetectNeverGuessesBetweenJavaAndKotlinFromContent(t *testing.T) {
	body := []byte("public class Main { fun main() {} }")
	require.Equal(t, api.LangUnknown, Detect("no-extension", body))
}

func TestDetectByShebang(t *testing.T) {
	require.Equal(t, api.LangPython, Detect("script", []byte("#!/usr/bin/env python3\nprint(1)\n")))
	require.Equal(t, api.LangJavaScript, Detect("script", []byte("#!/usr/bin/env node\nconsole.log(1)\n")))
}

func TestDetectUnknownForNoExtensionNoShebang(t *testing.T) {
	require.Equal(t, api.LangUnknown, Detect("README", []byte("just text")))
}
