package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/ast"
	"github.com/Rubentxu/code-context-graph/internal/astsimplify"
	"github.com/Rubentxu/code-context-graph/internal/parserpool"
)

func simplify(t *testing.T, lang api.Language, source string) *ast.Node {
	t.Helper()
	pool := parserpool.New(1, 2*time.Second)
	parsed, err := pool.Parse(context.Background(), "file.py", lang, []byte(source), nil)
	require.NoError(t, err)
	node, err := astsimplify.Simplify(lang, []byte(source), parsed.Tree.RootNode())
	require.NoError(t, err)
	return node
}

func findEntity(entities []api.Entity, kind api.EntityKind, name string) *api.Entity {
	for i := range entities {
		if entities[i].Kind == kind && entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func TestExtractPythonClassAndCall(t *testing.T) {
	src := `
class Greeter:
    def hello(self, name):
        return name

def main():
    g = Greeter()
    hello("world")
`
	root := simplify(t, api.LangPython, src)
	res, err := Extract("greeter.py", api.LangPython, api.Hash{}, []byte(src), root)
	require.NoError(t, err)

	file := findEntity(res.Entities, api.EntityFile, "greeter.py")
	require.NotNil(t, file)

	class := findEntity(res.Entities, api.EntityClass, "Greeter")
	require.NotNil(t, class)

	method := findEntity(res.Entities, api.EntityMethod, "hello")
	require.NotNil(t, method)

	fn := findEntity(res.Entities, api.EntityFunction, "main")
	require.NotNil(t, fn)

	var containsFileToClass, containsClassToMethod bool
	for _, r := range res.Relations {
		if r.Kind == api.RelContains && r.FromID == file.ID && r.ToID == class.ID {
			containsFileToClass = true
		}
		if r.Kind == api.RelContains && r.FromID == class.ID && r.ToID == method.ID {
			containsClassToMethod = true
		}
	}
	require.True(t, containsFileToClass)
	require.True(t, containsClassToMethod)

	var sawResolvedOrInstantiate bool
	for _, r := range res.Relations {
		if (r.Kind == api.RelCalls || r.Kind == api.RelInstantiates) && r.FromID == fn.ID {
			sawResolvedOrInstantiate = true
		}
	}
	require.True(t, sawResolvedOrInstantiate)
}

func TestExtractDeterministicIDs(t *testing.T) {
	src := "def f(a, b):\n    return a\n"
	root1 := simplify(t, api.LangPython, src)
	root2 := simplify(t, api.LangPython, src)

	r1, err := Extract("a.py", api.LangPython, api.Hash{}, []byte(src), root1)
	require.NoError(t, err)
	r2, err := Extract("a.py", api.LangPython, api.Hash{}, []byte(src), root2)
	require.NoError(t, err)

	require.Equal(t, idsOf(r1.Entities), idsOf(r2.Entities))
}

func idsOf(entities []api.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}
