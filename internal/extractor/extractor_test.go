package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"archdrift/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestdata(t *testing.T, r *Registry, name, asPath string) *ir.ParsedFile {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	p, err := r.ResolveFile(asPath, "")
	require.NoError(t, err)
	return p.ParseFile(asPath, content)
}

func functionsByName(m ir.ModuleNode) map[string]ir.FunctionNode {
	out := map[string]ir.FunctionNode{}
	for _, fn := range m.AllFunctions() {
		out[fn.Name] = fn
	}
	return out
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()

	byName, ok := r.Resolve("python")
	require.True(t, ok)
	upper, ok := r.Resolve("PY")
	require.True(t, ok)
	byFile, ok := r.Resolve("script.py")
	require.True(t, ok)
	dotted, ok := r.Resolve(".py")
	require.True(t, ok)

	assert.Same(t, byName, upper)
	assert.Same(t, byName, byFile)
	assert.Same(t, byName, dotted)

	for _, id := range []string{"unknownlang", "", "Makefile", "archive.", "notes.txt"} {
		p, ok := r.Resolve(id)
		assert.False(t, ok, id)
		assert.Nil(t, p, id)
	}

	tsx, ok := r.Resolve("App.TSX")
	require.True(t, ok)
	assert.Equal(t, "typescript", tsx.Language())

	golang, ok := r.Resolve("golang")
	require.True(t, ok)
	assert.Equal(t, "go", golang.Language())

	assert.Equal(t, []string{"go", "javascript", "python", "typescript"}, r.Languages())
}

func TestRegistry_ResolveFile(t *testing.T) {
	r := NewRegistry()

	p, err := r.ResolveFile("src/app.mjs", "")
	require.NoError(t, err)
	assert.Equal(t, "javascript", p.Language())

	p, err = r.ResolveFile("weird.txt", "python")
	require.NoError(t, err)
	assert.Equal(t, "python", p.Language())

	_, err = r.ResolveFile("README.md", "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Contains(t, err.Error(), "md")

	_, err = r.ResolveFile("a.py", "cobol")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	assert.True(t, r.Supported("pkg/x.go"))
	assert.False(t, r.Supported("pkg/x.rs"))
}

func TestPythonParser_ParseFile(t *testing.T) {
	f := parseTestdata(t, NewRegistry(), "sample.py", "pkg/service.py")
	require.Empty(t, f.Errors)

	m := f.Module
	assert.Equal(t, "pkg.service", m.Name)
	assert.Equal(t, "python", m.Language)

	t.Run("Line Accounting", func(t *testing.T) {
		assert.Equal(t, 8, m.BlankLines)
		assert.Equal(t, 23, m.LinesOfCode)
		assert.Equal(t, 1, m.CommentLines)
		assert.Equal(t, 31.0, f.Metrics[ir.MetricLinesTotal])
	})

	t.Run("Imports", func(t *testing.T) {
		require.Len(t, m.Imports, 3)
		assert.Equal(t, "os", m.Imports[0].ModuleName)
		assert.Equal(t, "json", m.Imports[1].ModuleName)
		assert.Equal(t, "j", m.Imports[1].Alias)
		assert.Equal(t, "pkg.util", m.Imports[2].ModuleName)
		assert.Equal(t, []string{"helper", "other"}, m.Imports[2].Names)
	})

	t.Run("Classes", func(t *testing.T) {
		require.Len(t, m.Classes, 2)
		assert.Equal(t, "Base", m.Classes[0].Name)
		assert.Empty(t, m.Classes[0].BaseClasses)

		svc := m.Classes[1]
		assert.Equal(t, "Service", svc.Name)
		assert.Equal(t, []string{"Base", "mixins.Loggable"}, svc.BaseClasses)
		require.Len(t, svc.Methods, 2)
		assert.Equal(t, "run", svc.Methods[0].Name)
		assert.Equal(t, "noop", svc.Methods[1].Name)
	})

	t.Run("Functions", func(t *testing.T) {
		fns := functionsByName(m)

		run := fns["run"]
		assert.Equal(t, 5, run.Complexity)
		assert.Equal(t, 2, run.NestingDepth)
		assert.Equal(t, []string{"helper", "os.path.join"}, run.Calls)

		assert.Equal(t, 1, fns["noop"].Complexity)

		require.Len(t, m.Functions, 1)
		fetch := m.Functions[0]
		assert.Equal(t, "fetch", fetch.Name)
		assert.True(t, fetch.IsAsync)
		assert.Equal(t, 3, fetch.Complexity)
		assert.Equal(t, 1, fetch.NestingDepth)
		assert.Equal(t, []string{"load"}, fetch.Calls)
	})
}

func TestScriptParser_ParseFile(t *testing.T) {
	f := parseTestdata(t, NewRegistry(), "sample.ts", "src/app/controller.ts")
	require.Empty(t, f.Errors)

	m := f.Module
	assert.Equal(t, "src/app/controller", m.Name)
	assert.Equal(t, "typescript", m.Language)
	assert.Equal(t, 5, m.BlankLines)
	assert.Equal(t, 37, m.LinesOfCode)
	assert.Equal(t, 3, m.CommentLines)

	t.Run("Imports", func(t *testing.T) {
		require.Len(t, m.Imports, 4)
		assert.Equal(t, "./router", m.Imports[0].ModuleName)
		assert.Equal(t, []string{"Router", "Request"}, m.Imports[0].Names)
		assert.Equal(t, "path", m.Imports[1].ModuleName)
		assert.Equal(t, "path", m.Imports[1].Alias)
		assert.Equal(t, "../lib/default", m.Imports[2].ModuleName)
		assert.Equal(t, "Default", m.Imports[2].Alias)
		assert.Equal(t, "fs", m.Imports[3].ModuleName)
		assert.Equal(t, "fs", m.Imports[3].Alias)
	})

	t.Run("Classes", func(t *testing.T) {
		require.Len(t, m.Classes, 1)
		c := m.Classes[0]
		assert.Equal(t, "Controller", c.Name)
		assert.Equal(t, []string{"BaseController", "Handler"}, c.BaseClasses)
		require.Len(t, c.Methods, 1)

		handle := c.Methods[0]
		assert.Equal(t, "handle", handle.Name)
		assert.Equal(t, 6, handle.Complexity)
		assert.Equal(t, 2, handle.NestingDepth)
		assert.Equal(t, []string{"this.render", "log"}, handle.Calls)
	})

	t.Run("Functions", func(t *testing.T) {
		require.Len(t, m.Functions, 3)
		fns := functionsByName(m)

		assert.Equal(t, 3, fns["route"].Complexity)
		assert.Equal(t, 1, fns["route"].NestingDepth)
		assert.Equal(t, 2, fns["score"].Complexity)

		build := fns["build"]
		assert.True(t, build.IsAsync)
		assert.Equal(t, 2, build.Complexity)
		assert.Equal(t, []string{"fetch", "console.error"}, build.Calls)
	})
}

func TestGoParser_ParseFile(t *testing.T) {
	r := NewRegistry(WithGoModulePath("example.com/demo"))
	f := parseTestdata(t, r, "sample.go", "internal/sample/sample.go")
	require.Empty(t, f.Errors)

	m := f.Module
	assert.Equal(t, "example.com/demo/internal/sample", m.Name)
	assert.Equal(t, 10, m.BlankLines)
	assert.Equal(t, 44, m.LinesOfCode)
	assert.Equal(t, 13, m.CommentLines)

	require.Len(t, m.Imports, 1)
	assert.Equal(t, "fmt", m.Imports[0].ModuleName)

	classes := map[string]ir.ClassNode{}
	for _, c := range m.Classes {
		classes[c.Name] = c
	}
	require.Len(t, classes, 3)
	assert.Empty(t, classes["Entity"].BaseClasses)
	assert.Equal(t, []string{"Entity"}, classes["Module"].BaseClasses)
	assert.Equal(t, []string{"fmt.Stringer"}, classes["Rule"].BaseClasses)

	require.Len(t, classes["Module"].Methods, 1)
	method := classes["Module"].Methods[0]
	assert.Equal(t, "Describe", method.Name)
	assert.Equal(t, []string{"fmt.Println", "make"}, method.Calls)

	require.Len(t, m.Functions, 2)
	assert.Equal(t, "Evaluate", m.Functions[0].Name)
	assert.Equal(t, []string{"Score"}, m.Functions[0].Calls)
	assert.Equal(t, 1, m.Functions[1].Complexity)
}

func TestGoParser_Complexity(t *testing.T) {
	src := []byte(`package p

func Decide(a, b int) int {
	if a > 0 && b > 0 {
		return 1
	} else if a < 0 {
		for i := 0; i < b; i++ {
			go func() {
				if i > 2 {
				}
			}()
		}
	}
	switch a {
	case 1:
		return 2
	case 2, 3:
		return 3
	default:
	}
	return 0
}

func (s *Store[T]) Get() {}
`)
	f := NewGoParser().ParseFile("p/decide.go", src)
	require.Empty(t, f.Errors)
	assert.Equal(t, "p", f.Module.Name)

	require.Len(t, f.Module.Functions, 1)
	fn := f.Module.Functions[0]
	assert.Equal(t, 7, fn.Complexity)
	assert.Equal(t, 2, fn.NestingDepth)

	require.Len(t, f.Module.Classes, 1)
	assert.Equal(t, "Store", f.Module.Classes[0].Name)
	assert.Equal(t, "Get", f.Module.Classes[0].Methods[0].Name)
}

func TestParseFile_Malformed(t *testing.T) {
	r := NewRegistry()
	cases := map[string]string{
		"broken.py": "def broken(:\n    return\n",
		"broken.js": "function (\n  if {\n",
		"broken.go": "package x\nfunc {\n",
	}
	for path, src := range cases {
		t.Run(path, func(t *testing.T) {
			p, err := r.ResolveFile(path, "")
			require.NoError(t, err)

			var f *ir.ParsedFile
			require.NotPanics(t, func() { f = p.ParseFile(path, []byte(src)) })
			require.NotNil(t, f)
			assert.NotEmpty(t, f.Errors)
			assert.Contains(t, f.Errors[0], "Syntax error")
			for _, fn := range f.Module.AllFunctions() {
				assert.GreaterOrEqual(t, fn.Complexity, 1)
			}
			assert.NotNil(t, f.Metrics)
		})
	}
}

func TestParseFile_InvalidUTF8(t *testing.T) {
	f := NewPythonParser().ParseFile("bad.py", []byte{'x', '=', 0xff, 0xfe, '\n'})
	require.Len(t, f.Errors, 1)
	assert.Contains(t, f.Errors[0], "UTF-8")
	assert.Equal(t, 1, f.Module.LinesOfCode)
}

func TestParseFile_Empty(t *testing.T) {
	f := NewPythonParser().ParseFile("empty.py", nil)
	assert.Empty(t, f.Errors)
	assert.Equal(t, 0, f.Module.LinesOfCode)
	assert.Empty(t, f.Module.Functions)
	assert.Equal(t, 0.0, f.Metrics[ir.MetricCommentRatio])
}

func TestSplitLines(t *testing.T) {
	lines := splitLines("a\r\nb\r\n\r\nc")
	assert.Equal(t, []string{"a", "b", "", "c"}, lines)
	assert.Equal(t, 1, countBlank(lines))

	assert.Equal(t, []string{"x", "y"}, splitLines("x\ry\n"))
	assert.Nil(t, splitLines(""))
}

func TestCountSlashComments(t *testing.T) {
	lines := []string{
		"// one",
		"code() // trailing does not count",
		"/* start",
		" * middle",
		" end */",
		"/* single */",
		"x := 1",
	}
	assert.Equal(t, 5, countSlashComments(lines))
}

func TestModuleNames(t *testing.T) {
	assert.Equal(t, "pkg", PythonModuleName("pkg/__init__.py"))
	assert.Equal(t, "a.b.c", PythonModuleName("./a/b/c.py"))
	assert.Equal(t, "src/util", ScriptModuleName("src/util/index.ts"))
	assert.Equal(t, "index", ScriptModuleName("index.js"))
	assert.Equal(t, "mod", GoModuleName("mod", "main.go"))
	assert.Equal(t, "internal/x", GoModuleName("", "internal/x/y.go"))
	assert.Equal(t, "", Extension("Makefile"))
	assert.Equal(t, "tsx", Extension("App.TSX"))
}
