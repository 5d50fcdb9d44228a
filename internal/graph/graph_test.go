package graph

import (
	"testing"

	"archdrift/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func module(path, name, lang string, imports []string, funcs ...ir.FunctionNode) *ir.ParsedFile {
	m := ir.ModuleNode{
		Name:      name,
		Language:  lang,
		Path:      path,
		Imports:   []ir.ImportNode{},
		Classes:   []ir.ClassNode{},
		Functions: funcs,
	}
	for _, imp := range imports {
		m.Imports = append(m.Imports, ir.ImportNode{ModuleName: imp})
	}
	return &ir.ParsedFile{Path: path, Module: m}
}

func fn(name string, calls ...string) ir.FunctionNode {
	return ir.FunctionNode{Name: name, Complexity: 1, Calls: calls}
}

func TestBuild_SingleModule(t *testing.T) {
	g := Build([]*ir.ParsedFile{
		module("solo.py", "solo", "python", nil, fn("main", "print")),
	})

	assert.Equal(t, []string{"solo"}, g.NodeIDs())
	assert.Empty(t, g.Edges)
	assert.Equal(t, 1, g.Stats().UnresolvedCalls)
}

func TestBuild_ImportChain(t *testing.T) {
	files := []*ir.ParsedFile{
		module("c.py", "c", "python", nil),
		module("a.py", "a", "python", []string{"b", "os"}),
		module("b.py", "b", "python", []string{"c"}),
	}
	g := Build(files)

	require.Len(t, g.Edges, 2)
	assert.Equal(t, DependencyEdge{Source: "a", Target: "b", Type: EdgeImport, Weight: 1.0, Match: "b", Candidates: 1}, g.Edges[0])
	assert.Equal(t, DependencyEdge{Source: "b", Target: "c", Type: EdgeImport, Weight: 1.0, Match: "c", Candidates: 1}, g.Edges[1])
	assert.Equal(t, 1, g.Stats().DroppedImports)

	deps := g.GetDependencies("a")
	require.Len(t, deps, 1)
	assert.Equal(t, "b", deps[0].Name)

	dependents := g.GetDependents("c")
	require.Len(t, dependents, 1)
	assert.Equal(t, "b", dependents[0].ID)

	assert.Empty(t, ElementaryCycles(g.DependsOn()))
}

func TestBuild_CallMultiMatch(t *testing.T) {
	files := []*ir.ParsedFile{
		module("a.py", "a", "python", nil, fn("run", "helpers.save", "save", "run")),
		module("b.py", "b", "python", nil, fn("save")),
		module("c.py", "c", "python", nil, fn("save")),
	}
	g := Build(files)

	counts := g.EdgeCounts()
	// two calls to "save" each match b and c; "run" matches a itself
	assert.Equal(t, 5, counts[EdgeCall])
	assert.Equal(t, 2, g.Stats().AmbiguousCalls)

	for _, e := range g.Edges {
		assert.Equal(t, CallWeight, e.Weight)
		if e.Match == "save" {
			assert.Equal(t, 2, e.Candidates)
		}
	}
	assert.Len(t, g.DependsOn(), 4)
	assert.Len(t, g.GetDependencies("a"), 2)
}

func TestBuild_DeterministicOrder(t *testing.T) {
	a := module("a.py", "a", "python", []string{"b"})
	b := module("b.py", "b", "python", []string{"a"})

	first := Build([]*ir.ParsedFile{a, b})
	second := Build([]*ir.ParsedFile{b, a})
	assert.Equal(t, first.Edges, second.Edges)
}

func TestBuild_RelativeImports(t *testing.T) {
	files := []*ir.ParsedFile{
		module("pkg/__init__.py", "pkg", "python", nil),
		module("pkg/models.py", "pkg.models", "python", nil),
		module("pkg/api/views.py", "pkg.api.views", "python", []string{"..models", ".serializers"}),
		module("pkg/api/serializers.py", "pkg.api.serializers", "python", nil),
		module("src/app/main.ts", "src/app/main", "typescript", []string{"./util", "../lib/db.js", "react"}),
		module("src/app/util/index.ts", "src/app/util", "typescript", nil),
		module("src/lib/db.ts", "src/lib/db", "typescript", nil),
	}
	files[2].Module.Imports = append(files[2].Module.Imports, ir.ImportNode{ModuleName: "pkg", Names: []string{"models", "missing"}})

	g := Build(files)

	targets := map[string][]string{}
	for _, e := range g.Edges {
		targets[e.Source] = append(targets[e.Source], e.Target)
	}
	assert.Equal(t, []string{"pkg.models", "pkg.api.serializers", "pkg.models"}, targets["pkg.api.views"])
	assert.Equal(t, []string{"src/app/util", "src/lib/db"}, targets["src/app/main"])
	assert.Equal(t, 1, g.Stats().DroppedImports)
}

func TestBuild_DuplicateModules(t *testing.T) {
	t.Run("last write wins", func(t *testing.T) {
		g := Build([]*ir.ParsedFile{
			module("b/util.py", "util", "python", nil, fn("second")),
			module("a/util.py", "util", "python", nil, fn("first")),
		})
		require.Len(t, g.Nodes, 1)
		assert.Equal(t, "b/util.py", g.Nodes["util"].Path)
		assert.Equal(t, []string{"second"}, g.Nodes["util"].Functions)
		assert.Equal(t, 1, g.Stats().DuplicateModules)

		_, ok := g.NodeFor("a/util.py")
		assert.False(t, ok)
	})

	t.Run("path qualified", func(t *testing.T) {
		g := Build([]*ir.ParsedFile{
			module("a/util.py", "util", "python", nil),
			module("b/util.py", "util", "python", nil),
			module("main.py", "main", "python", []string{"util"}),
		}, WithPathQualifiedIDs())
		assert.Equal(t, []string{"a/util.py::util", "b/util.py::util", "main.py::main"}, g.NodeIDs())
		require.Len(t, g.Edges, 2)
		assert.Equal(t, 2, g.Edges[0].Candidates)
	})

	t.Run("go packages merge", func(t *testing.T) {
		g := Build([]*ir.ParsedFile{
			module("store/a.go", "mod/store", "go", nil, fn("Open")),
			module("store/b.go", "mod/store", "go", nil, fn("Close")),
		})
		require.Len(t, g.Nodes, 1)
		assert.Equal(t, []string{"Open", "Close"}, g.Nodes["mod/store"].Functions)
		assert.Zero(t, g.Stats().DuplicateModules)
	})
}

func TestBuild_KnownSymbols(t *testing.T) {
	g := Build([]*ir.ParsedFile{
		module("a.py", "a", "python", []string{"b"}, fn("run", "persist")),
	}, WithKnownSymbols(KnownSymbols{
		Modules:   map[string][]string{"b": {"b"}},
		Functions: map[string][]string{"persist": {"c"}},
	}))

	assert.Equal(t, []string{"a"}, g.NodeIDs())
	require.Len(t, g.Edges, 2)
	assert.Equal(t, "b", g.Edges[0].Target)
	assert.Equal(t, "c", g.Edges[1].Target)
	assert.Empty(t, g.GetDependencies("a"))
}

func TestElementaryCycles(t *testing.T) {
	edges := []DependencyEdge{
		{Source: "B", Target: "C", Type: EdgeImport},
		{Source: "A", Target: "B", Type: EdgeImport},
		{Source: "C", Target: "A", Type: EdgeImport},
		{Source: "A", Target: "A", Type: EdgeCall},
		{Source: "D", Target: "E", Type: EdgeImport},
		{Source: "E", Target: "D", Type: EdgeCall},
	}
	cycles := ElementaryCycles(edges)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"A", "B", "C"}, cycles[0])
	assert.Equal(t, []string{"D", "E"}, cycles[1])

	assert.Equal(t, []string{"B", "C", "A", "B"}, RotateTo(cycles[0], "B"))
	assert.Nil(t, RotateTo(cycles[0], "Z"))
}
