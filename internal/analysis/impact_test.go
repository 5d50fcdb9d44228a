package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"archdrift/internal/git"
	"archdrift/internal/graph"
	"archdrift/internal/ir"
	"archdrift/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goFile(path, pkg string, imports []string, funcs ...ir.FunctionNode) *ir.ParsedFile {
	f := module(path, pkg, imports, funcs...)
	f.Module.Language = "go"
	return f
}

// goPackageRun: package pkg spans pkg/a.go and pkg/b.go; app imports pkg and
// calls B; cli imports app.
func goPackageRun() []*ir.ParsedFile {
	return []*ir.ParsedFile{
		goFile("app/main.go", "app", []string{"pkg"}, ir.FunctionNode{Name: "main", Complexity: 1, Calls: []string{"B"}}),
		goFile("cli/cmd.go", "cli", []string{"app"}),
		goFile("pkg/a.go", "pkg", nil, ir.FunctionNode{Name: "A", Complexity: 1}),
		goFile("pkg/b.go", "pkg", nil, ir.FunctionNode{Name: "B", Complexity: 1}),
	}
}

func TestAnalyzeImpact_StoredGoPackage(t *testing.T) {
	for _, driver := range []string{storage.DriverCGO, storage.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			store, err := storage.Open(driver, filepath.Join(t.TempDir(), "impact.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })

			ctx := context.Background()
			files := goPackageRun()
			require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))

			stored, err := store.LoadGraph(ctx, "p1")
			require.NoError(t, err)

			n, ok := stored.NodeFor("pkg/b.go")
			require.True(t, ok)
			assert.Equal(t, "pkg", n.ID)
			assert.Equal(t, []string{"pkg/a.go", "pkg/b.go"}, n.Files)

			report := NewAnalyzer(stored).AnalyzeImpact([]git.ChangedFile{{Path: "pkg/b.go", ChangedLines: []int{4}}})
			assert.Equal(t, []string{"pkg", "app", "cli"}, report.ModuleIDs())
		})
	}
}

func TestAnalyzeImpact_StoredFilesFollowReingest(t *testing.T) {
	store, err := storage.Open(storage.DriverCGO, filepath.Join(t.TempDir(), "impact.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	files := goPackageRun()
	require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))

	// pkg/b.go is gone; the package now lives in pkg/a.go alone
	files = files[:3]
	require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))

	stored, err := store.LoadGraph(ctx, "p1")
	require.NoError(t, err)
	_, ok := stored.NodeFor("pkg/b.go")
	assert.False(t, ok)

	report := NewAnalyzer(stored).AnalyzeImpact([]git.ChangedFile{{Path: "pkg/a.go"}})
	assert.Equal(t, []string{"pkg", "app", "cli"}, report.ModuleIDs())
}
