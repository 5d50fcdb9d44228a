package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"archdrift/internal/graph"
	"archdrift/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, driver string) *SQLiteStore {
	t.Helper()
	store, err := Open(driver, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func parsed(path, name string, imports []string, funcs ...ir.FunctionNode) *ir.ParsedFile {
	m := ir.ModuleNode{Name: name, Language: "python", Path: path, LinesOfCode: 10, BlankLines: 2, CommentLines: 1}
	for _, imp := range imports {
		m.Imports = append(m.Imports, ir.ImportNode{ModuleName: imp})
	}
	m.Functions = funcs
	return &ir.ParsedFile{Path: path, Module: m}
}

// sampleRun: a imports b, b imports c, c.heavy (complexity 12) is called once from a.
func sampleRun() (*graph.DependencyGraph, []*ir.ParsedFile) {
	files := []*ir.ParsedFile{
		parsed("a.py", "a", []string{"b"}, ir.FunctionNode{Name: "main", Complexity: 2, Calls: []string{"c.heavy"}}),
		parsed("b.py", "b", []string{"c"}),
		parsed("c.py", "c", nil, ir.FunctionNode{Name: "heavy", Complexity: 12}, ir.FunctionNode{Name: "light", Complexity: 1}),
	}
	files[2].Module.Classes = []ir.ClassNode{{
		Name:        "Repo",
		BaseClasses: []string{"Base"},
		Methods:     []ir.FunctionNode{{Name: "save", Complexity: 11}},
	}}
	return graph.Build(files), files
}

func TestSQLiteStore_IngestIsIdempotent(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			store := openTestStore(t, driver)
			ctx := context.Background()
			g, files := sampleRun()

			require.NoError(t, store.UpsertProject(ctx, Project{ID: "p1", Name: "demo", Language: "python"}))
			require.NoError(t, store.Ingest(ctx, "p1", g, files, nil))
			first, err := store.Counts(ctx, "p1")
			require.NoError(t, err)

			require.NoError(t, store.Ingest(ctx, "p1", g, files, nil))
			second, err := store.Counts(ctx, "p1")
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, Counts{Modules: 3, Classes: 1, Functions: 4, DependsOn: 3, Calls: 1}, second)
		})
	}
}

func TestSQLiteStore_IngestPrunesRemovedEntities(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()
	g, files := sampleRun()
	require.NoError(t, store.Ingest(ctx, "p1", g, files, nil))

	// c loses its class and light(); a stops calling c
	files[2].Module.Classes = nil
	files[2].Module.Functions = files[2].Module.Functions[:1]
	files[0].Module.Functions[0].Calls = nil
	require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))

	counts, err := store.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Classes)
	assert.Equal(t, 2, counts.Functions)
	assert.Equal(t, 2, counts.DependsOn)
	assert.Equal(t, 0, counts.Calls)
}

func TestSQLiteStore_RemoveModules(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()
	g, files := sampleRun()
	require.NoError(t, store.Ingest(ctx, "p1", g, files, nil))

	require.NoError(t, store.RemoveModules(ctx, "p1", []string{"c", "missing"}))
	counts, err := store.Counts(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Modules: 2, Classes: 0, Functions: 1, DependsOn: 1, Calls: 0}, counts)

	require.NoError(t, store.RemoveModules(ctx, "p1", nil))
}

func TestSQLiteStore_ModuleFiles(t *testing.T) {
	store := openTestStore(t, DriverPureGo)
	ctx := context.Background()
	files := []*ir.ParsedFile{
		parsed("svc/a.go", "svc", nil),
		parsed("svc/b.go", "svc", nil),
		parsed("cmd/main.go", "main", []string{"svc"}),
	}
	for _, f := range files {
		f.Module.Language = "go"
	}
	require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))

	g, err := store.LoadGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc/a.go", "svc/b.go"}, g.Nodes["svc"].Files)
	n, ok := g.NodeFor("svc/b.go")
	require.True(t, ok)
	assert.Equal(t, "svc", n.ID)

	// svc/a.go is deleted
	files = files[1:]
	require.NoError(t, store.Ingest(ctx, "p1", graph.Build(files), files, nil))
	g, err = store.LoadGraph(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc/b.go"}, g.Nodes["svc"].Files)

	require.NoError(t, store.RemoveModules(ctx, "p1", []string{"svc"}))
	var left int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM module_files WHERE module_id = ?`, ModuleID("p1", "svc")).Scan(&left))
	assert.Zero(t, left)
}

func TestSQLiteStore_RejectsInvalidProjectID(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()
	g, files := sampleRun()

	assert.ErrorIs(t, store.UpsertProject(ctx, Project{ID: ""}), ErrInvalidProjectID)
	assert.ErrorIs(t, store.UpsertProject(ctx, Project{ID: "team:shop"}), ErrInvalidProjectID)
	err := store.Ingest(ctx, "team:shop", g, files, nil)
	assert.ErrorIs(t, err, ErrInvalidProjectID)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.RemoveModules(ctx, "a:b", []string{"c"}), ErrInvalidProjectID)

	assert.NoError(t, CheckProjectID("team-shop"))
}

func TestSQLiteStore_Queries(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()
	g, files := sampleRun()
	layers := func(n *graph.Node) string {
		if n.ID == "c" {
			return "data"
		}
		return ""
	}
	require.NoError(t, store.UpsertProject(ctx, Project{ID: "p1", Name: "demo"}))
	require.NoError(t, store.Ingest(ctx, "p1", g, files, layers))

	t.Run("coupling", func(t *testing.T) {
		rows, err := store.CouplingRows(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []CouplingRow{
			{Module: "a", Ce: 2, Ca: 0},
			{Module: "b", Ce: 1, Ca: 1},
			{Module: "c", Ce: 0, Ca: 2},
		}, rows)
	})

	t.Run("risk", func(t *testing.T) {
		rows, err := store.RiskRows(ctx, "p1", 10, 5)
		require.NoError(t, err)
		// Repo.save is complex but never called
		require.Len(t, rows, 1)
		assert.Equal(t, RiskRow{Function: "heavy", Module: "c", FilePath: "c.py", Complexity: 12, Frequency: 1}, rows[0])
	})

	t.Run("edges and graph", func(t *testing.T) {
		edges, err := store.DependencyEdges(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, edges, 3)
		assert.Equal(t, graph.DependencyEdge{Source: "a", Target: "b", Type: graph.EdgeImport, Weight: 1.0, Match: "b", Candidates: 1}, edges[0])
		assert.Equal(t, graph.EdgeCall, edges[1].Type)
		assert.Equal(t, "heavy", edges[1].Match)

		loaded, err := store.LoadGraph(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, loaded.NodeIDs())
		assert.Len(t, loaded.GetDependents("c"), 2)
	})

	t.Run("known symbols", func(t *testing.T) {
		known, err := store.KnownSymbols(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, known.Modules["c"])
		assert.Equal(t, []string{"c"}, known.Functions["heavy"])
		assert.Equal(t, []string{"c"}, known.Functions["save"])
	})

	t.Run("overview", func(t *testing.T) {
		o, err := store.Overview(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, Overview{ProjectID: "p1", Name: "demo", Modules: 3, Classes: 1, Functions: 4, DependsOn: 3}, o)
	})
}

func TestSQLiteStore_Violations(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.RecordViolations(ctx, "p1", []Violation{
		{SourceID: "a", Type: "circular_dependency", Severity: "high", Description: "old", DetectedAt: now.Add(-40 * 24 * time.Hour)},
		{SourceID: "a", Type: "layer_violation", Severity: "medium", Description: "earlier", DetectedAt: now.Add(-time.Hour)},
		{SourceID: "b", Type: "layer_violation", Severity: "medium", Description: "later"},
		{SourceID: "c", Type: "complexity_hotspot", Severity: "critical", Description: "hot", DetectedAt: now.Add(-2 * time.Hour)},
	}))
	// the same fact again is a new record
	require.NoError(t, store.RecordViolations(ctx, "p1", []Violation{
		{SourceID: "c", Type: "complexity_hotspot", Severity: "critical", Description: "hot", DetectedAt: now.Add(-2 * time.Hour)},
	}))

	rows, err := store.ViolationRows(ctx, "p1", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "critical", rows[0].Severity)
	assert.Equal(t, "critical", rows[1].Severity)
	assert.Equal(t, "later", rows[2].Description)
	assert.Equal(t, "earlier", rows[3].Description)
	assert.True(t, now.Equal(rows[2].DetectedAt))
	assert.NotEmpty(t, rows[0].ID)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestSQLiteStore_UnknownProjectIsEmpty(t *testing.T) {
	store := openTestStore(t, DriverCGO)
	ctx := context.Background()

	coupling, err := store.CouplingRows(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, coupling)

	risk, err := store.RiskRows(ctx, "nope", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, risk)

	violations, err := store.ViolationRows(ctx, "nope", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, violations)

	edges, err := store.DependencyEdges(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, edges)

	o, err := store.Overview(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, Overview{ProjectID: "nope"}, o)
}

func TestSQLiteStore_ClosedStoreIsUnavailable(t *testing.T) {
	store, err := Open(DriverCGO, filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err = store.CouplingRows(ctx, "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "coupling", opErr.Op)
	assert.Equal(t, "p1", opErr.ProjectID)

	g, files := sampleRun()
	err = store.Ingest(ctx, "p1", g, files, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}
