package storage

import (
	"context"
	"time"

	"archdrift/internal/graph"
	"archdrift/internal/ir"
)

// Store combines the write and query sides of the graph store.
type Store interface {
	GraphWriter
	GraphReader
	Close() error
}

// GraphWriter persists analysis results. Every write is an idempotent upsert
// keyed by project and module id, except violations, which are append-only.
type GraphWriter interface {
	// UpsertProject creates or renames a project.
	UpsertProject(ctx context.Context, p Project) error

	// Ingest merges one run's graph into the store. Each module is written in
	// its own transaction, so an interrupted ingest can simply be repeated.
	Ingest(ctx context.Context, projectID string, g *graph.DependencyGraph, files []*ir.ParsedFile, layerOf LayerFunc) error

	// RemoveModules deletes modules by node id together with their classes,
	// functions and relations in both directions. Violations are kept.
	RemoveModules(ctx context.Context, projectID string, nodeIDs []string) error

	// RecordViolations appends detected violations with their detection time.
	RecordViolations(ctx context.Context, projectID string, violations []Violation) error
}

// GraphReader answers read-only queries. Unknown projects yield empty results.
type GraphReader interface {
	KnownSymbols(ctx context.Context, projectID string) (graph.KnownSymbols, error)
	DependencyEdges(ctx context.Context, projectID string) ([]graph.DependencyEdge, error)
	LoadGraph(ctx context.Context, projectID string) (*graph.DependencyGraph, error)
	CouplingRows(ctx context.Context, projectID string) ([]CouplingRow, error)
	RiskRows(ctx context.Context, projectID string, threshold, limit int) ([]RiskRow, error)
	ViolationRows(ctx context.Context, projectID string, since time.Time) ([]Violation, error)
	Overview(ctx context.Context, projectID string) (Overview, error)
	Counts(ctx context.Context, projectID string) (Counts, error)
}

// LayerFunc assigns an architectural layer to a module, or "" for none.
type LayerFunc func(n *graph.Node) string

// Project is the root of a persisted graph.
type Project struct {
	ID        string
	Name      string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Violation is a persisted rule breach between two components.
type Violation struct {
	ID           string
	ProjectID    string
	SourceID     string
	TargetID     string
	Type         string
	Severity     string
	Description  string
	RuleID       string
	FilePath     string
	Line         int
	SuggestedFix string
	DetectedAt   time.Time
}

// CouplingRow holds raw distinct-dependency counts for one module.
type CouplingRow struct {
	Module string
	Ce     int
	Ca     int
}

// RiskRow is one function above the complexity threshold with its incoming calls.
type RiskRow struct {
	Function   string
	Module     string
	FilePath   string
	Complexity int
	Frequency  int
}

// Overview aggregates the entities reachable from a project.
type Overview struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Modules   int    `json:"modules"`
	Classes   int    `json:"classes"`
	Functions int    `json:"functions"`
	DependsOn int    `json:"depends_on"`
}

// Counts reports row counts per table for one project.
type Counts struct {
	Modules    int
	Classes    int
	Functions  int
	DependsOn  int
	Calls      int
	Violations int
}
