package analysis

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"archdrift/internal/graph"
	"archdrift/internal/storage"
)

// ComplexityThreshold is the cyclomatic complexity a function must exceed to
// be considered for critical paths.
const ComplexityThreshold = 10

// DefaultViolationWindow bounds RecentViolations when no window is given.
const DefaultViolationWindow = 30 * 24 * time.Hour

// Config tunes the engine's queries.
type Config struct {
	ComplexityThreshold int
	CriticalPathLimit   int
	ViolationWindow     time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ComplexityThreshold: ComplexityThreshold,
		CriticalPathLimit:   10,
		ViolationWindow:     DefaultViolationWindow,
	}
}

// Cycle is one module's view of a dependency cycle. Path starts and ends at Module.
type Cycle struct {
	Module string   `json:"module"`
	Path   []string `json:"path"`
	Length int      `json:"length"`
}

// Coupling holds Martin's package metrics for one module.
type Coupling struct {
	Module      string  `json:"module"`
	Ce          int     `json:"efferent"`
	Ca          int     `json:"afferent"`
	Instability float64 `json:"instability"`
}

// CriticalPath is a complex function ranked by how often it is called.
type CriticalPath struct {
	Function      string `json:"function"`
	Module        string `json:"module"`
	FilePath      string `json:"file_path,omitempty"`
	Complexity    int    `json:"complexity"`
	CallFrequency int    `json:"call_frequency"`
	Risk          int    `json:"risk"`
}

// Engine answers read-only analytical queries against the graph store.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	store  storage.GraphReader
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an engine over store. Zero config fields take defaults.
func NewEngine(store storage.GraphReader, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.ComplexityThreshold <= 0 {
		cfg.ComplexityThreshold = def.ComplexityThreshold
	}
	if cfg.CriticalPathLimit <= 0 {
		cfg.CriticalPathLimit = def.CriticalPathLimit
	}
	if cfg.ViolationWindow <= 0 {
		cfg.ViolationWindow = def.ViolationWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// FindCircularDependencies reports every elementary cycle of length > 1 once
// per participating module, longest first, then by module and path.
func (e *Engine) FindCircularDependencies(ctx context.Context, projectID string) ([]Cycle, error) {
	edges, err := e.store.DependencyEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return CyclesFromEdges(edges), nil
}

// CyclesFromEdges expands elementary cycles into per-module records.
func CyclesFromEdges(edges []graph.DependencyEdge) []Cycle {
	out := []Cycle{}
	for _, c := range graph.ElementaryCycles(edges) {
		for _, m := range c {
			out = append(out, Cycle{Module: m, Path: graph.RotateTo(c, m), Length: len(c)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Length != out[j].Length {
			return out[i].Length > out[j].Length
		}
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return strings.Join(out[i].Path, "\x00") < strings.Join(out[j].Path, "\x00")
	})
	return out
}

// CouplingMetrics returns Ce, Ca and instability per module, most unstable first.
func (e *Engine) CouplingMetrics(ctx context.Context, projectID string) ([]Coupling, error) {
	rows, err := e.store.CouplingRows(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]Coupling, 0, len(rows))
	for _, r := range rows {
		out = append(out, Coupling{Module: r.Module, Ce: r.Ce, Ca: r.Ca, Instability: Instability(r.Ce, r.Ca)})
	}
	sortCoupling(out)
	return out, nil
}

// Instability is Ce / (Ca + Ce), or 0 for an isolated module.
func Instability(ce, ca int) float64 {
	if ce+ca == 0 {
		return 0.0
	}
	return float64(ce) / float64(ca+ce)
}

func sortCoupling(c []Coupling) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Instability != c[j].Instability {
			return c[i].Instability > c[j].Instability
		}
		return c[i].Module < c[j].Module
	})
}

// CriticalPaths ranks functions above the complexity threshold by
// complexity × incoming call frequency. A non-positive limit uses the configured one.
func (e *Engine) CriticalPaths(ctx context.Context, projectID string, limit int) ([]CriticalPath, error) {
	if limit <= 0 {
		limit = e.cfg.CriticalPathLimit
	}
	rows, err := e.store.RiskRows(ctx, projectID, e.cfg.ComplexityThreshold, limit)
	if err != nil {
		return nil, err
	}
	out := make([]CriticalPath, 0, len(rows))
	for _, r := range rows {
		out = append(out, CriticalPath{
			Function:      r.Function,
			Module:        r.Module,
			FilePath:      r.FilePath,
			Complexity:    r.Complexity,
			CallFrequency: r.Frequency,
			Risk:          r.Complexity * r.Frequency,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Risk > out[j].Risk })
	return out, nil
}

// RecentViolations returns persisted violations inside window, most severe
// first, then most recent. A non-positive window uses the configured one.
func (e *Engine) RecentViolations(ctx context.Context, projectID string, window time.Duration) ([]Violation, error) {
	if window <= 0 {
		window = e.cfg.ViolationWindow
	}
	rows, err := e.store.ViolationRows(ctx, projectID, e.now().Add(-window))
	if err != nil {
		return nil, err
	}
	out := make([]Violation, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRecord(r))
	}
	return out, nil
}

// ProjectOverview counts modules, classes and functions of the project.
func (e *Engine) ProjectOverview(ctx context.Context, projectID string) (storage.Overview, error) {
	return e.store.Overview(ctx, projectID)
}
