package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"archdrift/internal/analysis"
	"archdrift/internal/config"
	"archdrift/internal/crawler"
	"archdrift/internal/extractor"
	"archdrift/internal/git"
	"archdrift/internal/graph"
	"archdrift/internal/index"
	"archdrift/internal/ir"
	"archdrift/internal/metrics"
	"archdrift/internal/report"
	"archdrift/internal/storage"
)

// ErrTimeout is returned when a run exceeds the configured analysis timeout.
var ErrTimeout = errors.New("analysis did not complete within limit")

// Options wires a pipeline to its collaborators. Store and Config are required.
type Options struct {
	Config  *config.Config
	Store   storage.Store
	Cache   index.Cache
	Metrics *metrics.Collector
	Logger  *slog.Logger
	// Progress receives human-readable progress lines. Nil discards them.
	Progress io.Writer
}

// Request describes one analysis run.
type Request struct {
	ProjectID   string
	ProjectName string
	// Root is the project directory. Empty means cfg.Project.Root.
	Root string
	// Files, when set, are analysed as the complete project instead of
	// crawling Root.
	Files []index.SourceFile
	// ChangedSince switches to incremental mode: only files changed since this
	// git ref are reparsed and merged into the stored graph.
	ChangedSince string
}

// Result is the outcome of a run.
type Result struct {
	Report *report.DriftReport
	// Graph is the graph built in this run; partial in incremental mode.
	Graph *graph.DependencyGraph
	// Impact is set in incremental mode.
	Impact  *analysis.ImpactReport
	Metrics metrics.Snapshot
}

// Pipeline runs crawl, parse, build, ingest, analyse and report in order.
type Pipeline struct {
	cfg      *config.Config
	store    storage.Store
	cache    index.Cache
	metrics  *metrics.Collector
	logger   *slog.Logger
	progress io.Writer
}

// New validates opts and creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Pipeline{
		cfg:      cfg,
		store:    opts.Store,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   logger,
		progress: progress,
	}, nil
}

type runState struct {
	req      Request
	root     string
	stages   *report.StageLog
	changes  []git.ChangedFile
	files    []index.SourceFile
	parsed   []*ir.ParsedFile
	diags    []index.Diagnostic
	graph    *graph.DependencyGraph
	stored   *graph.DependencyGraph
	impact   *analysis.ImpactReport
	cycles   []analysis.Cycle
	coupling []analysis.Coupling
	paths    []analysis.CriticalPath
	fresh    []analysis.Violation
	history  []analysis.Violation
}

func (s *runState) incremental() bool { return s.req.ChangedSince != "" }

// Run executes one analysis. It gives up with ErrTimeout once
// cfg.Analysis.Timeout has elapsed; a zero timeout never expires.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ProjectID == "" {
		req.ProjectID = p.cfg.Project.ID
	}
	if err := storage.CheckProjectID(req.ProjectID); err != nil {
		return nil, err
	}
	if req.ProjectName == "" {
		req.ProjectName = p.cfg.Project.Name
	}

	if timeout := p.cfg.Analysis.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := p.run(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.logger.Warn("analysis timed out", "project", req.ProjectID, "timeout", p.cfg.Analysis.Timeout)
			return nil, ErrTimeout
		}
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Result, error) {
	st := &runState{req: req, root: req.Root, stages: report.NewStageLog()}
	if st.root == "" {
		st.root = p.cfg.Project.Root
	}

	steps := []struct {
		name string
		fn   func(context.Context, *runState) (map[string]float64, error)
	}{
		{"detect_changes", p.detectChangesStage},
		{"collect", p.collectStage},
		{"parse", p.parseStage},
		{"ingest", p.ingestStage},
		{"impact", p.impactStage},
		{"analyze", p.analyzeStage},
		{"rules", p.rulesStage},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := st.stages.Begin(step.name)
		counters, err := step.fn(ctx, st)
		d := st.stages.End(h, counters, err)
		p.metrics.StageDone(step.name, d)
		if err != nil {
			return nil, err
		}
	}

	rep := report.Assemble(report.Inputs{
		ProjectID:           req.ProjectID,
		Cycles:              st.cycles,
		Coupling:            st.coupling,
		CriticalPaths:       st.paths,
		NewViolations:       st.fresh,
		PersistedViolations: st.history,
		Diagnostics:         st.diags,
		Stages:              st.stages.Stages(),
		GeneratedAt:         time.Now(),
	})
	fmt.Fprintf(p.progress, "✅ %d modules, %d cycles, %d violations.\n",
		rep.Summary.Modules, rep.Summary.DistinctCycles, rep.Summary.Violations)

	return &Result{
		Report:  rep,
		Graph:   st.graph,
		Impact:  st.impact,
		Metrics: p.metrics.Snapshot(),
	}, nil
}

func (p *Pipeline) detectChangesStage(ctx context.Context, st *runState) (map[string]float64, error) {
	if !st.incremental() {
		return nil, nil
	}
	changes, err := git.ChangedFiles(ctx, st.root, st.req.ChangedSince)
	if err != nil {
		return nil, fmt.Errorf("failed to get git changes: %w", err)
	}
	st.changes = changes
	if len(changes) == 0 {
		fmt.Fprintln(p.progress, "✅ No changes detected.")
	} else {
		fmt.Fprintf(p.progress, "📝 Detected %d changed files.\n", len(changes))
	}
	return map[string]float64{"changed_files": float64(len(changes))}, nil
}

func (p *Pipeline) newCrawler(reg *extractor.Registry) *crawler.Crawler {
	opts := []crawler.Option{crawler.WithIgnored(p.cfg.Project.Ignore...)}
	if p.cfg.Analysis.MaxFileBytes > 0 {
		opts = append(opts, crawler.WithMaxFileSize(p.cfg.Analysis.MaxFileBytes))
	}
	return crawler.NewCrawler(reg, opts...)
}

func (p *Pipeline) registry(root string) *extractor.Registry {
	modulePath, err := crawler.GoModulePath(root)
	if err != nil {
		p.logger.Warn("ignoring unreadable go.mod", "root", root, "error", err)
	}
	return extractor.NewRegistry(extractor.WithGoModulePath(modulePath))
}

func (p *Pipeline) collectStage(ctx context.Context, st *runState) (map[string]float64, error) {
	switch {
	case len(st.req.Files) > 0:
		st.files = st.req.Files
	case st.incremental():
		cr := p.newCrawler(p.registry(st.root))
		rels := cr.PackageSiblings(st.root, changedPaths(st.changes))
		files, err := cr.CollectPaths(st.root, rels)
		if err != nil {
			return nil, fmt.Errorf("collect changed files: %w", err)
		}
		st.files = files
	default:
		fmt.Fprintf(p.progress, "🔎 Scanning %s...\n", st.root)
		files, err := p.newCrawler(p.registry(st.root)).Collect(st.root)
		if err != nil {
			return nil, fmt.Errorf("crawl %s: %w", st.root, err)
		}
		st.files = files
	}
	return map[string]float64{"files": float64(len(st.files))}, nil
}

func changedPaths(changes []git.ChangedFile) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Path)
	}
	return out
}

func (p *Pipeline) parseStage(ctx context.Context, st *runState) (map[string]float64, error) {
	var buildOpts []graph.BuildOption
	if p.cfg.Analysis.PathQualifiedIDs {
		buildOpts = append(buildOpts, graph.WithPathQualifiedIDs())
	}
	if st.incremental() {
		known, err := p.store.KnownSymbols(ctx, st.req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load known symbols: %w", err)
		}
		buildOpts = append(buildOpts, graph.WithKnownSymbols(known))
	}

	idx := index.NewIndexer(p.registry(st.root), index.Options{
		Workers: p.cfg.Analysis.Workers,
		Cache:   p.cache,
		Metrics: p.metrics,
		Logger:  p.logger,
	})
	res, err := idx.BuildGraph(ctx, st.files, buildOpts...)
	if err != nil {
		return nil, err
	}
	st.graph, st.parsed, st.diags = res.Graph, res.Files, res.Diagnostics

	stats := st.graph.Stats()
	fmt.Fprintf(p.progress, "📊 Parsed %d files into %d modules.\n", len(st.parsed), stats.Nodes)
	fmt.Fprintf(p.progress, "  -> Linked edges: %d imports, %d calls (%d ambiguous), %d imports dropped\n",
		stats.ImportEdges, stats.CallEdges, stats.AmbiguousCalls, stats.DroppedImports)
	return map[string]float64{
		"files":        float64(len(st.parsed)),
		"diagnostics":  float64(len(st.diags)),
		"nodes":        float64(stats.Nodes),
		"import_edges": float64(stats.ImportEdges),
		"call_edges":   float64(stats.CallEdges),
	}, nil
}

func (p *Pipeline) ingestStage(ctx context.Context, st *runState) (map[string]float64, error) {
	pid := st.req.ProjectID
	if err := p.store.UpsertProject(ctx, storage.Project{ID: pid, Name: st.req.ProjectName, Language: dominantLanguage(st.parsed)}); err != nil {
		return nil, err
	}

	previous, err := p.store.LoadGraph(ctx, pid)
	if err != nil {
		return nil, err
	}
	var stale []string
	if st.incremental() {
		stale = deletedModules(previous, st.changes, st.graph)
	} else {
		stale = missingModules(previous, st.graph)
	}
	if err := p.store.RemoveModules(ctx, pid, stale); err != nil {
		return nil, err
	}

	rules := LayerRules(p.cfg)
	if err := p.store.Ingest(ctx, pid, st.graph, st.parsed, rules.LayerOf); err != nil {
		return nil, err
	}
	p.metrics.ModulesIngested(len(st.graph.Nodes))

	// Layer rules and impact analysis need the whole project, not just this batch.
	st.stored, err = p.store.LoadGraph(ctx, pid)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"modules": float64(len(st.graph.Nodes)),
		"removed": float64(len(stale)),
	}, nil
}

// missingModules lists stored modules the complete new graph no longer has.
func missingModules(previous, current *graph.DependencyGraph) []string {
	var out []string
	for _, id := range previous.NodeIDs() {
		if _, ok := current.Nodes[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// deletedModules lists stored modules whose files were deleted and that the
// new batch did not recreate. A deleted Go file only removes its package when
// no file of the package was reparsed.
func deletedModules(previous *graph.DependencyGraph, changes []git.ChangedFile, current *graph.DependencyGraph) []string {
	goDirs := map[string]bool{}
	candidates := map[string]bool{}
	for _, c := range changes {
		if !c.Deleted {
			continue
		}
		if n, ok := previous.NodeFor(c.Path); ok {
			candidates[n.ID] = true
		}
		if extractor.Extension(c.Path) == "go" {
			goDirs[path.Dir(c.Path)] = true
		}
	}
	for _, id := range previous.NodeIDs() {
		n := previous.Nodes[id]
		if n.Language == "go" && goDirs[path.Dir(n.Path)] {
			candidates[id] = true
		}
	}

	var out []string
	for _, id := range previous.NodeIDs() {
		if !candidates[id] {
			continue
		}
		if _, ok := current.Nodes[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func dominantLanguage(files []*ir.ParsedFile) string {
	counts := map[string]int{}
	best := ""
	for _, f := range files {
		lang := f.Module.Language
		counts[lang]++
		if counts[lang] > counts[best] || (counts[lang] == counts[best] && lang < best) {
			best = lang
		}
	}
	return best
}

func (p *Pipeline) impactStage(ctx context.Context, st *runState) (map[string]float64, error) {
	if !st.incremental() || len(st.changes) == 0 {
		return nil, nil
	}
	fmt.Fprintln(p.progress, "🔍 Analyzing impact...")
	st.impact = analysis.NewAnalyzer(st.stored).AnalyzeImpact(st.changes)
	fmt.Fprintf(p.progress, "  -> %d modules directly affected\n", len(st.impact.DirectlyAffected))
	fmt.Fprintf(p.progress, "  -> %d modules indirectly affected (dependents)\n", len(st.impact.IndirectlyAffected))
	return map[string]float64{
		"direct":   float64(len(st.impact.DirectlyAffected)),
		"indirect": float64(len(st.impact.IndirectlyAffected)),
	}, nil
}

func (p *Pipeline) engine() *analysis.Engine {
	return analysis.NewEngine(p.store, analysis.Config{
		ComplexityThreshold: p.cfg.Analysis.ComplexityThreshold,
		CriticalPathLimit:   p.cfg.Analysis.CriticalPathLimit,
		ViolationWindow:     p.cfg.Analysis.ViolationWindow,
	}, p.logger)
}

func (p *Pipeline) analyzeStage(ctx context.Context, st *runState) (map[string]float64, error) {
	eng := p.engine()
	pid := st.req.ProjectID
	var err error
	if st.cycles, err = eng.FindCircularDependencies(ctx, pid); err != nil {
		return nil, err
	}
	if st.coupling, err = eng.CouplingMetrics(ctx, pid); err != nil {
		return nil, err
	}
	if st.paths, err = eng.CriticalPaths(ctx, pid, eng.Config().CriticalPathLimit); err != nil {
		return nil, err
	}
	return map[string]float64{
		"cycles":         float64(len(st.cycles)),
		"modules":        float64(len(st.coupling)),
		"critical_paths": float64(len(st.paths)),
	}, nil
}

func (p *Pipeline) rulesStage(ctx context.Context, st *runState) (map[string]float64, error) {
	pid := st.req.ProjectID
	eng := p.engine()

	history, err := eng.RecentViolations(ctx, pid, eng.Config().ViolationWindow)
	if err != nil {
		return nil, err
	}
	st.history = history

	var fresh []analysis.Violation
	fresh = append(fresh, analysis.DetectCycleViolations(st.cycles)...)
	fresh = append(fresh, analysis.DetectLayerViolations(st.stored, LayerRules(p.cfg))...)
	fresh = append(fresh, analysis.DetectHotspots(st.parsed, st.coupling, HotspotThresholds(p.cfg))...)
	st.fresh = fresh

	if err := p.store.RecordViolations(ctx, pid, analysis.ToRecords(pid, fresh)); err != nil {
		return nil, err
	}
	for _, v := range fresh {
		p.metrics.ViolationDetected(v.Type, string(v.Severity))
	}
	return map[string]float64{
		"new":       float64(len(fresh)),
		"persisted": float64(len(history)),
	}, nil
}

// LayerRules converts the configured layers into analysis rules.
func LayerRules(cfg *config.Config) analysis.LayerRules {
	rules := analysis.LayerRules{Allowed: cfg.Layers.Allowed}
	for _, l := range cfg.Layers.Order {
		rules.Layers = append(rules.Layers, analysis.Layer{Name: l.Name, Prefixes: l.Prefixes})
	}
	return rules
}

// HotspotThresholds reads the configured hotspot limits.
func HotspotThresholds(cfg *config.Config) analysis.HotspotThresholds {
	h := cfg.Analysis.Hotspots
	return analysis.HotspotThresholds{
		Complexity:  h.Complexity,
		Instability: h.Instability,
		MinAfferent: h.MinAfferent,
	}
}
