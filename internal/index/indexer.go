package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"archdrift/internal/extractor"
	"archdrift/internal/graph"
	"archdrift/internal/ir"
	"archdrift/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// SourceFile is one input file of an analysis run.
type SourceFile struct {
	Path         string `json:"path"`
	Content      []byte `json:"-"`
	LanguageHint string `json:"language_hint,omitempty"`
}

// Diagnostic lists the problems found in one file.
type Diagnostic struct {
	FilePath string   `json:"file_path"`
	Errors   []string `json:"errors"`
}

// Cache stores parse results between runs.
type Cache interface {
	Get(language, path string, content []byte) (*ir.ParsedFile, bool)
	Put(language, path string, content []byte, parsed *ir.ParsedFile) error
}

// Options tunes ParseBatch. The zero value parses with one worker per CPU
// and no cache.
type Options struct {
	Workers int
	Cache   Cache
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// BatchResult is the outcome of parsing a batch. Files keeps input order and
// omits unsupported files.
type BatchResult struct {
	Files       []*ir.ParsedFile
	Diagnostics []Diagnostic
}

// ParseBatch parses files concurrently. A failing file never stops the others;
// its problems show up as diagnostics. Only context cancellation returns an error.
func ParseBatch(ctx context.Context, reg *extractor.Registry, files []SourceFile, opts Options) (*BatchResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parsed := make([]*ir.ParsedFile, len(files))
	diags := make([][]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			parsed[i], diags[i] = parseOne(reg, src, opts, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &BatchResult{Files: make([]*ir.ParsedFile, 0, len(files)), Diagnostics: []Diagnostic{}}
	for i, src := range files {
		if parsed[i] != nil {
			result.Files = append(result.Files, parsed[i])
		}
		if len(diags[i]) > 0 {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{FilePath: src.Path, Errors: diags[i]})
		}
	}
	return result, nil
}

func parseOne(reg *extractor.Registry, src SourceFile, opts Options, logger *slog.Logger) (*ir.ParsedFile, []string) {
	parser, err := reg.ResolveFile(src.Path, src.LanguageHint)
	if err != nil {
		opts.Metrics.FileUnsupported()
		return nil, []string{"Unsupported language: " + unsupportedName(src)}
	}
	lang := parser.Language()

	if opts.Cache != nil {
		if cached, ok := opts.Cache.Get(lang, src.Path, src.Content); ok {
			opts.Metrics.CacheHit()
			return cached, cached.Errors
		}
		opts.Metrics.CacheMiss()
	}

	start := time.Now()
	pf := parser.ParseFile(src.Path, src.Content)
	opts.Metrics.FileParsed(lang, pf.HasErrors(), time.Since(start))

	if opts.Cache != nil {
		if err := opts.Cache.Put(lang, src.Path, src.Content, pf); err != nil {
			logger.Warn("parse cache write failed", slog.String("file", src.Path), slog.String("error", err.Error()))
		}
	}
	return pf, pf.Errors
}

func unsupportedName(src SourceFile) string {
	if src.LanguageHint != "" {
		return src.LanguageHint
	}
	if ext := extractor.Extension(src.Path); ext != "" {
		return ext
	}
	return src.Path
}

// Indexer discovers, parses and links a project.
type Indexer struct {
	registry *extractor.Registry
	opts     Options
}

// NewIndexer creates a new indexer.
func NewIndexer(reg *extractor.Registry, opts Options) *Indexer {
	return &Indexer{registry: reg, opts: opts}
}

// Registry returns the parser registry in use.
func (i *Indexer) Registry() *extractor.Registry { return i.registry }

// Result bundles everything one indexing pass produced.
type Result struct {
	Graph       *graph.DependencyGraph
	Files       []*ir.ParsedFile
	Diagnostics []Diagnostic
}

// BuildGraph parses files and assembles the dependency graph once the whole
// batch is in.
func (i *Indexer) BuildGraph(ctx context.Context, files []SourceFile, buildOpts ...graph.BuildOption) (*Result, error) {
	batch, err := ParseBatch(ctx, i.registry, files, i.opts)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	if i.opts.Logger != nil {
		buildOpts = append([]graph.BuildOption{graph.WithLogger(i.opts.Logger)}, buildOpts...)
	}
	g := graph.Build(batch.Files, buildOpts...)
	st := g.Stats()
	i.opts.Metrics.GraphBuilt(st.Nodes, st.ImportEdges, st.CallEdges, st.DroppedImports, st.AmbiguousCalls)

	return &Result{Graph: g, Files: batch.Files, Diagnostics: batch.Diagnostics}, nil
}

// snapshot is the on-disk form of a graph.
type snapshot struct {
	Nodes []*graph.Node          `json:"nodes"`
	Edges []graph.DependencyEdge `json:"edges"`
	Stats graph.Stats            `json:"stats"`
}

// SaveGraph persists the graph to a JSON file.
func SaveGraph(g *graph.DependencyGraph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	defer f.Close()

	snap := snapshot{Edges: g.Edges, Stats: g.Stats()}
	for _, id := range g.NodeIDs() {
		snap.Nodes = append(snap.Nodes, g.Nodes[id])
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return nil
}

// LoadGraph loads a graph from a JSON file written by SaveGraph.
func LoadGraph(path string) (*graph.DependencyGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}

	// AddNode rebuilds the lookup indices that are not serialized.
	g := graph.NewGraph()
	for _, n := range snap.Nodes {
		g.AddNode(n)
	}
	if snap.Edges != nil {
		g.Edges = snap.Edges
	}
	return g, nil
}
