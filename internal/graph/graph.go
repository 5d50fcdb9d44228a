package graph

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"archdrift/internal/extractor"
	"archdrift/internal/ir"
)

// DependencyGraph is the module dependency graph of one analysis run.
// It is rebuilt from scratch on every run and never mutated afterwards.
type DependencyGraph struct {
	Nodes map[string]*Node
	Edges []DependencyEdge

	// Index for faster lookup: module name -> node ids.
	nameIndex map[string][]string
	// function name -> ids of modules defining it
	funcIndex map[string][]string
	// file path -> node id, only for files whose content the node carries
	fileNode map[string]string

	stats Stats
}

// NewGraph creates an empty graph.
func NewGraph() *DependencyGraph {
	return &DependencyGraph{
		Nodes:     make(map[string]*Node),
		Edges:     []DependencyEdge{},
		nameIndex: make(map[string][]string),
		funcIndex: make(map[string][]string),
		fileNode:  make(map[string]string),
	}
}

type builder struct {
	pathQualified bool
	known         KnownSymbols
	logger        *slog.Logger
}

// BuildOption configures Build.
type BuildOption func(*builder)

// WithPathQualifiedIDs keys nodes by "path::name" so that two files computing
// the same module name stay distinct. Go packages keep their package path as id.
func WithPathQualifiedIDs() BuildOption {
	return func(b *builder) { b.pathQualified = true }
}

// WithKnownSymbols adds modules and functions outside the current batch as
// resolution targets.
func WithKnownSymbols(known KnownSymbols) BuildOption {
	return func(b *builder) { b.known = known }
}

// WithLogger sets the logger used for duplicate-module warnings.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// mergesFiles lists languages whose modules span several files.
var mergesFiles = map[string]bool{"go": true}

// Build assembles the dependency graph from the complete set of parsed files.
// Files are processed in path order, so the result is deterministic for any
// input order. Duplicate module ids resolve last-write-wins, except for
// languages whose modules legitimately span several files, which are merged.
func Build(files []*ir.ParsedFile, opts ...BuildOption) *DependencyGraph {
	b := &builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	sorted := make([]*ir.ParsedFile, 0, len(files))
	for _, f := range files {
		if f != nil {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	g := NewGraph()
	for _, f := range sorted {
		g.addModule(b, f)
	}
	g.indexFunctions()

	for _, f := range sorted {
		id, ok := g.fileNode[f.Path]
		if !ok {
			continue
		}
		g.linkImports(b, id, f)
		g.linkCalls(b, id, f)
	}

	g.stats.Nodes = len(g.Nodes)
	return g
}

func (b *builder) nodeID(f *ir.ParsedFile) string {
	name := f.Module.Name
	if !b.pathQualified || mergesFiles[f.Module.Language] {
		return name
	}
	return extractor.NormalizePath(f.Path) + "::" + name
}

func (g *DependencyGraph) addModule(b *builder, f *ir.ParsedFile) {
	id := b.nodeID(f)
	if id == "" {
		return
	}
	funcs := functionNames(f.Module)
	classes := make([]string, 0, len(f.Module.Classes))
	for _, c := range f.Module.Classes {
		classes = append(classes, c.Name)
	}

	if existing, ok := g.Nodes[id]; ok {
		if mergesFiles[f.Module.Language] && existing.Language == f.Module.Language {
			existing.Files = append(existing.Files, f.Path)
			existing.Functions = append(existing.Functions, funcs...)
			existing.Classes = append(existing.Classes, classes...)
			g.fileNode[f.Path] = id
			return
		}
		b.logger.Warn("duplicate module id, keeping the later file",
			slog.String("module", id),
			slog.String("replaced", existing.Path),
			slog.String("kept", f.Path))
		for _, p := range existing.Files {
			delete(g.fileNode, p)
		}
		g.stats.DuplicateModules++
	} else {
		g.nameIndex[f.Module.Name] = append(g.nameIndex[f.Module.Name], id)
	}

	g.Nodes[id] = &Node{
		ID:        id,
		Name:      f.Module.Name,
		Path:      f.Path,
		Language:  f.Module.Language,
		Files:     []string{f.Path},
		Functions: funcs,
		Classes:   classes,
	}
	g.fileNode[f.Path] = id
}

func functionNames(m ir.ModuleNode) []string {
	all := m.AllFunctions()
	names := make([]string, 0, len(all))
	for _, fn := range all {
		if fn.Name != "" {
			names = append(names, fn.Name)
		}
	}
	return names
}

func (g *DependencyGraph) indexFunctions() {
	for _, id := range g.NodeIDs() {
		seen := map[string]bool{}
		for _, name := range g.Nodes[id].Functions {
			if seen[name] {
				continue
			}
			seen[name] = true
			g.funcIndex[name] = append(g.funcIndex[name], id)
		}
	}
}

// modulesNamed returns batch nodes first, then seeded ones not already present.
func (g *DependencyGraph) modulesNamed(b *builder, name string) []string {
	return union(g.nameIndex[name], b.known.Modules[name])
}

func (g *DependencyGraph) functionsNamed(b *builder, name string) []string {
	return union(g.funcIndex[name], b.known.Functions[name])
}

func union(primary, extra []string) []string {
	if len(extra) == 0 {
		return primary
	}
	out := append([]string(nil), primary...)
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (g *DependencyGraph) linkImports(b *builder, source string, f *ir.ParsedFile) {
	for _, imp := range f.Module.Imports {
		subs, bases := importCandidates(f, imp)
		matched := false
		// every named submodule that exists is a dependency of its own
		for _, name := range subs {
			if g.linkImport(b, source, name, imp.Line) {
				matched = true
			}
		}
		if !matched {
			for _, name := range bases {
				if g.linkImport(b, source, name, imp.Line) {
					matched = true
					break
				}
			}
		}
		if !matched {
			g.stats.DroppedImports++
		}
	}
}

func (g *DependencyGraph) linkImport(b *builder, source, name string, line int) bool {
	targets := g.modulesNamed(b, name)
	for _, target := range targets {
		g.addEdge(DependencyEdge{
			Source:     source,
			Target:     target,
			Type:       EdgeImport,
			Weight:     ImportWeight,
			Match:      name,
			Candidates: len(targets),
			Line:       line,
		})
	}
	return len(targets) > 0
}

// importCandidates lists the module names an import may refer to. Submodules
// named by `from pkg import mod` come first; bases are tried in order until one exists.
func importCandidates(f *ir.ParsedFile, imp ir.ImportNode) (subs, bases []string) {
	spec := imp.ModuleName
	switch f.Module.Language {
	case "python":
		if strings.HasPrefix(spec, ".") {
			spec = pythonRelative(f, spec)
			if spec == "" {
				return nil, nil
			}
		}
		for _, n := range imp.Names {
			subs = append(subs, joinDotted(spec, n))
		}
		return subs, []string{spec}
	case "javascript", "typescript":
		if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." {
			joined := path.Join(path.Dir(extractor.NormalizePath(f.Path)), spec)
			return nil, []string{joined, extractor.ScriptModuleName(joined)}
		}
	}
	return nil, []string{spec}
}

// pythonRelative resolves ".mod" or "..pkg.mod" against the importing module's package.
func pythonRelative(f *ir.ParsedFile, spec string) string {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	rest := spec[dots:]

	parts := strings.Split(f.Module.Name, ".")
	if path.Base(extractor.TrimExtension(extractor.NormalizePath(f.Path))) != "__init__" {
		parts = parts[:len(parts)-1]
	}
	up := dots - 1
	if up > len(parts) {
		return ""
	}
	parts = parts[:len(parts)-up]
	return joinDotted(strings.Join(parts, "."), rest)
}

func joinDotted(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "." + b
	}
}

func (g *DependencyGraph) linkCalls(b *builder, source string, f *ir.ParsedFile) {
	for _, fn := range f.Module.AllFunctions() {
		for _, call := range fn.Calls {
			match := call
			targets := g.functionsNamed(b, match)
			if len(targets) == 0 {
				if i := strings.LastIndex(call, "."); i >= 0 {
					match = call[i+1:]
					targets = g.functionsNamed(b, match)
				}
			}
			if len(targets) == 0 {
				g.stats.UnresolvedCalls++
				continue
			}
			if len(targets) > 1 {
				g.stats.AmbiguousCalls++
			}
			for _, target := range targets {
				g.addEdge(DependencyEdge{
					Source:     source,
					Target:     target,
					Type:       EdgeCall,
					Weight:     CallWeight,
					Match:      match,
					Candidates: len(targets),
					Line:       fn.Line,
				})
			}
		}
	}
}

func (g *DependencyGraph) addEdge(e DependencyEdge) {
	g.Edges = append(g.Edges, e)
	if e.Type == EdgeImport {
		g.stats.ImportEdges++
	} else {
		g.stats.CallEdges++
	}
}

// AddNode inserts a prebuilt node, indexing its name and files. Used when
// rehydrating a graph from the store.
func (g *DependencyGraph) AddNode(n *Node) {
	if n == nil || n.ID == "" {
		return
	}
	if _, ok := g.Nodes[n.ID]; !ok {
		g.nameIndex[n.Name] = append(g.nameIndex[n.Name], n.ID)
	}
	g.Nodes[n.ID] = n
	for _, p := range n.Files {
		g.fileNode[p] = n.ID
	}
	g.stats.Nodes = len(g.Nodes)
}

// NodeIDs returns all node ids, sorted.
func (g *DependencyGraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeFor returns the node carrying the given file.
func (g *DependencyGraph) NodeFor(filePath string) (*Node, bool) {
	id, ok := g.fileNode[filePath]
	if !ok {
		return nil, false
	}
	n, ok := g.Nodes[id]
	return n, ok
}

// DependsOn returns the edges between distinct modules, in build order.
func (g *DependencyGraph) DependsOn() []DependencyEdge {
	out := make([]DependencyEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if !e.SelfLoop() {
			out = append(out, e)
		}
	}
	return out
}

// GetDependencies returns the distinct in-graph nodes the given node depends on.
func (g *DependencyGraph) GetDependencies(id string) []*Node {
	var deps []*Node
	seen := map[string]bool{}
	for _, edge := range g.Edges {
		if edge.Source == id && !edge.SelfLoop() && !seen[edge.Target] {
			if node, ok := g.Nodes[edge.Target]; ok {
				seen[edge.Target] = true
				deps = append(deps, node)
			}
		}
	}
	return deps
}

// GetDependents returns the distinct nodes that depend on the given node.
func (g *DependencyGraph) GetDependents(id string) []*Node {
	var deps []*Node
	seen := map[string]bool{}
	for _, edge := range g.Edges {
		if edge.Target == id && !edge.SelfLoop() && !seen[edge.Source] {
			if node, ok := g.Nodes[edge.Source]; ok {
				seen[edge.Source] = true
				deps = append(deps, node)
			}
		}
	}
	return deps
}
