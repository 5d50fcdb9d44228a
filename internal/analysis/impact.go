package analysis

import (
	"sort"

	"archdrift/internal/git"
	"archdrift/internal/graph"
)

// ImpactReport summarizes the modules affected by changes.
type ImpactReport struct {
	DirectlyAffected   []*graph.Node
	IndirectlyAffected []*graph.Node
}

// ModuleIDs returns the ids of every affected module, direct ones first.
func (r *ImpactReport) ModuleIDs() []string {
	ids := make([]string, 0, len(r.DirectlyAffected)+len(r.IndirectlyAffected))
	for _, n := range r.DirectlyAffected {
		ids = append(ids, n.ID)
	}
	for _, n := range r.IndirectlyAffected {
		ids = append(ids, n.ID)
	}
	return ids
}

// Analyzer performs impact analysis on the dependency graph.
type Analyzer struct {
	g *graph.DependencyGraph
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(g *graph.DependencyGraph) *Analyzer {
	return &Analyzer{g: g}
}

// AnalyzeImpact maps changed files to their modules and follows DEPENDS_ON
// backwards to every transitive dependent. Files outside the graph are ignored.
func (a *Analyzer) AnalyzeImpact(changes []git.ChangedFile) *ImpactReport {
	report := &ImpactReport{
		DirectlyAffected:   []*graph.Node{},
		IndirectlyAffected: []*graph.Node{},
	}

	seen := make(map[string]bool)
	for _, change := range changes {
		node, ok := a.g.NodeFor(change.Path)
		if !ok || seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		report.DirectlyAffected = append(report.DirectlyAffected, node)
	}
	sortNodes(report.DirectlyAffected)

	// Breadth-first over dependents.
	queue := append([]*graph.Node(nil), report.DirectlyAffected...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range a.g.GetDependents(current.ID) {
			if seen[dep.ID] {
				continue
			}
			seen[dep.ID] = true
			report.IndirectlyAffected = append(report.IndirectlyAffected, dep)
			queue = append(queue, dep)
		}
	}
	sortNodes(report.IndirectlyAffected)

	return report
}

func sortNodes(nodes []*graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
