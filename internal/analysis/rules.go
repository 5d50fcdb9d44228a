package analysis

import (
	"fmt"
	"sort"
	"strings"

	"archdrift/internal/graph"
	"archdrift/internal/ir"
)

// Layer names a architectural layer and the module paths or names it owns.
type Layer struct {
	Name     string
	Prefixes []string
}

// LayerRules describes the intended layering. Layers are listed top to bottom.
// When Allowed is empty a layer may depend only on itself and the layers listed
// after it; otherwise Allowed lists, per layer, the layers it may depend on.
type LayerRules struct {
	Layers  []Layer
	Allowed map[string][]string
}

// LayerOf returns the first layer owning the node, or "".
func (r LayerRules) LayerOf(n *graph.Node) string {
	if n == nil {
		return ""
	}
	for _, l := range r.Layers {
		for _, p := range l.Prefixes {
			if hasPathPrefix(n.Path, p) || hasPathPrefix(n.Name, p) {
				return l.Name
			}
		}
	}
	return ""
}

// hasPathPrefix matches whole path segments, with '/' or '.' separators.
func hasPathPrefix(s, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" || !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return true
	}
	next := s[len(prefix)]
	return next == '/' || next == '.'
}

// Permits reports whether layer from may depend on layer to.
func (r LayerRules) Permits(from, to string) bool {
	if from == "" || to == "" || from == to {
		return true
	}
	if len(r.Allowed) > 0 {
		allowed, ok := r.Allowed[from]
		if !ok {
			return true
		}
		for _, a := range allowed {
			if a == to {
				return true
			}
		}
		return false
	}
	fromIdx, toIdx := -1, -1
	for i, l := range r.Layers {
		if l.Name == from {
			fromIdx = i
		}
		if l.Name == to {
			toIdx = i
		}
	}
	if fromIdx < 0 || toIdx < 0 {
		return true
	}
	return toIdx > fromIdx
}

// DetectLayerViolations reports one violation per module pair whose layers the
// rules forbid. Edges to modules outside the graph are ignored.
func DetectLayerViolations(g *graph.DependencyGraph, rules LayerRules) []Violation {
	if g == nil || len(rules.Layers) == 0 {
		return []Violation{}
	}
	type pair struct{ from, to string }
	found := map[pair]*Violation{}
	var order []pair

	for _, e := range g.DependsOn() {
		src, dst := g.Nodes[e.Source], g.Nodes[e.Target]
		if src == nil || dst == nil {
			continue
		}
		ls, lt := rules.LayerOf(src), rules.LayerOf(dst)
		if rules.Permits(ls, lt) {
			continue
		}
		p := pair{e.Source, e.Target}
		if v, ok := found[p]; ok {
			if e.Type == graph.EdgeImport {
				v.Severity = SeverityHigh
				v.Line = e.Line
			}
			continue
		}
		severity := SeverityMedium
		if e.Type == graph.EdgeImport {
			severity = SeverityHigh
		}
		found[p] = &Violation{
			Type:             TypeLayerViolation,
			Component:        e.Source,
			RelatedComponent: e.Target,
			Message:          fmt.Sprintf("module %s (layer %s) depends on %s (layer %s)", e.Source, ls, e.Target, lt),
			Severity:         severity,
			FilePath:         src.Path,
			Line:             e.Line,
			SuggestedFix:     fmt.Sprintf("move the shared code into a layer %s may depend on, or invert the dependency", ls),
			RuleID:           "layer:" + ls + "->" + lt,
		}
		order = append(order, p)
	}

	out := make([]Violation, 0, len(order))
	for _, p := range order {
		out = append(out, *found[p])
	}
	return out
}

// DetectCycleViolations reports each distinct cycle once, anchored at the
// module that starts its canonical rotation.
func DetectCycleViolations(cycles []Cycle) []Violation {
	seen := map[string]bool{}
	out := []Violation{}
	for _, c := range cycles {
		if len(c.Path) < 2 {
			continue
		}
		ring := c.Path[:len(c.Path)-1]
		canonical := graph.RotateTo(ring, minString(ring))
		key := strings.Join(canonical, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true

		severity := SeverityMedium
		if c.Length == 2 {
			severity = SeverityHigh
		}
		out = append(out, Violation{
			Type:             TypeCircularDependency,
			Component:        canonical[0],
			RelatedComponent: canonical[1],
			Message:          "circular dependency: " + strings.Join(canonical, " -> "),
			Severity:         severity,
			SuggestedFix:     "break the cycle by extracting the shared abstraction into a separate module",
			RuleID:           "cycle",
		})
	}
	return out
}

func minString(s []string) string {
	m := s[0]
	for _, v := range s[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// HotspotThresholds configures DetectHotspots. Zero values disable a check.
type HotspotThresholds struct {
	// Complexity flags functions at or above this cyclomatic complexity.
	Complexity int
	// Instability flags modules at or above this instability...
	Instability float64
	// ...that at least this many modules depend on.
	MinAfferent int
}

// DefaultHotspotThresholds returns the standard hotspot limits.
func DefaultHotspotThresholds() HotspotThresholds {
	return HotspotThresholds{Complexity: 15, Instability: 0.8, MinAfferent: 2}
}

// DetectHotspots flags very complex functions and modules that are both
// unstable and widely depended upon.
func DetectHotspots(files []*ir.ParsedFile, coupling []Coupling, th HotspotThresholds) []Violation {
	out := []Violation{}

	if th.Complexity > 0 {
		sorted := make([]*ir.ParsedFile, 0, len(files))
		for _, f := range files {
			if f != nil {
				sorted = append(sorted, f)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
		for _, f := range sorted {
			for _, fn := range f.Module.AllFunctions() {
				if fn.Complexity < th.Complexity {
					continue
				}
				severity := SeverityMedium
				if fn.Complexity >= 2*th.Complexity {
					severity = SeverityHigh
				}
				out = append(out, Violation{
					Type:             TypeComplexityHotspot,
					Component:        f.Module.Name,
					RelatedComponent: fn.Name,
					Message:          fmt.Sprintf("function %s has cyclomatic complexity %d (limit %d)", fn.Name, fn.Complexity, th.Complexity),
					Severity:         severity,
					FilePath:         f.Path,
					Line:             fn.Line,
					SuggestedFix:     "split the function into smaller units",
					RuleID:           "complexity",
				})
			}
		}
	}

	if th.Instability > 0 {
		for _, c := range coupling {
			if c.Instability < th.Instability || c.Ca < th.MinAfferent {
				continue
			}
			out = append(out, Violation{
				Type:         TypeUnstableModule,
				Component:    c.Module,
				Message:      fmt.Sprintf("module %s is unstable (I=%.2f) but %d modules depend on it", c.Module, c.Instability, c.Ca),
				Severity:     SeverityLow,
				SuggestedFix: "reduce its outgoing dependencies or depend on abstractions",
				RuleID:       "instability",
			})
		}
	}
	return out
}
