package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"archdrift/internal/analysis"
)

var mermaidUnsafe = regexp.MustCompile(`[^a-z0-9_]`)

// CycleDiagram draws the edges taking part in cycles as a mermaid flowchart.
// It returns "" when there are no cycles.
func CycleDiagram(cycles []analysis.Cycle) string {
	type edge struct{ from, to string }
	edges := map[edge]bool{}
	nodes := map[string]bool{}
	for _, c := range cycles {
		for i := 1; i < len(c.Path); i++ {
			edges[edge{c.Path[i-1], c.Path[i]}] = true
			nodes[c.Path[i-1]] = true
		}
	}
	if len(edges) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	ids := make(map[string]string, len(names))
	used := map[string]int{}
	for _, n := range names {
		id := sanitizeMermaidID(n)
		if k := used[id]; k > 0 {
			used[id]++
			id = fmt.Sprintf("%s_%d", id, k)
		} else {
			used[id] = 1
		}
		ids[n] = id
	}

	sorted := make([]edge, 0, len(edges))
	for e := range edges {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].from == sorted[j].from {
			return sorted[i].to < sorted[j].to
		}
		return sorted[i].from < sorted[j].from
	})

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph LR\n")
	for _, n := range names {
		sb.WriteString(fmt.Sprintf("    %s[%q]\n", ids[n], n))
	}
	for _, e := range sorted {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", ids[e.from], ids[e.to]))
	}
	sb.WriteString("```\n")
	return sb.String()
}

func sanitizeMermaidID(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "node"
	}
	v = mermaidUnsafe.ReplaceAllString(strings.ReplaceAll(v, "-", "_"), "_")
	if v[0] >= '0' && v[0] <= '9' {
		v = "n_" + v
	}
	return v
}
