package graph

// Stats returns the counters collected while the graph was built.
func (g *DependencyGraph) Stats() Stats {
	if g == nil {
		return Stats{}
	}
	return g.stats
}

// EdgeCounts returns the number of edges per type.
func (g *DependencyGraph) EdgeCounts() map[EdgeType]int {
	counts := make(map[EdgeType]int)
	if g == nil {
		return counts
	}
	for _, e := range g.Edges {
		counts[e.Type]++
	}
	return counts
}
