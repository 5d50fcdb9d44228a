package graph

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// gonumGraph holds the gonum representation and the id mappings.
type gonumGraph struct {
	directed   *simple.DirectedGraph
	nodeIDToID map[string]int64
	idToNodeID map[int64]string
}

// toGonum converts module edges to a gonum directed graph. Self loops and
// parallel edges collapse, since simple graphs support neither.
func toGonum(edges []DependencyEdge) *gonumGraph {
	g := &gonumGraph{
		directed:   simple.NewDirectedGraph(),
		nodeIDToID: make(map[string]int64),
		idToNodeID: make(map[int64]string),
	}

	names := map[string]bool{}
	for _, e := range edges {
		names[e.Source] = true
		names[e.Target] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	for i, n := range sorted {
		id := int64(i)
		g.nodeIDToID[n] = id
		g.idToNodeID[id] = n
		g.directed.AddNode(simple.Node(id))
	}

	for _, e := range edges {
		if e.SelfLoop() {
			continue
		}
		from, to := g.nodeIDToID[e.Source], g.nodeIDToID[e.Target]
		if !g.directed.HasEdgeFromTo(from, to) {
			g.directed.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}
	return g
}

// ElementaryCycles returns every elementary cycle among distinct modules.
// Each cycle is rotated to start at its smallest id and is not closed (the
// first node is not repeated). Cycles are sorted by length desc, then lexically.
func ElementaryCycles(edges []DependencyEdge) [][]string {
	g := toGonum(edges)
	var cycles [][]string
	for _, c := range topo.DirectedCyclesIn(g.directed) {
		if len(c) > 1 && c[0].ID() == c[len(c)-1].ID() {
			c = c[:len(c)-1]
		}
		if len(c) < 2 {
			continue
		}
		ids := make([]string, len(c))
		for i, n := range c {
			ids[i] = g.idToNodeID[n.ID()]
		}
		cycles = append(cycles, rotateToMin(ids))
	}
	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) > len(cycles[j])
		}
		return strings.Join(cycles[i], "\x00") < strings.Join(cycles[j], "\x00")
	})
	return cycles
}

func rotateToMin(ids []string) []string {
	min := 0
	for i := range ids {
		if ids[i] < ids[min] {
			min = i
		}
	}
	out := make([]string, 0, len(ids))
	out = append(out, ids[min:]...)
	return append(out, ids[:min]...)
}

// RotateTo returns the cycle starting at id, closed by repeating id at the end.
func RotateTo(cycle []string, id string) []string {
	for i, n := range cycle {
		if n != id {
			continue
		}
		out := make([]string, 0, len(cycle)+1)
		out = append(out, cycle[i:]...)
		out = append(out, cycle[:i]...)
		return append(out, id)
	}
	return nil
}
