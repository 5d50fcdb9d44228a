package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// bodyRules describes how a language's function bodies are measured.
type bodyRules struct {
	// decision reports whether a node is a decision point.
	decision func(n *sitter.Node) bool
	// compound node types raise the nesting depth of their children.
	compound map[string]bool
	// scope node types open a nested definition and are not descended into.
	scope map[string]bool
	// callee maps call node types to the field naming the callee.
	callee map[string]string
	// chained reports a compound child that continues its parent (else-if)
	// and so does not add a nesting level.
	chained func(parent, child *sitter.Node) bool
}

// countDecisions counts decision points local to body.
func (r *bodyRules) countDecisions(body *sitter.Node) int {
	if body == nil {
		return 0
	}
	count := 0
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil || r.scope[child.Type()] {
				continue
			}
			if r.decision(child) {
				count++
			}
			visit(child)
		}
	}
	visit(body)
	return count
}

// nestingDepth is the maximum depth of compound statements within body.
func (r *bodyRules) nestingDepth(body *sitter.Node) int {
	if body == nil {
		return 0
	}
	var depth func(n *sitter.Node) int
	depth = func(n *sitter.Node) int {
		best := 0
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil || r.scope[child.Type()] {
				continue
			}
			d := depth(child)
			if r.compound[child.Type()] && (r.chained == nil || !r.chained(n, child)) {
				d++
			}
			if d > best {
				best = d
			}
		}
		return best
	}
	return depth(body)
}

// calls collects callee names, as written, in source order.
func (r *bodyRules) calls(body *sitter.Node, src []byte) []string {
	out := []string{}
	if body == nil {
		return out
	}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil || r.scope[child.Type()] {
				continue
			}
			if field, ok := r.callee[child.Type()]; ok {
				if fn := child.ChildByFieldName(field); fn != nil {
					if name := calleeText(fn, src); name != "" {
						out = append(out, name)
					}
				}
			}
			visit(child)
		}
	}
	visit(body)
	return out
}

// calleeText normalises a callee expression to a dotted name.
// Call chains and subscripts keep only the trailing attribute path.
func calleeText(n *sitter.Node, src []byte) string {
	text := strings.TrimSpace(n.Content(src))
	if text == "" {
		return ""
	}
	if i := strings.LastIndexAny(text, ")]"); i >= 0 {
		text = strings.TrimLeft(text[i+1:], ".?")
	}
	text = strings.ReplaceAll(text, "?.", ".")
	if strings.ContainsAny(text, " \t\n(") {
		return ""
	}
	return text
}

// operatorIn reports whether the node's operator child is one of ops.
func operatorIn(n *sitter.Node, ops ...string) bool {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	t := op.Type()
	for _, o := range ops {
		if t == o {
			return true
		}
	}
	return false
}

// hasChildType reports whether any direct (anonymous or named) child has type t.
func hasChildType(n *sitter.Node, t string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == t {
			return true
		}
	}
	return false
}

func typeSet(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
