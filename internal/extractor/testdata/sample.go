package sample

import "fmt"

// SchemaVersion tags stored snapshots.
const SchemaVersion = "2"

const (
	// LimitLow is the default warning threshold.
	LimitLow = 10
	// LimitHigh is the default failure threshold.
	LimitHigh = 20
)

// DefaultLayer applies when no prefix matches.
var DefaultLayer = "core"

// Entity carries the shared identifier.
type Entity struct {
	ID string
}

// Module embeds Entity and adds metrics.
type Module struct {
	Entity
	Name, Path string `json:"name"`
	Fanout     int    `json:"fanout"`
}

// Rule checks one module.
type Rule interface {
	fmt.Stringer
	Check(mod *Module, limit int) (bool, error)
	Reset()
}

// Evaluate runs the default rule.
func Evaluate(limit int, name string) bool {
	// delegates to the scorer
	Score("demo")
	return true
}

// Score has no body worth measuring.
func Score(s string) {}

// Describe prints the module.
func (m *Module) Describe(prefix string) {
	fmt.Println(prefix)
	// composite literals are not calls
	_ = Entity{ID: "x"}
	// builtins are recorded like any call
	_ = make([]int, 0)
}
