package graph

// EdgeType distinguishes explicit imports from name-matched calls.
type EdgeType string

const (
	EdgeImport EdgeType = "import"
	EdgeCall   EdgeType = "call"
)

// Edge weights: an explicit import couples more strongly than a lexical call match.
const (
	ImportWeight = 1.0
	CallWeight   = 0.5
)

// Weight returns the weight edges of this type carry.
func (t EdgeType) Weight() float64 {
	if t == EdgeImport {
		return ImportWeight
	}
	return CallWeight
}

// Node is one module in the dependency graph.
type Node struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Language  string   `json:"language"`
	Files     []string `json:"files"`
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
}

// DependencyEdge is a directed module-to-module dependency.
// Match is the lexical name that produced the edge (the imported module or the
// called function) and Candidates is how many modules matched that name. A call
// matching several modules yields one edge per module; nothing is deduplicated.
type DependencyEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Type       EdgeType `json:"type"`
	Weight     float64  `json:"weight"`
	Match      string   `json:"match"`
	Candidates int      `json:"candidates"`
	Line       int      `json:"line,omitempty"`
}

// SelfLoop reports whether the edge stays inside one module.
func (e DependencyEdge) SelfLoop() bool { return e.Source == e.Target }

// Stats summarises one Build call.
type Stats struct {
	Nodes            int `json:"nodes"`
	ImportEdges      int `json:"import_edges"`
	CallEdges        int `json:"call_edges"`
	DroppedImports   int `json:"dropped_imports"`
	UnresolvedCalls  int `json:"unresolved_calls"`
	AmbiguousCalls   int `json:"ambiguous_calls"`
	DuplicateModules int `json:"duplicate_modules"`
}

// KnownSymbols seeds name resolution with modules that are not part of the
// current batch, typically loaded from the store for incremental runs.
// Seeded modules are resolution targets only; they do not become nodes.
type KnownSymbols struct {
	// Modules maps a module name to the node ids carrying that name.
	Modules map[string][]string
	// Functions maps a function name to the node ids of modules defining it.
	Functions map[string][]string
}
