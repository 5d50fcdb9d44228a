package ir

// ParsedFile is the language-neutral result of parsing one source file.
// It is produced once per file and must not be mutated after the parser returns it.
type ParsedFile struct {
	Path    string             `json:"path"`
	Module  ModuleNode         `json:"module"`
	Errors  []string           `json:"errors,omitempty"` // Syntax/parse errors, never fatal
	Metrics map[string]float64 `json:"metrics"`
}

// HasErrors reports whether the parser recorded any diagnostics.
func (f *ParsedFile) HasErrors() bool {
	return f != nil && len(f.Errors) > 0
}

// ModuleNode describes one parsed module (file).
type ModuleNode struct {
	Name         string         `json:"name"`
	Language     string         `json:"language"`
	Path         string         `json:"path"`
	Imports      []ImportNode   `json:"imports"`
	Classes      []ClassNode    `json:"classes"`
	Functions    []FunctionNode `json:"functions"`
	LinesOfCode  int            `json:"lines_of_code"` // total - blank
	CommentLines int            `json:"comment_lines"`
	BlankLines   int            `json:"blank_lines"`
}

// CommentRatio is comment_lines / max(lines_of_code, 1).
func (m ModuleNode) CommentRatio() float64 {
	loc := m.LinesOfCode
	if loc < 1 {
		loc = 1
	}
	return float64(m.CommentLines) / float64(loc)
}

// AllFunctions returns top-level functions followed by class methods.
func (m ModuleNode) AllFunctions() []FunctionNode {
	out := make([]FunctionNode, 0, len(m.Functions))
	out = append(out, m.Functions...)
	for _, c := range m.Classes {
		out = append(out, c.Methods...)
	}
	return out
}

// ClassNode is a class (or struct type) with its methods.
// BaseClasses holds names only; nothing is resolved semantically.
type ClassNode struct {
	Name        string         `json:"name"`
	Methods     []FunctionNode `json:"methods"`
	BaseClasses []string       `json:"base_classes"`
	Line        int            `json:"line,omitempty"`
}

// FunctionNode is a function or method body summary.
type FunctionNode struct {
	Name         string   `json:"name"`
	IsAsync      bool     `json:"is_async"`
	Complexity   int      `json:"complexity"`    // >= 1
	NestingDepth int      `json:"nesting_depth"` // >= 0
	Calls        []string `json:"calls"`         // callee names as written
	Line         int      `json:"line,omitempty"`
}

// ImportNode is one imported module. Alias is empty when none was given.
// Names lists symbols pulled from the module by `from x import a, b` style imports.
type ImportNode struct {
	ModuleName string   `json:"module_name"`
	Alias      string   `json:"alias,omitempty"`
	Names      []string `json:"names,omitempty"`
	Line       int      `json:"line,omitempty"`
}

// Metric keys every parser fills in ParsedFile.Metrics.
const (
	MetricLinesTotal      = "lines_total"
	MetricLinesOfCode     = "lines_of_code"
	MetricCommentLines    = "comment_lines"
	MetricBlankLines      = "blank_lines"
	MetricCommentRatio    = "comment_ratio"
	MetricClasses         = "classes"
	MetricFunctions       = "functions"
	MetricImports         = "imports"
	MetricAvgComplexity   = "avg_complexity"
	MetricMaxComplexity   = "max_complexity"
	MetricMaxNestingDepth = "max_nesting_depth"
)
