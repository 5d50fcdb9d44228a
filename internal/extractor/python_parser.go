package extractor

import (
	"strings"

	"archdrift/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonParser implements LanguageParser for Python.
type PythonParser struct {
	rules bodyRules
}

// NewPythonParser creates a Python parser. It is safe for concurrent use;
// every ParseFile call builds its own tree-sitter parser.
func NewPythonParser() *PythonParser {
	return &PythonParser{rules: bodyRules{
		decision: pythonDecision,
		compound: typeSet("if_statement", "for_statement", "while_statement", "try_statement", "with_statement", "match_statement"),
		scope:    typeSet("function_definition", "class_definition", "decorated_definition", "lambda"),
		callee:   map[string]string{"call": "function"},
	}}
}

func pythonDecision(n *sitter.Node) bool {
	switch n.Type() {
	case "if_statement", "elif_clause", "for_statement", "while_statement",
		"except_clause", "boolean_operator", "conditional_expression",
		"for_in_clause", "if_clause", "case_clause":
		return true
	}
	return false
}

func (p *PythonParser) Language() string { return "python" }

func (p *PythonParser) Extensions() []string { return []string{"py", "pyi"} }

func (p *PythonParser) ParseFile(path string, content []byte) *ir.ParsedFile {
	return parseSource(p, python.GetLanguage(), path, content)
}

func (p *PythonParser) moduleName(path string) string {
	return PythonModuleName(path)
}

// countComments counts lines starting with '#'. Docstrings are code.
func (p *PythonParser) countComments(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#") {
			n++
		}
	}
	return n
}

// ExtractImports handles `import a.b as c` and `from x import y` forms at any depth
// outside nested definitions, so imports guarded by try/if still count.
func (p *PythonParser) ExtractImports(root *sitter.Node, src []byte) []ir.ImportNode {
	imports := []ir.ImportNode{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "import_statement":
				imports = append(imports, p.plainImports(child, src)...)
			case "import_from_statement":
				if imp, ok := p.fromImport(child, src); ok {
					imports = append(imports, imp)
				}
			case "function_definition", "class_definition", "decorated_definition":
			default:
				visit(child)
			}
		}
	}
	visit(root)
	return imports
}

func (p *PythonParser) plainImports(node *sitter.Node, src []byte) []ir.ImportNode {
	var out []ir.ImportNode
	line := int(node.StartPoint().Row + 1)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			out = append(out, ir.ImportNode{ModuleName: child.Content(src), Line: line})
		case "aliased_import":
			imp := ir.ImportNode{Line: line}
			if name := child.ChildByFieldName("name"); name != nil {
				imp.ModuleName = name.Content(src)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = alias.Content(src)
			}
			if imp.ModuleName != "" {
				out = append(out, imp)
			}
		}
	}
	return out
}

func (p *PythonParser) fromImport(node *sitter.Node, src []byte) (ir.ImportNode, bool) {
	mod := node.ChildByFieldName("module_name")
	if mod == nil {
		return ir.ImportNode{}, false
	}
	imp := ir.ImportNode{
		ModuleName: mod.Content(src),
		Line:       int(node.StartPoint().Row + 1),
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == mod.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			imp.Names = append(imp.Names, child.Content(src))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Names = append(imp.Names, name.Content(src))
			}
		}
	}
	return imp, true
}

// ExtractClasses returns top-level classes (decorated or not) with their methods.
func (p *PythonParser) ExtractClasses(root *sitter.Node, src []byte) []ir.ClassNode {
	classes := []ir.ClassNode{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		def := unwrapDecorated(root.NamedChild(i))
		if def == nil || def.Type() != "class_definition" {
			continue
		}
		classes = append(classes, p.class(def, src))
	}
	return classes
}

func (p *PythonParser) class(node *sitter.Node, src []byte) ir.ClassNode {
	c := ir.ClassNode{
		Methods:     []ir.FunctionNode{},
		BaseClasses: []string{},
		Line:        int(node.StartPoint().Row + 1),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		c.Name = name.Content(src)
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			if arg.Type() == "identifier" || arg.Type() == "attribute" {
				c.BaseClasses = append(c.BaseClasses, arg.Content(src))
			}
		}
	}
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			def := unwrapDecorated(body.NamedChild(i))
			if def != nil && def.Type() == "function_definition" {
				c.Methods = append(c.Methods, p.function(def, src))
			}
		}
	}
	return c
}

// ExtractFunctions returns module-level functions; methods live on their class.
func (p *PythonParser) ExtractFunctions(root *sitter.Node, src []byte) []ir.FunctionNode {
	funcs := []ir.FunctionNode{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		def := unwrapDecorated(root.NamedChild(i))
		if def == nil || def.Type() != "function_definition" {
			continue
		}
		funcs = append(funcs, p.function(def, src))
	}
	return funcs
}

func (p *PythonParser) function(node *sitter.Node, src []byte) ir.FunctionNode {
	fn := ir.FunctionNode{
		IsAsync:    hasChildType(node, "async"),
		Complexity: p.CalculateComplexity(node),
		Line:       int(node.StartPoint().Row + 1),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		fn.Name = name.Content(src)
	}
	body := node.ChildByFieldName("body")
	fn.NestingDepth = p.rules.nestingDepth(body)
	fn.Calls = p.rules.calls(body, src)
	return fn
}

// CalculateComplexity is 1 plus the decision points of the function body.
func (p *PythonParser) CalculateComplexity(fn *sitter.Node) int {
	if fn == nil {
		return 1
	}
	body := fn.ChildByFieldName("body")
	if body == nil {
		body = fn
	}
	return 1 + p.rules.countDecisions(body)
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "decorated_definition" {
		return n.ChildByFieldName("definition")
	}
	return n
}
