package extractor

import (
	"strings"

	"archdrift/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// GoParser implements LanguageParser for Go. A file's module is its package
// directory, so every file of a package contributes to the same graph node.
type GoParser struct {
	modulePath string
	rules      bodyRules
}

// GoOption configures a GoParser.
type GoOption func(*GoParser)

// WithModulePath prefixes package directories with the module path from go.mod,
// so that package nodes match the import paths other files use.
func WithModulePath(modulePath string) GoOption {
	return func(g *GoParser) { g.modulePath = strings.TrimSuffix(modulePath, "/") }
}

func NewGoParser(opts ...GoOption) *GoParser {
	g := &GoParser{rules: bodyRules{
		decision: goDecision,
		compound: typeSet("if_statement", "for_statement", "expression_switch_statement",
			"type_switch_statement", "select_statement"),
		scope:  typeSet("func_literal"),
		callee: map[string]string{"call_expression": "function"},
		chained: func(parent, child *sitter.Node) bool {
			return parent.Type() == "if_statement" && child.Type() == "if_statement"
		},
	}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func goDecision(n *sitter.Node) bool {
	switch n.Type() {
	case "if_statement", "for_statement", "expression_case", "type_case", "communication_case":
		return true
	case "binary_expression":
		return operatorIn(n, "&&", "||")
	}
	return false
}

func (g *GoParser) Language() string { return "go" }

func (g *GoParser) Extensions() []string { return []string{"go"} }

// ModulePath returns the configured module path, or "" when none was set.
func (g *GoParser) ModulePath() string { return g.modulePath }

func (g *GoParser) ParseFile(path string, content []byte) *ir.ParsedFile {
	return parseSource(g, golang.GetLanguage(), path, content)
}

func (g *GoParser) moduleName(path string) string {
	return GoModuleName(g.modulePath, path)
}

func (g *GoParser) countComments(lines []string) int {
	return countSlashComments(lines)
}

// ExtractImports reads single and grouped import declarations.
// Blank and dot imports keep "_" or "." as their alias.
func (g *GoParser) ExtractImports(root *sitter.Node, src []byte) []ir.ImportNode {
	imports := []ir.ImportNode{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "import_declaration", "import_spec_list":
				visit(child)
			case "import_spec":
				pathNode := child.ChildByFieldName("path")
				if pathNode == nil {
					continue
				}
				imp := ir.ImportNode{
					ModuleName: trimQuotes(pathNode.Content(src)),
					Line:       int(child.StartPoint().Row + 1),
				}
				if name := child.ChildByFieldName("name"); name != nil {
					imp.Alias = name.Content(src)
				}
				imports = append(imports, imp)
			}
		}
	}
	visit(root)
	return imports
}

// ExtractClasses treats struct and interface types as classes. Embedded fields and
// embedded interfaces become base classes; methods attach to their receiver type.
// Methods whose receiver type is declared in another file get a class of their own.
func (g *GoParser) ExtractClasses(root *sitter.Node, src []byte) []ir.ClassNode {
	classes := []ir.ClassNode{}
	index := map[string]int{}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "type_declaration" {
			continue
		}
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			spec := decl.NamedChild(j)
			if spec.Type() != "type_spec" {
				continue
			}
			nameNode := spec.ChildByFieldName("name")
			typeNode := spec.ChildByFieldName("type")
			if nameNode == nil || typeNode == nil {
				continue
			}
			var bases []string
			switch typeNode.Type() {
			case "struct_type":
				bases = g.embeddedFields(typeNode, src)
			case "interface_type":
				bases = g.embeddedInterfaces(typeNode, src)
			default:
				continue
			}
			name := nameNode.Content(src)
			index[name] = len(classes)
			classes = append(classes, ir.ClassNode{
				Name:        name,
				Methods:     []ir.FunctionNode{},
				BaseClasses: nonNil(bases),
				Line:        int(spec.StartPoint().Row + 1),
			})
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "method_declaration" {
			continue
		}
		recv := receiverType(decl, src)
		if recv == "" {
			continue
		}
		pos, ok := index[recv]
		if !ok {
			pos = len(classes)
			index[recv] = pos
			classes = append(classes, ir.ClassNode{
				Name:        recv,
				Methods:     []ir.FunctionNode{},
				BaseClasses: []string{},
				Line:        int(decl.StartPoint().Row + 1),
			})
		}
		classes[pos].Methods = append(classes[pos].Methods, g.function(decl, src))
	}
	return classes
}

func (g *GoParser) embeddedFields(structNode *sitter.Node, src []byte) []string {
	var bases []string
	var fieldList *sitter.Node
	for i := 0; i < int(structNode.NamedChildCount()); i++ {
		if child := structNode.NamedChild(i); child.Type() == "field_declaration_list" {
			fieldList = child
			break
		}
	}
	if fieldList == nil {
		return bases
	}
	for i := 0; i < int(fieldList.NamedChildCount()); i++ {
		field := fieldList.NamedChild(i)
		if field.Type() != "field_declaration" || field.ChildByFieldName("name") != nil {
			continue
		}
		if typeNode := field.ChildByFieldName("type"); typeNode != nil {
			bases = append(bases, strings.TrimPrefix(typeNode.Content(src), "*"))
		}
	}
	return bases
}

func (g *GoParser) embeddedInterfaces(ifaceNode *sitter.Node, src []byte) []string {
	var bases []string
	for i := 0; i < int(ifaceNode.NamedChildCount()); i++ {
		child := ifaceNode.NamedChild(i)
		switch child.Type() {
		case "type_elem", "constraint_elem":
			text := strings.TrimSpace(child.Content(src))
			// union and approximation constraints are not embeddings
			if text != "" && !strings.ContainsAny(text, "|~") {
				bases = append(bases, text)
			}
		case "type_identifier", "qualified_type":
			bases = append(bases, child.Content(src))
		}
	}
	return bases
}

// receiverType returns the bare receiver type name: "(s *Store[T])" yields "Store".
func receiverType(method *sitter.Node, src []byte) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		name := strings.TrimPrefix(strings.TrimSpace(typeNode.Content(src)), "*")
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		return name
	}
	return ""
}

// ExtractFunctions returns package-level functions. Methods are reported on their class.
func (g *GoParser) ExtractFunctions(root *sitter.Node, src []byte) []ir.FunctionNode {
	funcs := []ir.FunctionNode{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() == "function_declaration" {
			funcs = append(funcs, g.function(decl, src))
		}
	}
	return funcs
}

func (g *GoParser) function(node *sitter.Node, src []byte) ir.FunctionNode {
	fn := ir.FunctionNode{
		Complexity: g.CalculateComplexity(node),
		Line:       int(node.StartPoint().Row + 1),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		fn.Name = name.Content(src)
	}
	body := node.ChildByFieldName("body")
	fn.NestingDepth = g.rules.nestingDepth(body)
	fn.Calls = g.rules.calls(body, src)
	return fn
}

// CalculateComplexity is 1 plus the decision points of the function body.
// Function literals are separate scopes and are not counted.
func (g *GoParser) CalculateComplexity(fn *sitter.Node) int {
	if fn == nil {
		return 1
	}
	body := fn.ChildByFieldName("body")
	if body == nil {
		body = fn
	}
	return 1 + g.rules.countDecisions(body)
}
