package extractor

import (
	"strings"

	"archdrift/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ScriptVariant selects the grammar a ScriptParser uses by default.
type ScriptVariant string

const (
	VariantJavaScript ScriptVariant = "javascript"
	VariantTypeScript ScriptVariant = "typescript"
	VariantTSX        ScriptVariant = "tsx"
)

// ScriptParser implements LanguageParser for JavaScript, TypeScript, JSX and TSX.
// The structural shape of the four is identical; only the grammar differs,
// and it is picked per file from the extension when one is recognised.
type ScriptParser struct {
	variant ScriptVariant
	rules   bodyRules
}

// NewScriptParser creates a parser for the given variant.
func NewScriptParser(variant ScriptVariant) *ScriptParser {
	return &ScriptParser{
		variant: variant,
		rules: bodyRules{
			decision: scriptDecision,
			compound: typeSet("if_statement", "for_statement", "for_in_statement", "while_statement",
				"do_statement", "try_statement", "switch_statement"),
			scope: typeSet("function_declaration", "function_expression", "function", "arrow_function",
				"generator_function_declaration", "generator_function", "method_definition",
				"class_declaration", "class", "abstract_class_declaration"),
			callee: map[string]string{"call_expression": "function", "new_expression": "constructor"},
			chained: func(parent, child *sitter.Node) bool {
				return parent.Type() == "else_clause" && child.Type() == "if_statement"
			},
		},
	}
}

func scriptDecision(n *sitter.Node) bool {
	switch n.Type() {
	case "if_statement", "for_statement", "for_in_statement", "while_statement",
		"do_statement", "catch_clause", "ternary_expression", "switch_case":
		return true
	case "binary_expression":
		return operatorIn(n, "&&", "||", "??")
	}
	return false
}

func (p *ScriptParser) Language() string {
	if p.variant == VariantTSX {
		return string(VariantTypeScript)
	}
	return string(p.variant)
}

func (p *ScriptParser) Extensions() []string {
	switch p.variant {
	case VariantTypeScript:
		return []string{"ts", "mts", "cts"}
	case VariantTSX:
		return []string{"tsx"}
	default:
		return []string{"js", "jsx", "mjs", "cjs"}
	}
}

// Variant returns the grammar variant this parser was registered for.
func (p *ScriptParser) Variant() ScriptVariant { return p.variant }

func (p *ScriptParser) ParseFile(path string, content []byte) *ir.ParsedFile {
	return parseSource(p, p.grammarFor(path), path, content)
}

func (p *ScriptParser) grammarFor(path string) *sitter.Language {
	variant := p.variant
	switch Extension(path) {
	case "ts", "mts", "cts":
		variant = VariantTypeScript
	case "tsx":
		variant = VariantTSX
	case "js", "jsx", "mjs", "cjs":
		variant = VariantJavaScript
	}
	switch variant {
	case VariantTypeScript:
		return typescript.GetLanguage()
	case VariantTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

func (p *ScriptParser) moduleName(path string) string {
	return ScriptModuleName(path)
}

func (p *ScriptParser) countComments(lines []string) int {
	return countSlashComments(lines)
}

// ExtractImports collects ES module imports and CommonJS require calls.
func (p *ScriptParser) ExtractImports(root *sitter.Node, src []byte) []ir.ImportNode {
	imports := []ir.ImportNode{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			if imp, ok := p.esImport(child, src); ok {
				imports = append(imports, imp)
			}
		case "export_statement":
			// export { x } from "./y"
			if source := child.ChildByFieldName("source"); source != nil {
				imports = append(imports, ir.ImportNode{
					ModuleName: trimQuotes(source.Content(src)),
					Line:       int(child.StartPoint().Row + 1),
				})
			}
		case "lexical_declaration", "variable_declaration":
			imports = append(imports, p.requireImports(child, src)...)
		}
	}
	return imports
}

func (p *ScriptParser) esImport(node *sitter.Node, src []byte) (ir.ImportNode, bool) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return ir.ImportNode{}, false
	}
	imp := ir.ImportNode{
		ModuleName: trimQuotes(source.Content(src)),
		Line:       int(node.StartPoint().Row + 1),
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				imp.Alias = part.Content(src)
			case "namespace_import":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					if id := part.NamedChild(k); id.Type() == "identifier" {
						imp.Alias = id.Content(src)
					}
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if name := spec.ChildByFieldName("name"); name != nil {
						imp.Names = append(imp.Names, name.Content(src))
					}
				}
			}
		}
	}
	return imp, imp.ModuleName != ""
}

// requireImports recognises `const x = require("y")`.
func (p *ScriptParser) requireImports(decl *sitter.Node, src []byte) []ir.ImportNode {
	var out []ir.ImportNode
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		value := d.ChildByFieldName("value")
		if value == nil || value.Type() != "call_expression" {
			continue
		}
		fn := value.ChildByFieldName("function")
		args := value.ChildByFieldName("arguments")
		if fn == nil || args == nil || fn.Content(src) != "require" || args.NamedChildCount() == 0 {
			continue
		}
		arg := args.NamedChild(0)
		if arg.Type() != "string" {
			continue
		}
		imp := ir.ImportNode{
			ModuleName: trimQuotes(arg.Content(src)),
			Line:       int(decl.StartPoint().Row + 1),
		}
		if name := d.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			imp.Alias = name.Content(src)
		}
		out = append(out, imp)
	}
	return out
}

// topLevel yields declarations at module scope, unwrapping export statements.
func topLevel(root *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "export_statement" {
			if decl := child.ChildByFieldName("declaration"); decl != nil {
				out = append(out, decl)
				continue
			}
			for j := 0; j < int(child.NamedChildCount()); j++ {
				out = append(out, child.NamedChild(j))
			}
			continue
		}
		out = append(out, child)
	}
	return out
}

// ExtractClasses returns top-level classes with methods and heritage names.
func (p *ScriptParser) ExtractClasses(root *sitter.Node, src []byte) []ir.ClassNode {
	classes := []ir.ClassNode{}
	for _, n := range topLevel(root) {
		switch n.Type() {
		case "class_declaration", "abstract_class_declaration", "class":
			classes = append(classes, p.class(n, src))
		}
	}
	return classes
}

func (p *ScriptParser) class(node *sitter.Node, src []byte) ir.ClassNode {
	c := ir.ClassNode{
		Methods:     []ir.FunctionNode{},
		BaseClasses: []string{},
		Line:        int(node.StartPoint().Row + 1),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		c.Name = name.Content(src)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if h := node.NamedChild(i); h.Type() == "class_heritage" {
			c.BaseClasses = append(c.BaseClasses, heritageNames(h, src)...)
		}
	}
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			m := body.NamedChild(i)
			if m.Type() != "method_definition" {
				continue
			}
			c.Methods = append(c.Methods, p.function(m, m.ChildByFieldName("name"), src))
		}
	}
	return c
}

func heritageNames(n *sitter.Node, src []byte) []string {
	var names []string
	var visit func(x *sitter.Node)
	visit = func(x *sitter.Node) {
		for i := 0; i < int(x.NamedChildCount()); i++ {
			child := x.NamedChild(i)
			switch child.Type() {
			case "identifier", "type_identifier", "member_expression", "nested_type_identifier":
				names = append(names, child.Content(src))
			case "generic_type":
				if name := child.ChildByFieldName("name"); name != nil {
					names = append(names, name.Content(src))
				}
			case "type_arguments", "arguments":
			default:
				visit(child)
			}
		}
	}
	visit(n)
	return names
}

// ExtractFunctions returns top-level function declarations and functions bound to
// top-level const/let/var names.
func (p *ScriptParser) ExtractFunctions(root *sitter.Node, src []byte) []ir.FunctionNode {
	funcs := []ir.FunctionNode{}
	for _, n := range topLevel(root) {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration":
			funcs = append(funcs, p.function(n, n.ChildByFieldName("name"), src))
		case "lexical_declaration", "variable_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				d := n.NamedChild(i)
				if d.Type() != "variable_declarator" {
					continue
				}
				value := d.ChildByFieldName("value")
				if value == nil {
					continue
				}
				switch value.Type() {
				case "arrow_function", "function_expression", "function", "generator_function":
					funcs = append(funcs, p.function(value, d.ChildByFieldName("name"), src))
				}
			}
		}
	}
	return funcs
}

func (p *ScriptParser) function(node, nameNode *sitter.Node, src []byte) ir.FunctionNode {
	fn := ir.FunctionNode{
		IsAsync:    hasChildType(node, "async"),
		Complexity: p.CalculateComplexity(node),
		Line:       int(node.StartPoint().Row + 1),
	}
	if nameNode != nil {
		fn.Name = strings.TrimSpace(nameNode.Content(src))
	}
	body := node.ChildByFieldName("body")
	if body != nil && body.Type() != "statement_block" {
		// expression-bodied arrow function
		body = node
	}
	fn.NestingDepth = p.rules.nestingDepth(body)
	fn.Calls = p.rules.calls(body, src)
	return fn
}

// CalculateComplexity is 1 plus the decision points of the function body.
// Expression-bodied arrow functions are measured on the expression itself.
func (p *ScriptParser) CalculateComplexity(fn *sitter.Node) int {
	if fn == nil {
		return 1
	}
	body := fn.ChildByFieldName("body")
	if body == nil {
		return 1 + p.rules.countDecisions(fn)
	}
	n := 0
	if p.rules.decision(body) {
		n++
	}
	return 1 + n + p.rules.countDecisions(body)
}
