package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"archdrift/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupportedLanguage is returned when no parser is registered for a language or file.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// LanguageParser is the capability set every language implementation provides.
// ParseFile never fails: syntax problems are recorded in ParsedFile.Errors.
type LanguageParser interface {
	Language() string
	Extensions() []string
	ParseFile(path string, content []byte) *ir.ParsedFile
	ExtractClasses(root *sitter.Node, src []byte) []ir.ClassNode
	ExtractFunctions(root *sitter.Node, src []byte) []ir.FunctionNode
	ExtractImports(root *sitter.Node, src []byte) []ir.ImportNode
	CalculateComplexity(fn *sitter.Node) int
}

// commentScanner is implemented by parsers that recognise comments.
// Parsers that do not implement it count no comment lines.
type commentScanner interface {
	countComments(lines []string) int
}

// moduleNamer turns a file path into the module name used as a graph node.
type moduleNamer interface {
	moduleName(path string) string
}

// parseSource runs the shared parse flow for any tree-sitter backed parser:
// line accounting, tree construction, error capture and structure extraction.
func parseSource(p LanguageParser, lang *sitter.Language, path string, content []byte) (result *ir.ParsedFile) {
	result = &ir.ParsedFile{
		Path: path,
		Module: ir.ModuleNode{
			Name:      moduleNameFor(p, path),
			Language:  p.Language(),
			Path:      path,
			Imports:   []ir.ImportNode{},
			Classes:   []ir.ClassNode{},
			Functions: []ir.FunctionNode{},
		},
		Errors: []string{},
	}

	lines := splitLines(string(content))
	blank := countBlank(lines)
	result.Module.BlankLines = blank
	result.Module.LinesOfCode = len(lines) - blank
	if cs, ok := p.(commentScanner); ok {
		result.Module.CommentLines = cs.countComments(lines)
	}

	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Syntax error: parser panic: %v", r))
		}
		result.Metrics = ir.ComputeMetrics(result.Module, len(lines))
	}()

	if !utf8.Valid(content) {
		result.Errors = append(result.Errors, "Syntax error: content is not valid UTF-8")
		return result
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Syntax error: %v", err))
		return result
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "Syntax error: empty syntax tree")
		return result
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "Syntax error: "+describeSyntaxError(root))
	}

	result.Module.Imports = nonNil(p.ExtractImports(root, content))
	result.Module.Classes = nonNil(p.ExtractClasses(root, content))
	result.Module.Functions = nonNil(p.ExtractFunctions(root, content))
	return result
}

func moduleNameFor(p LanguageParser, path string) string {
	if n, ok := p.(moduleNamer); ok {
		return n.moduleName(path)
	}
	return TrimExtension(NormalizePath(path))
}

// describeSyntaxError locates the first ERROR or MISSING node in the tree.
func describeSyntaxError(root *sitter.Node) string {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)

	if found == nil {
		return "invalid syntax"
	}
	pos := found.StartPoint()
	if found.IsMissing() {
		return fmt.Sprintf("missing %q at line %d, column %d", found.Type(), pos.Row+1, pos.Column+1)
	}
	return fmt.Sprintf("invalid syntax at line %d, column %d", pos.Row+1, pos.Column+1)
}

// splitLines splits on universal line breaks (\r\n, \r, \n).
// A trailing line break does not produce an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func countBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			n++
		}
	}
	return n
}

// countSlashComments counts // line comments and lines inside /* */ blocks.
func countSlashComments(lines []string) int {
	count := 0
	inBlock := false
	for _, raw := range lines {
		l := strings.TrimSpace(raw)
		if inBlock {
			count++
			if strings.Contains(l, "*/") {
				inBlock = false
			}
			continue
		}
		switch {
		case strings.HasPrefix(l, "//"):
			count++
		case strings.HasPrefix(l, "/*"):
			count++
			if !strings.Contains(l[2:], "*/") {
				inBlock = true
			}
		}
	}
	return count
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
