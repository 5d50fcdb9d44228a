package extractor

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps language names and file extensions to parsers.
// It is built once and read-only afterwards, so lookups are safe from any goroutine.
type Registry struct {
	byName map[string]LanguageParser
	byExt  map[string]LanguageParser
	names  []string
}

type registryConfig struct {
	goModulePath string
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryConfig)

// WithGoModulePath passes the go.mod module path to the Go parser.
func WithGoModulePath(modulePath string) RegistryOption {
	return func(c *registryConfig) { c.goModulePath = modulePath }
}

// NewRegistry creates a registry with every supported language registered.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	python := NewPythonParser()
	js := NewScriptParser(VariantJavaScript)
	ts := NewScriptParser(VariantTypeScript)
	tsx := NewScriptParser(VariantTSX)
	golang := NewGoParser(WithModulePath(cfg.goModulePath))

	r := &Registry{
		byName: map[string]LanguageParser{},
		byExt:  map[string]LanguageParser{},
	}
	r.register(python, "python", "py", "python3")
	r.register(js, "javascript", "js", "jsx", "mjs", "cjs", "node")
	r.register(ts, "typescript", "ts", "mts", "cts")
	r.register(tsx, "tsx")
	r.register(golang, "go", "golang")
	return r
}

func (r *Registry) register(p LanguageParser, aliases ...string) {
	for _, a := range aliases {
		r.byName[a] = p
	}
	for _, ext := range p.Extensions() {
		r.byExt[ext] = p
	}
	if _, seen := r.byName[p.Language()]; !seen {
		r.byName[p.Language()] = p
	}
	for _, n := range r.names {
		if n == p.Language() {
			return
		}
	}
	r.names = append(r.names, p.Language())
}

// Resolve looks up a parser by language name, alias, extension or file name.
// Matching is case-insensitive and a leading dot is ignored. It never panics;
// an unknown identifier yields (nil, false).
func (r *Registry) Resolve(identifier string) (LanguageParser, bool) {
	if r == nil {
		return nil, false
	}
	key := strings.ToLower(strings.TrimSpace(identifier))
	key = strings.TrimPrefix(key, ".")
	if key == "" {
		return nil, false
	}
	if p, ok := r.byName[key]; ok {
		return p, true
	}
	if p, ok := r.byExt[key]; ok {
		return p, true
	}
	if ext := Extension(key); ext != "" {
		if p, ok := r.byExt[ext]; ok {
			return p, true
		}
	}
	return nil, false
}

// ResolveFile picks the parser for path, preferring hint when it is given.
func (r *Registry) ResolveFile(path, hint string) (LanguageParser, error) {
	if hint != "" {
		if p, ok := r.Resolve(hint); ok {
			return p, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, hint)
	}
	ext := Extension(path)
	if p, ok := r.Resolve(ext); ok {
		return p, nil
	}
	if ext == "" {
		ext = path
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, ext)
}

// Languages returns the distinct canonical language names, sorted.
func (r *Registry) Languages() []string {
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

// Supported reports whether any parser handles path.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[Extension(path)]
	return ok
}
