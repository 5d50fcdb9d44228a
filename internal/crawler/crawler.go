package crawler

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"archdrift/internal/extractor"
	"archdrift/internal/index"

	"golang.org/x/mod/modfile"
)

// DefaultIgnored lists directory names never descended into.
var DefaultIgnored = []string{".git", ".hg", "vendor", "node_modules", "testdata", "__pycache__", ".venv", "venv", "dist", "build"}

// Crawler scans a directory for source files.
type Crawler struct {
	registry *extractor.Registry
	ignored  []string
	maxBytes int64
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithIgnored adds directory names or slash patterns (matched with path.Match
// against the project-relative path) to skip.
func WithIgnored(patterns ...string) Option {
	return func(c *Crawler) { c.ignored = append(c.ignored, patterns...) }
}

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(c *Crawler) { c.maxBytes = n }
}

// NewCrawler creates a new crawler instance.
func NewCrawler(reg *extractor.Registry, opts ...Option) *Crawler {
	c := &Crawler{
		registry: reg,
		ignored:  append([]string(nil), DefaultIgnored...),
		maxBytes: 2 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect walks root and returns every file some parser supports, with
// project-relative slash paths, in walk (lexical) order.
func (c *Crawler) Collect(root string) ([]index.SourceFile, error) {
	var files []index.SourceFile
	err := c.walk(root, func(rel, abs string) error {
		content, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, index.SourceFile{Path: rel, Content: content})
		return nil
	})
	return files, err
}

// CollectPaths reads only the given project-relative paths, skipping the ones
// that are missing, ignored or unsupported.
func (c *Crawler) CollectPaths(root string, rels []string) ([]index.SourceFile, error) {
	var files []index.SourceFile
	for _, rel := range rels {
		rel = extractor.NormalizePath(rel)
		if c.skipFile(rel) || c.ignoredPath(rel) {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() || c.tooLarge(info.Size()) {
			continue
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, index.SourceFile{Path: rel, Content: content})
	}
	return files, nil
}

// PackageSiblings extends rels with the other Go files in the directory of
// every Go path, since a Go package is one module. Paths of deleted files still
// contribute their directory. The result is sorted and deduplicated.
func (c *Crawler) PackageSiblings(root string, rels []string) []string {
	seen := map[string]bool{}
	dirs := map[string]bool{}
	for _, rel := range rels {
		rel = extractor.NormalizePath(rel)
		seen[rel] = true
		if extractor.Extension(rel) == "go" {
			dirs[path.Dir(rel)] = true
		}
	}
	for dir := range dirs {
		entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
				continue
			}
			seen[path.Join(dir, e.Name())] = true
		}
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Ignored reports whether a project-relative path lies in an ignored location
// or is not a supported source file.
func (c *Crawler) Ignored(rel string) bool {
	rel = extractor.NormalizePath(rel)
	return c.ignoredPath(rel) || c.skipFile(rel)
}

// IgnoredDir reports whether a project-relative directory is skipped.
func (c *Crawler) IgnoredDir(rel string) bool {
	return c.ignoredPath(extractor.NormalizePath(rel))
}

func (c *Crawler) walk(root string, onFile func(rel, abs string) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && c.ignoredPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if c.skipFile(rel) || c.ignoredPath(rel) {
			return nil
		}
		if c.maxBytes > 0 {
			info, err := d.Info()
			if err != nil || c.tooLarge(info.Size()) {
				return nil
			}
		}
		return onFile(rel, p)
	})
}

func (c *Crawler) tooLarge(size int64) bool {
	return c.maxBytes > 0 && size > c.maxBytes
}

func (c *Crawler) skipFile(rel string) bool {
	if !c.registry.Supported(rel) {
		return true
	}
	// Tests do not shape the architecture.
	return strings.HasSuffix(rel, "_test.go")
}

func (c *Crawler) ignoredPath(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, ign := range c.ignored {
		if strings.Contains(ign, "/") || strings.ContainsAny(ign, "*?[") {
			if ok, _ := path.Match(ign, rel); ok {
				return true
			}
			continue
		}
		for _, part := range parts {
			if part == ign {
				return true
			}
		}
	}
	return false
}

// GoModulePath returns the module path declared by root/go.mod, or "" when
// there is none.
func GoModulePath(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}
	mf, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return "", fmt.Errorf("parse go.mod: %w", err)
	}
	if mf.Module == nil {
		return "", nil
	}
	return mf.Module.Mod.Path, nil
}
