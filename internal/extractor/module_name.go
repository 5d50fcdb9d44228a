package extractor

import (
	"path"
	"strings"
)

// NormalizePath converts a file path to a clean, slash separated, relative form.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// TrimExtension drops the extension after the last dot of the final path element.
func TrimExtension(p string) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext)
}

// Extension returns the lower-cased extension of p without its dot, or "" if none.
func Extension(p string) string {
	base := path.Base(NormalizePath(p))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// PythonModuleName maps "pkg/sub/mod.py" to "pkg.sub.mod" and "pkg/__init__.py" to "pkg".
func PythonModuleName(p string) string {
	p = TrimExtension(NormalizePath(p))
	p = strings.TrimSuffix(p, "/__init__")
	if p == "__init__" {
		return "__init__"
	}
	return strings.ReplaceAll(p, "/", ".")
}

// ScriptModuleName maps "src/util/index.ts" to "src/util" and "src/a.js" to "src/a".
func ScriptModuleName(p string) string {
	p = TrimExtension(NormalizePath(p))
	if p != "index" {
		p = strings.TrimSuffix(p, "/index")
	}
	return p
}

// GoModuleName maps a Go file to its package path, prefixed with the module path when known.
func GoModuleName(modulePath, p string) string {
	dir := path.Dir(NormalizePath(p))
	switch {
	case modulePath == "":
		return dir
	case dir == ".":
		return modulePath
	default:
		return modulePath + "/" + dir
	}
}
