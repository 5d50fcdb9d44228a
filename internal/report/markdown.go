package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteMarkdown renders the report as a Markdown document.
func (r *DriftReport) WriteMarkdown(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Architecture drift report: %s\n\n", r.ProjectID))
	sb.WriteString(fmt.Sprintf("_Generated %s_\n\n", r.GeneratedAt.Format(time.RFC3339)))

	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	sb.WriteString(fmt.Sprintf("| Modules | %d |\n", s.Modules))
	sb.WriteString(fmt.Sprintf("| Distinct cycles | %d |\n", s.DistinctCycles))
	sb.WriteString(fmt.Sprintf("| Violations | %d |\n", s.Violations))
	sb.WriteString(fmt.Sprintf("| Max instability | %.2f |\n", s.MaxInstability))
	sb.WriteString(fmt.Sprintf("| Highest risk | %d |\n", s.HighestRisk))
	sb.WriteString(fmt.Sprintf("| Files with errors | %d |\n\n", s.FilesWithErrors))

	sb.WriteString("## Violations\n\n")
	if len(r.Violations) == 0 {
		sb.WriteString("No violations.\n\n")
	} else {
		sb.WriteString("| Severity | Type | Component | Related | Message | Location |\n|---|---|---|---|---|---|\n")
		for _, v := range r.Violations {
			loc := v.FilePath
			if loc != "" && v.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, v.Line)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | `%s` | %s | %s | %s |\n",
				v.Severity, v.Type, v.Component, code(v.RelatedComponent), cell(v.Message), cell(loc)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Circular dependencies\n\n")
	if len(r.Cycles) == 0 {
		sb.WriteString("No cycles.\n\n")
	} else {
		sb.WriteString("| Module | Length | Path |\n|---|---|---|\n")
		for _, c := range r.Cycles {
			sb.WriteString(fmt.Sprintf("| `%s` | %d | %s |\n", c.Module, c.Length, cell(strings.Join(c.Path, " → "))))
		}
		sb.WriteString("\n")
		sb.WriteString(CycleDiagram(r.Cycles))
		sb.WriteString("\n")
	}

	sb.WriteString("## Coupling\n\n")
	if len(r.Coupling) == 0 {
		sb.WriteString("No modules.\n\n")
	} else {
		sb.WriteString("| Module | Ce | Ca | Instability |\n|---|---|---|---|\n")
		for _, c := range r.Coupling {
			sb.WriteString(fmt.Sprintf("| `%s` | %d | %d | %.2f |\n", c.Module, c.Ce, c.Ca, c.Instability))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Critical paths\n\n")
	if len(r.CriticalPaths) == 0 {
		sb.WriteString("No functions above the complexity threshold.\n\n")
	} else {
		sb.WriteString("| Function | Module | Complexity | Calls | Risk |\n|---|---|---|---|---|\n")
		for _, p := range r.CriticalPaths {
			sb.WriteString(fmt.Sprintf("| `%s` | `%s` | %d | %d | %d |\n", p.Function, p.Module, p.Complexity, p.CallFrequency, p.Risk))
		}
		sb.WriteString("\n")
	}

	if len(r.Diagnostics) > 0 {
		sb.WriteString("## Parse diagnostics\n\n")
		for _, d := range r.Diagnostics {
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", d.FilePath, strings.Join(d.Errors, "; ")))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func code(s string) string {
	if s == "" {
		return ""
	}
	return "`" + s + "`"
}
