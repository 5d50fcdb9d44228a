package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"archdrift/internal/analysis"
	"archdrift/internal/index"
)

// Violation and Severity are shared with the analysis rules.
type (
	Violation = analysis.Violation
	Severity  = analysis.Severity
)

// Inputs are the query outputs a report is assembled from.
type Inputs struct {
	ProjectID           string
	Cycles              []analysis.Cycle
	Coupling            []analysis.Coupling
	CriticalPaths       []analysis.CriticalPath
	NewViolations       []Violation
	PersistedViolations []Violation
	Diagnostics         []index.Diagnostic
	Stages              []StageMetric
	GeneratedAt         time.Time
}

// Summary condenses a report into headline numbers.
type Summary struct {
	Modules         int            `json:"modules"`
	DistinctCycles  int            `json:"distinct_cycles"`
	Violations      int            `json:"violations"`
	BySeverity      map[string]int `json:"by_severity"`
	MaxInstability  float64        `json:"max_instability"`
	HighestRisk     int            `json:"highest_risk"`
	FilesWithErrors int            `json:"files_with_errors"`
}

// DriftReport is the result of one analysis run.
type DriftReport struct {
	ProjectID     string                  `json:"project_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Cycles        []analysis.Cycle        `json:"cycles"`
	Coupling      []analysis.Coupling     `json:"coupling"`
	CriticalPaths []analysis.CriticalPath `json:"critical_paths"`
	Violations    []Violation             `json:"violations"`
	Diagnostics   []index.Diagnostic      `json:"diagnostics,omitempty"`
	Stages        []StageMetric           `json:"stages,omitempty"`
	Summary       Summary                 `json:"summary"`
}

// Assemble packages query outputs into a report. It only aggregates: the same
// inputs always yield the same report.
func Assemble(in Inputs) *DriftReport {
	r := &DriftReport{
		ProjectID:     in.ProjectID,
		GeneratedAt:   in.GeneratedAt.UTC(),
		Cycles:        nonNil(in.Cycles),
		Coupling:      nonNil(in.Coupling),
		CriticalPaths: nonNil(in.CriticalPaths),
		Violations:    MergeViolations(in.NewViolations, in.PersistedViolations),
		Diagnostics:   in.Diagnostics,
		Stages:        in.Stages,
	}
	r.Summary = summarize(r)
	return r
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// MergeViolations joins fresh and persisted violations. Duplicates by type,
// components and rule collapse to the first seen, fresh ones first. The result
// is ordered by severity desc, then type, component, related component and rule.
func MergeViolations(fresh, persisted []Violation) []Violation {
	type key struct{ typ, component, related, rule string }
	seen := map[key]bool{}
	out := []Violation{}
	for _, list := range [][]Violation{fresh, persisted} {
		for _, v := range list {
			k := key{v.Type, v.Component, v.RelatedComponent, v.RuleID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		if a.RelatedComponent != b.RelatedComponent {
			return a.RelatedComponent < b.RelatedComponent
		}
		return a.RuleID < b.RuleID
	})
	return out
}

func summarize(r *DriftReport) Summary {
	s := Summary{
		Modules:    len(r.Coupling),
		Violations: len(r.Violations),
		BySeverity: map[string]int{},
	}
	distinct := map[string]bool{}
	for _, c := range r.Cycles {
		if len(c.Path) < 2 {
			continue
		}
		ring := c.Path[:len(c.Path)-1]
		start := 0
		for i := range ring {
			if ring[i] < ring[start] {
				start = i
			}
		}
		canonical := append(append([]string(nil), ring[start:]...), ring[:start]...)
		distinct[strings.Join(canonical, "\x00")] = true
	}
	s.DistinctCycles = len(distinct)
	for _, v := range r.Violations {
		s.BySeverity[string(v.Severity)]++
	}
	for _, c := range r.Coupling {
		if c.Instability > s.MaxInstability {
			s.MaxInstability = c.Instability
		}
	}
	for _, p := range r.CriticalPaths {
		if p.Risk > s.HighestRisk {
			s.HighestRisk = p.Risk
		}
	}
	s.FilesWithErrors = len(r.Diagnostics)
	return s
}

// WriteJSON encodes the report as indented JSON.
func (r *DriftReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Save writes the report to path, as Markdown when the extension is .md and
// JSON otherwise.
func (r *DriftReport) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".md") {
		return r.WriteMarkdown(f)
	}
	return r.WriteJSON(f)
}
