package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archdrift/internal/analysis"
	"archdrift/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInputs() Inputs {
	return Inputs{
		ProjectID: "p1",
		Cycles: []analysis.Cycle{
			{Module: "a", Path: []string{"a", "b", "a"}, Length: 2},
			{Module: "b", Path: []string{"b", "a", "b"}, Length: 2},
		},
		Coupling: []analysis.Coupling{
			{Module: "a", Ce: 1, Ca: 1, Instability: 0.5},
			{Module: "b", Ce: 1, Ca: 1, Instability: 0.5},
			{Module: "c", Ce: 0, Ca: 0, Instability: 0},
		},
		CriticalPaths: []analysis.CriticalPath{{Function: "heavy", Module: "c", Complexity: 12, CallFrequency: 2, Risk: 24}},
		NewViolations: []Violation{
			{Type: analysis.TypeLayerViolation, Component: "b", RelatedComponent: "a", Message: "fresh", Severity: analysis.SeverityMedium, RuleID: "layer:data->api"},
			{Type: analysis.TypeCircularDependency, Component: "a", RelatedComponent: "b", Message: "circular dependency: a -> b -> a", Severity: analysis.SeverityHigh, RuleID: "cycle"},
		},
		PersistedViolations: []Violation{
			{Type: analysis.TypeCircularDependency, Component: "a", RelatedComponent: "b", Message: "old copy", Severity: analysis.SeverityHigh, RuleID: "cycle"},
			{Type: analysis.TypeComplexityHotspot, Component: "c", RelatedComponent: "heavy", Message: "hot", Severity: analysis.SeverityCritical, RuleID: "complexity"},
			{Type: analysis.TypeComplexityHotspot, Component: "c", RelatedComponent: "light", Message: "warm", Severity: analysis.SeverityLow, RuleID: "complexity"},
		},
		Diagnostics: []index.Diagnostic{{FilePath: "x.rb", Errors: []string{"Unsupported language: rb"}}},
		GeneratedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestMergeViolations(t *testing.T) {
	in := sampleInputs()
	got := MergeViolations(in.NewViolations, in.PersistedViolations)
	require.Len(t, got, 4)

	assert.Equal(t, analysis.SeverityCritical, got[0].Severity)
	assert.Equal(t, analysis.TypeCircularDependency, got[1].Type)
	assert.Equal(t, "circular dependency: a -> b -> a", got[1].Message, "fresh copy wins")
	assert.Equal(t, analysis.SeverityMedium, got[2].Severity)
	assert.Equal(t, analysis.SeverityLow, got[3].Severity)
}

func TestMergeViolations_Empty(t *testing.T) {
	got := MergeViolations(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAssemble(t *testing.T) {
	r := Assemble(sampleInputs())

	assert.Equal(t, "p1", r.ProjectID)
	assert.Equal(t, Summary{
		Modules:         3,
		DistinctCycles:  1,
		Violations:      4,
		BySeverity:      map[string]int{"critical": 1, "high": 1, "medium": 1, "low": 1},
		MaxInstability:  0.5,
		HighestRisk:     24,
		FilesWithErrors: 1,
	}, r.Summary)
}

func TestAssemble_Deterministic(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, Assemble(sampleInputs()).WriteJSON(&first))
	require.NoError(t, Assemble(sampleInputs()).WriteJSON(&second))
	assert.Equal(t, first.String(), second.String())
}

func TestAssemble_EmptyListsEncodeAsArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(Inputs{ProjectID: "p"}).WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, key := range []string{"cycles", "coupling", "critical_paths", "violations"} {
		assert.Equal(t, []any{}, decoded[key], key)
	}
	assert.NotContains(t, decoded, "diagnostics")
}

func TestWriteJSON_ViolationShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(sampleInputs()).WriteJSON(&buf))

	var decoded struct {
		Violations []map[string]any `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.NotEmpty(t, decoded.Violations)
	v := decoded.Violations[0]
	assert.Equal(t, "complexity_hotspot", v["type"])
	assert.Equal(t, "c", v["component"])
	assert.Equal(t, "heavy", v["related_component"])
	assert.Equal(t, "critical", v["severity"])
	assert.Equal(t, "complexity", v["rule_id"])
	assert.NotContains(t, v, "file_path")
	assert.NotContains(t, v, "line")
	assert.NotContains(t, v, "suggested_fix")
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Assemble(sampleInputs()).WriteMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "# Architecture drift report: p1")
	assert.Contains(t, out, "| Distinct cycles | 1 |")
	assert.Contains(t, out, "```mermaid\ngraph LR\n")
	assert.Contains(t, out, "    a --> b\n")
	assert.Contains(t, out, "    b --> a\n")
	assert.Contains(t, out, "| `heavy` | `c` | 12 | 2 | 24 |")
	assert.Contains(t, out, "- `x.rb`: Unsupported language: rb")
}

func TestCycleDiagram(t *testing.T) {
	assert.Equal(t, "", CycleDiagram(nil))

	got := CycleDiagram([]analysis.Cycle{{Module: "pkg/a-b", Path: []string{"pkg/a-b", "9lives", "pkg/a-b"}, Length: 2}})
	assert.Equal(t, "```mermaid\ngraph LR\n"+
		"    n_9lives[\"9lives\"]\n"+
		"    pkg_a_b[\"pkg/a-b\"]\n"+
		"    n_9lives --> pkg_a_b\n"+
		"    pkg_a_b --> n_9lives\n"+
		"```\n", got)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	r := Assemble(sampleInputs())

	require.NoError(t, r.Save(filepath.Join(dir, "out", "report.md")))
	md, err := os.ReadFile(filepath.Join(dir, "out", "report.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Architecture drift report"))

	require.NoError(t, r.Save(filepath.Join(dir, "report.json")))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
}

func TestStageLog(t *testing.T) {
	log := NewStageLog()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log.now = func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}

	h := log.Begin("parse")
	d := log.End(h, map[string]float64{"files": 3, " ": 1}, nil)
	assert.Equal(t, 250*time.Millisecond, d)

	log.End(log.Begin("store"), nil, errors.New("store unavailable"))

	stages := log.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "ok", stages[0].Status)
	assert.Equal(t, int64(250), stages[0].DurationMS)
	assert.Equal(t, map[string]float64{"files": 3}, stages[0].Counters)
	assert.Equal(t, "error", stages[1].Status)
	assert.Equal(t, "store unavailable", stages[1].Error)
}
