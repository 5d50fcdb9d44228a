package analysis

import (
	"time"

	"archdrift/internal/storage"
)

// Severity orders how urgently a violation needs attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps severities to integers; unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// Violation types produced by the rules in this package.
const (
	TypeCircularDependency = "circular_dependency"
	TypeLayerViolation     = "layer_violation"
	TypeComplexityHotspot  = "complexity_hotspot"
	TypeUnstableModule     = "unstable_module"
)

// Violation is one architectural rule breach.
type Violation struct {
	Type             string    `json:"type"`
	Component        string    `json:"component"`
	RelatedComponent string    `json:"related_component,omitempty"`
	Message          string    `json:"message"`
	Severity         Severity  `json:"severity"`
	FilePath         string    `json:"file_path,omitempty"`
	Line             int       `json:"line,omitempty"`
	SuggestedFix     string    `json:"suggested_fix,omitempty"`
	RuleID           string    `json:"rule_id,omitempty"`
	DetectedAt       time.Time `json:"-"`
}

// ToRecord converts a violation to its persisted form.
func (v Violation) ToRecord(projectID string) storage.Violation {
	return storage.Violation{
		ProjectID:    projectID,
		SourceID:     v.Component,
		TargetID:     v.RelatedComponent,
		Type:         v.Type,
		Severity:     string(v.Severity),
		Description:  v.Message,
		RuleID:       v.RuleID,
		FilePath:     v.FilePath,
		Line:         v.Line,
		SuggestedFix: v.SuggestedFix,
		DetectedAt:   v.DetectedAt,
	}
}

// FromRecord converts a persisted violation back.
func FromRecord(r storage.Violation) Violation {
	return Violation{
		Type:             r.Type,
		Component:        r.SourceID,
		RelatedComponent: r.TargetID,
		Message:          r.Description,
		Severity:         Severity(r.Severity),
		FilePath:         r.FilePath,
		Line:             r.Line,
		SuggestedFix:     r.SuggestedFix,
		RuleID:           r.RuleID,
		DetectedAt:       r.DetectedAt,
	}
}

// ToRecords converts a batch for storage.
func ToRecords(projectID string, vs []Violation) []storage.Violation {
	out := make([]storage.Violation, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ToRecord(projectID))
	}
	return out
}
