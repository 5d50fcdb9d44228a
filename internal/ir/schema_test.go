package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleNode_CommentRatio(t *testing.T) {
	t.Run("Regular module", func(t *testing.T) {
		m := ModuleNode{LinesOfCode: 10, CommentLines: 4}
		assert.InDelta(t, 0.4, m.CommentRatio(), 1e-9)
	})

	t.Run("Empty module avoids division by zero", func(t *testing.T) {
		m := ModuleNode{CommentLines: 0}
		assert.Equal(t, 0.0, m.CommentRatio())
	})
}

func TestComputeMetrics(t *testing.T) {
	m := ModuleNode{
		LinesOfCode:  8,
		CommentLines: 2,
		BlankLines:   2,
		Imports:      []ImportNode{{ModuleName: "os"}},
		Functions: []FunctionNode{
			{Name: "a", Complexity: 1},
			{Name: "b", Complexity: 5, NestingDepth: 2},
		},
		Classes: []ClassNode{{
			Name:    "C",
			Methods: []FunctionNode{{Name: "m", Complexity: 3, NestingDepth: 1}},
		}},
	}

	metrics := ComputeMetrics(m, 10)

	assert.Equal(t, 10.0, metrics[MetricLinesTotal])
	assert.Equal(t, 8.0, metrics[MetricLinesOfCode])
	assert.Equal(t, 3.0, metrics[MetricFunctions])
	assert.Equal(t, 1.0, metrics[MetricClasses])
	assert.Equal(t, 1.0, metrics[MetricImports])
	assert.Equal(t, 5.0, metrics[MetricMaxComplexity])
	assert.Equal(t, 2.0, metrics[MetricMaxNestingDepth])
	assert.InDelta(t, 3.0, metrics[MetricAvgComplexity], 1e-9)
	assert.InDelta(t, 0.25, metrics[MetricCommentRatio], 1e-9)
}
