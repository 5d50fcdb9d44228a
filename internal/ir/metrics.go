package ir

// ComputeMetrics derives the aggregate metric map for a module.
// totalLines is the raw line count before blank lines are removed.
func ComputeMetrics(m ModuleNode, totalLines int) map[string]float64 {
	funcs := m.AllFunctions()

	maxComplexity, maxDepth, sum := 0, 0, 0
	for _, fn := range funcs {
		sum += fn.Complexity
		if fn.Complexity > maxComplexity {
			maxComplexity = fn.Complexity
		}
		if fn.NestingDepth > maxDepth {
			maxDepth = fn.NestingDepth
		}
	}

	avg := 0.0
	if len(funcs) > 0 {
		avg = float64(sum) / float64(len(funcs))
	}

	return map[string]float64{
		MetricLinesTotal:      float64(totalLines),
		MetricLinesOfCode:     float64(m.LinesOfCode),
		MetricCommentLines:    float64(m.CommentLines),
		MetricBlankLines:      float64(m.BlankLines),
		MetricCommentRatio:    m.CommentRatio(),
		MetricClasses:         float64(len(m.Classes)),
		MetricFunctions:       float64(len(funcs)),
		MetricImports:         float64(len(m.Imports)),
		MetricAvgComplexity:   avg,
		MetricMaxComplexity:   float64(maxComplexity),
		MetricMaxNestingDepth: float64(maxDepth),
	}
}
