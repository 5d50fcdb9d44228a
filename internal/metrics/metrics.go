package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "archdrift"

// Collector gathers the counters of one analysis pipeline. Each collector owns
// its registry, so several runs in one process never share state. All methods
// are safe for concurrent use and tolerate a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	filesParsed     *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	unsupported     prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	parseDuration   prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	graphNodes      prometheus.Gauge
	graphEdges      *prometheus.GaugeVec
	droppedImports  prometheus.Gauge
	ambiguousCalls  prometheus.Gauge
	violations      *prometheus.CounterVec
	modulesIngested prometheus.Counter
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "files_total",
			Help: "Files parsed, by language.",
		}, []string{"language"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "files_with_errors_total",
			Help: "Parsed files that carried at least one syntax error, by language.",
		}, []string{"language"}),
		unsupported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parse", Name: "unsupported_files_total",
			Help: "Files skipped because no parser handles their language.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Parse results served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Parse cache lookups that had to parse.",
		}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "parse", Name: "duration_seconds",
			Help:    "Time to parse one file.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "nodes",
			Help: "Modules in the last built graph.",
		}),
		graphEdges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "edges",
			Help: "Edges in the last built graph, by type.",
		}, []string{"type"}),
		droppedImports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "dropped_imports",
			Help: "Imports of the last build that matched no module.",
		}),
		ambiguousCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graph", Name: "ambiguous_calls",
			Help: "Calls of the last build that matched functions in several modules.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analysis", Name: "violations_total",
			Help: "Violations detected, by type and severity.",
		}, []string{"type", "severity"}),
		modulesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "modules_ingested_total",
			Help: "Modules written to the graph store.",
		}),
	}
	c.registry.MustRegister(
		c.filesParsed, c.parseErrors, c.unsupported,
		c.cacheHits, c.cacheMisses,
		c.parseDuration, c.stageDuration,
		c.graphNodes, c.graphEdges, c.droppedImports, c.ambiguousCalls,
		c.violations, c.modulesIngested,
	)
	return c
}

// Registry exposes the collector's registry, e.g. for an HTTP handler or testutil.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) FileParsed(language string, hasErrors bool, d time.Duration) {
	if c == nil {
		return
	}
	c.filesParsed.WithLabelValues(language).Inc()
	if hasErrors {
		c.parseErrors.WithLabelValues(language).Inc()
	}
	c.parseDuration.Observe(d.Seconds())
}

func (c *Collector) FileUnsupported() {
	if c == nil {
		return
	}
	c.unsupported.Inc()
}

func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// StageDone records how long a pipeline stage took.
func (c *Collector) StageDone(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// GraphBuilt records the shape of a freshly built graph.
func (c *Collector) GraphBuilt(nodes, importEdges, callEdges, dropped, ambiguous int) {
	if c == nil {
		return
	}
	c.graphNodes.Set(float64(nodes))
	c.graphEdges.WithLabelValues("import").Set(float64(importEdges))
	c.graphEdges.WithLabelValues("call").Set(float64(callEdges))
	c.droppedImports.Set(float64(dropped))
	c.ambiguousCalls.Set(float64(ambiguous))
}

func (c *Collector) ViolationDetected(kind, severity string) {
	if c == nil {
		return
	}
	c.violations.WithLabelValues(kind, severity).Inc()
}

func (c *Collector) ModulesIngested(n int) {
	if c == nil {
		return
	}
	c.modulesIngested.Add(float64(n))
}

// Snapshot is a plain copy of the collector's values.
type Snapshot struct {
	FilesParsed     int                `json:"files_parsed"`
	FilesWithErrors int                `json:"files_with_errors"`
	Unsupported     int                `json:"unsupported"`
	CacheHits       int                `json:"cache_hits"`
	CacheMisses     int                `json:"cache_misses"`
	GraphNodes      int                `json:"graph_nodes"`
	ImportEdges     int                `json:"import_edges"`
	CallEdges       int                `json:"call_edges"`
	DroppedImports  int                `json:"dropped_imports"`
	AmbiguousCalls  int                `json:"ambiguous_calls"`
	ModulesIngested int                `json:"modules_ingested"`
	Violations      map[string]int     `json:"violations"`
	StageSeconds    map[string]float64 `json:"stage_seconds"`
}

// Snapshot gathers the registry into a Snapshot. Errors from Gather are
// ignored; a nil collector yields a zero snapshot.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{Violations: map[string]int{}, StageSeconds: map[string]float64{}}
	if c == nil {
		return s
	}
	families, _ := c.registry.Gather()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case namespace + "_parse_files_total":
				s.FilesParsed += int(m.GetCounter().GetValue())
			case namespace + "_parse_files_with_errors_total":
				s.FilesWithErrors += int(m.GetCounter().GetValue())
			case namespace + "_parse_unsupported_files_total":
				s.Unsupported = int(m.GetCounter().GetValue())
			case namespace + "_cache_hits_total":
				s.CacheHits = int(m.GetCounter().GetValue())
			case namespace + "_cache_misses_total":
				s.CacheMisses = int(m.GetCounter().GetValue())
			case namespace + "_graph_nodes":
				s.GraphNodes = int(m.GetGauge().GetValue())
			case namespace + "_graph_edges":
				switch label(m, "type") {
				case "import":
					s.ImportEdges = int(m.GetGauge().GetValue())
				case "call":
					s.CallEdges = int(m.GetGauge().GetValue())
				}
			case namespace + "_graph_dropped_imports":
				s.DroppedImports = int(m.GetGauge().GetValue())
			case namespace + "_graph_ambiguous_calls":
				s.AmbiguousCalls = int(m.GetGauge().GetValue())
			case namespace + "_store_modules_ingested_total":
				s.ModulesIngested = int(m.GetCounter().GetValue())
			case namespace + "_analysis_violations_total":
				s.Violations[label(m, "type")] += int(m.GetCounter().GetValue())
			case namespace + "_pipeline_stage_duration_seconds":
				s.StageSeconds[label(m, "stage")] += m.GetHistogram().GetSampleSum()
			}
		}
	}
	return s
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
