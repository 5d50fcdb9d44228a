package report

import (
	"strings"
	"sync"
	"time"
)

// StageMetric records one pipeline stage.
type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type StageHandle struct {
	name    string
	started time.Time
}

// StageLog accumulates stage metrics during a run. Safe for concurrent use.
type StageLog struct {
	mu     sync.Mutex
	stages []StageMetric
	now    func() time.Time
}

func NewStageLog() *StageLog {
	return &StageLog{now: time.Now}
}

func (l *StageLog) Begin(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: l.now().UTC()}
}

// End closes a stage. A non-nil err marks it failed.
func (l *StageLog) End(h StageHandle, counters map[string]float64, err error) time.Duration {
	if l == nil || h.name == "" {
		return 0
	}
	finished := l.now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     "ok",
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
	}
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	l.mu.Lock()
	l.stages = append(l.stages, m)
	l.mu.Unlock()
	return finished.Sub(h.started)
}

// Stages returns a copy of the recorded stages in completion order.
func (l *StageLog) Stages() []StageMetric {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StageMetric(nil), l.stages...)
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
