package observability

import (
	"sync"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// ErrorRegistry counts failures per category for the lifetime of the process.
// Every category is present from construction with a zero count.
type ErrorRegistry struct {
	mu      sync.Mutex
	counts  map[reliability.Category]int
	metrics *Metrics
}

func NewErrorRegistry(metrics *Metrics) *ErrorRegistry {
	counts := make(map[reliability.Category]int, len(reliability.Categories))
	for _, c := range reliability.Categories {
		counts[c] = 0
	}
	return &ErrorRegistry{counts: counts, metrics: metrics}
}

// Record counts one failure observed at stage.
func (r *ErrorRegistry) Record(stage string, c reliability.Category) {
	r.mu.Lock()
	r.counts[c]++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PipelineErrors.WithLabelValues(stage, string(c)).Inc()
	}
}

// Snapshot copies the counters keyed by wire category name.
func (r *ErrorRegistry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for c, n := range r.counts {
		out[string(c)] = n
	}
	return out
}
