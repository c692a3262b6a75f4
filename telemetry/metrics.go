/*
metrics.go - Strategy run counters

PURPOSE:
  Counts strategy invocations and their outcomes. The sink is injected
  wherever counting happens so tests can assert on counts without a
  Prometheus registry.
*/
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink receives strategy run outcomes.
type MetricsSink interface {
	// RunStarted counts an invocation of the named strategy.
	RunStarted(strategy string)
	// RunFinished counts a completed invocation with its outcome
	// ("succeeded" or "failed").
	RunFinished(strategy, outcome string)
	// ItemsFiltered counts proposal items dropped by validation.
	ItemsFiltered(strategy string, n int)
}

// =============================================================================
// PROMETHEUS
// =============================================================================

type PrometheusSink struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	filtered *prometheus.CounterVec
}

// NewPrometheusSink registers the counters on the given registerer.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_runs_started_total",
			Help: "Strategy invocations started.",
		}, []string{"strategy"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_runs_finished_total",
			Help: "Strategy invocations finished, by outcome.",
		}, []string{"strategy", "outcome"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_items_filtered_total",
			Help: "Proposal items dropped by daily-cap validation.",
		}, []string{"strategy"}),
	}
	reg.MustRegister(s.started, s.finished, s.filtered)
	return s
}

func (s *PrometheusSink) RunStarted(strategy string) {
	s.started.WithLabelValues(strategy).Inc()
}

func (s *PrometheusSink) RunFinished(strategy, outcome string) {
	s.finished.WithLabelValues(strategy, outcome).Inc()
}

func (s *PrometheusSink) ItemsFiltered(strategy string, n int) {
	s.filtered.WithLabelValues(strategy).Add(float64(n))
}

// =============================================================================
// IN-MEMORY (tests)
// =============================================================================

type MemorySink struct {
	mu       sync.Mutex
	Started  map[string]int
	Finished map[string]int // keyed "strategy/outcome"
	Filtered map[string]int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		Started:  map[string]int{},
		Finished: map[string]int{},
		Filtered: map[string]int{},
	}
}

func (s *MemorySink) RunStarted(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Started[strategy]++
}

func (s *MemorySink) RunFinished(strategy, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finished[strategy+"/"+outcome]++
}

func (s *MemorySink) ItemsFiltered(strategy string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filtered[strategy] += n
}
