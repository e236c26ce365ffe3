package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/causas-crawler/internal/progress"
)

// PrometheusSink exports run lifecycle metrics.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	casesFound    prometheus.Counter
	caseResults   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causas_runs_started_total",
			Help: "Crawl-and-persist runs started, by litigant role.",
		}, []string{"role"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causas_runs_completed_total",
			Help: "Crawl-and-persist runs completed, by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "causas_runs_running",
			Help: "Runs currently in flight.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "causas_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		casesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "causas_run_cases_found_total",
			Help: "Cases returned by crawls.",
		}),
		caseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causas_run_case_results_total",
			Help: "Per-case persistence results reported by runs.",
		}, []string{"result"}),
		tracker: &runTracker{running: make(map[[16]byte]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.casesFound,
		s.caseResults,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageLitigantStart:
			s.runsStarted.WithLabelValues(evt.Role).Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageCasesFetched:
			s.casesFound.Add(float64(evt.Count))
		case progress.StageCasePersisted:
			s.caseResults.WithLabelValues("ok").Inc()
		case progress.StageCaseFailed:
			s.caseResults.WithLabelValues("error").Inc()
		case progress.StageLitigantDone:
			s.complete(evt, "success")
		case progress.StageLitigantError:
			s.complete(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
