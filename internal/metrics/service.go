package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mtlprog/kosh/internal/domain"
)

// Namespace prefixes every kosh metric.
const Namespace = "kosh"

// Service holds the pipeline's Prometheus collectors. A nil *Service is
// valid and records nothing.
type Service struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stages        *prometheus.CounterVec
	inflight      prometheus.Gauge
	quotes        *prometheus.CounterVec
	contradicted  prometheus.Counter
	reconcileRuns prometheus.Counter
}

// NewService creates the collectors and registers them with reg.
func NewService(reg prometheus.Registerer) *Service {
	s := &Service{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "pipeline_runs_total",
				Help:      "Finished pipeline runs by flow, network and outcome.",
			},
			[]string{"flow", "network", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "pipeline_run_duration_seconds",
				Help:      "Wall time of finished pipeline runs.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"flow"},
		),
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "pipeline_stage_transitions_total",
				Help:      "Stage transitions reported by pipeline runs.",
			},
			[]string{"flow", "stage"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "pipeline_runs_inflight",
				Help:      "Pipeline runs currently executing.",
			},
		),
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "quote_lookups_total",
				Help:      "Strict-send quote lookups by result.",
			},
			[]string{"result"},
		),
		contradicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "trustline_contradictions_total",
				Help:      "Optimistic trustline statuses the ledger contradicted.",
			},
		),
		reconcileRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "trustline_reconcile_runs_total",
				Help:      "Completed trustline reconcile passes.",
			},
		),
	}
	reg.MustRegister(s.runs, s.runDuration, s.stages, s.inflight, s.quotes, s.contradicted, s.reconcileRuns)
	return s
}

// RunStarted marks a run as in flight.
func (s *Service) RunStarted() {
	if s == nil {
		return
	}
	s.inflight.Inc()
}

// Stage counts a stage transition.
func (s *Service) Stage(flow domain.Flow, stage domain.Stage) {
	if s == nil {
		return
	}
	s.stages.WithLabelValues(string(flow), string(stage)).Inc()
}

// RunFinished records the terminal result of a run.
func (s *Service) RunFinished(r domain.RunResult) {
	if s == nil {
		return
	}
	s.inflight.Dec()
	s.runs.WithLabelValues(string(r.Flow), string(r.Network), Outcome(r)).Inc()
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		s.runDuration.WithLabelValues(string(r.Flow)).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
}

// Quote counts a quote lookup: "found", "no_path" or "error".
func (s *Service) Quote(result string) {
	if s == nil {
		return
	}
	s.quotes.WithLabelValues(result).Inc()
}

// Reconciled records one reconcile pass and the contradictions it found.
func (s *Service) Reconciled(contradicted int) {
	if s == nil {
		return
	}
	s.reconcileRuns.Inc()
	s.contradicted.Add(float64(contradicted))
}

// Outcome labels a run result: "succeeded", "already_trusted" or the error kind.
func Outcome(r domain.RunResult) string {
	switch {
	case r.AlreadyTrusted:
		return "already_trusted"
	case r.Success:
		return "succeeded"
	case r.Error != nil:
		return string(r.Error.Kind)
	default:
		return string(domain.KindInternal)
	}
}

