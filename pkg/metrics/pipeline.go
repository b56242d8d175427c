package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task outcome labels reported by the moderation worker.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeDuplicate  = "duplicate"
	OutcomeRedelivery = "redelivery"
	OutcomeOrphaned   = "orphaned"
	OutcomeDeadLetter = "dead_letter"
)

// PipelineMetrics records moderation pipeline activity.
type PipelineMetrics struct {
	tasks      *prometheus.CounterVec
	scoring    prometheus.Histogram
	deadLetter prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_tasks_total",
		Help: "Moderation task messages by processing outcome.",
	}, []string{"outcome"})
	scoring := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_scoring_duration_seconds",
		Help:    "Latency of scoring collaborator calls.",
		Buckets: prometheus.DefBuckets,
	})
	deadLetter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_dead_letter_total",
		Help: "Messages routed to the dead-letter channel.",
	})
	reg.MustRegister(tasks, scoring, deadLetter)
	return &PipelineMetrics{
		tasks:      tasks,
		scoring:    scoring,
		deadLetter: deadLetter,
	}
}

// IncTask counts one processed task message with the given outcome.
func (p *PipelineMetrics) IncTask(outcome string) {
	if p == nil || p.tasks == nil {
		return
	}
	p.tasks.WithLabelValues(outcome).Inc()
}

// ObserveScoring records the duration of one scoring call.
func (p *PipelineMetrics) ObserveScoring(duration time.Duration) {
	if p == nil || p.scoring == nil {
		return
	}
	p.scoring.Observe(duration.Seconds())
}

// IncDeadLetter counts one message published to the dead-letter channel.
func (p *PipelineMetrics) IncDeadLetter() {
	if p == nil || p.deadLetter == nil {
		return
	}
	p.deadLetter.Inc()
}
