// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callqa_jobs_submitted_total",
		Help: "Transcription jobs accepted for processing.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callqa_jobs_completed_total",
		Help: "Transcription jobs that reached the completed state.",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callqa_jobs_failed_total",
		Help: "Transcription jobs that reached the error state, by error kind.",
	}, []string{"kind"})

	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callqa_poll_ticks_total",
		Help: "Polling loop scans over processing jobs.",
	})

	EvaluationParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callqa_evaluation_parse_failures_total",
		Help: "Model replies that could not be coerced into the evaluation schema.",
	})

	EvaluationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callqa_evaluations_recorded_total",
		Help: "Evaluation results persisted, including degraded ones.",
	})

	BatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callqa_batch_items_total",
		Help: "Batch submission items, by outcome.",
	}, []string{"outcome"})

	TranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callqa_transcription_duration_seconds",
		Help:    "Wall time from submission to terminal job state.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
