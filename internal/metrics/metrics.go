package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grading_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_access_decisions_total",
			Help: "Access policy decisions by resource, action and outcome",
		},
		[]string{"resource", "action", "outcome"},
	)

	GuardRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_guard_redirects_total",
			Help: "Route guard redirects by navigation state",
		},
		[]string{"state"},
	)

	SubmissionUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_submission_uploads_total",
			Help: "Submission upload attempts by result",
		},
		[]string{"result"},
	)

	SubmissionUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_submission_upload_bytes",
			Help:    "Size distribution of accepted submission uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_evaluations_total",
			Help: "Evaluation lifecycle transitions",
		},
		[]string{"status"},
	)
)
