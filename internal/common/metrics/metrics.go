package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_applications_submitted_total",
			Help: "Submissions by outcome (created, duplicate, invalid)",
		},
		[]string{"outcome"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_status_transitions_total",
			Help: "Committed status transitions",
		},
		[]string{"from", "to", "actor"},
	)

	RiskBands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_risk_assessments_total",
			Help: "Risk assessments by band",
		},
		[]string{"band"},
	)

	GateSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_risk_gate_suppressions_total",
			Help: "Rule actions replaced by manual review",
		},
		[]string{"action", "band"},
	)

	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_rule_matches_total",
			Help: "Automation rule matches by action kind",
		},
		[]string{"kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_notifications_total",
			Help: "Notification attempts by kind, channel and result",
		},
		[]string{"kind", "channel", "result"},
	)

	ReminderRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loan_reminder_run_duration_seconds",
			Help:    "Duration of a reminder scheduler run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_reminders_total",
			Help: "Reminder log rows written by type",
		},
		[]string{"type"},
	)

	ReminderRunsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_reminder_runs_skipped_total",
			Help: "Reminder runs skipped because another run was in progress",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_api_requests_total",
			Help: "Admin API requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loan_api_request_duration_seconds",
			Help: "Admin API request latency",
		},
		[]string{"method", "route"},
	)
)
