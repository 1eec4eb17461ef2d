package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_jobs_dispatched_total",
		Help: "Total number of jobs accepted by the queue broker",
	})
	DispatchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_jobs_dispatch_failures_total",
		Help: "Total number of enqueue attempts rejected because the broker was unavailable",
	})
	JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_jobs_running",
		Help: "Number of jobs whose script is currently executing in this process",
	})
	JobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_jobs_finished_total",
		Help: "Total number of jobs finished by this process, by terminal status and error kind",
	}, []string{"status", "kind"})
	DuplicateDeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_jobs_duplicate_deliveries_total",
		Help: "Total number of deliveries skipped because the job was not QUEUED",
	})
	JobLogWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_job_log_write_failures_total",
		Help: "Total number of job log lines that could not be persisted",
	})
	ScriptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_script_duration_seconds",
		Help:    "Wall-clock duration of script invocations",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
	}, []string{"script"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_http_requests_total",
		Help: "Total number of API requests, by route template, method and status code",
	}, []string{"route", "method", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_runner_http_request_duration_seconds",
		Help:    "API request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

func init() {
	prometheus.MustRegister(
		JobsDispatchedTotal,
		DispatchFailuresTotal,
		JobsRunning,
		JobsFinishedTotal,
		DuplicateDeliveriesTotal,
		JobLogWriteFailuresTotal,
		ScriptDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
