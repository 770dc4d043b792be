package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_study_generations_total",
			Help: "Total number of suggestion generation runs per energy type",
		},
		[]string{"energy_type"},
	)

	GenerationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_study_generation_duration_seconds",
			Help:    "Suggestion generation duration in seconds per energy type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"energy_type"},
	)

	GenerationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_study_generation_errors_total",
			Help: "Total number of failed generation runs per reason",
		},
		[]string{"reason"},
	)

	SuggestedRatesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_suggested_rates_produced_total",
			Help: "Total number of suggested rates produced per energy type",
		},
		[]string{"energy_type"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_request_errors_total",
			Help: "Total number of error responses per path and code",
		},
		[]string{"path", "code"},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backoffice_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backoffice_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
