package metrics

//
// Metrics definitions
//

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// summaryObjectives returns the quantile objectives for stage summaries.
func summaryObjectives() map[float64]float64 {
	return map[float64]float64{
		0.5:  0.05,
		0.9:  0.01,
		0.99: 0.001,
	}
}

var (
	// FetchTotal counts fetches by outcome ("fetched" or "fallback").
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datalens_fetch_total",
		Help: "Total number of dataset fetches by outcome",
	}, []string{"outcome"})

	// RowsRemoved counts records dropped by the cleaner, by reason.
	RowsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datalens_clean_rows_removed_total",
		Help: "Records removed during cleaning by reason",
	}, []string{"reason"})

	// StageDurationSeconds summarizes the time spent in each pipeline stage.
	StageDurationSeconds = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "datalens_stage_duration_seconds",
		Help:       "Summarizes the time to complete a pipeline stage (in seconds)",
		Objectives: summaryObjectives(),
	}, []string{"stage"})

	// RequestsTotal counts API requests served, by route and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datalens_http_requests_total",
		Help: "Total number of processed API requests",
	}, []string{"route", "code"})

	// RequestsInflight gauges the number of requests currently inflight.
	RequestsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datalens_http_requests_inflight",
		Help: "The number of API requests currently inflight",
	})
)
