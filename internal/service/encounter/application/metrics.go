package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingap_encounter_submissions_total",
		Help: "Encounter submissions by terminal outcome.",
	}, []string{"outcome"})

	insufficientStockTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingap_insufficient_stock_rejections_total",
		Help: "Dispensations rejected because stock was insufficient.",
	})

	compensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingap_compensation_failures_total",
		Help: "Compensation actions that failed and left residue for manual review.",
	})
)
