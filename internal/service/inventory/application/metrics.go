package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deductionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingap_stock_deductions_total",
		Help: "Successful stock deductions recorded in the ledger.",
	})

	reversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingap_stock_reversals_total",
		Help: "Applied stock reversals (idempotent skips excluded).",
	})
)
