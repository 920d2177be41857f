package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsAppliedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "transactions_applied_total",
			Help:      "Ledger entries persisted, by transaction type.",
		},
		[]string{"type"},
	)

	policyDenialsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "policy_denials_total",
			Help:      "Transactions refused by the limit policy.",
		},
		[]string{"reason"},
	)

	conflictsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "version_conflicts_total",
			Help:      "Saves rejected because another writer persisted first.",
		},
	)

	applyDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wallet",
			Name:      "apply_duration_seconds",
			Help:      "Duration of wallet mutations including persistence.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
