// Package metrics defines the Prometheus counters for the authentication pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secure_wallet"

var (
	// LoginAttemptsTotal by outcome: success, invalid, locked, blocked, mfa_required.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	AccountLockoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_lockouts_total",
			Help:      "Accounts flipped to DISABLED, by reason.",
		},
		[]string{"reason"},
	)

	AnomalyScorerFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomaly_scorer_fallbacks_total",
			Help:      "Logins scored with the default assessment, by reason.",
		},
		[]string{"reason"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		},
	)
)
