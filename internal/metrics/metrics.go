package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Authorization metrics
	// ============================================
	AuthorizationsSigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_authorizations_signed_total",
		Help: "Number of transfer authorizations signed",
	})

	AuthorizationsValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_authorizations_validated_total",
		Help: "Number of transfer authorizations validated successfully",
	})

	AuthorizationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_authorizations_rejected_total",
			Help: "Number of transfer authorizations rejected, by reason code",
		},
		[]string{"reason"},
	)

	SuspiciousWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_authorization_suspicious_windows_total",
		Help: "Number of authorizations flagged for an over-long validity window",
	})

	// ============================================
	// Multisig metrics
	// ============================================
	ProposalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_multisig_proposals_total",
		Help: "Number of multisig transactions proposed",
	})

	ConfirmationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_multisig_confirmations_total",
		Help: "Number of distinct signer confirmations recorded",
	})

	ThresholdReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_multisig_threshold_reached_total",
		Help: "Number of transactions that reached the confirmation threshold",
	})

	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_multisig_executions_total",
			Help: "Number of multisig executions, by result",
		},
		[]string{"result"},
	)

	// ============================================
	// Lock metrics
	// ============================================
	LocksAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_locks_acquired_total",
		Help: "Number of transaction locks acquired",
	})

	LocksConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_locks_consumed_total",
		Help: "Number of transaction locks consumed",
	})

	LockRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_lock_rejections_total",
			Help: "Number of lock consume rejections, by reason code",
		},
		[]string{"reason"},
	)

	// ============================================
	// Session metrics
	// ============================================
	SessionWalletMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_session_wallet_mismatches_total",
		Help: "Number of session verifications rejected for a wallet identity mismatch (hijack signal)",
	})

	SessionQuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_session_quota_rejections_total",
		Help: "Number of session verifications rejected for an exhausted action quota",
	})

	// ============================================
	// GC metrics
	// ============================================
	GCSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_gc_sweeps_total",
		Help: "Number of garbage collection sweeps",
	})

	GCRemovedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_gc_removed_entries_total",
			Help: "Number of entries removed by garbage collection, by table",
		},
		[]string{"table"},
	)

	// ============================================
	// Payment retry metrics
	// ============================================
	PaymentRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_payment_retries_total",
		Help: "Number of requests retried with an attached payment authorization",
	})

	PaymentRetryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treasury_payment_retry_failures_total",
		Help: "Number of requests that still demanded payment after a proof was attached",
	})
)
