// Package errs defines the typed error taxonomy for the treasury
// authorization and multisig subsystem. Every sentinel below is a locally
// recoverable result that the API layer maps 1:1 onto an HTTP status and a
// stable error code. Nothing in this package is retried automatically;
// retry is a caller-level policy decision.
package errs

import (
	"errors"
	"net/http"
)

var (
	// Authorization / nonce errors
	ErrReplay         = errors.New("authorization nonce already consumed")
	ErrExpired        = errors.New("validity window has passed")
	ErrNotYetValid    = errors.New("validity window has not started")
	ErrDomainMismatch = errors.New("authorization domain does not match expected domain")
	ErrBadSignature   = errors.New("signature does not recover to the authorizing address")
	ErrSignerDeclined = errors.New("signer declined the request")
	ErrSignerTimeout  = errors.New("signer did not respond in time")

	// Transaction lock errors
	ErrAlreadyConsumed   = errors.New("lock already consumed")
	ErrParameterMismatch = errors.New("parameters changed between check and use")

	// Session errors
	ErrBindingConflict = errors.New("session already bound to a different wallet")
	ErrNotBound        = errors.New("session is not bound to a wallet")
	ErrWalletMismatch  = errors.New("session bound to a different wallet identity")
	ErrSessionExpired  = errors.New("session expired")
	ErrQuotaExceeded   = errors.New("session action quota exceeded")

	// Multisig consensus errors
	ErrInvalidTransition = errors.New("illegal transaction status transition")
	ErrThresholdNotMet   = errors.New("confirmation threshold not met")
	ErrUnknownSigner     = errors.New("signer is not registered on the wallet")

	// Dependency graph errors
	ErrUnknownDependency  = errors.New("dependency transaction does not exist")
	ErrDependencyFailed   = errors.New("dependency transaction has failed")
	ErrDependencyNotReady = errors.New("dependency transaction is not confirmed")

	// Payment retry errors
	ErrPaymentRequiredLoop = errors.New("payment still required after proof was attached")
	ErrPaymentDeclined     = errors.New("payment terms declined by caller")
)

// Code returns the stable machine-readable code for a taxonomy error, or
// "INTERNAL_ERROR" for anything outside the taxonomy (including wrapped
// persistence faults, which propagate unmodified).
func Code(err error) string {
	switch {
	case errors.Is(err, ErrReplay):
		return "REPLAY"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrNotYetValid):
		return "NOT_YET_VALID"
	case errors.Is(err, ErrDomainMismatch):
		return "DOMAIN_MISMATCH"
	case errors.Is(err, ErrBadSignature):
		return "BAD_SIGNATURE"
	case errors.Is(err, ErrSignerDeclined):
		return "SIGNER_DECLINED"
	case errors.Is(err, ErrSignerTimeout):
		return "SIGNER_TIMEOUT"
	case errors.Is(err, ErrAlreadyConsumed):
		return "ALREADY_CONSUMED"
	case errors.Is(err, ErrParameterMismatch):
		return "PARAMETER_MISMATCH"
	case errors.Is(err, ErrBindingConflict):
		return "BINDING_CONFLICT"
	case errors.Is(err, ErrNotBound):
		return "SESSION_NOT_BOUND"
	case errors.Is(err, ErrWalletMismatch):
		return "SESSION_WALLET_MISMATCH"
	case errors.Is(err, ErrSessionExpired):
		return "SESSION_EXPIRED"
	case errors.Is(err, ErrQuotaExceeded):
		return "QUOTA_EXCEEDED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrThresholdNotMet):
		return "THRESHOLD_NOT_MET"
	case errors.Is(err, ErrUnknownSigner):
		return "UNKNOWN_SIGNER"
	case errors.Is(err, ErrUnknownDependency):
		return "UNKNOWN_DEPENDENCY"
	case errors.Is(err, ErrDependencyFailed):
		return "DEPENDENCY_FAILED"
	case errors.Is(err, ErrDependencyNotReady):
		return "DEPENDENCY_NOT_READY"
	case errors.Is(err, ErrPaymentRequiredLoop):
		return "PAYMENT_REQUIRED_LOOP"
	case errors.Is(err, ErrPaymentDeclined):
		return "PAYMENT_DECLINED"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps a taxonomy error onto the response status the gin
// handlers use. WalletMismatch deliberately gets 403, not 401: it is a
// session-hijack signal and must stay distinguishable from a plain
// authentication failure.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrReplay),
		errors.Is(err, ErrAlreadyConsumed),
		errors.Is(err, ErrBindingConflict),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrExpired),
		errors.Is(err, ErrNotYetValid),
		errors.Is(err, ErrDomainMismatch),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrParameterMismatch),
		errors.Is(err, ErrUnknownDependency),
		errors.Is(err, ErrDependencyFailed),
		errors.Is(err, ErrDependencyNotReady),
		errors.Is(err, ErrPaymentDeclined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotBound),
		errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrWalletMismatch),
		errors.Is(err, ErrUnknownSigner):
		return http.StatusForbidden
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrThresholdNotMet):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrSignerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrSignerDeclined),
		errors.Is(err, ErrPaymentRequiredLoop):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
