// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// One-time code errors
	CodeOTPInvalid      Code = "CODE_INVALID"
	CodeOTPExpired      Code = "CODE_EXPIRED"
	CodeTooManyAttempts Code = "TOO_MANY_ATTEMPTS"

	// Passkey errors
	CodeChallengeExpired Code = "CHALLENGE_EXPIRED"
	CodeCeremonyInvalid  Code = "CEREMONY_INVALID"
	CodeReplayDetected   Code = "REPLAY_DETECTED"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionExpired  Code = "SESSION_EXPIRED"

	// Access and admin errors
	CodeRequestAlreadyPending  Code = "REQUEST_ALREADY_PENDING"
	CodeRequestAlreadyResolved Code = "REQUEST_ALREADY_RESOLVED"
	CodeAlreadyGranted         Code = "ALREADY_GRANTED"
	CodeAccountNotApproved     Code = "ACCOUNT_NOT_APPROVED"
	CodeAccountProtected       Code = "ACCOUNT_PROTECTED"

	// Generic request errors
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
)

// HTTPStatus maps domain codes to HTTP status codes.
//
// Passkey replay maps to the same status as an ordinary verification
// failure so the response carries no oracle; only logs distinguish it.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - verification failures, bad input
	case CodeOTPInvalid,
		CodeOTPExpired,
		CodeTooManyAttempts,
		CodeChallengeExpired,
		CodeCeremonyInvalid,
		CodeReplayDetected,
		CodeAccountProtected,
		CodeInvalidArgument:
		return http.StatusBadRequest

	// Unauthorized - missing or dead session
	case CodeSessionNotFound,
		CodeSessionExpired,
		CodeUnauthenticated:
		return http.StatusUnauthorized

	// Forbidden - authenticated but not allowed
	case CodeAccountNotApproved,
		CodePermissionDenied:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	// Conflict - state already claimed or resolved
	case CodeRequestAlreadyPending,
		CodeRequestAlreadyResolved,
		CodeAlreadyGranted,
		CodeAlreadyExists:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
