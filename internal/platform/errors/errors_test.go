package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeSessionExpired, "session expired")
	other := New(CodeSessionExpired, "different message")

	if !errors.Is(base, other) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(base, New(CodeSessionNotFound, "session expired")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(CodeUnknown, "store failure", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped cause to be matchable")
	}
	if wrapped.Error() != "store failure" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
}

func TestCodeOfUnwrapsChains(t *testing.T) {
	inner := New(CodeReplayDetected, "sign count regression")
	outer := fmt.Errorf("finish authentication: %w", inner)

	if got := CodeOf(outer); got != CodeReplayDetected {
		t.Fatalf("expected replay code, got %s", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code, got %s", got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("expected unknown code for nil, got %s", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeOTPInvalid, http.StatusBadRequest},
		{CodeOTPExpired, http.StatusBadRequest},
		{CodeTooManyAttempts, http.StatusBadRequest},
		{CodeReplayDetected, http.StatusBadRequest},
		{CodeCeremonyInvalid, http.StatusBadRequest},
		{CodeChallengeExpired, http.StatusBadRequest},
		{CodeSessionNotFound, http.StatusUnauthorized},
		{CodeSessionExpired, http.StatusUnauthorized},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeAccountNotApproved, http.StatusForbidden},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeRequestAlreadyPending, http.StatusConflict},
		{CodeRequestAlreadyResolved, http.StatusConflict},
		{CodeAlreadyGranted, http.StatusConflict},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %s: expected %d, got %d", tc.code, tc.want, got)
		}
	}
}
