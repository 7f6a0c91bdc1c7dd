package httpapi

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/storage"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(original) })
	return &buf
}

func TestWriteErrorMasksReplay(t *testing.T) {
	logged := captureLog(t)
	recorder := httptest.NewRecorder()

	writeError(recorder, apperrors.New(apperrors.CodeReplayDetected, "credential clone detected"))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body errorResponse
	decodeBody(t, recorder, &body)
	if body.Error.Code != string(apperrors.CodeCeremonyInvalid) {
		t.Fatalf("body code = %q, must read as an ordinary ceremony failure", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "clone") || strings.Contains(body.Error.Message, "replay") {
		t.Fatalf("body message leaks the detection: %q", body.Error.Message)
	}
	if !strings.Contains(logged.String(), "replay detected") {
		t.Fatalf("replay was not logged, log = %q", logged.String())
	}
	if !strings.Contains(logged.String(), "clone") {
		t.Fatalf("log lost the detail: %q", logged.String())
	}
}

func TestWriteErrorMasksSignCountRegression(t *testing.T) {
	logged := captureLog(t)
	recorder := httptest.NewRecorder()

	writeError(recorder, storage.ErrSignCountRegression)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body errorResponse
	decodeBody(t, recorder, &body)
	if body.Error.Code != string(apperrors.CodeCeremonyInvalid) {
		t.Fatalf("body code = %q", body.Error.Code)
	}
	if !strings.Contains(logged.String(), "replay detected") {
		t.Fatalf("regression was not logged, log = %q", logged.String())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	logged := captureLog(t)
	recorder := httptest.NewRecorder()

	writeError(recorder, errors.New("dial tcp 10.0.0.5: connection refused"))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body errorResponse
	decodeBody(t, recorder, &body)
	if body.Error.Message != "internal error" {
		t.Fatalf("body message = %q", body.Error.Message)
	}
	if !strings.Contains(logged.String(), "connection refused") {
		t.Fatalf("detail missing from log: %q", logged.String())
	}
}
