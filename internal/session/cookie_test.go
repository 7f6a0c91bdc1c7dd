package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *CookieCodec {
	t.Helper()
	codec, err := NewCookieCodec(testSecret, Config{CookieName: "auth_session", CookieDomain: "example.com", CookieSecure: true})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestCookieRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	expires := time.Now().Add(time.Hour)

	value, err := codec.Encode("session-token", expires)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	token, err := codec.Decode(value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if token != "session-token" {
		t.Fatalf("expected original token, got %q", token)
	}
}

func TestDecodeRejectsTamperedValue(t *testing.T) {
	codec := newTestCodec(t)

	value, err := codec.Encode("session-token", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tampered := value[:len(value)-2] + "xx"
	_, err = codec.Decode(tampered)
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewCookieCodec([]byte("another-secret-key-of-real-length"), Config{CookieName: "auth_session"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	value, err := other.Encode("session-token", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = codec.Decode(value)
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestDecodeRejectsExpiredCookie(t *testing.T) {
	codec := newTestCodec(t)

	value, err := codec.Encode("session-token", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = codec.Decode(value)
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestWriteSetsScopedCookie(t *testing.T) {
	codec := newTestCodec(t)
	recorder := httptest.NewRecorder()

	if err := codec.Write(recorder, "session-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("write cookie: %v", err)
	}

	header := recorder.Header().Get("Set-Cookie")
	if !strings.Contains(header, "auth_session=") {
		t.Fatalf("expected session cookie, got %q", header)
	}
	if !strings.Contains(header, "Domain=example.com") {
		t.Fatalf("expected parent domain scope, got %q", header)
	}
	if !strings.Contains(header, "HttpOnly") || !strings.Contains(header, "Secure") {
		t.Fatalf("expected HttpOnly and Secure, got %q", header)
	}
}

func TestReadFromRequest(t *testing.T) {
	codec := newTestCodec(t)
	recorder := httptest.NewRecorder()
	if err := codec.Write(recorder, "session-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("write cookie: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range recorder.Result().Cookies() {
		request.AddCookie(cookie)
	}

	token, err := codec.Read(request)
	if err != nil {
		t.Fatalf("read cookie: %v", err)
	}
	if token != "session-token" {
		t.Fatalf("expected original token, got %q", token)
	}
}

func TestReadMissingCookie(t *testing.T) {
	codec := newTestCodec(t)
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := codec.Read(request)
	if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestClearExpiresCookie(t *testing.T) {
	codec := newTestCodec(t)
	recorder := httptest.NewRecorder()

	codec.Clear(recorder)

	header := recorder.Header().Get("Set-Cookie")
	if !strings.Contains(header, "auth_session=;") && !strings.Contains(header, "Max-Age=0") {
		t.Fatalf("expected cleared cookie, got %q", header)
	}
}
