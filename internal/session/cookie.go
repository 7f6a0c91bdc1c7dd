package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
)

// CookieCodec signs session tokens into a browser cookie and reads them
// back.
//
// The cookie payload is an HS256 JWT whose subject is the opaque session
// token. The signature only proves the cookie was minted by this service;
// authorization always goes back to the session store.
type CookieCodec struct {
	secret []byte
	name   string
	domain string
	secure bool
}

// NewCookieCodec builds a codec from the session config and signing secret.
func NewCookieCodec(secret []byte, cfg Config) (*CookieCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = "auth_session"
	}
	return &CookieCodec{
		secret: secret,
		name:   name,
		domain: strings.TrimSpace(cfg.CookieDomain),
		secure: cfg.CookieSecure,
	}, nil
}

// Name returns the cookie name the codec reads and writes.
func (c *CookieCodec) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Encode signs a session token into a cookie value.
func (c *CookieCodec) Encode(token string, expiresAt time.Time) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", fmt.Errorf("cookie codec is not configured")
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("session token is required")
	}
	claims := jwt.RegisteredClaims{
		Subject:   token,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session token inside.
func (c *CookieCodec) Decode(value string) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", fmt.Errorf("cookie codec is not configured")
	}
	if strings.TrimSpace(value) == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "session cookie is missing")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "session cookie is invalid")
	}
	if claims.Subject == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "session cookie is invalid")
	}
	return claims.Subject, nil
}

// Read extracts and verifies the session token from a request.
func (c *CookieCodec) Read(r *http.Request) (string, error) {
	if c == nil {
		return "", fmt.Errorf("cookie codec is not configured")
	}
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "session cookie is missing")
	}
	return c.Decode(cookie.Value)
}

// Write sets the signed session cookie on a response.
func (c *CookieCodec) Write(w http.ResponseWriter, token string, expiresAt time.Time) error {
	value, err := c.Encode(token, expiresAt)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Domain:   c.domain,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie on a response.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	if c == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Domain:   c.domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
