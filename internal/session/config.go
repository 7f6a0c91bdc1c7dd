package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls session lifetime and cookie scoping.
//
// The cookie domain is the parent domain shared by the auth host and every
// protected app, so one sign-in covers all subdomains.
type Config struct {
	TTL          time.Duration `env:"STATICAUTH_SESSION_TTL"   envDefault:"720h"`
	CookieName   string        `env:"STATICAUTH_COOKIE_NAME"   envDefault:"auth_session"`
	CookieDomain string        `env:"STATICAUTH_COOKIE_DOMAIN"`
	CookieSecure bool          `env:"STATICAUTH_COOKIE_SECURE" envDefault:"true"`
}

// LoadConfigFromEnv loads session configuration and applies defensive
// defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.TTL <= 0 {
		cfg.TTL = 720 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "auth_session"
	}
	return cfg
}
