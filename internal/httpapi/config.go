package httpapi

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// Default-access policies for apps the registry does not know.
const (
	DefaultAppAccessAllow = "allow"
	DefaultAppAccessDeny  = "deny"
)

// Config controls the HTTP surface's policy knobs.
//
// AcceptedDomains lists email domains whose registrations are approved
// without an admin in the loop. DefaultAppAccess decides what the edge
// validator answers for slugs no app record claims.
type Config struct {
	AcceptedDomains  []string `env:"STATICAUTH_ACCEPTED_DOMAINS"   envSeparator:","`
	DefaultAppAccess string   `env:"STATICAUTH_DEFAULT_APP_ACCESS" envDefault:"deny"`
}

// LoadConfigFromEnv loads HTTP policy configuration and applies defensive
// defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	return normalizeConfig(cfg)
}

func normalizeConfig(cfg Config) Config {
	domains := cfg.AcceptedDomains[:0]
	for _, domain := range cfg.AcceptedDomains {
		trimmed := strings.ToLower(strings.TrimSpace(domain))
		if trimmed != "" {
			domains = append(domains, trimmed)
		}
	}
	cfg.AcceptedDomains = domains
	if cfg.DefaultAppAccess != DefaultAppAccessAllow {
		cfg.DefaultAppAccess = DefaultAppAccessDeny
	}
	return cfg
}

// DomainAccepted reports whether an email domain auto-approves registration.
func (c Config) DomainAccepted(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	for _, accepted := range c.AcceptedDomains {
		if accepted == domain {
			return true
		}
	}
	return false
}
