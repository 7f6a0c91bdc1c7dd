package otp

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls one-time code timing and brute-force limits.
//
// These values are read at startup so operator-controlled defaults can be
// tuned without changing runtime code paths.
type Config struct {
	TTL         time.Duration `env:"STATICAUTH_OTP_TTL"          envDefault:"10m"`
	MaxAttempts int           `env:"STATICAUTH_OTP_MAX_ATTEMPTS" envDefault:"5"`
}

// LoadConfigFromEnv loads one-time code configuration and applies defensive
// defaults.
//
// Defaults are intentionally explicit because codes are security-sensitive
// and should remain predictable in local and CI environments.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return cfg
}
