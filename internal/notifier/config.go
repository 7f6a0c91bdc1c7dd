package notifier

import (
	"github.com/caarlos0/env/v11"
)

// Provider names for outbound email transports.
const (
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
)

// Config controls outbound email delivery.
//
// These values are read at startup so operator-controlled defaults can be
// tuned without changing runtime code paths.
type Config struct {
	Provider string `env:"STATICAUTH_EMAIL_PROVIDER" envDefault:"smtp"`
	From     string `env:"STATICAUTH_EMAIL_FROM"     envDefault:"auth@localhost"`

	SMTPHost     string `env:"STATICAUTH_SMTP_HOST" envDefault:"localhost"`
	SMTPPort     int    `env:"STATICAUTH_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"STATICAUTH_SMTP_USERNAME"`
	SMTPPassword string `env:"STATICAUTH_SMTP_PASSWORD"`
	SMTPStartTLS bool   `env:"STATICAUTH_SMTP_STARTTLS" envDefault:"true"`

	SESRegion          string `env:"STATICAUTH_SES_REGION" envDefault:"us-east-1"`
	SESAccessKeyID     string `env:"STATICAUTH_SES_ACCESS_KEY_ID"`
	SESSecretAccessKey string `env:"STATICAUTH_SES_SECRET_ACCESS_KEY"`
}

// LoadConfigFromEnv loads email configuration and applies defensive defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.Provider == "" {
		cfg.Provider = ProviderSMTP
	}
	if cfg.From == "" {
		cfg.From = "auth@localhost"
	}
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = "localhost"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.SESRegion == "" {
		cfg.SESRegion = "us-east-1"
	}
	return cfg
}
