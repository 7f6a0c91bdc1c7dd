package httpapi

import "testing"

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STATICAUTH_ACCEPTED_DOMAINS", "Example.com, corp.example.org ,")
	t.Setenv("STATICAUTH_DEFAULT_APP_ACCESS", "allow")

	cfg := LoadConfigFromEnv()
	if len(cfg.AcceptedDomains) != 2 {
		t.Fatalf("unexpected domains: %v", cfg.AcceptedDomains)
	}
	if cfg.AcceptedDomains[0] != "example.com" || cfg.AcceptedDomains[1] != "corp.example.org" {
		t.Fatalf("unexpected domains: %v", cfg.AcceptedDomains)
	}
	if cfg.DefaultAppAccess != DefaultAppAccessAllow {
		t.Fatalf("unexpected default access %q", cfg.DefaultAppAccess)
	}
}

func TestLoadConfigDefaultsToDeny(t *testing.T) {
	t.Setenv("STATICAUTH_DEFAULT_APP_ACCESS", "everything")
	cfg := LoadConfigFromEnv()
	if cfg.DefaultAppAccess != DefaultAppAccessDeny {
		t.Fatalf("unexpected default access %q", cfg.DefaultAppAccess)
	}
}

func TestDomainAccepted(t *testing.T) {
	cfg := normalizeConfig(Config{AcceptedDomains: []string{"example.com"}})
	if !cfg.DomainAccepted("Example.COM") {
		t.Fatal("expected case-insensitive domain match")
	}
	if cfg.DomainAccepted("elsewhere.org") {
		t.Fatal("unexpected match for unlisted domain")
	}
	if cfg.DomainAccepted("") {
		t.Fatal("empty domain must never match")
	}
}
