package config

import (
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://id.newslens.test/")
	t.Setenv("AUTH_AUDIENCE", "https://api.newslens.test")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.DBPath != "newslens.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Archive.Region != "auto" {
		t.Errorf("archive region = %q, want auto", cfg.Archive.Region)
	}
}

func TestParseRequiresIssuer(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "")
	t.Setenv("AUTH_AUDIENCE", "https://api.newslens.test")

	var cfg Config
	if err := env.Parse(&cfg); err == nil {
		t.Error("parse succeeded without AUTH_ISSUER")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://id.newslens.test/")
	t.Setenv("AUTH_AUDIENCE", "https://api.newslens.test")
	t.Setenv("ADDR", ":9090")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")
	t.Setenv("LOG_JSON", "true")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Stripe.SecretKey != "sk_test_1" || !cfg.LogJSON {
		t.Errorf("cfg = %+v", cfg)
	}
}
