package config

import (
	"context"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("IDENTITY_JWT_SECRET", "s")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Session.CookieName != "portal_session" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Session.RefreshThreshold != 300*time.Second {
		t.Fatalf("expected a 300s refresh threshold, got %v", cfg.Session.RefreshThreshold)
	}
	if cfg.Invitation.TTL != 7*24*time.Hour {
		t.Fatalf("expected a seven day invitation ttl, got %v", cfg.Invitation.TTL)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("redis must be opt-in, got %q", cfg.Redis.Addr)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing secrets to fail validation")
	}
	cfg.Identity.JWTSecret = "a"
	cfg.Identity.ServiceKey = "b"
	cfg.Evidence.SigningSecret = "c"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
