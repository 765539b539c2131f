package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL_MINUTES", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.SessionTTL() != 7*24*time.Hour {
		t.Fatalf("unexpected session ttl: %s", cfg.Auth.SessionTTL())
	}
	if cfg.Auth.CookieName != "session_token" {
		t.Fatalf("unexpected cookie name: %q", cfg.Auth.CookieName)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestLoad_RejectsNonPositiveSessionTTL(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL_MINUTES", "-5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid REDIS_DB")
	}
}

func TestRefundConfig_Backoff(t *testing.T) {
	r := RefundConfig{BaseBackoffSeconds: 5, MaxBackoffSeconds: 60}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second},
		{10, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := r.Backoff(tc.attempts); got != tc.want {
			t.Fatalf("Backoff(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestAppConfig_RequestTimeout(t *testing.T) {
	if (AppConfig{RequestTimeoutSeconds: 0}).RequestTimeout() != 0 {
		t.Fatalf("expected zero timeout")
	}
	if (AppConfig{RequestTimeoutSeconds: 3}).RequestTimeout() != 3*time.Second {
		t.Fatalf("expected 3s timeout")
	}
}
