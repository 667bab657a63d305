package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

var testCodeKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("TWO_FACTOR_CODE_KEY", testCodeKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"CodeTTL", cfg.Auth.CodeTTL, 5 * time.Minute},
		{"ResetTokenTTL", cfg.Auth.ResetTokenTTL, time.Hour},
		{"AuthRateWindow", cfg.Server.AuthRateWindow, time.Minute},
	}
	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if len(cfg.Auth.CodeKey) != 32 {
		t.Errorf("CodeKey length = %d, want 32", len(cfg.Auth.CodeKey))
	}
	if cfg.Database.Name != "libgate" {
		t.Errorf("Database.Name = %q, want libgate", cfg.Database.Name)
	}
	if cfg.Email.Enabled {
		t.Error("Email.Enabled should default to false")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12,")
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("AUTH_RATE_LIMIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if got := cfg.Server.TrustedProxies; len(got) != 2 || got[1] != "172.16.0.0/12" {
		t.Errorf("TrustedProxies = %v", got)
	}
	if !cfg.Email.Enabled {
		t.Error("Email.Enabled = false, want true")
	}
	if cfg.Server.AuthRateLimit != 20 {
		t.Errorf("AuthRateLimit = %d, want fallback 20", cfg.Server.AuthRateLimit)
	}
}

func TestLoad_RequiredValues(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		value string
	}{
		{"missing jwt secret", "JWT_SECRET", ""},
		{"missing db password", "DB_PASSWORD", ""},
		{"missing code key", "TWO_FACTOR_CODE_KEY", ""},
		{"short code key", "TWO_FACTOR_CODE_KEY", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"non-base64 code key", "TWO_FACTOR_CODE_KEY", "%%%"},
		{"weak jwt secret", "JWT_SECRET", "short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, tt.value)

			if _, err := Load(); err == nil {
				t.Fatal("Load() = nil, want error")
			}
		})
	}
}

func TestValidateJWTSecret_Production(t *testing.T) {
	if err := validateJWTSecret(strings.Repeat("x", 20), "production"); err == nil {
		t.Error("expected 20-char secret to fail in production")
	}
	if err := validateJWTSecret(strings.Repeat("x", 32), "production"); err != nil {
		t.Errorf("32-char secret: %v", err)
	}
	if err := validateJWTSecret("changeme", "development"); err == nil {
		t.Error("expected short weak secret to fail")
	}
}

func TestLoadClient(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIBGATE_STATE_DIR", dir)
	t.Setenv("LIBGATE_API_URL", "http://library.test/api")
	t.Setenv("LIBGATE_STORE", "file")
	t.Setenv("LIBGATE_HTTP_TIMEOUT", "3s")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient() = %v", err)
	}
	if cfg.StateDir != dir || cfg.Store != "file" || cfg.HTTPTimeout != 3*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !strings.HasPrefix(cfg.LogFile, dir) {
		t.Errorf("LogFile = %q, want under %q", cfg.LogFile, dir)
	}
}

func TestLoadClient_Invalid(t *testing.T) {
	t.Setenv("LIBGATE_STATE_DIR", t.TempDir())

	t.Setenv("LIBGATE_API_URL", "not a url")
	if _, err := LoadClient(); err == nil {
		t.Error("expected relative URL to fail")
	}

	t.Setenv("LIBGATE_API_URL", "http://localhost:8080/api")
	t.Setenv("LIBGATE_STORE", "redis")
	if _, err := LoadClient(); err == nil {
		t.Error("expected unknown store to fail")
	}
}
