package config

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Database.Enabled {
		t.Fatalf("expected database disabled when POSTGRES_URL not set")
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.Session.CredentialDir != "credentials" {
		t.Fatalf("unexpected CredentialDir default: %q", cfg.Session.CredentialDir)
	}
	if cfg.Session.AuthTimeout != 60*time.Second {
		t.Fatalf("unexpected AuthTimeout default: %v", cfg.Session.AuthTimeout)
	}
	if cfg.Session.ArtifactWait != 30*time.Second {
		t.Fatalf("unexpected ArtifactWait default: %v", cfg.Session.ArtifactWait)
	}
	if cfg.Session.ReconnectAttempts != 5 {
		t.Fatalf("unexpected ReconnectAttempts default: %d", cfg.Session.ReconnectAttempts)
	}
	if cfg.Limits.Cooldown != 300000*time.Millisecond {
		t.Fatalf("unexpected Cooldown default: %v", cfg.Limits.Cooldown)
	}
	if cfg.Limits.MaxPerDay != 50 {
		t.Fatalf("unexpected MaxPerDay default: %d", cfg.Limits.MaxPerDay)
	}
	if cfg.Limits.TimeZone != "UTC" {
		t.Fatalf("unexpected TimeZone default: %q", cfg.Limits.TimeZone)
	}
	if cfg.Dispatch.MaxRetries != 3 {
		t.Fatalf("unexpected MaxRetries default: %d", cfg.Dispatch.MaxRetries)
	}
	if cfg.Sweeper.Interval != 120*time.Second {
		t.Fatalf("unexpected Sweeper.Interval default: %v", cfg.Sweeper.Interval)
	}
}

func TestLoadAll_WithPostgresAndRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Database.Enabled {
		t.Fatalf("expected database enabled")
	}
	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
}

func TestLoadAll_Overrides(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("AUTH_TIMEOUT_SECONDS", "90")
	t.Setenv("AUTH_ARTIFACT_WAIT_SECONDS", "45")
	t.Setenv("COOLDOWN_MS", "1000")
	t.Setenv("MAX_PER_DAY", "10")
	t.Setenv("QUOTA_TZ", "Europe/Budapest")
	t.Setenv("DEFAULT_COUNTRY_CODE", "44")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Session.AuthTimeout != 90*time.Second {
		t.Fatalf("unexpected AuthTimeout: %v", cfg.Session.AuthTimeout)
	}
	if cfg.Session.ArtifactWait != 45*time.Second {
		t.Fatalf("unexpected ArtifactWait: %v", cfg.Session.ArtifactWait)
	}
	if cfg.Limits.Cooldown != time.Second {
		t.Fatalf("unexpected Cooldown: %v", cfg.Limits.Cooldown)
	}
	if cfg.Limits.MaxPerDay != 10 {
		t.Fatalf("unexpected MaxPerDay: %d", cfg.Limits.MaxPerDay)
	}
	if cfg.Limits.TimeZone != "Europe/Budapest" {
		t.Fatalf("unexpected TimeZone: %q", cfg.Limits.TimeZone)
	}
	if cfg.Session.DefaultCountry != "44" {
		t.Fatalf("unexpected DefaultCountry: %q", cfg.Session.DefaultCountry)
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"auth timeout <= 0", "AUTH_TIMEOUT_SECONDS", "0", "AUTH_TIMEOUT_SECONDS"},
		{"artifact wait above timeout", "AUTH_ARTIFACT_WAIT_SECONDS", "120", "AUTH_ARTIFACT_WAIT_SECONDS"},
		{"reconnect attempts <= 0", "RECONNECT_ATTEMPTS", "0", "RECONNECT_ATTEMPTS"},
		{"max per day <= 0", "MAX_PER_DAY", "0", "MAX_PER_DAY"},
		{"max retries <= 0", "DISPATCH_MAX_RETRIES", "-1", "DISPATCH_MAX_RETRIES"},
		{"sweep interval <= 0", "SWEEP_INTERVAL_SECONDS", "0", "SWEEP_INTERVAL_SECONDS"},
		{"unknown time zone", "QUOTA_TZ", "Mars/Olympus", "QUOTA_TZ"},
		{"invalid int", "COOLDOWN_MS", "abc", "COOLDOWN_MS"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			t.Setenv(tc.key, tc.val)

			msg := mustPanic(t, func() { _, _ = LoadAll() })
			if !strings.Contains(msg, tc.want) {
				t.Fatalf("expected panic mentioning %s, got: %s", tc.want, msg)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnvInt("MISSING", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	if got := getEnvInt("N", 7); got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	msg := mustPanic(t, func() { _ = getEnvInt("BAD", 7) })
	if !strings.Contains(msg, "BAD") {
		t.Fatalf("expected panic mentioning BAD, got: %s", msg)
	}
}

func mustPanic(t *testing.T, fn func()) (msg string) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic, got none")
		}
		if s, ok := r.(string); ok {
			msg = s
		}
	}()
	fn()
	return ""
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"POSTGRES_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"CREDENTIAL_DIR",
		"AUTH_TIMEOUT_SECONDS",
		"AUTH_ARTIFACT_WAIT_SECONDS",
		"RECONNECT_ATTEMPTS",
		"DEFAULT_COUNTRY_CODE",
		"COOLDOWN_MS",
		"MAX_PER_DAY",
		"QUOTA_TZ",
		"DISPATCH_MAX_RETRIES",
		"SWEEP_INTERVAL_SECONDS",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
