package config

import (
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/database"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set(KeySigningSecret, "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != database.DriverSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database settings: %s %s", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if !cfg.AmountUnitRequired {
		t.Fatalf("expected amount unit to be required by default")
	}
	if cfg.CacheBackend != CacheMemory || cfg.CacheTTLSeconds != defaultCacheTTL {
		t.Fatalf("unexpected cache settings: %s %d", cfg.CacheBackend, cfg.CacheTTLSeconds)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != defaultAllowedOrigin {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if len(cfg.AllowedEmails) != 0 {
		t.Fatalf("expected open membership by default, got %v", cfg.AllowedEmails)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FEEDLOG_TAUTH_SIGNING_SECRET", "from-env")
	t.Setenv("FEEDLOG_AUTH_ALLOWED_EMAILS", "a@example.com, b@example.com")
	t.Setenv("FEEDLOG_VALIDATION_AMOUNT_UNIT_REQUIRED", "false")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TAuthSigningKey != "from-env" {
		t.Fatalf("expected secret from env, got %q", cfg.TAuthSigningKey)
	}
	if len(cfg.AllowedEmails) != 2 || cfg.AllowedEmails[1] != "b@example.com" {
		t.Fatalf("unexpected allowed emails %v", cfg.AllowedEmails)
	}
	if cfg.AmountUnitRequired {
		t.Fatalf("expected amount unit requirement to be disabled")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
		message  string
	}{
		{name: "missing secret", settings: map[string]any{}, message: KeySigningSecret},
		{name: "unknown driver", settings: map[string]any{KeyDatabaseDriver: "mysql"}, message: KeyDatabaseDriver},
		{name: "postgres without dsn", settings: map[string]any{KeyDatabaseDriver: database.DriverPostgres}, message: KeyDatabaseDSN},
		{name: "redis without url", settings: map[string]any{KeyCacheBackend: CacheRedis}, message: KeyCacheRedisURL},
		{name: "unknown cache", settings: map[string]any{KeyCacheBackend: "memcached"}, message: KeyCacheBackend},
		{name: "bad log format", settings: map[string]any{KeyLogFormat: "xml"}, message: KeyLogFormat},
		{name: "zero ttl", settings: map[string]any{KeyCacheTTLSeconds: 0}, message: KeyCacheTTLSeconds},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			if testCase.name != "missing secret" {
				configViper.Set(KeySigningSecret, "secret")
			}
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.message, err)
			}
		})
	}
}
