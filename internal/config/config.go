package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "FEEDLOG"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultAllowedOrigin  = "http://localhost:3000"
	defaultDatabaseDriver = database.DriverSQLite
	defaultDatabasePath   = "feedlog.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultIssuer         = "tauth"
	defaultCookieName     = "app_session"
	defaultCacheBackend   = CacheMemory
	defaultCacheTTL       = 300

	// CacheMemory keeps the summary cache in process.
	CacheMemory = "memory"
	// CacheRedis shares the summary cache through redis.
	CacheRedis = "redis"
)

// Viper keys.
const (
	KeyHTTPAddress        = "http.address"
	KeyAllowedOrigins     = "http.allowed_origins"
	KeyExposeErrorDetails = "http.expose_error_details"
	KeyDatabaseDriver     = "database.driver"
	KeyDatabasePath       = "database.path"
	KeyDatabaseDSN        = "database.dsn"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeySigningSecret      = "tauth.signing_secret"
	KeyIssuer             = "tauth.issuer"
	KeyCookieName         = "tauth.cookie_name"
	KeyAllowedEmails      = "auth.allowed_emails"
	KeyAmountUnitRequired = "validation.amount_unit_required"
	KeyCacheBackend       = "cache.backend"
	KeyCacheRedisURL      = "cache.redis_url"
	KeyCacheTTLSeconds    = "cache.ttl_seconds"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	// ExposeErrorDetails adds the cause to 500 responses. Validation
	// details and fields are returned regardless.
	ExposeErrorDetails bool

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	TAuthSigningKey string
	TAuthIssuer     string
	TAuthCookieName string
	AllowedEmails   []string

	AmountUnitRequired bool

	CacheBackend    string
	CacheRedisURL   string
	CacheTTLSeconds int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault(KeyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(KeyAllowedOrigins, []string{defaultAllowedOrigin})
	configViper.SetDefault(KeyExposeErrorDetails, false)
	configViper.SetDefault(KeyDatabaseDriver, defaultDatabaseDriver)
	configViper.SetDefault(KeyDatabasePath, defaultDatabasePath)
	configViper.SetDefault(KeyLogLevel, defaultLogLevel)
	configViper.SetDefault(KeyLogFormat, defaultLogFormat)
	configViper.SetDefault(KeyIssuer, defaultIssuer)
	configViper.SetDefault(KeyCookieName, defaultCookieName)
	configViper.SetDefault(KeyAllowedEmails, []string{})
	configViper.SetDefault(KeyAmountUnitRequired, true)
	configViper.SetDefault(KeyCacheBackend, defaultCacheBackend)
	configViper.SetDefault(KeyCacheTTLSeconds, defaultCacheTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        strings.TrimSpace(configViper.GetString(KeyHTTPAddress)),
		AllowedOrigins:     splitList(configViper.GetStringSlice(KeyAllowedOrigins)),
		ExposeErrorDetails: configViper.GetBool(KeyExposeErrorDetails),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString(KeyDatabaseDriver))),
		DatabasePath:       strings.TrimSpace(configViper.GetString(KeyDatabasePath)),
		DatabaseDSN:        strings.TrimSpace(configViper.GetString(KeyDatabaseDSN)),
		LogLevel:           configViper.GetString(KeyLogLevel),
		LogFormat:          strings.ToLower(strings.TrimSpace(configViper.GetString(KeyLogFormat))),
		TAuthSigningKey:    configViper.GetString(KeySigningSecret),
		TAuthIssuer:        strings.TrimSpace(configViper.GetString(KeyIssuer)),
		TAuthCookieName:    strings.TrimSpace(configViper.GetString(KeyCookieName)),
		AllowedEmails:      splitList(configViper.GetStringSlice(KeyAllowedEmails)),
		AmountUnitRequired: configViper.GetBool(KeyAmountUnitRequired),
		CacheBackend:       strings.ToLower(strings.TrimSpace(configViper.GetString(KeyCacheBackend))),
		CacheRedisURL:      strings.TrimSpace(configViper.GetString(KeyCacheRedisURL)),
		CacheTTLSeconds:    configViper.GetInt(KeyCacheTTLSeconds),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("%s is required", KeySigningSecret)
	}
	if c.TAuthCookieName == "" {
		return fmt.Errorf("%s is required", KeyCookieName)
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("%s is required", KeyHTTPAddress)
	}
	switch c.DatabaseDriver {
	case database.DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("%s is required for the sqlite driver", KeyDatabasePath)
		}
	case database.DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%s is required for the postgres driver", KeyDatabaseDSN)
		}
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyDatabaseDriver, database.DriverSQLite, database.DriverPostgres, c.DatabaseDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be \"json\" or \"console\", got %q", KeyLogFormat, c.LogFormat)
	}
	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.CacheRedisURL == "" {
			return fmt.Errorf("%s is required for the redis cache backend", KeyCacheRedisURL)
		}
		if _, err := url.Parse(c.CacheRedisURL); err != nil {
			return fmt.Errorf("%s is not a valid url: %w", KeyCacheRedisURL, err)
		}
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyCacheBackend, CacheMemory, CacheRedis, c.CacheBackend)
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("%s must be positive", KeyCacheTTLSeconds)
	}
	return nil
}

// splitList flattens comma separated entries so env values like "a,b" work.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
