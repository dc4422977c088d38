// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DocStoreConfig provides settings for the MinIO-backed document store.
type DocStoreConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetDocStoreBucket() string
	GetDocStoreNamespace() string
}

// MaskinportenConfig provides settings for the Maskinporten token exchange.
type MaskinportenConfig interface {
	GetMaskinportenTokenURL() string
	GetMaskinportenClientID() string
	GetMaskinportenKeyID() string
	GetMaskinportenPrivateKey() string
	GetMaskinportenScopes() string
	GetAltinnExchangeURL() string
}

// PlatformAPIConfig provides settings for the Altinn instance API client.
type PlatformAPIConfig interface {
	GetAltinnAppBaseURL() string
	GetAltinnStorageURL() string
	GetAltinnOwnerOrg() string
	GetAltinnRateLimit() float64
}

// NotifyConfig provides settings for the notification (varsling) client.
type NotifyConfig interface {
	GetVarslingBaseURL() string
	GetNotifySenderEmail() string
}

// SchedulerConfig provides settings for the background scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetSweepInterval() time.Duration
	GetPollInterval() time.Duration
	GetReminderGrace() time.Duration
}

// EventsAPIConfig provides settings for the events subscription API.
type EventsAPIConfig interface {
	GetAltinnEventsURL() string
	GetWebhookEndpoint() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	MinIOEndpoint     string
	MinIOAccessKey    string
	MinIOSecretKey    string
	MinIOUseSSL       bool
	DocStoreBucket    string
	DocStoreNamespace string

	MaskinportenTokenURL   string
	MaskinportenClientID   string
	MaskinportenKeyID      string
	MaskinportenPrivateKey string
	MaskinportenScopes     string
	AltinnExchangeURL      string

	AltinnAppBaseURL string
	AltinnStorageURL string
	AltinnEventsURL  string
	AltinnOwnerOrg   string
	AltinnRateLimit  float64

	VarslingBaseURL   string
	NotifySenderEmail string

	WebhookEndpoint string

	RedisURL      string
	SweepInterval time.Duration
	PollInterval  time.Duration
	ReminderGrace time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DocStoreConfig implementation
func (c *Config) GetMinIOEndpoint() string     { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string    { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string    { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool         { return c.MinIOUseSSL }
func (c *Config) GetDocStoreBucket() string    { return c.DocStoreBucket }
func (c *Config) GetDocStoreNamespace() string { return c.DocStoreNamespace }

// MaskinportenConfig implementation
func (c *Config) GetMaskinportenTokenURL() string   { return c.MaskinportenTokenURL }
func (c *Config) GetMaskinportenClientID() string   { return c.MaskinportenClientID }
func (c *Config) GetMaskinportenKeyID() string      { return c.MaskinportenKeyID }
func (c *Config) GetMaskinportenPrivateKey() string { return c.MaskinportenPrivateKey }
func (c *Config) GetMaskinportenScopes() string     { return c.MaskinportenScopes }
func (c *Config) GetAltinnExchangeURL() string      { return c.AltinnExchangeURL }

// PlatformAPIConfig implementation
func (c *Config) GetAltinnAppBaseURL() string { return c.AltinnAppBaseURL }
func (c *Config) GetAltinnStorageURL() string { return c.AltinnStorageURL }
func (c *Config) GetAltinnOwnerOrg() string   { return c.AltinnOwnerOrg }
func (c *Config) GetAltinnRateLimit() float64 { return c.AltinnRateLimit }

// NotifyConfig implementation
func (c *Config) GetVarslingBaseURL() string   { return c.VarslingBaseURL }
func (c *Config) GetNotifySenderEmail() string { return c.NotifySenderEmail }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetPollInterval() time.Duration  { return c.PollInterval }
func (c *Config) GetReminderGrace() time.Duration { return c.ReminderGrace }

// EventsAPIConfig implementation
func (c *Config) GetAltinnEventsURL() string { return c.AltinnEventsURL }
func (c *Config) GetWebhookEndpoint() string { return c.WebhookEndpoint }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", ""))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),

		MinIOEndpoint:     getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:    getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:    getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:       strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		DocStoreBucket:    getEnv("DOCSTORE_BUCKET", "regvil-tracker"),
		DocStoreNamespace: getEnv("DOCSTORE_NAMESPACE", "test"),

		MaskinportenTokenURL:   getEnv("MASKINPORTEN_TOKEN_URL", "https://test.maskinporten.no/token"),
		MaskinportenClientID:   getEnv("MASKINPORTEN_CLIENT_ID", ""),
		MaskinportenKeyID:      getEnv("MASKINPORTEN_KEY_ID", ""),
		MaskinportenPrivateKey: getEnv("MASKINPORTEN_PRIVATE_KEY", ""),
		MaskinportenScopes:     getEnv("MASKINPORTEN_SCOPES", "altinn:serviceowner/instances.read altinn:serviceowner/instances.write"),
		AltinnExchangeURL:      getEnv("ALTINN_EXCHANGE_URL", "https://platform.tt02.altinn.no/authentication/api/v1/exchange/maskinporten"),

		AltinnAppBaseURL: getEnv("ALTINN_APP_BASE_URL", "https://digdir.apps.tt02.altinn.no"),
		AltinnStorageURL: getEnv("ALTINN_STORAGE_URL", "https://platform.tt02.altinn.no/storage/api/v1"),
		AltinnEventsURL:  getEnv("ALTINN_EVENTS_URL", "https://platform.tt02.altinn.no/events/api/v1"),
		AltinnOwnerOrg:   getEnv("ALTINN_OWNER_ORG", "digdir"),
		AltinnRateLimit:  mustFloat(getEnv("ALTINN_RATE_LIMIT", "5")),

		VarslingBaseURL:   getEnv("VARSLING_BASE_URL", ""),
		NotifySenderEmail: getEnv("NOTIFY_SENDER_EMAIL", ""),

		WebhookEndpoint: getEnv("WEBHOOK_ENDPOINT", ""),

		RedisURL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		SweepInterval: mustDuration(getEnv("SWEEP_INTERVAL", "24h")),
		PollInterval:  mustDuration(getEnv("POLL_INTERVAL", "1h")),
		ReminderGrace: mustDuration(getEnv("REMINDER_GRACE", "336h")),
	}

	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	if cfg.MaskinportenClientID == "" || cfg.MaskinportenPrivateKey == "" {
		return nil, fmt.Errorf("MASKINPORTEN_CLIENT_ID and MASKINPORTEN_PRIVATE_KEY are required")
	}
	if cfg.DocStoreNamespace != "test" && cfg.DocStoreNamespace != "prod" {
		return nil, fmt.Errorf("DOCSTORE_NAMESPACE must be test or prod, got %q", cfg.DocStoreNamespace)
	}
	if cfg.SweepInterval <= 0 || cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL and POLL_INTERVAL must be positive durations")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
