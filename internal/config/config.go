// Package config defines the global configuration structure for the StageCall
// delivery engine. Configuration is loaded once at process initialization
// (Lambda cold start or API boot) and is immutable thereafter. It follows
// 12-Factor App principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to panic
// immediately on startup (fail fast).
package config

import (
	"time"

	"stagecall/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the delivery engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"stagecall-delivery"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Messaging MessagingConfig
	Scheduler SchedulerConfig
	Security  SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL for links in operator-facing payloads (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`

	// Resource Identifiers
	SyncQueueURL  string `envconfig:"SQS_SYNC_QUEUE" validate:"required,url"`
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"` // Cold storage for purged terminal jobs

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MessagingConfig holds the WhatsApp template provider credentials.
type MessagingConfig struct {
	BaseURL    string       `envconfig:"MESSAGING_BASE_URL" validate:"required,url"`
	AuthToken  SecretString `envconfig:"MESSAGING_AUTH_TOKEN" validate:"required"`
	FromNumber string       `envconfig:"MESSAGING_FROM_NUMBER" validate:"required,e164"`
	// Templates is a JSON mapping: "message_type" -> "provider_template_id"
	// Example: {"INIT": "tpl_123", "TECH_REMINDER": "tpl_456"}
	Templates string `envconfig:"MESSAGING_TEMPLATES_JSON" validate:"required,json"`
}

// SchedulerConfig holds delivery-engine tuning parameters.
type SchedulerConfig struct {
	// Timezone is the civil timezone all send times are computed in.
	Timezone string `envconfig:"SCHEDULER_TIMEZONE" default:"Asia/Jerusalem"`
	// RunToken authenticates internal run endpoints (dispatch, sync).
	RunToken      SecretString  `envconfig:"SCHEDULER_RUN_TOKEN" validate:"required,min=32"`
	DispatchEvery time.Duration `envconfig:"SCHEDULER_DISPATCH_EVERY" default:"5m"`
}

// SecurityConfig holds operator API access and CORS settings.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
