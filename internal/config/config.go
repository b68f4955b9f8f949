// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all orchestrator configuration parsed from environment
// variables, optionally seeded from a YAML defaults file (CONFIG_FILE).
// Environment values always win over file values.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	// MQTT broker endpoint.
	BrokerHost string `env:"BROKER_HOST" envDefault:"localhost"`
	BrokerPort int    `env:"BROKER_PORT" envDefault:"1883"`
	// QoS for queue publishes and subscriptions (0, 1 or 2).
	QoS byte `env:"MQTT_QOS" envDefault:"1"`
	// TopicPrefix is prepended to every queue/DLQ/status topic.
	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"bots"`
	// ClientID is the fixed identifier of the API publisher session.
	ClientID string `env:"MQTT_CLIENT_ID" envDefault:"broker-wiz-api"`

	// Ingress binding and auth.
	APIHost        string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort        int    `env:"API_PORT" envDefault:"8000"`
	APIBearerToken string `env:"API_BEARER_TOKEN" envDefault:"dev-key-change-in-prod"`

	// Worker pool shape. NumWorkers is informational; each worker
	// process bounds itself with MaxConcurrent.
	NumWorkers    int           `env:"NUM_WORKERS" envDefault:"3"`
	MaxConcurrent int           `env:"MAX_CONCURRENT" envDefault:"3"`
	WorkerTimeout time.Duration `env:"WORKER_TIMEOUT" envDefault:"300s"`
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	// WorkerID must be unique per worker process: persistent broker
	// sessions are keyed by it and two processes sharing an id race.
	WorkerID string `env:"WORKER_ID"`
	// WorkerGroup names the shared subscription group.
	WorkerGroup string `env:"WORKER_GROUP" envDefault:"workers"`

	// Admission thresholds.
	MaxCPUPercent    float64 `env:"MAX_CPU_PERCENT" envDefault:"85"`
	MaxMemoryPercent float64 `env:"MAX_MEMORY_PERCENT" envDefault:"85"`

	// HTTP layer.
	CORSOrigins          string        `env:"CORS_ORIGINS" envDefault:"*"`
	CORSMethods          []string      `env:"CORS_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	CORSHeaders          []string      `env:"CORS_HEADERS" envSeparator:"," envDefault:"*"`
	CORSAllowCredentials bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	RateLimitPerMin      int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	HTTPReadTimeout      time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout     time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout      time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Paths for the on-disk contracts (cookies, logs, downloads).
	InsuranceConfigPath string `env:"INSURANCE_CONFIG_PATH" envDefault:"config/insurance_config.json"`
	ProfilesDir         string `env:"PROFILES_DIR" envDefault:"temp/profiles"`
	PDFDir              string `env:"PDF_DIR" envDefault:"temp/pdfs"`
	BotLogsDir          string `env:"BOT_LOGS_DIR" envDefault:"logs/bots"`
	WorkerLogPath       string `env:"WORKER_LOG_PATH" envDefault:"logs/worker.log"`

	// Retention windows for the janitor.
	BotLogRetention time.Duration `env:"BOT_LOG_RETENTION" envDefault:"24h"`
	PDFRetention    time.Duration `env:"PDF_RETENTION" envDefault:"1h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"30m"`
}

// Load parses configuration. When CONFIG_FILE points to a YAML file of
// ENV_KEY: value pairs, those values act as defaults for keys not
// already present in the environment.
func Load() (Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFileDefaults(path); err != nil {
			return Config{}, fmt.Errorf("op=config.Load: %w", err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// applyFileDefaults seeds the process environment from a YAML file.
// Real environment variables keep precedence.
func applyFileDefaults(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var values map[string]string
	if err := yaml.Unmarshal(b, &values); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for k, v := range values {
		if _, exists := os.LookupEnv(k); !exists {
			if err := os.Setenv(k, v); err != nil {
				return fmt.Errorf("set default %s: %w", k, err)
			}
		}
	}
	return nil
}

// BrokerAddr returns the host:port dial string for the MQTT broker.
func (c Config) BrokerAddr() string {
	return fmt.Sprintf("%s:%d", c.BrokerHost, c.BrokerPort)
}

// IsDev reports whether the app runs in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "development" }

// IsProd reports whether the app runs in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "production" }

// IsStaging reports whether the app runs in staging mode.
func (c Config) IsStaging() bool { return strings.ToLower(c.AppEnv) == "staging" }
