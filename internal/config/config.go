// Package config loads application configuration with multi-source priority:
// environment variables override the config file, which overrides defaults.
// The config file is searched in ~/.heirloom/config.yaml and the current
// directory. DATABASE_URL, when set, overrides the individual postgres_*
// fields.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the model provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingIngestToken indicates the ingest service token is not set.
	ErrMissingIngestToken = errors.New("missing ingest service token")

	// ErrInvalidIngestToken indicates the ingest service token is too short.
	ErrInvalidIngestToken = errors.New("invalid ingest service token")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidModelName indicates the completion model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidListenAddr indicates the HTTP listen address is empty.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

const (
	// DefaultModelName is the provider-qualified completion model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel produces the knowledge base vectors. The output
	// is truncated to the schema dimension at embed time.
	DefaultEmbedderModel = "gemini-embedding-001"

	// minIngestTokenLen guards against trivially guessable service tokens.
	minIngestTokenLen = 16
)

// Config stores application configuration. Sensitive fields (password,
// token) must never be logged verbatim; use maskSecret.
type Config struct {
	// Model configuration
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"` // Behind a reverse proxy
	RateBurst   int      `mapstructure:"rate_burst"`  // Per-IP burst, 0 = default

	// Ingestion service token, required for serve mode. SENSITIVE.
	IngestToken string `mapstructure:"ingest_token"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Observability (optional)
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

// Load reads configuration from defaults, file, and environment.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".heirloom")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "heirloom")
	v.SetDefault("postgres_password", "heirloom_dev_password")
	v.SetDefault("postgres_db_name", "heirloom")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly. GEMINI_API_KEY is
// read directly by Genkit, not through viper; Validate only checks its
// presence.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ingest_token", "HEIRLOOM_INGEST_TOKEN")
	mustBind("model_name", "HEIRLOOM_MODEL_NAME")
	mustBind("embedder_model", "HEIRLOOM_EMBEDDER_MODEL")
	mustBind("listen_addr", "HEIRLOOM_LISTEN_ADDR")
	mustBind("cors_origins", "HEIRLOOM_CORS_ORIGINS")
	mustBind("trust_proxy", "HEIRLOOM_TRUST_PROXY")
	mustBind("log_level", "HEIRLOOM_LOG_LEVEL")
	mustBind("otlp_endpoint", "HEIRLOOM_OTLP_ENDPOINT")
	mustBind("environment", "HEIRLOOM_ENV")
}

// maskedValue replaces secret content in logs.
const maskedValue = "********"

// maskSecret masks a secret for logging, keeping two characters of context
// on each side for longer values.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// LogValue implements slog.LogValuer so a Config can be logged safely.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model_name", c.ModelName),
		slog.String("embedder_model", c.EmbedderModel),
		slog.String("postgres_host", c.PostgresHost),
		slog.Int("postgres_port", c.PostgresPort),
		slog.String("postgres_db_name", c.PostgresDBName),
		slog.String("postgres_password", maskSecret(c.PostgresPassword)),
		slog.String("listen_addr", c.ListenAddr),
		slog.String("ingest_token", maskSecret(c.IngestToken)),
		slog.String("environment", c.Environment),
	)
}
