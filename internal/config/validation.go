package config

import (
	"fmt"
	"log/slog"
	"os"
)

// Validate checks configuration values. Returns sentinel errors checkable
// with errors.Is().
func (c *Config) Validate() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "heirloom_dev_password" {
		slog.Warn("using the default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}

	return nil
}

// ValidateServe adds the checks serve mode needs on top of Validate. The
// ingest endpoint is gated by a shared token that must be set and
// non-trivial.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IngestToken == "" {
		return fmt.Errorf("%w: set HEIRLOOM_INGEST_TOKEN or ingest_token", ErrMissingIngestToken)
	}
	if len(c.IngestToken) < minIngestTokenLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidIngestToken, minIngestTokenLen)
	}

	return nil
}
