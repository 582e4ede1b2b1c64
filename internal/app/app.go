// Package app wires the application together: configuration, database pool,
// Genkit, stores, and the HTTP server. Each dependency is built by a provider
// function in setup.go; App.Close releases them in reverse order.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heirloomhq/heirloom/internal/api"
	"github.com/heirloomhq/heirloom/internal/auth"
	"github.com/heirloomhq/heirloom/internal/chat"
	"github.com/heirloomhq/heirloom/internal/config"
	"github.com/heirloomhq/heirloom/internal/ingest"
	"github.com/heirloomhq/heirloom/internal/knowledge"
	"github.com/heirloomhq/heirloom/internal/log"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Knowledge *knowledge.Store
	Ingestor  *ingest.Ingestor
	Responder *chat.Responder
	Auth      *auth.Authenticator
	Server    *api.Server

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources acquired during Setup, in reverse order.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}
