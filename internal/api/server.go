// Package api exposes the HTTP surface: the streaming chat endpoint, the
// ingestion endpoint for trusted pipelines, conversation and portrait reads,
// and the admin knowledge browser.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Logger        *slog.Logger
	Responder     responder         // Required
	Ingestor      ingestor          // Required
	Portraits     portraitStore     // Required
	Chunks        chunkStore        // Required
	Conversations conversationStore // Required
	Auth          keyResolver       // Required
	Auditor       auditor           // Required
	Pool          *pgxpool.Pool     // Optional: nil disables the /ready ping
	IngestToken   string            // Shared secret for POST /api/v1/ingest
	CORSOrigins   []string
	TrustProxy    bool // Honor X-Real-IP/X-Forwarded-For
	RateBurst     int  // Per-IP burst, 0 = default 60
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires routes and the middleware stack.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{responder: cfg.Responder, logger: logger}
	ih := &ingestHandler{ingestor: cfg.Ingestor, serviceToken: cfg.IngestToken, logger: logger}
	ph := &portraitHandler{portraits: cfg.Portraits, auditor: cfg.Auditor, trustProxy: cfg.TrustProxy, logger: logger}
	kh := &chunksHandler{chunks: cfg.Chunks, auditor: cfg.Auditor, trustProxy: cfg.TrustProxy, logger: logger}
	vh := &conversationHandler{convs: cfg.Conversations, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/ingest", ih.create)
	mux.HandleFunc("GET /api/v1/conversations/{id}", vh.get)
	mux.HandleFunc("GET /api/v1/portraits/{slug}", ph.getBySlug)
	mux.HandleFunc("GET /api/v1/admin/chunks", kh.list)
	mux.HandleFunc("DELETE /api/v1/admin/chunks/{id}", kh.delete)
	mux.HandleFunc("PUT /api/v1/admin/portraits/{id}", ph.update)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Outermost first: Recovery → RequestID → Logging → CORS → RateLimit →
	// Auth → Routes. RequestID precedes Logging so request_id lands in log
	// attributes; CORS precedes RateLimit so preflight gets its headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Auth, logger, authExempt)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}
}

// authExempt marks routes that do not take API key auth: ingestion carries
// its own service token and portrait metadata is public.
func authExempt(r *http.Request) bool {
	if r.Method == http.MethodPost && r.URL.Path == "/api/v1/ingest" {
		return true
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/portraits/") {
		return true
	}
	return false
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
