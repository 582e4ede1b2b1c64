package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/chunker"
	"github.com/heirloomhq/heirloom/internal/ingest"
	"github.com/heirloomhq/heirloom/internal/tier"
)

// maxIngestBody bounds the ingest request body. Transcripts run long.
const maxIngestBody = 10 << 20

type ingestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// ingestHandler serves the service-to-service ingestion endpoint. It is not
// behind API key auth; callers present the shared service token instead.
type ingestHandler struct {
	ingestor     ingestor
	serviceToken string
	logger       *slog.Logger
}

type ingestRequest struct {
	PortraitID   string `json:"portrait_id"`
	Content      string `json:"content"`
	SourceTitle  string `json:"source_title,omitempty"`
	SourceType   string `json:"source_type,omitempty"`
	SourceDate   string `json:"source_date,omitempty"` // YYYY-MM-DD
	MinTier      string `json:"min_tier,omitempty"`
	MaxChunkSize *int   `json:"max_chunk_size,omitempty"`
	Overlap      *int   `json:"overlap,omitempty"`
}

type ingestResponse struct {
	ChunksCreated int         `json:"chunks_created"`
	IDs           []uuid.UUID `json:"ids"`
}

func (h *ingestHandler) create(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid service token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	var body ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	req := ingest.Request{
		Content:     body.Content,
		SourceTitle: body.SourceTitle,
		SourceType:  body.SourceType,
	}

	if body.PortraitID != "" {
		id, err := uuid.Parse(body.PortraitID)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "portrait_id is not a valid uuid")
			return
		}
		req.PortraitID = id
	}
	if body.SourceDate != "" {
		d, err := time.Parse("2006-01-02", body.SourceDate)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "source_date must be YYYY-MM-DD")
			return
		}
		req.SourceDate = d
	}
	if body.MinTier != "" {
		t, err := tier.Parse(body.MinTier)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "unknown min_tier")
			return
		}
		req.MinTier = t
	}
	if body.MaxChunkSize != nil || body.Overlap != nil {
		opts := chunker.DefaultOptions()
		if body.MaxChunkSize != nil {
			opts.MaxChunkSize = *body.MaxChunkSize
		}
		if body.Overlap != nil {
			opts.Overlap = *body.Overlap
		}
		req.ChunkOptions = &opts
	}

	res, err := h.ingestor.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{ChunksCreated: res.ChunksCreated, IDs: res.IDs})
}

// authorized compares the bearer credential against the service token in
// constant time. An unconfigured token closes the endpoint entirely.
func (h *ingestHandler) authorized(r *http.Request) bool {
	if h.serviceToken == "" {
		return false
	}
	token := bearerToken(r)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.serviceToken)) == 1
}
