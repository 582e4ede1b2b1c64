// Package ingest orchestrates the ingestion workflow for new source
// material: chunk the content, embed every chunk in one provider call, and
// insert one row per chunk in a single transaction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/chunker"
	"github.com/heirloomhq/heirloom/internal/knowledge"
	"github.com/heirloomhq/heirloom/internal/tier"
)

// ChunkStore is the persistence the workflow needs.
type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []knowledge.Chunk, vectors [][]float32) ([]uuid.UUID, error)
}

// Auditor records the one-entry-per-ingestion audit trail.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Request describes one ingestion call.
type Request struct {
	PortraitID   uuid.UUID
	Content      string
	SourceTitle  string
	SourceType   string    // defaults to knowledge.DefaultSourceType
	SourceDate   time.Time // zero when unknown
	MinTier      tier.Tier // defaults to the least-restrictive tier (public)
	ChunkOptions *chunker.Options
}

// Result reports what an ingestion created.
type Result struct {
	ChunksCreated int
	IDs           []uuid.UUID
}

// Ingestor runs the chunk → embed → insert pipeline.
type Ingestor struct {
	splitter chunker.Splitter
	embedder knowledge.Embedder
	chunks   ChunkStore
	auditor  Auditor
	logger   *slog.Logger
}

// New creates an Ingestor.
func New(splitter chunker.Splitter, embedder knowledge.Embedder, chunks ChunkStore, auditor Auditor, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		splitter: splitter,
		embedder: embedder,
		chunks:   chunks,
		auditor:  auditor,
		logger:   logger,
	}
}

// Ingest validates the request, splits the content, embeds all segments in a
// single order-preserving call, and inserts one row per segment with a dense
// 0-based chunk_index. The insert is all-or-nothing: on failure no chunks are
// created and the error surfaces. One audit record summarizes each success.
func (ing *Ingestor) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.PortraitID == uuid.Nil {
		return nil, fmt.Errorf("%w: portrait_id is required", apperr.ErrValidation)
	}
	if req.Content == "" {
		return nil, fmt.Errorf("%w: content is required", apperr.ErrValidation)
	}
	if !req.MinTier.Valid() {
		return nil, fmt.Errorf("%w: invalid min_tier %d", apperr.ErrValidation, int(req.MinTier))
	}

	opts := chunker.DefaultOptions()
	if req.ChunkOptions != nil {
		opts = *req.ChunkOptions
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = knowledge.DefaultSourceType
	}

	segments := ing.splitter.Split(req.Content, opts)

	vectors, err := ing.embedder.Embed(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(segments), err)
	}

	rows := make([]knowledge.Chunk, len(segments))
	for i, segment := range segments {
		rows[i] = knowledge.Chunk{
			PortraitID:  req.PortraitID,
			Content:     segment,
			SourceTitle: req.SourceTitle,
			SourceType:  sourceType,
			SourceDate:  req.SourceDate,
			MinTier:     req.MinTier,
			ChunkIndex:  i,
		}
	}

	ids, err := ing.chunks.InsertBatch(ctx, rows, vectors)
	if err != nil {
		return nil, err
	}

	if err := ing.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionIngest,
		ResourceType: "knowledge_chunks",
		Metadata: map[string]any{
			"portrait_id":    req.PortraitID.String(),
			"source_title":   req.SourceTitle,
			"chunks_created": len(ids),
		},
	}); err != nil {
		// The chunks exist; a missing audit row is logged, not fatal.
		ing.logger.Warn("recording ingest audit entry", "error", err)
	}

	ing.logger.Info("ingested source material",
		"portrait_id", req.PortraitID,
		"source_title", req.SourceTitle,
		"chunks", len(ids),
	)
	return &Result{ChunksCreated: len(ids), IDs: ids}, nil
}
