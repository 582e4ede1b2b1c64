package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/knowledge"
)

type chunkStore interface {
	List(ctx context.Context, f knowledge.ListFilter) ([]knowledge.Chunk, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// chunksHandler serves the admin knowledge browse and delete endpoints.
type chunksHandler struct {
	chunks     chunkStore
	auditor    auditor
	trustProxy bool
	logger     *slog.Logger
}

type chunkView struct {
	ID          uuid.UUID `json:"id"`
	PortraitID  uuid.UUID `json:"portrait_id"`
	Content     string    `json:"content"`
	SourceTitle string    `json:"source_title,omitempty"`
	SourceType  string    `json:"source_type"`
	MinTier     string    `json:"min_tier"`
	ChunkIndex  int       `json:"chunk_index"`
	CreatedAt   time.Time `json:"created_at"`
}

type chunkListResponse struct {
	Chunks   []chunkView `json:"chunks"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// list pages through chunks, newest first. Query params: portrait_id,
// search (content substring), page.
func (h *chunksHandler) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	filter := knowledge.ListFilter{
		Search: r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("portrait_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "portrait_id is not a valid uuid")
			return
		}
		filter.PortraitID = id
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeErrorCode(w, http.StatusBadRequest, "validation", "page must be a positive integer")
			return
		}
		filter.Page = page
	}

	chunks, total, err := h.chunks.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]chunkView, len(chunks))
	for i, c := range chunks {
		views[i] = chunkView{
			ID:          c.ID,
			PortraitID:  c.PortraitID,
			Content:     c.Content,
			SourceTitle: c.SourceTitle,
			SourceType:  c.SourceType,
			MinTier:     c.MinTier.String(),
			ChunkIndex:  c.ChunkIndex,
			CreatedAt:   c.CreatedAt,
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	writeJSON(w, http.StatusOK, chunkListResponse{
		Chunks:   views,
		Total:    total,
		Page:     page,
		PageSize: knowledge.DefaultPageSize,
	})
}

// delete removes one chunk.
func (h *chunksHandler) delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "chunk id is not a valid uuid")
		return
	}

	if err := h.chunks.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.auditor.Record(r.Context(), audit.Entry{
		UserID:       principal.UserID,
		Action:       audit.ActionChunkDelete,
		ResourceType: "knowledge_chunk",
		ResourceID:   id,
		IPAddress:    clientIP(r, h.trustProxy),
	}); err != nil {
		h.logger.Warn("audit record failed", "action", audit.ActionChunkDelete, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
