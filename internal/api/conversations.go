package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/auth"
	"github.com/heirloomhq/heirloom/internal/conversation"
)

type conversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
}

type conversationHandler struct {
	convs  conversationStore
	logger *slog.Logger
}

type conversationView struct {
	ID         uuid.UUID `json:"id"`
	PortraitID uuid.UUID `json:"portrait_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type messageView struct {
	ID               uuid.UUID   `json:"id"`
	Role             string      `json:"role"`
	Content          string      `json:"content"`
	ChunksReferenced []uuid.UUID `json:"chunks_referenced,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

type conversationResponse struct {
	Conversation conversationView `json:"conversation"`
	Messages     []messageView    `json:"messages"`
}

// get returns one conversation with its full message history in creation
// order. Conversations are visible to their owner only.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "conversation id is not a valid uuid")
		return
	}

	conv, err := h.convs.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if conv.UserID != principal.UserID {
		writeError(w, h.logger, fmt.Errorf("%w: conversation belongs to another user", apperr.ErrForbidden))
		return
	}

	messages, err := h.convs.Messages(r.Context(), id, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]messageView, len(messages))
	for i, m := range messages {
		views[i] = messageView{
			ID:               m.ID,
			Role:             m.Role,
			Content:          m.Content,
			ChunksReferenced: m.ChunksReferenced,
			CreatedAt:        m.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		Conversation: conversationView{
			ID:         conv.ID,
			PortraitID: conv.PortraitID,
			Title:      conv.Title,
			CreatedAt:  conv.CreatedAt,
			UpdatedAt:  conv.UpdatedAt,
		},
		Messages: views,
	})
}
