package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/portrait"
)

type portraitStore interface {
	Get(ctx context.Context, id uuid.UUID) (*portrait.Portrait, error)
	GetBySlug(ctx context.Context, slug string) (*portrait.Portrait, error)
	Update(ctx context.Context, p *portrait.Portrait) error
}

type auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type portraitHandler struct {
	portraits  portraitStore
	auditor    auditor
	trustProxy bool
	logger     *slog.Logger
}

// portraitView is the public shape. The system prompt stays server-side.
type portraitView struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	VoiceID     string    `json:"voice_id,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// getBySlug serves public portrait metadata.
func (h *portraitHandler) getBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.portraits.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, portraitView{
		ID:          p.ID,
		Slug:        p.Slug,
		DisplayName: p.DisplayName,
		VoiceID:     p.VoiceID,
		AvatarURL:   p.AvatarURL,
	})
}

type portraitUpdateRequest struct {
	DisplayName  *string `json:"display_name,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	VoiceID      *string `json:"voice_id,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
}

// update edits a portrait's persona fields. Admin only.
func (h *portraitHandler) update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "portrait id is not a valid uuid")
		return
	}

	var body portraitUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	p, err := h.portraits.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if body.DisplayName != nil {
		p.DisplayName = *body.DisplayName
	}
	if body.SystemPrompt != nil {
		p.SystemPrompt = *body.SystemPrompt
	}
	if body.VoiceID != nil {
		p.VoiceID = *body.VoiceID
	}
	if body.AvatarURL != nil {
		p.AvatarURL = *body.AvatarURL
	}

	if err := h.portraits.Update(r.Context(), p); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.auditor.Record(r.Context(), audit.Entry{
		UserID:       principal.UserID,
		Action:       audit.ActionPortraitEdit,
		ResourceType: "portrait",
		ResourceID:   id,
		IPAddress:    clientIP(r, h.trustProxy),
	}); err != nil {
		h.logger.Warn("audit record failed", "action", audit.ActionPortraitEdit, "error", err)
	}

	writeJSON(w, http.StatusOK, portraitView{
		ID:          p.ID,
		Slug:        p.Slug,
		DisplayName: p.DisplayName,
		VoiceID:     p.VoiceID,
		AvatarURL:   p.AvatarURL,
	})
}
