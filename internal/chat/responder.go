// Package chat assembles grounded conversations: it retrieves knowledge
// chunks visible to the caller, composes a persona prompt around them,
// streams the model reply, and persists both sides of the exchange.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/conversation"
	"github.com/heirloomhq/heirloom/internal/knowledge"
	"github.com/heirloomhq/heirloom/internal/portrait"
	"github.com/heirloomhq/heirloom/internal/tier"
)

// PortraitStore loads the persona being spoken with.
type PortraitStore interface {
	Get(ctx context.Context, id uuid.UUID) (*portrait.Portrait, error)
}

// Retriever finds knowledge chunks relevant to the message, already filtered
// to what the viewer's tier may see.
type Retriever interface {
	Search(ctx context.Context, query string, portraitID uuid.UUID, viewer tier.Tier, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	Create(ctx context.Context, userID, portraitID uuid.UUID, title string) (*conversation.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
	Append(ctx context.Context, msg conversation.Message) (uuid.UUID, error)
}

// Auditor records one entry per completed chat exchange.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Request is one user turn.
type Request struct {
	UserID         uuid.UUID
	PortraitID     uuid.UUID
	ConversationID uuid.UUID // zero starts a new conversation
	Viewer         tier.Tier
	Message        string
}

// Result reports a completed exchange. Text is the full assistant reply,
// identical to the concatenation of the streamed deltas.
type Result struct {
	ConversationID uuid.UUID
	Text           string
	ChunkIDs       []uuid.UUID
}

// StreamFunc delivers one reply delta to the client. Once it returns an
// error the client is considered gone and it is not called again.
type StreamFunc func(delta string) error

// Responder runs the retrieve, compose, stream, persist pipeline for one
// user turn.
type Responder struct {
	portraits PortraitStore
	retriever Retriever
	convs     ConversationStore
	generator Generator
	auditor   Auditor
	logger    *slog.Logger
}

// NewResponder creates a Responder.
func NewResponder(portraits PortraitStore, retriever Retriever, convs ConversationStore, generator Generator, auditor Auditor, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		portraits: portraits,
		retriever: retriever,
		convs:     convs,
		generator: generator,
		auditor:   auditor,
		logger:    logger,
	}
}

// Respond handles one user turn. Deltas are forwarded to stream in arrival
// order. The user message is persisted with its retrieved chunk references
// before generation starts; the assistant message and the audit entry are
// written after the reply completes, best effort. Generation and the
// post-stream writes run on a context detached from ctx, so a client
// disconnect mid-stream does not abandon the exchange.
func (r *Responder) Respond(ctx context.Context, req Request, stream StreamFunc) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, fmt.Errorf("%w: message is required", apperr.ErrValidation)
	}
	if req.PortraitID == uuid.Nil {
		return Result{}, fmt.Errorf("%w: portrait_id is required", apperr.ErrValidation)
	}

	p, err := r.portraits.Get(ctx, req.PortraitID)
	if err != nil {
		return Result{}, fmt.Errorf("load portrait: %w", err)
	}

	matches, err := r.retriever.Search(ctx, req.Message, req.PortraitID, req.Viewer)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve context: %w", err)
	}
	chunkIDs := make([]uuid.UUID, len(matches))
	for i, m := range matches {
		chunkIDs[i] = m.ID
	}

	convID := req.ConversationID
	if convID == uuid.Nil {
		conv, err := r.convs.Create(ctx, req.UserID, req.PortraitID, conversation.TitleFromMessage(req.Message))
		if err != nil {
			return Result{}, fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
	} else {
		conv, err := r.convs.Get(ctx, convID)
		if err != nil {
			return Result{}, fmt.Errorf("load conversation: %w", err)
		}
		if conv.UserID != req.UserID {
			return Result{}, fmt.Errorf("%w: conversation belongs to another user", apperr.ErrForbidden)
		}
	}

	history, err := r.convs.Messages(ctx, convID, conversation.HistoryLimit)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	if _, err := r.convs.Append(ctx, conversation.Message{
		ConversationID:   convID,
		Role:             conversation.RoleUser,
		Content:          req.Message,
		ChunksReferenced: chunkIDs,
	}); err != nil {
		return Result{}, fmt.Errorf("save user message: %w", err)
	}

	prompt := Prompt{
		System:      systemPrompt(p, matches),
		History:     history,
		UserMessage: req.Message,
	}

	// The exchange outlives the request once generation starts.
	genCtx := context.WithoutCancel(ctx)

	clientGone := false
	deliver := func(_ context.Context, delta string) error {
		if clientGone {
			return nil
		}
		if streamErr := stream(delta); streamErr != nil {
			clientGone = true
			r.logger.Warn("client left mid-stream, finishing exchange",
				"conversation_id", convID, "error", streamErr)
		}
		return nil
	}

	text, err := r.generator.Complete(genCtx, prompt, deliver)
	if err != nil {
		return Result{ConversationID: convID}, fmt.Errorf("generate reply: %w", err)
	}

	r.finish(genCtx, req, convID, text, len(matches))

	return Result{
		ConversationID: convID,
		Text:           text,
		ChunkIDs:       chunkIDs,
	}, nil
}

// finish persists the assistant message and the audit entry. Failures here
// are logged, never surfaced: the reply has already been delivered.
func (r *Responder) finish(ctx context.Context, req Request, convID uuid.UUID, text string, chunksUsed int) {
	if _, err := r.convs.Append(ctx, conversation.Message{
		ConversationID: convID,
		Role:           conversation.RoleAssistant,
		Content:        text,
	}); err != nil {
		r.logger.Warn("save assistant message failed",
			"conversation_id", convID, "error", err)
	}

	if err := r.auditor.Record(ctx, audit.Entry{
		UserID:       req.UserID,
		Action:       audit.ActionChat,
		ResourceType: "conversation",
		ResourceID:   convID,
		Metadata: map[string]any{
			"portrait_id": req.PortraitID.String(),
			"chunks_used": chunksUsed,
		},
	}); err != nil {
		r.logger.Warn("audit record failed",
			"conversation_id", convID, "error", err)
	}
}

// systemPrompt grounds the persona prompt in the retrieved material. Each
// chunk is labeled with its source title, Unknown when the source was
// untitled.
func systemPrompt(p *portrait.Portrait, matches []knowledge.Match) string {
	refs := make([]string, len(matches))
	for i, m := range matches {
		title := m.SourceTitle
		if title == "" {
			title = "Unknown"
		}
		refs[i] = fmt.Sprintf("[Source: %s]\n%s", title, m.Content)
	}

	return fmt.Sprintf(`%s

---
REFERENCE MATERIAL (from %s's own words and writings):

%s

---
Use the reference material above to ground your responses in what %s has actually said and expressed. If the reference material doesn't contain relevant information for the question, draw on the persona description but note that you're speaking more generally.`,
		p.SystemPrompt, p.DisplayName, strings.Join(refs, "\n\n---\n\n"), p.DisplayName)
}
