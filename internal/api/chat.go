package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/auth"
	"github.com/heirloomhq/heirloom/internal/chat"
)

// maxChatBody bounds the chat request body.
const maxChatBody = 1 << 20

// responder runs one grounded chat exchange.
type responder interface {
	Respond(ctx context.Context, req chat.Request, stream chat.StreamFunc) (chat.Result, error)
}

type chatHandler struct {
	responder responder
	logger    *slog.Logger
}

type chatRequest struct {
	Message        string `json:"message"`
	PortraitID     string `json:"portrait_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// textEvent is one streamed reply delta.
type textEvent struct {
	Text string `json:"text"`
}

// doneEvent terminates the stream.
type doneEvent struct {
	Done           bool   `json:"done"`
	ConversationID string `json:"conversation_id"`
}

// send streams one exchange as SSE. Errors raised before the first delta go
// out as ordinary JSON error responses; once text has been flushed the
// status line is gone, so later failures become a terminal error event.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	req := chat.Request{
		UserID:  principal.UserID,
		Viewer:  principal.Tier,
		Message: body.Message,
	}
	if body.PortraitID != "" {
		id, err := uuid.Parse(body.PortraitID)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "portrait_id is not a valid uuid")
			return
		}
		req.PortraitID = id
	}
	if body.ConversationID != "" {
		id, err := uuid.Parse(body.ConversationID)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", "conversation_id is not a valid uuid")
			return
		}
		req.ConversationID = id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	started := false
	stream := func(delta string) error {
		if !started {
			startSSE(w)
			started = true
		}
		return writeData(w, flusher, textEvent{Text: delta})
	}

	res, err := h.responder.Respond(r.Context(), req, stream)
	if err != nil {
		if !started {
			writeError(w, h.logger, err)
			return
		}
		h.logger.Error("chat stream failed after delivery started", "error", err)
		status, code := errorStatus(err)
		msg := http.StatusText(status)
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
		_ = writeData(w, flusher, errorBody{Error: errorDetail{Code: code, Message: msg}})
		return
	}

	if !started {
		// Empty reply still needs the SSE preamble before the done event.
		startSSE(w)
	}
	_ = writeData(w, flusher, doneEvent{Done: true, ConversationID: res.ConversationID.String()})
}

// startSSE sends the event-stream headers.
func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// writeData writes one SSE data frame and flushes it.
func writeData(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}
