package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/chat"
)

// sseDataLines extracts the JSON payloads of every data frame.
func sseDataLines(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	for _, line := range strings.Split(body, "\n") {
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			payloads = append(payloads, after)
		}
	}
	return payloads
}

func TestChatStreamsDeltasThenDone(t *testing.T) {
	ts := newTestServer()
	convID := uuid.New()
	ts.responder.deltas = []string{"Hello ", "there."}
	ts.responder.result = chat.Result{ConversationID: convID, Text: "Hello there."}

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q}`, uuid.NewString())
	rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	frames := sseDataLines(t, rec.Body.String())
	if len(frames) != 3 {
		t.Fatalf("got %d data frames, want 2 deltas + done: %q", len(frames), rec.Body.String())
	}

	var first textEvent
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil || first.Text != "Hello " {
		t.Errorf("first frame = %q", frames[0])
	}
	var second textEvent
	if err := json.Unmarshal([]byte(frames[1]), &second); err != nil || second.Text != "there." {
		t.Errorf("second frame = %q", frames[1])
	}
	var done doneEvent
	if err := json.Unmarshal([]byte(frames[2]), &done); err != nil || !done.Done {
		t.Fatalf("final frame = %q", frames[2])
	}
	if done.ConversationID != convID.String() {
		t.Errorf("done conversation_id = %q, want %q", done.ConversationID, convID)
	}
}

func TestChatCarriesPrincipalIntoRequest(t *testing.T) {
	ts := newTestServer()
	portraitID := uuid.New()

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q}`, portraitID)
	if rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, body); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := ts.responder.gotReq
	if got.UserID != ts.userID {
		t.Errorf("request user = %s, want the authenticated principal", got.UserID)
	}
	if got.PortraitID != portraitID {
		t.Errorf("request portrait = %s", got.PortraitID)
	}
	if got.Message != "hi" {
		t.Errorf("request message = %q", got.Message)
	}
}

func TestChatUnknownPortraitIsPlainError(t *testing.T) {
	ts := newTestServer()
	ts.responder.err = fmt.Errorf("load portrait: %w", apperr.ErrNotFound)

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q}`, uuid.NewString())
	rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, body)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, error before streaming must stay JSON", ct)
	}
	if code := decodeErrorCode(t, rec); code != "not_found" {
		t.Errorf("error code = %q", code)
	}
}

func TestChatRejectsBadIDs(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, `{"message": "hi", "portrait_id": "nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad portrait_id status = %d", rec.Code)
	}

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q, "conversation_id": "nope"}`, uuid.NewString())
	rec = ts.do(http.MethodPost, "/api/v1/chat", userKey, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad conversation_id status = %d", rec.Code)
	}
}

func TestChatProviderFailureMapsTo502(t *testing.T) {
	ts := newTestServer()
	ts.responder.err = fmt.Errorf("generate reply: %w", apperr.ErrProvider)

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q}`, uuid.NewString())
	rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, body)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "provider_error" {
		t.Errorf("error code = %q", code)
	}
}

func TestChatMidStreamFailureEndsWithErrorEvent(t *testing.T) {
	ts := newTestServer()
	ts.responder.deltas = []string{"Hello "}
	ts.responder.errAfterStream = fmt.Errorf("%w: generate: stream cut", apperr.ErrProvider)

	body := fmt.Sprintf(`{"message": "hi", "portrait_id": %q}`, uuid.NewString())
	rec := ts.do(http.MethodPost, "/api/v1/chat", userKey, body)

	// The status line is already committed once text has been flushed.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	frames := sseDataLines(t, rec.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d data frames, want delta + error: %q", len(frames), rec.Body.String())
	}

	var first textEvent
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil || first.Text != "Hello " {
		t.Errorf("first frame = %q", frames[0])
	}

	var last errorBody
	if err := json.Unmarshal([]byte(frames[1]), &last); err != nil {
		t.Fatalf("final frame is not an error envelope: %q", frames[1])
	}
	if last.Error.Code != "provider_error" {
		t.Errorf("error code = %q, want provider_error", last.Error.Code)
	}

	var done doneEvent
	if err := json.Unmarshal([]byte(frames[1]), &done); err == nil && done.Done {
		t.Error("stream ended with a done event despite the failure")
	}
}
