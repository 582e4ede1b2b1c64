package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/heirloomhq/heirloom/internal/apperr"
)

// mockAIEmbedder implements ai.Embedder for testing.
type mockAIEmbedder struct {
	embedErr   error
	dim        int
	callCount  int
	lastInputs []string
}

func (m *mockAIEmbedder) Name() string { return "mock-embedder" }

func (m *mockAIEmbedder) Register(api.Registry) {}

func (m *mockAIEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	m.lastInputs = m.lastInputs[:0]
	for _, doc := range req.Input {
		if len(doc.Content) > 0 {
			m.lastInputs = append(m.lastInputs, doc.Content[0].Text)
		}
	}

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	dim := m.dim
	if dim == 0 {
		dim = 4
	}
	resp := &ai.EmbedResponse{}
	for i := range req.Input {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1) // distinguish positions
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func TestEmbedOrderPreserving(t *testing.T) {
	mock := &mockAIEmbedder{}
	e := NewGenkitEmbedder(mock)

	texts := []string{"first", "second", "third"}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: lead value %v", i, v[0])
		}
	}
	if mock.callCount != 1 {
		t.Errorf("made %d provider calls, want a single batched call", mock.callCount)
	}
	for i, text := range texts {
		if mock.lastInputs[i] != text {
			t.Errorf("input %d = %q, want %q", i, mock.lastInputs[i], text)
		}
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	mock := &mockAIEmbedder{}
	e := NewGenkitEmbedder(mock)

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("Embed(nil) = %v, %v; want nil, nil", vectors, err)
	}
	if mock.callCount != 0 {
		t.Errorf("provider called for empty input")
	}
}

func TestEmbedProviderError(t *testing.T) {
	mock := &mockAIEmbedder{embedErr: errors.New("boom")}
	e := NewGenkitEmbedder(mock)

	_, err := e.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, apperr.ErrProvider) {
		t.Errorf("err = %v, want apperr.ErrProvider", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	// A provider that silently drops inputs must be treated as an error.
	e := NewGenkitEmbedder(&truncatingEmbedder{})

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, apperr.ErrProvider) {
		t.Errorf("err = %v, want apperr.ErrProvider", err)
	}
}

type truncatingEmbedder struct{}

func (*truncatingEmbedder) Name() string          { return "truncating" }
func (*truncatingEmbedder) Register(api.Registry) {}
func (*truncatingEmbedder) Embed(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{1}}}}, nil
}

func TestEmbedOne(t *testing.T) {
	mock := &mockAIEmbedder{dim: 8}
	e := NewGenkitEmbedder(mock)

	vec, err := e.EmbedOne(context.Background(), "query")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("dimension = %d, want 8", len(vec))
	}
}
