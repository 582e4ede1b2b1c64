package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/heirloomhq/heirloom/internal/apperr"
)

// embedTimeout bounds a single embedding call. There is no retry: a failed
// or slow provider call surfaces immediately rather than hanging the request.
const embedTimeout = 30 * time.Second

// Embedder converts text into fixed-length vectors. One vector is returned
// per input, order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface.
// All texts of a call are sent in a single request.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder wraps a Genkit embedder.
func NewGenkitEmbedder(embedder ai.Embedder) *GenkitEmbedder {
	return &GenkitEmbedder{embedder: embedder}
}

// Embed returns one vector per input text, in input order.
// Failures are reported as apperr.ErrProvider.
func (g *GenkitEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	// Gemini embedding models default to wider vectors; truncate to the
	// schema's dimension.
	dim := int32(VectorDim)
	resp, err := g.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding timed out after %s", apperr.ErrProvider, embedTimeout)
		}
		return nil, fmt.Errorf("%w: embed: %v", apperr.ErrProvider, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d inputs",
			apperr.ErrProvider, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", apperr.ErrProvider, i)
		}
		vectors[i] = e.Embedding
	}
	return vectors, nil
}

// EmbedOne is the single-text convenience form of Embed.
func (g *GenkitEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
