package chat

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/conversation"
)

// maxOutputTokens caps a single model reply.
const maxOutputTokens = 2048

// Prompt is everything the model needs for one reply: the persona system
// prompt (already carrying the reference material), the prior turns in
// creation order, and the new user message.
type Prompt struct {
	System      string
	History     []conversation.Message
	UserMessage string
}

// DeltaFunc receives each partial text chunk in arrival order. Returning an
// error aborts generation.
type DeltaFunc func(ctx context.Context, delta string) error

// Generator produces one streamed model reply.
type Generator interface {
	Complete(ctx context.Context, p Prompt, onDelta DeltaFunc) (string, error)
}

// GenkitGenerator generates replies through a Genkit-registered model.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitGenerator creates a GenkitGenerator. modelName is the
// provider-qualified model name, e.g. "googleai/gemini-2.5-flash".
func NewGenkitGenerator(g *genkit.Genkit, modelName string) *GenkitGenerator {
	return &GenkitGenerator{g: g, modelName: modelName}
}

// Complete runs one generation, forwarding streamed text parts to onDelta as
// they arrive. It returns the full reply text.
func (gg *GenkitGenerator) Complete(ctx context.Context, p Prompt, onDelta DeltaFunc) (string, error) {
	messages := make([]*ai.Message, 0, len(p.History)+1)
	for _, m := range p.History {
		switch m.Role {
		case conversation.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(p.UserMessage)))

	opts := []ai.GenerateOption{
		ai.WithSystem(p.System),
		ai.WithMessages(messages...),
		ai.WithConfig(map[string]any{"maxOutputTokens": maxOutputTokens}),
	}
	if gg.modelName != "" {
		opts = append(opts, ai.WithModelName(gg.modelName))
	}
	if onDelta != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text == "" {
					continue
				}
				if err := onDelta(ctx, part.Text); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: generate: %w", apperr.ErrProvider, err)
	}
	return resp.Text(), nil
}
