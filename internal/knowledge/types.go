package knowledge

import (
	"time"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/tier"
)

// VectorDim is the embedding dimension for knowledge chunks. It must match
// the vector(...) column width in db/migrations.
const VectorDim = 1536

// DefaultSourceType is applied when ingestion does not name a source type.
const DefaultSourceType = "transcript"

// Chunk is a bounded segment of source text plus provenance and its minimum
// visibility tier. Chunks are created only by ingestion and are immutable
// afterwards except for explicit admin edits and deletes.
type Chunk struct {
	ID          uuid.UUID
	PortraitID  uuid.UUID
	Content     string
	SourceTitle string
	SourceType  string
	SourceDate  time.Time // zero when unknown
	MinTier     tier.Tier
	ChunkIndex  int
	CreatedAt   time.Time
}

// Match is a retrieval result: a chunk row plus its similarity score,
// as returned by the match_knowledge_chunks function.
type Match struct {
	ID          uuid.UUID
	Content     string
	SourceTitle string
	SourceType  string
	Similarity  float32
}

// SearchOption configures Search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit int
}

// DefaultSearchLimit is the number of chunks retrieved when no option is given.
const DefaultSearchLimit = 8

// WithLimit sets the maximum number of matches to return.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{limit: DefaultSearchLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
