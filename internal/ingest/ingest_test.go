package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/audit"
	"github.com/heirloomhq/heirloom/internal/chunker"
	"github.com/heirloomhq/heirloom/internal/knowledge"
	"github.com/heirloomhq/heirloom/internal/log"
	"github.com/heirloomhq/heirloom/internal/tier"
)

type fakeEmbedder struct {
	calls  int
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs = texts
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type fakeChunkStore struct {
	inserted []knowledge.Chunk
	vectors  [][]float32
	err      error
}

func (f *fakeChunkStore) InsertBatch(_ context.Context, chunks []knowledge.Chunk, vectors [][]float32) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inserted = chunks
	f.vectors = vectors
	ids := make([]uuid.UUID, len(chunks))
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids, nil
}

type fakeAuditor struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAuditor) Record(_ context.Context, e audit.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func newIngestor(embedder *fakeEmbedder, store *fakeChunkStore, auditor *fakeAuditor) *Ingestor {
	return New(chunker.Paragraph{}, embedder, store, auditor, log.NewNop())
}

func multiParagraph() string {
	paragraphs := []string{
		"He built the rocking chair the winter before the twins were born.",
		"The recipe card is stained with vanilla and dated in her handwriting.",
		"Every evictions notice got answered with a letter to the editor.",
		"The shortwave radio stayed on through every storm season.",
	}
	return strings.Join(paragraphs, "\n\n")
}

func TestIngestCreatesDenseIndexedChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeChunkStore{}
	auditor := &fakeAuditor{}
	ing := newIngestor(embedder, store, auditor)

	portraitID := uuid.New()
	res, err := ing.Ingest(context.Background(), Request{
		PortraitID:   portraitID,
		Content:      multiParagraph(),
		SourceTitle:  "Letters 1974-1980",
		MinTier:      tier.Colleague,
		ChunkOptions: &chunker.Options{MaxChunkSize: 80, Overlap: 0},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if res.ChunksCreated < 2 {
		t.Fatalf("chunks created = %d, want several", res.ChunksCreated)
	}
	if len(res.IDs) != res.ChunksCreated {
		t.Errorf("len(IDs) = %d, want %d", len(res.IDs), res.ChunksCreated)
	}
	if len(store.inserted) != res.ChunksCreated {
		t.Fatalf("inserted %d rows, want %d", len(store.inserted), res.ChunksCreated)
	}
	for i, c := range store.inserted {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d; indices must be dense and 0-based", i, c.ChunkIndex)
		}
		if c.PortraitID != portraitID {
			t.Errorf("chunk %d has portrait %s", i, c.PortraitID)
		}
		if c.MinTier != tier.Colleague {
			t.Errorf("chunk %d has tier %s, want colleague", i, c.MinTier)
		}
		if c.SourceType != knowledge.DefaultSourceType {
			t.Errorf("chunk %d source_type = %q, want default %q", i, c.SourceType, knowledge.DefaultSourceType)
		}
	}
}

func TestIngestSingleEmbeddingCall(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeChunkStore{}
	ing := newIngestor(embedder, store, &fakeAuditor{})

	_, err := ing.Ingest(context.Background(), Request{
		PortraitID:   uuid.New(),
		Content:      multiParagraph(),
		ChunkOptions: &chunker.Options{MaxChunkSize: 80, Overlap: 0},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want exactly one batched call", embedder.calls)
	}
	if len(embedder.inputs) != len(store.inserted) {
		t.Errorf("embedded %d texts for %d rows", len(embedder.inputs), len(store.inserted))
	}
	for i, c := range store.inserted {
		if embedder.inputs[i] != c.Content {
			t.Errorf("embedding %d does not correspond to chunk %d", i, i)
		}
		if store.vectors[i][0] != float32(i) {
			t.Errorf("vector %d out of order", i)
		}
	}
}

func TestIngestAuditRecord(t *testing.T) {
	auditor := &fakeAuditor{}
	ing := newIngestor(&fakeEmbedder{}, &fakeChunkStore{}, auditor)

	res, err := ing.Ingest(context.Background(), Request{
		PortraitID:  uuid.New(),
		Content:     multiParagraph(),
		SourceTitle: "Workshop interviews",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(auditor.entries) != 1 {
		t.Fatalf("got %d audit entries, want exactly 1", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.Action != audit.ActionIngest {
		t.Errorf("action = %q", entry.Action)
	}
	if got := entry.Metadata["chunks_created"]; got != res.ChunksCreated {
		t.Errorf("chunks_created = %v, want %d", got, res.ChunksCreated)
	}
	if entry.Metadata["source_title"] != "Workshop interviews" {
		t.Errorf("source_title = %v", entry.Metadata["source_title"])
	}
}

func TestIngestValidation(t *testing.T) {
	ing := newIngestor(&fakeEmbedder{}, &fakeChunkStore{}, &fakeAuditor{})

	if _, err := ing.Ingest(context.Background(), Request{Content: "text"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing portrait: err = %v, want validation error", err)
	}
	if _, err := ing.Ingest(context.Background(), Request{PortraitID: uuid.New()}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing content: err = %v, want validation error", err)
	}
}

func TestIngestInsertFailureIsAllOrNothing(t *testing.T) {
	auditor := &fakeAuditor{}
	store := &fakeChunkStore{err: apperr.ErrStorage}
	ing := newIngestor(&fakeEmbedder{}, store, auditor)

	_, err := ing.Ingest(context.Background(), Request{
		PortraitID: uuid.New(),
		Content:    multiParagraph(),
	})
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if len(auditor.entries) != 0 {
		t.Error("audit entry written for failed ingestion")
	}
}

func TestIngestEmbeddingFailureInsertsNothing(t *testing.T) {
	store := &fakeChunkStore{}
	embedder := &fakeEmbedder{err: apperr.ErrProvider}
	ing := newIngestor(embedder, store, &fakeAuditor{})

	_, err := ing.Ingest(context.Background(), Request{
		PortraitID: uuid.New(),
		Content:    "some content",
	})
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if store.inserted != nil {
		t.Error("rows inserted despite embedding failure")
	}
}
