package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/tier"
)

// searchTimeout bounds a single vector similarity query.
const searchTimeout = 10 * time.Second

// DB is the subset of pgxpool.Pool the store needs. Defined by the consumer
// so tests and transactions can substitute the pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages knowledge chunks in PostgreSQL with pgvector similarity
// search. Tier filtering happens inside the match_knowledge_chunks SQL
// function: the store passes the viewer's resolved tier level and the
// database excludes chunks gated above it. Omitting that filter fails open,
// so any replacement storage layer must reimplement it.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(db DB, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// InsertBatch inserts one row per chunk inside a single transaction; either
// every chunk is persisted or none are. vectors[i] is the embedding for
// chunks[i]. Returns the generated chunk IDs in input order.
func (s *Store) InsertBatch(ctx context.Context, chunks []Chunk, vectors [][]float32) ([]uuid.UUID, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", apperr.ErrStorage, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", apperr.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO knowledge_chunks
			(portrait_id, content, embedding, source_title, source_type, source_date, min_tier, chunk_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7::access_tier, $8)
		RETURNING id`

	ids := make([]uuid.UUID, 0, len(chunks))
	for i, c := range chunks {
		var id pgtype.UUID
		err := tx.QueryRow(ctx, insert,
			pgUUID(c.PortraitID),
			c.Content,
			pgvector.NewVector(vectors[i]),
			nullText(c.SourceTitle),
			nullText(c.SourceType),
			nullDate(c.SourceDate),
			c.MinTier.String(),
			c.ChunkIndex,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("%w: insert chunk %d: %v", apperr.ErrStorage, i, err)
		}
		ids = append(ids, uuid.UUID(id.Bytes))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", apperr.ErrStorage, err)
	}

	s.logger.Debug("inserted chunk batch", "count", len(ids), "portrait_id", chunks[0].PortraitID)
	return ids, nil
}

// Search embeds the query and returns up to limit chunks for the portrait,
// highest similarity first, excluding chunks whose min_tier exceeds the
// viewer's tier. Storage errors propagate; there are no partial results.
func (s *Store) Search(ctx context.Context, query string, portraitID uuid.UUID, viewer tier.Tier, opts ...SearchOption) ([]Match, error) {
	cfg := buildSearchConfig(opts)

	embedding, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	const match = `
		SELECT id, content, source_title, source_type, similarity
		FROM match_knowledge_chunks($1, $2, $3, $4)`

	rows, err := s.db.Query(queryCtx, match,
		pgvector.NewVector(embedding),
		pgUUID(portraitID),
		cfg.limit,
		viewer.Level(),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: similarity search timed out: %v", apperr.ErrStorage, err)
		}
		return nil, fmt.Errorf("%w: similarity search: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id                     pgtype.UUID
			content                string
			sourceTitle, sourceTyp pgtype.Text
			similarity             float32
		)
		if err := rows.Scan(&id, &content, &sourceTitle, &sourceTyp, &similarity); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", apperr.ErrStorage, err)
		}
		matches = append(matches, Match{
			ID:          uuid.UUID(id.Bytes),
			Content:     content,
			SourceTitle: sourceTitle.String,
			SourceType:  sourceTyp.String,
			Similarity:  similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", apperr.ErrStorage, err)
	}

	s.logger.Debug("chunk search", "portrait_id", portraitID, "tier", viewer.String(), "matches", len(matches))
	return matches, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	PortraitID uuid.UUID // uuid.Nil = all portraits
	Search     string    // substring match on content
	Page       int       // 1-based; values < 1 are treated as 1
	PageSize   int       // values < 1 use DefaultPageSize
}

// DefaultPageSize is the admin browse page size.
const DefaultPageSize = 25

// List returns a page of chunks for admin browsing, newest first, plus the
// total count matching the filter.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Chunk, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}

	const q = `
		SELECT id, portrait_id, content, source_title, source_type, min_tier, chunk_index, created_at,
		       count(*) OVER () AS total
		FROM knowledge_chunks
		WHERE ($1::uuid IS NULL OR portrait_id = $1)
		  AND ($2::text IS NULL OR content ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, chunk_index
		LIMIT $3 OFFSET $4`

	var portraitArg any
	if f.PortraitID != uuid.Nil {
		portraitArg = pgUUID(f.PortraitID)
	}
	var searchArg any
	if f.Search != "" {
		searchArg = f.Search
	}

	rows, err := s.db.Query(ctx, q, portraitArg, searchArg, f.PageSize, (f.Page-1)*f.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list chunks: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	var chunks []Chunk
	var total int
	for rows.Next() {
		var (
			id, portraitID         pgtype.UUID
			content, minTier       string
			sourceTitle, sourceTyp pgtype.Text
			chunkIndex             int
			createdAt              pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &portraitID, &content, &sourceTitle, &sourceTyp, &minTier, &chunkIndex, &createdAt, &total); err != nil {
			return nil, 0, fmt.Errorf("%w: scan chunk: %v", apperr.ErrStorage, err)
		}
		minT, err := tier.Parse(minTier)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: chunk %s: %v", apperr.ErrStorage, uuid.UUID(id.Bytes), err)
		}
		chunks = append(chunks, Chunk{
			ID:          uuid.UUID(id.Bytes),
			PortraitID:  uuid.UUID(portraitID.Bytes),
			Content:     content,
			SourceTitle: sourceTitle.String,
			SourceType:  sourceTyp.String,
			MinTier:     minT,
			ChunkIndex:  chunkIndex,
			CreatedAt:   createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: list chunks: %v", apperr.ErrStorage, err)
	}
	return chunks, total, nil
}

// Delete removes a chunk by ID. Returns apperr.ErrNotFound for unknown IDs.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE id = $1`, pgUUID(id))
	if err != nil {
		return fmt.Errorf("%w: delete chunk %s: %v", apperr.ErrStorage, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chunk %s", apperr.ErrNotFound, id)
	}
	s.logger.Debug("deleted chunk", "id", id)
	return nil
}

// pgUUID converts a google/uuid UUID to pgtype.
func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// nullText maps "" to SQL NULL.
func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// nullDate maps the zero time to SQL NULL.
func nullDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: t, Valid: !t.IsZero()}
}
