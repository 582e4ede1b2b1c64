package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/heirloomhq/heirloom/internal/apperr"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists conversations and messages in PostgreSQL.
//
// Messages are ordered by creation time; concurrent appends to the same
// conversation are not mutually excluded, so interleaving follows insert
// order.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create starts a conversation for a user and portrait.
func (s *Store) Create(ctx context.Context, userID, portraitID uuid.UUID, title string) (*Conversation, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (user_id, portrait_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		pgUUID(userID), pgUUID(portraitID), nullText(title),
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create conversation: %v", apperr.ErrStorage, err)
	}

	conv := &Conversation{
		ID:         uuid.UUID(id.Bytes),
		UserID:     userID,
		PortraitID: portraitID,
		Title:      title,
		CreatedAt:  createdAt.Time,
		UpdatedAt:  createdAt.Time,
	}
	s.logger.Debug("created conversation", "id", conv.ID, "portrait_id", portraitID)
	return conv, nil
}

// Get retrieves a conversation by ID. Returns apperr.ErrNotFound for unknown
// IDs.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var (
		convID, userID, portraitID pgtype.UUID
		title                      pgtype.Text
		createdAt, updatedAt       pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, portrait_id, title, created_at, updated_at
		FROM conversations WHERE id = $1`, pgUUID(id),
	).Scan(&convID, &userID, &portraitID, &title, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get conversation %s: %v", apperr.ErrStorage, id, err)
	}

	return &Conversation{
		ID:         uuid.UUID(convID.Bytes),
		UserID:     uuid.UUID(userID.Bytes),
		PortraitID: uuid.UUID(portraitID.Bytes),
		Title:      title.String,
		CreatedAt:  createdAt.Time,
		UpdatedAt:  updatedAt.Time,
	}, nil
}

// Messages returns the most recent limit messages of a conversation in
// creation order. limit <= 0 loads the full history.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	// The inner query selects the trailing window; the outer one restores
	// creation order.
	q := `
		SELECT id, conversation_id, role, content, chunks_referenced, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id`
	args := []any{pgUUID(conversationID)}
	if limit > 0 {
		q = `
			SELECT id, conversation_id, role, content, chunks_referenced, created_at
			FROM (
				SELECT id, conversation_id, role, content, chunks_referenced, created_at
				FROM messages WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $2
			) tail
			ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			id, convID    pgtype.UUID
			role, content string
			refs          []pgtype.UUID
			createdAt     pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &convID, &role, &content, &refs, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", apperr.ErrStorage, err)
		}
		chunkRefs := make([]uuid.UUID, 0, len(refs))
		for _, r := range refs {
			chunkRefs = append(chunkRefs, uuid.UUID(r.Bytes))
		}
		messages = append(messages, Message{
			ID:               uuid.UUID(id.Bytes),
			ConversationID:   uuid.UUID(convID.Bytes),
			Role:             role,
			Content:          content,
			ChunksReferenced: chunkRefs,
			CreatedAt:        createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", apperr.ErrStorage, err)
	}
	return messages, nil
}

// Append adds a message to a conversation and touches its updated_at.
func (s *Store) Append(ctx context.Context, msg Message) (uuid.UUID, error) {
	refs := make([]pgtype.UUID, len(msg.ChunksReferenced))
	for i, r := range msg.ChunksReferenced {
		refs[i] = pgUUID(r)
	}

	var id pgtype.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, chunks_referenced)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		pgUUID(msg.ConversationID), msg.Role, msg.Content, refs,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: append message: %v", apperr.ErrStorage, err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`,
		pgUUID(msg.ConversationID)); err != nil {
		s.logger.Warn("touching conversation updated_at", "id", msg.ConversationID, "error", err)
	}

	return uuid.UUID(id.Bytes), nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
