// Package portrait manages persona records: the identity, system prompt, and
// voice configuration an AI persona is built from. Portraits own knowledge
// chunks and conversations; they change only through admin editing.
package portrait

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

	"github.com/heirloomhq/heirloom/internal/apperr"
)

// Portrait is a configured AI persona.
type Portrait struct {
	ID           uuid.UUID
	Slug         string
	DisplayName  string
	SystemPrompt string
	VoiceID      string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists portraits in PostgreSQL.
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

const portraitColumns = `id, slug, display_name, system_prompt, voice_id, avatar_url, created_at, updated_at`

// Get retrieves a portrait by ID. Returns apperr.ErrNotFound for unknown IDs.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Portrait, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+portraitColumns+` FROM portraits WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true})
	return scanPortrait(row, id.String())
}

// GetBySlug retrieves a portrait by its URL slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Portrait, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+portraitColumns+` FROM portraits WHERE slug = $1`, slug)
	return scanPortrait(row, slug)
}

// Update rewrites the editable fields of a portrait: display name, system
// prompt, and voice configuration. Returns apperr.ErrNotFound when the
// portrait does not exist.
func (s *Store) Update(ctx context.Context, p *Portrait) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE portraits
		SET display_name = $2, system_prompt = $3, voice_id = $4, avatar_url = $5, updated_at = now()
		WHERE id = $1`,
		pgtype.UUID{Bytes: p.ID, Valid: true},
		p.DisplayName,
		p.SystemPrompt,
		nullText(p.VoiceID),
		nullText(p.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("%w: update portrait %s: %v", apperr.ErrStorage, p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: portrait %s", apperr.ErrNotFound, p.ID)
	}
	s.logger.Debug("updated portrait", "id", p.ID, "slug", p.Slug)
	return nil
}

func scanPortrait(row pgx.Row, ref string) (*Portrait, error) {
	var (
		id                   pgtype.UUID
		slug, name, prompt   string
		voiceID, avatarURL   pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &slug, &name, &prompt, &voiceID, &avatarURL, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: portrait %s", apperr.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get portrait %s: %v", apperr.ErrStorage, ref, err)
	}
	return &Portrait{
		ID:           uuid.UUID(id.Bytes),
		Slug:         slug,
		DisplayName:  name,
		SystemPrompt: prompt,
		VoiceID:      voiceID.String,
		AvatarURL:    avatarURL.String,
		CreatedAt:    createdAt.Time,
		UpdatedAt:    updatedAt.Time,
	}, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
