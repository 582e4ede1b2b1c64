// Package audit appends records of security-relevant actions (chat requests,
// ingestions, admin edits) to an append-only log table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/heirloomhq/heirloom/internal/apperr"
)

// Actions recorded in the log.
const (
	ActionChat         = "chat"
	ActionIngest       = "ingest"
	ActionChunkDelete  = "chunk_delete"
	ActionPortraitEdit = "portrait_edit"
)

// Entry is one audit record.
type Entry struct {
	UserID       uuid.UUID // uuid.Nil for service-initiated actions
	Action       string
	ResourceType string
	ResourceID   uuid.UUID // uuid.Nil when not applicable
	Metadata     map[string]any
	IPAddress    string
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store writes audit entries.
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

// Record appends one entry. Metadata is stored as JSONB.
func (s *Store) Record(ctx context.Context, e Entry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal audit metadata: %v", apperr.ErrStorage, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, metadata, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		nullUUID(e.UserID),
		e.Action,
		e.ResourceType,
		nullUUID(e.ResourceID),
		metadataJSON,
		nullText(e.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("%w: record audit entry: %v", apperr.ErrStorage, err)
	}

	s.logger.Debug("audit", "action", e.Action, "resource_type", e.ResourceType, "resource_id", e.ResourceID)
	return nil
}

func nullUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
