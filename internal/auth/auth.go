// Package auth resolves API keys to principals. Keys are high-entropy random
// strings; only their SHA-256 digest is stored, so a lookup hashes the
// presented key and matches it against profiles.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/tier"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Tier   tier.Tier
	Admin  bool
}

// DB is the subset of pgxpool.Pool the authenticator needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Authenticator looks up principals by API key.
type Authenticator struct {
	db     DB
	logger *slog.Logger
}

// New creates an Authenticator.
func New(db DB, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{db: db, logger: logger}
}

// HashKey returns the hex SHA-256 digest stored for an API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Resolve authenticates a raw API key. Unknown or empty keys return
// apperr.ErrUnauthorized.
func (a *Authenticator) Resolve(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("%w: missing api key", apperr.ErrUnauthorized)
	}

	row := a.db.QueryRow(ctx,
		`SELECT id, tier, is_admin FROM profiles WHERE api_key_hash = $1`,
		HashKey(rawKey))

	var (
		id       pgtype.UUID
		tierName string
		isAdmin  bool
	)
	if err := row.Scan(&id, &tierName, &isAdmin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown api key", apperr.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: look up api key: %w", apperr.ErrStorage, err)
	}

	t, err := tier.Parse(tierName)
	if err != nil {
		return nil, fmt.Errorf("%w: profile has invalid tier %q", apperr.ErrStorage, tierName)
	}

	return &Principal{UserID: id.Bytes, Tier: t, Admin: isAdmin}, nil
}

type contextKey struct{}

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal attached by WithPrincipal, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}
