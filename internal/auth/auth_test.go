package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/log"
	"github.com/heirloomhq/heirloom/internal/tier"
)

type fakeRow struct {
	err     error
	id      uuid.UUID
	tier    string
	isAdmin bool
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*pgtype.UUID)) = pgtype.UUID{Bytes: r.id, Valid: true}
	*(dest[1].(*string)) = r.tier
	*(dest[2].(*bool)) = r.isAdmin
	return nil
}

type fakeDB struct {
	row      fakeRow
	calls    int
	lastArgs []any
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	db.calls++
	db.lastArgs = args
	return db.row
}

func TestHashKey(t *testing.T) {
	// sha256("test")
	const want = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got := HashKey("test"); got != want {
		t.Errorf("HashKey = %s, want %s", got, want)
	}
}

func TestResolveEmptyKey(t *testing.T) {
	db := &fakeDB{}
	a := New(db, log.NewNop())

	_, err := a.Resolve(context.Background(), "")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if db.calls != 0 {
		t.Error("database queried for an empty key")
	}
}

func TestResolveUnknownKey(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	a := New(db, log.NewNop())

	_, err := a.Resolve(context.Background(), "hl_nope")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestResolveKnownKey(t *testing.T) {
	id := uuid.New()
	db := &fakeDB{row: fakeRow{id: id, tier: "family", isAdmin: true}}
	a := New(db, log.NewNop())

	p, err := a.Resolve(context.Background(), "hl_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != id || p.Tier != tier.Family || !p.Admin {
		t.Errorf("principal = %+v", p)
	}
	if db.lastArgs[0] != HashKey("hl_secret") {
		t.Error("lookup did not use the key's digest")
	}
}

func TestResolveCorruptTier(t *testing.T) {
	db := &fakeDB{row: fakeRow{id: uuid.New(), tier: "vip"}}
	a := New(db, log.NewNop())

	_, err := a.Resolve(context.Background(), "hl_secret")
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("principal found on an empty context")
	}

	p := &Principal{UserID: uuid.New(), Tier: tier.Colleague}
	ctx := WithPrincipal(context.Background(), p)
	got, ok := FromContext(ctx)
	if !ok || got != p {
		t.Fatal("principal did not round trip through the context")
	}
}
