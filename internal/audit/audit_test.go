package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/heirloomhq/heirloom/internal/apperr"
	"github.com/heirloomhq/heirloom/internal/log"
)

type fakeDB struct {
	sql     string
	args    []any
	execErr error
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql = sql
	db.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), db.execErr
}

func TestRecord(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	userID := uuid.New()
	resourceID := uuid.New()
	err := store.Record(context.Background(), Entry{
		UserID:       userID,
		Action:       ActionChat,
		ResourceType: "portrait",
		ResourceID:   resourceID,
		Metadata:     map[string]any{"chunks_used": 3},
		IPAddress:    "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(db.args) != 6 {
		t.Fatalf("Exec args = %d, want 6", len(db.args))
	}
	if got := db.args[0].(pgtype.UUID); !got.Valid || got.Bytes != userID {
		t.Errorf("user_id arg = %+v, want %s", got, userID)
	}
	if db.args[1] != ActionChat {
		t.Errorf("action arg = %v, want %s", db.args[1], ActionChat)
	}

	var metadata map[string]any
	if err := json.Unmarshal(db.args[4].([]byte), &metadata); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if metadata["chunks_used"] != float64(3) {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestRecordServiceAction(t *testing.T) {
	db := &fakeDB{}
	store := NewStore(db, log.NewNop())

	err := store.Record(context.Background(), Entry{Action: ActionIngest})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	// Nil user and resource become SQL NULLs, nil metadata becomes {}.
	if got := db.args[0].(pgtype.UUID); got.Valid {
		t.Errorf("user_id arg = %+v, want NULL", got)
	}
	if got := db.args[3].(pgtype.UUID); got.Valid {
		t.Errorf("resource_id arg = %+v, want NULL", got)
	}
	if string(db.args[4].([]byte)) != "{}" {
		t.Errorf("metadata arg = %s, want {}", db.args[4])
	}
	if got := db.args[5].(pgtype.Text); got.Valid {
		t.Errorf("ip_address arg = %+v, want NULL", got)
	}
}

func TestRecordExecFailure(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	store := NewStore(db, log.NewNop())

	err := store.Record(context.Background(), Entry{Action: ActionChunkDelete})
	if !errors.Is(err, apperr.ErrStorage) {
		t.Errorf("Record() error = %v, want ErrStorage", err)
	}
}
