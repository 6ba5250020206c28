package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/sqlstore"
)

const testSchema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE things (id TEXT PRIMARY KEY);
`

func TestEnsureSchemaCreatesAndVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := sqlstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := sqlstore.EnsureSchema(ctx, db, testSchema, 1); err != nil {
		t.Fatalf("EnsureSchema create: %v", err)
	}
	if err := sqlstore.EnsureSchema(ctx, db, testSchema, 1); err != nil {
		t.Fatalf("EnsureSchema verify: %v", err)
	}
	if err := sqlstore.EnsureSchema(ctx, db, testSchema, 2); !errors.Is(err, sqlstore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRetryOnBusyRetriesBusyErrors(t *testing.T) {
	attempts := 0
	err := sqlstore.RetryOnBusy(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	boom := errors.New("constraint failed")
	err := sqlstore.RetryOnBusy(context.Background(), func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected single attempt with original error, got %d %v", attempts, err)
	}
}

func TestTimeHelpers(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 30, 0, 123, time.FixedZone("x", 3600))
	if got := sqlstore.ParseTime(sqlstore.FormatTime(now)); !got.Equal(now) {
		t.Fatalf("time round trip mismatch: %v vs %v", got, now)
	}
	if !sqlstore.ParseTime("garbage").IsZero() {
		t.Fatal("expected zero time for invalid input")
	}
	if sqlstore.Placeholders(3) != "?, ?, ?" {
		t.Fatalf("unexpected placeholders %q", sqlstore.Placeholders(3))
	}
	if sqlstore.NullableString("  ") != nil {
		t.Fatal("expected nil for blank string")
	}
}
