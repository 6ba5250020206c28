package meetings

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// Store is the meetings repository.
type Store struct {
	db    *sql.DB
	path  string
	now   func() time.Time
	newID func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the repository database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlstore.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(store)
	}
	if err := sqlstore.EnsureSchema(context.Background(), db, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenFromConfig opens the repository configured for the daemon and CLI.
func OpenFromConfig(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return Open(cfg.MeetingsDBPath())
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) timestamp() string {
	return sqlstore.FormatTime(s.now())
}
