package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/jobs"
	"scribe/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

const defaultQueueName = "meeting-import"

// Store is a SQLite-backed message queue with lease-based visibility.
// Receiving a message hides it until its lease expires; only Delete with the
// current receipt removes it.
type Store struct {
	db            *sql.DB
	path          string
	name          string
	maxDeliveries int
	now           func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithName scopes the store to a named queue inside the database.
func WithName(name string) Option {
	return func(s *Store) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			s.name = trimmed
		}
	}
}

// WithMaxDeliveries dead-letters messages received more than n times. Zero disables the limit.
func WithMaxDeliveries(n int) Option {
	return func(s *Store) {
		s.maxDeliveries = n
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the queue database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlstore.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path, name: defaultQueueName, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := sqlstore.EnsureSchema(context.Background(), db, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenFromConfig opens the queue configured for the daemon and CLI.
func OpenFromConfig(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return Open(cfg.QueueDBPath(), WithName(cfg.Queue.Name), WithMaxDeliveries(cfg.Queue.MaxDeliveries))
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Name returns the queue name.
func (s *Store) Name() string { return s.name }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Enqueue serializes job and appends it to the queue. It returns once the
// message is committed.
func (s *Store) Enqueue(ctx context.Context, job jobs.ImportJob) error {
	body, err := jobs.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.Send(ctx, body)
	return err
}

// Send appends a raw message body and returns the message id.
func (s *Store) Send(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	now := s.now()
	_, err := sqlstore.Exec(ctx, s.db,
		`INSERT INTO messages (id, queue, body, enqueued_at, visible_at_ms) VALUES (?, ?, ?, ?, ?)`,
		id, s.name, body, sqlstore.FormatTime(now), now.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue message: %w", err)
	}
	return id, nil
}
