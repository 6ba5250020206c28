package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scribe/internal/sqlstore"
)

// Stats summarizes the queue for operators.
type Stats struct {
	Visible      int
	Leased       int
	DeadLettered int
	OldestQueued time.Time
}

// DeadLetter is a message removed after exhausting its deliveries.
type DeadLetter struct {
	ID             string
	Body           []byte
	DequeueCount   int
	EnqueuedAt     time.Time
	DeadLetteredAt time.Time
}

// Stats returns visible, leased and dead-lettered counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		oldest sql.NullString
	)
	nowMs := s.now().UnixMilli()
	err := s.db.QueryRowContext(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN visible_at_ms <= ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN visible_at_ms > ? THEN 1 ELSE 0 END), 0),
    MIN(enqueued_at)
FROM messages WHERE queue = ?`, nowMs, nowMs, s.name).Scan(&stats.Visible, &stats.Leased, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestQueued = sqlstore.ParseTime(oldest.String)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM dead_letters WHERE queue = ?`, s.name).Scan(&stats.DeadLettered); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// DeadLetters lists the most recent dead-lettered messages.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, body, dequeue_count, enqueued_at, dead_lettered_at
FROM dead_letters WHERE queue = ?
ORDER BY dead_lettered_at DESC LIMIT ?`, s.name, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var (
			letter             DeadLetter
			enqueued, deadTime string
		)
		if err := rows.Scan(&letter.ID, &letter.Body, &letter.DequeueCount, &enqueued, &deadTime); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letter.EnqueuedAt = sqlstore.ParseTime(enqueued)
		letter.DeadLetteredAt = sqlstore.ParseTime(deadTime)
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}
