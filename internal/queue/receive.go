package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"scribe/internal/sqlstore"
)

var (
	// ErrMessageNotFound is returned by Delete when the message no longer exists.
	ErrMessageNotFound = errors.New("queue message not found")
	// ErrLeaseLost is returned by Delete when the receipt no longer matches
	// because the lease expired and another consumer received the message.
	ErrLeaseLost = errors.New("queue message lease lost")
)

// Message is one received queue entry. Receipt proves the current lease.
type Message struct {
	ID           string
	Receipt      string
	Body         []byte
	DequeueCount int
	EnqueuedAt   time.Time
	VisibleUntil time.Time
	seq          int64
}

// Receive leases up to maxBatch visible messages for the visibility duration.
// The lease is taken in a single statement, so competing consumers never
// receive the same message while its lease is live.
func (s *Store) Receive(ctx context.Context, maxBatch int, visibility time.Duration) ([]Message, error) {
	if maxBatch <= 0 {
		maxBatch = 1
	}
	if visibility <= 0 {
		return nil, fmt.Errorf("receive: visibility timeout must be positive")
	}
	if _, err := s.deadLetterExhausted(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	visibleUntil := now.Add(visibility)
	var messages []Message
	err := sqlstore.RetryOnBusy(ctx, func() error {
		messages = messages[:0]
		rows, err := s.db.QueryContext(ctx, `
UPDATE messages
SET visible_at_ms = ?, dequeue_count = dequeue_count + 1, receipt = lower(hex(randomblob(16)))
WHERE seq IN (
    SELECT seq FROM messages
    WHERE queue = ? AND visible_at_ms <= ?
    ORDER BY seq
    LIMIT ?
)
RETURNING seq, id, receipt, body, dequeue_count, enqueued_at`,
			visibleUntil.UnixMilli(), s.name, now.UnixMilli(), maxBatch,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				msg      Message
				enqueued string
			)
			if err := rows.Scan(&msg.seq, &msg.ID, &msg.Receipt, &msg.Body, &msg.DequeueCount, &enqueued); err != nil {
				return err
			}
			msg.EnqueuedAt = sqlstore.ParseTime(enqueued)
			msg.VisibleUntil = visibleUntil
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].seq < messages[j].seq })
	return messages, nil
}

// Delete removes a message whose lease is still held by receipt.
func (s *Store) Delete(ctx context.Context, id, receipt string) error {
	res, err := sqlstore.Exec(ctx, s.db,
		`DELETE FROM messages WHERE id = ? AND queue = ? AND receipt = ?`, id, s.name, receipt)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE id = ? AND queue = ?`, id, s.name).Scan(&exists); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if exists == 0 {
		return ErrMessageNotFound
	}
	return ErrLeaseLost
}

// deadLetterExhausted moves visible messages that reached the delivery limit
// into the dead_letters table.
func (s *Store) deadLetterExhausted(ctx context.Context) (int64, error) {
	if s.maxDeliveries <= 0 {
		return 0, nil
	}
	now := s.now()
	var moved int64
	err := sqlstore.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dead_letters (id, queue, body, dequeue_count, enqueued_at, dead_lettered_at)
SELECT id, queue, body, dequeue_count, enqueued_at, ?
FROM messages WHERE queue = ? AND visible_at_ms <= ? AND dequeue_count >= ?`,
			sqlstore.FormatTime(now), s.name, now.UnixMilli(), s.maxDeliveries,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE queue = ? AND visible_at_ms <= ? AND dequeue_count >= ?`,
			s.name, now.UnixMilli(), s.maxDeliveries,
		)
		if err != nil {
			return err
		}
		moved, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("dead-letter exhausted messages: %w", err)
	}
	return moved, nil
}
