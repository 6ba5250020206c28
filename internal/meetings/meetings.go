package meetings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scribe/internal/jobs"
	"scribe/internal/services"
	"scribe/internal/sqlstore"
)

// Meeting is one imported meeting.
type Meeting struct {
	ID               string             `json:"id" yaml:"id"`
	Title            string             `json:"title" yaml:"title"`
	StartedAt        string             `json:"started_at" yaml:"started_at"`
	Status           jobs.MeetingStatus `json:"status" yaml:"status"`
	BlobURL          string             `json:"blob_url,omitempty" yaml:"blob_url,omitempty"`
	OriginalFilename string             `json:"original_filename,omitempty" yaml:"original_filename,omitempty"`
	TranscriptURI    string             `json:"transcript_uri,omitempty" yaml:"transcript_uri,omitempty"`
	Transcript       string             `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Error            string             `json:"error,omitempty" yaml:"error,omitempty"`
	DraftCount       int                `json:"draft_count" yaml:"draft_count"`
	CreatedAt        time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Stub is the submission-time record of a meeting.
type Stub struct {
	ID               string
	Title            string
	StartedAt        string
	BlobURL          string
	OriginalFilename string
}

// CreateMeetingStub records a QUEUED meeting. Re-submitting a meeting that is
// still QUEUED refreshes its fields; any other existing status is rejected
// with a *jobs.TransitionError.
func (s *Store) CreateMeetingStub(ctx context.Context, stub Stub) error {
	if strings.TrimSpace(stub.ID) == "" {
		return services.Wrap(services.ErrValidation, "meetings", "create stub", "meeting id is required", nil)
	}
	now := s.timestamp()
	res, err := sqlstore.Exec(ctx, s.db, `
INSERT INTO meetings (id, title, started_at, status, blob_url, original_filename, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    started_at = excluded.started_at,
    blob_url = excluded.blob_url,
    original_filename = excluded.original_filename,
    updated_at = excluded.updated_at
WHERE meetings.status = ?`,
		stub.ID, stub.Title, stub.StartedAt, jobs.StatusQueued,
		sqlstore.NullableString(stub.BlobURL), sqlstore.NullableString(stub.OriginalFilename),
		now, now, jobs.StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("create meeting stub: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	current, err := s.status(ctx, stub.ID)
	if err != nil {
		return err
	}
	return &jobs.TransitionError{MeetingID: stub.ID, From: current, To: jobs.StatusQueued}
}

// UpdateMeetingStatus moves a meeting to status when its current status is an
// allowed predecessor. reason is stored as the error message (cleared when
// empty). Unknown meetings return services.ErrNotFound; refused transitions
// return a *jobs.TransitionError.
func (s *Store) UpdateMeetingStatus(ctx context.Context, meetingID string, status jobs.MeetingStatus, reason string) error {
	from := status.AllowedPredecessors()
	if len(from) == 0 {
		return services.Wrap(services.ErrValidation, "meetings", "update status", fmt.Sprintf("unknown status %q", status), nil)
	}
	args := []any{status, sqlstore.NullableString(reason), s.timestamp(), meetingID}
	for _, st := range from {
		args = append(args, st)
	}
	res, err := sqlstore.Exec(ctx, s.db,
		`UPDATE meetings SET status = ?, error_message = ?, updated_at = ?
WHERE id = ? AND status IN (`+sqlstore.Placeholders(len(from))+`)`, args...)
	if err != nil {
		return fmt.Errorf("update meeting status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	current, err := s.status(ctx, meetingID)
	if err != nil {
		return err
	}
	return &jobs.TransitionError{MeetingID: meetingID, From: current, To: status}
}

func (s *Store) status(ctx context.Context, meetingID string) (jobs.MeetingStatus, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM meetings WHERE id = ?`, meetingID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, "meetings", "status", fmt.Sprintf("meeting %s not found", meetingID), nil)
	}
	if err != nil {
		return "", fmt.Errorf("read meeting status: %w", err)
	}
	return jobs.ParseStatus(raw)
}

const meetingColumns = `
    m.id, m.title, m.started_at, m.status, m.blob_url, m.original_filename,
    m.transcript_uri, m.error_message, m.created_at, m.updated_at,
    (SELECT COUNT(1) FROM tasks t WHERE t.meeting_id = m.id AND t.status = 'draft')`

// GetMeeting returns one meeting including its transcript.
func (s *Store) GetMeeting(ctx context.Context, meetingID string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+meetingColumns+`, m.transcript FROM meetings m WHERE m.id = ?`, meetingID)
	var transcript sql.NullString
	meeting, err := scanMeeting(row, &transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "meetings", "get", fmt.Sprintf("meeting %s not found", meetingID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	meeting.Transcript = transcript.String
	return meeting, nil
}

// ListFilter narrows ListMeetings.
type ListFilter struct {
	Statuses []jobs.MeetingStatus
	Limit    int
}

// ListMeetings returns meetings newest first, without transcripts.
func (s *Store) ListMeetings(ctx context.Context, filter ListFilter) ([]Meeting, error) {
	query := `SELECT` + meetingColumns + ` FROM meetings m`
	var args []any
	if len(filter.Statuses) > 0 {
		query += ` WHERE m.status IN (` + sqlstore.Placeholders(len(filter.Statuses)) + `)`
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY m.started_at DESC, m.created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, *meeting)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner, extra ...any) (*Meeting, error) {
	var (
		m                                      Meeting
		status, created, updated               string
		blobURL, filename, transcriptURI, errs sql.NullString
	)
	dest := []any{&m.ID, &m.Title, &m.StartedAt, &status, &blobURL, &filename,
		&transcriptURI, &errs, &created, &updated, &m.DraftCount}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	parsed, err := jobs.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	m.Status = parsed
	m.BlobURL = blobURL.String
	m.OriginalFilename = filename.String
	m.TranscriptURI = transcriptURI.String
	m.Error = errs.String
	m.CreatedAt = sqlstore.ParseTime(created)
	m.UpdatedAt = sqlstore.ParseTime(updated)
	return &m, nil
}
