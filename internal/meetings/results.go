package meetings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scribe/internal/extraction"
	"scribe/internal/jobs"
	"scribe/internal/services"
	"scribe/internal/sqlstore"
)

// TaskStatusDraft marks tasks awaiting review.
const TaskStatusDraft = "draft"

// StoreRequest carries everything persisted for one finished extraction.
type StoreRequest struct {
	MeetingID     string
	Title         string
	StartedAt     string
	Filename      string
	Transcript    string
	TranscriptURI string
	Result        *extraction.Result
}

// StoredTask is a persisted task with its assignee resolved to a user.
type StoredTask struct {
	ID           string               `json:"id" yaml:"id"`
	MeetingID    string               `json:"meeting_id" yaml:"meeting_id"`
	RunID        string               `json:"run_id" yaml:"run_id"`
	Position     int                  `json:"position" yaml:"position"`
	Summary      string               `json:"summary" yaml:"summary"`
	Description  string               `json:"description" yaml:"description"`
	IssueType    extraction.IssueType `json:"issue_type" yaml:"issue_type"`
	Priority     extraction.Priority  `json:"priority" yaml:"priority"`
	StoryPoints  *int                 `json:"story_points,omitempty" yaml:"story_points,omitempty"`
	AssigneeID   string               `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	AssigneeName string               `json:"assignee_name,omitempty" yaml:"assignee_name,omitempty"`
	Labels       []string             `json:"labels" yaml:"labels"`
	Links        []string             `json:"links" yaml:"links"`
	Quotes       []string             `json:"quotes" yaml:"quotes"`
	Status       string               `json:"status" yaml:"status"`
	CreatedAt    time.Time            `json:"created_at" yaml:"created_at"`
}

// StoreMeetingAndResult upserts the meeting row, records a new extraction run
// and replaces the meeting's tasks with the run's tasks, all in one
// transaction. Repeating the call for the same meeting overwrites the meeting
// and task rows rather than duplicating them. A meeting id is generated when
// none is given.
func (s *Store) StoreMeetingAndResult(ctx context.Context, req StoreRequest) (string, string, error) {
	if req.Result == nil {
		return "", "", services.Wrap(services.ErrValidation, "meetings", "store result", "extraction result is required", nil)
	}
	meetingID := strings.TrimSpace(req.MeetingID)
	if meetingID == "" {
		meetingID = s.newID()
	}
	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = req.Filename
	}
	payload, err := json.Marshal(req.Result)
	if err != nil {
		return "", "", fmt.Errorf("encode extraction payload: %w", err)
	}
	runID := s.newID()
	now := s.timestamp()

	err = sqlstore.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO meetings (id, title, started_at, status, original_filename, transcript, transcript_uri, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    started_at = CASE WHEN excluded.started_at = '' THEN meetings.started_at ELSE excluded.started_at END,
    original_filename = COALESCE(excluded.original_filename, meetings.original_filename),
    transcript = excluded.transcript,
    transcript_uri = excluded.transcript_uri,
    updated_at = excluded.updated_at`,
			meetingID, title, req.StartedAt, jobs.StatusProcessing, sqlstore.NullableString(req.Filename),
			req.Transcript, sqlstore.NullableString(req.TranscriptURI), now, now,
		); err != nil {
			return fmt.Errorf("upsert meeting: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO extraction_runs (id, meeting_id, payload_json, task_count, created_at) VALUES (?, ?, ?, ?, ?)`,
			runID, meetingID, string(payload), len(req.Result.Tasks), now,
		); err != nil {
			return fmt.Errorf("record extraction run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE meeting_id = ?`, meetingID); err != nil {
			return fmt.Errorf("clear previous tasks: %w", err)
		}
		for i, task := range req.Result.Tasks {
			if err := s.insertTask(ctx, tx, meetingID, runID, i, task, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return meetingID, runID, nil
}

func (s *Store) insertTask(ctx context.Context, tx *sql.Tx, meetingID, runID string, position int, task extraction.Task, now string) error {
	var assigneeID any
	if name := task.Assignee(); name != "" {
		id, err := s.userIDByName(ctx, tx, name, now)
		if err != nil {
			return err
		}
		assigneeID = id
	}
	var points any
	if task.StoryPoints != nil {
		points = *task.StoryPoints
	}
	labels, links, quotes := encodeList(task.Labels), encodeList(task.Links), encodeList(task.Quotes)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO tasks (id, meeting_id, run_id, position, summary, description, issue_type, priority,
    story_points, assignee_id, labels, links, quotes, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), meetingID, runID, position, task.Summary, task.Description, string(task.IssueType),
		string(task.Priority), points, assigneeID, labels, links, quotes, TaskStatusDraft, now, now,
	); err != nil {
		return fmt.Errorf("insert task %d: %w", position, err)
	}
	return nil
}

// userIDByName returns the user with display name (case-insensitive),
// creating one when absent.
func (s *Store) userIDByName(ctx context.Context, tx *sql.Tx, displayName, now string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
INSERT INTO users (id, display_name, name_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(name_key) DO UPDATE SET name_key = excluded.name_key
RETURNING id`,
		s.newID(), strings.TrimSpace(displayName), nameKey(displayName), now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("resolve user %q: %w", displayName, err)
	}
	return id, nil
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	MeetingID string
	Status    string
}

// ListTasks returns tasks ordered by meeting and extraction position.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]StoredTask, error) {
	query := `
SELECT t.id, t.meeting_id, t.run_id, t.position, t.summary, t.description, t.issue_type, t.priority,
    t.story_points, t.assignee_id, u.display_name, t.labels, t.links, t.quotes, t.status, t.created_at
FROM tasks t LEFT JOIN users u ON u.id = t.assignee_id`
	var (
		clauses []string
		args    []any
	)
	if filter.MeetingID != "" {
		clauses = append(clauses, "t.meeting_id = ?")
		args = append(args, filter.MeetingID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "t.status = ?")
		args = append(args, filter.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY t.meeting_id, t.position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []StoredTask
	for rows.Next() {
		var (
			t                     StoredTask
			issueType, priority   string
			points                sql.NullInt64
			assigneeID, assignee  sql.NullString
			labels, links, quotes string
			created               string
		)
		if err := rows.Scan(&t.ID, &t.MeetingID, &t.RunID, &t.Position, &t.Summary, &t.Description,
			&issueType, &priority, &points, &assigneeID, &assignee, &labels, &links, &quotes,
			&t.Status, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.IssueType = extraction.IssueType(issueType)
		t.Priority = extraction.Priority(priority)
		if points.Valid {
			n := int(points.Int64)
			t.StoryPoints = &n
		}
		t.AssigneeID = assigneeID.String
		t.AssigneeName = assignee.String
		t.Labels = decodeList(labels)
		t.Links = decodeList(links)
		t.Quotes = decodeList(quotes)
		t.CreatedAt = sqlstore.ParseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Run summarizes one extraction run.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	MeetingID string    `json:"meeting_id" yaml:"meeting_id"`
	TaskCount int       `json:"task_count" yaml:"task_count"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ListRuns returns a meeting's extraction runs, oldest first.
func (s *Store) ListRuns(ctx context.Context, meetingID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, task_count, created_at FROM extraction_runs WHERE meeting_id = ? ORDER BY created_at, rowid`,
		meetingID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			run     Run
			created string
		)
		if err := rows.Scan(&run.ID, &run.MeetingID, &run.TaskCount, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.CreatedAt = sqlstore.ParseTime(created)
		out = append(out, run)
	}
	return out, rows.Err()
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(raw string) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
