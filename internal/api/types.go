package api

import (
	"time"

	"scribe/internal/meetings"
	"scribe/internal/queue"
	"scribe/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Meeting describes a meeting in a transport-friendly format.
type Meeting struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	StartedAt        string `json:"startedAt,omitempty"`
	Status           string `json:"status"`
	BlobURL          string `json:"blobUrl,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	TranscriptURI    string `json:"transcriptUri,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	DraftCount       int    `json:"draftCount"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// Task is an extracted draft task.
type Task struct {
	ID           string   `json:"id"`
	Position     int      `json:"position"`
	Summary      string   `json:"summary"`
	Description  string   `json:"description"`
	IssueType    string   `json:"issueType"`
	Priority     string   `json:"priority"`
	StoryPoints  *int     `json:"storyPoints,omitempty"`
	AssigneeName string   `json:"assigneeName,omitempty"`
	Labels       []string `json:"labels"`
	Links        []string `json:"links"`
	Quotes       []string `json:"quotes"`
	Status       string   `json:"status"`
}

// MeetingDetail is a meeting with its tasks and, on request, its transcript.
type MeetingDetail struct {
	Meeting    Meeting `json:"meeting"`
	Tasks      []Task  `json:"tasks"`
	Transcript string  `json:"transcript,omitempty"`
}

// MeetingListResponse wraps a meeting listing.
type MeetingListResponse struct {
	Meetings []Meeting `json:"meetings"`
}

// ImportRequest is the body of POST /api/meetings/import.
type ImportRequest struct {
	MeetingID        string `json:"meetingId"`
	Title            string `json:"title"`
	StartedAt        string `json:"startedAt"`
	BlobURL          string `json:"blobUrl" binding:"required"`
	OriginalFilename string `json:"originalFilename"`
}

// ImportResponse acknowledges an accepted import.
type ImportResponse struct {
	MeetingID string `json:"meetingId"`
	Status    string `json:"status"`
}

// UploadResponse reports where an upload was stored.
type UploadResponse struct {
	MeetingID string `json:"meetingId"`
	BlobURL   string `json:"blobUrl"`
	Bytes     int    `json:"bytes"`
	Status    string `json:"status,omitempty"`
}

// QueueStatus summarizes the job queue and, inside the daemon, the worker.
type QueueStatus struct {
	Visible      int                    `json:"visible"`
	Leased       int                    `json:"leased"`
	DeadLettered int                    `json:"deadLettered"`
	OldestQueued string                 `json:"oldestQueued,omitempty"`
	Worker       *workflow.WorkerStatus `json:"worker,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// FromMeeting converts a stored meeting.
func FromMeeting(m meetings.Meeting) Meeting {
	return Meeting{
		ID:               m.ID,
		Title:            m.Title,
		StartedAt:        m.StartedAt,
		Status:           string(m.Status),
		BlobURL:          m.BlobURL,
		OriginalFilename: m.OriginalFilename,
		TranscriptURI:    m.TranscriptURI,
		ErrorMessage:     m.Error,
		DraftCount:       m.DraftCount,
		CreatedAt:        formatTime(m.CreatedAt),
		UpdatedAt:        formatTime(m.UpdatedAt),
	}
}

// FromTask converts a stored task.
func FromTask(t meetings.StoredTask) Task {
	return Task{
		ID:           t.ID,
		Position:     t.Position,
		Summary:      t.Summary,
		Description:  t.Description,
		IssueType:    string(t.IssueType),
		Priority:     string(t.Priority),
		StoryPoints:  t.StoryPoints,
		AssigneeName: t.AssigneeName,
		Labels:       nonNil(t.Labels),
		Links:        nonNil(t.Links),
		Quotes:       nonNil(t.Quotes),
		Status:       t.Status,
	}
}

// FromQueueStats converts queue counts. worker may be nil.
func FromQueueStats(stats queue.Stats, worker *workflow.WorkerStatus) QueueStatus {
	return QueueStatus{
		Visible:      stats.Visible,
		Leased:       stats.Leased,
		DeadLettered: stats.DeadLettered,
		OldestQueued: formatTime(stats.OldestQueued),
		Worker:       worker,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
