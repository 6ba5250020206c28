package workflow

import (
	"context"
	"time"

	"scribe/internal/extraction"
	"scribe/internal/jobs"
	"scribe/internal/meetings"
	"scribe/internal/queue"
	"scribe/internal/telemetry"
)

// Queue is the durable job transport.
type Queue interface {
	Enqueue(ctx context.Context, job jobs.ImportJob) error
	Receive(ctx context.Context, maxBatch int, visibility time.Duration) ([]queue.Message, error)
	Delete(ctx context.Context, id, receipt string) error
}

// BlobStorage persists uploads and fetches them back by URI.
type BlobStorage interface {
	SaveFile(ctx context.Context, meetingID, filename string, data []byte, contentType string) (string, error)
	DownloadBlob(ctx context.Context, uri string) ([]byte, error)
}

// uriChecker is implemented by storage that can reject a URI without
// fetching it.
type uriChecker interface {
	CheckURI(uri string) error
}

// Transcription turns audio uploads into attributed transcripts.
type Transcription interface {
	Transcribe(ctx context.Context, data []byte, filename string) (string, error)
	SupportedExtensions() []string
}

// Extraction derives draft tasks from a transcript.
type Extraction interface {
	Extract(ctx context.Context, transcript string) (*extraction.Result, error)
}

// Repository owns meeting rows and extraction results.
type Repository interface {
	CreateMeetingStub(ctx context.Context, stub meetings.Stub) error
	UpdateMeetingStatus(ctx context.Context, meetingID string, status jobs.MeetingStatus, reason string) error
	StoreMeetingAndResult(ctx context.Context, req meetings.StoreRequest) (string, string, error)
}

// Telemetry records finished extraction runs.
type Telemetry interface {
	LogExtractionRun(ctx context.Context, record telemetry.RunRecord) error
}

// Notifier pushes job outcomes to operators.
type Notifier interface {
	NotifyJobCompleted(ctx context.Context, title string, taskCount int, elapsed time.Duration) error
	NotifyJobFailed(ctx context.Context, title string, jobErr error) error
}

// Handler processes one decoded job. A nil return deletes the message.
type Handler func(ctx context.Context, job jobs.ImportJob) error
