package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/services"
)

// StubWriter is the part of the repository submission needs.
type StubWriter interface {
	CreateMeetingStub(ctx context.Context, stub meetings.Stub) error
}

// Submitter records QUEUED meetings and enqueues their import jobs.
type Submitter struct {
	queue   Queue
	repo    StubWriter
	checker uriChecker
	newID   func() string
	logger  *slog.Logger
}

// NewSubmitter builds a Submitter. storage may be nil; when it can check URIs
// unreachable blobs are rejected at submission time.
func NewSubmitter(q Queue, repo StubWriter, storage BlobStorage, logger *slog.Logger) *Submitter {
	s := &Submitter{queue: q, repo: repo, newID: uuid.NewString, logger: logging.NewComponentLogger(logger, "submit")}
	if checker, ok := storage.(uriChecker); ok {
		s.checker = checker
	}
	return s
}

// Submit stores the stub, enqueues the job and returns the meeting id. A
// missing meeting id is generated.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	if s.queue == nil || s.repo == nil {
		return "", services.Wrap(services.ErrConfiguration, "submit", "init", "queue and repository are required", nil)
	}
	blobURL := strings.TrimSpace(req.BlobURL)
	if blobURL == "" {
		return "", services.Wrap(services.ErrValidation, "submit", "validate", "blob url is required", nil)
	}
	if s.checker != nil {
		if err := s.checker.CheckURI(blobURL); err != nil {
			return "", err
		}
	}

	meetingID := strings.TrimSpace(req.MeetingID)
	if meetingID == "" {
		meetingID = s.newID()
	}
	job := jobs.ImportJob{
		MeetingID: meetingID,
		Title:     strings.TrimSpace(req.Title),
		StartedAt: strings.TrimSpace(req.StartedAt),
		BlobURL:   blobURL,
	}
	if name := strings.TrimSpace(req.OriginalFilename); name != "" {
		job.OriginalFilename = &name
	}

	if err := s.repo.CreateMeetingStub(ctx, meetings.Stub{
		ID:               meetingID,
		Title:            job.Title,
		StartedAt:        job.StartedAt,
		BlobURL:          blobURL,
		OriginalFilename: strings.TrimSpace(req.OriginalFilename),
	}); err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return "", services.Wrap(services.ErrTransient, "submit", "enqueue", "failed to enqueue import job", err)
	}

	logging.WithContext(services.WithMeetingID(ctx, meetingID), s.logger).Info("meeting queued",
		logging.String("title", job.Title),
		logging.String("filename", job.Filename()),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return meetingID, nil
}
