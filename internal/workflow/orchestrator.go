package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/extraction"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/services"
	"scribe/internal/telemetry"
)

// Request describes one meeting import.
type Request struct {
	MeetingID        string
	Title            string
	StartedAt        string
	BlobURL          string
	OriginalFilename string
}

// RequestFromJob converts a dequeued job.
func RequestFromJob(job jobs.ImportJob) Request {
	req := Request{
		MeetingID: job.MeetingID,
		Title:     job.Title,
		StartedAt: job.StartedAt,
		BlobURL:   job.BlobURL,
	}
	if job.OriginalFilename != nil {
		req.OriginalFilename = *job.OriginalFilename
	}
	return req
}

// Filename returns the name used to route the upload.
func (r Request) Filename() string {
	job := jobs.ImportJob{BlobURL: r.BlobURL}
	if name := strings.TrimSpace(r.OriginalFilename); name != "" {
		job.OriginalFilename = &name
	}
	return job.Filename()
}

// Outcome summarizes a finished import.
type Outcome struct {
	MeetingID     string
	RunID         string
	TaskCount     int
	Source        string
	TranscriptURI string
	// Skipped is set when the meeting had already reached a final status.
	Skipped bool
}

// OrchestratorOptions wires an Orchestrator. Transcription, Telemetry,
// Notifier and Metrics are optional.
type OrchestratorOptions struct {
	Storage        BlobStorage
	Transcription  Transcription
	Extraction     Extraction
	Repository     Repository
	Telemetry      Telemetry
	Notifier       Notifier
	Metrics        *telemetry.Metrics
	TextExtensions []string
	// AudioExtensions lets an unconfigured transcriber still recognise audio
	// uploads so they fail as a configuration problem.
	AudioExtensions []string
	Model           string
	Logger          *slog.Logger
	Clock           func() time.Time
	NewID           func() string
}

// Orchestrator runs one import job from blob to stored tasks.
type Orchestrator struct {
	storage     BlobStorage
	transcriber Transcription
	extractor   Extraction
	repo        Repository
	telemetry   Telemetry
	notifier    Notifier
	metrics     *telemetry.Metrics
	textExts    []string
	audioExts   []string
	model       string
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewOrchestrator validates opts and builds an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Extraction == nil || opts.Repository == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "extraction and repository are required", nil)
	}
	o := &Orchestrator{
		storage:     opts.Storage,
		transcriber: opts.Transcription,
		extractor:   opts.Extraction,
		repo:        opts.Repository,
		telemetry:   opts.Telemetry,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		textExts:    lowerAll(opts.TextExtensions),
		audioExts:   lowerAll(opts.AudioExtensions),
		model:       opts.Model,
		logger:      logging.NewComponentLogger(opts.Logger, "orchestrator"),
		now:         opts.Clock,
		newID:       opts.NewID,
	}
	if len(o.textExts) == 0 {
		o.textExts = []string{".txt", ".json"}
	}
	if o.transcriber != nil {
		o.audioExts = lowerAll(o.transcriber.SupportedExtensions())
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// HandleJob adapts Run to the worker Handler signature.
func (o *Orchestrator) HandleJob(ctx context.Context, job jobs.ImportJob) error {
	_, err := o.Run(ctx, RequestFromJob(job))
	return err
}

// Run imports one meeting. Request problems found before the meeting is
// touched return without a status change. Once the meeting is PROCESSING,
// every failure marks it FAILED and is returned, except cancellation of ctx,
// which leaves the meeting PROCESSING so a redelivered job runs it again.
// A meeting that has already reached COMPLETED or FAILED is skipped without
// error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	started := o.now()
	if err := o.validate(req); err != nil {
		return Outcome{MeetingID: req.MeetingID}, err
	}

	meetingID := strings.TrimSpace(req.MeetingID)
	if meetingID == "" {
		meetingID = o.newID()
		if err := o.repo.CreateMeetingStub(ctx, stubFor(meetingID, req)); err != nil {
			return Outcome{MeetingID: meetingID}, err
		}
	}
	ctx = services.WithMeetingID(ctx, meetingID)
	logger := logging.WithContext(ctx, o.logger)
	outcome := Outcome{MeetingID: meetingID}

	skip, err := o.markProcessing(ctx, logger, meetingID, req)
	if err != nil {
		return outcome, err
	}
	if skip {
		outcome.Skipped = true
		return outcome, nil
	}

	if err := o.process(ctx, logger, meetingID, req, &outcome); err != nil {
		if interrupted(ctx, err) {
			return outcome, o.interrupt(logger, outcome.Source, started, err)
		}
		return outcome, o.fail(ctx, logger, meetingID, req, outcome.Source, started, err)
	}
	if err := o.repo.UpdateMeetingStatus(ctx, meetingID, jobs.StatusCompleted, ""); err != nil {
		return outcome, o.fail(ctx, logger, meetingID, req, outcome.Source, started, err)
	}

	elapsed := o.now().Sub(started)
	o.metrics.ObserveJob("completed", services.Classify(nil), outcome.Source, elapsed)
	logger.Info("meeting import completed",
		logging.String("run_id", outcome.RunID),
		logging.String("source", outcome.Source),
		logging.Int("task_count", outcome.TaskCount),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	if o.notifier != nil {
		if err := o.notifier.NotifyJobCompleted(ctx, displayTitle(req), outcome.TaskCount, elapsed); err != nil {
			logging.WarnWithContext(logger, "completion notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operators were not alerted"),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	}
	return outcome, nil
}

func (o *Orchestrator) validate(req Request) error {
	uri := strings.TrimSpace(req.BlobURL)
	if uri == "" {
		return services.Wrap(services.ErrValidation, "orchestrator", "validate", "blob url is required", nil)
	}
	if o.storage == nil {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "validate", "blob storage is not configured", nil)
	}
	if checker, ok := o.storage.(uriChecker); ok {
		if err := checker.CheckURI(uri); err != nil {
			return err
		}
	}
	return nil
}

// markProcessing moves the meeting to PROCESSING. A meeting id with no row
// gets a stub first. skip reports a meeting already in a final status.
func (o *Orchestrator) markProcessing(ctx context.Context, logger *slog.Logger, meetingID string, req Request) (bool, error) {
	err := o.repo.UpdateMeetingStatus(ctx, meetingID, jobs.StatusProcessing, "")
	if errors.Is(err, services.ErrNotFound) {
		if stubErr := o.repo.CreateMeetingStub(ctx, stubFor(meetingID, req)); stubErr != nil {
			return false, stubErr
		}
		err = o.repo.UpdateMeetingStatus(ctx, meetingID, jobs.StatusProcessing, "")
	}
	if err == nil {
		return false, nil
	}
	var transition *jobs.TransitionError
	if errors.As(err, &transition) && transition.From.Terminal() {
		logger.Info("meeting already finished; dropping redelivered job",
			logging.String("status", transition.From.String()),
			logging.String(logging.FieldEventType, "job_skipped"),
		)
		o.metrics.ObserveJob("skipped", services.Classify(nil), "", 0)
		return true, nil
	}
	return false, err
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, meetingID string, req Request, outcome *Outcome) error {
	filename := req.Filename()

	data, err := o.storage.DownloadBlob(services.WithStage(ctx, "download"), req.BlobURL)
	if err != nil {
		return err
	}
	logger.Debug("blob downloaded",
		logging.String("filename", filename),
		logging.Int("bytes", len(data)),
	)

	transcript, source, err := o.resolveTranscript(services.WithStage(ctx, "transcribe"), filename, data)
	if err != nil {
		return err
	}
	outcome.Source = source
	outcome.TranscriptURI = req.BlobURL
	if source == SourceAudio {
		outcome.TranscriptURI = o.saveTranscript(ctx, logger, meetingID, filename, transcript)
	}

	result, err := o.extractor.Extract(services.WithStage(ctx, "extract"), transcript)
	if err != nil {
		return err
	}

	_, runID, err := o.repo.StoreMeetingAndResult(services.WithStage(ctx, "store"), meetings.StoreRequest{
		MeetingID:     meetingID,
		Title:         req.Title,
		StartedAt:     req.StartedAt,
		Filename:      filename,
		Transcript:    transcript,
		TranscriptURI: outcome.TranscriptURI,
		Result:        result,
	})
	if err != nil {
		return err
	}
	outcome.RunID = runID
	outcome.TaskCount = len(result.Tasks)

	o.recordRun(ctx, logger, req, outcome, transcript, result.Tasks)
	return nil
}

func (o *Orchestrator) resolveTranscript(ctx context.Context, filename string, data []byte) (string, string, error) {
	ext := fileExt(filename)
	switch {
	case ext == ".json":
		text, err := DecodeJSONTranscript(data)
		return text, SourceText, err
	case slices.Contains(o.textExts, ext):
		text, err := DecodeTextTranscript(data)
		return text, SourceText, err
	case slices.Contains(o.audioExts, ext):
		if o.transcriber == nil {
			return "", SourceAudio, services.Wrap(services.ErrConfiguration, "orchestrator", "transcribe",
				"transcription service is not configured", nil)
		}
		text, err := o.transcriber.Transcribe(ctx, data, filename)
		return text, SourceAudio, err
	}
	supported := append(slices.Clone(o.textExts), o.audioExts...)
	return "", "", &UnsupportedTypeError{Filename: filename, Supported: supported}
}

// saveTranscript stores the recognized text next to the recording. A failure
// leaves the recording as the transcript reference.
func (o *Orchestrator) saveTranscript(ctx context.Context, logger *slog.Logger, meetingID, filename, transcript string) string {
	name := strings.TrimSuffix(filename, fileExt(filename)) + ".transcript.txt"
	uri, err := o.storage.SaveFile(ctx, meetingID, name, []byte(transcript), "text/plain; charset=utf-8")
	if err != nil {
		logging.WarnWithContext(logger, "failed to store transcript blob", "transcript_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run log references the recording instead of the transcript"),
			logging.String(logging.FieldErrorHint, "check blob storage permissions"),
		)
		return ""
	}
	return uri
}

func (o *Orchestrator) recordRun(ctx context.Context, logger *slog.Logger, req Request, outcome *Outcome, transcript string, tasks []extraction.Task) {
	if o.telemetry == nil {
		return
	}
	record := telemetry.RunRecord{
		MeetingID:     outcome.MeetingID,
		RunID:         outcome.RunID,
		MeetingDate:   o.meetingDate(req.StartedAt),
		TranscriptURI: outcome.TranscriptURI,
		Source:        outcome.Source,
		TaskCount:     len(tasks),
		Model:         o.model,
	}
	record.TranscriptStats(transcript)
	for _, task := range tasks {
		if task.Assignee() != "" {
			record.AssignedCount++
		}
	}
	if err := o.telemetry.LogExtractionRun(ctx, record); err != nil {
		logging.WarnWithContext(logger, "failed to record extraction run", "telemetry_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from the run log"),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
		)
	}
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// interrupt logs a job cut short by shutdown. The meeting keeps its
// PROCESSING status.
func (o *Orchestrator) interrupt(logger *slog.Logger, source string, started time.Time, cause error) error {
	o.metrics.ObserveJob("interrupted", services.Classify(cause), source, o.now().Sub(started))
	logging.WarnWithContext(logger, "meeting import interrupted; left PROCESSING for redelivery", "job_interrupted",
		logging.Error(cause),
		logging.String(logging.FieldImpact, "the job runs again from the start after the visibility timeout"),
		logging.String(logging.FieldErrorHint, "give the worker a longer shutdown grace to let jobs finish"),
	)
	return cause
}

// fail records the failure on the meeting and passes cause back. The status
// write ignores cancellation so an interrupted job is still marked.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, meetingID string, req Request, source string, started time.Time, cause error) error {
	if err := o.repo.UpdateMeetingStatus(context.WithoutCancel(ctx), meetingID, jobs.StatusFailed, failureReason(cause)); err != nil {
		logging.WarnWithContext(logger, "failed to mark meeting failed", "status_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "meeting status may be stale"),
			logging.String(logging.FieldErrorHint, "check meetings database access"),
		)
	}
	class := services.Classify(cause)
	o.metrics.ObserveJob("failed", class, source, o.now().Sub(started))
	logging.ErrorWithContext(logger, "meeting import failed", "job_failed",
		logging.Error(cause),
		logging.String("error_class", class),
		logging.Bool("terminal", services.IsTerminal(cause)),
		logging.String(logging.FieldErrorHint, failureHint(cause)),
	)
	if o.notifier != nil {
		if err := o.notifier.NotifyJobFailed(context.WithoutCancel(ctx), displayTitle(req), cause); err != nil {
			logger.Debug("failure notification failed", logging.Error(err))
		}
	}
	return cause
}

func (o *Orchestrator) meetingDate(startedAt string) string {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(startedAt)); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	return o.now().UTC().Format(time.DateOnly)
}

func stubFor(meetingID string, req Request) meetings.Stub {
	return meetings.Stub{
		ID:               meetingID,
		Title:            req.Title,
		StartedAt:        req.StartedAt,
		BlobURL:          req.BlobURL,
		OriginalFilename: req.OriginalFilename,
	}
}

func displayTitle(req Request) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return title
	}
	return req.Filename()
}

func failureReason(err error) string {
	const limit = 500
	msg := []rune(strings.TrimSpace(err.Error()))
	if len(msg) > limit {
		msg = msg[:limit]
	}
	return string(msg)
}

func failureHint(err error) string {
	switch services.Classify(err) {
	case "configuration":
		return "fix the configuration and submit the meeting again"
	case "validation":
		return "the upload cannot be processed; check its format"
	case "not_found":
		return "the blob no longer exists; upload it again"
	default:
		return fmt.Sprintf("retry by submitting the meeting again (%s)", services.Classify(err))
	}
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
