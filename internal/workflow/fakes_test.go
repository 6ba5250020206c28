package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"scribe/internal/extraction"
	"scribe/internal/jobs"
	"scribe/internal/meetings"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/telemetry"
	"scribe/internal/workflow"
)

func workflowStub(req workflow.Request) meetings.Stub {
	return meetings.Stub{
		ID:               req.MeetingID,
		Title:            req.Title,
		StartedAt:        req.StartedAt,
		BlobURL:          req.BlobURL,
		OriginalFilename: req.OriginalFilename,
	}
}

// memoryQueue leases each message once; leases never expire.
type memoryQueue struct {
	mu         sync.Mutex
	messages   []queue.Message
	leased     map[string]bool
	deleted    []string
	requested  []int
	receiveErr []error
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{leased: map[string]bool{}}
}

func (q *memoryQueue) Enqueue(_ context.Context, job jobs.ImportJob) error {
	body, err := jobs.Marshal(job)
	if err != nil {
		return err
	}
	q.push(body)
	return nil
}

func (q *memoryQueue) push(body []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := fmt.Sprintf("msg-%d", len(q.messages)+1)
	q.messages = append(q.messages, queue.Message{ID: id, Receipt: "r-" + id, Body: body})
}

func (q *memoryQueue) Receive(_ context.Context, maxBatch int, _ time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requested = append(q.requested, maxBatch)
	if len(q.receiveErr) > 0 {
		err := q.receiveErr[0]
		q.receiveErr = q.receiveErr[1:]
		return nil, err
	}
	var out []queue.Message
	for i := range q.messages {
		msg := &q.messages[i]
		if q.leased[msg.ID] || slices.Contains(q.deleted, msg.ID) {
			continue
		}
		q.leased[msg.ID] = true
		msg.DequeueCount++
		out = append(out, *msg)
		if len(out) == maxBatch {
			break
		}
	}
	return out, nil
}

func (q *memoryQueue) Delete(ctx context.Context, id, receipt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if slices.Contains(q.deleted, id) {
		return queue.ErrMessageNotFound
	}
	if receipt != "r-"+id {
		return queue.ErrLeaseLost
	}
	q.deleted = append(q.deleted, id)
	return nil
}

func (q *memoryQueue) deletedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.deleted)
}

func (q *memoryQueue) outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages) - len(q.deleted)
}

// memoryRepo enforces the status state machine like the SQLite store.
type memoryRepo struct {
	mu          sync.Mutex
	statuses    map[string]jobs.MeetingStatus
	reasons     map[string]string
	history     []jobs.MeetingStatus
	stubs       []meetings.Stub
	stored      []meetings.StoreRequest
	storeErr    error
	completeErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{statuses: map[string]jobs.MeetingStatus{}, reasons: map[string]string{}}
}

func (r *memoryRepo) CreateMeetingStub(_ context.Context, stub meetings.Stub) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.statuses[stub.ID]; ok && current != jobs.StatusQueued {
		return &jobs.TransitionError{MeetingID: stub.ID, From: current, To: jobs.StatusQueued}
	}
	r.statuses[stub.ID] = jobs.StatusQueued
	r.stubs = append(r.stubs, stub)
	return nil
}

func (r *memoryRepo) UpdateMeetingStatus(_ context.Context, meetingID string, status jobs.MeetingStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == jobs.StatusCompleted && r.completeErr != nil {
		return r.completeErr
	}
	current, ok := r.statuses[meetingID]
	if !ok {
		return services.Wrap(services.ErrNotFound, "meetings", "update status", "unknown meeting", nil)
	}
	if !jobs.CanTransition(current, status) {
		return &jobs.TransitionError{MeetingID: meetingID, From: current, To: status}
	}
	r.statuses[meetingID] = status
	r.reasons[meetingID] = reason
	r.history = append(r.history, status)
	return nil
}

func (r *memoryRepo) StoreMeetingAndResult(_ context.Context, req meetings.StoreRequest) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return "", "", r.storeErr
	}
	r.stored = append(r.stored, req)
	return req.MeetingID, fmt.Sprintf("run-%d", len(r.stored)), nil
}

func (r *memoryRepo) status(id string) jobs.MeetingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func (r *memoryRepo) transitions() []jobs.MeetingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

type memoryStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saved   []string
	saveErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{blobs: map[string][]byte{}}
}

func (s *memoryStorage) put(uri string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[uri] = data
}

func (s *memoryStorage) SaveFile(_ context.Context, meetingID, filename string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	uri := "mem://recordings/" + meetingID + "/" + filename
	s.blobs[uri] = data
	s.saved = append(s.saved, uri)
	return uri, nil
}

func (s *memoryStorage) DownloadBlob(_ context.Context, uri string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[uri]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "storage", "download", uri, nil)
	}
	return data, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeTranscriber) SupportedExtensions() []string { return []string{".wav", ".mp3"} }

type fakeExtractor struct {
	mu          sync.Mutex
	transcripts []string
	err         error
	// blockUntilCanceled makes Extract wait for ctx and return its error.
	blockUntilCanceled bool
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string) (*extraction.Result, error) {
	f.mu.Lock()
	f.transcripts = append(f.transcripts, transcript)
	err, block := f.err, f.blockUntilCanceled
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	assignee := "Alice"
	return &extraction.Result{Tasks: []extraction.Task{
		{Summary: "Ship the export fix", Description: "Export fails on Safari", IssueType: extraction.IssueBug, Priority: extraction.PriorityHigh, AssigneeName: &assignee},
		{Summary: "Write release notes", Description: "Cover the export fix", IssueType: extraction.IssueTask, Priority: extraction.PriorityLow},
	}}, nil
}

type fakeTelemetry struct {
	records []telemetry.RunRecord
	err     error
}

func (f *fakeTelemetry) LogExtractionRun(_ context.Context, record telemetry.RunRecord) error {
	f.records = append(f.records, record)
	return f.err
}

type fakeNotifier struct {
	completed []string
	failed    []string
}

func (f *fakeNotifier) NotifyJobCompleted(_ context.Context, title string, _ int, _ time.Duration) error {
	f.completed = append(f.completed, title)
	return nil
}

func (f *fakeNotifier) NotifyJobFailed(_ context.Context, title string, _ error) error {
	f.failed = append(f.failed, title)
	return errors.New("ntfy unreachable")
}
