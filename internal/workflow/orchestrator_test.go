package workflow_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"scribe/internal/jobs"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

type orchestratorFixture struct {
	storage     *memoryStorage
	repo        *memoryRepo
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	telemetry   *fakeTelemetry
	notifier    *fakeNotifier
	orch        *workflow.Orchestrator
}

func newOrchestratorFixture(t *testing.T, withTranscriber bool) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		storage:   newMemoryStorage(),
		repo:      newMemoryRepo(),
		extractor: &fakeExtractor{},
		telemetry: &fakeTelemetry{},
		notifier:  &fakeNotifier{},
	}
	opts := workflow.OrchestratorOptions{
		Storage:         f.storage,
		Extraction:      f.extractor,
		Repository:      f.repo,
		Telemetry:       f.telemetry,
		Notifier:        f.notifier,
		AudioExtensions: []string{".wav", ".mp3"},
		Model:           "test-model",
		Clock:           func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) },
		NewID:           func() string { return "generated-id" },
	}
	if withTranscriber {
		f.transcriber = &fakeTranscriber{text: "Product Owner: let's ship the export fix\nSpeaker 2: agreed"}
		opts.Transcription = f.transcriber
	}
	orch, err := workflow.NewOrchestrator(opts)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	f.orch = orch
	return f
}

func (f *orchestratorFixture) queued(t *testing.T, id, filename string, data []byte) workflow.Request {
	t.Helper()
	req := workflow.Request{
		MeetingID:        id,
		Title:            "Sprint review",
		StartedAt:        "2026-10-15T14:00:00Z",
		BlobURL:          "mem://recordings/" + id + "/" + filename,
		OriginalFilename: filename,
	}
	f.storage.put(req.BlobURL, data)
	if err := f.repo.CreateMeetingStub(context.Background(), workflowStub(req)); err != nil {
		t.Fatalf("CreateMeetingStub: %v", err)
	}
	return req
}

func TestRunTextTranscriptCompletes(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := f.queued(t, "m-1", "notes.txt", []byte("\xEF\xBB\xBFAlice: I'll fix export\r\nBob: thanks"))

	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.RunID != "run-1" || outcome.TaskCount != 2 || outcome.Source != workflow.SourceText {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	want := []jobs.MeetingStatus{jobs.StatusProcessing, jobs.StatusCompleted}
	if got := f.repo.transitions(); !slices.Equal(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	if got := f.extractor.transcripts; len(got) != 1 || got[0] != "Alice: I'll fix export\nBob: thanks" {
		t.Fatalf("unexpected transcript %q", got)
	}
	stored := f.repo.stored[0]
	if stored.MeetingID != "m-1" || stored.Filename != "notes.txt" || stored.TranscriptURI != req.BlobURL {
		t.Fatalf("unexpected store request %+v", stored)
	}

	if len(f.telemetry.records) != 1 {
		t.Fatalf("expected one run record, got %d", len(f.telemetry.records))
	}
	record := f.telemetry.records[0]
	if record.MeetingDate != "2026-10-15" || record.TaskCount != 2 || record.AssignedCount != 1 {
		t.Fatalf("unexpected run record %+v", record)
	}
	if record.SpeakerCount != 2 || record.Model != "test-model" || record.Source != workflow.SourceText {
		t.Fatalf("unexpected run record %+v", record)
	}
	if !slices.Equal(f.notifier.completed, []string{"Sprint review"}) {
		t.Fatalf("expected completion notification, got %v", f.notifier.completed)
	}
}

func TestRunAudioTranscribesAndStoresTranscriptBlob(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	req := f.queued(t, "m-2", "standup.wav", []byte("RIFF"))

	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.transcriber.calls != 1 || outcome.Source != workflow.SourceAudio {
		t.Fatalf("expected one transcription, outcome %+v", outcome)
	}
	if outcome.TranscriptURI != "mem://recordings/m-2/standup.transcript.txt" {
		t.Fatalf("unexpected transcript uri %q", outcome.TranscriptURI)
	}
	saved, err := f.storage.DownloadBlob(context.Background(), outcome.TranscriptURI)
	if err != nil || string(saved) != f.transcriber.text {
		t.Fatalf("transcript blob mismatch: %q (%v)", saved, err)
	}
	if f.repo.status("m-2") != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", f.repo.status("m-2"))
	}
}

func TestRunTranscriptSaveFailureIsNotFatal(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	f.storage.saveErr = errors.New("disk full")
	req := f.queued(t, "m-3", "standup.mp3", []byte("ID3"))

	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.TranscriptURI != "" || f.repo.status("m-3") != jobs.StatusCompleted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestRunExtractionFailureMarksFailed(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.extractor.err = services.Wrap(services.ErrTransient, "extraction", "repair", "model returned garbage", nil)
	req := f.queued(t, "m-4", "notes.txt", []byte("Alice: hello"))

	_, err := f.orch.Run(context.Background(), req)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error returned, got %v", err)
	}
	want := []jobs.MeetingStatus{jobs.StatusProcessing, jobs.StatusFailed}
	if got := f.repo.transitions(); !slices.Equal(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	if reason := f.repo.reasons["m-4"]; !strings.Contains(reason, "model returned garbage") {
		t.Fatalf("expected failure reason recorded, got %q", reason)
	}
	if len(f.repo.stored) != 0 || len(f.telemetry.records) != 0 {
		t.Fatal("nothing should be stored for a failed extraction")
	}
	if !slices.Equal(f.notifier.failed, []string{"Sprint review"}) {
		t.Fatalf("expected failure notification, got %v", f.notifier.failed)
	}
}

func TestRunCanceledLeavesMeetingProcessingForRedelivery(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.extractor.blockUntilCanceled = true
	req := f.queued(t, "m-cancel", "notes.txt", []byte("Alice: hello"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if _, err := f.orch.Run(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.repo.status("m-cancel"); got != jobs.StatusProcessing {
		t.Fatalf("expected PROCESSING after an interrupted run, got %s", got)
	}
	if len(f.notifier.failed) != 0 {
		t.Fatalf("interrupted runs must not notify failure, got %v", f.notifier.failed)
	}

	f.extractor.mu.Lock()
	f.extractor.blockUntilCanceled = false
	f.extractor.mu.Unlock()
	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("redelivered Run: %v", err)
	}
	if outcome.Skipped {
		t.Fatal("redelivered job must run again, not be skipped")
	}
	if got := f.repo.status("m-cancel"); got != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED after redelivery, got %s", got)
	}
}

func TestRunCompletionWriteFailureMarksFailed(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.repo.completeErr = errors.New("database is locked")
	req := f.queued(t, "m-5", "notes.txt", []byte("Alice: hello"))

	if _, err := f.orch.Run(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	if f.repo.status("m-5") != jobs.StatusFailed {
		t.Fatalf("expected FAILED, got %s", f.repo.status("m-5"))
	}
}

func TestRunUnsupportedTypeIsFormatError(t *testing.T) {
	f := newOrchestratorFixture(t, true)
	req := f.queued(t, "m-6", "slides.pdf", []byte("%PDF"))

	_, err := f.orch.Run(context.Background(), req)
	var unsupported *workflow.UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) || !services.IsTerminal(err) {
		t.Fatalf("expected terminal validation error, got %v", err)
	}
	if f.repo.status("m-6") != jobs.StatusFailed {
		t.Fatalf("expected FAILED, got %s", f.repo.status("m-6"))
	}
}

func TestRunAudioWithoutTranscriberIsConfigurationError(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := f.queued(t, "m-7", "standup.wav", []byte("RIFF"))

	_, err := f.orch.Run(context.Background(), req)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if f.repo.status("m-7") != jobs.StatusFailed {
		t.Fatalf("expected FAILED, got %s", f.repo.status("m-7"))
	}
}

func TestRunMissingBlobURLLeavesStatusUntouched(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := f.queued(t, "m-8", "notes.txt", []byte("Alice: hello"))
	req.BlobURL = "  "

	if _, err := f.orch.Run(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.repo.transitions()) != 0 || f.repo.status("m-8") != jobs.StatusQueued {
		t.Fatalf("status must not change, history %v", f.repo.transitions())
	}
}

func TestRunGeneratesMeetingIDAndStub(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := workflow.Request{Title: "Ad hoc", BlobURL: "mem://recordings/upload/notes.txt"}
	f.storage.put(req.BlobURL, []byte("Alice: hello"))

	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.MeetingID != "generated-id" || f.repo.status("generated-id") != jobs.StatusCompleted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(f.repo.stubs) != 1 || f.repo.stubs[0].ID != "generated-id" {
		t.Fatalf("expected a stub for the generated id, got %+v", f.repo.stubs)
	}
}

func TestRunCreatesStubForUnknownMeeting(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := workflow.Request{MeetingID: "external", BlobURL: "mem://recordings/external/notes.txt"}
	f.storage.put(req.BlobURL, []byte("Alice: hello"))

	if _, err := f.orch.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.repo.status("external") != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", f.repo.status("external"))
	}
}

func TestRunSkipsFinishedMeeting(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := f.queued(t, "m-9", "notes.txt", []byte("Alice: hello"))
	if _, err := f.orch.Run(context.Background(), req); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	outcome, err := f.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("redelivered Run: %v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("expected skip, got %+v", outcome)
	}
	if len(f.extractor.transcripts) != 1 {
		t.Fatalf("expected a single extraction, got %d", len(f.extractor.transcripts))
	}
}

func TestRunTelemetryFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	f.telemetry.err = errors.New("run log closed")
	req := f.queued(t, "m-10", "notes.txt", []byte("Alice: hello"))

	if _, err := f.orch.Run(context.Background(), req); err != nil {
		t.Fatalf("telemetry failure must not fail the job: %v", err)
	}
	if f.repo.status("m-10") != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", f.repo.status("m-10"))
	}
}

func TestRunMissingBlobIsNotFound(t *testing.T) {
	f := newOrchestratorFixture(t, false)
	req := f.queued(t, "m-11", "notes.txt", nil)
	req.BlobURL = "mem://recordings/m-11/gone.txt"

	_, err := f.orch.Run(context.Background(), req)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.repo.status("m-11") != jobs.StatusFailed {
		t.Fatalf("expected FAILED, got %s", f.repo.status("m-11"))
	}
}

func TestDecodeJSONTranscript(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "string", payload: `"Alice: hi\nBob: yo"`, want: "Alice: hi\nBob: yo"},
		{name: "object", payload: `{"transcript": "Alice: hi", "language": "en"}`, want: "Alice: hi"},
		{name: "lines", payload: `[{"speaker": "Alice", "text": "hi"}, {"speaker": "", "text": "anyone?"}, {"speaker": "Bob", "text": "  "}]`, want: "Alice: hi\nSpeaker: anyone?"},
		{name: "object without transcript", payload: `{"text": "hi"}`, want: `{"text": "hi"}`},
		{name: "list with other keys", payload: `[{"who": "Alice", "said": "hi"}]`, want: `[{"who": "Alice", "said": "hi"}]`},
		{name: "number", payload: `42`, want: "42"},
		{name: "broken", payload: "{\"transcript\":\r\nAlice: hi", want: "{\"transcript\":\nAlice: hi"},
		{name: "invalid utf8 dropped", payload: "{\"transcript\": \"caf\xe9 Alice: hi\"}", want: "caf Alice: hi"},
		{name: "empty string", payload: `"  "`, wantErr: true},
		{name: "blank", payload: " \n ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := workflow.DecodeJSONTranscript([]byte(tc.payload))
			if tc.wantErr {
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected validation error, got %v (%q)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSONTranscript: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeTextTranscriptDropsInvalidUTF8(t *testing.T) {
	got, err := workflow.DecodeTextTranscript([]byte("\xEF\xBB\xBFAlice: caf\xe9 at nine\r\nBob: ok"))
	if err != nil {
		t.Fatalf("DecodeTextTranscript: %v", err)
	}
	if got != "Alice: caf at nine\nBob: ok" {
		t.Fatalf("got %q", got)
	}
	if _, err := workflow.DecodeTextTranscript([]byte{0xff, 0xfe}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error when nothing valid remains, got %v", err)
	}
	if _, err := workflow.DecodeTextTranscript([]byte(" \n ")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}
}
