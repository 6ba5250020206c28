package meetings_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scribe/internal/extraction"
	"scribe/internal/jobs"
	"scribe/internal/meetings"
	"scribe/internal/services"
)

func openStore(t *testing.T) *meetings.Store {
	t.Helper()
	store, err := meetings.Open(filepath.Join(t.TempDir(), "meetings.db"))
	if err != nil {
		t.Fatalf("meetings.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func sampleResult() *extraction.Result {
	points := 3
	return &extraction.Result{Tasks: []extraction.Task{
		{
			Summary:      "Fix export button",
			Description:  "Export fails on Safari",
			IssueType:    extraction.IssueBug,
			Priority:     extraction.PriorityHigh,
			AssigneeName: strPtr("Adrian"),
			StoryPoints:  &points,
			Labels:       []string{"frontend"},
			Quotes:       []string{"I'll take the export bug."},
		},
		{
			Summary:     "Spike search index",
			Description: "Evaluate options",
			IssueType:   extraction.IssueSpike,
			Priority:    extraction.PriorityMedium,
		},
	}}
}

func TestStubAndStatusLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	stub := meetings.Stub{ID: "m-1", Title: "Weekly sync", StartedAt: "2026-10-17T09:00:00Z", BlobURL: "http://h/blobs/recordings/m-1/a.wav"}
	if err := store.CreateMeetingStub(ctx, stub); err != nil {
		t.Fatalf("CreateMeetingStub: %v", err)
	}
	meeting, err := store.GetMeeting(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if meeting.Status != jobs.StatusQueued || meeting.BlobURL != stub.BlobURL {
		t.Fatalf("unexpected stub %+v", meeting)
	}

	for _, status := range []jobs.MeetingStatus{jobs.StatusProcessing, jobs.StatusProcessing, jobs.StatusCompleted} {
		if err := store.UpdateMeetingStatus(ctx, "m-1", status, ""); err != nil {
			t.Fatalf("UpdateMeetingStatus(%s): %v", status, err)
		}
	}

	err = store.UpdateMeetingStatus(ctx, "m-1", jobs.StatusProcessing, "")
	var te *jobs.TransitionError
	if !errors.As(err, &te) || te.From != jobs.StatusCompleted {
		t.Fatalf("expected transition error from COMPLETED, got %v", err)
	}
	if err := store.UpdateMeetingStatus(ctx, "m-1", jobs.StatusFailed, "late failure"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected COMPLETED to stay terminal, got %v", err)
	}
	meeting, err = store.GetMeeting(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if meeting.Status != jobs.StatusCompleted {
		t.Fatalf("status regressed to %s", meeting.Status)
	}
}

func TestUpdateStatusRecordsFailureReason(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.CreateMeetingStub(ctx, meetings.Stub{ID: "m-1"}); err != nil {
		t.Fatalf("CreateMeetingStub: %v", err)
	}
	if err := store.UpdateMeetingStatus(ctx, "m-1", jobs.StatusFailed, "unsupported file type .pdf"); err != nil {
		t.Fatalf("UpdateMeetingStatus: %v", err)
	}
	meeting, err := store.GetMeeting(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if meeting.Status != jobs.StatusFailed || meeting.Error != "unsupported file type .pdf" {
		t.Fatalf("unexpected meeting %+v", meeting)
	}
}

func TestUpdateStatusUnknownMeeting(t *testing.T) {
	store := openStore(t)
	err := store.UpdateMeetingStatus(context.Background(), "missing", jobs.StatusProcessing, "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateStubRejectsResubmissionAfterProcessing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.CreateMeetingStub(ctx, meetings.Stub{ID: "m-1", Title: "first"}); err != nil {
		t.Fatalf("CreateMeetingStub: %v", err)
	}
	if err := store.CreateMeetingStub(ctx, meetings.Stub{ID: "m-1", Title: "second"}); err != nil {
		t.Fatalf("re-submission while queued: %v", err)
	}
	if err := store.UpdateMeetingStatus(ctx, "m-1", jobs.StatusProcessing, ""); err != nil {
		t.Fatalf("UpdateMeetingStatus: %v", err)
	}
	if err := store.CreateMeetingStub(ctx, meetings.Stub{ID: "m-1"}); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected transition error, got %v", err)
	}
	meeting, err := store.GetMeeting(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if meeting.Title != "second" {
		t.Fatalf("expected refreshed title, got %q", meeting.Title)
	}
}

func TestStoreMeetingAndResultIsIdempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	req := meetings.StoreRequest{
		MeetingID:  "m-1",
		Title:      "Weekly sync",
		StartedAt:  "2026-10-17T09:00:00Z",
		Filename:   "weekly.wav",
		Transcript: "Adrian: I'll take the export bug.",
		Result:     sampleResult(),
	}

	firstMeeting, firstRun, err := store.StoreMeetingAndResult(ctx, req)
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	secondMeeting, secondRun, err := store.StoreMeetingAndResult(ctx, req)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if firstMeeting != "m-1" || secondMeeting != "m-1" {
		t.Fatalf("unexpected meeting ids %q %q", firstMeeting, secondMeeting)
	}
	if firstRun == secondRun {
		t.Fatal("expected a fresh run id per store")
	}

	list, err := store.ListMeetings(ctx, meetings.ListFilter{})
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(list) != 1 || list[0].DraftCount != 2 {
		t.Fatalf("expected one meeting with two drafts, got %+v", list)
	}

	tasks, err := store.ListTasks(ctx, meetings.TaskFilter{MeetingID: "m-1"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected tasks overwritten, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.RunID != secondRun {
			t.Fatalf("expected tasks from the latest run, got %s", task.RunID)
		}
	}
	if tasks[0].AssigneeName != "Adrian" || tasks[0].StoryPoints == nil || *tasks[0].StoryPoints != 3 {
		t.Fatalf("unexpected first task %+v", tasks[0])
	}
	if len(tasks[0].Labels) != 1 || len(tasks[1].Labels) != 0 {
		t.Fatalf("unexpected labels %v / %v", tasks[0].Labels, tasks[1].Labels)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected assignee user created once, got %+v", users)
	}

	runs, err := store.ListRuns(ctx, "m-1")
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns: %v (%d)", err, len(runs))
	}
}

func TestStoreMeetingAndResultGeneratesMeetingID(t *testing.T) {
	store := openStore(t)
	meetingID, runID, err := store.StoreMeetingAndResult(context.Background(), meetings.StoreRequest{
		Filename: "notes.txt",
		Result:   sampleResult(),
	})
	if err != nil {
		t.Fatalf("StoreMeetingAndResult: %v", err)
	}
	if meetingID == "" || runID == "" {
		t.Fatalf("expected generated ids, got %q %q", meetingID, runID)
	}
	meeting, err := store.GetMeeting(context.Background(), meetingID)
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if meeting.Title != "notes.txt" {
		t.Fatalf("expected filename as title, got %q", meeting.Title)
	}
}

func TestRegisterVoiceProfileIsCaseInsensitive(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.RegisterVoiceProfile(ctx, "Product Owner", "/voices/intro_product_owner.mp3")
	if err != nil {
		t.Fatalf("RegisterVoiceProfile: %v", err)
	}
	second, err := store.RegisterVoiceProfile(ctx, "product  owner", "")
	if err != nil {
		t.Fatalf("RegisterVoiceProfile: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same user, got %s and %s", first.ID, second.ID)
	}
	if second.VoiceSample != "/voices/intro_product_owner.mp3" {
		t.Fatalf("expected voice sample kept, got %q", second.VoiceSample)
	}
	if _, err := store.RegisterVoiceProfile(ctx, "  ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListMeetingsFiltersByStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"m-1", "m-2"} {
		if err := store.CreateMeetingStub(ctx, meetings.Stub{ID: id}); err != nil {
			t.Fatalf("CreateMeetingStub: %v", err)
		}
	}
	if err := store.UpdateMeetingStatus(ctx, "m-2", jobs.StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateMeetingStatus: %v", err)
	}
	failed, err := store.ListMeetings(ctx, meetings.ListFilter{Statuses: []jobs.MeetingStatus{jobs.StatusFailed}})
	if err != nil {
		t.Fatalf("ListMeetings: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "m-2" {
		t.Fatalf("unexpected filtered list %+v", failed)
	}
}
