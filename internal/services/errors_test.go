package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scribe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcription", "normalize", "ffmpeg failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcription", "normalize", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsTerminalAndClassify(t *testing.T) {
	cases := []struct {
		marker   error
		terminal bool
		label    string
	}{
		{services.ErrValidation, true, "validation"},
		{services.ErrConfiguration, true, "configuration"},
		{services.ErrNotFound, true, "not_found"},
		{services.ErrExternalTool, false, "external_tool"},
		{services.ErrTimeout, false, "timeout"},
		{services.ErrTransient, false, "transient"},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "stage", "op", "msg", nil)
		if got := services.IsTerminal(err); got != tc.terminal {
			t.Fatalf("IsTerminal(%v) = %v, want %v", tc.marker, got, tc.terminal)
		}
		if got := services.Classify(err); got != tc.label {
			t.Fatalf("Classify(%v) = %q, want %q", tc.marker, got, tc.label)
		}
	}
	if services.Classify(nil) != "none" {
		t.Fatal("expected none for nil error")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := services.WithMeetingID(context.Background(), "m-1")
	ctx = services.WithMessageID(ctx, "msg-1")
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithWorkerSlot(ctx, 2)
	ctx = services.WithRequestID(ctx, "")

	if id, ok := services.MeetingIDFromContext(ctx); !ok || id != "m-1" {
		t.Fatalf("unexpected meeting id %q", id)
	}
	if id, ok := services.MessageIDFromContext(ctx); !ok || id != "msg-1" {
		t.Fatalf("unexpected message id %q", id)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcription" {
		t.Fatalf("unexpected stage %q", stage)
	}
	if slot, ok := services.WorkerSlotFromContext(ctx); !ok || slot != 2 {
		t.Fatalf("unexpected slot %d", slot)
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("empty request id should not be stored")
	}
}
