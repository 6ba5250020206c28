package transcription

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"scribe/internal/audio"
	"scribe/internal/diarization"
	"scribe/internal/services"
)

// scriptedRecognizer replays fixed events, optionally blocking afterwards.
type scriptedRecognizer struct {
	events []Event
	err    error
	block  bool
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, _ *audio.Clip, events chan<- Event) error {
	for _, ev := range r.events {
		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

func seg(speaker, text string, tick int64) diarization.Segment {
	return diarization.Segment{SpeakerID: speaker, Text: text, OffsetTick: tick}
}

func TestSessionEndOfStreamFinishes(t *testing.T) {
	rec := &scriptedRecognizer{events: []Event{
		Recognized(seg("1", "hello", 10)),
		Recognized(seg("2", "hi", 20)),
		EndOfStream(),
	}}
	session := NewSession(time.Second)
	if session.State() != StateIdle {
		t.Fatalf("new session state = %s", session.State())
	}
	segments, err := session.Run(context.Background(), rec, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(segments) != 2 || segments[0].Text != "hello" || segments[1].OffsetTick != 20 {
		t.Fatalf("unexpected segments %+v", segments)
	}
	if session.State() != StateFinished {
		t.Fatalf("state = %s, want finished", session.State())
	}
}

func TestSessionStoppedFinishes(t *testing.T) {
	rec := &scriptedRecognizer{events: []Event{
		Recognized(seg("1", "only", 5)),
		{Kind: EventSessionStopped},
	}}
	segments, err := NewSession(time.Second).Run(context.Background(), rec, nil)
	if err != nil || len(segments) != 1 {
		t.Fatalf("Run = %v, %v", segments, err)
	}
}

func TestSessionErrorCancellationFails(t *testing.T) {
	rec := &scriptedRecognizer{events: []Event{
		Recognized(seg("1", "partial", 5)),
		Failed("authentication failure: invalid token"),
	}}
	session := NewSession(time.Second)
	_, err := session.Run(context.Background(), rec, nil)
	var canceled *CanceledError
	if !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("diagnostics missing from %q", err)
	}
	if !errors.Is(err, services.ErrTransient) || services.IsTerminal(err) {
		t.Fatalf("engine cancellation should be transient: %v", err)
	}
	if session.State() != StateCanceled {
		t.Fatalf("state = %s, want canceled", session.State())
	}
}

func TestSessionRecognizerErrorBecomesCancellation(t *testing.T) {
	rec := &scriptedRecognizer{err: errors.New("whisperx: exit status 1")}
	_, err := NewSession(time.Second).Run(context.Background(), rec, nil)
	var canceled *CanceledError
	if !errors.As(err, &canceled) || canceled.Reason != ReasonError {
		t.Fatalf("expected error cancellation, got %v", err)
	}
}

func TestSessionTimesOutWithoutTerminationSignal(t *testing.T) {
	rec := &scriptedRecognizer{events: []Event{Recognized(seg("1", "hello", 1))}, block: true}
	session := NewSession(50 * time.Millisecond)
	_, err := session.Run(context.Background(), rec, nil)
	if !errors.Is(err, ErrNoTerminationSignal) {
		t.Fatalf("expected ErrNoTerminationSignal, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
}

func TestSessionRecognizerReturnsWithoutSignal(t *testing.T) {
	rec := &scriptedRecognizer{events: []Event{Recognized(seg("1", "hello", 1))}}
	_, err := NewSession(time.Second).Run(context.Background(), rec, nil)
	if !errors.Is(err, ErrNoTerminationSignal) {
		t.Fatalf("expected ErrNoTerminationSignal, got %v", err)
	}
}

func TestSessionHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSession(time.Second).Run(ctx, &scriptedRecognizer{block: true}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionRunsOnce(t *testing.T) {
	session := NewSession(time.Second)
	if _, err := session.Run(context.Background(), &scriptedRecognizer{events: []Event{EndOfStream()}}, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := session.Run(context.Background(), &scriptedRecognizer{events: []Event{EndOfStream()}}, nil); err == nil {
		t.Fatal("expected second Run to fail")
	}
}
