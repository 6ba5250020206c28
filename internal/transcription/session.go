package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scribe/internal/audio"
	"scribe/internal/diarization"
	"scribe/internal/services"
)

// DefaultSessionTimeout bounds a recognition session when none is configured.
const DefaultSessionTimeout = 15 * time.Minute

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateListening
	StateFinished
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFinished:
		return "finished"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind distinguishes recognizer events.
type EventKind int

const (
	EventRecognized EventKind = iota
	EventCanceled
	EventSessionStopped
)

// CancelReason explains a cancellation event.
type CancelReason int

const (
	ReasonEndOfStream CancelReason = iota
	ReasonError
)

func (r CancelReason) String() string {
	if r == ReasonEndOfStream {
		return "end of stream"
	}
	return "error"
}

// Event is one notification from a recognizer.
type Event struct {
	Kind    EventKind
	Segment diarization.Segment
	Reason  CancelReason
	Details string
}

// Recognized wraps a segment in an event.
func Recognized(seg diarization.Segment) Event {
	return Event{Kind: EventRecognized, Segment: seg}
}

// EndOfStream signals normal completion.
func EndOfStream() Event {
	return Event{Kind: EventCanceled, Reason: ReasonEndOfStream}
}

// Failed signals an engine failure with its diagnostics.
func Failed(details string) Event {
	return Event{Kind: EventCanceled, Reason: ReasonError, Details: details}
}

// Recognizer runs diarized recognition over clip and pushes events until it
// returns. Implementations must stop sending once ctx is done.
type Recognizer interface {
	Recognize(ctx context.Context, clip *audio.Clip, events chan<- Event) error
}

// CanceledError is a non end-of-stream cancellation reported by the engine.
type CanceledError struct {
	Reason  CancelReason
	Details string
}

func (e *CanceledError) Error() string {
	msg := "transcription canceled: " + e.Reason.String()
	if d := strings.TrimSpace(e.Details); d != "" {
		msg += ". " + d
	}
	return msg
}

func (e *CanceledError) Unwrap() error { return services.ErrTransient }

// ErrNoTerminationSignal is returned when the engine neither finishes nor
// cancels within the session timeout.
var ErrNoTerminationSignal = fmt.Errorf("%w: transcription session ended without a termination signal", services.ErrTimeout)

var errSessionUsed = errors.New("transcription session already started")

// Session drives one recognition run.
type Session struct {
	timeout time.Duration

	mu    sync.Mutex
	state State
}

// NewSession returns an idle session with the given bounded wait.
func NewSession(timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Session{timeout: timeout}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

// Run starts recognizer over clip and collects segments in recognition order
// until the engine signals completion, fails, or the timeout elapses.
func (s *Session) Run(ctx context.Context, recognizer Recognizer, clip *audio.Clip) ([]diarization.Segment, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, errSessionUsed
	}
	s.state = StateListening
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		if err := recognizer.Recognize(runCtx, clip, events); err != nil && runCtx.Err() == nil {
			select {
			case events <- Failed(err.Error()):
			case <-runCtx.Done():
			}
		}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var segments []diarization.Segment
	for {
		select {
		case <-ctx.Done():
			s.transition(StateCanceled)
			return nil, ctx.Err()
		case <-timer.C:
			s.transition(StateCanceled)
			return nil, ErrNoTerminationSignal
		case ev, ok := <-events:
			if !ok {
				s.transition(StateCanceled)
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, ErrNoTerminationSignal
			}
			switch ev.Kind {
			case EventRecognized:
				segments = append(segments, ev.Segment)
			case EventSessionStopped:
				s.transition(StateFinished)
				return segments, nil
			case EventCanceled:
				if ev.Reason == ReasonEndOfStream {
					s.transition(StateFinished)
					return segments, nil
				}
				s.transition(StateCanceled)
				return nil, &CanceledError{Reason: ev.Reason, Details: ev.Details}
			}
		}
	}
}
