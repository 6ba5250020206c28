package jobs

import (
	"errors"
	"fmt"
	"strings"

	"scribe/internal/services"
)

// ErrInvalidTransition marks a rejected status change.
var ErrInvalidTransition = errors.New("invalid meeting status transition")

// TransitionError reports a status change the state machine refused. From is
// empty when the meeting's current status could not be read.
type TransitionError struct {
	MeetingID string
	From      MeetingStatus
	To        MeetingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("meeting %s: cannot move from %s to %s", e.MeetingID, e.From, e.To)
}

// Unwrap classifies the rejection as a validation failure.
func (e *TransitionError) Unwrap() []error {
	return []error{ErrInvalidTransition, services.ErrValidation}
}

// MeetingStatus tracks an import job through the pipeline.
type MeetingStatus string

const (
	StatusQueued     MeetingStatus = "QUEUED"
	StatusProcessing MeetingStatus = "PROCESSING"
	StatusCompleted  MeetingStatus = "COMPLETED"
	StatusFailed     MeetingStatus = "FAILED"
)

// allowedFrom lists the statuses a meeting may hold before moving to the key.
// PROCESSING may be re-entered so a job whose worker crashed can run again
// after its lease expires.
var allowedFrom = map[MeetingStatus][]MeetingStatus{
	StatusQueued:     {StatusQueued},
	StatusProcessing: {StatusQueued, StatusProcessing},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusQueued, StatusProcessing},
}

// ParseStatus converts a stored value into a MeetingStatus.
func ParseStatus(value string) (MeetingStatus, error) {
	status := MeetingStatus(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := allowedFrom[status]; !ok {
		return "", fmt.Errorf("unknown meeting status %q", value)
	}
	return status, nil
}

// Terminal reports whether no further transition is possible.
func (s MeetingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllowedPredecessors returns the statuses from which s may be entered.
func (s MeetingStatus) AllowedPredecessors() []MeetingStatus {
	return append([]MeetingStatus(nil), allowedFrom[s]...)
}

// CanTransition reports whether a meeting in from may move to to.
func CanTransition(from, to MeetingStatus) bool {
	for _, candidate := range allowedFrom[to] {
		if candidate == from {
			return true
		}
	}
	return false
}

func (s MeetingStatus) String() string { return string(s) }
