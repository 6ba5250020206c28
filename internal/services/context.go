package services

import "context"

type contextKey string

const (
	meetingIDKey contextKey = "meeting_id"
	messageIDKey contextKey = "message_id"
	stageKey     contextKey = "stage"
	slotKey      contextKey = "worker_slot"
	requestIDKey contextKey = "request_id"
)

// WithMeetingID annotates context with the meeting being processed.
func WithMeetingID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, meetingIDKey, id)
}

// MeetingIDFromContext extracts the meeting identifier if present.
func MeetingIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, meetingIDKey)
}

// WithMessageID annotates context with the queue message identifier.
func WithMessageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageIDFromContext extracts the queue message identifier if present.
func MessageIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, messageIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithWorkerSlot annotates context with the worker slot index.
func WithWorkerSlot(ctx context.Context, slot int) context.Context {
	return context.WithValue(ctx, slotKey, slot)
}

// WorkerSlotFromContext returns the worker slot if present.
func WorkerSlotFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(slotKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
