// Package api serves scribe's HTTP surface: uploads, meeting submission,
// meeting and queue views, blob downloads, health and Prometheus metrics.
//
// # Key Types
//
// Server: gin engine plus the listener lifecycle used by the daemon.
//
// Meeting, Task, QueueStatus: transport DTOs rendered by the handlers and by
// the CLI's JSON output.
//
// # Converters
//
// FromMeeting: meetings.Meeting -> Meeting.
//
// FromTask: meetings.StoredTask -> Task.
//
// FromQueueStats: queue.Stats plus an optional worker snapshot -> QueueStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when zero. Error responses are {"error": "...", "requestId": "..."}
// with the status derived from the services error class: validation 400,
// not found 404, configuration 503, everything else 500.
package api
