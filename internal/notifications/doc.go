// Package notifications pushes job outcomes to ntfy.
//
// The ntfy topic comes from config.toml; without one the service is a no-op.
// The notifications.on_success and notifications.on_failure switches suppress
// the corresponding events. Workflow code depends only on the Service
// interface and treats delivery as best-effort.
package notifications
