// Package telemetry records what the pipeline did: one JSON line per
// extraction run in a size-rotated run log, plus Prometheus metrics for jobs,
// tasks and the queue. Recording is best-effort; callers log and drop errors.
package telemetry
