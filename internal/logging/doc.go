// Package logging assembles structured slog loggers and formatting helpers used
// across scribe services.
//
// It owns the console and JSON handlers, rotates file outputs through
// lumberjack, and exposes context-aware helpers so pipeline code tags log
// lines with meeting IDs, queue message IDs, stages and worker slots. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
