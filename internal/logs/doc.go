// Package logs reads the daemon log file for `scribe logs`.
//
// Reads are offset based: a negative offset returns the last N lines, a
// non-negative one returns everything written since. Follow mode polls until
// a line arrives or the wait elapses. When lumberjack rotates the file the
// size drops below the caller's offset and reading restarts from the top of
// the new file.
package logs
