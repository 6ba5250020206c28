// Package daemon runs scribe's long-lived services inside one process: the
// HTTP API, the queue worker and a queue depth monitor feeding the metrics
// gauge. A file lock keeps a single daemon per data directory; additional
// worker processes started with `scribe worker` share the queue through its
// leases instead.
package daemon
