// Command scribe is the operator CLI: it submits recordings and transcripts
// for import, inspects meetings and the job queue, runs queue workers or the
// full daemon in the foreground, syncs voice samples and checks the host.
//
// Commands open the SQLite stores directly, so they work whether or not the
// daemon is running.
package main
