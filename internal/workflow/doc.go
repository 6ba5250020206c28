// Package workflow turns queued import jobs into stored extraction results.
//
// Submitter writes the QUEUED meeting stub and enqueues the job message.
// QueueWorker leases messages from the queue, decodes them and hands each job
// to a handler on one of its worker slots, deleting the message only when the
// handler succeeds. Orchestrator is that handler: it moves the meeting to
// PROCESSING, downloads the blob, resolves a transcript (decoded text or
// diarized audio), runs extraction, persists the run and finally marks the
// meeting COMPLETED or FAILED.
//
// Every collaborator is reached through the interfaces in ports.go so the
// pipeline can be exercised end to end against in-memory fakes.
package workflow
