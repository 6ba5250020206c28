// Package jobs defines the import job carried by queue messages and the
// forward-only meeting status machine (QUEUED, PROCESSING, then COMPLETED or
// FAILED).
package jobs
