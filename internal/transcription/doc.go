// Package transcription turns meeting audio into an attributed transcript.
//
// Transcriber chains the pieces: normalize the upload, prepend intro samples,
// run a diarized recognition Session over the combined clip, then resolve
// speaker labels against the intro boundaries.
//
// A Session is a small state machine (Idle, Listening, Finished or Canceled)
// fed by the events a Recognizer pushes onto a channel. The session waits for
// each event with a bounded timer; an engine that never signals completion
// fails with ErrNoTerminationSignal instead of hanging the worker slot.
package transcription
