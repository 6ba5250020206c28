// Package audio converts uploaded recordings into canonical PCM clips.
//
// Normalizer shells out to ffmpeg and returns signed 16-bit little-endian
// frames at the requested sample rate and channel count. WAV input that is
// already canonical is decoded in-process with go-audio and never reaches
// ffmpeg. Clip carries the decoded samples together with their Format so
// callers can compare formats and concatenate clips frame by frame.
package audio
