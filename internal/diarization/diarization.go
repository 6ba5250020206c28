// Package diarization holds the time model shared by alignment, transcription
// and speaker resolution: 100 ns ticks, intro boundaries and speaker-tagged
// transcript segments.
package diarization

import "math"

// TicksPerSecond is the number of 100-nanosecond ticks in one second.
const TicksPerSecond = 10_000_000

// Ticks converts a frame index at the given sample rate to ticks, rounding to
// the nearest tick.
func Ticks(frame int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(math.Round(float64(frame) / float64(sampleRate) * TicksPerSecond))
}

// SecondsToTicks converts engine timestamps expressed in seconds.
func SecondsToTicks(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * TicksPerSecond))
}

// Boundary is the half-open interval [StartTick, EndTick) an intro sample
// occupies in the combined audio stream.
type Boundary struct {
	Role      string
	StartTick int64
	EndTick   int64
}

// Contains reports whether tick falls inside the boundary. The start is
// inclusive and the end exclusive.
func (b Boundary) Contains(tick int64) bool {
	return tick >= b.StartTick && tick < b.EndTick
}

// Segment is one recognized utterance. SpeakerID is assigned by the
// diarization engine and only meaningful within one session.
type Segment struct {
	SpeakerID  string
	Text       string
	OffsetTick int64
}
