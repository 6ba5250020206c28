// Package whisperx runs WhisperX with speaker diarization through uvx.
//
// Diarize writes a JSON transcript next to the source WAV and returns its
// segments, each tagged with the pyannote speaker label. Callers translate
// labels with SpeakerNumber and timestamps into their own units.
package whisperx
