package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scribe/internal/audio"
	"scribe/internal/diarization"
	"scribe/internal/services/whisperx"
)

// Diarizer runs a diarized transcription over a WAV file.
type Diarizer interface {
	Diarize(ctx context.Context, source, outputDir string) ([]whisperx.Segment, error)
}

// WhisperXRecognizer adapts a WhisperX run to the event stream a Session
// consumes. The combined clip is written to a scratch WAV file first.
type WhisperXRecognizer struct {
	diarizer Diarizer
	workDir  string
}

// NewWhisperXRecognizer builds a recognizer writing scratch files under
// workDir (the system temp directory when empty).
func NewWhisperXRecognizer(diarizer Diarizer, workDir string) *WhisperXRecognizer {
	return &WhisperXRecognizer{diarizer: diarizer, workDir: workDir}
}

// Recognize implements Recognizer.
func (r *WhisperXRecognizer) Recognize(ctx context.Context, clip *audio.Clip, events chan<- Event) error {
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0o755); err != nil {
			return fmt.Errorf("ensure transcription work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.workDir, "scribe-transcribe-*")
	if err != nil {
		return fmt.Errorf("create transcription work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "combined.wav")
	if err := writeWAV(source, clip); err != nil {
		return err
	}

	segments, err := r.diarizer.Diarize(ctx, source, dir)
	if err != nil {
		return send(ctx, events, Failed(err.Error()))
	}
	for _, seg := range segments {
		ev := Recognized(diarization.Segment{
			SpeakerID:  whisperx.SpeakerNumber(seg.Speaker),
			Text:       strings.TrimSpace(seg.Text),
			OffsetTick: diarization.SecondsToTicks(seg.Start),
		})
		if err := send(ctx, events, ev); err != nil {
			return err
		}
	}
	return send(ctx, events, EndOfStream())
}

func writeWAV(path string, clip *audio.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create combined wav: %w", err)
	}
	if err := audio.EncodeWAV(f, clip); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func send(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
