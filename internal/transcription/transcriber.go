package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"scribe/internal/alignment"
	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/diarization"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/services/whisperx"
	"scribe/internal/speakers"
)

// ErrNoSpeech is returned when recognition produced no attributable lines.
var ErrNoSpeech = fmt.Errorf("%w: no speech could be recognized", services.ErrValidation)

// Normalizer decodes uploads into canonical clips.
type Normalizer interface {
	NormalizeClip(ctx context.Context, data []byte, sampleRate, channels int) (*audio.Clip, error)
}

// Aligner prepends intro samples to the meeting clip.
type Aligner interface {
	Align(ctx context.Context, meeting *audio.Clip) (alignment.AlignedAudio, []diarization.Boundary, error)
}

// Options wires a Transcriber.
type Options struct {
	Normalizer     Normalizer
	Aligner        Aligner
	Recognizer     Recognizer
	SampleRate     int
	Channels       int
	Extensions     []string
	SessionTimeout time.Duration
	Logger         *slog.Logger
}

// Transcriber implements the transcription port over diarized recognition.
type Transcriber struct {
	normalizer Normalizer
	aligner    Aligner
	recognizer Recognizer
	resolver   *speakers.Resolver
	sampleRate int
	channels   int
	extensions []string
	timeout    time.Duration
	logger     *slog.Logger
}

// New validates opts and builds a Transcriber.
func New(opts Options) (*Transcriber, error) {
	if opts.Normalizer == nil || opts.Recognizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "init", "normalizer and recognizer are required", nil)
	}
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "init",
			fmt.Sprintf("invalid audio format %d Hz, %d ch", opts.SampleRate, opts.Channels), nil)
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		exts = []string{".wav", ".mp3"}
	}
	logger := logging.NewComponentLogger(opts.Logger, "transcription")
	return &Transcriber{
		normalizer: opts.Normalizer,
		aligner:    opts.Aligner,
		recognizer: opts.Recognizer,
		resolver:   speakers.NewResolver(logger),
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		extensions: exts,
		timeout:    opts.SessionTimeout,
		logger:     logger,
	}, nil
}

// NewFromConfig builds the production transcriber: ffmpeg normalization,
// intro alignment and WhisperX diarization. Missing tools or credentials are
// configuration errors.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Transcriber, error) {
	if strings.TrimSpace(cfg.Transcription.HFToken) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "init",
			"transcription.hf_token (or HF_TOKEN) is required for speaker diarization", nil)
	}
	for _, binary := range []string{cfg.Audio.FFmpegBinary, whisperx.UVXCommand} {
		if _, err := exec.LookPath(binary); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "transcription", "init",
				fmt.Sprintf("%s not found on PATH", binary), err)
		}
	}
	normalizer := audio.NewNormalizer(cfg.Audio.FFmpegBinary)
	diarizer := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.WhisperXModel,
		Language:    cfg.Transcription.Language,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		HFToken:     cfg.Transcription.HFToken,
		MinSpeakers: cfg.Transcription.MinSpeakers,
		MaxSpeakers: cfg.Transcription.MaxSpeakers,
	})
	return New(Options{
		Normalizer:     normalizer,
		Aligner:        alignment.NewFromConfig(cfg, normalizer, logger),
		Recognizer:     NewWhisperXRecognizer(diarizer, cfg.ScratchDir()),
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		Extensions:     cfg.Audio.AudioExtensions,
		SessionTimeout: cfg.SessionTimeout(),
		Logger:         logger,
	})
}

// SupportedExtensions lists the lower-case audio extensions Transcribe accepts.
func (t *Transcriber) SupportedExtensions() []string {
	return slices.Clone(t.extensions)
}

// Supports reports whether filename has a supported audio extension.
func (t *Transcriber) Supports(filename string) bool {
	return slices.Contains(t.extensions, strings.ToLower(filepath.Ext(filename)))
}

// Transcribe returns the attributed transcript for an audio upload, one
// "label: text" line per utterance.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	if !t.Supports(filename) {
		return "", services.Wrap(services.ErrValidation, "transcription", "transcribe",
			fmt.Sprintf("unsupported audio format: %s", filename), nil)
	}
	logger := logging.WithContext(ctx, t.logger)
	started := time.Now()

	meeting, err := t.normalizer.NormalizeClip(ctx, data, t.sampleRate, t.channels)
	if err != nil {
		return "", fmt.Errorf("normalize meeting audio: %w", err)
	}

	aligned := alignment.AlignedAudio{Clip: meeting}
	var boundaries []diarization.Boundary
	if t.aligner != nil {
		aligned, boundaries, err = t.aligner.Align(ctx, meeting)
		if err != nil {
			return "", err
		}
	}

	segments, err := NewSession(t.timeout).Run(ctx, t.recognizer, aligned.Clip)
	if err != nil {
		return "", err
	}

	lines := t.resolver.Resolve(segments, boundaries, aligned.MeetingStartTick)
	if len(lines) == 0 {
		return "", ErrNoSpeech
	}

	logger.Info("transcription complete",
		logging.String("filename", filename),
		logging.Duration("audio_duration", meeting.Duration()),
		logging.Int("intro_count", len(boundaries)),
		logging.Int("segment_count", len(segments)),
		logging.Int("line_count", len(lines)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcription_complete"),
	)
	return speakers.Transcript(lines), nil
}
