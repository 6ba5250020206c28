package alignment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/diarization"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// DefaultPattern matches reference intro files.
const DefaultPattern = "intro_*.mp3"

// Normalizer decodes raw audio into a clip at the requested format.
type Normalizer interface {
	NormalizeClip(ctx context.Context, data []byte, sampleRate, channels int) (*audio.Clip, error)
}

// IncompatibleFormatError names an intro whose decoded format differs from the
// meeting audio.
type IncompatibleFormatError struct {
	Path string
	Got  audio.Format
	Want audio.Format
}

func (e *IncompatibleFormatError) Error() string {
	return fmt.Sprintf("intro sample %s has incompatible audio format (%s, meeting is %s)",
		filepath.Base(e.Path), e.Got, e.Want)
}

func (e *IncompatibleFormatError) Unwrap() error { return services.ErrValidation }

// IntroSample is one decoded reference intro.
type IntroSample struct {
	Role string
	Path string
	Clip *audio.Clip
}

// AlignedAudio is the combined stream handed to the recognizer.
type AlignedAudio struct {
	Clip             *audio.Clip
	MeetingStartTick int64
}

// Aligner concatenates intro samples ahead of meeting audio.
type Aligner struct {
	dir        string
	pattern    string
	silence    time.Duration
	normalizer Normalizer
	logger     *slog.Logger
}

// New builds an aligner reading intros from dir.
func New(dir, pattern string, silence time.Duration, normalizer Normalizer, logger *slog.Logger) *Aligner {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	return &Aligner{
		dir:        strings.TrimSpace(dir),
		pattern:    pattern,
		silence:    silence,
		normalizer: normalizer,
		logger:     logging.NewComponentLogger(logger, "alignment"),
	}
}

// NewFromConfig wires the aligner from the audio section.
func NewFromConfig(cfg *config.Config, normalizer Normalizer, logger *slog.Logger) *Aligner {
	return New(cfg.Paths.IntroDir, cfg.Audio.IntroPattern, cfg.SilenceGap(), normalizer, logger)
}

// Dir returns the intro directory.
func (a *Aligner) Dir() string { return a.dir }

// IntroPaths lists intro files in enumeration order. A missing directory
// yields no intros.
func (a *Aligner) IntroPaths() ([]string, error) {
	if a.dir == "" {
		return nil, nil
	}
	info, err := os.Stat(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat intro dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(a.dir, a.pattern))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "alignment", "list intros",
			fmt.Sprintf("invalid intro pattern %q", a.pattern), err)
	}
	paths := make([]string, 0, len(matches))
	for _, match := range matches {
		if fi, statErr := os.Stat(match); statErr == nil && fi.Mode().IsRegular() {
			paths = append(paths, match)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Roles returns the participant role of every available intro, in
// enumeration order.
func (a *Aligner) Roles() []string {
	paths, err := a.IntroPaths()
	if err != nil {
		return nil
	}
	roles := make([]string, 0, len(paths))
	for _, p := range paths {
		if role := RoleFromFilename(p); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// LoadIntros decodes every intro to want, failing on the first sample whose
// decoded format differs.
func (a *Aligner) LoadIntros(ctx context.Context, want audio.Format) ([]IntroSample, error) {
	paths, err := a.IntroPaths()
	if err != nil || len(paths) == 0 {
		return nil, err
	}
	if a.normalizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "alignment", "load intros", "no audio normalizer configured", nil)
	}
	samples := make([]IntroSample, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read intro %s: %w", filepath.Base(path), err)
		}
		clip, err := a.normalizer.NormalizeClip(ctx, data, want.SampleRate, want.Channels)
		if err != nil {
			return nil, fmt.Errorf("normalize intro %s: %w", filepath.Base(path), err)
		}
		if clip.Format != want {
			return nil, &IncompatibleFormatError{Path: path, Got: clip.Format, Want: want}
		}
		samples = append(samples, IntroSample{Role: RoleFromFilename(path), Path: path, Clip: clip})
	}
	return samples, nil
}

// Align builds the combined stream intro1, silence, intro2, silence, ...,
// meeting and returns each intro's boundary. Without intros the meeting clip
// is returned unchanged with a start tick of zero.
func (a *Aligner) Align(ctx context.Context, meeting *audio.Clip) (AlignedAudio, []diarization.Boundary, error) {
	if meeting == nil || !meeting.Format.Valid() {
		return AlignedAudio{}, nil, services.Wrap(services.ErrValidation, "alignment", "align", "meeting audio has no valid format", nil)
	}
	intros, err := a.LoadIntros(ctx, meeting.Format)
	if err != nil {
		return AlignedAudio{}, nil, err
	}
	if len(intros) == 0 {
		return AlignedAudio{Clip: meeting}, nil, nil
	}

	rate := meeting.Format.SampleRate
	silenceFrames := audio.SilenceFrames(a.silence, rate)
	total := int64(len(meeting.Samples))
	for _, intro := range intros {
		total += int64(len(intro.Clip.Samples)) + silenceFrames*int64(meeting.Format.Channels)
	}
	combined := &audio.Clip{Format: meeting.Format, Samples: make([]int, 0, total)}
	boundaries := make([]diarization.Boundary, 0, len(intros))

	var cursor int64
	for _, intro := range intros {
		if err := combined.Append(intro.Clip); err != nil {
			return AlignedAudio{}, nil, err
		}
		start := diarization.Ticks(cursor, rate)
		cursor += intro.Clip.FrameCount()
		boundaries = append(boundaries, diarization.Boundary{
			Role:      intro.Role,
			StartTick: start,
			EndTick:   diarization.Ticks(cursor, rate),
		})
		combined.AppendSilence(silenceFrames)
		cursor += silenceFrames
	}
	meetingStart := diarization.Ticks(cursor, rate)
	if err := combined.Append(meeting); err != nil {
		return AlignedAudio{}, nil, err
	}

	a.logger.Debug("intro samples aligned",
		logging.Int("intro_count", len(intros)),
		logging.Int64("meeting_start_tick", meetingStart),
		logging.String(logging.FieldEventType, "intro_alignment"),
	)
	return AlignedAudio{Clip: combined, MeetingStartTick: meetingStart}, boundaries, nil
}
