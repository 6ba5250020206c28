package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scribe/internal/services"
)

// DefaultFFmpegBinary is used when no binary is configured.
const DefaultFFmpegBinary = "ffmpeg"

// ErrToolUnavailable means the external decoder could not be found.
var ErrToolUnavailable = errors.New("audio decoder unavailable")

// DecodeFailedError reports a non-zero decoder exit with its diagnostics.
type DecodeFailedError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *DecodeFailedError) Error() string {
	msg := fmt.Sprintf("%s decode failed", e.Tool)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if detail := strings.TrimSpace(e.Stderr); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func (e *DecodeFailedError) Unwrap() []error {
	return []error{services.ErrExternalTool, e.Err}
}

// CommandRunner executes name with args, feeding stdin and returning stdout
// and stderr separately.
type CommandRunner func(ctx context.Context, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)

// Normalizer converts arbitrary audio bytes into canonical PCM using ffmpeg.
type Normalizer struct {
	binary   string
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewNormalizer builds a normalizer for the given ffmpeg binary.
func NewNormalizer(binary string) *Normalizer {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultFFmpegBinary
	}
	return &Normalizer{binary: binary, runner: runCommand, lookPath: exec.LookPath}
}

// WithCommandRunner replaces process execution (tests). A custom runner also
// bypasses the binary lookup.
func (n *Normalizer) WithCommandRunner(runner CommandRunner) *Normalizer {
	if runner != nil {
		n.runner = runner
		n.lookPath = func(name string) (string, error) { return name, nil }
	}
	return n
}

// Binary returns the configured decoder command.
func (n *Normalizer) Binary() string { return n.binary }

// Normalize decodes data into signed 16-bit little-endian interleaved PCM at
// sampleRate with the given channel count.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, sampleRate, channels int) ([]byte, error) {
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "audio", "normalize", "empty audio payload", nil)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, services.Wrap(services.ErrValidation, "audio", "normalize",
			fmt.Sprintf("invalid target format %d Hz, %d ch", sampleRate, channels), nil)
	}
	if clip, ok := canonicalWAV(data, sampleRate, channels); ok {
		return clip.PCM(), nil
	}
	if _, err := n.lookPath(n.binary); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "audio", "normalize",
			fmt.Sprintf("%s not found on PATH", n.binary), ErrToolUnavailable)
	}
	stdout, stderr, err := n.runner(ctx, data, n.binary, ffmpegArgs(sampleRate, channels)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &DecodeFailedError{Tool: n.binary, Stderr: string(stderr), Err: err}
	}
	return stdout, nil
}

// NormalizeClip is Normalize followed by sample decoding.
func (n *Normalizer) NormalizeClip(ctx context.Context, data []byte, sampleRate, channels int) (*Clip, error) {
	if clip, ok := canonicalWAV(data, sampleRate, channels); ok {
		return clip, nil
	}
	pcm, err := n.Normalize(ctx, data, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return ClipFromPCM(pcm, sampleRate, channels)
}

func ffmpegArgs(sampleRate, channels int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", "pipe:0",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
}

// canonicalWAV decodes data in-process when it is already a 16-bit WAV in
// the target format.
func canonicalWAV(data []byte, sampleRate, channels int) (*Clip, bool) {
	if len(data) < 12 || !bytes.Equal(data[:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, false
	}
	clip, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	want := Format{SampleRate: sampleRate, SampleWidth: SampleWidth, Channels: channels}
	if clip.Format != want {
		return nil, false
	}
	return clip, true
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
