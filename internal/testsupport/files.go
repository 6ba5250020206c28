package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/audio"
)

// ToneClip returns a clip of the given length filled with a repeating ramp.
func ToneClip(sampleRate, channels int, length time.Duration) *audio.Clip {
	frames := int(audio.SilenceFrames(length, sampleRate))
	samples := make([]int, frames*channels)
	for i := range samples {
		samples[i] = (i%64 - 32) * 512
	}
	return &audio.Clip{
		Format:  audio.Format{SampleRate: sampleRate, SampleWidth: audio.SampleWidth, Channels: channels},
		Samples: samples,
	}
}

// WriteToneWAV writes a 16-bit PCM WAV tone to path and returns its bytes.
func WriteToneWAV(t testing.TB, path string, sampleRate, channels int, length time.Duration) []byte {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if err := audio.EncodeWAV(f, ToneClip(sampleRate, channels, length)); err != nil {
		_ = f.Close()
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
