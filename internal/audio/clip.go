package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Canonical sample width produced by the normalizer, in bytes.
const SampleWidth = 2

const wavPCMFormat = 1

// Format describes interleaved PCM audio. SampleWidth is in bytes.
type Format struct {
	SampleRate  int
	SampleWidth int
	Channels    int
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d-bit, %d ch", f.SampleRate, f.SampleWidth*8, f.Channels)
}

// Valid reports whether the format can describe real audio.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.SampleWidth > 0 && f.Channels > 0
}

// Clip is decoded PCM audio with interleaved integer samples.
type Clip struct {
	Format  Format
	Samples []int
}

// FrameCount returns the number of frames (one sample per channel).
func (c *Clip) FrameCount() int64 {
	if c == nil || c.Format.Channels <= 0 {
		return 0
	}
	return int64(len(c.Samples) / c.Format.Channels)
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameCount()) * time.Second / time.Duration(c.Format.SampleRate)
}

// Append adds other's samples to the end of c. Both clips must share a format.
func (c *Clip) Append(other *Clip) error {
	if other == nil {
		return nil
	}
	if other.Format != c.Format {
		return fmt.Errorf("append clip: format %s does not match %s", other.Format, c.Format)
	}
	c.Samples = append(c.Samples, other.Samples...)
	return nil
}

// AppendSilence adds frames of digital silence.
func (c *Clip) AppendSilence(frames int64) {
	if frames <= 0 {
		return
	}
	c.Samples = append(c.Samples, make([]int, frames*int64(c.Format.Channels))...)
}

// SilenceFrames returns the frame count closest to d at the given rate.
func SilenceFrames(d time.Duration, sampleRate int) int64 {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return (int64(d)*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

// ClipFromPCM builds a clip from signed 16-bit little-endian interleaved bytes.
func ClipFromPCM(pcm []byte, sampleRate, channels int) (*Clip, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("pcm clip: invalid format %d Hz, %d ch", sampleRate, channels)
	}
	frameBytes := SampleWidth * channels
	if len(pcm)%frameBytes != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%frameBytes]
	}
	samples := make([]int, len(pcm)/SampleWidth)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*SampleWidth:])))
	}
	return &Clip{
		Format:  Format{SampleRate: sampleRate, SampleWidth: SampleWidth, Channels: channels},
		Samples: samples,
	}, nil
}

// PCM renders a 16-bit clip back to little-endian interleaved bytes.
func (c *Clip) PCM() []byte {
	out := make([]byte, len(c.Samples)*SampleWidth)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(out[i*SampleWidth:], uint16(int16(s)))
	}
	return out
}

// DecodeWAV reads a RIFF/WAVE stream into a clip.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode wav: not a valid wav stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	format := Format{
		SampleRate:  int(dec.SampleRate),
		SampleWidth: int(dec.BitDepth) / 8,
		Channels:    int(dec.NumChans),
	}
	if !format.Valid() {
		return nil, fmt.Errorf("decode wav: unsupported format %s", format)
	}
	return &Clip{Format: format, Samples: buf.Data}, nil
}

// EncodeWAV writes the clip as a PCM WAV file. The encoder patches chunk
// sizes on close, so w must be seekable.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	if clip == nil || !clip.Format.Valid() {
		return fmt.Errorf("encode wav: invalid clip")
	}
	enc := wav.NewEncoder(w, clip.Format.SampleRate, clip.Format.SampleWidth*8, clip.Format.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Format.Channels, SampleRate: clip.Format.SampleRate},
		Data:           clip.Samples,
		SourceBitDepth: clip.Format.SampleWidth * 8,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode wav: close: %w", err)
	}
	return nil
}
