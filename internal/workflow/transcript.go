package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"scribe/internal/services"
)

// UnsupportedTypeError rejects an upload that is neither text nor a
// supported audio format.
type UnsupportedTypeError struct {
	Filename  string
	Supported []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q: upload .txt, .json or one of %s",
		e.Filename, strings.Join(e.Supported, ", "))
}

func (e *UnsupportedTypeError) Unwrap() error { return services.ErrValidation }

// Transcript sources reported to telemetry and metrics.
const (
	SourceText  = "text"
	SourceAudio = "audio"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fileExt is the lower-case extension used to route an upload.
func fileExt(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

// DecodeTextTranscript reads a plain-text upload. A leading byte order mark
// and any invalid UTF-8 bytes are dropped.
func DecodeTextTranscript(data []byte) (string, error) {
	text := normalizeNewlines(cleanUTF8(data))
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrValidation, "transcript", "decode text", "transcript is empty", nil)
	}
	return text, nil
}

// transcriptLine is one entry of a JSON line-list transcript.
type transcriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DecodeJSONTranscript accepts a JSON string, an object with a "transcript"
// string, or a list of {speaker, text} lines rendered as "speaker: text".
// Any other document, valid JSON or not, is used as plain text.
func DecodeJSONTranscript(data []byte) (string, error) {
	raw := strings.TrimSpace(cleanUTF8(data))
	if raw == "" {
		return "", services.Wrap(services.ErrValidation, "transcript", "decode json", "transcript is empty", nil)
	}
	text, ok := structuredTranscript([]byte(raw))
	if !ok {
		return DecodeTextTranscript([]byte(raw))
	}
	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrValidation, "transcript", "decode json", "transcript is empty", nil)
	}
	return text, nil
}

// structuredTranscript extracts the text of a recognized JSON shape. ok is
// false when data is not one of them.
func structuredTranscript(data []byte) (string, bool) {
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return "", false
		}
		return text, true
	case '{':
		var doc struct {
			Transcript *string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &doc); err != nil || doc.Transcript == nil {
			return "", false
		}
		return *doc.Transcript, true
	case '[':
		var lines []transcriptLine
		if err := json.Unmarshal(data, &lines); err != nil {
			return "", false
		}
		rendered := make([]string, 0, len(lines))
		for _, line := range lines {
			body := strings.TrimSpace(line.Text)
			if body == "" {
				continue
			}
			speaker := strings.TrimSpace(line.Speaker)
			if speaker == "" {
				speaker = "Speaker"
			}
			rendered = append(rendered, speaker+": "+body)
		}
		if len(rendered) == 0 {
			return "", false
		}
		return strings.Join(rendered, "\n"), true
	}
	return "", false
}

func cleanUTF8(data []byte) string {
	return strings.ToValidUTF8(string(bytes.TrimPrefix(data, utf8BOM)), "")
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
