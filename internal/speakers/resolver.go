// Package speakers attributes diarized transcript segments to participants.
package speakers

import (
	"log/slog"
	"strings"

	"scribe/internal/diarization"
	"scribe/internal/logging"
)

// Resolver turns a segment stream into attributed transcript lines.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver returns a resolver that logs conflicting speaker mappings.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logging.NewComponentLogger(logger, "speakers")}
}

// Resolve walks segments in order. A segment inside an intro boundary teaches
// the speaker-to-role mapping and is dropped; the first boundary seen for a
// speaker wins. Segments before meetingStart outside any boundary are dropped.
// Every other segment becomes "label: text".
func (r *Resolver) Resolve(segments []diarization.Segment, boundaries []diarization.Boundary, meetingStart int64) []string {
	roles := make(map[string]string)
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if boundary, ok := boundaryAt(boundaries, seg.OffsetTick); ok {
			r.learn(roles, seg.SpeakerID, boundary)
			continue
		}
		if seg.OffsetTick < meetingStart {
			continue
		}
		lines = append(lines, label(roles, seg.SpeakerID)+": "+text)
	}
	return lines
}

func (r *Resolver) learn(roles map[string]string, speakerID string, boundary diarization.Boundary) {
	if speakerID == "" {
		return
	}
	existing, known := roles[speakerID]
	if !known {
		roles[speakerID] = boundary.Role
		return
	}
	if existing != boundary.Role && r.logger != nil {
		r.logger.Info("speaker already mapped to another intro; keeping first mapping",
			logging.String("speaker_id", speakerID),
			logging.String("kept_role", existing),
			logging.String("ignored_role", boundary.Role),
			logging.String(logging.FieldEventType, "speaker_mapping_conflict"),
		)
	}
}

func boundaryAt(boundaries []diarization.Boundary, tick int64) (diarization.Boundary, bool) {
	for _, b := range boundaries {
		if b.Contains(tick) {
			return b, true
		}
	}
	return diarization.Boundary{}, false
}

func label(roles map[string]string, speakerID string) string {
	if speakerID == "" {
		return "Speaker"
	}
	if role, ok := roles[speakerID]; ok {
		return role
	}
	return "Speaker " + speakerID
}

// Resolve is a convenience wrapper without logging.
func Resolve(segments []diarization.Segment, boundaries []diarization.Boundary, meetingStart int64) []string {
	return (&Resolver{}).Resolve(segments, boundaries, meetingStart)
}

// Transcript joins attributed lines into the final transcript text.
func Transcript(lines []string) string {
	return strings.Join(lines, "\n")
}
