package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"scribe/internal/config"
	"scribe/internal/logging"
)

// RunRecord is one extraction run as written to the run log.
type RunRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	MeetingID       string    `json:"meeting_id"`
	RunID           string    `json:"run_id"`
	MeetingDate     string    `json:"meeting_date"`
	TranscriptURI   string    `json:"transcript_uri"`
	Source          string    `json:"source"`
	TranscriptChars int       `json:"transcript_chars"`
	TranscriptLines int       `json:"transcript_lines"`
	SpeakerCount    int       `json:"speaker_count"`
	TaskCount       int       `json:"task_count"`
	AssignedCount   int       `json:"assigned_count"`
	Model           string    `json:"model,omitempty"`
	DurationMillis  int64     `json:"duration_ms"`
}

// TranscriptStats fills the transcript counters from text. Speakers are the
// distinct "Label:" prefixes.
func (r *RunRecord) TranscriptStats(transcript string) {
	r.TranscriptChars = len([]rune(transcript))
	speakers := make(map[string]struct{})
	r.TranscriptLines = 0
	for _, line := range strings.Split(transcript, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.TranscriptLines++
		if idx := strings.Index(line, ": "); idx > 0 && idx <= 50 {
			speakers[line[:idx]] = struct{}{}
		}
	}
	r.SpeakerCount = len(speakers)
}

// Recorder is the telemetry sink used by the orchestrator.
type Recorder struct {
	mu      sync.Mutex
	out     io.WriteCloser
	metrics *Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// NewRecorder writes run records to out (nil disables the run log) and
// observes metrics when m is non-nil.
func NewRecorder(out io.WriteCloser, m *Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{out: out, metrics: m, now: time.Now, logger: logging.NewComponentLogger(logger, "telemetry")}
}

// NewFromConfig builds a recorder with a lumberjack-rotated run log when
// telemetry is enabled.
func NewFromConfig(cfg *config.Config, m *Metrics, logger *slog.Logger) *Recorder {
	if cfg == nil || !cfg.Telemetry.Enabled {
		return NewRecorder(nil, m, logger)
	}
	writer := &lumberjack.Logger{
		Filename:   cfg.RunLogPath(),
		MaxSize:    cfg.Telemetry.RunLogMaxMB,
		MaxBackups: cfg.Telemetry.RunLogBackups,
		MaxAge:     cfg.Telemetry.RunLogMaxDays,
		Compress:   true,
	}
	return NewRecorder(writer, m, logger)
}

// Metrics returns the attached metrics, possibly nil.
func (r *Recorder) Metrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.metrics
}

// LogExtractionRun appends record to the run log and updates metrics.
func (r *Recorder) LogExtractionRun(ctx context.Context, record RunRecord) error {
	if r == nil {
		return nil
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = r.now().UTC()
	}
	if record.TranscriptURI == "" {
		record.TranscriptURI = "unknown"
	}
	if r.metrics != nil {
		r.metrics.TasksExtracted.Add(float64(record.TaskCount))
		r.metrics.TranscriptLength.Observe(float64(record.TranscriptLines))
	}
	if r.out == nil {
		return nil
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	r.mu.Lock()
	_, err = r.out.Write(append(line, '\n'))
	r.mu.Unlock()
	if err != nil {
		if r.metrics != nil {
			r.metrics.RunLogFailures.Inc()
		}
		return fmt.Errorf("write run record: %w", err)
	}
	logging.WithContext(ctx, r.logger).Debug("extraction run recorded",
		logging.String("run_id", record.RunID),
		logging.Int("task_count", record.TaskCount),
	)
	return nil
}

// Close closes the run log.
func (r *Recorder) Close() error {
	if r == nil || r.out == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Close()
}
