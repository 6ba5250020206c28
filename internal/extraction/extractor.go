package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/services/llm"
)

// Completer issues JSON chat completions.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Extractor implements the extraction port.
type Extractor struct {
	llm        Completer
	knownNames func() []string
	threshold  float64
	logger     *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithKnownNames supplies the full participant names used to expand partial
// speaker labels (usually the roles of the intro samples).
func WithKnownNames(fn func() []string) Option {
	return func(e *Extractor) { e.knownNames = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logging.NewComponentLogger(logger, "extraction") }
}

// New builds an extractor around a completion client.
func New(client Completer, opts ...Option) *Extractor {
	e := &Extractor{llm: client, threshold: AssigneeMatchThreshold, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces at least one validated task from transcript.
func (e *Extractor) Extract(ctx context.Context, transcript string) (*Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, services.Wrap(services.ErrValidation, "extraction", "extract", "transcript is empty", nil)
	}
	if e.llm == nil {
		return nil, services.Wrap(services.ErrConfiguration, "extraction", "extract", "no llm client configured", nil)
	}
	logger := logging.WithContext(ctx, e.logger)

	speakers := SpeakersFromTranscript(transcript)
	if e.knownNames != nil {
		speakers = ExpandWithKnownNames(speakers, e.knownNames())
	}

	content, err := e.llm.CompleteJSON(ctx, systemPrompt(speakers), userPrompt(transcript))
	if err != nil {
		return nil, err
	}
	result, err := e.parse(ctx, logger, content)
	if err != nil {
		return nil, err
	}
	e.validateAssignees(logger, result, speakers)

	logger.Info("tasks extracted",
		logging.Int("task_count", len(result.Tasks)),
		logging.Int("speaker_count", len(speakers)),
		logging.String(logging.FieldEventType, "extraction_complete"),
	)
	return result, nil
}

func (e *Extractor) parse(ctx context.Context, logger *slog.Logger, content string) (*Result, error) {
	payload, decodeErr := normalizePayload(content)
	if decodeErr == nil {
		result, dropped, err := ParseResult(payload)
		if err == nil {
			if len(dropped) > 0 {
				logging.WarnWithContext(logger, "dropped invalid tasks from extraction", "extraction_salvage",
					logging.Int("dropped", len(dropped)),
					logging.Int("kept", len(result.Tasks)),
					logging.Error(errors.Join(dropped...)),
					logging.String(logging.FieldImpact, "some proposed tasks were discarded"),
				)
			}
			return result, nil
		}
		decodeErr = err
	}

	logging.WarnWithContext(logger, "extraction payload failed validation; requesting repair", "extraction_repair",
		logging.Error(decodeErr),
		logging.String(logging.FieldErrorHint, "the model returned malformed JSON"),
	)
	repaired, err := e.llm.CompleteJSON(ctx, repairSystemPrompt, repairPrompt(content, decodeErr))
	if err != nil {
		return nil, err
	}
	payload, err = normalizePayload(repaired)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extraction", "repair", "repaired payload is not JSON", err)
	}
	result, _, err := ParseResult(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "extraction", "repair", "repaired payload failed validation", err)
	}
	return result, nil
}

func normalizePayload(content string) ([]byte, error) {
	var generic any
	if err := llm.DecodeJSON(content, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func (e *Extractor) validateAssignees(logger *slog.Logger, result *Result, speakers []string) {
	if len(speakers) == 0 {
		return
	}
	for i := range result.Tasks {
		task := &result.Tasks[i]
		if task.AssigneeName == nil {
			continue
		}
		matched := MatchAssignee(*task.AssigneeName, speakers, e.threshold)
		if matched == "" {
			logger.Info("assignee not among meeting speakers; clearing",
				logging.String("assignee", *task.AssigneeName),
				logging.Int("speaker_count", len(speakers)),
				logging.String(logging.FieldEventType, "assignee_cleared"),
			)
			task.AssigneeName = nil
			continue
		}
		task.AssigneeName = &matched
	}
}
