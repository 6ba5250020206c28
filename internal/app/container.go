// Package app assembles the long-lived services of a scribe process into one
// Container built at startup and handed to the daemon, the HTTP API and the
// CLI commands.
package app

import (
	"errors"
	"log/slog"
	"strings"

	"scribe/internal/alignment"
	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/extraction"
	"scribe/internal/logging"
	"scribe/internal/meetings"
	"scribe/internal/notifications"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/llm"
	"scribe/internal/storage"
	"scribe/internal/telemetry"
	"scribe/internal/transcription"
	"scribe/internal/voices"
	"scribe/internal/workflow"
)

// Container holds every dependency a command or the daemon needs.
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Queue     *queue.Store
	Meetings  *meetings.Store
	Storage   *storage.LocalStore
	Metrics   *telemetry.Metrics
	Telemetry *telemetry.Recorder
	Notifier  notifications.Service
	LLM       *llm.Client
	Aligner   *alignment.Aligner
	// Transcriber is nil when diarization is not configured; audio jobs then
	// fail with a configuration error while text transcripts still import.
	Transcriber  *transcription.Transcriber
	Extractor    *extraction.Extractor
	Orchestrator *workflow.Orchestrator
	Submitter    *workflow.Submitter
	Voices       *voices.Syncer

	closers []func() error
}

// New opens the stores and wires the pipeline. Configuration problems are
// returned as services.ErrConfiguration errors and nothing is left open.
func New(cfg *config.Config, logger *slog.Logger) (_ *Container, err error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "app", "init", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "app", "init", "create directories", err)
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Queue, err = queue.OpenFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Queue.Close)

	c.Meetings, err = meetings.OpenFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Meetings.Close)

	c.Storage, err = storage.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	c.Metrics = telemetry.NewMetrics()
	c.Telemetry = telemetry.NewFromConfig(cfg, c.Metrics, logger)
	c.closers = append(c.closers, c.Telemetry.Close)
	c.Notifier = notifications.NewService(cfg)

	c.Aligner = alignment.NewFromConfig(cfg, audio.NewNormalizer(cfg.Audio.FFmpegBinary), logger)
	c.Transcriber, err = newTranscriber(cfg, logger)
	if err != nil {
		return nil, err
	}

	c.LLM = llm.NewClient(llm.ConfigFrom(cfg))
	c.Extractor = extraction.New(c.LLM,
		extraction.WithKnownNames(c.Aligner.Roles),
		extraction.WithLogger(logger),
	)

	opts := workflow.OrchestratorOptions{
		Storage:         c.Storage,
		Extraction:      c.Extractor,
		Repository:      c.Meetings,
		Telemetry:       c.Telemetry,
		Notifier:        c.Notifier,
		Metrics:         c.Metrics,
		TextExtensions:  cfg.Audio.TextExtensions,
		AudioExtensions: cfg.Audio.AudioExtensions,
		Model:           c.LLM.Model(),
		Logger:          logger,
	}
	if c.Transcriber != nil {
		opts.Transcription = c.Transcriber
	}
	c.Orchestrator, err = workflow.NewOrchestrator(opts)
	if err != nil {
		return nil, err
	}
	c.Submitter = workflow.NewSubmitter(c.Queue, c.Meetings, c.Storage, logger)
	c.Voices = voices.NewSyncer(c.Storage, c.Meetings, cfg.Paths.IntroDir, cfg.Audio.IntroPattern, logger)
	return c, nil
}

// newTranscriber returns nil when no HF token is configured. With a token,
// missing tools are a configuration error.
func newTranscriber(cfg *config.Config, logger *slog.Logger) (*transcription.Transcriber, error) {
	if strings.TrimSpace(cfg.Transcription.HFToken) == "" {
		logging.WarnWithContext(logger, "audio transcription disabled", "transcription_disabled",
			logging.String(logging.FieldErrorHint, "set transcription.hf_token or HF_TOKEN to enable diarized transcription"),
			logging.String(logging.FieldImpact, "audio uploads will fail; text transcripts still import"),
		)
		return nil, nil
	}
	return transcription.NewFromConfig(cfg, logger)
}

// NewWorker builds a queue worker running the orchestrator. Workers need a
// configured extraction model. mods adjust the options derived from config.
func (c *Container) NewWorker(mods ...func(*workflow.WorkerOptions)) (*workflow.QueueWorker, error) {
	if !c.LLM.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "app", "worker",
			"llm.api_key (or OPENROUTER_API_KEY) is required to run workers", nil)
	}
	opts := workflow.WorkerOptionsFromConfig(c.Config)
	opts.Queue = c.Queue
	opts.Handler = c.Orchestrator.HandleJob
	opts.Metrics = c.Metrics
	opts.Logger = c.Logger
	for _, mod := range mods {
		mod(&opts)
	}
	return workflow.NewQueueWorker(opts)
}

// Close releases stores in reverse order of opening.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
