package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"

	"scribe/internal/language"
)

var containerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if !containerNamePattern.MatchString(c.Storage.Container) {
		return fmt.Errorf("storage.container %q must be 3-63 lowercase letters, digits or dashes", c.Storage.Container)
	}
	parsed, err := url.Parse(c.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("storage.public_base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("storage.public_base_url must use http or https, got %q", c.Storage.PublicBaseURL)
	}
	if parsed.Host == "" {
		return errors.New("storage.public_base_url must include a host")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch {
	case c.Queue.Name == "":
		return errors.New("queue.name must be set")
	case c.Queue.VisibilityTimeout <= 0:
		return errors.New("queue.visibility_timeout must be positive")
	case c.Queue.PollInterval <= 0:
		return errors.New("queue.poll_interval must be positive")
	case c.Queue.MaxBatch <= 0 || c.Queue.MaxBatch > 32:
		return errors.New("queue.max_batch must be between 1 and 32")
	case c.Queue.Workers <= 0:
		return errors.New("queue.workers must be at least 1")
	case c.Queue.MaxDeliveries < 0:
		return errors.New("queue.max_deliveries must not be negative")
	case c.Queue.ErrorRetryInterval <= 0:
		return errors.New("queue.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if c.Audio.SilenceMillis < 0 {
		return errors.New("audio.silence_ms must not be negative")
	}
	if _, err := filepath.Match(c.Audio.IntroPattern, "intro_probe.mp3"); err != nil {
		return fmt.Errorf("audio.intro_pattern: %w", err)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if _, err := language.Normalize(c.Transcription.Language); err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	if c.Transcription.SessionTimeout <= 0 {
		return errors.New("transcription.session_timeout must be positive")
	}
	if c.Transcription.MinSpeakers < 0 || c.Transcription.MaxSpeakers < 0 {
		return errors.New("transcription speaker bounds must not be negative")
	}
	if c.Transcription.MaxSpeakers > 0 && c.Transcription.MinSpeakers > c.Transcription.MaxSpeakers {
		return errors.New("transcription.min_speakers must not exceed transcription.max_speakers")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
