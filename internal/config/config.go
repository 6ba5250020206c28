package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	IntroDir string `toml:"intro_dir"`
	BlobDir  string `toml:"blob_dir"`
	APIBind  string `toml:"api_bind"`
}

// Storage contains blob storage settings.
type Storage struct {
	Container       string `toml:"container"`
	PublicBaseURL   string `toml:"public_base_url"`
	AllowRemote     bool   `toml:"allow_remote"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Queue contains job queue and worker settings.
type Queue struct {
	Name               string `toml:"name"`
	VisibilityTimeout  int    `toml:"visibility_timeout"`
	PollInterval       int    `toml:"poll_interval"`
	MaxBatch           int    `toml:"max_batch"`
	Workers            int    `toml:"workers"`
	MaxDeliveries      int    `toml:"max_deliveries"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
}

// Audio contains normalization and intro alignment settings.
type Audio struct {
	FFmpegBinary    string   `toml:"ffmpeg_binary"`
	SampleRate      int      `toml:"sample_rate"`
	Channels        int      `toml:"channels"`
	IntroPattern    string   `toml:"intro_pattern"`
	SilenceMillis   int      `toml:"silence_ms"`
	AudioExtensions []string `toml:"audio_extensions"`
	TextExtensions  []string `toml:"text_extensions"`
}

// Transcription contains diarized recognition settings.
type Transcription struct {
	WhisperXModel  string `toml:"whisperx_model"`
	Language       string `toml:"language"`
	CUDAEnabled    bool   `toml:"cuda_enabled"`
	HFToken        string `toml:"hf_token"`
	MinSpeakers    int    `toml:"min_speakers"`
	MaxSpeakers    int    `toml:"max_speakers"`
	SessionTimeout int    `toml:"session_timeout"`
}

// LLM contains connection settings for the extraction model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Telemetry contains extraction run log and metrics settings.
type Telemetry struct {
	Enabled       bool `toml:"enabled"`
	RunLogMaxMB   int  `toml:"run_log_max_mb"`
	RunLogBackups int  `toml:"run_log_backups"`
	RunLogMaxDays int  `toml:"run_log_max_days"`
}

// Notifications contains ntfy push settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for scribe.
//
// Sections by subsystem:
//   - Paths: data, log, intro sample and blob directories plus the API bind address
//   - Storage: blob container naming and download policy
//   - Queue: lease, polling and worker slot settings
//   - Audio: ffmpeg normalization and intro alignment
//   - Transcription: WhisperX diarization
//   - LLM: task extraction model
//   - Telemetry: run log rotation and metrics
//   - Notifications: ntfy pushes
//   - Logging: log format, level and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Queue         Queue         `toml:"queue"`
	Audio         Audio         `toml:"audio"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon and CLI write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.IntroDir, c.Paths.BlobDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite file backing the job queue.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// MeetingsDBPath returns the SQLite file backing the meetings repository.
func (c *Config) MeetingsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "meetings.db")
}

// LockPath returns the daemon lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scribed.lock")
}

// ScratchDir holds per-job transcription work directories.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.Paths.DataDir, "tmp")
}

// RunLogPath returns the extraction run log path.
func (c *Config) RunLogPath() string {
	return filepath.Join(c.Paths.LogDir, "extraction_runs.jsonl")
}

// VisibilityTimeout returns the queue lease as a duration.
func (c *Config) VisibilityTimeout() time.Duration {
	return time.Duration(c.Queue.VisibilityTimeout) * time.Second
}

// PollInterval returns the empty-queue sleep as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollInterval) * time.Second
}

// ErrorRetryInterval returns the back-off applied after a failed receive.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Queue.ErrorRetryInterval) * time.Second
}

// SilenceGap returns the pause inserted after each intro sample.
func (c *Config) SilenceGap() time.Duration {
	return time.Duration(c.Audio.SilenceMillis) * time.Millisecond
}

// SessionTimeout returns the bounded wait for one recognition session.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Transcription.SessionTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
