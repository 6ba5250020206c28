package config

const (
	defaultDataDir              = "~/.local/share/scribe"
	defaultLogDir               = "~/.local/share/scribe/logs"
	defaultIntroDir             = "~/.local/share/scribe/voices"
	defaultBlobDir              = "~/.local/share/scribe/blobs"
	defaultAPIBind              = "127.0.0.1:7487"
	defaultContainer            = "recordings"
	defaultDownloadTimeout      = 120
	defaultQueueName            = "meeting-import"
	defaultVisibilityTimeout    = 300
	defaultPollInterval         = 2
	defaultMaxBatch             = 16
	defaultWorkers              = 1
	defaultMaxDeliveries        = 5
	defaultErrorRetryInterval   = 10
	defaultFFmpegBinary         = "ffmpeg"
	defaultSampleRate           = 16000
	defaultChannels             = 1
	defaultIntroPattern         = "intro_*.mp3"
	defaultSilenceMillis        = 300
	defaultWhisperXModel        = "large-v3-turbo"
	defaultLanguage             = "en"
	defaultSessionTimeout       = 900
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMReferer           = "https://github.com/scribe/scribe"
	defaultLLMTitle             = "Scribe Task Extraction"
	defaultLLMTimeoutSeconds    = 120
	defaultRunLogMaxMB          = 50
	defaultRunLogBackups        = 5
	defaultRunLogMaxDays        = 30
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogMaxSizeMB         = 100
	defaultLogMaxBackups        = 10
	defaultLogMaxAgeDays        = 30
)

var (
	defaultAudioExtensions = []string{".wav", ".mp3"}
	defaultTextExtensions  = []string{".txt", ".json"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			IntroDir: defaultIntroDir,
			BlobDir:  defaultBlobDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			Container:       defaultContainer,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Queue: Queue{
			Name:               defaultQueueName,
			VisibilityTimeout:  defaultVisibilityTimeout,
			PollInterval:       defaultPollInterval,
			MaxBatch:           defaultMaxBatch,
			Workers:            defaultWorkers,
			MaxDeliveries:      defaultMaxDeliveries,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Audio: Audio{
			FFmpegBinary:    defaultFFmpegBinary,
			SampleRate:      defaultSampleRate,
			Channels:        defaultChannels,
			IntroPattern:    defaultIntroPattern,
			SilenceMillis:   defaultSilenceMillis,
			AudioExtensions: append([]string(nil), defaultAudioExtensions...),
			TextExtensions:  append([]string(nil), defaultTextExtensions...),
		},
		Transcription: Transcription{
			WhisperXModel:  defaultWhisperXModel,
			Language:       defaultLanguage,
			SessionTimeout: defaultSessionTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Telemetry: Telemetry{
			Enabled:       true,
			RunLogMaxMB:   defaultRunLogMaxMB,
			RunLogBackups: defaultRunLogBackups,
			RunLogMaxDays: defaultRunLogMaxDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			OnFailure:      true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
