package whisperx

// Config captures runtime settings for WhisperX diarization runs.
type Config struct {
	// Model is the WhisperX model to use (e.g., "large-v3-turbo").
	Model string
	// Language is the spoken language as an ISO 639-1 code; empty lets WhisperX detect it.
	Language string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// HFToken is the Hugging Face token required by the pyannote diarization pipeline.
	HFToken string
	// MinSpeakers and MaxSpeakers bound the diarization clustering when positive.
	MinSpeakers int
	MaxSpeakers int
}

// WhisperX configuration constants.
const (
	DefaultModel      = "large-v3-turbo"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	BeamSize          = "5"
	Temperature       = "0.0"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
)

// UVXCommand launches WhisperX in an ephemeral environment.
const UVXCommand = "uvx"
