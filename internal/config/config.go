package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the service, populated from the
// environment with sensible defaults for local development.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	GladiaAPIKey  string `env:"GLADIA_API_KEY"`
	GladiaBaseURL string `env:"GLADIA_API_URL" envDefault:"https://api.gladia.io"`

	ElevenLabsAPIKey  string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL string `env:"ELEVENLABS_API_URL" envDefault:"https://api.elevenlabs.io"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`
	ElevenLabsModelID string `env:"ELEVENLABS_MODEL_ID" envDefault:"eleven_multilingual_v2"`

	UploadDir         string   `env:"UPLOAD_DIR" envDefault:"uploads"`
	OutputDir         string   `env:"OUTPUT_DIR" envDefault:"outputs"`
	MaxFileSizeMB     int64    `env:"MAX_FILE_SIZE_MB" envDefault:"100"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"wav,mp3,m4a,flac,ogg"`

	SampleRate  int    `env:"AUDIO_SAMPLE_RATE" envDefault:"22050"`
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	JobWorkers            int           `env:"JOB_WORKERS" envDefault:"2"`
	SynthesisConcurrency  int           `env:"SYNTHESIS_CONCURRENCY" envDefault:"3"`
	SynthesisRateLimit    float64       `env:"SYNTHESIS_RATE_LIMIT" envDefault:"4"`
	SynthesisTimeout      time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"60s"`
	TranscriptionTimeout  time.Duration `env:"TRANSCRIPTION_TIMEOUT" envDefault:"10m"`
	TranscriptionInterval time.Duration `env:"TRANSCRIPTION_POLL_INTERVAL" envDefault:"2s"`

	JobStore     string `env:"JOB_STORE" envDefault:"memory"`
	JobStorePath string `env:"JOB_STORE_PATH" envDefault:"jobs.db"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.GladiaAPIKey == "" {
		return fmt.Errorf("GLADIA_API_KEY is required")
	}
	if c.ElevenLabsAPIKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if c.ElevenLabsVoiceID == "" {
		return fmt.Errorf("ELEVENLABS_VOICE_ID is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSizeMB)
	}
	if c.JobWorkers < 1 {
		return fmt.Errorf("need at least one job worker, got %d", c.JobWorkers)
	}
	if c.SynthesisConcurrency < 1 {
		return fmt.Errorf("need at least one synthesis slot, got %d", c.SynthesisConcurrency)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed extensions must not be empty")
	}
	switch c.JobStore {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown job store %q, want memory or sqlite", c.JobStore)
	}
	return nil
}

// MaxUploadBytes converts the configured upload limit to bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxFileSizeMB << 20
}

// ExtensionAllowed reports whether a lowercase extension without the
// leading dot may be uploaded.
func (c Config) ExtensionAllowed(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
