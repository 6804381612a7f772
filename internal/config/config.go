package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	OpenAI        OpenAIConfig
	STT           STTConfig
	Media         MediaConfig
	Timeouts      TimeoutConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type OpenAIConfig struct {
	APIKey       string
	OrgID        string
	BaseURL      string
	SummaryModel string
}

type STTConfig struct {
	Provider        string // openai | fpt | google
	Model           string
	DefaultLanguage string

	FPTApiKey string
	FPTSTTURL string

	GoogleProjectID string
	GoogleKeyData   string
}

type MediaConfig struct {
	UploadDir      string
	ScratchDir     string
	MaxUploadBytes int64
	SegmentSeconds int
	FFmpegPath     string
	FFprobePath    string
}

type TimeoutConfig struct {
	Process    time.Duration // whole transcription run
	Transcribe time.Duration // one segment
	Segment    time.Duration // transcoder invocation
	Summarize  time.Duration
}

type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	TopicJobs string
	Principal string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// GoogleSyncLimitSeconds is the longest audio Google's synchronous
// recognize call accepts.
const GoogleSyncLimitSeconds = 60

// googleSegmentSeconds keeps google chunks under the sync limit.
const googleSegmentSeconds = 55

// Load loads configuration from environment variables
func Load() (*Config, error) {
	uploadDir := getEnv("UPLOAD_DIR", "uploads")
	provider := strings.ToLower(getEnv("STT_PROVIDER", "openai"))

	segmentSeconds := 600
	if provider == "google" {
		segmentSeconds = googleSegmentSeconds
	}

	cfg := &Config{
		Port:        getEnv("PORT", "5051"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpenAI: OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			OrgID:        os.Getenv("OPENAI_ORG_ID"),
			BaseURL:      os.Getenv("OPENAI_BASE_URL"),
			SummaryModel: getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		},
		STT: STTConfig{
			Provider:        provider,
			Model:           getEnv("TRANSCRIBE_MODEL", "whisper-1"),
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "th"),
			FPTApiKey:       os.Getenv("FPT_AI_API_KEY"),
			FPTSTTURL:       getEnv("FPT_AI_STT_URL", "https://api.fpt.ai/hmi/asr/v1"),
			GoogleProjectID: os.Getenv("GOOGLE_STT_PROJECT_ID"),
			GoogleKeyData:   os.Getenv("GOOGLE_STT_KEY_FILE"),
		},
		Media: MediaConfig{
			UploadDir:      uploadDir,
			ScratchDir:     getEnv("SCRATCH_DIR", uploadDir),
			MaxUploadBytes: int64(getInt("MAX_UPLOAD_MB", 300)) * 1024 * 1024,
			SegmentSeconds: getInt("SEGMENT_SECONDS", segmentSeconds),
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		},
		Timeouts: TimeoutConfig{
			Process:    getDuration("PROCESS_TIMEOUT", 30*time.Minute),
			Transcribe: getDuration("TRANSCRIBE_TIMEOUT", 30*time.Minute),
			Segment:    getDuration("SEGMENT_TIMEOUT", 10*time.Minute),
			Summarize:  getDuration("SUMMARIZE_TIMEOUT", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:   getBool("KAFKA_ENABLED", false),
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			TopicJobs: getEnv("KAFKA_TOPIC_JOBS", "mimi.jobs"),
			Principal: getEnv("SERVICE_PRINCIPAL", "svc-mimi"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	// Summaries always go through OpenAI, whichever STT provider is chosen.
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	switch c.STT.Provider {
	case "openai":
	case "fpt":
		if c.STT.FPTApiKey == "" {
			return fmt.Errorf("FPT_AI_API_KEY is required when STT_PROVIDER=fpt")
		}
	case "google":
		if c.STT.GoogleProjectID == "" && !IsGoogleAPIKey(c.STT.GoogleKeyData) {
			return fmt.Errorf("GOOGLE_STT_PROJECT_ID is required when using a service account")
		}
		if c.Media.SegmentSeconds > GoogleSyncLimitSeconds {
			return fmt.Errorf("SEGMENT_SECONDS must be at most %d when STT_PROVIDER=google, got %d",
				GoogleSyncLimitSeconds, c.Media.SegmentSeconds)
		}
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q. Supported: openai, fpt, google", c.STT.Provider)
	}

	if c.Media.SegmentSeconds <= 0 {
		return fmt.Errorf("SEGMENT_SECONDS must be positive, got %d", c.Media.SegmentSeconds)
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	for _, t := range []struct {
		key string
		val time.Duration
	}{
		{"PROCESS_TIMEOUT", c.Timeouts.Process},
		{"TRANSCRIBE_TIMEOUT", c.Timeouts.Transcribe},
		{"SEGMENT_TIMEOUT", c.Timeouts.Segment},
		{"SUMMARIZE_TIMEOUT", c.Timeouts.Summarize},
	} {
		if t.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", t.key, t.val)
		}
	}
	return nil
}

// TranscriptionModel is the model tag recorded on each job.
func (c *Config) TranscriptionModel() string {
	if c.STT.Provider == "openai" {
		return c.STT.Model
	}
	return c.STT.Provider
}

// IsGoogleAPIKey reports whether keyData looks like an API key rather than
// service account credentials.
func IsGoogleAPIKey(keyData string) bool {
	keyData = strings.TrimSpace(keyData)
	return len(keyData) == 39 && strings.HasPrefix(keyData, "AIzaSy")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
