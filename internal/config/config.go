package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"video-pipeline-go/internal/pipeline"
	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/storage"
)

const (
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendLocal = "local"

	DefaultNamespace = "vatsal-automation"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	Namespace       string
	StorageBackend  string
	S3              storage.S3Config
	GCSBucket       string
	GCSEndpoint     string
	LocalStorageDir string

	FFmpegBinary   string
	DeepgramAPIKey string
	DeepgramURL    string
	MockTranscribe bool
	VoicesAPIURL   string

	PostmarkToken string
	PostmarkFrom  string
	PostmarkURL   string

	StageTimeout time.Duration
	Retry        stage.RetryPolicy
	RunTimeout   time.Duration
	FanOutLimit  int
	RequireVoice bool
	HTTPTimeout  time.Duration

	DatasetPath    string
	ReportPath     string
	RunHistorySize int
}

// Load reads the environment. Unset keys take their defaults; malformed
// values are errors.
func Load() (Config, error) {
	var p parser
	c := Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "local"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		Namespace:      envOr("ARTIFACT_NAMESPACE", DefaultNamespace),
		StorageBackend: strings.ToLower(envOr("STORAGE_BACKEND", BackendS3)),
		S3: storage.S3Config{
			Bucket:          os.Getenv("AWS_BUCKET_FILE_STACK"),
			Region:          os.Getenv("AWS_DEFAULT_REGION_FILE_STACK"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID_FILE_STACK"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY_FILE_STACK"),
		},
		GCSBucket:       os.Getenv("GCS_BUCKET"),
		GCSEndpoint:     os.Getenv("GCS_ENDPOINT"),
		LocalStorageDir: envOr("LOCAL_STORAGE_DIR", "artifacts"),

		FFmpegBinary:   envOr("FFMPEG_BINARY", "ffmpeg"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramURL:    os.Getenv("DEEPGRAM_URL"),
		MockTranscribe: p.boolean("USE_MOCK_TRANSCRIBE", false),
		VoicesAPIURL:   os.Getenv("VOICES_API_URL"),

		PostmarkToken: os.Getenv("POSTMARK_API_TOKEN"),
		PostmarkFrom:  os.Getenv("POSTMARK_FROM_EMAIL"),
		PostmarkURL:   os.Getenv("POSTMARK_URL"),

		StageTimeout: p.duration("STAGE_TIMEOUT", 10*time.Minute),
		Retry: stage.RetryPolicy{
			MaxAttempts: p.integer("RETRY_MAX_ATTEMPTS", 3),
			MinBackoff:  p.duration("RETRY_MIN_BACKOFF", time.Second),
			MaxBackoff:  p.duration("RETRY_MAX_BACKOFF", 10*time.Second),
			Multiplier:  p.float("RETRY_FACTOR", 2),
			Jitter:      p.boolean("RETRY_JITTER", true),
		},
		RunTimeout:   p.duration("RUN_TIMEOUT", 600*time.Second),
		FanOutLimit:  p.integer("FANOUT_LIMIT", 0),
		RequireVoice: p.boolean("REQUIRE_VOICE", false),
		HTTPTimeout:  p.duration("HTTP_TIMEOUT", 2*time.Minute),

		DatasetPath:    envOr("DATASET_PATH", "videos.xlsx"),
		ReportPath:     os.Getenv("REPORT_PATH"),
		RunHistorySize: p.integer("RUN_HISTORY_SIZE", 256),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return c, c.Validate()
}

// Validate checks cross-field constraints Load cannot express per key.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("config: s3 backend needs AWS_BUCKET_FILE_STACK and AWS_DEFAULT_REGION_FILE_STACK")
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config: gcs backend needs GCS_BUCKET")
		}
	case BackendLocal:
		if c.LocalStorageDir == "" {
			return fmt.Errorf("config: local backend needs LOCAL_STORAGE_DIR")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Retry.MaxBackoff < c.Retry.MinBackoff {
		return fmt.Errorf("config: RETRY_MAX_BACKOFF is below RETRY_MIN_BACKOFF")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("config: STAGE_TIMEOUT must be positive")
	}
	return nil
}

// PipelineOptions maps the stage settings onto orchestrator options.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Namespace:    c.Namespace,
		Defaults:     pipeline.StageConfig{Timeout: c.StageTimeout, Retry: c.Retry},
		RequireVoice: c.RequireVoice,
		FanOutLimit:  c.FanOutLimit,
	}
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// parser keeps the first malformed value so Load reports one error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, raw, err)
	}
}

func (p *parser) integer(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

// duration accepts Go durations ("90s") or bare seconds ("90").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
