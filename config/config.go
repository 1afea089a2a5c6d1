// config/config.go

// Package config loads service configuration from environment variables
// with development defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultPort            = 5001
	DefaultLogLevel        = "info"
	DefaultPipelineQueue   = "video_pipeline_queue"
	DefaultRefineTimeout   = 2 * time.Minute
	DefaultClipConcurrency = 3
	DefaultLeaseTTL        = 5 * time.Minute
	DefaultSubtitleChars   = 16
	DefaultConnectRetries  = 5
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultSpeechModel     = "whisper-1"

	devJWTSecret = "supersecretjwtkeythatshouldbeverylongandrandominproduction"
)

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns a lib/pq connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Queue    string
}

func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	DB       DBConfig
	RabbitMQ RabbitMQConfig

	JWTSecret        []byte
	JWTSecretDefault bool

	CacheBucket string

	FileHostBaseURL    string
	FileHostToken      string
	ClipOutputFolderID string

	SpeechBaseURL string
	SpeechAPIKey  string
	SpeechModel   string

	GeminiBaseURL string
	GeminiAPIKey  string
	GeminiModel   string

	FFmpegPath  string
	FFprobePath string
	WorkDir     string

	RefineTimeout    time.Duration
	ClipConcurrency  int
	LeaseTTL         time.Duration
	SubtitleMaxChars int
	ConnectRetries   int
}

// Load reads the environment. Malformed numbers and durations are errors;
// absent values fall back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      DefaultPort,
		LogLevel:  envOr("LOG_LEVEL", DefaultLogLevel),
		LogFormat: envOr("LOG_FORMAT", "json"),
		DB: DBConfig{
			Host:     envOr("DB_HOST", "db"),
			Port:     envOr("DB_PORT", "5432"),
			User:     envOr("DB_USER", "user"),
			Password: envOr("DB_PASS", "password"),
			Name:     envOr("DB_NAME", "clip_processor_db"),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     envOr("RABBITMQ_HOST", "rabbitmq"),
			Port:     envOr("RABBITMQ_PORT", "5672"),
			User:     envOr("RABBITMQ_USER", "guest"),
			Password: envOr("RABBITMQ_PASS", "guest"),
			Queue:    envOr("PIPELINE_QUEUE", DefaultPipelineQueue),
		},
		CacheBucket:        os.Getenv("CACHE_BUCKET"),
		FileHostBaseURL:    os.Getenv("FILE_HOST_BASE_URL"),
		FileHostToken:      os.Getenv("FILE_HOST_TOKEN"),
		ClipOutputFolderID: os.Getenv("CLIP_OUTPUT_FOLDER_ID"),
		SpeechBaseURL:      envOr("SPEECH_BASE_URL", "https://api.openai.com/v1"),
		SpeechAPIKey:       os.Getenv("SPEECH_API_KEY"),
		SpeechModel:        envOr("SPEECH_MODEL", DefaultSpeechModel),
		GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        envOr("GEMINI_MODEL", DefaultGeminiModel),
		FFmpegPath:         envOr("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        envOr("FFPROBE_PATH", "ffprobe"),
		WorkDir:            envOr("WORK_DIR", filepath.Join(os.TempDir(), "clip-processor")),
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = []byte(secret)
	} else {
		cfg.JWTSecret = []byte(devJWTSecret)
		cfg.JWTSecretDefault = true
	}

	var err error
	if cfg.Port, err = envInt("PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: port must be between 1 and 65535")
	}
	if cfg.ClipConcurrency, err = envInt("CLIP_CONCURRENCY", DefaultClipConcurrency); err != nil {
		return nil, err
	}
	if cfg.ClipConcurrency < 1 {
		return nil, fmt.Errorf("invalid CLIP_CONCURRENCY: must be at least 1")
	}
	if cfg.SubtitleMaxChars, err = envInt("SUBTITLE_MAX_CHARS", DefaultSubtitleChars); err != nil {
		return nil, err
	}
	if cfg.SubtitleMaxChars < 1 {
		return nil, fmt.Errorf("invalid SUBTITLE_MAX_CHARS: must be at least 1")
	}
	if cfg.ConnectRetries, err = envInt("CONNECT_RETRIES", DefaultConnectRetries); err != nil {
		return nil, err
	}
	if cfg.RefineTimeout, err = envDuration("REFINE_TIMEOUT", DefaultRefineTimeout); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = envDuration("LEASE_TTL", DefaultLeaseTTL); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)
