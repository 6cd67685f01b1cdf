// Package config loads runtime configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all runtime settings for a batch run.
type Config struct {
	// Whisper engine
	WhisperModel      string
	WhisperLanguage   string
	TranscribeTimeout time.Duration // 0 = unbounded
	MaxTranscriptions int           // concurrent engine invocations

	// Batch scheduling
	WorkerCount    int  // 0 = auto (runtime.NumCPU)
	ChunkSize      int  // 0 = single chunk
	EnableParallel bool

	// Storage
	AudioBaseURL      string
	AudioDownloadPath string
	TextOutputPath    string
	CallstoreDSN      string
	DownloadTimeout   time.Duration
	AWSRegion         string

	// Retention
	AutoCleanup       bool
	CleanupAudioFiles bool
	CleanupTempFiles  bool
	KeepTranscripts   bool
	CleanupDelay      time.Duration

	LogLevel string
}

// Load reads configuration from the environment, optionally seeded from a
// .env file, and applies defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("No .env file loaded, using environment variables")
	}

	return &Config{
		WhisperModel:      getString("WHISPER_MODEL", "base"),
		WhisperLanguage:   getString("WHISPER_LANGUAGE", "es"),
		TranscribeTimeout: getDuration("TRANSCRIBE_TIMEOUT", 0),
		MaxTranscriptions: getInt("MAX_CONCURRENT_TRANSCRIPTIONS", 2),

		WorkerCount:    parseWorkerCount(os.Getenv("WORKER_COUNT")),
		ChunkSize:      getInt("CHUNK_SIZE", 0),
		EnableParallel: getBool("ENABLE_PARALLEL", true),

		AudioBaseURL:      getString("AUDIO_BASE_URL", ""),
		AudioDownloadPath: getString("AUDIO_DOWNLOAD_PATH", "/app/audios"),
		TextOutputPath:    getString("TEXT_OUTPUT_PATH", "/app/textos"),
		CallstoreDSN:      getString("CALLSTORE_DSN", "calls.db"),
		DownloadTimeout:   getDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		AWSRegion:         getString("AWS_REGION", "us-east-1"),

		AutoCleanup:       getBool("AUTO_CLEANUP", false),
		CleanupAudioFiles: getBool("CLEANUP_AUDIO_FILES", false),
		CleanupTempFiles:  getBool("CLEANUP_TEMP_FILES", true),
		KeepTranscripts:   getBool("KEEP_TRANSCRIPTS", true),
		CleanupDelay:      getDuration("CLEANUP_DELAY", 0),

		LogLevel: getString("LOG_LEVEL", "info"),
	}
}

// parseWorkerCount accepts a positive integer or "auto". Zero means the
// scheduler should size the pool to the available parallelism.
func parseWorkerCount(raw string) int {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		logrus.WithField("worker_count", raw).Warn("Invalid WORKER_COUNT, falling back to auto")
		return 0
	}
	return n
}

func getString(key, fallback string) string {
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
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid boolean in environment, using default")
		return fallback
	}
	return b
}

// getDuration parses either a Go duration string ("30s") or a bare number
// of seconds, which is what older deployments exported.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid duration in environment, using default")
	return fallback
}
