package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds shared runtime configuration for the CLI and the mock service.
type Config struct {
	Env               string
	ServiceBaseURL    string
	APIKey            string
	ContextHint       string
	Language          string
	HTTPTimeout       time.Duration
	PollInterval      time.Duration
	SubmitMaxAttempts int
	PollFailureBudget int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	OutputDir         string
	SaveSRT           bool
	SaveJSON          bool
	Preprocess        bool
	FFmpegPath        string
	StubAddr          string
	StubProcessing    time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	QuotaCapacity     int
	QuotaRefill       float64
}

// Load reads configuration from environment variables with sane defaults for
// local development against the mock service.
func Load() Config {
	return Config{
		Env:               getEnv("APP_ENV", "dev"),
		ServiceBaseURL:    getEnv("ASR_BASE_URL", "http://localhost:8080"),
		APIKey:            getEnv("ASR_API_KEY", ""),
		ContextHint:       getEnv("ASR_CONTEXT", ""),
		Language:          getEnv("ASR_LANGUAGE", ""),
		HTTPTimeout:       getEnvDuration("ASR_HTTP_TIMEOUT", 30*time.Second),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 2*time.Second),
		SubmitMaxAttempts: getEnvInt("SUBMIT_MAX_ATTEMPTS", 3),
		PollFailureBudget: getEnvInt("POLL_FAILURE_BUDGET", 3),
		BackoffInitial:    getEnvDuration("BACKOFF_INITIAL", time.Second),
		BackoffMax:        getEnvDuration("BACKOFF_MAX", 10*time.Second),
		OutputDir:         getEnv("OUTPUT_DIR", ""),
		SaveSRT:           getEnvBool("SAVE_SRT", false),
		SaveJSON:          getEnvBool("SAVE_JSON", false),
		Preprocess:        getEnvBool("PREPROCESS", false),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		StubAddr:          getEnv("STUB_ADDR", ":8080"),
		StubProcessing:    getEnvDuration("STUB_PROCESSING_TIME", 6*time.Second),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		QuotaCapacity:     getEnvInt("QUOTA_CAPACITY", 50),
		QuotaRefill:       getEnvFloat("QUOTA_REFILL_PER_SEC", 5),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
