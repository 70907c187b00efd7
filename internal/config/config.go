package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains all runtime settings for the interview service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	OpenAIAPIKey          string
	RealtimeBaseURL       string
	RealtimeModel         string
	TranscriptionLanguage string

	AssessmentBaseURL     string
	AssessmentModel       string
	AssessmentTemperature float64
	AssessmentTimeout     time.Duration

	DatabaseURL       string
	RecentReportLimit int

	// AudioDumpDir, when set, receives one WAV file of played audio per
	// session.
	AudioDumpDir string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "malhagi"),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		RealtimeBaseURL:       envOrDefault("REALTIME_BASE_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:         envOrDefault("REALTIME_MODEL", "gpt-realtime-2025-08-28"),
		TranscriptionLanguage: envOrDefault("TRANSCRIPTION_LANGUAGE", "ko"),
		AssessmentBaseURL:     envOrDefault("ASSESSMENT_BASE_URL", "https://api.openai.com/v1"),
		AssessmentModel:       envOrDefault("ASSESSMENT_MODEL", "gpt-4o"),
		AssessmentTemperature: 0.3,
		AssessmentTimeout:     60 * time.Second,
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		AudioDumpDir:          stringsTrimSpace("AUDIO_DUMP_DIR"),
		RecentReportLimit:     10,
		ShutdownTimeout:       15 * time.Second,
		// Interviews run about five minutes; allow slack for slow talkers.
		SessionInactivityTimeout: 10 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AssessmentTimeout, err = durationFromEnv("ASSESSMENT_TIMEOUT", cfg.AssessmentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AssessmentTemperature, err = floatFromEnv("ASSESSMENT_TEMPERATURE", cfg.AssessmentTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentReportLimit, err = intFromEnv("RECENT_REPORT_LIMIT", cfg.RecentReportLimit)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.AssessmentTimeout <= 0 {
		return Config{}, fmt.Errorf("ASSESSMENT_TIMEOUT must be positive")
	}
	if cfg.AssessmentTemperature < 0 || cfg.AssessmentTemperature > 2 {
		return Config{}, fmt.Errorf("ASSESSMENT_TEMPERATURE must be in [0, 2]")
	}
	if cfg.RecentReportLimit <= 0 {
		return Config{}, fmt.Errorf("RECENT_REPORT_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
