package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.TranscriptionLanguage != "ko" {
		t.Fatalf("TranscriptionLanguage = %q, want %q", cfg.TranscriptionLanguage, "ko")
	}
	if cfg.AssessmentTimeout != 60*time.Second {
		t.Fatalf("AssessmentTimeout = %s, want 60s", cfg.AssessmentTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("ASSESSMENT_TIMEOUT", "30s")
	t.Setenv("ASSESSMENT_TEMPERATURE", "0.5")
	t.Setenv("RECENT_REPORT_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.AssessmentTimeout != 30*time.Second {
		t.Fatalf("AssessmentTimeout = %s, want 30s", cfg.AssessmentTimeout)
	}
	if cfg.AssessmentTemperature != 0.5 {
		t.Fatalf("AssessmentTemperature = %v, want 0.5", cfg.AssessmentTemperature)
	}
	if cfg.RecentReportLimit != 25 {
		t.Fatalf("RecentReportLimit = %d, want 25", cfg.RecentReportLimit)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASSESSMENT_TIMEOUT", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail on unparseable duration")
	}

	setCoreEnvEmpty(t)
	t.Setenv("ASSESSMENT_TEMPERATURE", "5")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail on out-of-range temperature")
	}

	setCoreEnvEmpty(t)
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "1s")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail on too-short inactivity timeout")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"OPENAI_API_KEY",
		"REALTIME_BASE_URL",
		"REALTIME_MODEL",
		"TRANSCRIPTION_LANGUAGE",
		"ASSESSMENT_BASE_URL",
		"ASSESSMENT_MODEL",
		"ASSESSMENT_TEMPERATURE",
		"ASSESSMENT_TIMEOUT",
		"DATABASE_URL",
		"AUDIO_DUMP_DIR",
		"RECENT_REPORT_LIMIT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
