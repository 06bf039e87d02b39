package config

import (
	"strings"
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
	if cfg.Transport != "mock" {
		t.Fatalf("Transport = %q, want %q", cfg.Transport, "mock")
	}
	if cfg.NoticeTTL != 5*time.Second {
		t.Fatalf("NoticeTTL = %s, want 5s", cfg.NoticeTTL)
	}
	if cfg.CountdownInterval != time.Second {
		t.Fatalf("CountdownInterval = %s, want 1s", cfg.CountdownInterval)
	}
	if !cfg.SettingsWatch {
		t.Fatalf("SettingsWatch = false, want true")
	}
	if cfg.BotTTSVoice != "79a125e8-cd45-4c13-8a67-188112f4dd22" {
		t.Fatalf("BotTTSVoice = %q", cfg.BotTTSVoice)
	}
	if cfg.APIKeyOverride != "" || cfg.DatabaseURL != "" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DAILY_API_KEY", "  key-from-env ")
	t.Setenv("BOT_BASE_URL", "https://bots.example.com")
	t.Setenv("NOTICE_TTL", "2s")
	t.Setenv("SETTINGS_WATCH", "off")
	t.Setenv("BOT_VAD_STOP_SECS", "1.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKeyOverride != "key-from-env" {
		t.Fatalf("APIKeyOverride = %q, want trimmed value", cfg.APIKeyOverride)
	}
	if cfg.EndpointURLOverride != "https://bots.example.com" {
		t.Fatalf("EndpointURLOverride = %q", cfg.EndpointURLOverride)
	}
	if cfg.NoticeTTL != 2*time.Second || cfg.SettingsWatch || cfg.BotVADStopSecs != 1.2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"NOTICE_TTL", "500ms", "NOTICE_TTL"},
		{"NOTICE_TTL", "soon", "NOTICE_TTL parse error"},
		{"COUNTDOWN_INTERVAL", "0s", "COUNTDOWN_INTERVAL"},
		{"COMMAND_RATE_LIMIT", "0", "COMMAND_RATE_LIMIT"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe", "APP_ALLOW_ANY_ORIGIN parse error"},
		{"TRANSPORT", "carrier-pigeon", "TRANSPORT"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"TRANSPORT",
		"TRANSPORT_LOG_LEVEL",
		"MOCK_SESSION_TTL",
		"SETTINGS_FILE",
		"SETTINGS_WATCH",
		"DATABASE_URL",
		"DAILY_API_KEY",
		"BOT_BASE_URL",
		"NOTICE_TTL",
		"COUNTDOWN_INTERVAL",
		"COMMAND_RATE_LIMIT",
		"BOT_LLM_PROVIDER",
		"BOT_LLM_MODEL",
		"BOT_SYSTEM_PROMPT",
		"BOT_TTS_PROVIDER",
		"BOT_TTS_VOICE",
		"BOT_VAD_STOP_SECS",
		"BOT_PROFILE",
		"BOT_MAX_DURATION",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
