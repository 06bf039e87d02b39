package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel          string
	TransportLogLevel string

	Transport      string
	MockSessionTTL time.Duration

	SettingsFile  string
	SettingsWatch bool
	DatabaseURL   string

	// Environment overrides for the stored credentials.
	APIKeyOverride      string
	EndpointURLOverride string

	NoticeTTL         time.Duration
	CountdownInterval time.Duration
	CommandRateLimit  int

	BotLLMProvider  string
	BotLLMModel     string
	BotSystemPrompt string
	BotTTSProvider  string
	BotTTSVoice     string
	BotVADStopSecs  float64
	BotProfile      string
	BotMaxDuration  int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "botcall"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		TransportLogLevel:   envOrDefault("TRANSPORT_LOG_LEVEL", "warn"),
		Transport:           strings.ToLower(envOrDefault("TRANSPORT", "mock")),
		SettingsFile:        envOrDefault("SETTINGS_FILE", ".botcall/settings.yaml"),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		APIKeyOverride:      trimmedEnv("DAILY_API_KEY"),
		EndpointURLOverride: trimmedEnv("BOT_BASE_URL"),
		BotLLMProvider:      envOrDefault("BOT_LLM_PROVIDER", "together"),
		BotLLMModel:         envOrDefault("BOT_LLM_MODEL", "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"),
		BotSystemPrompt: envOrDefault("BOT_SYSTEM_PROMPT",
			"You are a assistant called Frankie. You can ask me anything. Keep responses brief and legible. Introduce yourself first."),
		BotTTSProvider:    envOrDefault("BOT_TTS_PROVIDER", "cartesia"),
		BotTTSVoice:       envOrDefault("BOT_TTS_VOICE", "79a125e8-cd45-4c13-8a67-188112f4dd22"),
		BotVADStopSecs:    0.8,
		BotProfile:        envOrDefault("BOT_PROFILE", "voice_2024_08"),
		BotMaxDuration:    680,
		ShutdownTimeout:   15 * time.Second,
		MockSessionTTL:    10 * time.Minute,
		SettingsWatch:     true,
		NoticeTTL:         5 * time.Second,
		CountdownInterval: time.Second,
		CommandRateLimit:  30,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MockSessionTTL, err = durationFromEnv("MOCK_SESSION_TTL", cfg.MockSessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SettingsWatch, err = boolFromEnv("SETTINGS_WATCH", cfg.SettingsWatch)
	if err != nil {
		return Config{}, err
	}
	cfg.NoticeTTL, err = durationFromEnv("NOTICE_TTL", cfg.NoticeTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.CountdownInterval, err = durationFromEnv("COUNTDOWN_INTERVAL", cfg.CountdownInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.CommandRateLimit, err = intFromEnv("COMMAND_RATE_LIMIT", cfg.CommandRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.BotVADStopSecs, err = floatFromEnv("BOT_VAD_STOP_SECS", cfg.BotVADStopSecs)
	if err != nil {
		return Config{}, err
	}
	cfg.BotMaxDuration, err = intFromEnv("BOT_MAX_DURATION", cfg.BotMaxDuration)
	if err != nil {
		return Config{}, err
	}

	if cfg.NoticeTTL < time.Second {
		return Config{}, fmt.Errorf("NOTICE_TTL must be at least 1s")
	}
	if cfg.CountdownInterval <= 0 {
		return Config{}, fmt.Errorf("COUNTDOWN_INTERVAL must be positive")
	}
	if cfg.CommandRateLimit <= 0 {
		return Config{}, fmt.Errorf("COMMAND_RATE_LIMIT must be positive")
	}
	if cfg.MockSessionTTL <= 0 {
		return Config{}, fmt.Errorf("MOCK_SESSION_TTL must be positive")
	}
	if cfg.BotMaxDuration <= 0 {
		return Config{}, fmt.Errorf("BOT_MAX_DURATION must be positive")
	}
	switch cfg.Transport {
	case "mock":
	default:
		return Config{}, fmt.Errorf("TRANSPORT %q is not supported", cfg.Transport)
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

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
