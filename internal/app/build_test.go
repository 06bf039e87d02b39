package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/botcall/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:  "test_app_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"),
		Transport:         "mock",
		TransportLogLevel: "warn",
		MockSessionTTL:    time.Minute,
		SettingsFile:      filepath.Join(t.TempDir(), "settings.yaml"),
		SettingsWatch:     true,
		NoticeTTL:         5 * time.Second,
		CountdownInterval: time.Second,
		CommandRateLimit:  30,
		APIKeyOverride:    "env-key",
	}
}

func TestBuildWiresFileStoreAndOverrides(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Transport.Provider != "mock" {
		t.Fatalf("Transport.Provider = %q, want mock", res.Transport.Provider)
	}
	if res.Watch == nil {
		t.Fatalf("Watch = nil, want file watcher for file-backed settings")
	}
	loaded, err := res.Store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.APIKey != "env-key" {
		t.Fatalf("APIKey = %q, want environment override", loaded.APIKey)
	}
}

func TestResolveTransportRejectsUnknown(t *testing.T) {
	if _, err := resolveTransport(config.Config{Transport: "sip"}); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}

func TestProfileFromConfigOverridesDefaults(t *testing.T) {
	p := profileFromConfig(config.Config{BotLLMModel: "m", BotTTSVoice: " v ", BotMaxDuration: 120})
	if p.LLMModel != "m" || p.TTSVoice != "v" || p.MaxDuration != 120 {
		t.Fatalf("profile = %+v", p)
	}
	if p.LLMProvider != "together" || p.VADStopSecs != 0.8 {
		t.Fatalf("defaults lost: %+v", p)
	}
}
