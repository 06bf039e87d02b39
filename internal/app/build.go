package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/botcall/internal/call"
	"github.com/ent0n29/botcall/internal/config"
	"github.com/ent0n29/botcall/internal/httpapi"
	"github.com/ent0n29/botcall/internal/observability"
	"github.com/ent0n29/botcall/internal/settings"
)

type TransportInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Controller *call.Controller
	Store      settings.Store
	Metrics    *observability.Metrics
	Transport  TransportInfo

	// Watch follows the settings file until ctx is done. Nil when the store
	// is not file-backed or watching is disabled.
	Watch func(ctx context.Context) error

	// Cleanup should be called on shutdown to stop the controller and release the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	baseStore, err := settings.NewStore(ctx, cfg.DatabaseURL, cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("settings store init failed: %w", err)
	}

	transport, err := resolveTransport(cfg)
	if err != nil {
		_ = baseStore.Close()
		return nil, err
	}

	store := settings.WithOverrides(baseStore, settings.Overrides{
		EndpointURL: cfg.EndpointURLOverride,
		APIKey:      cfg.APIKeyOverride,
	})

	controller := call.NewController(store, transport.factory, call.Options{
		Profile:      profileFromConfig(cfg),
		NoticeTTL:    cfg.NoticeTTL,
		TickInterval: cfg.CountdownInterval,
		Metrics:      metrics,
	})

	api := httpapi.New(cfg, controller, store, metrics)

	var watch func(context.Context) error
	if fs, ok := baseStore.(*settings.FileStore); ok && cfg.SettingsWatch {
		watch = fs.Watch
	}

	cleanup := func() error {
		controller.Close()
		if err := store.Close(); err != nil {
			return fmt.Errorf("settings store close failed: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Controller: controller,
		Store:      store,
		Metrics:    metrics,
		Transport: TransportInfo{
			Provider: transport.resolved,
			Detail:   transport.detail,
		},
		Watch:   watch,
		Cleanup: cleanup,
	}, nil
}

func profileFromConfig(cfg config.Config) call.Profile {
	p := call.DefaultProfile()
	if v := strings.TrimSpace(cfg.BotLLMProvider); v != "" {
		p.LLMProvider = v
	}
	if v := strings.TrimSpace(cfg.BotLLMModel); v != "" {
		p.LLMModel = v
	}
	if v := strings.TrimSpace(cfg.BotSystemPrompt); v != "" {
		p.SystemPrompt = v
	}
	if v := strings.TrimSpace(cfg.BotTTSProvider); v != "" {
		p.TTSProvider = v
	}
	if v := strings.TrimSpace(cfg.BotTTSVoice); v != "" {
		p.TTSVoice = v
	}
	if v := strings.TrimSpace(cfg.BotProfile); v != "" {
		p.BotProfile = v
	}
	if cfg.BotVADStopSecs > 0 {
		p.VADStopSecs = cfg.BotVADStopSecs
	}
	if cfg.BotMaxDuration > 0 {
		p.MaxDuration = cfg.BotMaxDuration
	}
	return p
}
