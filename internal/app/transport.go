package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/botcall/internal/config"
	applog "github.com/ent0n29/botcall/internal/log"
	"github.com/ent0n29/botcall/internal/rtvi"
)

type transportSetup struct {
	factory  rtvi.Factory
	resolved string
	detail   string
}

// resolveTransport picks the client implementation behind rtvi.Factory. Real
// SDK bindings register here; the simulated bot is always available.
func resolveTransport(cfg config.Config) (transportSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if mode == "" {
		mode = "mock"
	}

	switch mode {
	case "mock":
		return transportSetup{
			factory: rtvi.NewMockFactory(rtvi.MockConfig{
				SessionTTL: cfg.MockSessionTTL,
				Logger:     applog.WithComponentLevel("transport", cfg.TransportLogLevel),
			}),
			resolved: "mock",
			detail:   fmt.Sprintf("simulated bot, session ttl %s", cfg.MockSessionTTL),
		}, nil
	default:
		return transportSetup{}, fmt.Errorf("invalid TRANSPORT: %q (expected mock)", cfg.Transport)
	}
}
