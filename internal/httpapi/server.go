package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/botcall/internal/call"
	"github.com/ent0n29/botcall/internal/config"
	applog "github.com/ent0n29/botcall/internal/log"
	"github.com/ent0n29/botcall/internal/observability"
	"github.com/ent0n29/botcall/internal/protocol"
	"github.com/ent0n29/botcall/internal/settings"
)

// CallController is the subset of *call.Controller the API drives.
type CallController interface {
	Connect(ctx context.Context) error
	Disconnect()
	ToggleMicrophone()
	ToggleCamera()
	Snapshot() call.State
	Subscribe() (<-chan call.State, func())
}

type Server struct {
	cfg      config.Config
	call     CallController
	store    settings.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	commands *httprate.RateLimiter
	logger   zerolog.Logger
}

func New(cfg config.Config, ctrl CallController, store settings.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		call:     ctrl,
		store:    store,
		metrics:  metrics,
		commands: newCommandLimiter(cfg.CommandRateLimit, time.Minute),
		logger:   applog.WithComponent("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the call unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/v1/call", func(r chi.Router) {
		r.Get("/state", s.handleCallState)
		r.Get("/ws", s.handleCallWS)
		r.Group(func(r chi.Router) {
			r.Use(s.commands.Handler)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Post("/mic/toggle", s.handleToggleMic)
			r.Post("/camera/toggle", s.handleToggleCamera)
		})
	})

	r.Get("/v1/settings", s.handleGetSettings)
	r.Put("/v1/settings", s.handlePutSettings)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"transport": s.cfg.Transport,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.store.Load(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "settings_unavailable", err.Error())
		return
	}
	state := s.call.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"transport_status": state.TransportStatus,
	})
}

func (s *Server) handleCallState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.call.Snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.metrics.ObserveCommand(protocol.ActionConnect, "http")
	if err := s.call.Connect(r.Context()); err != nil {
		status, code := connectErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.call.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ObserveCommand(protocol.ActionDisconnect, "http")
	s.call.Disconnect()
	respondJSON(w, http.StatusAccepted, s.call.Snapshot())
}

func (s *Server) handleToggleMic(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ObserveCommand(protocol.ActionToggleMic, "http")
	s.call.ToggleMicrophone()
	respondJSON(w, http.StatusAccepted, s.call.Snapshot())
}

func (s *Server) handleToggleCamera(w http.ResponseWriter, _ *http.Request) {
	s.metrics.ObserveCommand(protocol.ActionToggleCamera, "http")
	s.call.ToggleCamera()
	respondJSON(w, http.StatusAccepted, s.call.Snapshot())
}

func connectErrorStatus(err error) (int, string) {
	switch {
	case call.IsKind(err, call.KindConfiguration):
		return http.StatusBadRequest, "invalid_configuration"
	case errors.Is(err, call.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusBadGateway, "connect_failed"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
