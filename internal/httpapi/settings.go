package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/botcall/internal/policy"
	"github.com/ent0n29/botcall/internal/settings"
)

type settingsResponse struct {
	EndpointURL       string `json:"endpoint_url"`
	APIKeyMasked      string `json:"api_key_masked"`
	APIKeySet         bool   `json:"api_key_set"`
	PreferredMicID    string `json:"preferred_mic_id,omitempty"`
	MicEnabledDefault bool   `json:"mic_enabled_default"`
	CamEnabledDefault bool   `json:"cam_enabled_default"`
}

func toSettingsResponse(s settings.Settings) settingsResponse {
	return settingsResponse{
		EndpointURL:       s.EndpointURL,
		APIKeyMasked:      policy.MaskSecret(s.APIKey),
		APIKeySet:         s.APIKey != "",
		PreferredMicID:    s.PreferredMicID,
		MicEnabledDefault: s.MicEnabledDefault,
		CamEnabledDefault: s.CamEnabledDefault,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "settings_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toSettingsResponse(current))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var creds settings.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.store.Save(r.Context(), creds); err != nil {
		respondError(w, http.StatusInternalServerError, "settings_save_failed", err.Error())
		return
	}
	s.logger.Info().
		Str("event", "settings.saved").
		Str("endpoint", creds.EndpointURL).
		Str("credential", policy.MaskSecret(creds.APIKey)).
		Msg("credentials updated")

	s.handleGetSettings(w, r)
}
