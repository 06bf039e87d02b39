// Package settings stores the bot endpoint, credential and device preferences
// used to build each connect attempt.
package settings

import (
	"context"
	"strings"
)

// Settings is the persisted connect configuration.
type Settings struct {
	EndpointURL       string `json:"endpoint_url" yaml:"endpoint_url"`
	APIKey            string `json:"api_key" yaml:"api_key"`
	PreferredMicID    string `json:"preferred_mic_id,omitempty" yaml:"preferred_mic_id,omitempty"`
	MicEnabledDefault bool   `json:"mic_enabled_default" yaml:"mic_enabled_default"`
	CamEnabledDefault bool   `json:"cam_enabled_default" yaml:"cam_enabled_default"`
}

// Credentials is the subset of Settings the user edits before connecting.
// A nil PreferredMicID keeps the stored device.
type Credentials struct {
	EndpointURL    string  `json:"endpoint_url"`
	APIKey         string  `json:"api_key"`
	PreferredMicID *string `json:"preferred_mic_id,omitempty"`
}

// Store loads and saves Settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, creds Credentials) error
	Close() error
}

// Defaults is what a fresh install starts with.
func Defaults() Settings {
	return Settings{MicEnabledDefault: true}
}

func (s Settings) apply(creds Credentials) Settings {
	s.EndpointURL = strings.TrimSpace(creds.EndpointURL)
	s.APIKey = strings.TrimSpace(creds.APIKey)
	if creds.PreferredMicID != nil {
		s.PreferredMicID = strings.TrimSpace(*creds.PreferredMicID)
	}
	return s
}

// Overrides replace stored values on load when non-blank. They come from the
// process environment and are never written back.
type Overrides struct {
	EndpointURL string
	APIKey      string
}

type overrideStore struct {
	Store
	overrides Overrides
}

// WithOverrides wraps store so Load applies o.
func WithOverrides(store Store, o Overrides) Store {
	o.EndpointURL = strings.TrimSpace(o.EndpointURL)
	o.APIKey = strings.TrimSpace(o.APIKey)
	if o.EndpointURL == "" && o.APIKey == "" {
		return store
	}
	return &overrideStore{Store: store, overrides: o}
}

func (s *overrideStore) Load(ctx context.Context) (Settings, error) {
	out, err := s.Store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if s.overrides.EndpointURL != "" {
		out.EndpointURL = s.overrides.EndpointURL
	}
	if s.overrides.APIKey != "" {
		out.APIKey = s.overrides.APIKey
	}
	return out, nil
}
