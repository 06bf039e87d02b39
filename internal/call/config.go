package call

import (
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/ent0n29/botcall/internal/rtvi"
	"github.com/ent0n29/botcall/internal/settings"
)

// Profile is the bot persona sent with every connect.
type Profile struct {
	LLMProvider  string
	LLMModel     string
	SystemPrompt string
	TTSProvider  string
	TTSVoice     string
	VADStopSecs  float64
	BotProfile   string
	MaxDuration  int
}

func DefaultProfile() Profile {
	return Profile{
		LLMProvider:  "together",
		LLMModel:     "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo",
		SystemPrompt: "You are a assistant called Frankie. You can ask me anything. Keep responses brief and legible. Introduce yourself first.",
		TTSProvider:  "cartesia",
		TTSVoice:     "79a125e8-cd45-4c13-8a67-188112f4dd22",
		VADStopSecs:  0.8,
		BotProfile:   "voice_2024_08",
		MaxDuration:  680,
	}
}

// SessionConfig is built once per connect attempt and never changes
// afterwards. Accessors hand out copies.
type SessionConfig struct {
	endpointURL string
	credential  string
	services    map[string]string
	config      []rtvi.ServiceConfig
	enableMic   bool
	enableCam   bool
	micDeviceID string
	requestData map[string]any
	headers     http.Header
}

// BuildSessionConfig combines stored settings with the bot profile.
func BuildSessionConfig(s settings.Settings, p Profile) SessionConfig {
	credential := strings.TrimSpace(s.APIKey)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+credential)

	return SessionConfig{
		endpointURL: strings.TrimSpace(s.EndpointURL),
		credential:  credential,
		services: map[string]string{
			"llm": p.LLMProvider,
			"tts": p.TTSProvider,
		},
		config: []rtvi.ServiceConfig{
			{
				Service: "llm",
				Options: []rtvi.Option{
					{Name: "model", Value: p.LLMModel},
					{Name: "initial_messages", Value: []any{
						map[string]any{"role": "system", "content": p.SystemPrompt},
					}},
					{Name: "run_on_config", Value: true},
				},
			},
			{
				Service: "tts",
				Options: []rtvi.Option{{Name: "voice", Value: p.TTSVoice}},
			},
			{
				Service: "vad",
				Options: []rtvi.Option{{Name: "params", Value: map[string]any{"stop_secs": p.VADStopSecs}}},
			},
		},
		enableMic:   s.MicEnabledDefault,
		enableCam:   s.CamEnabledDefault,
		micDeviceID: strings.TrimSpace(s.PreferredMicID),
		requestData: map[string]any{
			"bot_profile":  p.BotProfile,
			"max_duration": p.MaxDuration,
		},
		headers: headers,
	}
}

// Validate rejects blank endpoints and credentials.
func (c SessionConfig) Validate() error {
	if c.credential == "" {
		return ErrBlankCredential
	}
	if c.endpointURL == "" {
		return ErrBlankEndpoint
	}
	return nil
}

func (c SessionConfig) EndpointURL() string { return c.endpointURL }
func (c SessionConfig) Credential() string  { return c.credential }
func (c SessionConfig) EnableMic() bool     { return c.enableMic }
func (c SessionConfig) EnableCam() bool     { return c.enableCam }

// PreferredMicID is the input device to select after start; empty keeps the
// transport default.
func (c SessionConfig) PreferredMicID() string { return c.micDeviceID }

func (c SessionConfig) Services() map[string]string { return maps.Clone(c.services) }

func (c SessionConfig) Headers() http.Header { return c.headers.Clone() }

func (c SessionConfig) RequestData() map[string]any {
	out, _ := cloneValue(c.requestData).(map[string]any)
	return out
}

func (c SessionConfig) Config() []rtvi.ServiceConfig {
	if c.config == nil {
		return nil
	}
	out := make([]rtvi.ServiceConfig, len(c.config))
	for i, svc := range c.config {
		opts := make([]rtvi.Option, len(svc.Options))
		for j, opt := range svc.Options {
			opts[j] = rtvi.Option{Name: opt.Name, Value: cloneValue(opt.Value)}
		}
		out[i] = rtvi.ServiceConfig{Service: svc.Service, Options: opts}
	}
	return out
}

// ClientOptions is the transport view of the config.
func (c SessionConfig) ClientOptions() rtvi.ClientOptions {
	return rtvi.ClientOptions{
		BaseURL:     c.endpointURL,
		Services:    c.Services(),
		Config:      c.Config(),
		EnableMic:   c.enableMic,
		EnableCam:   c.enableCam,
		RequestData: c.RequestData(),
		Headers:     c.Headers(),
	}
}

func (c SessionConfig) String() string {
	return fmt.Sprintf("SessionConfig{endpoint=%s mic=%t cam=%t mic_device=%s}", c.endpointURL, c.enableMic, c.enableCam, c.micDeviceID)
}

// cloneValue deep-copies the JSON-shaped documents used in option values.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
