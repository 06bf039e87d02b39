// Package rtvi describes the real-time transport client the call controller
// drives. The transport itself lives outside this repository; this package
// holds the capability interface, its event variants and a simulated client.
package rtvi

import (
	"fmt"
	"net/http"
	"strings"
)

// TransportState is the connection status reported by a transport client.
type TransportState string

const (
	StateIdle           TransportState = "idle"
	StateConnecting     TransportState = "connecting"
	StateAuthenticating TransportState = "authenticating"
	StateConnected      TransportState = "connected"
	StateReady          TransportState = "ready"
	StateDisconnecting  TransportState = "disconnecting"
	StateDisconnected   TransportState = "disconnected"
	StateError          TransportState = "error"
)

// InCall reports whether the state belongs to an active call.
func (s TransportState) InCall() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateConnected, StateReady:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state ends the client's lifetime.
func (s TransportState) Terminal() bool {
	return s == StateDisconnected || s == StateError
}

func (s TransportState) String() string { return string(s) }

// ParseTransportState accepts the canonical names plus "handshaking", which
// some transports report for the authentication phase.
func ParseTransportState(v string) (TransportState, error) {
	switch s := TransportState(strings.ToLower(strings.TrimSpace(v))); s {
	case StateIdle, StateConnecting, StateAuthenticating, StateConnected, StateReady,
		StateDisconnecting, StateDisconnected, StateError:
		return s, nil
	case "handshaking":
		return StateAuthenticating, nil
	default:
		return "", fmt.Errorf("unknown transport state %q", v)
	}
}

// Option is one named setting of a bot service. Value must be JSON-compatible.
type Option struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// ServiceConfig is the ordered option list for one bot service.
type ServiceConfig struct {
	Service string   `json:"service"`
	Options []Option `json:"options"`
}

// ClientOptions is everything a transport client needs to start a session.
type ClientOptions struct {
	BaseURL     string
	Services    map[string]string
	Config      []ServiceConfig
	EnableMic   bool
	EnableCam   bool
	RequestData map[string]any
	Headers     http.Header
}
