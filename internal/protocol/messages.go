package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/botcall/internal/call"
	"github.com/ent0n29/botcall/internal/notice"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientCommand MessageType = "client_command"
	TypeClientPing    MessageType = "client_ping"
	TypeStateSnapshot MessageType = "state_snapshot"
	TypeNoticeEvent   MessageType = "notice_event"
	TypeCommandAck    MessageType = "command_ack"
	TypePong          MessageType = "pong"
	TypeErrorEvent    MessageType = "error_event"
)

// Command actions accepted from clients.
const (
	ActionConnect      = "connect"
	ActionDisconnect   = "disconnect"
	ActionToggleMic    = "toggle_mic"
	ActionToggleCamera = "toggle_camera"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientCommand struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
}

type ClientPing struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms,omitempty"`
}

type StateSnapshot struct {
	Type  MessageType `json:"type"`
	State call.State  `json:"state"`
}

type NoticeEvent struct {
	Type   MessageType   `json:"type"`
	Notice notice.Notice `json:"notice"`
}

type CommandAck struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
}

type Pong struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	RequestID string      `json:"request_id,omitempty"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientCommand:
		var msg ClientCommand
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if !validAction(msg.Action) {
			return nil, fmt.Errorf("invalid client_command action %q", msg.Action)
		}
		return msg, nil
	case TypeClientPing:
		var msg ClientPing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validAction(action string) bool {
	switch action {
	case ActionConnect, ActionDisconnect, ActionToggleMic, ActionToggleCamera:
		return true
	default:
		return false
	}
}
