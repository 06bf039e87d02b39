package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/botcall/internal/call"
)

func TestParseClientMessageCommand(t *testing.T) {
	raw := []byte(`{"type":"client_command","action":"toggle_mic","request_id":"r1"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	cmd, ok := msg.(ClientCommand)
	if !ok {
		t.Fatalf("message type = %T, want ClientCommand", msg)
	}
	if cmd.Action != ActionToggleMic || cmd.RequestID != "r1" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_command","action":"self_destruct"}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestParseClientMessagePing(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_ping","ts_ms":42}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if ping, ok := msg.(ClientPing); !ok || ping.TSMs != 42 {
		t.Fatalf("message = %#v, want ClientPing{TSMs: 42}", msg)
	}
}

func TestStateSnapshotEncodesNullRemaining(t *testing.T) {
	raw, err := json.Marshal(StateSnapshot{Type: TypeStateSnapshot, State: call.State{TransportStatus: "idle"}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"remaining_seconds":null`) {
		t.Fatalf("snapshot = %s, want explicit null remaining_seconds", raw)
	}
}

func BenchmarkParseClientMessageCommand(b *testing.B) {
	raw := []byte(`{"type":"client_command","action":"toggle_camera","request_id":"bench"}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
	}
}
