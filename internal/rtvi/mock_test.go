package rtvi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func mockOptions() ClientOptions {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer k")
	return ClientOptions{BaseURL: "https://bots.example.com", Headers: headers, EnableMic: true}
}

func TestMockClientLifecycle(t *testing.T) {
	c := NewMockClient(MockConfig{SessionTTL: time.Minute, LevelInterval: time.Hour}, mockOptions())

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	expiry, ok := c.SessionExpiry()
	if !ok || time.Until(expiry) <= 0 {
		t.Fatalf("SessionExpiry() = %v, %v; want future expiry", expiry, ok)
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	var names []string
	var states []TransportState
	for ev := range c.Events() {
		names = append(names, Name(ev))
		if sc, ok := ev.(StatusChanged); ok {
			states = append(states, sc.State)
		}
	}
	want := []TransportState{
		StateConnecting, StateAuthenticating, StateConnected, StateReady,
		StateDisconnecting, StateDisconnected,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, states[i], want[i])
		}
	}

	sawReady := false
	for _, n := range names {
		if n == "bot_ready" {
			sawReady = true
		}
	}
	if !sawReady {
		t.Fatalf("events %v missing bot_ready", names)
	}
}

func TestMockClientStartRejectsBadEndpoint(t *testing.T) {
	opts := mockOptions()
	opts.BaseURL = "ftp://bots.example.com"
	c := NewMockClient(MockConfig{}, opts)
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected start error for non-http endpoint")
	}
	_ = c.Disconnect(context.Background())
}

func TestMockClientToggleAfterClose(t *testing.T) {
	c := NewMockClient(MockConfig{}, mockOptions())
	_ = c.Disconnect(context.Background())
	if _, err := c.EnableMic(context.Background(), false); err != ErrClientClosed {
		t.Fatalf("EnableMic() error = %v, want ErrClientClosed", err)
	}
}

func TestMockClientDisconnectWhileConnecting(t *testing.T) {
	c := NewMockClient(MockConfig{StepDelay: 50 * time.Millisecond}, mockOptions())

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start(context.Background()) }()

	// Let the first step land, then hang up before ready.
	first := <-c.Events()
	if sc, ok := first.(StatusChanged); !ok || sc.State != StateConnecting {
		t.Fatalf("first event = %#v, want connecting", first)
	}

	began := time.Now()
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if took := time.Since(began); took > 500*time.Millisecond {
		t.Fatalf("Disconnect() took %s while connecting", took)
	}
	if err := <-startErr; !errors.Is(err, ErrClientClosed) {
		t.Fatalf("Start() error = %v, want ErrClientClosed", err)
	}

	var last TransportState
	for ev := range c.Events() {
		if sc, ok := ev.(StatusChanged); ok {
			last = sc.State
		}
	}
	if last != StateDisconnected {
		t.Fatalf("last status = %q, want disconnected", last)
	}
}

func TestMockClientUpdateMic(t *testing.T) {
	c := NewMockClient(MockConfig{}, mockOptions())

	got, err := c.UpdateMic(context.Background(), " usb-1 ")
	if err != nil || got != "usb-1" {
		t.Fatalf("UpdateMic() = %q, %v; want usb-1", got, err)
	}
	if _, err := c.UpdateMic(context.Background(), " "); err == nil {
		t.Fatalf("expected error for blank device id")
	}

	_ = c.Disconnect(context.Background())
	if _, err := c.UpdateMic(context.Background(), "usb-2"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("UpdateMic() after close error = %v, want ErrClientClosed", err)
	}
}
