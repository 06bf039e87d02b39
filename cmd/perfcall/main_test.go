package main

import (
	"bytes"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/botcall/internal/call"
)

func TestParseFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("perfcall", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://127.0.0.1:8080" {
		t.Fatalf("baseURL = %q", cfg.baseURL)
	}
	if cfg.cycles != 10 {
		t.Fatalf("cycles = %d, want 10", cfg.cycles)
	}
	if cfg.cycleTimeout != 15*time.Second {
		t.Fatalf("cycleTimeout = %s, want 15s", cfg.cycleTimeout)
	}
}

func TestParseFlagsClampsAndValidates(t *testing.T) {
	fs := flag.NewFlagSet("perfcall", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-base-url", " http://localhost:9000/ ", "-hold-ms", "-5", "-cycle-timeout-ms", "10"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://localhost:9000" {
		t.Fatalf("baseURL = %q", cfg.baseURL)
	}
	if cfg.hold != 0 {
		t.Fatalf("hold = %s, want 0", cfg.hold)
	}
	if cfg.cycleTimeout != time.Second {
		t.Fatalf("cycleTimeout = %s, want 1s", cfg.cycleTimeout)
	}

	fs = flag.NewFlagSet("perfcall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseFlags(fs, []string{"-cycles", "0"}); err == nil {
		t.Fatalf("expected error for cycles=0")
	}
}

func TestWSURLForCall(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080/v1/call/ws"},
		{base: "https://bots.example.com/prefix/", want: "wss://bots.example.com/prefix/v1/call/ws"},
	}
	for _, tt := range tests {
		got, err := wsURLForCall(tt.base)
		if err != nil {
			t.Fatalf("wsURLForCall(%q) error = %v", tt.base, err)
		}
		if got != tt.want {
			t.Fatalf("wsURLForCall(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
	if _, err := wsURLForCall("ftp://host"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestPercentile(t *testing.T) {
	samples := []float64{40, 10, 30, 20, 50}
	if got := percentile(samples, 0.5); got != 30 {
		t.Fatalf("p50 = %v, want 30", got)
	}
	if got := percentile(samples, 0.95); got != 50 {
		t.Fatalf("p95 = %v, want 50", got)
	}
	if got := percentile(samples, 0); got != 10 {
		t.Fatalf("p0 = %v, want 10", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty = %v, want 0", got)
	}
	if samples[0] != 40 {
		t.Fatalf("percentile mutated its input")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []cycleResult{{readyMS: 12, disconnectedMS: 3}, {readyMS: 18, disconnectedMS: 5}})
	out := buf.String()
	if !strings.Contains(out, "cycles=2") {
		t.Fatalf("summary missing cycle count: %s", out)
	}
	if !strings.Contains(out, "connect_to_bot_ready p50=12.0ms p95=18.0ms max=18.0ms") {
		t.Fatalf("summary missing ready line: %s", out)
	}
}

func TestReadLoopKeepsLatestSnapshotAndStopsOnRateLimit(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for gen := 1; gen <= 3; gen++ {
			_ = conn.WriteJSON(map[string]any{
				"type":  "state_snapshot",
				"state": map[string]any{"generation": gen},
			})
		}
		_ = conn.WriteJSON(map[string]any{
			"type":   "error_event",
			"code":   "rate_limited",
			"detail": "too many call commands",
		})
		// Hold the socket open so the loop can only exit on the error event.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	states := make(chan call.State, 1)
	readErrCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		readLoop(conn, states, readErrCh, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readLoop did not stop on rate_limited")
	}

	select {
	case err := <-readErrCh:
		if err == nil || !strings.Contains(err.Error(), "command rejected") {
			t.Fatalf("read error = %v, want command rejected", err)
		}
	default:
		t.Fatal("readLoop returned without reporting an error")
	}

	select {
	case s := <-states:
		if s.Generation != 3 {
			t.Fatalf("snapshot generation = %d, want latest 3", s.Generation)
		}
	default:
		t.Fatal("no snapshot delivered")
	}
}
