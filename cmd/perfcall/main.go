package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/botcall/internal/call"
	"github.com/ent0n29/botcall/internal/observability"
	"github.com/ent0n29/botcall/internal/protocol"
	"github.com/ent0n29/botcall/internal/reliability"
	"github.com/ent0n29/botcall/internal/rtvi"
)

type options struct {
	baseURL      string
	cycles       int
	hold         time.Duration
	startDelay   time.Duration
	cycleTimeout time.Duration
	verbose      bool
}

type wsEnvelope struct {
	Type      string      `json:"type"`
	Action    string      `json:"action,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	State     *call.State `json:"state,omitempty"`
}

type cycleResult struct {
	readyMS        float64
	disconnectedMS float64
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfcall: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfcall: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var cfg options
	var holdMS int
	var startDelayMS int
	var cycleTimeoutMS int

	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "botcall base URL")
	fs.IntVar(&cfg.cycles, "cycles", 10, "number of connect/disconnect cycles")
	fs.IntVar(&holdMS, "hold-ms", 500, "time to stay in the call after bot ready in milliseconds")
	fs.IntVar(&startDelayMS, "start-delay-ms", 200, "delay before the first cycle in milliseconds")
	fs.IntVar(&cycleTimeoutMS, "cycle-timeout-ms", 15000, "timeout waiting for each state transition in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print per-cycle progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.cycles <= 0 {
		return options{}, fmt.Errorf("cycles must be > 0")
	}
	if holdMS < 0 {
		holdMS = 0
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if cycleTimeoutMS < 1000 {
		cycleTimeoutMS = 1000
	}
	cfg.hold = time.Duration(holdMS) * time.Millisecond
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.cycleTimeout = time.Duration(cycleTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := wsURLForCall(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, err := dialCall(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	states := make(chan call.State, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, states, readErrCh, cfg.verbose)

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	results := make([]cycleResult, 0, cfg.cycles)
	for i := 0; i < cfg.cycles; i++ {
		started := time.Now()
		if err := sendCommand(conn, protocol.ActionConnect); err != nil {
			return fmt.Errorf("cycle %d send connect: %w", i+1, err)
		}
		if _, err := awaitState(states, readErrCh, cfg.cycleTimeout, func(s call.State) bool {
			return s.IsInCall && s.IsBotReady
		}); err != nil {
			return fmt.Errorf("cycle %d await bot ready: %w", i+1, err)
		}
		readyAt := time.Now()

		if cfg.hold > 0 {
			time.Sleep(cfg.hold)
		}

		leaving := time.Now()
		if err := sendCommand(conn, protocol.ActionDisconnect); err != nil {
			return fmt.Errorf("cycle %d send disconnect: %w", i+1, err)
		}
		if _, err := awaitState(states, readErrCh, cfg.cycleTimeout, func(s call.State) bool {
			return !s.IsInCall && s.TransportStatus == rtvi.StateDisconnected
		}); err != nil {
			return fmt.Errorf("cycle %d await disconnected: %w", i+1, err)
		}

		res := cycleResult{
			readyMS:        float64(readyAt.Sub(started).Microseconds()) / 1000,
			disconnectedMS: float64(time.Since(leaving).Microseconds()) / 1000,
		}
		results = append(results, res)
		if cfg.verbose {
			fmt.Printf("perfcall: cycle %d/%d bot_ready=%.1fms disconnected=%.1fms\n", i+1, cfg.cycles, res.readyMS, res.disconnectedMS)
		}
	}

	printSummary(os.Stdout, results)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	if err := printServerStages(ctx, httpClient, cfg.baseURL); err != nil && cfg.verbose {
		fmt.Fprintf(os.Stderr, "perfcall: fetch server stages: %v\n", err)
	}
	return nil
}

func wsURLForCall(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/call/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// dialCall retries while the server is still starting or shedding load.
func dialCall(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	var conn *websocket.Conn
	policy := reliability.Policy{Attempts: 4, Base: 250 * time.Millisecond, Cap: 2 * time.Second}
	err := reliability.Retry(ctx, policy, func(ctx context.Context) error {
		c, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			conn = c
			return nil
		}
		if res != nil && !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return reliability.Permanent(fmt.Errorf("HTTP %d: %w", res.StatusCode, err))
		}
		return err
	})
	return conn, err
}

func sendCommand(conn *websocket.Conn, action string) error {
	return conn.WriteJSON(protocol.ClientCommand{
		Type:      protocol.TypeClientCommand,
		Action:    action,
		RequestID: uuid.NewString(),
	})
}

func readLoop(conn *websocket.Conn, states chan call.State, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeStateSnapshot):
			if env.State == nil {
				continue
			}
			// Drop the oldest snapshot rather than stall the socket.
			select {
			case states <- *env.State:
			default:
				select {
				case <-states:
				default:
				}
				states <- *env.State
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "perfcall: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
			// Commands share COMMAND_RATE_LIMIT; waiting out the cycle timeout would not help.
			if env.Code == "rate_limited" {
				select {
				case readErrCh <- fmt.Errorf("command rejected: %s", env.Detail):
				default:
				}
				return
			}
		}
	}
}

func awaitState(states <-chan call.State, readErrCh <-chan error, timeout time.Duration, match func(call.State) bool) (call.State, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case s := <-states:
			if match(s) {
				return s, nil
			}
		case err := <-readErrCh:
			return call.State{}, err
		case <-timer.C:
			return call.State{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func printSummary(w io.Writer, results []cycleResult) {
	ready := make([]float64, 0, len(results))
	gone := make([]float64, 0, len(results))
	for _, r := range results {
		ready = append(ready, r.readyMS)
		gone = append(gone, r.disconnectedMS)
	}
	fmt.Fprintf(w, "perfcall: cycles=%d\n", len(results))
	fmt.Fprintf(w, "perfcall: connect_to_bot_ready p50=%.1fms p95=%.1fms max=%.1fms\n", percentile(ready, 0.50), percentile(ready, 0.95), percentile(ready, 1))
	fmt.Fprintf(w, "perfcall: disconnect_to_idle   p50=%.1fms p95=%.1fms max=%.1fms\n", percentile(gone, 0.50), percentile(gone, 0.95), percentile(gone, 1))
}

// percentile uses nearest-rank on a sorted copy. Empty input yields 0.
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func printServerStages(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap observability.StageSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return err
	}
	for _, st := range snap.Stages {
		fmt.Printf("perfcall: server %s samples=%d p50=%.1fms p95=%.1fms\n", st.Stage, st.Samples, st.P50MS, st.P95MS)
	}
	return nil
}
