package rtvi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClientClosed is returned by calls on a client that was torn down.
var ErrClientClosed = errors.New("transport client closed")

// MockConfig tunes the simulated transport.
type MockConfig struct {
	SessionTTL    time.Duration
	StepDelay     time.Duration
	LevelInterval time.Duration
	Logger        zerolog.Logger
}

// MockClient simulates a bot session: status progression, bot-ready with an
// expiry, a greeting transcript, audio levels and device toggles. Used when
// no real transport is wired in.
type MockClient struct {
	cfg  MockConfig
	opts ClientOptions

	mu        sync.Mutex
	events    chan Event
	closed    bool
	started   bool
	stopping  bool
	levels    bool
	mic       bool
	cam       bool
	micDevice string
	expiry    time.Time
	stop      chan struct{}
	done      chan struct{}

	stopOnce sync.Once
}

// NewMockFactory returns a Factory producing MockClients.
func NewMockFactory(cfg MockConfig) Factory {
	return func(opts ClientOptions) (Client, error) {
		return NewMockClient(cfg, opts), nil
	}
}

func NewMockClient(cfg MockConfig, opts ClientOptions) *MockClient {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = 100 * time.Millisecond
	}
	return &MockClient{
		cfg:    cfg,
		opts:   opts,
		events: make(chan Event, 256),
		mic:    opts.EnableMic,
		cam:    opts.EnableCam,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *MockClient) Start(ctx context.Context) error {
	if err := validateMockOptions(c.opts); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("transport client already started")
	}
	c.started = true
	c.mu.Unlock()

	c.cfg.Logger.Debug().Str("base_url", c.opts.BaseURL).Msg("mock transport starting")

	steps := []Event{
		StatusChanged{State: StateConnecting},
		StatusChanged{State: StateAuthenticating},
		StatusChanged{State: StateConnected},
		Connected{},
	}
	for _, ev := range steps {
		if err := c.step(ctx, ev); err != nil {
			return err
		}
	}
	if c.IsCamEnabled() {
		c.emit(TrackUpdated{LocalVideoTrackID: "mock-local-video"})
	}
	if err := c.step(ctx, StatusChanged{State: StateReady}); err != nil {
		return err
	}

	expiry := time.Now().Add(c.cfg.SessionTTL).Truncate(time.Second)
	c.mu.Lock()
	c.expiry = expiry
	c.mu.Unlock()
	c.emit(BotReady{Version: "mock", Expiry: expiry})
	c.emit(Transcript{Speaker: SpeakerBot, Text: "Hi, I'm Frankie. Ask me anything.", Final: true})

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.levels = true
	c.mu.Unlock()
	go c.levelLoop()
	return nil
}

func (c *MockClient) step(ctx context.Context, ev Event) error {
	if c.cfg.StepDelay > 0 {
		timer := time.NewTimer(c.cfg.StepDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.stop:
			timer.Stop()
			return ErrClientClosed
		case <-timer.C:
		}
	}
	if !c.emit(ev) {
		return ErrClientClosed
	}
	return nil
}

func (c *MockClient) levelLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.LevelInterval)
	defer ticker.Stop()
	var phase float64
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			phase += 0.35
			remote := 0.5 + 0.5*math.Sin(phase)
			local := 0.0
			if c.IsMicEnabled() {
				local = 0.3 + 0.3*math.Cos(phase*1.7)
			}
			c.emit(RemoteAudioLevel{Level: remote})
			c.emit(LocalAudioLevel{Level: local})
		}
	}
}

func (c *MockClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	levels := c.levels
	c.mu.Unlock()

	c.emit(StatusChanged{State: StateDisconnecting})
	c.stopOnce.Do(func() { close(c.stop) })
	// done only closes if the level loop was launched.
	if levels {
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
	}
	c.emit(Disconnected{})
	c.emit(StatusChanged{State: StateDisconnected})

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	return nil
}

func (c *MockClient) EnableMic(_ context.Context, enable bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.mic, ErrClientClosed
	}
	c.mic = enable
	return c.mic, nil
}

func (c *MockClient) EnableCam(_ context.Context, enable bool) (bool, error) {
	c.mu.Lock()
	if c.closed {
		cam := c.cam
		c.mu.Unlock()
		return cam, ErrClientClosed
	}
	c.cam = enable
	c.mu.Unlock()

	track := ""
	if enable {
		track = "mock-local-video"
	}
	c.emit(TrackUpdated{LocalVideoTrackID: track})
	return enable, nil
}

func (c *MockClient) UpdateMic(_ context.Context, deviceID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.micDevice, ErrClientClosed
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return c.micDevice, errors.New("microphone device id is blank")
	}
	c.micDevice = deviceID
	return c.micDevice, nil
}

func (c *MockClient) IsMicEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mic
}

func (c *MockClient) IsCamEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam
}

func (c *MockClient) SessionExpiry() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiry, !c.expiry.IsZero()
}

func (c *MockClient) Events() <-chan Event { return c.events }

// emit never blocks; a full buffer drops the event.
func (c *MockClient) emit(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Warn().Str("event", Name(ev)).Msg("mock transport event buffer full")
	}
	return true
}

func validateMockOptions(opts ClientOptions) error {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", opts.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base url %q: missing host", opts.BaseURL)
	}
	if !strings.HasPrefix(opts.Headers.Get("Authorization"), "Bearer ") {
		return errors.New("missing bearer authorization header")
	}
	return nil
}
