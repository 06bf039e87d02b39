// Package call owns the state of a single bot call. All state changes run on
// one goroutine; transport events, timer ticks and command results are
// marshalled onto it before they touch State.
package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ent0n29/botcall/internal/countdown"
	applog "github.com/ent0n29/botcall/internal/log"
	"github.com/ent0n29/botcall/internal/notice"
	"github.com/ent0n29/botcall/internal/observability"
	"github.com/ent0n29/botcall/internal/policy"
	"github.com/ent0n29/botcall/internal/rtvi"
	"github.com/ent0n29/botcall/internal/settings"
)

const (
	teardownTimeout = 5 * time.Second
	commandTimeout  = 10 * time.Second
	opsBuffer       = 64
)

type Options struct {
	Profile      Profile
	NoticeTTL    time.Duration
	TickInterval time.Duration
	Now          func() time.Time
	Metrics      *observability.Metrics
	Logger       *zerolog.Logger
}

// Controller is the single entry point for call commands and the only writer
// of State.
type Controller struct {
	store   settings.Store
	factory rtvi.Factory
	profile Profile
	now     func() time.Time
	metrics *observability.Metrics
	logger  zerolog.Logger

	ops       chan func()
	done      chan struct{}
	baseCtx   context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	countdown *countdown.Countdown
	notices   *notice.Slot

	// Owned by the loop goroutine.
	state        State
	generation   uint64
	client       rtvi.Client
	clientCancel context.CancelFunc
	connectedAt  time.Time
	countdownRun uint64
	teardownGen  uint64
	stages       map[string]bool
	dirty        bool

	mu        sync.RWMutex
	published State
	subs      map[int]chan State
	nextSub   int
	closed    bool
}

func NewController(store settings.Store, factory rtvi.Factory, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Profile == (Profile{}) {
		opts.Profile = DefaultProfile()
	}
	logger := applog.WithComponent("call")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Controller{
		store:     store,
		factory:   factory,
		profile:   opts.Profile,
		now:       opts.Now,
		metrics:   opts.Metrics,
		logger:    logger,
		ops:       make(chan func(), opsBuffer),
		done:      make(chan struct{}),
		state:     initialState(),
		published: initialState(),
		subs:      make(map[int]chan State),
	}
	c.countdown = countdown.New(c.onTick,
		countdown.WithInterval(opts.TickInterval),
		countdown.WithClock(opts.Now),
	)
	c.notices = notice.NewSlot(opts.NoticeTTL, c.onNoticeExpired, notice.WithClock(opts.Now))
	return c
}

// Start runs the owner goroutine until ctx is cancelled or Close is called.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		c.baseCtx = loopCtx
		c.cancel = cancel
		go c.loop(loopCtx)
	})
}

// Close tears down the active client and waits for every goroutine the
// controller started.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.startOnce.Do(func() { close(c.done) })
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
		c.wg.Wait()
		c.countdown.Stop()
		c.countdown.Wait()
		c.notices.Stop()

		c.mu.Lock()
		c.closed = true
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.mu.Unlock()
	})
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case op := <-c.ops:
			op()
			c.flush()
		}
	}
}

func (c *Controller) flush() {
	if c.dirty {
		c.dirty = false
		c.publish()
	}
}

// submit hands op to the owner goroutine. It reports false once the loop has
// exited.
func (c *Controller) submit(op func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// Connect loads stored settings and connects with them.
func (c *Controller) Connect(ctx context.Context) error {
	s, err := c.store.Load(ctx)
	if err != nil {
		cerr := &Error{Kind: KindConfiguration, Op: "load settings", Err: err}
		c.submit(func() { c.raise(cerr) })
		c.metrics.ObserveConnect("settings_error")
		return cerr
	}
	return c.ConnectWith(BuildSessionConfig(s, c.profile))
}

// ConnectWith supersedes any current client and starts a new one bound to cfg.
// Only configuration errors are returned; everything after that is reported
// through State.
func (c *Controller) ConnectWith(cfg SessionConfig) error {
	res := make(chan error, 1)
	ok := c.submit(func() {
		err := c.connect(cfg)
		c.flush()
		res <- err
	})
	if !ok {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) connect(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		cerr := &Error{Kind: KindConfiguration, Op: "connect", Err: err}
		c.raise(cerr)
		c.metrics.ObserveConnect("invalid_config")
		return cerr
	}

	c.releaseClient(true)
	c.stopCountdown()
	c.generation++
	gen := c.generation
	attempt := uuid.NewString()

	c.state = State{
		TransportStatus: rtvi.StateIdle,
		MicEnabled:      cfg.EnableMic(),
		CamEnabled:      cfg.EnableCam(),
	}
	c.connectedAt = c.now()
	c.stages = make(map[string]bool, 3)
	c.dirty = true

	log := c.logger.With().Uint64("generation", gen).Str("attempt_id", attempt).Logger()
	log.Info().
		Str("event", "call.connect_requested").
		Str("endpoint", cfg.EndpointURL()).
		Str("credential", policy.MaskSecret(cfg.Credential())).
		Msg("connecting")

	client, err := c.factory(cfg.ClientOptions())
	if err != nil {
		c.failStart(gen, err)
		return nil
	}

	clientCtx, cancel := context.WithCancel(c.baseCtx)
	c.client = client
	c.clientCancel = cancel
	c.metrics.ObserveConnect("started")

	c.wg.Add(2)
	go c.pump(clientCtx, cancel, gen, client.Events())
	go func() {
		defer c.wg.Done()
		if err := client.Start(clientCtx); err != nil {
			c.submit(func() {
				if gen != c.generation || c.client != client {
					return
				}
				if c.teardownGen == gen {
					// The user hung up mid-connect; the transport reports the rest.
					c.logger.Debug().Err(err).
						Str("event", "call.start_aborted").
						Uint64("generation", gen).
						Msg("start interrupted by disconnect")
					return
				}
				c.failStart(gen, err)
			})
			return
		}
		if mic := cfg.PreferredMicID(); mic != "" {
			c.selectMic(clientCtx, gen, client, mic)
		}
	}()
	return nil
}

// selectMic applies the stored microphone preference once the session is up.
// It runs on the start goroutine.
func (c *Controller) selectMic(ctx context.Context, gen uint64, client rtvi.Client, deviceID string) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	got, err := client.UpdateMic(ctx, deviceID)
	c.submit(func() {
		if gen != c.generation || c.client != client || c.teardownGen == gen {
			return
		}
		if err != nil {
			c.raise(&Error{Kind: KindCommand, Op: "select microphone", Err: err})
			return
		}
		c.state.MicDeviceID = got
		c.dirty = true
	})
}

func (c *Controller) failStart(gen uint64, err error) {
	c.logger.Warn().
		Err(err).
		Str("event", "call.start_failed").
		Uint64("generation", gen).
		Msg("transport start failed")
	c.metrics.ObserveConnect("start_failed")
	c.releaseClient(true)
	c.endSession()
	c.state.TransportStatus = rtvi.StateError
	c.state.IsInCall = false
	c.raise(&Error{Kind: KindConnection, Op: "start", Err: err})
}

// pump forwards one client's events until the client closes its stream or is
// superseded.
func (c *Controller) pump(ctx context.Context, cancel context.CancelFunc, gen uint64, events <-chan rtvi.Event) {
	defer c.wg.Done()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.HandleEvent(gen, ev)
		}
	}
}

// Disconnect asks the active client to tear down. State changes when the
// transport reports it.
func (c *Controller) Disconnect() {
	c.submit(func() {
		client := c.client
		if client == nil {
			c.logger.Debug().Str("event", "call.disconnect_ignored").Msg("no active client")
			return
		}
		gen := c.generation
		c.teardownGen = gen
		c.logger.Info().Str("event", "call.disconnect_requested").Uint64("generation", gen).Msg("disconnecting")

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				c.submit(func() {
					if gen != c.generation {
						return
					}
					c.raise(&Error{Kind: KindCommand, Op: "disconnect", Err: err})
				})
			}
		}()
	})
}

func (c *Controller) ToggleMicrophone() {
	c.toggle("toggle microphone", func(s State) bool { return s.MicEnabled },
		func(ctx context.Context, cl rtvi.Client, v bool) (bool, error) { return cl.EnableMic(ctx, v) },
		func(s *State, v bool) { s.MicEnabled = v })
}

func (c *Controller) ToggleCamera() {
	c.toggle("toggle camera", func(s State) bool { return s.CamEnabled },
		func(ctx context.Context, cl rtvi.Client, v bool) (bool, error) { return cl.EnableCam(ctx, v) },
		func(s *State, v bool) { s.CamEnabled = v })
}

// toggle requests the inverse of the current flag and stores whatever the
// client acknowledges.
func (c *Controller) toggle(
	op string,
	current func(State) bool,
	request func(context.Context, rtvi.Client, bool) (bool, error),
	apply func(*State, bool),
) {
	c.submit(func() {
		client := c.client
		if client == nil {
			c.logger.Debug().Str("event", "call.toggle_ignored").Str("op", op).Msg("no active client")
			return
		}
		gen := c.generation
		want := !current(c.state)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			got, err := request(ctx, client, want)
			c.submit(func() {
				if gen != c.generation || c.client != client {
					return
				}
				if err != nil {
					c.raise(&Error{Kind: KindCommand, Op: op, Err: err})
					return
				}
				apply(&c.state, got)
				c.dirty = true
			})
		}()
	})
}

// HandleEvent delivers a transport event tagged with the generation of the
// client that produced it. Events from superseded clients are dropped.
func (c *Controller) HandleEvent(generation uint64, ev rtvi.Event) {
	c.submit(func() { c.apply(generation, ev) })
}

func (c *Controller) apply(gen uint64, ev rtvi.Event) {
	name := rtvi.Name(ev)
	if gen != c.generation {
		c.metrics.ObserveStaleEvent()
		c.logger.Debug().
			Str("event", "call.event_dropped").
			Str("transport_event", name).
			Uint64("generation", gen).
			Uint64("current_generation", c.generation).
			Msg("stale transport event")
		return
	}
	c.metrics.ObserveEvent(name)

	switch e := ev.(type) {
	case rtvi.StatusChanged:
		c.logEvent(gen, name).Str("status", e.State.String()).Msg("transport status")
		c.applyStatus(e.State)
	case rtvi.BotReady:
		c.logEvent(gen, name).Str("version", e.Version).Msg("bot ready")
		c.applyBotReady(e)
	case rtvi.Connected:
		c.logEvent(gen, name).Msg("transport connected")
		if c.client != nil {
			c.state.MicEnabled = c.client.IsMicEnabled()
			c.state.CamEnabled = c.client.IsCamEnabled()
			c.dirty = true
		}
	case rtvi.Disconnected:
		c.logEvent(gen, name).Msg("transport disconnected")
		c.endSession()
		c.releaseClient(false)
	case rtvi.RemoteAudioLevel:
		c.state.RemoteAudioLevel = clampLevel(e.Level)
		c.dirty = true
	case rtvi.LocalAudioLevel:
		c.state.LocalAudioLevel = clampLevel(e.Level)
		c.dirty = true
	case rtvi.TrackUpdated:
		c.logEvent(gen, name).Str("track_id", e.LocalVideoTrackID).Msg("local track updated")
		c.state.LocalVideoTrackID = e.LocalVideoTrackID
		c.dirty = true
	case rtvi.Transcript:
		if !e.Final {
			return
		}
		text, redacted := policy.RedactPII(e.Text)
		c.logger.Info().
			Str("event", "call.transcript").
			Uint64("generation", gen).
			Str("speaker", string(e.Speaker)).
			Bool("redacted", redacted).
			Str("text", text).
			Msg("transcript")
	case rtvi.SpeakingChanged:
		c.logEvent(gen, name).Str("speaker", string(e.Speaker)).Bool("speaking", e.Speaking).Msg("speaking changed")
	case rtvi.ErrorReported:
		c.logger.Warn().Str("event", "call.transport_error").Uint64("generation", gen).Str("message", e.Message).Msg("transport reported error")
		c.raise(&Error{Kind: KindTransport, Op: "transport", Err: errors.New(e.Message)})
	default:
		c.logEvent(gen, name).Msg("unhandled transport event")
	}
}

func (c *Controller) logEvent(gen uint64, name string) *zerolog.Event {
	return c.logger.Debug().Str("event", "call.transport_event").Str("transport_event", name).Uint64("generation", gen)
}

func (c *Controller) applyStatus(s rtvi.TransportState) {
	c.state.TransportStatus = s
	c.state.IsInCall = s.InCall()
	c.dirty = true

	switch s {
	case rtvi.StateConnected:
		c.observeStage(observability.StageConnected)
	case rtvi.StateReady:
		c.observeStage(observability.StageReady)
	}
	if !c.state.IsInCall {
		c.endSession()
	}
	if s == rtvi.StateDisconnected {
		c.releaseClient(false)
	}
	if s == rtvi.StateError {
		c.releaseClient(true)
	}
}

func (c *Controller) applyBotReady(e rtvi.BotReady) {
	if c.state.IsBotReady {
		return
	}
	if !c.state.IsInCall {
		c.logger.Debug().Str("event", "call.bot_ready_ignored").Msg("bot ready outside of a call")
		return
	}
	c.state.IsBotReady = true
	c.dirty = true
	c.observeStage(observability.StageBotReady)

	expiry := e.Expiry
	if expiry.IsZero() && c.client != nil {
		if exp, ok := c.client.SessionExpiry(); ok {
			expiry = exp
		}
	}
	if expiry.IsZero() {
		return
	}
	run, initial := c.countdown.Start(expiry)
	c.countdownRun = run
	c.state.RemainingSeconds = &initial
}

func (c *Controller) onTick(run uint64, remaining int) {
	c.submit(func() {
		if run != c.countdownRun || c.state.RemainingSeconds == nil {
			return
		}
		v := remaining
		c.state.RemainingSeconds = &v
		c.dirty = true
	})
}

func (c *Controller) onNoticeExpired(id string) {
	c.submit(func() {
		if c.notices.Expire(id) {
			c.dirty = true
		}
	})
}

func (c *Controller) observeStage(stage string) {
	if c.stages == nil || c.stages[stage] {
		return
	}
	c.stages[stage] = true
	c.metrics.ObserveStage(stage, c.now().Sub(c.connectedAt))
}

// endSession clears the per-session flags that only make sense in a call.
func (c *Controller) endSession() {
	c.stopCountdown()
	c.state.IsBotReady = false
	c.state.RemainingSeconds = nil
	c.dirty = true
}

func (c *Controller) stopCountdown() {
	c.countdown.Stop()
	c.countdownRun = 0
}

// releaseClient drops the handle. With teardown set the client is also
// cancelled and asked to disconnect in the background; otherwise its pump
// keeps draining until the client closes its event stream.
func (c *Controller) releaseClient(teardown bool) {
	client := c.client
	cancel := c.clientCancel
	c.client = nil
	c.clientCancel = nil
	if client == nil {
		return
	}
	if !teardown {
		return
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancelTeardown := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancelTeardown()
		if err := client.Disconnect(ctx); err != nil {
			c.logger.Debug().Err(err).Str("event", "call.teardown_failed").Msg("superseded client teardown failed")
		}
	}()
}

func (c *Controller) raise(err *Error) {
	n := c.notices.Show(err.Kind.noticeKind(), err.Message())
	c.metrics.ObserveNotice(string(n.Kind))
	c.logger.Warn().
		Err(err).
		Str("event", "call.notice").
		Str("notice_id", n.ID).
		Str("kind", string(n.Kind)).
		Msg(n.Message)
	c.dirty = true
}

func (c *Controller) shutdown() {
	c.releaseClient(true)
	c.stopCountdown()
	c.state.IsInCall = false
	c.state.IsBotReady = false
	c.state.RemainingSeconds = nil
	c.publish()
	c.logger.Debug().Str("event", "call.controller_stopped").Msg("controller stopped")
}

func (c *Controller) publish() {
	s := c.state.clone()
	s.Generation = c.generation
	s.Notice = c.notices.Current()
	s = s.withLabel()

	c.metrics.SetInCall(s.IsInCall, s.IsBotReady)
	if s.RemainingSeconds != nil {
		c.metrics.SetRemaining(*s.RemainingSeconds)
	} else {
		c.metrics.SetRemaining(0)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = s
	for _, ch := range c.subs {
		offer(ch, s.clone())
	}
}

// offer replaces whatever the subscriber has not read yet.
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published.clone()
}

// Subscribe returns a latest-wins feed of state changes, primed with the
// current state. The cancel func is safe to call more than once.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.published.clone()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}
