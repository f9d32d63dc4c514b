package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
	"github.com/vitalink/telecare/internal/rtc"
)

const defaultTick = time.Second

// ChatSession is what the session loop needs from the chat coordinator.
// Implementations must not block: login outcomes arrive via the messenger's
// own callbacks and never gate call state.
type ChatSession interface {
	EnsureLogin(role models.Role)
	Logout()
}

// TokenSource mints a channel join token for a role.
type TokenSource interface {
	Mint(channelID, userID string, role models.Role) (string, error)
}

// Recorder receives call-cycle boundaries for the consultation history.
// Both hooks are best effort and must not block.
type Recorder interface {
	CallStarted(channelID string, role models.Role)
	CallEnded(channelID string, durationSeconds int, peerUID *int64, outcome string)
}

// Notifier is the side channel for degraded-subsystem notices (chat
// failures, sync hiccups). Never used for call-fatal errors.
type Notifier interface {
	Notify(kind, message string)
}

// Options configures a Coordinator.
type Options struct {
	// Configured is false when RTC credentials are absent; every entry point
	// then lands in StateNotConfigured.
	Configured bool
	// ChannelID is the shared consultation room both roles join.
	ChannelID string
	// Usernames maps each role to its chat/token identity.
	Usernames map[models.Role]string
	// Tick overrides the duration timer interval (tests); defaults to 1s.
	Tick time.Duration
}

// Coordinator owns the call lifecycle. All mutations flow through a single
// goroutine: user commands are posted as closures, transport events are
// consumed from the engine's stream, and the duration ticker re-checks live
// state on every tick. Observers get immutable snapshots.
type Coordinator struct {
	opts      Options
	transport rtc.Transport
	chat      ChatSession
	tokens    TokenSource
	recorder  Recorder
	notifier  Notifier
	log       *zap.Logger

	// owned by the run loop
	state    State
	phase    rtc.Phase
	registry *Registry
	channel  string
	localUID int64
	duration int
	audioOn  bool
	videoOn  bool
	quality  int
	vitals   bool
	role     models.Role
	lastPeer *int64

	cmds chan func()
	done chan struct{}
	stop sync.Once

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a session coordinator. chat, tokens, recorder and notifier may
// be nil; the coordinator degrades gracefully without them.
func New(opts Options, transport rtc.Transport, chat ChatSession, tokens TokenSource, log *zap.Logger) *Coordinator {
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if log == nil {
		log = zap.NewNop()
	}
	initial := State{Kind: StateIdle}
	if !opts.Configured {
		initial = State{Kind: StateNotConfigured}
	}
	c := &Coordinator{
		opts:      opts,
		transport: transport,
		chat:      chat,
		tokens:    tokens,
		log:       log,
		state:     initial,
		registry:  NewRegistry(),
		audioOn:   true,
		videoOn:   true,
		role:      models.RolePatient,
		cmds:      make(chan func(), 32),
		done:      make(chan struct{}),
		subs:      make(map[chan Snapshot]struct{}),
	}
	c.snap = c.buildSnapshot()
	return c
}

// SetRecorder attaches the consultation history recorder.
func (c *Coordinator) SetRecorder(r Recorder) { c.recorder = r }

// SetNotifier attaches the best-effort notification sink.
func (c *Coordinator) SetNotifier(n Notifier) { c.notifier = n }

// Open starts the event loop. Must be called exactly once.
func (c *Coordinator) Open() {
	go c.run()
}

// Close stops the loop, leaving the channel if a call is active.
func (c *Coordinator) Close() {
	c.dispatch(func() {
		if c.state.Connected() {
			c.transport.Leave()
		}
	})
	c.stop.Do(func() { close(c.done) })
}

func (c *Coordinator) run() {
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()
	events := c.transport.Events()
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
			c.publish()
		case <-ticker.C:
			// condition re-checked against live state: the tick loop stops
			// contributing the instant the session leaves the ticking states
			if c.state.Kind == StateInCall || c.state.Kind == StateWaitingForRemote {
				c.duration++
				c.publish()
			}
		}
	}
}

// dispatch runs fn on the loop goroutine and waits for it. The snapshot is
// republished before the caller is released, so commands read their own
// writes without breaking the single-writer discipline.
func (c *Coordinator) dispatch(fn func()) {
	doneCh := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); c.publish(); close(doneCh) }:
	case <-c.done:
		return
	}
	select {
	case <-doneCh:
	case <-c.done:
	}
}

// Snapshot returns the latest published session view.
func (c *Coordinator) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Subscribe registers a snapshot observer. Slow observers miss intermediate
// snapshots rather than blocking the loop.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

// ---- user commands ----

// PrepareCall enters camera/mic preview; no transport session yet.
func (c *Coordinator) PrepareCall() {
	c.dispatch(func() {
		if !c.opts.Configured {
			c.state = State{Kind: StateNotConfigured}
			return
		}
		if c.state.Kind == StateIdle || c.state.Kind == StateNotConfigured {
			c.state = State{Kind: StatePreCall}
		}
	})
}

// StartConsultation begins a call cycle: assigns the channel, kicks off the
// transport join and, in parallel, the chat login for the current role.
func (c *Coordinator) StartConsultation(ctx context.Context) {
	c.dispatch(func() { c.startCall(ctx) })
}

// Retry re-runs the join sequence from scratch after an error.
func (c *Coordinator) Retry(ctx context.Context) {
	c.dispatch(func() {
		if c.state.Kind != StateError {
			return
		}
		c.startCall(ctx)
	})
}

// Cancel abandons an errored call without retrying.
func (c *Coordinator) Cancel() {
	c.dispatch(func() {
		if c.state.Kind != StateError {
			return
		}
		c.resetLocked()
	})
}

// EndCall hangs up explicitly from any connected or waiting state.
func (c *Coordinator) EndCall() {
	c.dispatch(func() {
		if !c.state.Connected() {
			return
		}
		c.transport.Leave()
		c.finishCall("completed")
		c.duration = 0
		c.registry.Reset()
		c.state = State{Kind: StatePostCall}
		c.channel = ""
		c.phase = rtc.PhaseDisconnected
	})
}

// Reset re-arms the machine for a new call from a terminal state.
func (c *Coordinator) Reset() {
	c.dispatch(func() {
		if c.state.Connected() {
			return
		}
		c.resetLocked()
	})
}

// ToggleAudio delegates to the transport; a speculative call before the
// engine exists is a no-op there but still flips the local flag.
func (c *Coordinator) ToggleAudio() {
	c.dispatch(func() { c.audioOn = c.transport.ToggleAudio() })
}

// ToggleVideo delegates to the transport.
func (c *Coordinator) ToggleVideo() {
	c.dispatch(func() { c.videoOn = c.transport.ToggleVideo() })
}

// SwitchCamera delegates to the transport.
func (c *Coordinator) SwitchCamera() {
	c.dispatch(func() { c.transport.SwitchCamera() })
}

// ToggleVitalsSharing flips reading visibility for the call UI. It never
// starts or stops the telemetry simulator.
func (c *Coordinator) ToggleVitalsSharing() {
	c.dispatch(func() { c.vitals = !c.vitals })
}

// SetRole switches between patient and doctor mode. The chat identity is
// singleton-scoped, so a role change logs the messenger out; the next
// EnsureLogin signs in under the new identity.
func (c *Coordinator) SetRole(role models.Role) {
	c.dispatch(func() {
		if role == c.role || !role.Valid() {
			return
		}
		c.role = role
		if c.chat != nil {
			c.chat.Logout()
		}
	})
}

// Role returns the active consultation role.
func (c *Coordinator) Role() models.Role {
	var r models.Role
	c.dispatch(func() { r = c.role })
	return r
}

// ---- loop internals ----

func (c *Coordinator) startCall(ctx context.Context) {
	if !c.opts.Configured {
		c.state = State{Kind: StateNotConfigured}
		c.notify("config", "call provider credentials missing")
		return
	}
	if c.state.Connected() {
		// one channel membership at a time; joining is not additive
		c.transport.Leave()
	}
	c.registry.Reset()
	c.duration = 0
	c.lastPeer = nil
	c.channel = c.opts.ChannelID
	c.phase = rtc.PhaseConnecting
	c.state = State{Kind: StateConnecting}

	user := c.opts.Usernames[c.role]
	token := ""
	if c.tokens != nil {
		t, err := c.tokens.Mint(c.channel, user, c.role)
		if err != nil {
			c.log.Warn("token mint failed, joining tokenless", zap.Error(err))
		} else {
			token = t
		}
	}

	channel, uid := c.channel, c.localUID
	go func() {
		if err := c.transport.Join(ctx, token, channel, uid); err != nil {
			// the engine reports join failures on its event stream too
			c.log.Warn("transport join failed", zap.String("channel", channel), zap.Error(err))
		}
	}()

	if c.chat != nil {
		c.chat.EnsureLogin(c.role)
	}
	if c.recorder != nil {
		c.recorder.CallStarted(c.channel, c.role)
	}
}

func (c *Coordinator) handleEvent(ev rtc.Event) {
	switch ev.Kind {
	case rtc.EventJoinedSelf:
		c.localUID = ev.UID
		c.phase = rtc.PhaseConnected
		c.recomputeConnected()

	case rtc.EventRemoteJoined:
		c.registry.Joined(ev.UID)
		uid := ev.UID
		c.lastPeer = &uid
		c.recomputeConnected()

	case rtc.EventRemoteLeft:
		c.registry.Left(ev.UID)
		if c.phase == rtc.PhaseConnected && c.registry.Len() == 0 && c.state.Kind == StateInCall {
			// remote hung up: command the transport to leave so local media
			// is cleaned up even though the ending was remote-triggered
			c.transport.Leave()
			c.finishCall("completed")
			c.state = State{Kind: StatePostCall}
			c.channel = ""
			c.phase = rtc.PhaseDisconnected
			return
		}
		c.recomputeConnected()

	case rtc.EventRemoteVideoState:
		c.registry.SetVideo(ev.UID, ev.Enabled)

	case rtc.EventRemoteAudioState:
		c.registry.SetAudio(ev.UID, ev.Enabled)

	case rtc.EventPhaseChanged:
		c.handlePhase(ev.Phase)

	case rtc.EventNetworkQuality:
		if ev.UID == 0 || ev.UID == c.localUID {
			q := ev.Tx
			if ev.Rx < q {
				q = ev.Rx
			}
			if q < 0 {
				q = 0
			}
			if q > 5 {
				q = 5
			}
			c.quality = q
		}

	case rtc.EventFailed:
		wasActive := c.state.Connected()
		c.state = errorState(ev.Code, ev.Message)
		c.phase = rtc.PhaseFailed
		c.channel = ""
		if wasActive {
			c.finishCall("error")
		}
		c.registry.Reset()
		c.log.Warn("transport failure", zap.Int("code", ev.Code), zap.String("message", ev.Message))

	case rtc.EventLeftChannel:
		if !c.state.Connected() {
			return // our own hang-up already settled the state
		}
		c.finishCall("completed")
		c.registry.Reset()
		c.state = State{Kind: StatePostCall}
		c.channel = ""
		c.phase = rtc.PhaseDisconnected
	}
}

func (c *Coordinator) handlePhase(p rtc.Phase) {
	switch p {
	case rtc.PhaseConnecting:
		// monotonic guard: a lagging "connecting" after "connected" is
		// staleness, not a failure signal, and must not regress state
		if c.phase == rtc.PhaseConnected || c.phase == rtc.PhaseReconnecting {
			return
		}
		if c.state.Connected() {
			c.state = State{Kind: StateConnecting}
		}
	case rtc.PhaseConnected:
		c.phase = rtc.PhaseConnected
		c.recomputeConnected()
	case rtc.PhaseReconnecting:
		if c.state.Connected() {
			c.phase = rtc.PhaseReconnecting
			c.state = State{Kind: StateReconnecting}
		}
	case rtc.PhaseFailed:
		c.handleEvent(rtc.Event{Kind: rtc.EventFailed, Code: -1, Message: "connection failed"})
	}
}

// recomputeConnected derives waiting/in-call from the current snapshot of
// (connection phase, registry size) instead of trusting event ordering.
func (c *Coordinator) recomputeConnected() {
	if c.phase != rtc.PhaseConnected || !c.state.Connected() {
		return
	}
	if c.registry.Len() > 0 {
		c.state = State{Kind: StateInCall}
	} else {
		c.state = State{Kind: StateWaitingForRemote}
	}
}

func (c *Coordinator) finishCall(outcome string) {
	if c.recorder != nil && c.channel != "" {
		c.recorder.CallEnded(c.channel, c.duration, c.lastPeer, outcome)
	}
	c.vitals = false
}

func (c *Coordinator) resetLocked() {
	if c.opts.Configured {
		c.state = State{Kind: StateIdle}
	} else {
		c.state = State{Kind: StateNotConfigured}
	}
	c.channel = ""
	c.duration = 0
	c.vitals = false
	c.quality = 0
	c.lastPeer = nil
	c.registry.Reset()
	c.phase = rtc.PhaseDisconnected
}

func (c *Coordinator) notify(kind, message string) {
	if c.notifier != nil {
		c.notifier.Notify(kind, message)
	}
}

func (c *Coordinator) buildSnapshot() Snapshot {
	return Snapshot{
		State:           c.state,
		ChannelID:       c.channel,
		LocalUID:        c.localUID,
		DurationSeconds: c.duration,
		LocalAudioOn:    c.audioOn,
		LocalVideoOn:    c.videoOn,
		NetworkQuality:  c.quality,
		VitalsSharing:   c.vitals,
		Participants:    c.registry.Snapshot(),
	}
}

func (c *Coordinator) publish() {
	snap := c.buildSnapshot()
	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()

	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	c.subMu.Unlock()
}
