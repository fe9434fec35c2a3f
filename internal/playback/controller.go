package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shadowdrill/drill-core/internal/scenario"
	"github.com/shadowdrill/drill-core/internal/speech"
	"github.com/shadowdrill/drill-core/internal/voice"
)

// State of a controller's current session.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StateComplete State = "complete"
)

// Hooks receive playback outcomes. All callbacks run on the playback
// goroutine and must not block for long. Nil callbacks are skipped.
type Hooks struct {
	// OnStatus fires for every emitted phase status.
	OnStatus func(Status)
	// OnComplete fires only on natural exhaustion of the scenario.
	OnComplete func()
	// OnError fires when a genuine synthesis failure ends the session.
	OnError func(error)
}

// Controller owns one playback session at a time: it creates the
// cancellation context per Start, relays statuses, and always knows the last
// observed line index so a stop can report where the learner left off.
type Controller struct {
	seq    *Sequencer
	engine speech.Engine
	log    *slog.Logger
	hooks  Hooks

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	lastLine int
	done     chan struct{}
}

func NewController(seq *Sequencer, engine speech.Engine, hooks Hooks, log *slog.Logger) *Controller {
	return &Controller{
		seq:    seq,
		engine: engine,
		log:    log.With(slog.String("component", "playback-controller")),
		hooks:  hooks,
		state:  StateIdle,
	}
}

// Start begins playback from startIndex. A second Start while already
// playing is a safe no-op. Each Start gets a fresh cancellation context;
// a cancelled one is discarded, never reused.
func (c *Controller) Start(parent context.Context, sc scenario.Scenario, level voice.Level, startIndex int) {
	c.mu.Lock()
	if c.state == StatePlaying {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.state = StatePlaying
	c.cancel = cancel
	c.lastLine = startIndex
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, sc, level, startIndex, done)
}

func (c *Controller) run(ctx context.Context, sc scenario.Scenario, level voice.Level, startIndex int, done chan struct{}) {
	defer close(done)

	statuses, errs := c.seq.Play(ctx, sc, level, startIndex)
	for st := range statuses {
		c.mu.Lock()
		c.lastLine = st.LineIndex
		c.mu.Unlock()
		if c.hooks.OnStatus != nil {
			c.hooks.OnStatus(st)
		}
	}

	if err := <-errs; err != nil {
		c.log.Error("playback session failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		if c.hooks.OnError != nil {
			c.hooks.OnError(err)
		}
		return
	}

	if ctx.Err() != nil {
		// Cancelled mid-session, by Stop or by the parent context going
		// away. Either way the session is over and a later Start must work.
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.state = StateComplete
	c.mu.Unlock()
	if c.hooks.OnComplete != nil {
		c.hooks.OnComplete()
	}
}

// Stop cancels the session and immediately cuts off any queued or active
// speech that the context cancellation might race with. Safe to call when
// idle. Blocks until the playback goroutine has wound down so the last line
// index is settled when Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	if c.state == StatePlaying {
		c.state = StateIdle
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.engine.CancelAll()
	if done != nil {
		<-done
	}
}

// LastLineIndex reports the most recently observed line, valid even while the
// cancellation lands between phases.
func (c *Controller) LastLineIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLine
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Playing reports whether a session is active.
func (c *Controller) Playing() bool {
	return c.State() == StatePlaying
}
