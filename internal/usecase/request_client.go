package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"relaymic/internal/activation"
	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
)

type RequestConfig struct {
	PollInterval time.Duration
	ErrorGrace   time.Duration
	Scheme       string
	NewID        func() string
}

// RequestClient is the requester's half of a session. It never blocks on the
// host; everything it learns comes from observing the shared record.
type RequestClient struct {
	state     ports.StateStore
	notifier  ports.Notifier
	activator ports.Activator
	finalizer transcriptFinalizer
	view      ports.StatusView
	clock     sched.Clock
	cfg       RequestConfig

	mu      sync.Mutex
	tracked string
	phase   domain.Phase
	handled bool
	grace   sched.Timer
}

func NewRequestClient(
	state ports.StateStore,
	notifier ports.Notifier,
	activator ports.Activator,
	text ports.TextContext,
	view ports.StatusView,
	clock sched.Clock,
	cfg RequestConfig,
) *RequestClient {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = domain.PollInterval
	}
	if cfg.ErrorGrace <= 0 {
		cfg.ErrorGrace = domain.ErrorGrace
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &RequestClient{
		state:     state,
		notifier:  notifier,
		activator: activator,
		finalizer: newTranscriptFinalizer(text),
		view:      view,
		clock:     clock,
		cfg:       cfg,
		phase:     domain.PhaseIdle,
	}
}

// DictateButtonTapped stops the tracked session if the stored record shows it
// recording and otherwise requests a new one, launching the host when it is
// not alive. A tap that lands after the host already finished the tracked
// session delivers that result instead.
func (c *RequestClient) DictateButtonTapped(ctx context.Context) error {
	c.mu.Lock()
	if c.tracked != "" && !c.handled {
		state, ok, err := c.state.LoadState(ctx)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("read shared state: %w", err)
		}
		if ok && state.SessionID == c.tracked && !state.IsStale(c.clock.Now()) {
			switch {
			case state.IsStopRequest():
				c.mu.Unlock()
				return nil
			case state.Phase == domain.PhaseRecording:
				id := c.tracked
				err := c.state.SaveState(ctx, domain.StopRequest(id, c.clock.Now()))
				c.mu.Unlock()
				if err != nil {
					return fmt.Errorf("request stop: %w", err)
				}
				c.post(ctx)
				slog.Info("stop requested", "session", id)
				return nil
			case state.Phase.IsTerminal():
				c.applyLocked(ctx, state)
				c.mu.Unlock()
				return nil
			}
		}
	}

	c.stopGraceLocked()
	id := c.cfg.NewID()
	if err := c.state.SaveState(ctx, domain.NewState(id, domain.PhaseStartRequested, c.clock.Now())); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("request start: %w", err)
	}
	c.tracked = id
	c.phase = domain.PhaseStartRequested
	c.handled = false
	c.renderLocked("")
	c.mu.Unlock()

	c.post(ctx)
	slog.Info("start requested", "session", id)

	liveness, err := c.state.LoadLiveness(ctx)
	if err != nil {
		slog.Debug("liveness unreadable", "error", err)
	}
	if err == nil && liveness.IsAlive(c.clock.Now()) {
		return nil
	}
	uri := activation.Build(c.cfg.Scheme, id)
	if err := c.activator.Activate(ctx, uri); err != nil {
		c.mu.Lock()
		if c.tracked == id {
			c.failLocked(id, "Could not start dictation host")
		}
		c.mu.Unlock()
		return fmt.Errorf("activate host: %w", err)
	}
	slog.Info("host activated", "session", id)
	return nil
}

// Check makes one observation of the shared record and acts on it.
func (c *RequestClient) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracked == "" || c.handled {
		return nil
	}
	state, ok, err := c.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("read shared state: %w", err)
	}
	if !ok || state.IsStale(c.clock.Now()) {
		slog.Info("session went stale", "session", c.tracked)
		c.clearLocked()
		return nil
	}
	if state.SessionID != c.tracked || state.IsStopRequest() {
		return nil
	}
	c.applyLocked(ctx, state)
	return nil
}

// applyLocked acts on a fresh record that belongs to the tracked session.
func (c *RequestClient) applyLocked(ctx context.Context, state domain.DictationState) {
	c.phase = state.Phase
	switch state.Phase {
	case domain.PhaseComplete:
		c.handled = true
		inserted, err := c.finalizer.Finalize(ctx, state.Text)
		if err != nil {
			slog.Warn("insert failed", "session", c.tracked, "error", err)
			c.failLocked(c.tracked, "Could not insert text")
			return
		}
		slog.Info("transcript inserted", "session", c.tracked, "chars", len(inserted))
		c.view.Render(domain.RequesterStatus{
			SessionID: c.tracked,
			Phase:     domain.PhaseComplete,
			Message:   statusLabel(domain.PhaseComplete),
			Inserted:  inserted,
		})
		c.finishLocked(ctx)
	case domain.PhaseError:
		c.failLocked(c.tracked, state.Error)
	default:
		c.renderLocked("")
	}
}

// Observe polls and listens for wakeups until ctx is cancelled.
func (c *RequestClient) Observe(ctx context.Context) error {
	c.check(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := c.clock.Every(c.cfg.PollInterval, func() { c.check(gctx) })
		<-gctx.Done()
		ticker.Stop()
		return nil
	})
	g.Go(func() error {
		wakeups, err := c.notifier.Subscribe(gctx)
		if err != nil {
			slog.Warn("notifications unavailable, polling only", "error", err)
			return nil
		}
		for range wakeups {
			c.check(gctx)
		}
		return nil
	})
	return g.Wait()
}

// ResetToIdle clears tracking and writes an idle record. It cannot fail; a
// failed write is reconciled by the next one.
func (c *RequestClient) ResetToIdle(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	if err := c.state.SaveState(ctx, domain.NewState(c.cfg.NewID(), domain.PhaseIdle, c.clock.Now())); err != nil {
		slog.Warn("reset write failed", "error", err)
	}
	c.post(ctx)
}

// Tracked returns the session being observed and its last seen phase.
func (c *RequestClient) Tracked() (string, domain.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked, c.phase
}

func (c *RequestClient) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := c.Check(ctx); err != nil {
		slog.Debug("observation failed", "error", err)
	}
}

// failLocked shows message for the grace window, then resets.
func (c *RequestClient) failLocked(id, message string) {
	if message == "" {
		message = "Dictation failed"
	}
	c.handled = true
	c.phase = domain.PhaseError
	c.view.Render(domain.RequesterStatus{SessionID: id, Phase: domain.PhaseError, Message: message})
	c.stopGraceLocked()
	c.grace = c.clock.AfterFunc(c.cfg.ErrorGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.tracked != id || !c.handled {
			return
		}
		c.finishLocked(context.Background())
	})
}

// finishLocked ends a handled session. The idle write is skipped when the
// record no longer belongs to it, so a newer request is never clobbered.
func (c *RequestClient) finishLocked(ctx context.Context) {
	id := c.tracked
	c.clearLocked()
	state, ok, err := c.state.LoadState(ctx)
	if err == nil && ok && state.SessionID != id {
		return
	}
	if err := c.state.SaveState(ctx, domain.NewState(c.cfg.NewID(), domain.PhaseIdle, c.clock.Now())); err != nil {
		slog.Warn("reset write failed", "session", id, "error", err)
		return
	}
	c.post(ctx)
}

func (c *RequestClient) clearLocked() {
	c.stopGraceLocked()
	c.tracked = ""
	c.phase = domain.PhaseIdle
	c.handled = false
	c.renderLocked("")
}

func (c *RequestClient) stopGraceLocked() {
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

func (c *RequestClient) renderLocked(message string) {
	if message == "" {
		message = statusLabel(c.phase)
	}
	c.view.Render(domain.RequesterStatus{SessionID: c.tracked, Phase: c.phase, Message: message})
}

func (c *RequestClient) post(ctx context.Context) {
	if err := c.notifier.Post(ctx); err != nil {
		slog.Debug("notify failed", "error", err)
	}
}

func statusLabel(phase domain.Phase) string {
	switch phase {
	case domain.PhaseStartRequested:
		return "Connecting..."
	case domain.PhaseRecording:
		return "Listening... tap to stop"
	case domain.PhaseTranscribing:
		return "Transcribing..."
	case domain.PhaseComplete:
		return "Done"
	case domain.PhaseError:
		return "Dictation failed"
	default:
		return "Tap to dictate"
	}
}
