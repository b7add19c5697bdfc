package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"relaymic/internal/activation"
	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
)

type ListenerConfig struct {
	PollInterval    time.Duration
	Scheme          string
	ShutdownTimeout time.Duration
}

// HostListener turns observed start and stop requests into coordinator calls.
type HostListener struct {
	coordinator *Coordinator
	state       ports.StateStore
	notifier    ports.Notifier
	heartbeat   *Heartbeat
	events      ports.EventSink
	clock       sched.Clock
	cfg         ListenerConfig

	mu        sync.Mutex
	lastBegun string
}

func NewHostListener(
	coordinator *Coordinator,
	state ports.StateStore,
	notifier ports.Notifier,
	heartbeat *Heartbeat,
	events ports.EventSink,
	clock sched.Clock,
	cfg ListenerConfig,
) *HostListener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = domain.PollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	heartbeat.OnBeat(coordinator.Refresh)
	return &HostListener{
		coordinator: coordinator,
		state:       state,
		notifier:    notifier,
		heartbeat:   heartbeat,
		events:      events,
		clock:       clock,
		cfg:         cfg,
	}
}

// Check reads the shared record once and acts on a pending request. It is
// level-triggered and safe to call from any number of wakeups.
func (l *HostListener) Check(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok, err := l.state.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("read shared state: %w", err)
	}
	if !ok || state.Phase != domain.PhaseStartRequested || state.IsStale(l.clock.Now()) {
		return nil
	}

	if state.IsStopRequest() {
		if l.coordinator.StopSession(state.SessionID, domain.StopReasonExplicit) {
			slog.Info("stop request accepted", "session", state.SessionID)
		}
		return nil
	}

	if state.SessionID == l.lastBegun || l.coordinator.IsCurrent(state.SessionID) {
		return nil
	}
	l.lastBegun = state.SessionID
	slog.Info("start request observed", "session", state.SessionID)
	return l.coordinator.Begin(ctx, state.SessionID)
}

// HandleActivation processes a delivered activation URI. Repeated delivery
// for the same session is harmless.
func (l *HostListener) HandleActivation(ctx context.Context, uri string) error {
	sessionID, err := activation.Parse(uri, l.cfg.Scheme)
	if err != nil {
		return err
	}
	slog.Info("activation received", "session", sessionID)
	if err := l.Check(ctx); err != nil {
		return err
	}
	if !l.coordinator.IsCurrent(sessionID) {
		slog.Debug("activation did not match a pending request", "session", sessionID)
	}
	return nil
}

// Run serves requests until ctx is cancelled, then ends any active session
// and clears liveness.
func (l *HostListener) Run(ctx context.Context) error {
	l.heartbeat.Start(ctx)
	l.events.SessionStateChanged("", domain.PhaseIdle, domain.SessionReasonHostReady)
	slog.Info("host ready", "poll", l.cfg.PollInterval)

	l.check(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := l.clock.Every(l.cfg.PollInterval, func() { l.check(gctx) })
		<-gctx.Done()
		ticker.Stop()
		return nil
	})
	g.Go(func() error {
		wakeups, err := l.notifier.Subscribe(gctx)
		if err != nil {
			slog.Warn("notifications unavailable, polling only", "error", err)
			return nil
		}
		for range wakeups {
			l.check(gctx)
		}
		return nil
	})
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.ShutdownTimeout)
	defer cancel()
	if serr := l.coordinator.Shutdown(shutdownCtx); serr != nil {
		slog.Warn("shutdown incomplete", "error", serr)
	}
	l.heartbeat.Stop(shutdownCtx)
	slog.Info("host stopped")
	return err
}

func (l *HostListener) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := l.Check(ctx); err != nil {
		slog.Warn("request check failed", "error", err)
	}
}
