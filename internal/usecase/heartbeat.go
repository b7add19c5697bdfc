package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
)

// Heartbeat keeps the liveness record fresh while the host can take requests
// without being launched.
type Heartbeat struct {
	store    ports.StateStore
	clock    sched.Clock
	interval time.Duration

	mu     sync.Mutex
	timer  sched.Timer
	onBeat func(context.Context)
}

func NewHeartbeat(store ports.StateStore, clock sched.Clock, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = domain.HeartbeatInterval
	}
	return &Heartbeat{store: store, clock: clock, interval: interval}
}

// OnBeat registers fn to run after every beat. It must be called before
// Start.
func (h *Heartbeat) OnBeat(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onBeat = fn
}

// Start writes the first beat and schedules the rest. Calling Start twice
// keeps the existing schedule.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		return
	}
	h.beat(ctx)
	h.timer = h.clock.Every(h.interval, func() { h.beat(ctx) })
}

// Stop cancels the schedule and marks the host inactive.
func (h *Heartbeat) Stop(ctx context.Context) {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	liveness := domain.Liveness{Active: false, LastHeartbeat: domain.EpochSeconds(h.clock.Now())}
	if err := h.store.SaveLiveness(ctx, liveness); err != nil {
		slog.Warn("clear liveness failed", "error", err)
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	liveness := domain.Liveness{Active: true, LastHeartbeat: domain.EpochSeconds(h.clock.Now())}
	if err := h.store.SaveLiveness(ctx, liveness); err != nil {
		slog.Warn("heartbeat write failed, retrying next cycle", "error", err)
	}
	if h.onBeat != nil {
		h.onBeat(ctx)
	}
}
