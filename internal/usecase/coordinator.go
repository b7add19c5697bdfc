package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
	"relaymic/internal/sched"
)

var ErrNoActiveSession = errors.New("no active dictation session")

// CoordinatorConfig bounds the asynchronous half of a session.
type CoordinatorConfig struct {
	TranscribeTimeout time.Duration
	WriteTimeout      time.Duration
}

// Coordinator is the host's authoritative dictation state machine. It owns
// the single active session and is the only writer of recording,
// transcribing, complete and error records.
type Coordinator struct {
	state    ports.StateStore
	notifier ports.Notifier
	capture  *CapturePipeline
	pipeline *TranscriptionPipeline
	events   ports.EventSink
	clock    sched.Clock
	cfg      CoordinatorConfig

	// ctrl serializes begin and stop so capture start and stop never overlap.
	ctrl sync.Mutex

	mu      sync.Mutex
	current *activeSession

	wg sync.WaitGroup
}

func NewCoordinator(
	state ports.StateStore,
	notifier ports.Notifier,
	capture *CapturePipeline,
	pipeline *TranscriptionPipeline,
	events ports.EventSink,
	clock sched.Clock,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Coordinator{
		state:    state,
		notifier: notifier,
		capture:  capture,
		pipeline: pipeline,
		events:   events,
		clock:    clock,
		cfg:      cfg,
	}
}

// Begin starts recording for sessionID. A different active session is
// stopped first and its result discarded. Beginning the session that is
// already active does nothing.
func (c *Coordinator) Begin(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is empty")
	}

	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	c.mu.Lock()
	previous := c.current
	if previous != nil && previous.id == sessionID {
		c.mu.Unlock()
		return nil
	}
	active := newActiveSession(context.WithoutCancel(ctx), sessionID)
	c.current = active
	c.mu.Unlock()

	if previous != nil {
		c.discard(previous)
	}

	err := c.capture.Start(active.ctx, func(reason domain.StopReason) {
		c.StopSession(sessionID, reason)
	})
	if err != nil {
		slog.Error("capture start failed", "session", sessionID, "error", err)
		c.fail(active, err, domain.ErrorCodeCaptureStart, domain.SessionReasonCaptureFailed)
		return err
	}

	reason := domain.SessionReasonRecordingStarted
	if previous != nil {
		reason = domain.SessionReasonRecordingRestarted
	}
	c.publish(active, domain.NewState(sessionID, domain.PhaseRecording, c.clock.Now()), reason)
	slog.Info("recording started", "session", sessionID, "superseded", previous != nil)
	return nil
}

// RequestStop stops whatever session is recording.
func (c *Coordinator) RequestStop() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return ErrNoActiveSession
	}
	c.StopSession(active.id, domain.StopReasonExplicit)
	return nil
}

// StopSession ends recording for sessionID and hands the audio to the
// transcription pipeline. It is a no-op unless sessionID is current and still
// recording, so late timers and repeated stop requests are harmless.
func (c *Coordinator) StopSession(sessionID string, reason domain.StopReason) bool {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil || active.id != sessionID || !active.swapPhase(domain.PhaseRecording, domain.PhaseTranscribing) {
		return false
	}

	c.publish(active, domain.NewState(sessionID, domain.PhaseTranscribing, c.clock.Now()), domain.StopReasonState(reason))
	slog.Info("recording stopped", "session", sessionID, "reason", reason)

	recording, ok, err := c.capture.Stop()
	if err == nil && !ok {
		err = domain.ErrCaptureProduce
	}
	if err != nil {
		slog.Error("capture stop failed", "session", sessionID, "error", err)
		c.fail(active, err, domain.ErrorCodeCaptureStop, domain.SessionReasonCaptureFailed)
		return true
	}

	c.wg.Add(1)
	go c.transcribe(active, recording)
	return true
}

// Status returns the coordinator's in-memory view.
func (c *Coordinator) Status() domain.HostStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.HostStatus{Phase: domain.PhaseIdle}
	}
	phase := c.current.getPhase()
	return domain.HostStatus{SessionID: c.current.id, Phase: phase, Active: phase.IsActive()}
}

// Refresh rewrites the active session's record with the current time so
// requesters do not take a long recording or transcription for stale. A
// record that has moved on, including a stop request, is left alone.
func (c *Coordinator) Refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.current
	if active == nil {
		return
	}
	phase := active.getPhase()
	if !phase.IsActive() {
		return
	}
	stored, ok, err := c.state.LoadState(ctx)
	if err != nil || !ok || stored.SessionID != active.id || stored.Phase != phase {
		return
	}
	stored.Timestamp = domain.EpochSeconds(c.clock.Now())
	if err := c.state.SaveState(ctx, stored); err != nil {
		slog.Warn("session refresh failed", "session", active.id, "error", err)
	}
}

// IsCurrent reports whether sessionID is the active session.
func (c *Coordinator) IsCurrent(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.id == sessionID
}

// Wait blocks until in-flight transcriptions and history writes finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
	c.pipeline.Wait()
}

// Shutdown ends the active session with an error record so a waiting
// requester is released, then waits for background work.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.ctrl.Lock()
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active != nil {
		if active.getPhase() == domain.PhaseRecording {
			if rec, ok, _ := c.capture.Stop(); ok {
				removeRecording(rec)
			}
		}
		state := domain.NewState(active.id, domain.PhaseError, c.clock.Now())
		state.Error = "Dictation host stopped"
		c.publish(active, state, domain.SessionReasonRecordingDiscarded)
	}
	c.ctrl.Unlock()

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) transcribe(active *activeSession, recording ports.Recording) {
	defer c.wg.Done()
	defer removeRecording(recording)

	ctx, cancel := context.WithTimeout(active.ctx, c.cfg.TranscribeTimeout)
	defer cancel()

	result, err := c.pipeline.Run(ctx, active.id, recording)
	if err != nil {
		if active.ctx.Err() != nil {
			slog.Info("transcription abandoned", "session", active.id, "error", err)
			return
		}
		slog.Error("transcription failed", "session", active.id, "error", err)
		c.fail(active, err, domain.ErrorCodeTranscription, domain.SessionReasonTranscriptionFailed)
		return
	}

	state := domain.NewState(active.id, domain.PhaseComplete, c.clock.Now())
	state.Text = result.Final
	reason := domain.SessionReasonTranscriptReady
	switch {
	case result.Final == "":
		reason = domain.SessionReasonNoTranscript
	case result.EnhancementSkipped:
		reason = domain.SessionReasonEnhancementSkipped
	}
	if c.publish(active, state, reason) {
		slog.Info("transcript ready", "session", active.id, "chars", len(result.Final), "enhanced", result.Enhanced)
	}
}

// discard abandons a superseded session without publishing anything for it.
func (c *Coordinator) discard(previous *activeSession) {
	phase := previous.getPhase()
	previous.cancel()
	if phase == domain.PhaseRecording {
		if rec, ok, _ := c.capture.Stop(); ok {
			removeRecording(rec)
		}
	}
	slog.Info("session superseded", "session", previous.id, "phase", phase)
	c.events.SessionStateChanged(previous.id, domain.PhaseIdle, domain.SessionReasonRecordingDiscarded)
}

func (c *Coordinator) fail(active *activeSession, err error, code domain.ErrorCode, reason domain.SessionStateReason) {
	state := domain.NewState(active.id, domain.PhaseError, c.clock.Now())
	state.Error = userMessage(err)
	if c.publish(active, state, reason) {
		c.events.SessionError(active.id, code, err.Error())
	}
}

// publish writes state only if active is still the current session, so a
// superseded session can never overwrite a newer one. Terminal records end
// the session. A fresh start request for some other session that the
// listener has not picked up yet is left in place; the session still
// advances locally.
func (c *Coordinator) publish(active *activeSession, state domain.DictationState, reason domain.SessionStateReason) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		slog.Debug("dropping write for superseded session", "session", active.id, "phase", state.Phase, "error", domain.ErrStaleSession)
		c.events.SessionStateChanged(active.id, state.Phase, domain.SessionReasonStaleResultDiscarded)
		return false
	}
	active.setPhase(state.Phase)
	if state.Phase.IsTerminal() {
		c.current = nil
		active.cancel()
	}

	if pending, ok := c.pendingRequest(ctx, active.id); ok {
		c.mu.Unlock()
		slog.Info("newer request pending, not overwriting", "session", active.id, "phase", state.Phase, "pending", pending)
		c.events.SessionStateChanged(active.id, state.Phase, domain.SessionReasonStaleResultDiscarded)
		return true
	}

	err := c.state.SaveState(ctx, state)
	c.mu.Unlock()

	if err != nil {
		slog.Error("state write failed", "session", active.id, "phase", state.Phase, "error", err)
		c.events.SessionError(active.id, domain.ErrorCodeStateStore, err.Error())
	}
	if err := c.notifier.Post(ctx); err != nil {
		slog.Debug("notify failed", "error", err)
	}
	c.events.SessionStateChanged(active.id, state.Phase, reason)
	return true
}

// pendingRequest reports a live start request for a session other than id.
func (c *Coordinator) pendingRequest(ctx context.Context, id string) (string, bool) {
	stored, ok, err := c.state.LoadState(ctx)
	if err != nil || !ok {
		return "", false
	}
	if stored.SessionID == id || stored.Phase != domain.PhaseStartRequested || stored.IsStale(c.clock.Now()) {
		return "", false
	}
	return stored.SessionID, true
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCaptureStart):
		return fmt.Sprintf("Microphone unavailable: %v", err)
	case errors.Is(err, domain.ErrCaptureProduce):
		return "No audio was recorded"
	case errors.Is(err, context.DeadlineExceeded):
		return "Transcription timed out"
	default:
		return err.Error()
	}
}

func removeRecording(rec ports.Recording) {
	if rec.Path == "" {
		return
	}
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("remove recording", "path", rec.Path, "error", err)
	}
}
