package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/notify"
	"relaymic/internal/sched"
	"relaymic/internal/sharedstate"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type hostHarness struct {
	clock       *sched.Manual
	store       *sharedstate.Memory
	hub         *notify.Hub
	capture     *fakeAudioCapture
	engine      *fakeEngine
	enhancer    *fakeEnhancer
	history     *fakeHistory
	events      *fakeEventSink
	coordinator *Coordinator
}

func newHostHarness(t *testing.T, sessions ...*fakeAudioSession) *hostHarness {
	t.Helper()

	h := &hostHarness{
		clock:    sched.NewManual(testEpoch),
		store:    sharedstate.NewMemory(),
		hub:      notify.NewHub(),
		capture:  &fakeAudioCapture{sessions: sessions},
		engine:   &fakeEngine{text: "hello world"},
		enhancer: &fakeEnhancer{},
		history:  &fakeHistory{},
		events:   &fakeEventSink{},
	}
	capture := NewCapturePipeline(h.capture, h.clock, CaptureConfig{})
	pipeline := NewTranscriptionPipeline(h.engine, h.enhancer, h.history, h.events, TranscriptionConfig{Language: "en"})
	h.coordinator = NewCoordinator(h.store, h.hub, capture, pipeline, h.events, h.clock, CoordinatorConfig{})
	t.Cleanup(h.coordinator.Wait)
	return h
}

func (h *hostHarness) request(t *testing.T, sessionID string) {
	t.Helper()
	if err := h.store.SaveState(context.Background(), domain.NewState(sessionID, domain.PhaseStartRequested, h.clock.Now())); err != nil {
		t.Fatalf("save request: %v", err)
	}
}

func (h *hostHarness) state(t *testing.T) domain.DictationState {
	t.Helper()
	state, ok, err := h.store.LoadState(context.Background())
	if err != nil || !ok {
		t.Fatalf("load state ok=%v err=%v", ok, err)
	}
	return state
}

func (h *hostHarness) expectPhase(t *testing.T, sessionID string, phase domain.Phase) domain.DictationState {
	t.Helper()
	state := h.state(t)
	if state.SessionID != sessionID || state.Phase != phase {
		t.Fatalf("expected %s/%s, got %s/%s", sessionID, phase, state.SessionID, state.Phase)
	}
	return state
}

func TestCoordinatorSilenceStopsAtThreshold(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-60)
	h := newHostHarness(t, audio)
	h.request(t, "S1")

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.expectPhase(t, "S1", domain.PhaseRecording)

	h.clock.Advance(2800 * time.Millisecond)
	h.expectPhase(t, "S1", domain.PhaseRecording)
	if audio.stops() != 0 {
		t.Fatalf("capture stopped before the silence window elapsed")
	}

	h.clock.Advance(200 * time.Millisecond)
	if audio.stops() != 1 {
		t.Fatalf("expected capture stop at 3000ms, got %d stops", audio.stops())
	}
	h.coordinator.Wait()

	state := h.expectPhase(t, "S1", domain.PhaseComplete)
	if state.Text != "hello world" {
		t.Fatalf("unexpected text %q", state.Text)
	}
	if !h.events.hasReason("S1", domain.SessionReasonSilenceDetected) {
		t.Fatalf("expected silence_detected event")
	}
	if !h.events.hasReason("S1", domain.SessionReasonTranscriptReady) {
		t.Fatalf("expected transcript_ready event")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected all capture timers cancelled, %d pending", h.clock.Pending())
	}
}

func TestCoordinatorSilenceRecoveryPreventsStop(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-60)
	h := newHostHarness(t, audio)
	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	h.clock.Advance(1800 * time.Millisecond)
	audio.setLevel(-20)
	h.clock.Advance(200 * time.Millisecond)
	h.clock.Advance(4 * time.Second)

	h.expectPhase(t, "S1", domain.PhaseRecording)
	if audio.stops() != 0 {
		t.Fatalf("recovered silence must not auto-stop")
	}

	audio.setLevel(-55)
	h.clock.Advance(3200 * time.Millisecond)
	if audio.stops() != 1 {
		t.Fatalf("expected a new silent period to stop capture")
	}
}

func TestCoordinatorMaxDurationForcesStop(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-12)
	h := newHostHarness(t, audio)
	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	h.clock.Advance(domain.MaxCaptureDuration - time.Millisecond)
	h.expectPhase(t, "S1", domain.PhaseRecording)

	h.clock.Advance(time.Millisecond)
	h.coordinator.Wait()
	h.expectPhase(t, "S1", domain.PhaseComplete)
	if !h.events.hasReason("S1", domain.SessionReasonMaxDurationReached) {
		t.Fatalf("expected max_duration_reached event")
	}
}

func TestCoordinatorBeginIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t, newFakeAudioSession(-10))
	for i := 0; i < 3; i++ {
		if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
	}
	if h.capture.startCalls() != 1 {
		t.Fatalf("expected one capture start, got %d", h.capture.startCalls())
	}
	status := h.coordinator.Status()
	if status.SessionID != "S1" || status.Phase != domain.PhaseRecording || !status.Active {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCoordinatorNewRequestSupersedesActiveSession(t *testing.T) {
	t.Parallel()

	first := newFakeAudioSession(-10)
	second := newFakeAudioSession(-10)
	h := newHostHarness(t, first, second)

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin S1: %v", err)
	}
	if err := h.coordinator.Begin(context.Background(), "S2"); err != nil {
		t.Fatalf("begin S2: %v", err)
	}

	if first.stops() != 1 {
		t.Fatalf("expected S1 capture stopped before S2 began")
	}
	h.expectPhase(t, "S2", domain.PhaseRecording)
	if !h.events.hasReason("S1", domain.SessionReasonRecordingDiscarded) {
		t.Fatalf("expected S1 discard event")
	}
	if !h.events.hasReason("S2", domain.SessionReasonRecordingRestarted) {
		t.Fatalf("expected S2 restart event")
	}

	if h.coordinator.StopSession("S1", domain.StopReasonExplicit) {
		t.Fatalf("stop for superseded session must be ignored")
	}
	h.expectPhase(t, "S2", domain.PhaseRecording)

	if err := h.coordinator.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	h.coordinator.Wait()
	h.expectPhase(t, "S2", domain.PhaseComplete)
	if h.engine.callCount() != 1 {
		t.Fatalf("expected only S2 transcribed, got %d calls", h.engine.callCount())
	}
}

func TestCoordinatorDiscardsLateResultOfSupersededSession(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t, newFakeAudioSession(-10), newFakeAudioSession(-10))
	release := make(chan struct{})
	h.engine.release = release

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin S1: %v", err)
	}
	if !h.coordinator.StopSession("S1", domain.StopReasonExplicit) {
		t.Fatalf("expected S1 stop")
	}
	h.expectPhase(t, "S1", domain.PhaseTranscribing)

	if err := h.coordinator.Begin(context.Background(), "S2"); err != nil {
		t.Fatalf("begin S2: %v", err)
	}
	close(release)
	h.coordinator.Wait()

	h.expectPhase(t, "S2", domain.PhaseRecording)
	if !h.events.hasReason("S1", domain.SessionReasonStaleResultDiscarded) {
		t.Fatalf("expected stale_result_discarded for S1")
	}
}

func TestCoordinatorDuplicateStopIsIgnored(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-10)
	h := newHostHarness(t, audio)
	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !h.coordinator.StopSession("S1", domain.StopReasonExplicit) {
		t.Fatalf("expected first stop to apply")
	}
	if h.coordinator.StopSession("S1", domain.StopReasonSilence) {
		t.Fatalf("expected second stop to be ignored")
	}
	h.coordinator.Wait()
	if audio.stops() != 1 || h.engine.callCount() != 1 {
		t.Fatalf("expected one stop and one transcription, got %d/%d", audio.stops(), h.engine.callCount())
	}
}

func TestCoordinatorEngineFailureWritesError(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t, newFakeAudioSession(-10))
	h.engine.err = errors.New("network unreachable")

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.coordinator.StopSession("S1", domain.StopReasonExplicit)
	h.coordinator.Wait()

	state := h.expectPhase(t, "S1", domain.PhaseError)
	if !strings.Contains(state.Error, "network unreachable") || state.Text != "" {
		t.Fatalf("unexpected error record %+v", state)
	}
	if !h.events.hasError(domain.ErrorCodeTranscription) {
		t.Fatalf("expected transcription error event")
	}
	if h.coordinator.Status().Active {
		t.Fatalf("error must end the session")
	}
}

func TestCoordinatorCaptureStartFailureWritesError(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t)
	h.capture.err = errors.New("device busy")

	err := h.coordinator.Begin(context.Background(), "S1")
	if !errors.Is(err, domain.ErrCaptureStart) {
		t.Fatalf("expected ErrCaptureStart, got %v", err)
	}
	state := h.expectPhase(t, "S1", domain.PhaseError)
	if !strings.HasPrefix(state.Error, "Microphone unavailable") {
		t.Fatalf("unexpected message %q", state.Error)
	}
	if h.coordinator.Status().Phase != domain.PhaseIdle {
		t.Fatalf("expected idle coordinator after failed start")
	}
}

func TestCoordinatorNoAudioWritesError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-10)
	audio.stopErr = domain.ErrCaptureProduce
	h := newHostHarness(t, audio)

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.coordinator.StopSession("S1", domain.StopReasonExplicit)
	h.coordinator.Wait()

	state := h.expectPhase(t, "S1", domain.PhaseError)
	if state.Error != "No audio was recorded" {
		t.Fatalf("unexpected message %q", state.Error)
	}
	if h.engine.callCount() != 0 {
		t.Fatalf("engine must not run without audio")
	}
}

func TestCoordinatorLeavesPendingRequestInPlace(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t, newFakeAudioSession(-10))
	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.request(t, "S2")

	if err := h.coordinator.RequestStop(); err != nil {
		t.Fatalf("request stop: %v", err)
	}
	h.coordinator.Wait()

	h.expectPhase(t, "S2", domain.PhaseStartRequested)
	if h.coordinator.Status().Active {
		t.Fatalf("S1 should have finished locally")
	}
}

func TestCoordinatorRequestStopWithoutSession(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t)
	if err := h.coordinator.RequestStop(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestCoordinatorShutdownReleasesRecordingSession(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(-10)
	h := newHostHarness(t, audio)
	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := h.coordinator.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	state := h.expectPhase(t, "S1", domain.PhaseError)
	if state.Error != "Dictation host stopped" {
		t.Fatalf("unexpected message %q", state.Error)
	}
	if audio.stops() != 1 || h.engine.callCount() != 0 {
		t.Fatalf("expected capture stopped without transcription")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no timers after shutdown")
	}
}

func TestCoordinatorStoreFailureDoesNotAbortSession(t *testing.T) {
	t.Parallel()

	h := newHostHarness(t, newFakeAudioSession(-10))
	h.store.SetFailWrites(true)

	if err := h.coordinator.Begin(context.Background(), "S1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !h.events.hasError(domain.ErrorCodeStateStore) {
		t.Fatalf("expected state store error event")
	}

	h.store.SetFailWrites(false)
	h.coordinator.StopSession("S1", domain.StopReasonExplicit)
	h.coordinator.Wait()
	h.expectPhase(t, "S1", domain.PhaseComplete)
}
