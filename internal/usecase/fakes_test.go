package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeAudioCapture) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudioSession struct {
	mu        sync.Mutex
	level     float64
	hasLevel  bool
	recording ports.Recording
	stopErr   error
	stopCalls int
}

func newFakeAudioSession(level float64) *fakeAudioSession {
	return &fakeAudioSession{
		level:     level,
		hasLevel:  true,
		recording: ports.Recording{Duration: 4 * time.Second, SampleRate: 16000, Channels: 1},
	}
}

func (f *fakeAudioSession) setLevel(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = level
	f.hasLevel = true
}

func (f *fakeAudioSession) Level() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, f.hasLevel
}

func (f *fakeAudioSession) Stop() (ports.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return ports.Recording{}, f.stopErr
	}
	return f.recording, nil
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeEngine struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	opts  ports.TranscribeOptions
	// release, when set, holds Transcribe until closed, ignoring ctx.
	release chan struct{}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Transcribe(_ context.Context, _ ports.Recording, opts ports.TranscribeOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.opts = opts
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEnhancer struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
	last  ports.EnhanceRequest
}

func (f *fakeEnhancer) Name() string { return "fake-llm" }

func (f *fakeEnhancer) Enhance(_ context.Context, req ports.EnhanceRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.out, f.err
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []ports.TranscriptEntry
	err     error
}

func (f *fakeHistory) Record(_ context.Context, entry ports.TranscriptEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) snapshot() []ports.TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.TranscriptEntry(nil), f.entries...)
}

type stateEvent struct {
	sessionID string
	phase     domain.Phase
	reason    domain.SessionStateReason
}

type errEvent struct {
	sessionID string
	code      domain.ErrorCode
	detail    string
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []stateEvent
	errors []errEvent
}

func (f *fakeEventSink) SessionStateChanged(sessionID string, phase domain.Phase, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{sessionID: sessionID, phase: phase, reason: reason})
}

func (f *fakeEventSink) SessionError(sessionID string, code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{sessionID: sessionID, code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) hasReason(sessionID string, reason domain.SessionStateReason) bool {
	for _, event := range f.snapshotStates() {
		if event.sessionID == sessionID && event.reason == reason {
			return true
		}
	}
	return false
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, event := range f.snapshotErrors() {
		if event.code == code {
			return true
		}
	}
	return false
}

type fakeTextContext struct {
	mu        sync.Mutex
	before    string
	beforeErr error
	insertErr error
	inserted  []string
}

func (f *fakeTextContext) Before(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.before, f.beforeErr
}

func (f *fakeTextContext) Insert(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, text)
	return nil
}

func (f *fakeTextContext) snapshot() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.inserted, "")
}

func (f *fakeTextContext) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

type fakeView struct {
	mu       sync.Mutex
	statuses []domain.RequesterStatus
}

func (f *fakeView) Render(status domain.RequesterStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeView) last() domain.RequesterStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return domain.RequesterStatus{}
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakeView) sawMessage(message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, status := range f.statuses {
		if status.Message == message {
			return true
		}
	}
	return false
}

type fakeActivator struct {
	mu   sync.Mutex
	uris []string
	err  error
}

func (f *fakeActivator) Activate(_ context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uris = append(f.uris, uri)
	return f.err
}

func (f *fakeActivator) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uris...)
}
