package ports

import (
	"context"
	"time"

	"relaymic/internal/domain"
)

// StateStore is the process-shared key/value store. Writes are
// last-write-wins; there are no transactions.
type StateStore interface {
	// LoadState returns ok=false when no record exists or it cannot be decoded.
	LoadState(ctx context.Context) (state domain.DictationState, ok bool, err error)
	SaveState(ctx context.Context, state domain.DictationState) error
	LoadLiveness(ctx context.Context) (domain.Liveness, error)
	SaveLiveness(ctx context.Context, liveness domain.Liveness) error
}

// Notifier is a payload-free, best-effort "something changed" signal.
// Subscribers coalesce bursts; nothing may depend on delivery.
type Notifier interface {
	Post(ctx context.Context) error
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	// Dir receives the recorded audio file.
	Dir string
}

// Recording is the handle to captured audio, a 16-bit PCM WAV file.
type Recording struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// AudioSession is a live capture session.
type AudioSession interface {
	// Level returns the dBFS level of the most recent audio, ok=false before
	// any audio arrived.
	Level() (dbfs float64, ok bool)
	// Stop halts capture and finalizes the recording.
	Stop() (Recording, error)
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// TranscribeOptions carries per-user engine settings.
type TranscribeOptions struct {
	Language   string
	Vocabulary []string
}

// SpeechEngine turns a recording into text.
type SpeechEngine interface {
	Name() string
	Transcribe(ctx context.Context, recording Recording, opts TranscribeOptions) (string, error)
}

// EnhanceRequest is the input to one enhancement pass.
type EnhanceRequest struct {
	Text       string
	AgentName  string
	Mode       domain.EnhanceMode
	Vocabulary []string
}

// TextEnhancer rewrites a transcript. Callers treat any error as "keep the
// raw text".
type TextEnhancer interface {
	Name() string
	Enhance(ctx context.Context, req EnhanceRequest) (string, error)
}

// TranscriptEntry is one persisted transcript.
type TranscriptEntry struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"sessionId"`
	Text             string        `json:"text"`
	RawText          string        `json:"rawText,omitempty"`
	Source           string        `json:"source"`
	Engine           string        `json:"engine"`
	Language         string        `json:"language,omitempty"`
	Processed        bool          `json:"processed"`
	ProcessingMethod string        `json:"processingMethod,omitempty"`
	AudioDuration    time.Duration `json:"audioDuration"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// TranscriptStore persists transcripts off the critical path.
type TranscriptStore interface {
	Record(ctx context.Context, entry TranscriptEntry) error
}

// TextContext is the requester's active text field.
type TextContext interface {
	// Before returns the text preceding the insertion point.
	Before(ctx context.Context) (string, error)
	Insert(ctx context.Context, text string) error
}

// Activator launches or wakes the host for a session.
type Activator interface {
	Activate(ctx context.Context, uri string) error
}

// EventSink receives host lifecycle events.
type EventSink interface {
	SessionStateChanged(sessionID string, phase domain.Phase, reason domain.SessionStateReason)
	SessionError(sessionID string, code domain.ErrorCode, detail string)
}

// StatusView renders requester status.
type StatusView interface {
	Render(status domain.RequesterStatus)
}
