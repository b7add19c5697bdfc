package domain

import (
	"math"
	"time"
)

// Phase is the lifecycle position of the shared dictation record.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseStartRequested Phase = "startRequested"
	PhaseRecording      Phase = "recording"
	PhaseTranscribing   Phase = "transcribing"
	PhaseComplete       Phase = "complete"
	PhaseError          Phase = "error"
)

// IsTerminal reports whether only a reset to idle may follow.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// IsActive reports whether the host owns a live capture or transcription.
func (p Phase) IsActive() bool {
	return p == PhaseRecording || p == PhaseTranscribing
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseStartRequested, PhaseRecording, PhaseTranscribing, PhaseComplete, PhaseError:
		return true
	default:
		return false
	}
}

// DictationState is the single shared record of session truth. SessionID is
// the fencing token every observer compares against the session it tracks.
type DictationState struct {
	SessionID string  `json:"sessionId"`
	Phase     Phase   `json:"phase"`
	Text      string  `json:"text,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// NewState stamps a record with the given write time.
func NewState(sessionID string, phase Phase, now time.Time) DictationState {
	return DictationState{SessionID: sessionID, Phase: phase, Timestamp: EpochSeconds(now)}
}

// StopRequest builds the sentinel asking the host to stop sessionID.
func StopRequest(sessionID string, now time.Time) DictationState {
	state := NewState(sessionID, PhaseStartRequested, now)
	state.Text = StopSentinel
	return state
}

func (s DictationState) IsStopRequest() bool {
	return s.Phase == PhaseStartRequested && s.Text == StopSentinel
}

// IsStale reports whether the record is too old to describe a live session.
func (s DictationState) IsStale(now time.Time) bool {
	return olderThan(s.Timestamp, now, StaleAfter)
}

func (s DictationState) Time() time.Time {
	return FromEpochSeconds(s.Timestamp)
}

// Liveness is the host's proof that it can receive requests without being
// launched.
type Liveness struct {
	Active        bool    `json:"active" yaml:"active"`
	LastHeartbeat float64 `json:"lastHeartbeat" yaml:"lastHeartbeat"`
}

// IsAlive reports whether the host flagged itself active within StaleAfter.
func (l Liveness) IsAlive(now time.Time) bool {
	return l.Active && !olderThan(l.LastHeartbeat, now, StaleAfter)
}

func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func FromEpochSeconds(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

func olderThan(timestamp float64, now time.Time, limit time.Duration) bool {
	if timestamp <= 0 {
		return true
	}
	return now.Sub(FromEpochSeconds(timestamp)) > limit
}

// StopReason identifies which trigger ended a recording.
type StopReason string

const (
	StopReasonExplicit    StopReason = "explicit"
	StopReasonSilence     StopReason = "silence"
	StopReasonMaxDuration StopReason = "max_duration"
)

// SessionStateReason provides a structured reason for host transitions.
type SessionStateReason string

const (
	SessionReasonHostReady            SessionStateReason = "host_ready"
	SessionReasonRecordingStarted     SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted   SessionStateReason = "recording_restarted"
	SessionReasonStopRequested        SessionStateReason = "stop_requested"
	SessionReasonSilenceDetected      SessionStateReason = "silence_detected"
	SessionReasonMaxDurationReached   SessionStateReason = "max_duration_reached"
	SessionReasonTranscriptReady      SessionStateReason = "transcript_ready"
	SessionReasonEnhancementSkipped   SessionStateReason = "enhancement_skipped"
	SessionReasonNoTranscript         SessionStateReason = "no_transcript"
	SessionReasonRecordingDiscarded   SessionStateReason = "recording_discarded"
	SessionReasonStaleResultDiscarded SessionStateReason = "stale_result_discarded"
	SessionReasonTranscriptionFailed  SessionStateReason = "transcription_failed"
	SessionReasonCaptureFailed        SessionStateReason = "capture_failed"
)

// StopReasonState maps an auto-stop trigger onto the reason reported to sinks.
func StopReasonState(reason StopReason) SessionStateReason {
	switch reason {
	case StopReasonSilence:
		return SessionReasonSilenceDetected
	case StopReasonMaxDuration:
		return SessionReasonMaxDurationReached
	default:
		return SessionReasonStopRequested
	}
}

// ErrorCode identifies non-fatal and fatal host errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeCaptureStart  ErrorCode = "capture_start"
	ErrorCodeCaptureStop   ErrorCode = "capture_stop"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeEnhancement   ErrorCode = "enhancement"
	ErrorCodeStateStore    ErrorCode = "state_store"
	ErrorCodeHistory       ErrorCode = "history"
)

// EnhanceMode selects the enhancement prompt.
type EnhanceMode string

const (
	EnhanceModeCleanup EnhanceMode = "cleanup"
	EnhanceModeAgent   EnhanceMode = "agent"
)

// HostStatus summarizes the coordinator's in-memory view.
type HostStatus struct {
	SessionID string `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	Phase     Phase  `json:"phase" yaml:"phase"`
	Active    bool   `json:"active" yaml:"active"`
}

// RequesterStatus is what a requester renders for the user.
type RequesterStatus struct {
	SessionID string `json:"sessionId,omitempty"`
	Phase     Phase  `json:"phase"`
	Message   string `json:"message,omitempty"`
	Inserted  string `json:"inserted,omitempty"`
}
