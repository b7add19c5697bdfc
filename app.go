package main

import (
	"log/slog"

	"relaymic/internal/domain"
	"relaymic/internal/feedback"
)

// App is the host's event sink: it logs lifecycle transitions and plays the
// configured cues.
type App struct {
	cues *feedback.Cues
}

func NewApp(cues *feedback.Cues) *App {
	return &App{cues: cues}
}

// SessionStateChanged logs a host transition and cues the user on the ones
// they can hear.
func (a *App) SessionStateChanged(sessionID string, phase domain.Phase, reason domain.SessionStateReason) {
	slog.Info(sessionReasonMessage(reason),
		"session", sessionID,
		"phase", phase,
		"reason", reason,
	)
	switch reason {
	case domain.SessionReasonRecordingStarted, domain.SessionReasonRecordingRestarted:
		a.cues.RecordingStarted()
	case domain.SessionReasonStopRequested, domain.SessionReasonSilenceDetected, domain.SessionReasonMaxDurationReached:
		a.cues.RecordingStopped()
	case domain.SessionReasonTranscriptReady:
		a.cues.TranscriptReady()
	}
}

// SessionError logs a host error. Only errors that end a session are cued.
func (a *App) SessionError(sessionID string, code domain.ErrorCode, detail string) {
	slog.Warn(errorMessage(code, detail),
		"session", sessionID,
		"code", code,
		"detail", detail,
	)
	switch code {
	case domain.ErrorCodeEnhancement, domain.ErrorCodeHistory:
		return
	}
	a.cues.Failed(errorMessage(code, detail))
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonHostReady:
		return "Host ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingRestarted:
		return "Recording restarted; previous capture discarded"
	case domain.SessionReasonStopRequested:
		return "Recording stopped. Transcribing..."
	case domain.SessionReasonSilenceDetected:
		return "Silence detected. Transcribing..."
	case domain.SessionReasonMaxDurationReached:
		return "Maximum duration reached. Transcribing..."
	case domain.SessionReasonTranscriptReady:
		return "Transcript ready"
	case domain.SessionReasonEnhancementSkipped:
		return "Transcript ready (enhancement skipped)"
	case domain.SessionReasonNoTranscript:
		return "No transcript captured"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonStaleResultDiscarded:
		return "Result from a superseded session discarded"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonCaptureFailed:
		return "Microphone capture failed"
	default:
		return "Session updated"
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCaptureStart:
		return "Microphone unavailable"
	case domain.ErrorCodeCaptureStop:
		return "Audio stop issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeEnhancement:
		return "Enhancement failed"
	case domain.ErrorCodeStateStore:
		return "Shared state unavailable"
	case domain.ErrorCodeHistory:
		return "History write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
