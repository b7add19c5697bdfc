package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"relaymic/internal/domain"
	"relaymic/internal/ports"
)

// TranscriptionConfig is the user's engine and enhancement preference.
type TranscriptionConfig struct {
	Language   string
	Vocabulary []string
	// AgentName switches enhancement to agent mode when spoken.
	AgentName          string
	EnhancementEnabled bool
	HistoryTimeout     time.Duration
}

// TranscriptResult is the outcome of one pipeline run.
type TranscriptResult struct {
	Raw      string
	Final    string
	Enhanced bool
	Mode     domain.EnhanceMode
	// EnhancementSkipped is set when an enabled pass failed or returned
	// nothing and the raw text was kept.
	EnhancementSkipped bool
}

// TranscriptionPipeline sequences one speech-to-text call and an optional
// enhancement call, then records the result in history.
type TranscriptionPipeline struct {
	engine   ports.SpeechEngine
	enhancer ports.TextEnhancer
	history  ports.TranscriptStore
	events   ports.EventSink
	cfg      TranscriptionConfig

	pending sync.WaitGroup
}

// NewTranscriptionPipeline accepts nil enhancer and history.
func NewTranscriptionPipeline(
	engine ports.SpeechEngine,
	enhancer ports.TextEnhancer,
	history ports.TranscriptStore,
	events ports.EventSink,
	cfg TranscriptionConfig,
) *TranscriptionPipeline {
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = 5 * time.Second
	}
	return &TranscriptionPipeline{engine: engine, enhancer: enhancer, history: history, events: events, cfg: cfg}
}

func (p *TranscriptionPipeline) Run(ctx context.Context, sessionID string, recording ports.Recording) (TranscriptResult, error) {
	raw, err := p.engine.Transcribe(ctx, recording, ports.TranscribeOptions{
		Language:   p.cfg.Language,
		Vocabulary: p.cfg.Vocabulary,
	})
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}

	result := TranscriptResult{Raw: strings.TrimSpace(raw)}
	result.Final = result.Raw
	if result.Raw == "" {
		return result, nil
	}

	if p.shouldEnhance() {
		result.Mode = enhanceMode(result.Raw, p.cfg.AgentName)
		enhanced, err := p.enhancer.Enhance(ctx, ports.EnhanceRequest{
			Text:       result.Raw,
			AgentName:  p.cfg.AgentName,
			Mode:       result.Mode,
			Vocabulary: p.cfg.Vocabulary,
		})
		enhanced = strings.TrimSpace(enhanced)
		switch {
		case err != nil:
			slog.Warn("enhancement skipped", "session", sessionID, "enhancer", p.enhancer.Name(), "error", fmt.Errorf("%w: %v", domain.ErrEnhancement, err))
			p.events.SessionError(sessionID, domain.ErrorCodeEnhancement, err.Error())
			result.EnhancementSkipped = true
		case enhanced == "":
			slog.Warn("enhancement returned nothing", "session", sessionID, "enhancer", p.enhancer.Name())
			result.EnhancementSkipped = true
		default:
			result.Final = enhanced
			result.Enhanced = true
		}
	}

	p.record(sessionID, recording, result)
	return result, nil
}

// Wait blocks until queued history writes finish.
func (p *TranscriptionPipeline) Wait() {
	p.pending.Wait()
}

func (p *TranscriptionPipeline) shouldEnhance() bool {
	return p.enhancer != nil && p.cfg.EnhancementEnabled
}

func (p *TranscriptionPipeline) record(sessionID string, recording ports.Recording, result TranscriptResult) {
	if p.history == nil {
		return
	}
	entry := ports.TranscriptEntry{
		SessionID:     sessionID,
		Text:          result.Final,
		RawText:       result.Raw,
		Source:        "keyboard",
		Engine:        p.engine.Name(),
		Language:      p.cfg.Language,
		Processed:     result.Enhanced,
		AudioDuration: recording.Duration,
	}
	if result.Enhanced {
		entry.ProcessingMethod = p.enhancer.Name() + ":" + string(result.Mode)
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HistoryTimeout)
		defer cancel()
		if err := p.history.Record(ctx, entry); err != nil {
			slog.Warn("history write failed", "session", sessionID, "error", err)
			p.events.SessionError(sessionID, domain.ErrorCodeHistory, err.Error())
		}
	}()
}

func enhanceMode(text, agentName string) domain.EnhanceMode {
	name := strings.ToLower(strings.TrimSpace(agentName))
	if name != "" && strings.Contains(strings.ToLower(text), name) {
		return domain.EnhanceModeAgent
	}
	return domain.EnhanceModeCleanup
}
