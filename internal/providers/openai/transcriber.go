package openai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"

	"relaymic/internal/ports"
)

var defaultTranscriptionModels = map[Provider]string{
	ProviderOpenAI:  "gpt-4o-mini-transcribe",
	ProviderGroq:    "whisper-large-v3-turbo",
	ProviderMistral: "voxtral-mini-latest",
}

// Transcriber implements ports.SpeechEngine over /audio/transcriptions.
type Transcriber struct {
	cfg    ClientConfig
	client openai.Client
}

func NewTranscriber(cfg ClientConfig) (*Transcriber, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderGroq, ProviderMistral:
	default:
		return nil, fmt.Errorf("provider %q does not offer transcription", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = defaultTranscriptionModels[cfg.Provider]
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Transcriber{cfg: cfg, client: client}, nil
}

func (t *Transcriber) Name() string { return string(t.cfg.Provider) }

func (t *Transcriber) Transcribe(ctx context.Context, recording ports.Recording, opts ports.TranscribeOptions) (string, error) {
	file, err := os.Open(recording.Path)
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  file,
		Model: openai.AudioModel(t.cfg.Model),
	}
	if language := strings.TrimSpace(opts.Language); language != "" && !strings.EqualFold(language, "auto") {
		params.Language = openai.String(language)
	}
	if len(opts.Vocabulary) > 0 {
		params.Prompt = openai.String(strings.Join(opts.Vocabulary, ", "))
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", describeError(t.cfg.Provider, "transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
