// Package google transcribes recordings with Cloud Speech-to-Text.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"relaymic/internal/audio"
	"relaymic/internal/ports"
)

// Recognizer is the subset of the speech client the engine calls.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
}

type Config struct {
	// DefaultLanguage is used when no language is configured; Google needs one.
	DefaultLanguage string
	Model           string
}

// Engine implements ports.SpeechEngine. The client is created lazily so that
// a missing credential only fails the session that needs it.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	recognizer Recognizer
	closer     func() error
}

func NewEngine(cfg Config) *Engine {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en-US"
	}
	return &Engine{cfg: cfg}
}

// NewEngineWithRecognizer uses an existing client.
func NewEngineWithRecognizer(cfg Config, recognizer Recognizer) *Engine {
	engine := NewEngine(cfg)
	engine.recognizer = recognizer
	return engine
}

func (e *Engine) Name() string { return "google" }

func (e *Engine) Transcribe(ctx context.Context, recording ports.Recording, opts ports.TranscribeOptions) (string, error) {
	recognizer, err := e.client(ctx)
	if err != nil {
		return "", err
	}

	pcm, err := audio.ReadRecording(recording)
	if err != nil {
		return "", err
	}

	resp, err := recognizer.Recognize(ctx, buildRequest(e.cfg, recording, opts, pcm))
	if err != nil {
		return "", fmt.Errorf("google recognize: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closer == nil {
		return nil
	}
	err := e.closer()
	e.closer = nil
	e.recognizer = nil
	return err
}

func (e *Engine) client(ctx context.Context) (Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer != nil {
		return e.recognizer, nil
	}
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Google Speech client: %w", err)
	}
	e.recognizer = recognizeFunc(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	})
	e.closer = client.Close
	return e.recognizer, nil
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

func (f recognizeFunc) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return f(ctx, req)
}

func buildRequest(cfg Config, recording ports.Recording, opts ports.TranscribeOptions, pcm []byte) *speechpb.RecognizeRequest {
	language := strings.TrimSpace(opts.Language)
	if language == "" || strings.EqualFold(language, "auto") {
		language = cfg.DefaultLanguage
	}

	config := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(recording.SampleRate),
		AudioChannelCount:          int32(recording.Channels),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
		Model:                      cfg.Model,
	}
	if len(opts.Vocabulary) > 0 {
		config.SpeechContexts = []*speechpb.SpeechContext{{Phrases: opts.Vocabulary}}
	}

	return &speechpb.RecognizeRequest{
		Config: config,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}
}
