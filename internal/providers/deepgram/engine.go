// Package deepgram transcribes recordings over Deepgram's streaming listen
// websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"relaymic/internal/audio"
	"relaymic/internal/ports"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultModel   = "nova-2"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
	// ChunkSize is the number of PCM bytes per websocket frame.
	ChunkSize int
	// FinalizeTimeout bounds the wait for results after CloseStream.
	FinalizeTimeout time.Duration
}

// Engine implements ports.SpeechEngine.
type Engine struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewEngine(cfg Config) *Engine {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	return &Engine{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (e *Engine) Name() string { return "deepgram" }

func (e *Engine) Transcribe(ctx context.Context, recording ports.Recording, opts ports.TranscribeOptions) (string, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}

	pcm, err := audio.ReadRecording(recording)
	if err != nil {
		return "", err
	}

	s, err := e.openStream(ctx, streamConfig{
		SampleRate: recording.SampleRate,
		Channels:   recording.Channels,
		Encoding:   "linear16",
		Language:   normalizeLanguage(opts.Language),
		Keywords:   opts.Vocabulary,
	})
	if err != nil {
		return "", err
	}

	if err := sendChunks(s, pcm, e.cfg.ChunkSize); err != nil {
		_ = s.Close()
		return "", err
	}
	_ = s.CloseSend()
	streamErr := waitForStream(s, e.cfg.FinalizeTimeout)

	text := s.aggregator.Text()
	if text == "" && streamErr != nil {
		return "", streamErr
	}
	return text, nil
}

func sendChunks(s *stream, pcm []byte, chunkSize int) error {
	for start := 0; start < len(pcm); start += chunkSize {
		end := min(start+chunkSize, len(pcm))
		if err := s.SendAudio(pcm[start:end]); err != nil {
			return fmt.Errorf("stream audio: %w", err)
		}
	}
	return nil
}

func waitForStream(s *stream, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- s.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = s.Close()
		return <-done
	}
}

func normalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if strings.EqualFold(language, "auto") {
		return ""
	}
	return language
}
