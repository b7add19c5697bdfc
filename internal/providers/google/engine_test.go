package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"relaymic/internal/ports"
)

type fakeRecognizer struct {
	req  *speechpb.RecognizeRequest
	resp *speechpb.RecognizeResponse
	err  error
}

func (f *fakeRecognizer) Recognize(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestTranscribeJoinsResultsAndSendsPhrases(t *testing.T) {
	t.Parallel()

	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello"}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " world "}}},
	}}}
	engine := NewEngineWithRecognizer(Config{}, fake)

	text, err := engine.Transcribe(context.Background(), writeRecording(t), ports.TranscribeOptions{
		Language:   "auto",
		Vocabulary: []string{"relaymic"},
	})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text %q", text)
	}

	cfg := fake.req.GetConfig()
	if cfg.GetLanguageCode() != "en-US" {
		t.Fatalf("expected default language, got %q", cfg.GetLanguageCode())
	}
	if cfg.GetSampleRateHertz() != 16000 || cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("unexpected audio config: %v", cfg)
	}
	if len(cfg.GetSpeechContexts()) != 1 || cfg.GetSpeechContexts()[0].GetPhrases()[0] != "relaymic" {
		t.Fatalf("expected vocabulary phrases, got %v", cfg.GetSpeechContexts())
	}
	if got := len(fake.req.GetAudio().GetContent()); got != 640 {
		t.Fatalf("expected 640 pcm bytes, got %d", got)
	}
}

func TestTranscribeWrapsRecognizeError(t *testing.T) {
	t.Parallel()

	boom := errors.New("quota")
	engine := NewEngineWithRecognizer(Config{}, &fakeRecognizer{err: boom})
	if _, err := engine.Transcribe(context.Background(), writeRecording(t), ports.TranscribeOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func writeRecording(t *testing.T) ports.Recording {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	encoder := wav.NewEncoder(file, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: 16000}, Data: make([]int, 320), SourceBitDepth: 16}
	if err := encoder.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return ports.Recording{Path: path, SampleRate: 16000, Channels: 1}
}
