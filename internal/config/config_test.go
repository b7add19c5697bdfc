package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("WHISPER_PULSE_SOURCE", "")
	for _, key := range []string{"OPENAI_API_KEY", "GROQ_API_KEY", "MISTRAL_API_KEY", "DEEPGRAM_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Provider != "whispercpp" || cfg.Engine.Language != "auto" || cfg.Engine.Timeout != time.Minute {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Session.SilenceThresholdDB != -40 || cfg.Session.SilenceDuration != 3*time.Second || cfg.Session.MaxDuration != 5*time.Minute {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	wantState := filepath.Join(home, ".local", "share", "relaymic", "state.db")
	if cfg.Store.StatePath != wantState || !cfg.Store.HistoryEnabled {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Activation.Scheme != "relaymic" || cfg.Activation.Method != "exec" {
		t.Fatalf("unexpected activation defaults: %+v", cfg.Activation)
	}
	if cfg.Enhancement.Enabled || len(cfg.Engine.Vocabulary) != 0 || cfg.File != "" {
		t.Fatalf("unexpected optional defaults: %+v", cfg)
	}
}

func TestLoadUsesRulesFallbackOrder(t *testing.T) {
	home := isolate(t)
	ownRules := filepath.Join(home, ".config", "relaymic", "substitutions.rules")
	hyprRules := filepath.Join(home, ".config", "hypr", "whisper-substitutions.rules")

	if err := os.MkdirAll(filepath.Dir(hyprRules), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(hyprRules, []byte("a => b\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Rules.Path != hyprRules {
		t.Fatalf("expected hypr fallback, got %q", cfg.Rules.Path)
	}

	if err := os.MkdirAll(filepath.Dir(ownRules), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(ownRules, []byte("a => c\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg2, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg2.Rules.Path != ownRules {
		t.Fatalf("expected relaymic rules priority, got %q", cfg2.Rules.Path)
	}
}

func TestLoadRespectsEnvironmentOverrides(t *testing.T) {
	home := isolate(t)
	rules := filepath.Join(home, "my.rules")

	t.Setenv("RELAYMIC_ENGINE_PROVIDER", "Groq")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("RELAYMIC_ENGINE_LANGUAGE", "de")
	t.Setenv("RELAYMIC_ENGINE_VOCABULARY", "Kubernetes, gRPC,,Kubernetes")
	t.Setenv("RELAYMIC_ENHANCEMENT_ENABLED", "yes")
	t.Setenv("RELAYMIC_ENHANCEMENT_PROVIDER", "mistral")
	t.Setenv("RELAYMIC_ENHANCEMENT_API_KEY", "explicit-key")
	t.Setenv("MISTRAL_API_KEY", "ignored")
	t.Setenv("RELAYMIC_ENHANCEMENT_AGENT_NAME", "Echo")
	t.Setenv("RELAYMIC_AUDIO_BACKEND", "malgo")
	t.Setenv("RELAYMIC_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("RELAYMIC_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("RELAYMIC_RULES_PATH", rules)
	t.Setenv("RELAYMIC_RULES_ITERATION_LIMIT", "42")
	t.Setenv("RELAYMIC_SESSION_SILENCE_DURATION", "1500")
	t.Setenv("RELAYMIC_SESSION_MAX_DURATION", "90s")
	t.Setenv("RELAYMIC_DEEPGRAM_SMART_FORMAT", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Engine.Provider != "groq" || cfg.Engine.APIKey != "groq-key" || cfg.Engine.Language != "de" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if !reflect.DeepEqual(cfg.Engine.Vocabulary, []string{"Kubernetes", "gRPC"}) {
		t.Fatalf("unexpected vocabulary: %#v", cfg.Engine.Vocabulary)
	}
	if !cfg.Enhancement.Enabled || cfg.Enhancement.APIKey != "explicit-key" || cfg.Enhancement.AgentName != "Echo" {
		t.Fatalf("unexpected enhancement config: %+v", cfg.Enhancement)
	}
	if cfg.Audio.Backend != "malgo" || cfg.Audio.InputDevice != "mic0" || cfg.Audio.SampleRate != 22050 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Rules.Path != rules || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Session.SilenceDuration != 1500*time.Millisecond || cfg.Session.MaxDuration != 90*time.Second {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Deepgram.SmartFormat {
		t.Fatalf("expected smart format disabled")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "relaymic.yaml")
	contents := `
engine:
  provider: openai
  api_key: sk-from-file
  vocabulary:
    - Postgres
    - pgBouncer
session:
  silence_threshold_db: -35
store:
  history_enabled: false
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("RELAYMIC_ENGINE_MODEL", "whisper-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.File != path {
		t.Fatalf("expected file %q, got %q", path, cfg.File)
	}
	if cfg.Engine.Provider != "openai" || cfg.Engine.APIKey != "sk-from-file" || cfg.Engine.Model != "whisper-1" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if !reflect.DeepEqual(cfg.Engine.Vocabulary, []string{"Postgres", "pgBouncer"}) {
		t.Fatalf("unexpected vocabulary: %#v", cfg.Engine.Vocabulary)
	}
	if cfg.Session.SilenceThresholdDB != -35 || cfg.Store.HistoryEnabled {
		t.Fatalf("unexpected overrides: %+v %+v", cfg.Session, cfg.Store)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	home := isolate(t)
	if _, err := Load(filepath.Join(home, "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("RELAYMIC_AUDIO_SAMPLE_RATE", "bad")
	t.Setenv("RELAYMIC_AUDIO_CHANNELS", "-1")
	t.Setenv("RELAYMIC_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("RELAYMIC_RULES_ITERATION_LIMIT", "0")
	t.Setenv("RELAYMIC_SESSION_SILENCE_THRESHOLD_DB", "12")
	t.Setenv("RELAYMIC_SESSION_SILENCE_DURATION", "soon")
	t.Setenv("RELAYMIC_DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("expected audio fallbacks, got %+v", cfg.Audio)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Session.SilenceThresholdDB != -40 || cfg.Session.SilenceDuration != 3*time.Second {
		t.Fatalf("expected session fallbacks, got %+v", cfg.Session)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}

func TestRedactedHidesKeys(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Engine:      EngineConfig{APIKey: "sk-1234567890abcdef"},
		Enhancement: EnhancementConfig{APIKey: "short"},
	}
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "1234567890") || strings.Contains(string(out), "short") {
		t.Fatalf("secret leaked:\n%s", out)
	}
	if cfg.Engine.APIKey != "sk-1234567890abcdef" {
		t.Fatalf("redaction must not modify the original")
	}
}
