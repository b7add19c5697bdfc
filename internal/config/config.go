package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const envPrefix = "RELAYMIC"

// Config stores runtime configuration shared by host and requester commands.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Enhancement EnhancementConfig `yaml:"enhancement"`
	Deepgram    DeepgramConfig    `yaml:"deepgram"`
	Audio       AudioConfig       `yaml:"audio"`
	Rules       RulesConfig       `yaml:"rules"`
	Session     SessionConfig     `yaml:"session"`
	Store       StoreConfig       `yaml:"store"`
	Activation  ActivationConfig  `yaml:"activation"`
	Feedback    FeedbackConfig    `yaml:"feedback"`

	// File is the config file that was read, empty when none was found.
	File string `yaml:"-"`
}

type EngineConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Language   string        `yaml:"language"`
	Vocabulary []string      `yaml:"vocabulary"`
	Timeout    time.Duration `yaml:"timeout"`

	WhisperBinary string `yaml:"whisper_binary"`
	WhisperModel  string `yaml:"whisper_model"`
	Threads       int    `yaml:"threads"`
}

type EnhancementConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	AgentName string `yaml:"agent_name"`
}

type DeepgramConfig struct {
	APIBaseURL  string `yaml:"api_base"`
	Model       string `yaml:"model"`
	SmartFormat bool   `yaml:"smart_format"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"`
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkSize       int    `yaml:"chunk_size"`
	Dir             string `yaml:"dir"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type SessionConfig struct {
	SilenceThresholdDB float64       `yaml:"silence_threshold_db"`
	SilenceDuration    time.Duration `yaml:"silence_duration"`
	MaxDuration        time.Duration `yaml:"max_duration"`
	TranscribeTimeout  time.Duration `yaml:"transcribe_timeout"`
}

type StoreConfig struct {
	StatePath      string `yaml:"state_path"`
	SignalPath     string `yaml:"signal_path"`
	HistoryDir     string `yaml:"history_dir"`
	HistoryEnabled bool   `yaml:"history_enabled"`
}

type ActivationConfig struct {
	Scheme string `yaml:"scheme"`
	// Method is "exec" to start the host binary directly or "browser" to go
	// through the desktop's scheme handler.
	Method  string `yaml:"method"`
	Command string `yaml:"command"`
}

type FeedbackConfig struct {
	Sounds        bool `yaml:"sounds"`
	Notifications bool `yaml:"notifications"`
}

// providerKeyEnv lists the provider-native variables consulted when no key is
// configured explicitly.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"deepgram":  "DEEPGRAM_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// Load resolves configuration from an optional YAML file, RELAYMIC_*
// environment variables and defaults. An explicit path must exist; the
// default location may be absent.
func Load(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dataDir := xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(configDir, "relaymic"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rulesPath := strings.TrimSpace(v.GetString("rules.path"))
	if rulesPath == "" {
		rulesPath = firstExisting(
			filepath.Join(configDir, "relaymic", "substitutions.rules"),
			filepath.Join(configDir, "hypr", "whisper-substitutions.rules"),
		)
	}

	cfg := Config{
		Engine: EngineConfig{
			Provider:      strings.ToLower(stringOr(v, "engine.provider", "whispercpp")),
			BaseURL:       strings.TrimSpace(v.GetString("engine.base_url")),
			Model:         strings.TrimSpace(v.GetString("engine.model")),
			Language:      stringOr(v, "engine.language", "auto"),
			Vocabulary:    normalizeVocabulary(v.Get("engine.vocabulary")),
			Timeout:       durationOr(v, "engine.timeout", 60*time.Second),
			WhisperBinary: strings.TrimSpace(v.GetString("engine.whisper_binary")),
			WhisperModel:  stringOr(v, "engine.whisper_model", filepath.Join(dataDir, "relaymic", "models", "ggml-base.en.bin")),
			Threads:       intOr(v, "engine.threads", 0),
		},
		Enhancement: EnhancementConfig{
			Enabled:   boolOr(v, "enhancement.enabled", false),
			Provider:  strings.ToLower(stringOr(v, "enhancement.provider", "openai")),
			BaseURL:   strings.TrimSpace(v.GetString("enhancement.base_url")),
			Model:     strings.TrimSpace(v.GetString("enhancement.model")),
			AgentName: strings.TrimSpace(v.GetString("enhancement.agent_name")),
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  stringOr(v, "deepgram.api_base", "https://api.deepgram.com/v1"),
			Model:       stringOr(v, "deepgram.model", "nova-2"),
			SmartFormat: boolOr(v, "deepgram.smart_format", true),
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(stringOr(v, "audio.backend", "ffmpeg")),
			RecorderCommand: stringOr(v, "audio.recorder_command", "ffmpeg"),
			InputFormat:     stringOr(v, "audio.input_format", "pulse"),
			InputDevice: firstNonEmpty(
				v.GetString("audio.input_device"),
				os.Getenv("WHISPER_PULSE_SOURCE"),
				"default",
			),
			SampleRate: intOr(v, "audio.sample_rate", 16000),
			Channels:   intOr(v, "audio.channels", 1),
			ChunkSize:  intOr(v, "audio.chunk_size", 4096),
			Dir:        strings.TrimSpace(v.GetString("audio.dir")),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: intOr(v, "rules.iteration_limit", 30),
		},
		Session: SessionConfig{
			SilenceThresholdDB: floatOr(v, "session.silence_threshold_db", -40),
			SilenceDuration:    durationOr(v, "session.silence_duration", 3*time.Second),
			MaxDuration:        durationOr(v, "session.max_duration", 5*time.Minute),
			TranscribeTimeout:  durationOr(v, "session.transcribe_timeout", 2*time.Minute),
		},
		Store: StoreConfig{
			StatePath:      stringOr(v, "store.state_path", filepath.Join(dataDir, "relaymic", "state.db")),
			SignalPath:     stringOr(v, "store.signal_path", filepath.Join(dataDir, "relaymic", "signal")),
			HistoryDir:     stringOr(v, "store.history_dir", filepath.Join(dataDir, "relaymic", "history")),
			HistoryEnabled: boolOr(v, "store.history_enabled", true),
		},
		Activation: ActivationConfig{
			Scheme:  stringOr(v, "activation.scheme", "relaymic"),
			Method:  strings.ToLower(stringOr(v, "activation.method", "exec")),
			Command: strings.TrimSpace(v.GetString("activation.command")),
		},
		Feedback: FeedbackConfig{
			Sounds:        boolOr(v, "feedback.sounds", true),
			Notifications: boolOr(v, "feedback.notifications", false),
		},
		File: v.ConfigFileUsed(),
	}

	cfg.Engine.APIKey = firstNonEmpty(v.GetString("engine.api_key"), os.Getenv(providerKeyEnv[cfg.Engine.Provider]))
	cfg.Enhancement.APIKey = firstNonEmpty(v.GetString("enhancement.api_key"), os.Getenv(providerKeyEnv[cfg.Enhancement.Provider]))

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.SilenceThresholdDB >= 0 {
		cfg.Session.SilenceThresholdDB = -40
	}

	return cfg, nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.Engine.Vocabulary = append([]string(nil), c.Engine.Vocabulary...)
	out.Engine.APIKey = redact(c.Engine.APIKey)
	out.Enhancement.APIKey = redact(c.Enhancement.APIKey)
	return out
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-2:]
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	for _, key := range []string{
		"engine.provider", "engine.api_key", "engine.base_url", "engine.model", "engine.language",
		"engine.vocabulary", "engine.timeout", "engine.whisper_binary", "engine.whisper_model", "engine.threads",
		"enhancement.enabled", "enhancement.provider", "enhancement.api_key", "enhancement.base_url",
		"enhancement.model", "enhancement.agent_name",
		"deepgram.api_base", "deepgram.model", "deepgram.smart_format",
		"audio.backend", "audio.recorder_command", "audio.input_format", "audio.input_device",
		"audio.sample_rate", "audio.channels", "audio.chunk_size", "audio.dir",
		"rules.path", "rules.iteration_limit",
		"session.silence_threshold_db", "session.silence_duration", "session.max_duration", "session.transcribe_timeout",
		"store.state_path", "store.signal_path", "store.history_dir", "store.history_enabled",
		"activation.scheme", "activation.method", "activation.command",
		"feedback.sounds", "feedback.notifications",
	} {
		v.SetDefault(key, "")
	}
}

func xdgDir(env, fallback string) string {
	if dir := strings.TrimSpace(os.Getenv(env)); dir != "" {
		return dir
	}
	return fallback
}

// normalizeVocabulary accepts a YAML list or a comma separated string.
func normalizeVocabulary(raw any) []string {
	var items []string
	switch value := raw.(type) {
	case string:
		items = strings.Split(value, ",")
	case []string:
		items = value
	case []any:
		items = lo.Map(value, func(item any, _ int) string { return fmt.Sprint(item) })
	}
	items = lo.FlatMap(items, func(item string, _ int) []string { return strings.Split(item, ",") })
	items = lo.Map(items, func(item string, _ int) string { return strings.TrimSpace(item) })
	return lo.Uniq(lo.Compact(items))
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func stringOr(v *viper.Viper, key string, fallback string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOr(v *viper.Viper, key string, fallback int) int {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOr(v *viper.Viper, key string, fallback float64) float64 {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(v.GetString(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// durationOr accepts Go durations ("3s") or bare milliseconds.
func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms < 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
