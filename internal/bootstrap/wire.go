// Package bootstrap assembles host and requester runtime graphs from config.
package bootstrap

import (
	"errors"
	"fmt"
	"os"

	"relaymic/internal/activation"
	"relaymic/internal/audio"
	"relaymic/internal/config"
	"relaymic/internal/history"
	"relaymic/internal/notify"
	"relaymic/internal/ports"
	"relaymic/internal/providers/deepgram"
	"relaymic/internal/providers/google"
	"relaymic/internal/providers/openai"
	"relaymic/internal/providers/whispercpp"
	"relaymic/internal/rules"
	"relaymic/internal/sched"
	"relaymic/internal/sharedstate"
	"relaymic/internal/usecase"
)

// Host is the assembled host process.
type Host struct {
	Config      config.Config
	State       ports.StateStore
	Coordinator *usecase.Coordinator
	Listener    *usecase.HostListener

	closers []func() error
}

// Close releases stores and clients in reverse order of creation.
func (h *Host) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	return errors.Join(errs...)
}

// Requester is the assembled requester process.
type Requester struct {
	Config config.Config
	State  ports.StateStore
	Client *usecase.RequestClient

	closers []func() error
}

func (r *Requester) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildHost wires capture, transcription and the listener around the shared
// store.
func BuildHost(cfg config.Config, events ports.EventSink, clock sched.Clock) (*Host, error) {
	host := &Host{Config: cfg}
	fail := func(err error) (*Host, error) {
		_ = host.Close()
		return nil, err
	}

	state, notifier, err := OpenShared(cfg)
	if err != nil {
		return fail(err)
	}
	host.State = state
	host.closers = append(host.closers, state.Close)

	engine, closeEngine, err := NewSpeechEngine(cfg)
	if err != nil {
		return fail(err)
	}
	if closeEngine != nil {
		host.closers = append(host.closers, closeEngine)
	}

	enhancer, err := NewEnhancer(cfg)
	if err != nil {
		return fail(err)
	}

	var transcripts ports.TranscriptStore
	if cfg.Store.HistoryEnabled {
		store, err := history.Open(cfg.Store.HistoryDir)
		if err != nil {
			return fail(err)
		}
		host.closers = append(host.closers, store.Close)
		transcripts = store
	}

	capture := usecase.NewCapturePipeline(NewAudioCapture(cfg), clock, usecase.CaptureConfig{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			Dir:         cfg.Audio.Dir,
		},
		SilenceThresholdDB: cfg.Session.SilenceThresholdDB,
		SilenceDuration:    cfg.Session.SilenceDuration,
		MaxDuration:        cfg.Session.MaxDuration,
	})
	pipeline := usecase.NewTranscriptionPipeline(engine, enhancer, transcripts, events, usecase.TranscriptionConfig{
		Language:           cfg.Engine.Language,
		Vocabulary:         cfg.Engine.Vocabulary,
		AgentName:          cfg.Enhancement.AgentName,
		EnhancementEnabled: cfg.Enhancement.Enabled && enhancer != nil,
	})
	host.Coordinator = usecase.NewCoordinator(state, notifier, capture, pipeline, events, clock, usecase.CoordinatorConfig{
		TranscribeTimeout: cfg.Session.TranscribeTimeout,
	})
	host.Listener = usecase.NewHostListener(
		host.Coordinator,
		state,
		notifier,
		usecase.NewHeartbeat(state, clock, 0),
		events,
		clock,
		usecase.ListenerConfig{Scheme: cfg.Activation.Scheme},
	)
	return host, nil
}

// BuildRequester wires a request client that inserts into text and renders
// to view.
func BuildRequester(cfg config.Config, text ports.TextContext, view ports.StatusView, clock sched.Clock) (*Requester, error) {
	state, notifier, err := OpenShared(cfg)
	if err != nil {
		return nil, err
	}
	activator, err := NewActivator(cfg)
	if err != nil {
		_ = state.Close()
		return nil, err
	}
	client := usecase.NewRequestClient(state, notifier, activator, text, view, clock, usecase.RequestConfig{
		Scheme: cfg.Activation.Scheme,
	})
	return &Requester{Config: cfg, State: state, Client: client, closers: []func() error{state.Close}}, nil
}

// OpenShared opens the shared store and its notification channel.
func OpenShared(cfg config.Config) (*sharedstate.SQLite, *notify.FileChannel, error) {
	state, err := sharedstate.OpenSQLite(cfg.Store.StatePath)
	if err != nil {
		return nil, nil, err
	}
	notifier, err := notify.NewFileChannel(cfg.Store.SignalPath)
	if err != nil {
		_ = state.Close()
		return nil, nil, err
	}
	return state, notifier, nil
}

// NewSpeechEngine selects the configured engine. The returned closer may be
// nil.
func NewSpeechEngine(cfg config.Config) (ports.SpeechEngine, func() error, error) {
	switch cfg.Engine.Provider {
	case "whispercpp", "whisper", "local":
		return whispercpp.NewEngine(whispercpp.Config{
			Binary:    cfg.Engine.WhisperBinary,
			ModelPath: cfg.Engine.WhisperModel,
			Threads:   cfg.Engine.Threads,
		}), nil, nil
	case "openai", "groq", "mistral":
		engine, err := openai.NewTranscriber(openai.ClientConfig{
			Provider: openai.Provider(cfg.Engine.Provider),
			APIKey:   cfg.Engine.APIKey,
			Model:    cfg.Engine.Model,
			BaseURL:  cfg.Engine.BaseURL,
			Timeout:  cfg.Engine.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configure %s transcription: %w", cfg.Engine.Provider, err)
		}
		return engine, nil, nil
	case "deepgram":
		if cfg.Engine.APIKey == "" {
			return nil, nil, errors.New("configure deepgram transcription: DEEPGRAM_API_KEY is not set")
		}
		return deepgram.NewEngine(deepgram.Config{
			APIKey:      cfg.Engine.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       firstNonEmpty(cfg.Engine.Model, cfg.Deepgram.Model),
			SmartFormat: cfg.Deepgram.SmartFormat,
			ChunkSize:   cfg.Audio.ChunkSize,
		}), nil, nil
	case "google":
		engine := google.NewEngine(google.Config{Model: cfg.Engine.Model})
		return engine, engine.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

// NewEnhancer returns nil when enhancement is disabled.
func NewEnhancer(cfg config.Config) (ports.TextEnhancer, error) {
	if !cfg.Enhancement.Enabled {
		return nil, nil
	}
	if cfg.Enhancement.Provider == "rules" {
		engine, err := rules.NewEngine(rules.Options{
			Path:       cfg.Rules.Path,
			LoopLimit:  cfg.Rules.IterationLimit,
			Vocabulary: cfg.Engine.Vocabulary,
		})
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		return rules.NewEnhancer(engine), nil
	}
	enhancer, err := openai.NewEnhancer(openai.ClientConfig{
		Provider: openai.Provider(cfg.Enhancement.Provider),
		APIKey:   cfg.Enhancement.APIKey,
		Model:    cfg.Enhancement.Model,
		BaseURL:  cfg.Enhancement.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("configure %s enhancement: %w", cfg.Enhancement.Provider, err)
	}
	return enhancer, nil
}

func NewAudioCapture(cfg config.Config) ports.AudioCapture {
	if cfg.Audio.Backend == "malgo" {
		return audio.NewMalgoCapture()
	}
	return audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, cfg.Audio.ChunkSize)
}

// NewActivator picks how a requester launches the host. The exec method
// re-runs this binary's activate command unless a command is configured.
func NewActivator(cfg config.Config) (ports.Activator, error) {
	switch cfg.Activation.Method {
	case "browser", "xdg":
		return activation.BrowserLauncher{}, nil
	case "exec", "":
		if cfg.Activation.Command != "" {
			return activation.ExecLauncher{Command: cfg.Activation.Command}, nil
		}
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		args := []string{"activate"}
		if cfg.File != "" {
			args = append(args, "--config", cfg.File)
		}
		return activation.ExecLauncher{Command: self, Args: args}, nil
	default:
		return nil, fmt.Errorf("unknown activation method %q", cfg.Activation.Method)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
