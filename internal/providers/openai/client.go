// Package openai talks to OpenAI and the OpenAI-compatible endpoints of
// Groq, Mistral, Anthropic and Gemini through the official SDK.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Provider identifies a hosted API.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGroq      Provider = "groq"
	ProviderMistral   Provider = "mistral"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

var baseURLs = map[Provider]string{
	ProviderOpenAI:    "https://api.openai.com/v1/",
	ProviderGroq:      "https://api.groq.com/openai/v1/",
	ProviderMistral:   "https://api.mistral.ai/v1/",
	ProviderAnthropic: "https://api.anthropic.com/v1/",
	ProviderGemini:    "https://generativelanguage.googleapis.com/v1beta/openai/",
}

// ClientConfig selects a provider and its credentials.
type ClientConfig struct {
	Provider Provider
	APIKey   string
	Model    string
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
	Timeout time.Duration
}

func newClient(cfg ClientConfig) (openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return openai.Client{}, fmt.Errorf("no API key configured for %s", cfg.Provider)
	}
	base := cfg.BaseURL
	if base == "" {
		known, ok := baseURLs[cfg.Provider]
		if !ok {
			return openai.Client{}, fmt.Errorf("unsupported provider %q", cfg.Provider)
		}
		base = known
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(1),
	}
	if cfg.Provider == ProviderMistral {
		opts = append(opts, option.WithHeader("x-api-key", cfg.APIKey), option.WithHeaderDel("Authorization"))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return openai.NewClient(opts...), nil
}

// describeError maps API failures onto messages a user can act on.
func describeError(provider Provider, op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("invalid %s API key", provider)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s rate limit exceeded, wait a moment and try again", provider)
		default:
			return fmt.Errorf("%s %s failed (%d): %w", provider, op, apiErr.StatusCode, err)
		}
	}
	return fmt.Errorf("%s %s failed: %w", provider, op, err)
}
