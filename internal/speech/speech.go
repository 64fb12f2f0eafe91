// Package speech selects the speech-generation backend from configuration.
package speech

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/config"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/book-expert/speech-studio/internal/speech/gemini"
	"github.com/book-expert/speech-studio/internal/speech/openai"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ErrUnknownProvider is returned for a speech.provider value with no backend.
var ErrUnknownProvider = errors.New("unknown speech provider")

// Generator is a speech backend that can also report on its credential.
type Generator interface {
	core.SpeechGenerator
	core.CredentialChecker
}

// New builds the backend named by cfg.Speech.Provider. An empty apiKey is not
// an error here; generation is refused later through CheckCredentials.
func New(cfg *config.Config, apiKey string, log *logger.Logger) (Generator, error) {
	timeout := time.Duration(cfg.Speech.TimeoutSeconds) * time.Second

	switch cfg.Speech.Provider {
	case ProviderGemini:
		return gemini.NewClient(gemini.Options{
			BaseURL:           cfg.Speech.BaseURL,
			Model:             cfg.Speech.Model,
			APIKey:            apiKey,
			Timeout:           timeout,
			RequestsPerMinute: cfg.Speech.RequestsPerMinute,
		}, log), nil
	case ProviderOpenAI:
		return openai.NewClient(openai.Options{
			BaseURL:           cfg.Speech.BaseURL,
			Model:             cfg.Speech.Model,
			APIKey:            apiKey,
			Timeout:           timeout,
			RequestsPerMinute: cfg.Speech.RequestsPerMinute,
		}, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Speech.Provider)
	}
}
