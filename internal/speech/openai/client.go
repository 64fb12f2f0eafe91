// Package openai implements core.SpeechGenerator on the OpenAI speech endpoint,
// requesting raw 24 kHz 16-bit mono PCM.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/core"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	errTextCannotBeEmpty = "text cannot be empty"
	logFmtRequest        = "Requesting speech from OpenAI %s (%d chars, voice %s)"
	defaultVoice         = goopenai.VoiceAlloy
)

// voiceAliases maps catalog voices onto the closest OpenAI voice.
var voiceAliases = map[string]goopenai.SpeechVoice{
	"kore":   goopenai.VoiceNova,
	"puck":   goopenai.VoiceEcho,
	"charon": goopenai.VoiceOnyx,
	"fenrir": goopenai.VoiceFable,
	"zephyr": goopenai.VoiceShimmer,
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Model             string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client talks to the OpenAI audio API.
type Client struct {
	api     *goopenai.Client
	limiter *rate.Limiter
	log     *logger.Logger
	model   string
	apiKey  string
}

// NewClient creates an OpenAI speech client.
func NewClient(opts Options, log *logger.Logger) *Client {
	apiKey := strings.TrimSpace(opts.APIKey)

	clientConfig := goopenai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	clientConfig.HTTPClient = &http.Client{Timeout: opts.Timeout}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), 1)
	}

	return &Client{
		api:     goopenai.NewClientWithConfig(clientConfig),
		limiter: limiter,
		log:     log,
		model:   opts.Model,
		apiKey:  apiKey,
	}
}

// CheckCredentials implements core.CredentialChecker.
func (c *Client) CheckCredentials() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: OpenAI API key is not set", core.ErrMissingCredential)
	}

	return nil
}

// GenerateSpeech implements core.SpeechGenerator. The style is sent as the
// instructions field, never as input.
func (c *Client) GenerateSpeech(ctx context.Context, req core.SpeechRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", errors.New(errTextCannotBeEmpty)
	}

	err := c.CheckCredentials()
	if err != nil {
		return "", err
	}

	err = c.limiter.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	voice := mapVoice(req.VoiceID)
	c.log.Info(logFmtRequest, c.model, len(req.Text), voice)

	resp, err := c.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.model),
		Input:          req.Text,
		Voice:          voice,
		Instructions:   strings.TrimSpace(req.Style),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI speech request failed: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return "", fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(pcm) == 0 {
		return "", core.ErrEmptyAudio
	}

	return base64.StdEncoding.EncodeToString(pcm), nil
}

func mapVoice(voiceID string) goopenai.SpeechVoice {
	id := strings.ToLower(strings.TrimSpace(voiceID))
	if id == "" {
		return defaultVoice
	}

	if alias, ok := voiceAliases[id]; ok {
		return alias
	}

	return goopenai.SpeechVoice(id)
}
