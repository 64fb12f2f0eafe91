// Package gemini implements core.SpeechGenerator on the Gemini
// generateContent REST endpoint with audio response modality.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"
)

// API endpoints and paths.
const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com"
	apiGenerateContent    = "/v1beta/models/%s:generateContent"
	responseModalityAudio = "AUDIO"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-goog-api-key"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errTextCannotBeEmpty       = "text cannot be empty"
	errFmtServiceErrorWithCode = "Gemini API error (%s): %s (status: %s)"
	errFmtServiceNonOKStatus   = "Gemini API returned non-OK status: %s, body: %s"
	logFmtRequest              = "Requesting speech from %s (%d chars, voice %s)"
	logFmtAudioReceived        = "Received %d base64 characters of audio"
)

// styleInstructionFormat keeps the style out of the spoken content.
const styleInstructionFormat = `Read the text with the following style: "%s". ` +
	`Do NOT read the style description itself, only the text provided in the prompt.`

// Options configures a Client.
type Options struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// RequestsPerMinute throttles outgoing requests. Zero disables throttling.
	RequestsPerMinute int
}

// Client talks to the Gemini API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	baseURL    string
	model      string
	apiKey     string
}

// NewClient creates a Gemini speech client.
func NewClient(opts Options, log *logger.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		log:        log,
		baseURL:    baseURL,
		model:      opts.Model,
		apiKey:     strings.TrimSpace(opts.APIKey),
	}
}

// CheckCredentials implements core.CredentialChecker.
func (c *Client) CheckCredentials() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: Gemini API key is not set", core.ErrMissingCredential)
	}

	return nil
}

// GenerateSpeech implements core.SpeechGenerator. The style travels as a
// system instruction so the model never speaks it.
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

	requestBody, err := sonic.Marshal(buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + fmt.Sprintf(apiGenerateContent, c.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	c.log.Info(logFmtRequest, c.model, len(req.Text), req.VoiceID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request to Gemini API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseErrorResponse(resp.Status, body)
	}

	var parsed generateContentResponse

	err = sonic.Unmarshal(body, &parsed)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	data := parsed.audioData()
	if data == "" {
		return "", core.ErrEmptyAudio
	}

	c.log.Info(logFmtAudioReceived, len(data))

	return data, nil
}

func buildRequest(req core.SpeechRequest) generateContentRequest {
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{responseModalityAudio},
			SpeechConfig: speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: req.VoiceID},
				},
			},
		},
	}

	style := strings.TrimSpace(req.Style)
	if style != "" {
		payload.SystemInstruction = &content{
			Parts: []part{{Text: fmt.Sprintf(styleInstructionFormat, style)}},
		}
	}

	return payload
}

// parseErrorResponse decodes the structured Gemini error, falling back to the
// raw body.
func parseErrorResponse(status string, body []byte) error {
	var errorResp errorResponse

	err := sonic.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, status, errorResp.Error.Message, errorResp.Error.Status)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, status, string(body))
}
