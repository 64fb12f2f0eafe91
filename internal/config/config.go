// Package config provides the configuration structure for the speech studio.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to zero values.
const (
	DefaultProvider          = "gemini"
	DefaultGeminiModel       = "gemini-2.5-flash-preview-tts"
	DefaultOpenAIModel       = "gpt-4o-mini-tts"
	DefaultGeminiKeyEnv      = "GEMINI_API_KEY"
	DefaultOpenAIKeyEnv      = "OPENAI_API_KEY"
	DefaultTimeoutSeconds    = 120
	DefaultRequestsPerMinute = 30
	DefaultMaxConcurrent     = 4
	DefaultSampleRate        = 24000
	DefaultChannels          = 1
	DefaultMaxChunkChars     = 1200
	DefaultProgressHz        = 30
	DefaultVolume            = 1.0
	DefaultOutputDir         = "exports"
	DefaultAudioBucket       = "SPEECH_AUDIO"
	DefaultExportedSubject   = "speech.audio.exported"
	DefaultLogsDir           = "logs"
	dotEnvFile               = ".env"
)

// ErrMissingAPIKey is returned by APIKey when the configured variable is unset.
var ErrMissingAPIKey = errors.New("API key environment variable is not set")

// SpeechConfig selects and tunes the speech-generation backend.
type SpeechConfig struct {
	Provider          string `toml:"provider"`
	Model             string `toml:"model"`
	BaseURL           string `toml:"base_url"`
	APIKeyEnv         string `toml:"api_key_env"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxConcurrent     int    `toml:"max_concurrent"`
}

// AudioConfig holds the PCM format delivered by the backend.
type AudioConfig struct {
	SampleRate int `toml:"sample_rate"`
	Channels   int `toml:"channels"`
}

// TextConfig holds the chunking parameters.
type TextConfig struct {
	MaxChunkChars int `toml:"max_chunk_chars"`
}

// PlaybackConfig holds the playback coordinator settings.
type PlaybackConfig struct {
	ProgressHz int     `toml:"progress_hz"`
	Volume     float64 `toml:"volume"`
}

// ExportConfig holds the local export settings.
type ExportConfig struct {
	OutputDir string `toml:"output_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	AudioExportedSubject   string `toml:"audio_exported_subject"`
}

// FeedConfig holds the progress feed listener address. Empty disables it.
type FeedConfig struct {
	Addr string `toml:"addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Speech   SpeechConfig   `toml:"speech"`
	Audio    AudioConfig    `toml:"audio"`
	Text     TextConfig     `toml:"text"`
	Playback PlaybackConfig `toml:"playback"`
	Export   ExportConfig   `toml:"export"`
	NATS     NATSConfig     `toml:"nats"`
	Feed     FeedConfig     `toml:"feed"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile loads the configuration from a local TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	c.Speech.Provider = strings.ToLower(defaultString(c.Speech.Provider, DefaultProvider))

	if c.Speech.Provider == "openai" {
		c.Speech.Model = defaultString(c.Speech.Model, DefaultOpenAIModel)
		c.Speech.APIKeyEnv = defaultString(c.Speech.APIKeyEnv, DefaultOpenAIKeyEnv)
	} else {
		c.Speech.Model = defaultString(c.Speech.Model, DefaultGeminiModel)
		c.Speech.APIKeyEnv = defaultString(c.Speech.APIKeyEnv, DefaultGeminiKeyEnv)
	}

	c.Speech.TimeoutSeconds = defaultInt(c.Speech.TimeoutSeconds, DefaultTimeoutSeconds)
	c.Speech.RequestsPerMinute = defaultInt(c.Speech.RequestsPerMinute, DefaultRequestsPerMinute)
	c.Speech.MaxConcurrent = defaultInt(c.Speech.MaxConcurrent, DefaultMaxConcurrent)
	c.Audio.SampleRate = defaultInt(c.Audio.SampleRate, DefaultSampleRate)
	c.Audio.Channels = defaultInt(c.Audio.Channels, DefaultChannels)
	c.Text.MaxChunkChars = defaultInt(c.Text.MaxChunkChars, DefaultMaxChunkChars)
	c.Playback.ProgressHz = defaultInt(c.Playback.ProgressHz, DefaultProgressHz)

	if c.Playback.Volume <= 0 || c.Playback.Volume > 1 {
		c.Playback.Volume = DefaultVolume
	}

	c.Export.OutputDir = defaultString(c.Export.OutputDir, DefaultOutputDir)
	c.NATS.AudioObjectStoreBucket = defaultString(c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
	c.NATS.AudioExportedSubject = defaultString(c.NATS.AudioExportedSubject, DefaultExportedSubject)
	c.Paths.BaseLogsDir = defaultString(c.Paths.BaseLogsDir, DefaultLogsDir)
}

// APIKey returns the speech API key from the environment named by
// speech.api_key_env. A .env file in the working directory is loaded first;
// variables already set take precedence over it.
func APIKey(cfg *Config) (string, error) {
	err := godotenv.Load(dotEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	key := strings.TrimSpace(os.Getenv(cfg.Speech.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingAPIKey, cfg.Speech.APIKeyEnv)
	}

	return key, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}

	return value
}
