package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/audio"
	"github.com/book-expert/speech-studio/internal/chunk"
	"github.com/book-expert/speech-studio/internal/config"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/book-expert/speech-studio/internal/playback"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentGenerator returns 10 ms of silence for every request.
type silentGenerator struct{}

func (silentGenerator) GenerateSpeech(_ context.Context, _ core.SpeechRequest) (string, error) {
	return base64.StdEncoding.EncodeToString(make([]byte, 480)), nil
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags("test", []string{
		"-text", "Hello, world!",
		"-voice", "Puck",
		"-style", "Slow and warm",
		"-out", "/tmp/out",
		"-play",
		"-publish",
		"-fetch", "abc-chunk_0001.wav",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "Puck", flags.voice)
	assert.Equal(t, "Slow and warm", flags.style)
	assert.Equal(t, "/tmp/out", flags.out)
	assert.True(t, flags.play)
	assert.True(t, flags.publish)
	assert.False(t, flags.voices)
	assert.Equal(t, "abc-chunk_0001.wav", flags.fetch)

	_, err = parseFlags("test", []string{"-unknown"}, io.Discard)
	require.Error(t, err)
}

func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "success with text flag", args: []string{"-text", "some text"}},
		{name: "success with file flag", args: []string{"-file", "input.txt"}},
		{name: "voices needs nothing else", args: []string{"-voices"}},
		{name: "error with both flags", args: []string{"-text", "x", "-file", "input.txt"}, wantErr: errCannotSpecifyBoth},
		{name: "error with no flags", args: nil, wantErr: errEitherTextOrFile},
		{name: "blank text", args: []string{"-text", "   "}, wantErr: errEitherTextOrFile},
		{name: "fetch needs nothing else", args: []string{"-fetch", "key.wav"}},
		{name: "fetch with text", args: []string{"-fetch", "key.wav", "-text", "x"}, wantErr: errFetchWithInput},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.name, testCase.args, io.Discard)
			require.NoError(t, err)

			err = flags.validate()
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestInputFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("From a file."), 0o600))

	input, err := appFlags{file: path}.input()
	require.NoError(t, err)
	assert.Equal(t, "From a file.", input)

	_, err = appFlags{file: filepath.Join(t.TempDir(), "missing.txt")}.input()
	require.Error(t, err)
}

func newTestStudio(t *testing.T, maxChunkChars int) (*studio, *bytes.Buffer) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "studio-test.log")
	require.NoError(t, err)

	cfg := &config.Config{Text: config.TextConfig{MaxChunkChars: maxChunkChars}}
	cfg.ApplyDefaults()

	store, err := chunk.NewStore(silentGenerator{}, chunk.Options{Format: audio.DefaultFormat(), VoiceID: "Kore"}, testLogger)
	require.NoError(t, err)

	coordinator := playback.NewCoordinator(store, playback.NewClockDevice(), playback.Options{Volume: 1}, testLogger)
	store.SetInvalidator(coordinator)

	var out bytes.Buffer

	return &studio{cfg: cfg, log: testLogger, store: store, coordinator: coordinator, out: &out}, &out
}

func TestStudio_ProcessSingleChunk(t *testing.T) {
	t.Parallel()

	app, out := newTestStudio(t, 0)
	dir := t.TempDir()

	err := app.process(context.Background(), "Just one sentence.", appFlags{out: dir})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "chunk_0001.wav"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "CHUNK 1  0:00")
}

func TestStudio_ProcessArchiveAndPlay(t *testing.T) {
	t.Parallel()

	app, out := newTestStudio(t, 25)
	dir := t.TempDir()

	err := app.process(context.Background(), "First sentence here. Second sentence here.", appFlags{out: dir, play: true})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "speech_chunks.zip"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Playing CHUNK"))
}

func TestStudio_ProcessEmptyInput(t *testing.T) {
	t.Parallel()

	app, _ := newTestStudio(t, 0)

	err := app.process(context.Background(), " \n\n ", appFlags{out: t.TempDir()})
	require.ErrorIs(t, err, errNoChunks)
}

func startTestServer(t *testing.T) *server.Server {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	return natsServer
}

func TestStudio_PublishAndFetch(t *testing.T) {
	t.Parallel()

	natsServer := startTestServer(t)

	app, out := newTestStudio(t, 0)
	app.cfg.NATS.URL = natsServer.ClientURL()

	err := app.process(context.Background(), "Just one sentence.", appFlags{out: t.TempDir(), publish: true})
	require.NoError(t, err)

	var key string

	for _, line := range strings.Split(out.String(), "\n") {
		if fields := strings.Fields(line); len(fields) > 1 && fields[0] == "Published" {
			key = fields[1]
		}
	}

	require.True(t, strings.HasSuffix(key, "-chunk_0001.wav"), "published key %q", key)

	dir := t.TempDir()

	var fetched bytes.Buffer

	err = fetchExport(context.Background(), app.cfg, app.log, key, dir, &fetched)
	require.NoError(t, err)
	assert.Contains(t, fetched.String(), "audio/wav")

	data, err := os.ReadFile(filepath.Join(dir, key))
	require.NoError(t, err)

	_, pcm, err := audio.SplitWavContainer(data)
	require.NoError(t, err)
	assert.Len(t, pcm, 480)

	err = fetchExport(context.Background(), app.cfg, app.log, "missing.wav", t.TempDir(), io.Discard)
	require.Error(t, err)
}
