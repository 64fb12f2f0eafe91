// main package for the speech-studio command
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/audio"
	"github.com/book-expert/speech-studio/internal/chunk"
	"github.com/book-expert/speech-studio/internal/config"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/book-expert/speech-studio/internal/export"
	"github.com/book-expert/speech-studio/internal/feed"
	"github.com/book-expert/speech-studio/internal/objectstore"
	"github.com/book-expert/speech-studio/internal/playback"
	"github.com/book-expert/speech-studio/internal/speech"
	"github.com/book-expert/speech-studio/internal/text"
	"github.com/book-expert/speech-studio/internal/voices"
	"github.com/nats-io/nats.go"
)

const (
	appName          = "speech-studio"
	bootstrapLogFile = "speech-studio-bootstrap.log"
	logFile          = "speech-studio.log"
	shutdownTimeout  = 5 * time.Second
)

var (
	errNoChunks       = errors.New("input contains no text to synthesize")
	errNoAudio        = errors.New("no chunk produced audio")
	errUploadMismatch = errors.New("stored object does not match the export")
)

// studio wires the components for one run.
type studio struct {
	cfg         *config.Config
	log         *logger.Logger
	store       *chunk.Store
	coordinator *playback.Coordinator
	out         io.Writer
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func loadConfig(path string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(bootstrapLog)
}

func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(appName, args, os.Stderr)
	if err != nil {
		return err
	}

	err = flags.validate()
	if err != nil {
		return err
	}

	catalog, err := voices.Builtin()
	if err != nil {
		return fmt.Errorf("failed to load voice catalog: %w", err)
	}

	if flags.voices {
		for _, option := range catalog.Options() {
			fmt.Fprintf(stdout, "%-8s %s\n", option.ID, option.Name)
		}

		return nil
	}

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer bootstrapLog.Close()

	// 2. Load configuration
	cfg, err := loadConfig(flags.config, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if flags.fetch != "" {
		return fetchExport(ctx, cfg, log, flags.fetch, outputDir(flags, cfg), stdout)
	}

	voiceID := flags.voice
	if voiceID == "" {
		voiceID = catalog.Default()
	}

	err = catalog.Validate(voiceID)
	if err != nil {
		return err
	}

	input, err := flags.input()
	if err != nil {
		return err
	}

	app, err := newStudio(cfg, log, voiceID, flags.style, stdout)
	if err != nil {
		return err
	}

	log.System("Speech studio initialized (provider %s, voice %s)", cfg.Speech.Provider, voiceID)

	if cfg.Feed.Addr != "" {
		shutdown := app.serveFeed()
		defer shutdown()
	}

	return app.process(ctx, input, flags)
}

func newStudio(cfg *config.Config, log *logger.Logger, voiceID, style string, out io.Writer) (*studio, error) {
	apiKey, err := config.APIKey(cfg)
	if err != nil {
		// Generation is refused up front by the credential check.
		log.Warn("No API key available: %v", err)
	}

	generator, err := speech.New(cfg, apiKey, log)
	if err != nil {
		return nil, err
	}

	store, err := chunk.NewStore(generator, chunk.Options{
		Format: audio.Format{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			BitDepth:   audio.BitDepth16,
		},
		VoiceID:       voiceID,
		Style:         style,
		MaxConcurrent: cfg.Speech.MaxConcurrent,
	}, log)
	if err != nil {
		return nil, err
	}

	coordinator := playback.NewCoordinator(store, playback.NewClockDevice(), playback.Options{
		ProgressHz: cfg.Playback.ProgressHz,
		Volume:     cfg.Playback.Volume,
	}, log)
	store.SetInvalidator(coordinator)

	return &studio{cfg: cfg, log: log, store: store, coordinator: coordinator, out: out}, nil
}

// serveFeed starts the websocket progress feed and returns its shutdown func.
func (s *studio) serveFeed() func() {
	hub := feed.NewHub(s.log)
	unsubscribe := s.coordinator.Subscribe(hub.Publish)

	server := &http.Server{
		Addr:              s.cfg.Feed.Addr,
		Handler:           hub,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Progress feed stopped: %v", err)
		}
	}()

	s.log.Info("Progress feed listening on %s", s.cfg.Feed.Addr)

	return func() {
		unsubscribe()
		hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(ctx)
		if err != nil {
			s.log.Warn("Progress feed shutdown: %v", err)
		}
	}
}

// process splits, generates, exports and optionally plays the input.
func (s *studio) process(ctx context.Context, input string, flags appFlags) error {
	pieces := text.NewSplitter(s.cfg.Text.MaxChunkChars).Split(input)
	if len(pieces) == 0 {
		return errNoChunks
	}

	s.store.AddAll(pieces)
	s.log.Info("Split input into %d chunks", len(pieces))

	err := s.store.GenerateAll(ctx)
	if err != nil {
		s.log.Error("Generation stopped: %v", err)

		return fmt.Errorf("failed to generate speech: %w", err)
	}

	s.report()

	s.store.ToggleSelectAll(true)

	if !s.store.HasSelection() {
		return errNoAudio
	}

	artifact, err := s.store.DownloadSelected()
	if err != nil {
		return fmt.Errorf("failed to package audio: %w", err)
	}

	path, err := export.NewDirExporter(outputDir(flags, s.cfg), s.log).Export(ctx, artifact)
	if err != nil {
		return fmt.Errorf("failed to export audio: %w", err)
	}

	fmt.Fprintf(s.out, "Exported %d chunks (%s) to %s\n",
		len(artifact.ChunkIDs), audio.FormatDuration(s.store.TotalDuration()), path)

	if flags.publish {
		err = s.publish(ctx, artifact)
		if err != nil {
			return err
		}
	}

	if flags.play {
		return s.playAll(ctx)
	}

	return nil
}

// report prints one line per chunk.
func (s *studio) report() {
	for _, snapshot := range s.store.Snapshot() {
		switch snapshot.Status {
		case chunk.StatusCompleted:
			fmt.Fprintf(s.out, "%s  %s\n", snapshot.Label(), audio.FormatDuration(snapshot.Duration))
		case chunk.StatusError:
			fmt.Fprintf(s.out, "%s  failed: %v\n", snapshot.Label(), snapshot.Err)
		default:
			fmt.Fprintf(s.out, "%s  %s\n", snapshot.Label(), snapshot.Status)
		}
	}
}

func outputDir(flags appFlags, cfg *config.Config) string {
	if flags.out != "" {
		return flags.out
	}

	return cfg.Export.OutputDir
}

// connectObjectStore opens the NATS connection and the audio bucket. The
// caller closes the connection.
func connectObjectStore(cfg *config.Config) (*nats.Conn, *objectstore.NatsObjectStore, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	return natsConnection, store, nil
}

// publish uploads the artifact to the object store, announces it and checks
// what was stored.
func (s *studio) publish(ctx context.Context, artifact core.Artifact) error {
	natsConnection, store, err := connectObjectStore(s.cfg)
	if err != nil {
		return err
	}
	defer natsConnection.Close()

	exporter := export.NewObjectStoreExporter(store, natsConnection, s.cfg.NATS.AudioExportedSubject, s.log)

	key, err := exporter.Export(ctx, artifact)
	if err != nil {
		return fmt.Errorf("failed to publish audio: %w", err)
	}

	err = natsConnection.Flush()
	if err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	info, err := store.Info(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to verify upload: %w", err)
	}

	if info.Size != uint64(len(artifact.Data)) {
		return fmt.Errorf("%w: %s holds %d bytes, exported %d", errUploadMismatch, key, info.Size, len(artifact.Data))
	}

	fmt.Fprintf(s.out, "Published %s (%s, %s) to bucket %s\n",
		key, export.FormatFileSize(int64(info.Size)), info.ContentType, store.Bucket())

	return nil
}

// fetchExport downloads a published export into dir.
func fetchExport(ctx context.Context, cfg *config.Config, log *logger.Logger, key, dir string, out io.Writer) error {
	natsConnection, store, err := connectObjectStore(cfg)
	if err != nil {
		return err
	}
	defer natsConnection.Close()

	info, err := store.Info(ctx, key)
	if err != nil {
		return err
	}

	data, err := store.Download(ctx, key)
	if err != nil {
		return err
	}

	path, err := export.NewDirExporter(dir, log).Export(ctx, core.Artifact{
		Filename:    key,
		ContentType: info.ContentType,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	fmt.Fprintf(out, "Fetched %s (%s, %s) to %s\n", key, export.FormatFileSize(int64(len(data))), info.ContentType, path)

	return nil
}

// playAll plays every completed chunk in list order.
func (s *studio) playAll(ctx context.Context) error {
	finished := make(chan int, 1)

	unsubscribe := s.coordinator.Subscribe(func(progress playback.Progress) {
		if progress.State == playback.StateStopped {
			select {
			case finished <- progress.ChunkID:
			default:
			}
		}
	})
	defer unsubscribe()

	for _, snapshot := range s.store.Snapshot() {
		if snapshot.Status != chunk.StatusCompleted {
			continue
		}

		fmt.Fprintf(s.out, "Playing %s (%s)\n", snapshot.Label(), audio.FormatDuration(snapshot.Duration))

		err := s.coordinator.Play(snapshot.ID)
		if err != nil {
			return err
		}

		err = waitForChunk(ctx, finished, snapshot.ID)
		if err != nil {
			s.coordinator.Stop()

			return err
		}
	}

	return nil
}

func waitForChunk(ctx context.Context, finished <-chan int, chunkID int) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("playback interrupted: %w", ctx.Err())
		case id := <-finished:
			if id == chunkID {
				return nil
			}
		}
	}
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speech-studio exited with error: %v\n", err)
		os.Exit(1)
	}
}
