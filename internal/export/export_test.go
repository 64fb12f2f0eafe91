// Package export_test tests the export sinks.
package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/book-expert/speech-studio/internal/export"
	"github.com/book-expert/speech-studio/internal/objectstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMockUpload  = errors.New("mock upload error")
	errMockPublish = errors.New("mock publish error")
)

type mockObjectStore struct {
	uploadShouldFail bool
	uploadedKey      string
	uploadedData     []byte
	deletedKey       string
}

func (m *mockObjectStore) Download(_ context.Context, _ string) ([]byte, error) {
	return m.uploadedData, nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if m.uploadShouldFail {
		return errMockUpload
	}

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

func (m *mockObjectStore) Delete(key string) error {
	m.deletedKey = key

	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(_ string, _ []byte) error {
	return errMockPublish
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "export-test.log")
	require.NoError(t, err)

	return testLogger
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func wavArtifact() core.Artifact {
	return core.Artifact{
		Filename:    "chunk_0003.wav",
		ContentType: "audio/wav",
		Data:        []byte("RIFF$\x00\x00\x00WAVE"),
		ChunkIDs:    []int{7},
		FirstIndex:  3,
	}
}

func TestDirExporter_Export(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "out")
	exporter := export.NewDirExporter(dir, newTestLogger(t))

	path, err := exporter.Export(context.Background(), wavArtifact())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chunk_0003.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wavArtifact().Data, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDirExporter_SanitizesName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exporter := export.NewDirExporter(dir, newTestLogger(t))

	artifact := wavArtifact()
	artifact.Filename = "../evil:name?.wav"

	path, err := exporter.Export(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".._evil_name_.wav", filepath.Base(path))
}

func TestDirExporter_Errors(t *testing.T) {
	t.Parallel()

	exporter := export.NewDirExporter(t.TempDir(), newTestLogger(t))

	_, err := exporter.Export(context.Background(), core.Artifact{Filename: "x.wav"})
	require.ErrorIs(t, err, export.ErrEmptyArtifact)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = exporter.Export(ctx, wavArtifact())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"chunk_0001.wav":    "chunk_0001.wav",
		"a/b\\c.wav":        "a_b_c.wav",
		"<x>|\"y\"*.zip":    "_x___y__.zip",
		"  ":                "export.bin",
		"..":                "export.bin",
		"speech_chunks.zip": "speech_chunks.zip",
	}

	for input, want := range tests {
		assert.Equal(t, want, export.SanitizeFilename(input), input)
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", export.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", export.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", export.FormatFileSize(2*1024*1024))
	assert.Equal(t, "1.0 GB", export.FormatFileSize(1024*1024*1024))
}

func TestObjectStoreExporter_UploadsAndPublishes(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "EXPORTS")
	require.NoError(t, err)

	sub, err := natsConnection.SubscribeSync("speech.audio.exported")
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	exporter := export.NewObjectStoreExporter(store, natsConnection, "speech.audio.exported", newTestLogger(t))

	key, err := exporter.Export(context.Background(), wavArtifact())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, "-chunk_0003.wav"))

	stored, err := store.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, wavArtifact().Data, stored)

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event events.AudioChunkCreatedEvent

	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, key, event.AudioKey)
	assert.Equal(t, 3, event.PageNumber)
	assert.Equal(t, 1, event.TotalPages)
	assert.NotEmpty(t, event.Header.EventID)
	assert.NotEmpty(t, event.Header.WorkflowID)
}

func TestObjectStoreExporter_SharedWorkflow(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	sub, err := natsConnection.SubscribeSync("exports")
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	exporter := export.NewObjectStoreExporter(&mockObjectStore{}, natsConnection, "exports", newTestLogger(t))

	_, err = exporter.Export(context.Background(), wavArtifact())
	require.NoError(t, err)
	_, err = exporter.Export(context.Background(), wavArtifact())
	require.NoError(t, err)

	var first, second events.AudioChunkCreatedEvent

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Data, &first))

	msg, err = sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Data, &second))

	assert.Equal(t, first.Header.WorkflowID, second.Header.WorkflowID)
	assert.NotEqual(t, first.Header.EventID, second.Header.EventID)
	assert.NotEqual(t, first.AudioKey, second.AudioKey)
}

func TestObjectStoreExporter_UploadFailure(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{uploadShouldFail: true}
	exporter := export.NewObjectStoreExporter(store, nil, "", newTestLogger(t))

	_, err := exporter.Export(context.Background(), wavArtifact())
	require.ErrorIs(t, err, errMockUpload)

	_, err = exporter.Export(context.Background(), core.Artifact{})
	require.ErrorIs(t, err, export.ErrEmptyArtifact)
}

func TestObjectStoreExporter_PublishFailureRemovesUpload(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{}
	exporter := export.NewObjectStoreExporter(store, failingPublisher{}, "exports", newTestLogger(t))

	key, err := exporter.Export(context.Background(), wavArtifact())
	require.ErrorIs(t, err, errMockPublish)
	assert.Empty(t, key)
	assert.NotEmpty(t, store.uploadedKey)
	assert.Equal(t, store.uploadedKey, store.deletedKey)
}
