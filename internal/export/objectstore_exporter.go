package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used to announce exports.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// remover is implemented by stores that can delete an object, such as
// objectstore.NatsObjectStore.
type remover interface {
	Delete(key string) error
}

// ObjectStoreExporter uploads artifacts to an object store and announces each
// upload with an AudioChunkCreatedEvent.
type ObjectStoreExporter struct {
	store      core.ObjectStore
	publisher  Publisher
	subject    string
	workflowID string
	log        *logger.Logger
}

// NewObjectStoreExporter creates an exporter. All events of one exporter share
// a workflow id.
func NewObjectStoreExporter(
	store core.ObjectStore,
	publisher Publisher,
	subject string,
	log *logger.Logger,
) *ObjectStoreExporter {
	return &ObjectStoreExporter{
		store:      store,
		publisher:  publisher,
		subject:    subject,
		workflowID: uuid.NewString(),
		log:        log,
	}
}

// Export implements core.Exporter and returns the object key.
func (o *ObjectStoreExporter) Export(ctx context.Context, artifact core.Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", ErrEmptyArtifact
	}

	key := uuid.NewString() + "-" + SanitizeFilename(artifact.Filename)

	err := o.store.Upload(ctx, key, artifact.Data)
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact '%s': %w", key, err)
	}

	event := &events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: o.workflowID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey:   key,
		PageNumber: artifact.FirstIndex,
		TotalPages: len(artifact.ChunkIDs),
	}

	err = o.publish(event)
	if err != nil {
		return o.discard(key, err)
	}

	o.log.Info("Uploaded %s (%s) and published on %s", key, FormatFileSize(int64(len(artifact.Data))), o.subject)

	return key, nil
}

// discard removes an upload that was never announced. The key is returned only
// when the object could not be removed.
func (o *ObjectStoreExporter) discard(key string, cause error) (string, error) {
	store, ok := o.store.(remover)
	if !ok {
		return key, cause
	}

	err := store.Delete(key)
	if err != nil {
		o.log.Warn("Failed to remove unannounced upload %s: %v", key, err)

		return key, cause
	}

	o.log.Warn("Removed unannounced upload %s", key)

	return "", cause
}

func (o *ObjectStoreExporter) publish(event *events.AudioChunkCreatedEvent) error {
	if o.publisher == nil || o.subject == "" {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal export event: %w", err)
	}

	err = o.publisher.Publish(o.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish export event on %s: %w", o.subject, err)
	}

	return nil
}
