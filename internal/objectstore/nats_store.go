// Package objectstore keeps exported speech audio in a NATS JetStream object
// store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Metadata keys written on every object.
const (
	MetaContentType = "content-type"
	MetaSource      = "source"
	sourceName      = "speech-studio"
)

var contentTypes = map[string]string{
	".wav": "audio/wav",
	".zip": "application/zip",
	".pcm": "audio/L16",
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string
	Size        uint64
	ContentType string
}

// NatsObjectStore implements core.ObjectStore on a JetStream object store.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Exported speech audio (%s).", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download retrieves an object.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object. Its content type is derived from the key extension.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: fmt.Sprintf("%d bytes of %s", len(data), contentTypeFor(key)),
		Metadata: map[string]string{
			MetaContentType: contentTypeFor(key),
			MetaSource:      sourceName,
		},
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Info returns the size and content type of a stored object.
func (n *NatsObjectStore) Info(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := n.store.GetInfo(key, nats.Context(ctx))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", key, n.bucket, err)
	}

	return ObjectInfo{
		Name:        info.Name,
		Size:        info.Size,
		ContentType: info.Metadata[MetaContentType],
	}, nil
}

// Delete removes an object.
func (n *NatsObjectStore) Delete(key string) error {
	err := n.store.Delete(key)
	if err != nil {
		return fmt.Errorf("failed to delete object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

func contentTypeFor(key string) string {
	if contentType, ok := contentTypes[path.Ext(key)]; ok {
		return contentType
	}

	return "application/octet-stream"
}
