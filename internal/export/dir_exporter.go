package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-studio/internal/core"
)

// ErrEmptyArtifact is returned for an artifact without data.
var ErrEmptyArtifact = errors.New("artifact has no data")

// DirExporter writes artifacts into a local directory.
type DirExporter struct {
	dir string
	log *logger.Logger
}

// NewDirExporter returns an exporter writing into dir.
func NewDirExporter(dir string, log *logger.Logger) *DirExporter {
	return &DirExporter{dir: dir, log: log}
}

// Export implements core.Exporter and returns the written file path.
func (d *DirExporter) Export(ctx context.Context, artifact core.Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", ErrEmptyArtifact
	}

	err := ctx.Err()
	if err != nil {
		return "", fmt.Errorf("export cancelled: %w", err)
	}

	path, err := writeFile(d.dir, artifact.Filename, artifact.Data)
	if err != nil {
		return "", err
	}

	d.log.Info("Exported %s (%s, %d chunks)", path, FormatFileSize(int64(len(artifact.Data))), len(artifact.ChunkIDs))

	return path, nil
}
