package chunk

import (
	"bytes"
	"fmt"
	"time"

	"github.com/book-expert/speech-studio/internal/audio"
	"github.com/book-expert/speech-studio/internal/core"
	"github.com/klauspost/compress/zip"
)

// Export naming and content types.
const (
	chunkFileFormat    = "chunk_%04d.wav"
	ArchiveName        = "speech_chunks.zip"
	ContentTypeWAV     = "audio/wav"
	ContentTypeArchive = "application/zip"
)

// ChunkFilename returns the deterministic WAV file name for the chunk at the
// given 1-based list position.
func ChunkFilename(index int) string {
	return fmt.Sprintf(chunkFileFormat, index)
}

// DownloadSelected packages the selected chunks: one selected chunk becomes a
// single WAV file, several become a ZIP archive with one WAV per chunk.
func (s *Store) DownloadSelected() (core.Artifact, error) {
	selected := s.selectedChunks()

	switch len(selected) {
	case 0:
		return core.Artifact{}, ErrNothingSelected
	case 1:
		return s.wavArtifact(selected[0])
	default:
		return s.archiveArtifact(selected)
	}
}

// DownloadChunk packages one completed chunk as a WAV file, regardless of
// selection.
func (s *Store) DownloadChunk(id int) (core.Artifact, error) {
	snapshot, err := s.Get(id)
	if err != nil {
		return core.Artifact{}, err
	}

	if snapshot.Status != StatusCompleted {
		return core.Artifact{}, fmt.Errorf(errFmtNotPlayable, core.ErrNotPlayable, id, snapshot.Status)
	}

	return s.wavArtifact(snapshot)
}

func (s *Store) selectedChunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selected []Chunk

	for i, id := range s.order {
		rec := s.records[id]
		if rec.selected && rec.status == StatusCompleted {
			selected = append(selected, rec.snapshot(i+1))
		}
	}

	return selected
}

func (s *Store) wavArtifact(snapshot Chunk) (core.Artifact, error) {
	wav, err := audio.BuildWavContainer(snapshot.Audio, s.format.SampleRate, s.format.Channels)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("failed to build WAV for chunk %d: %w", snapshot.ID, err)
	}

	return core.Artifact{
		Filename:    ChunkFilename(snapshot.Index),
		ContentType: ContentTypeWAV,
		Data:        wav,
		ChunkIDs:    []int{snapshot.ID},
		FirstIndex:  snapshot.Index,
	}, nil
}

func (s *Store) archiveArtifact(selected []Chunk) (core.Artifact, error) {
	var buf bytes.Buffer

	writer := zip.NewWriter(&buf)
	ids := make([]int, 0, len(selected))
	modified := time.Now()

	for _, snapshot := range selected {
		wav, err := audio.BuildWavContainer(snapshot.Audio, s.format.SampleRate, s.format.Channels)
		if err != nil {
			return core.Artifact{}, fmt.Errorf("failed to build WAV for chunk %d: %w", snapshot.ID, err)
		}

		entry, err := writer.CreateHeader(&zip.FileHeader{
			Name:     ChunkFilename(snapshot.Index),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return core.Artifact{}, fmt.Errorf("failed to add chunk %d to archive: %w", snapshot.ID, err)
		}

		_, err = entry.Write(wav)
		if err != nil {
			return core.Artifact{}, fmt.Errorf("failed to write chunk %d to archive: %w", snapshot.ID, err)
		}

		ids = append(ids, snapshot.ID)
	}

	err := writer.Close()
	if err != nil {
		return core.Artifact{}, fmt.Errorf("failed to finish archive: %w", err)
	}

	return core.Artifact{
		Filename:    ArchiveName,
		ContentType: ContentTypeArchive,
		Data:        buf.Bytes(),
		ChunkIDs:    ids,
		FirstIndex:  selected[0].Index,
	}, nil
}
