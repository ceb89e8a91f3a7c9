package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// FileStore keeps one JSON file per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Backend returns "local".
func (s *FileStore) Backend() string {
	return "local"
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads the session file. A missing file is an empty history.
func (s *FileStore) Load(ctx context.Context, id string) ([]twintypes.Record, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return []twintypes.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	return decodeRecords(data)
}

// Save replaces the session file through a temporary file and rename.
func (s *FileStore) Save(ctx context.Context, id string, records []twintypes.Record) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecords(records)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // No-op after a successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write conversation %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		return fmt.Errorf("failed to replace conversation %s: %w", id, err)
	}

	logger.Debug("Conversation saved", "backend", "local", "session", id, "records", len(records))
	return nil
}
