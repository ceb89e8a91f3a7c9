// Package conversation persists per-session conversation logs. Every backend stores the
// whole ordered record list of a session and overwrites it on save.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"digitaltwin/internal/config"
	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// ErrInvalidSessionID is returned for ids that cannot be used as a storage key.
var ErrInvalidSessionID = errors.New("invalid session id")

// maxSessionIDLength bounds ids used as file names and object keys.
const maxSessionIDLength = 128

// ValidateSessionID rejects ids that are empty, too long, or could escape the storage namespace.
func ValidateSessionID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	case len(id) > maxSessionIDLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidSessionID, maxSessionIDLength)
	case strings.ContainsAny(id, `/\`) || strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q contains a path element", ErrInvalidSessionID, id)
	case strings.ContainsFunc(id, func(r rune) bool { return r < 0x20 || r == 0x7f }):
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidSessionID, id)
	}
	return nil
}

// encodeRecords renders a history as an indented JSON array.
func encodeRecords(records []twintypes.Record) ([]byte, error) {
	if records == nil {
		records = []twintypes.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}
	return data, nil
}

// decodeRecords parses a stored history. Empty input is an empty history.
func decodeRecords(data []byte) ([]twintypes.Record, error) {
	records := []twintypes.Record{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return records, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open creates the store selected by cfg.Storage. The returned closer releases the
// backend's resources.
func Open(ctx context.Context, cfg *config.Config) (twintypes.ConversationStore, io.Closer, error) {
	logger.ServiceOperation("conversation", "open", "starting", "storage", cfg.Storage)

	switch cfg.Storage {
	case config.StorageLocal, "":
		store, err := NewFileStore(cfg.MemoryDir)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.StorageMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case config.StorageS3:
		store, err := NewS3StoreFromConfig(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.StorageBolt:
		store, err := NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.StorageSQLite:
		store, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend '%s'", cfg.Storage)
	}
}
