package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

var conversationsBucket = []byte("conversations")

// BoltStore keeps histories in a single BoltDB file, one key per session.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(conversationsBucket)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create conversations bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Backend returns "bolt".
func (s *BoltStore) Backend() string {
	return "bolt"
}

// Load reads the session's history. An absent key is an empty history.
func (s *BoltStore) Load(ctx context.Context, id string) ([]twintypes.Record, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(conversationsBucket); b != nil {
			// Values are only valid inside the transaction
			data = append([]byte(nil), b.Get([]byte(id))...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	return decodeRecords(data)
}

// Save overwrites the session's history.
func (s *BoltStore) Save(ctx context.Context, id string, records []twintypes.Record) error {
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
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, e := tx.CreateBucketIfNotExists(conversationsBucket)
		if e != nil {
			return e
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", id, err)
	}

	logger.Debug("Conversation saved", "backend", "bolt", "session", id, "records", len(records))
	return nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
