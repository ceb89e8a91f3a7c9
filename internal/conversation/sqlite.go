package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_records (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// SQLiteStore keeps one row per record. Saving a session replaces all of its rows in a
// single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Backend returns "sqlite".
func (s *SQLiteStore) Backend() string {
	return "sqlite"
}

// Load returns the session's records in order.
func (s *SQLiteStore) Load(ctx context.Context, id string) ([]twintypes.Record, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp FROM conversation_records WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	records := []twintypes.Record{}
	for rows.Next() {
		var role, content, stamp string
		if err := rows.Scan(&role, &content, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		at, err := twintypes.ParseTimestamp(stamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q in conversation %s: %w", stamp, id, err)
		}
		records = append(records, twintypes.NewRecord(role, content, at))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	return records, nil
}

// Save replaces the session's rows.
func (s *SQLiteStore) Save(ctx context.Context, id string, records []twintypes.Record) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_records WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", id, err)
	}
	for i, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_records (session_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			id, i, rec.Role, rec.Content, rec.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert record %d of %s: %w", i, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation %s: %w", id, err)
	}

	logger.Debug("Conversation saved", "backend", "sqlite", "session", id, "records", len(records))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
