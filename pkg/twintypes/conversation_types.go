package twintypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// Roles recorded in a session's history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record represents a single entry in a session's conversation history.
// Records are append-only: once created they are never mutated.
type Record struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord creates a record stamped with the given time.
func NewRecord(role, content string, at time.Time) Record {
	return Record{Role: role, Content: content, Timestamp: at}
}

// timestampLayouts are tried in order when decoding a stored timestamp. Histories
// written by earlier deployments carry ISO-8601 stamps without a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an RFC3339 timestamp or a zone-less ISO-8601 one.
// Zone-less timestamps are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if at, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return at, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// UnmarshalJSON decodes a record, accepting every layout ParseTimestamp understands.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var at time.Time
	if raw.Timestamp != "" {
		parsed, err := ParseTimestamp(raw.Timestamp)
		if err != nil {
			return err
		}
		at = parsed
	}
	*r = Record{Role: raw.Role, Content: raw.Content, Timestamp: at}
	return nil
}

// Evaluation is the evaluator's judgment of a draft reply. It is consumed within the
// turn that produced it and never persisted.
type Evaluation struct {
	IsAcceptable bool   `json:"is_acceptable"`
	Feedback     string `json:"feedback"`
}

// CloneRecords returns a copy of the history so callers can extend it without
// aliasing the caller's backing array.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records), len(records)+2)
	copy(out, records)
	return out
}
