package twintypes

import "context"

// ConversationStore persists session histories keyed by session identifier.
// Load returns an empty slice for an unknown identifier. Save overwrites the
// whole history for the identifier.
type ConversationStore interface {
	Load(ctx context.Context, sessionID string) ([]Record, error)
	Save(ctx context.Context, sessionID string, records []Record) error
	Backend() string
}

// Attachment is a binary document embedded in a notification as base64.
type Attachment struct {
	Filename      string
	ContentType   string
	Base64Content string
}

// Notification is an outbound message to the persona owner or, for resume
// requests, to a visitor. An empty Recipient means the configured owner address.
type Notification struct {
	Subject     string
	Body        string
	Recipient   string
	Attachments []Attachment
}

// Notifier delivers notifications. Send returns once the provider has confirmed
// (or rejected) the message.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
