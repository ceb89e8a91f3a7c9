// Package notify delivers owner notifications raised by the twin's tools.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailjet/mailjet-apiv3-go/v4"

	"digitaltwin/internal/config"
	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// DefaultSubject is used for notifications that do not set one.
const DefaultSubject = "Notification from AI Twin"

// ownerName labels the default recipient.
const ownerName = "Ai Twin Owner"

// ErrNotConfigured is returned when Mailjet credentials or addresses are missing.
var ErrNotConfigured = errors.New("mailjet not configured")

// MailjetConfig holds the sender credentials and addresses.
type MailjetConfig struct {
	APIKey    string
	APISecret string
	FromEmail string
	FromName  string
	ToEmail   string
}

func (c MailjetConfig) validate() error {
	if c.APIKey == "" || c.APISecret == "" || c.FromEmail == "" || c.ToEmail == "" {
		return ErrNotConfigured
	}
	return nil
}

// sendFunc submits a v3.1 send request.
type sendFunc func(messages *mailjet.MessagesV31) (*mailjet.ResultsV31, error)

// MailjetNotifier sends notifications through the Mailjet v3.1 send API.
type MailjetNotifier struct {
	cfg  MailjetConfig
	send sendFunc
}

// NewMailjetNotifier creates a notifier for cfg.
func NewMailjetNotifier(cfg MailjetConfig) (*MailjetNotifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := mailjet.NewMailjetClient(cfg.APIKey, cfg.APISecret)
	return &MailjetNotifier{
		cfg: cfg,
		send: func(messages *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(messages)
		},
	}, nil
}

// Send delivers one notification. An empty recipient addresses the owner.
func (n *MailjetNotifier) Send(ctx context.Context, msg twintypes.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{n.buildMessage(msg)}}

	logger.Debug("Sending Mailjet notification", "subject", messages.Info[0].Subject, "attachments", len(msg.Attachments))
	if _, err := n.send(messages); err != nil {
		logger.Error("Mailjet send failed", "error", err)
		return fmt.Errorf("mailjet send failed: %w", err)
	}
	recipient := msg.Recipient
	if recipient == "" {
		recipient = n.cfg.ToEmail
	}
	logger.Info("Notification sent", "recipient", recipient)
	return nil
}

func (n *MailjetNotifier) buildMessage(msg twintypes.Notification) mailjet.InfoMessagesV31 {
	subject := msg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	to := mailjet.RecipientV31{Email: n.cfg.ToEmail, Name: ownerName}
	if msg.Recipient != "" {
		to = mailjet.RecipientV31{Email: msg.Recipient}
	}

	info := mailjet.InfoMessagesV31{
		From:     &mailjet.RecipientV31{Email: n.cfg.FromEmail, Name: n.cfg.FromName},
		To:       &mailjet.RecipientsV31{to},
		Subject:  subject,
		TextPart: msg.Body,
	}
	if len(msg.Attachments) > 0 {
		attachments := make(mailjet.AttachmentsV31, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			attachments = append(attachments, mailjet.AttachmentV31{
				ContentType:   a.ContentType,
				Filename:      a.Filename,
				Base64Content: a.Base64Content,
			})
		}
		info.Attachments = &attachments
	}
	return info
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct{}

// Send logs the notification.
func (LogNotifier) Send(_ context.Context, msg twintypes.Notification) error {
	subject := msg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	recipient := msg.Recipient
	if recipient == "" {
		recipient = "owner"
	}
	logger.Info("Notification (not sent, mailjet not configured)",
		"recipient", recipient, "subject", subject, "body", msg.Body, "attachments", len(msg.Attachments))
	return nil
}

// New returns a Mailjet notifier when cfg carries credentials and a LogNotifier otherwise.
func New(cfg *config.Config) twintypes.Notifier {
	if !cfg.MailjetConfigured() {
		logger.Warn("Mailjet not configured, notifications will only be logged")
		return LogNotifier{}
	}
	notifier, err := NewMailjetNotifier(MailjetConfig{
		APIKey:    cfg.MailjetAPIKey,
		APISecret: cfg.MailjetAPISecret,
		FromEmail: cfg.MailjetFromEmail,
		FromName:  cfg.MailjetFromName,
		ToEmail:   cfg.MailjetToEmail,
	})
	if err != nil {
		logger.Warn("Mailjet notifier unavailable, notifications will only be logged", "error", err)
		return LogNotifier{}
	}
	logger.ServiceOperation("notify", "initialize", "completed", "backend", "mailjet")
	return notifier
}
