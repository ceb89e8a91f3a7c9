package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitaltwin/internal/config"
	"digitaltwin/pkg/twintypes"
)

func testMailjetConfig() MailjetConfig {
	return MailjetConfig{
		APIKey:    "key",
		APISecret: "secret",
		FromEmail: "twin@example.com",
		FromName:  "AI Twin",
		ToEmail:   "owner@example.com",
	}
}

func newCapturingNotifier(t *testing.T, err error) (*MailjetNotifier, *[]*mailjet.MessagesV31) {
	t.Helper()
	n, newErr := NewMailjetNotifier(testMailjetConfig())
	require.NoError(t, newErr)

	var captured []*mailjet.MessagesV31
	n.send = func(messages *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		captured = append(captured, messages)
		return &mailjet.ResultsV31{}, err
	}
	return n, &captured
}

func TestMailjetNotifier_OwnerNotification(t *testing.T) {
	n, captured := newCapturingNotifier(t, nil)

	require.NoError(t, n.Send(context.Background(), twintypes.Notification{Body: "Recording question"}))

	require.Len(t, *captured, 1)
	info := (*captured)[0].Info[0]
	assert.Equal(t, DefaultSubject, info.Subject)
	assert.Equal(t, "Recording question", info.TextPart)
	assert.Equal(t, "twin@example.com", info.From.Email)
	require.Len(t, *info.To, 1)
	assert.Equal(t, "owner@example.com", (*info.To)[0].Email)
	assert.Nil(t, info.Attachments)
}

func TestMailjetNotifier_VisitorWithAttachment(t *testing.T) {
	n, captured := newCapturingNotifier(t, nil)

	err := n.Send(context.Background(), twintypes.Notification{
		Subject:   "Requested resume",
		Body:      "attached",
		Recipient: "visitor@example.com",
		Attachments: []twintypes.Attachment{
			{Filename: "resume.pdf", ContentType: "application/pdf", Base64Content: "JVBERg=="},
		},
	})
	require.NoError(t, err)

	info := (*captured)[0].Info[0]
	assert.Equal(t, "Requested resume", info.Subject)
	assert.Equal(t, "visitor@example.com", (*info.To)[0].Email)
	require.NotNil(t, info.Attachments)
	assert.Equal(t, "resume.pdf", (*info.Attachments)[0].Filename)
}

func TestMailjetNotifier_SendError(t *testing.T) {
	n, _ := newCapturingNotifier(t, errors.New("401 unauthorized"))

	err := n.Send(context.Background(), twintypes.Notification{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestNewMailjetNotifier_NotConfigured(t *testing.T) {
	cfg := testMailjetConfig()
	cfg.ToEmail = ""

	_, err := NewMailjetNotifier(cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNew_FallsBackToLogNotifier(t *testing.T) {
	assert.IsType(t, LogNotifier{}, New(&config.Config{}))

	cfg := &config.Config{
		MailjetAPIKey:    "key",
		MailjetAPISecret: "secret",
		MailjetFromEmail: "twin@example.com",
		MailjetToEmail:   "owner@example.com",
	}
	assert.IsType(t, &MailjetNotifier{}, New(cfg))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Send(context.Background(), twintypes.Notification{Body: "hello"}))
}

func TestFetchAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/resume.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)

	att, err := f.FetchAttachment(context.Background(), srv.URL+"/docs/resume.pdf")
	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), att.Base64Content)

	_, err = f.FetchAttachment(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = f.FetchAttachment(context.Background(), "")
	assert.Error(t, err)
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "cv.pdf", attachmentName("https://example.com/files/cv.pdf?dl=1"))
	assert.Equal(t, "attachment", attachmentName("https://example.com/"))
}
