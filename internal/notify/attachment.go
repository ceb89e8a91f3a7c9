package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// maxAttachmentSize caps downloaded documents at the Mailjet attachment limit.
const maxAttachmentSize = 15 << 20

// Fetcher downloads static documents for use as email attachments.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchAttachment downloads rawURL and returns it base64 encoded.
func (f *Fetcher) FetchAttachment(ctx context.Context, rawURL string) (twintypes.Attachment, error) {
	if rawURL == "" {
		return twintypes.Attachment{}, fmt.Errorf("URL is required")
	}

	logger.Debug("Fetching attachment", "url", rawURL, "timeout", f.client.Timeout.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return twintypes.Attachment{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Error("Failed to fetch attachment", "error", err, "url", rawURL)
		return twintypes.Attachment{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error on close
	}()

	if resp.StatusCode != http.StatusOK {
		return twintypes.Attachment{}, fmt.Errorf("unexpected status fetching %s: %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return twintypes.Attachment{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxAttachmentSize {
		return twintypes.Attachment{}, fmt.Errorf("attachment %s exceeds %d bytes", rawURL, maxAttachmentSize)
	}

	filename := attachmentName(rawURL)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	logger.Debug("Attachment fetched", "url", rawURL, "bytes", len(data), "content_type", contentType)
	return twintypes.Attachment{
		Filename:      filename,
		ContentType:   contentType,
		Base64Content: base64.StdEncoding.EncodeToString(data),
	}, nil
}

func attachmentName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "attachment"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
