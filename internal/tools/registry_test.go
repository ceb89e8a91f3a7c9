package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digitaltwin/internal/llm"
	"digitaltwin/pkg/twintypes"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []twintypes.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg twintypes.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func newTestRegistry(t *testing.T, notifier twintypes.Notifier, opts Options) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(notifier, opts)
	require.NoError(t, err)
	return r
}

func TestRecordUserDetails_OmittedFieldsUseSentinel(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRegistry(t, notifier, Options{})

	out, err := r.Execute(context.Background(), llm.ToolCall{
		Name:      RecordUserDetailsName,
		Arguments: `{"email": "a@b.com"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, Ack, out)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Recording interest from\nName: not provided,\nEmail: a@b.com,\nNotes: not provided", notifier.sent[0].Body)
	assert.Empty(t, notifier.sent[0].Recipient, "owner is the default recipient")
}

func TestRecordUserDetails_AllFields(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRegistry(t, notifier, Options{})

	_, err := r.Execute(context.Background(), llm.ToolCall{
		Name:      RecordUserDetailsName,
		Arguments: `{"email": "a@b.com", "name": "Grace", "notes": "hiring for a Go role"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Recording interest from\nName: Grace,\nEmail: a@b.com,\nNotes: hiring for a Go role", notifier.sent[0].Body)
}

func TestRecordUnknownQuestion(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRegistry(t, notifier, Options{})

	out, err := r.Execute(context.Background(), llm.ToolCall{
		Name:      RecordUnknownQuestionName,
		Arguments: `{"question": "What is your favourite colour?"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, Ack, out)
	assert.Equal(t, "Recording question that was asked but I couldn't answer.\nQuestion: What is your favourite colour?", notifier.sent[0].Body)
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		notifier *recordingNotifier
		call     llm.ToolCall
		wantIs   error
		wantText string
	}{
		{
			name:     "unknown tool",
			notifier: &recordingNotifier{},
			call:     llm.ToolCall{Name: "delete_everything"},
			wantIs:   ErrUnknownTool,
		},
		{
			name:     "malformed arguments",
			notifier: &recordingNotifier{},
			call:     llm.ToolCall{Name: RecordUnknownQuestionName, Arguments: "{"},
			wantText: "invalid arguments",
		},
		{
			name:     "missing email",
			notifier: &recordingNotifier{},
			call:     llm.ToolCall{Name: RecordUserDetailsName, Arguments: `{"name": "x"}`},
			wantText: "requires an email",
		},
		{
			name:     "notifier failure is propagated",
			notifier: &recordingNotifier{err: errors.New("smtp down")},
			call:     llm.ToolCall{Name: RecordUnknownQuestionName, Arguments: `{"question": "q"}`},
			wantText: "smtp down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t, tt.notifier, Options{})
			_, err := r.Execute(context.Background(), tt.call)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
		})
	}
}

func TestSpecs(t *testing.T) {
	r := newTestRegistry(t, &recordingNotifier{}, Options{})

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, RecordUnknownQuestionName, specs[0].Name)
	assert.Equal(t, RecordUserDetailsName, specs[1].Name)
	assert.Equal(t, []string{"email"}, specs[1].Parameters.Required)
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(RecordUnknownQuestion(&recordingNotifier{})))
	assert.Error(t, r.Register(RecordUnknownQuestion(&recordingNotifier{})))
}

func TestShareResume(t *testing.T) {
	notifier := &recordingNotifier{}
	var fetched string
	fetch := func(_ context.Context, url string) (twintypes.Attachment, error) {
		fetched = url
		return twintypes.Attachment{Filename: "resume.pdf", ContentType: "application/pdf", Base64Content: "JVBERg=="}, nil
	}

	r := newTestRegistry(t, notifier, Options{ResumeURL: "https://example.com/resume.pdf", Fetch: fetch})
	require.Len(t, r.Specs(), 3)

	out, err := r.Execute(context.Background(), llm.ToolCall{
		Name:      ShareResumeName,
		Arguments: `{"email": "visitor@example.com", "name": "Grace"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, Ack, out)
	assert.Equal(t, "https://example.com/resume.pdf", fetched)

	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	assert.Equal(t, "visitor@example.com", sent.Recipient)
	assert.Contains(t, sent.Body, "Hello Grace")
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "resume.pdf", sent.Attachments[0].Filename)
}

func TestShareResume_FetchFailure(t *testing.T) {
	notifier := &recordingNotifier{}
	fetch := func(_ context.Context, _ string) (twintypes.Attachment, error) {
		return twintypes.Attachment{}, errors.New("404")
	}

	r := newTestRegistry(t, notifier, Options{ResumeURL: "https://example.com/resume.pdf", Fetch: fetch})
	_, err := r.Execute(context.Background(), llm.ToolCall{Name: ShareResumeName, Arguments: `{"email": "v@example.com"}`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch resume")
	assert.Empty(t, notifier.sent)
}
