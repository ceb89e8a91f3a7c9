package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"digitaltwin/internal/llm"
	"digitaltwin/internal/prompt"
	"digitaltwin/pkg/twintypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testPersona() *twintypes.Persona {
	return twintypes.NewPersona(
		"Ada", "Ada Lovelace",
		[]twintypes.Fact{{Key: "location", Value: "London"}},
		"Python and Go engineer",
		"Warm and precise",
		"RESUME: Python, Go",
		"PROFILE",
	)
}

func testPrompts() *prompt.Builder {
	return prompt.New(testPersona(), prompt.WithClock(func() time.Time { return fixedNow }))
}

// fakeClient is a scripted llm.Client.
type fakeClient struct {
	mu sync.Mutex

	chatReply string
	chatErr   error

	runReply  string
	runErr    error
	toolCalls []llm.ToolCall

	structured    any
	structuredErr error

	chatRequests       []llm.Request
	runRequests        []llm.Request
	structuredRequests []llm.Request
	structuredNames    []string
	offeredTools       [][]llm.ToolSpec
}

func (f *fakeClient) ProviderName() string { return "fake" }

func (f *fakeClient) Chat(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatRequests = append(f.chatRequests, req)
	return f.chatReply, f.chatErr
}

func (f *fakeClient) RunWithTools(ctx context.Context, req llm.Request, tools []llm.ToolSpec, executor llm.ToolExecutor) (string, error) {
	f.mu.Lock()
	f.runRequests = append(f.runRequests, req)
	f.offeredTools = append(f.offeredTools, tools)
	calls := f.toolCalls
	f.mu.Unlock()

	for _, call := range calls {
		if _, err := executor.Execute(ctx, call); err != nil {
			return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
		}
	}
	return f.runReply, f.runErr
}

func (f *fakeClient) Structured(_ context.Context, req llm.Request, name string, _ *llm.Schema, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structuredRequests = append(f.structuredRequests, req)
	f.structuredNames = append(f.structuredNames, name)
	if f.structuredErr != nil {
		return f.structuredErr
	}
	data, err := json.Marshal(f.structured)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// stubResponder returns a fixed draft.
type stubResponder struct {
	draft string
	err   error
	calls int
}

func (s *stubResponder) Respond(_ context.Context, _ []twintypes.Record, _ string) (string, error) {
	s.calls++
	return s.draft, s.err
}

// stubJudge returns a fixed evaluation and rerun output and records the rerun inputs.
type stubJudge struct {
	evaluation  twintypes.Evaluation
	evaluateErr error
	rerunReply  string
	rerunErr    error

	evaluateCalls int
	rerunCalls    int
	rerunPrompt   string
	rerunRejected string
	rerunFeedback string
	rerunHistory  []twintypes.Record
}

func (s *stubJudge) Evaluate(_ context.Context, _, _ string, _ []twintypes.Record) (twintypes.Evaluation, error) {
	s.evaluateCalls++
	return s.evaluation, s.evaluateErr
}

func (s *stubJudge) Rerun(_ context.Context, basePrompt, rejectedReply, _ string, history []twintypes.Record, feedback string) (string, error) {
	s.rerunCalls++
	s.rerunPrompt = prompt.RerunSystemPrompt(basePrompt, rejectedReply, feedback)
	s.rerunRejected = rejectedReply
	s.rerunFeedback = feedback
	s.rerunHistory = history
	return s.rerunReply, s.rerunErr
}

// recordingStore is an in-memory store that records every call.
type recordingStore struct {
	sessions  map[string][]twintypes.Record
	loadErr   error
	saveErr   error
	loads     []string
	saves     [][]twintypes.Record
	savedKeys []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{sessions: map[string][]twintypes.Record{}}
}

func (s *recordingStore) Backend() string { return "recording" }

func (s *recordingStore) Load(_ context.Context, id string) ([]twintypes.Record, error) {
	s.loads = append(s.loads, id)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return twintypes.CloneRecords(s.sessions[id]), nil
}

func (s *recordingStore) Save(_ context.Context, id string, records []twintypes.Record) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, twintypes.CloneRecords(records))
	s.savedKeys = append(s.savedKeys, id)
	s.sessions[id] = twintypes.CloneRecords(records)
	return nil
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	sent []twintypes.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg twintypes.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}
