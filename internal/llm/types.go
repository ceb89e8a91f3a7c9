// Package llm provides a provider-neutral model invocation layer with plain chat, a
// multi-step tool-calling loop and schema-constrained structured output.
package llm

import (
	"context"
	"errors"
	"time"
)

// Message roles understood by every client.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxToolSteps bounds the number of model round trips in RunWithTools.
const DefaultMaxToolSteps = 8

var (
	// ErrNotConfigured is returned when a client has no API key.
	ErrNotConfigured = errors.New("llm client not configured")
	// ErrEmptyResponse is returned when the provider answers without any usable content.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Message is one conversational message sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request is a single model invocation.
type Request struct {
	Model    string
	System   string
	Messages []Message
}

// ToolSpec declares a capability the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ToolCall is a model-directed invocation of a declared tool.
// Arguments holds the raw JSON object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolExecutor resolves tool calls requested by the model.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall) (string, error)
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, call ToolCall) (string, error)

// Execute calls f.
func (f ToolExecutorFunc) Execute(ctx context.Context, call ToolCall) (string, error) {
	return f(ctx, call)
}

// Client is the model invocation layer used by the twin.
type Client interface {
	// ProviderName returns the provider identifier (e.g. "openai").
	ProviderName() string
	// Chat returns the model's text reply.
	Chat(ctx context.Context, req Request) (string, error)
	// RunWithTools lets the model call tools until it produces final text.
	// Executor errors abort the run and are returned wrapped.
	RunWithTools(ctx context.Context, req Request, tools []ToolSpec, executor ToolExecutor) (string, error)
	// Structured decodes a reply conforming to schema into out.
	Structured(ctx context.Context, req Request, name string, schema *Schema, out any) error
}

// ClientConfig configures a provider client.
type ClientConfig struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	MaxToolSteps int
}

func (c ClientConfig) maxToolSteps() int {
	if c.MaxToolSteps < 1 {
		return DefaultMaxToolSteps
	}
	return c.MaxToolSteps
}
