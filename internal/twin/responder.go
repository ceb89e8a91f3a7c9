// Package twin implements the evaluate-and-retry chat turn: drafting a reply with the
// tool-enabled agent, judging it with an evaluator model, correcting it once when it
// is rejected, and persisting the extended conversation.
package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"digitaltwin/internal/llm"
	"digitaltwin/internal/logger"
	"digitaltwin/internal/prompt"
	"digitaltwin/pkg/twintypes"
)

// Drafter produces a draft reply for a message given the prior conversation.
type Drafter interface {
	Respond(ctx context.Context, history []twintypes.Record, message string) (string, error)
}

// ToolSet is the set of tools offered to the agent.
type ToolSet interface {
	llm.ToolExecutor
	Specs() []llm.ToolSpec
}

// Responder drafts replies with the tool-enabled agent.
type Responder struct {
	client  llm.Client
	model   string
	prompts *prompt.Builder
	tools   ToolSet
}

// NewResponder creates a responder. A nil tool set runs the agent without tools.
func NewResponder(client llm.Client, model string, prompts *prompt.Builder, tools ToolSet) *Responder {
	return &Responder{client: client, model: model, prompts: prompts, tools: tools}
}

// Respond serializes the history and message into a single agent input and runs the
// agent until it produces final text.
func (r *Responder) Respond(ctx context.Context, history []twintypes.Record, message string) (string, error) {
	input, err := prompt.AgentInput(history, message)
	if err != nil {
		return "", err
	}

	req := llm.Request{
		Model:    r.model,
		System:   r.prompts.AgentSystemPrompt(),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: input}},
	}

	var out string
	if r.tools == nil {
		out, err = r.client.Chat(ctx, req)
	} else {
		out, err = r.client.RunWithTools(ctx, req, r.tools.Specs(), r.tools)
	}
	if err != nil {
		return "", fmt.Errorf("agent run failed: %w", err)
	}

	logger.Debug("Draft produced", "provider", r.client.ProviderName(), "length", len(out))
	return CoerceText(out), nil
}

// CoerceText converts an agent output to plain text. Maps are rendered as JSON with
// sorted keys; other non-text values are formatted with fmt.
func CoerceText(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	case []byte:
		return string(out)
	case fmt.Stringer:
		return out.String()
	}

	if reflect.ValueOf(v).Kind() == reflect.Map {
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
