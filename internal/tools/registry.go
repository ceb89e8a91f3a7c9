// Package tools implements the side-effecting capabilities the twin agent may call
// while drafting a reply. Each tool sends a notification and returns a short
// acknowledgement.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"digitaltwin/internal/llm"
	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// Ack is returned to the model after a successful tool invocation.
const Ack = "ok"

// ErrUnknownTool is returned when the model calls a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool invocation with raw JSON arguments.
type Handler func(ctx context.Context, arguments string) (string, error)

// Tool couples a tool declaration with its handler.
type Tool struct {
	Spec    llm.ToolSpec
	Handler Handler
}

// Registry holds the tools offered to the agent. It implements llm.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, returning an error if the name is taken.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Spec.Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Specs returns the declarations of every registered tool, sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute dispatches a model-directed call to its handler. Handler errors are returned as is.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	r.mu.RLock()
	tool, exists := r.tools[call.Name]
	r.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	logger.Debug("Tool invoked", "tool", call.Name, "call_id", call.ID)
	result, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		logger.Error("Tool failed", "tool", call.Name, "error", err)
		return "", err
	}
	return result, nil
}

// decodeArgs unmarshals the model's JSON arguments into dst.
func decodeArgs(tool, arguments string, dst any) error {
	if arguments == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", tool, err)
	}
	return nil
}

// Options selects the optional tools of the default registry.
type Options struct {
	// ResumeURL enables share_resume when non-empty.
	ResumeURL string
	// Fetch downloads the resume for share_resume.
	Fetch AttachmentFetcher
}

// NewDefaultRegistry registers record_user_details, record_unknown_question and,
// when a resume URL is configured, share_resume.
func NewDefaultRegistry(notifier twintypes.Notifier, opts Options) (*Registry, error) {
	r := NewRegistry()

	tools := []Tool{RecordUserDetails(notifier), RecordUnknownQuestion(notifier)}
	if opts.ResumeURL != "" && opts.Fetch != nil {
		tools = append(tools, ShareResume(notifier, opts.ResumeURL, opts.Fetch))
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}

	logger.ServiceOperation("tools", "register", "completed", "count", len(tools))
	return r, nil
}
