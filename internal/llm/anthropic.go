package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"digitaltwin/internal/logger"
)

// anthropicMaxTokens is the response budget sent with every Anthropic request.
const anthropicMaxTokens = 2048

// AnthropicClient implements Client over Anthropic's messages API.
// Structured output is obtained by forcing a single tool whose input schema is the
// requested schema.
type AnthropicClient struct {
	cfg    ClientConfig
	mu     sync.Mutex
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client with lazy initialization.
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	cfg.Provider = "anthropic"
	return &AnthropicClient{cfg: cfg}
}

// ProviderName returns "anthropic".
func (c *AnthropicClient) ProviderName() string {
	return "anthropic"
}

// initializeClientIfNeeded initializes the Anthropic client if it hasn't been initialized yet.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if c.cfg.APIKey == "" {
		return fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(c.cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	if c.cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.cfg.Timeout))
	}

	client := anthropic.NewClient(opts...)
	c.client = &client

	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return nil
}

// Chat sends a plain messages request.
func (c *AnthropicClient) Chat(ctx context.Context, req Request) (string, error) {
	message, err := c.send(ctx, c.newParams(req))
	if err != nil {
		return "", err
	}
	return textOf(message)
}

// RunWithTools runs the tool-use loop until the model ends its turn.
func (c *AnthropicClient) RunWithTools(ctx context.Context, req Request, tools []ToolSpec, executor ToolExecutor) (string, error) {
	params := c.newParams(req)
	params.Tools = convertToolsToAnthropic(tools)

	for step := 0; step < c.cfg.maxToolSteps(); step++ {
		message, err := c.send(ctx, params)
		if err != nil {
			return "", err
		}

		var results []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			if block.Type != "tool_use" {
				continue
			}
			call := ToolCall{ID: block.ID, Name: block.Name, Arguments: string(block.Input)}
			logger.Debug("Executing tool call", "provider", "anthropic", "tool", call.Name)
			result, err := executor.Execute(ctx, call)
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			results = append(results, anthropic.NewToolResultBlock(block.ID, result, false))
		}

		if len(results) == 0 {
			logger.Debug("Anthropic tool run finished", "steps", step+1)
			return textOf(message)
		}

		params.Messages = append(params.Messages, message.ToParam(), anthropic.NewUserMessage(results...))
	}

	return "", fmt.Errorf("anthropic tool loop exceeded %d steps", c.cfg.maxToolSteps())
}

// Structured forces a call to a tool named name and decodes its input into out.
func (c *AnthropicClient) Structured(ctx context.Context, req Request, name string, schema *Schema, out any) error {
	params := c.newParams(req)
	params.Tools = []anthropic.ToolUnionParam{anthropicTool(ToolSpec{
		Name:        name,
		Description: "Record the structured result.",
		Parameters:  schema,
	})}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: name},
	}

	message, err := c.send(ctx, params)
	if err != nil {
		return err
	}
	for _, block := range message.Content {
		if block.Type == "tool_use" && block.Name == name {
			return decodeStructured(string(block.Input), out)
		}
	}
	return fmt.Errorf("anthropic did not call %s: %w", name, ErrEmptyResponse)
}

func (c *AnthropicClient) newParams(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages:  convertMessagesToAnthropic(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func (c *AnthropicClient) send(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}

	logger.Debug("Sending Anthropic request", "model", params.Model, "messages", len(params.Messages))
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	return message, nil
}

// textOf concatenates the text blocks of a message.
func textOf(message *anthropic.Message) (string, error) {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// convertMessagesToAnthropic converts messages to Anthropic format, skipping unknown roles.
func convertMessagesToAnthropic(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

func convertToolsToAnthropic(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, anthropicTool(tool))
	}
	return out
}

func anthropicTool(tool ToolSpec) anthropic.ToolUnionParam {
	var required []string
	if tool.Parameters != nil {
		required = tool.Parameters.Required
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.Parameters.propertyMaps(),
				Required:   required,
			},
		},
	}
}
