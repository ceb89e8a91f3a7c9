package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"digitaltwin/internal/logger"
)

// OpenRouterBaseURL is used for the openrouter provider when no base URL is configured.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenAIClient implements Client over the OpenAI chat completions API.
// It also serves OpenAI-compatible endpoints such as OpenRouter.
// The underlying SDK client is created on first use.
type OpenAIClient struct {
	cfg    ClientConfig
	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client with lazy initialization.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Provider == "openrouter" && cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	return &OpenAIClient{cfg: cfg}
}

// ProviderName returns the configured provider name.
func (c *OpenAIClient) ProviderName() string {
	return c.cfg.Provider
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%s: %w", c.cfg.Provider, ErrNotConfigured)
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

	client := openai.NewClient(opts...)
	c.client = &client

	logger.Debug("OpenAI client initialized", "provider", c.cfg.Provider, "base_url", c.cfg.BaseURL)
	return nil
}

// Chat sends a plain chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (string, error) {
	completion, err := c.complete(ctx, c.newParams(req))
	if err != nil {
		return "", err
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	logger.Debug("OpenAI response received", "provider", c.cfg.Provider, "content_length", len(content))
	return content, nil
}

// RunWithTools runs the function-calling loop until the model stops requesting tools.
func (c *OpenAIClient) RunWithTools(ctx context.Context, req Request, tools []ToolSpec, executor ToolExecutor) (string, error) {
	params := c.newParams(req)
	params.Tools = convertToolsToOpenAI(tools)

	for step := 0; step < c.cfg.maxToolSteps(); step++ {
		completion, err := c.complete(ctx, params)
		if err != nil {
			return "", err
		}

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			if strings.TrimSpace(message.Content) == "" {
				return "", ErrEmptyResponse
			}
			logger.Debug("OpenAI tool run finished", "provider", c.cfg.Provider, "steps", step+1)
			return message.Content, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		for _, tc := range message.ToolCalls {
			call := ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			logger.Debug("Executing tool call", "provider", c.cfg.Provider, "tool", call.Name)
			result, err := executor.Execute(ctx, call)
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(result, tc.ID))
		}
	}

	return "", fmt.Errorf("%s tool loop exceeded %d steps", c.cfg.Provider, c.cfg.maxToolSteps())
}

// Structured requests a strict json_schema response and decodes it into out.
func (c *OpenAIClient) Structured(ctx context.Context, req Request, name string, schema *Schema, out any) error {
	params := c.newParams(req)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   name,
				Strict: openai.Bool(true),
				Schema: schema.Map(),
			},
		},
	}

	completion, err := c.complete(ctx, params)
	if err != nil {
		return err
	}
	return decodeStructured(completion.Choices[0].Message.Content, out)
}

func (c *OpenAIClient) newParams(req Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: convertMessagesToOpenAI(req),
	}
}

func (c *OpenAIClient) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", c.cfg.Provider, err)
	}

	logger.Debug("Sending chat completion request", "provider", c.cfg.Provider, "model", params.Model, "messages", len(params.Messages))
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("Chat completion request failed", "provider", c.cfg.Provider, "error", err)
		return nil, fmt.Errorf("%s request failed: %w", c.cfg.Provider, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices: %w", c.cfg.Provider, ErrEmptyResponse)
	}
	return completion, nil
}

// convertMessagesToOpenAI converts a request to OpenAI message params, system prompt first.
func convertMessagesToOpenAI(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			// Skip unknown roles
			continue
		}
	}
	return messages
}

func convertToolsToOpenAI(tools []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters.Map()),
			},
		})
	}
	return out
}
