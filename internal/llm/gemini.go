package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"digitaltwin/internal/logger"
)

// GeminiClient implements Client over the Google Gemini API.
type GeminiClient struct {
	cfg    ClientConfig
	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini client with lazy initialization.
func NewGeminiClient(cfg ClientConfig) *GeminiClient {
	cfg.Provider = "gemini"
	return &GeminiClient{cfg: cfg}
}

// ProviderName returns "gemini".
func (c *GeminiClient) ProviderName() string {
	return "gemini"
}

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if c.cfg.APIKey == "" {
		return fmt.Errorf("gemini: %w", ErrNotConfigured)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = c.cfg.BaseURL
	}
	if c.cfg.Timeout > 0 {
		timeout := c.cfg.Timeout
		clientConfig.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client

	logger.Debug("Gemini client initialized", "provider", "gemini")
	return nil
}

// Chat sends a plain generate-content request.
func (c *GeminiClient) Chat(ctx context.Context, req Request) (string, error) {
	result, err := c.generate(ctx, req.Model, convertMessagesToGemini(req.Messages), c.buildGenerationConfig(req))
	if err != nil {
		return "", err
	}
	return geminiText(result)
}

// RunWithTools runs the function-calling loop until the model answers with text only.
func (c *GeminiClient) RunWithTools(ctx context.Context, req Request, tools []ToolSpec, executor ToolExecutor) (string, error) {
	contents := convertMessagesToGemini(req.Messages)
	config := c.buildGenerationConfig(req)
	config.Tools = []*genai.Tool{{FunctionDeclarations: convertToolsToGemini(tools)}}

	for step := 0; step < c.cfg.maxToolSteps(); step++ {
		result, err := c.generate(ctx, req.Model, contents, config)
		if err != nil {
			return "", err
		}

		calls := result.FunctionCalls()
		if len(calls) == 0 {
			logger.Debug("Gemini tool run finished", "steps", step+1)
			return geminiText(result)
		}

		contents = append(contents, result.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			call, err := toolCallFromGemini(fc)
			if err != nil {
				return "", err
			}
			logger.Debug("Executing tool call", "provider", "gemini", "tool", call.Name)
			output, err := executor.Execute(ctx, call)
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: map[string]any{"output": output},
			}})
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}

	return "", fmt.Errorf("gemini tool loop exceeded %d steps", c.cfg.maxToolSteps())
}

// Structured requests a JSON response constrained by schema and decodes it into out.
func (c *GeminiClient) Structured(ctx context.Context, req Request, name string, schema *Schema, out any) error {
	config := c.buildGenerationConfig(req)
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = schema.Genai()

	result, err := c.generate(ctx, req.Model, convertMessagesToGemini(req.Messages), config)
	if err != nil {
		return err
	}
	text, err := geminiText(result)
	if err != nil {
		return fmt.Errorf("gemini structured output %s: %w", name, err)
	}
	return decodeStructured(text, out)
}

func (c *GeminiClient) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	logger.Debug("Sending Gemini request", "model", model, "contents", len(contents))
	result, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates: %w", ErrEmptyResponse)
	}
	return result, nil
}

// buildGenerationConfig carries the system instruction of a request.
func (c *GeminiClient) buildGenerationConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return config
}

// geminiText joins the non-thought text parts of the first candidate.
func geminiText(result *genai.GenerateContentResponse) (string, error) {
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// convertMessagesToGemini maps assistant messages to the model role.
func convertMessagesToGemini(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}
	return contents
}

func convertToolsToGemini(tools []ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		out = append(out, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters.Genai(),
		})
	}
	return out
}

func toolCallFromGemini(fc *genai.FunctionCall) (ToolCall, error) {
	args, err := marshalArgs(fc.Args)
	if err != nil {
		return ToolCall{}, fmt.Errorf("failed to encode arguments for %s: %w", fc.Name, err)
	}
	return ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args}, nil
}
