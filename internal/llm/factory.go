package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"digitaltwin/internal/logger"
)

// Factory creates and caches provider clients keyed by provider and API key.
type Factory struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewFactory creates an empty client factory.
func NewFactory() *Factory {
	return &Factory{clients: make(map[string]Client)}
}

var defaultFactory = NewFactory()

// NewClient returns a cached client for cfg from the process-wide factory.
func NewClient(cfg ClientConfig) (Client, error) {
	return defaultFactory.Get(cfg)
}

// Get returns a client for the provider in cfg, creating it on first request.
func (f *Factory) Get(cfg ClientConfig) (Client, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty for provider '%s': %w", cfg.Provider, ErrNotConfigured)
	}

	clientID := cacheKey(cfg)

	f.mu.RLock()
	if client, exists := f.clients[clientID]; exists {
		f.mu.RUnlock()
		logger.Debug("Returning cached provider client", "provider", cfg.Provider)
		return client, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check pattern
	if client, exists := f.clients[clientID]; exists {
		return client, nil
	}

	var client Client
	switch cfg.Provider {
	case "openai", "openrouter":
		client = NewOpenAIClient(cfg)
	case "anthropic":
		client = NewAnthropicClient(cfg)
	case "gemini":
		client = NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider '%s'. Supported providers: openrouter, openai, anthropic, gemini", cfg.Provider)
	}
	f.clients[clientID] = client

	logger.Debug("Created new provider client", "provider", cfg.Provider, "clientID", clientID)
	return client, nil
}

// Len returns the number of cached clients.
func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// cacheKey identifies a client by every setting baked into it at creation.
func cacheKey(cfg ClientConfig) string {
	return fmt.Sprintf("%s@%s|timeout=%s|steps=%d",
		generateClientID(cfg.Provider, cfg.APIKey), cfg.BaseURL, cfg.Timeout, cfg.maxToolSteps())
}

// generateClientID creates a client ID of the form "provider:hash" without exposing the key.
func generateClientID(provider, apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return fmt.Sprintf("%s:%s", provider, hex.EncodeToString(hash[:])[:8])
}
