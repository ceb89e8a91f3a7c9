package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"digitaltwin/internal/config"
	"digitaltwin/internal/conversation"
	"digitaltwin/internal/llm"
	"digitaltwin/internal/logger"
	"digitaltwin/internal/notify"
	"digitaltwin/internal/persona"
	"digitaltwin/internal/prompt"
	"digitaltwin/internal/tools"
	"digitaltwin/internal/twin"
	"digitaltwin/pkg/twintypes"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg        *config.Config
	persona    *twintypes.Persona
	controller *twin.Controller
	closer     io.Closer
}

// newApp validates the configuration and wires the turn controller.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := persona.Load(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}
	prompts := prompt.New(p)

	client, err := llm.NewClient(llm.ClientConfig{
		Provider:     cfg.Provider,
		APIKey:       cfg.APIKey(),
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.RequestTimeout,
		MaxToolSteps: cfg.MaxToolSteps,
	})
	if err != nil {
		return nil, err
	}

	notifier := notify.New(cfg)
	fetcher := notify.NewFetcher(cfg.RequestTimeout)
	registry, err := tools.NewDefaultRegistry(notifier, tools.Options{
		ResumeURL: cfg.ResumeURL,
		Fetch:     fetcher.FetchAttachment,
	})
	if err != nil {
		return nil, err
	}

	store, closer, err := conversation.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	responder := twin.NewResponder(client, cfg.ModelName, prompts, registry)
	evaluator := twin.NewEvaluator(client, cfg.EvaluatorModelName, cfg.ModelName, prompts)
	controller := twin.NewController(responder, evaluator, store, prompts.AgentSystemPrompt)

	logger.ServiceOperation("app", "initialize", "completed",
		"persona", p.Name(), "provider", client.ProviderName(), "model", cfg.ModelName, "storage", store.Backend())
	return &app{cfg: cfg, persona: p, controller: controller, closer: closer}, nil
}

// Close releases the conversation store.
func (a *app) Close() error {
	return a.closer.Close()
}

// ask runs one turn and writes the result as JSON.
func (a *app) ask(ctx context.Context, out io.Writer, message, sessionID string) error {
	result, err := a.controller.Turn(ctx, twintypes.TurnRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

// history writes the stored records of a session as JSON.
func (a *app) history(ctx context.Context, out io.Writer, sessionID string) error {
	records, err := a.controller.History(ctx, sessionID)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{"session_id": sessionID, "messages": records})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
