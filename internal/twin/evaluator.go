package twin

import (
	"context"
	"fmt"

	"digitaltwin/internal/llm"
	"digitaltwin/internal/logger"
	"digitaltwin/internal/prompt"
	"digitaltwin/pkg/twintypes"
)

// EvaluationSchemaName names the structured output requested from the evaluator.
const EvaluationSchemaName = "evaluation"

// EvaluationSchema is the two-field shape every evaluation must have.
var EvaluationSchema = llm.Object(map[string]*llm.Schema{
	"is_acceptable": llm.Boolean("Whether the latest response is acceptable"),
	"feedback":      llm.String("Why the response was accepted or rejected"),
}, "is_acceptable", "feedback")

// Judge evaluates drafts and regenerates rejected ones.
type Judge interface {
	Evaluate(ctx context.Context, reply, message string, history []twintypes.Record) (twintypes.Evaluation, error)
	Rerun(ctx context.Context, basePrompt, rejectedReply, message string, history []twintypes.Record, feedback string) (string, error)
}

// Evaluator judges drafts with the evaluator model and reruns rejected drafts with the
// primary model.
type Evaluator struct {
	client     llm.Client
	model      string
	rerunModel string
	prompts    *prompt.Builder
}

// NewEvaluator creates an evaluator. model judges; rerunModel regenerates.
func NewEvaluator(client llm.Client, model, rerunModel string, prompts *prompt.Builder) *Evaluator {
	return &Evaluator{client: client, model: model, rerunModel: rerunModel, prompts: prompts}
}

// evaluationPayload detects missing fields in the structured output.
type evaluationPayload struct {
	IsAcceptable *bool   `json:"is_acceptable"`
	Feedback     *string `json:"feedback"`
}

// Evaluate asks the evaluator model whether reply is an acceptable answer to message.
func (e *Evaluator) Evaluate(ctx context.Context, reply, message string, history []twintypes.Record) (twintypes.Evaluation, error) {
	req := llm.Request{
		Model:  e.model,
		System: e.prompts.EvaluatorSystemPrompt(),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: e.prompts.EvaluatorUserPrompt(reply, message, history)},
		},
	}

	var payload evaluationPayload
	if err := e.client.Structured(ctx, req, EvaluationSchemaName, EvaluationSchema, &payload); err != nil {
		return twintypes.Evaluation{}, fmt.Errorf("evaluation failed: %w", err)
	}
	if payload.IsAcceptable == nil || payload.Feedback == nil {
		return twintypes.Evaluation{}, fmt.Errorf("evaluation failed: structured output missing is_acceptable or feedback")
	}

	evaluation := twintypes.Evaluation{IsAcceptable: *payload.IsAcceptable, Feedback: *payload.Feedback}
	logger.Debug("Draft evaluated", "acceptable", evaluation.IsAcceptable)
	return evaluation, nil
}

// Rerun regenerates a rejected reply once with a plain chat call. The system prompt
// carries the rejected reply and the feedback verbatim.
func (e *Evaluator) Rerun(ctx context.Context, basePrompt, rejectedReply, message string, history []twintypes.Record, feedback string) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, rec := range history {
		messages = append(messages, llm.Message{Role: rec.Role, Content: rec.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := e.client.Chat(ctx, llm.Request{
		Model:    e.rerunModel,
		System:   prompt.RerunSystemPrompt(basePrompt, rejectedReply, feedback),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("rerun failed: %w", err)
	}
	return reply, nil
}
