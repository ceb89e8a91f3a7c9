package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertMessagesToGemini(t *testing.T) {
	contents := convertMessagesToGemini([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: "system", Content: "ignored"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestGeminiBuildGenerationConfig(t *testing.T) {
	client := NewGeminiClient(ClientConfig{APIKey: "k"})

	config := client.buildGenerationConfig(Request{System: "be brief"})
	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "be brief", config.SystemInstruction.Parts[0].Text)

	assert.Nil(t, client.buildGenerationConfig(Request{}).SystemInstruction)
}

func TestGeminiText_SkipsThoughts(t *testing.T) {
	result := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Answer"},
		}},
	}}}

	text, err := geminiText(result)
	require.NoError(t, err)
	assert.Equal(t, "Answer", text)

	result.Candidates[0].Content.Parts = []*genai.Part{{Text: "  "}}
	_, err = geminiText(result)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestToolCallFromGemini(t *testing.T) {
	call, err := toolCallFromGemini(&genai.FunctionCall{
		ID:   "fc1",
		Name: "record_user_details",
		Args: map[string]any{"email": "a@b.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fc1", call.ID)
	assert.JSONEq(t, `{"email":"a@b.com"}`, call.Arguments)

	call, err = toolCallFromGemini(&genai.FunctionCall{Name: "noop"})
	require.NoError(t, err)
	assert.Equal(t, "{}", call.Arguments)
}

func TestConvertToolsToGemini(t *testing.T) {
	decls := convertToolsToGemini([]ToolSpec{{
		Name:        "record_user_details",
		Description: "Record contact details",
		Parameters: Object(map[string]*Schema{
			"email": String("address"),
			"name":  String("name"),
		}, "email"),
	}})

	require.Len(t, decls, 1)
	params := decls[0].Parameters
	assert.Equal(t, genai.TypeObject, params.Type)
	assert.Equal(t, []string{"email"}, params.Required)
	assert.Equal(t, []string{"email", "name"}, params.PropertyOrdering)
	assert.Equal(t, genai.TypeString, params.Properties["email"].Type)
}

func geminiTextResponse(text string) string {
	data, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(data) + `}]},"finishReason":"STOP"}]}`
}

func geminiFunctionCall(name, args string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"` + name + `","args":` + args + `}}]},"finishReason":"STOP"}]}`
}

func newTestGeminiClient(srv *httptest.Server) *GeminiClient {
	return NewGeminiClient(ClientConfig{APIKey: "gemini-test", BaseURL: srv.URL})
}

func TestGeminiClient_Chat(t *testing.T) {
	rec, srv := newScriptedServer(t, geminiTextResponse("Hi there"))
	client := newTestGeminiClient(srv)

	reply, err := client.Chat(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	assert.True(t, strings.HasSuffix(rec.paths[0], "/models/test-model:generateContent"), rec.paths[0])
	req := rec.request(0)
	contents := req["contents"].([]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "model", contents[0].(map[string]any)["role"])
	assert.Equal(t, "user", contents[1].(map[string]any)["role"])
	system := req["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "You are a twin.", system["text"])
}

func TestGeminiClient_RunWithTools(t *testing.T) {
	rec, srv := newScriptedServer(t,
		geminiFunctionCall("record_user_details", `{"email":"a@b.com","name":"Sam"}`),
		geminiTextResponse("Thanks, I'll be in touch."),
	)
	client := newTestGeminiClient(srv)

	var calls []ToolCall
	executor := ToolExecutorFunc(func(_ context.Context, call ToolCall) (string, error) {
		calls = append(calls, call)
		return "ok", nil
	})
	tools := []ToolSpec{{
		Name:        "record_user_details",
		Description: "Record contact details",
		Parameters:  Object(map[string]*Schema{"email": String("email"), "name": String("name")}, "email"),
	}}

	reply, err := client.RunWithTools(context.Background(), testRequest(), tools, executor)
	require.NoError(t, err)
	assert.Equal(t, "Thanks, I'll be in touch.", reply)

	require.Len(t, calls, 1)
	assert.Equal(t, "record_user_details", calls[0].Name)
	assert.JSONEq(t, `{"email":"a@b.com","name":"Sam"}`, calls[0].Arguments)

	declarations := rec.request(0)["tools"].([]any)[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, declarations, 1)
	assert.Equal(t, "record_user_details", declarations[0].(map[string]any)["name"])

	// The second request replays the call and carries its result
	contents := rec.request(1)["contents"].([]any)
	require.Len(t, contents, 4)
	modelTurn := contents[2].(map[string]any)
	assert.Equal(t, "model", modelTurn["role"])
	assert.Contains(t, modelTurn["parts"].([]any)[0].(map[string]any), "functionCall")

	response := contents[3].(map[string]any)
	assert.Equal(t, "user", response["role"])
	fr := response["parts"].([]any)[0].(map[string]any)["functionResponse"].(map[string]any)
	assert.Equal(t, "record_user_details", fr["name"])
	assert.Equal(t, map[string]any{"output": "ok"}, fr["response"])
}

func TestGeminiClient_RunWithToolsExecutorError(t *testing.T) {
	rec, srv := newScriptedServer(t, geminiFunctionCall("record_unknown_question", `{"question":"q"}`))
	client := newTestGeminiClient(srv)

	executor := ToolExecutorFunc(func(_ context.Context, _ ToolCall) (string, error) {
		return "", errors.New("mail down")
	})

	_, err := client.RunWithTools(context.Background(), testRequest(), nil, executor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool record_unknown_question failed: mail down")
	assert.Len(t, rec.requests, 1, "the loop stops at the failing tool")
}

func TestGeminiClient_RunWithToolsStepLimit(t *testing.T) {
	call := geminiFunctionCall("record_unknown_question", `{"question":"q"}`)
	_, srv := newScriptedServer(t, call, call)
	client := NewGeminiClient(ClientConfig{APIKey: "gemini-test", BaseURL: srv.URL, MaxToolSteps: 2})

	executor := ToolExecutorFunc(func(_ context.Context, _ ToolCall) (string, error) { return "ok", nil })

	_, err := client.RunWithTools(context.Background(), testRequest(), nil, executor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 2 steps")
}

func TestGeminiClient_Structured(t *testing.T) {
	rec, srv := newScriptedServer(t, geminiTextResponse(`{"is_acceptable": false, "feedback": "Rust not in skillset"}`))
	client := newTestGeminiClient(srv)

	var out struct {
		IsAcceptable bool   `json:"is_acceptable"`
		Feedback     string `json:"feedback"`
	}
	schema := Object(map[string]*Schema{
		"is_acceptable": Boolean(""),
		"feedback":      String(""),
	}, "is_acceptable", "feedback")

	require.NoError(t, client.Structured(context.Background(), testRequest(), "evaluation", schema, &out))
	assert.False(t, out.IsAcceptable)
	assert.Equal(t, "Rust not in skillset", out.Feedback)

	config := rec.request(0)["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", config["responseMimeType"])
	responseSchema := config["responseSchema"].(map[string]any)
	assert.Equal(t, "OBJECT", responseSchema["type"])
	assert.ElementsMatch(t, []any{"is_acceptable", "feedback"}, responseSchema["required"])
}

func TestGeminiClient_StructuredMalformed(t *testing.T) {
	_, srv := newScriptedServer(t, geminiTextResponse("not json"))
	client := newTestGeminiClient(srv)

	var out map[string]any
	err := client.Structured(context.Background(), testRequest(), "evaluation", Object(nil), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode structured output")
}

func TestGeminiClient_ProviderError(t *testing.T) {
	rec, srv := newScriptedServer(t)
	rec.status = http.StatusBadGateway
	client := newTestGeminiClient(srv)

	_, err := client.Chat(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini request failed")
}
